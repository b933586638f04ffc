// README: Pub/sub broker abstraction with Redis and in-process implementations.
package notify

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Message is one serialized event delivered on a topic.
type Message struct {
	Topic   string
	Payload []byte
}

// Subscription yields messages for the topics it was opened with. Close is
// idempotent and stops the channel.
type Subscription interface {
	C() <-chan Message
	Close() error
}

// Broker is an at-most-once pub/sub channel keyed by topic. Publish never
// retries; a subscriber that is not listening simply misses the message.
type Broker interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, topics ...string) (Subscription, error)
}

// --- Redis implementation ---

type RedisBroker struct {
	client *redis.Client
}

func NewRedisBroker(client *redis.Client) *RedisBroker {
	return &RedisBroker{client: client}
}

func (b *RedisBroker) Publish(ctx context.Context, topic string, payload []byte) error {
	return b.client.Publish(ctx, topic, payload).Err()
}

func (b *RedisBroker) Subscribe(ctx context.Context, topics ...string) (Subscription, error) {
	ps := b.client.Subscribe(ctx, topics...)
	// Force the SUBSCRIBE round-trip so errors surface here, not on first read.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	sub := &redisSubscription{ps: ps, out: make(chan Message, 16)}
	go sub.pump(ps.Channel())
	return sub, nil
}

type redisSubscription struct {
	ps   *redis.PubSub
	out  chan Message
	once sync.Once
}

// pump must never block on out: the consumer may have stopped reading before
// Close, and an in-flight message would otherwise pin this goroutine forever.
// A full buffer drops the message, same as LocalBroker.
func (s *redisSubscription) pump(in <-chan *redis.Message) {
	defer close(s.out)
	for m := range in {
		select {
		case s.out <- Message{Topic: m.Channel, Payload: []byte(m.Payload)}:
		default:
		}
	}
}

func (s *redisSubscription) C() <-chan Message { return s.out }

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() { err = s.ps.Close() })
	return err
}

// --- In-process implementation ---

// LocalBroker delivers within the process. It backs tests and single-node
// runs without Redis. Subscribers with a full buffer drop messages rather
// than block the publisher, matching the at-most-once contract.
type LocalBroker struct {
	mu   sync.RWMutex
	subs map[string]map[*localSubscription]struct{}
}

func NewLocalBroker() *LocalBroker {
	return &LocalBroker{subs: make(map[string]map[*localSubscription]struct{})}
}

func (b *LocalBroker) Publish(_ context.Context, topic string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs[topic] {
		select {
		case sub.out <- Message{Topic: topic, Payload: payload}:
		default:
		}
	}
	return nil
}

func (b *LocalBroker) Subscribe(_ context.Context, topics ...string) (Subscription, error) {
	sub := &localSubscription{broker: b, topics: topics, out: make(chan Message, 16)}
	b.mu.Lock()
	for _, t := range topics {
		if b.subs[t] == nil {
			b.subs[t] = make(map[*localSubscription]struct{})
		}
		b.subs[t][sub] = struct{}{}
	}
	b.mu.Unlock()
	return sub, nil
}

type localSubscription struct {
	broker *LocalBroker
	topics []string
	out    chan Message
	once   sync.Once
}

func (s *localSubscription) C() <-chan Message { return s.out }

func (s *localSubscription) Close() error {
	s.once.Do(func() {
		s.broker.mu.Lock()
		for _, t := range s.topics {
			delete(s.broker.subs[t], s)
		}
		s.broker.mu.Unlock()
		close(s.out)
	})
	return nil
}
