// README: WebSocket hub; one session per connected client, fed from its broker subscription.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"drivemecrazy/internal/identity"
	"drivemecrazy/internal/observability"
)

const writeWait = 10 * time.Second

// Hub attaches websocket connections to broker subscriptions. A session
// subscribes to the caller's own topic; drivers additionally join the shared
// pool topic so they see new requests. Delivery stays at-most-once: a slow
// or gone connection just misses events.
type Hub struct {
	broker Broker
	log    *slog.Logger
}

func NewHub(broker Broker, log *slog.Logger) *Hub {
	return &Hub{broker: broker, log: log}
}

// Attach runs the session until the client disconnects or ctx is cancelled.
func (h *Hub) Attach(ctx context.Context, actor identity.Actor, conn *websocket.Conn) error {
	topics := []string{UserTopic(actor.SubjectID)}
	if actor.Role == identity.RoleDriver {
		topics = append(topics, PoolTopic)
	}
	sub, err := h.broker.Subscribe(ctx, topics...)
	if err != nil {
		return err
	}

	observability.WSSessions.Inc()
	defer observability.WSSessions.Dec()

	sess := &session{conn: conn}
	done := make(chan struct{})

	// Read loop exists only to notice the peer going away.
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	defer func() {
		_ = sub.Close()
		_ = conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-done:
			return nil
		case m, ok := <-sub.C():
			if !ok {
				return nil
			}
			if err := sess.send(m.Payload); err != nil {
				h.log.Info("ws send failed, dropping session", "subject", actor.SubjectID, "err", err)
				return nil
			}
		}
	}
}

// session serializes writes to one connection.
type session struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *session) send(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}
