// README: WebSocket hub session tests over the in-process broker.
package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"drivemecrazy/internal/identity"
)

// startHubServer serves one websocket endpoint that attaches every connection
// to the hub as the given actor.
func startHubServer(t *testing.T, hub *Hub, actor identity.Actor) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = hub.Attach(r.Context(), actor, conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dialHub(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// waitForSubscriber blocks until the hub's session has subscribed the topic,
// so a publish cannot race the subscription.
func waitForSubscriber(t *testing.T, b *LocalBroker, topic string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		b.mu.RLock()
		n := len(b.subs[topic])
		b.mu.RUnlock()
		if n > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no subscriber showed up on %s", topic)
}

func readMessage(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return string(payload)
}

func TestHubDriverSessionJoinsPool(t *testing.T) {
	broker := NewLocalBroker()
	hub := NewHub(broker, discardLogger())
	drv := identity.Actor{SubjectID: "driver1", Role: identity.RoleDriver}

	srv := startHubServer(t, hub, drv)
	conn := dialHub(t, srv)

	waitForSubscriber(t, broker, UserTopic(drv.SubjectID))
	waitForSubscriber(t, broker, PoolTopic)

	ctx := context.Background()
	if err := broker.Publish(ctx, UserTopic(drv.SubjectID), []byte("user")); err != nil {
		t.Fatalf("publish user: %v", err)
	}
	if err := broker.Publish(ctx, PoolTopic, []byte("pool")); err != nil {
		t.Fatalf("publish pool: %v", err)
	}

	got := map[string]bool{}
	got[readMessage(t, conn)] = true
	got[readMessage(t, conn)] = true
	if !got["user"] || !got["pool"] {
		t.Fatalf("driver session received %v, want both user and pool events", got)
	}
}

func TestHubRiderSessionSkipsPool(t *testing.T) {
	broker := NewLocalBroker()
	hub := NewHub(broker, discardLogger())
	rdr := identity.Actor{SubjectID: "rider1", Role: identity.RoleRider}

	srv := startHubServer(t, hub, rdr)
	conn := dialHub(t, srv)

	waitForSubscriber(t, broker, UserTopic(rdr.SubjectID))

	ctx := context.Background()
	// The pool publish must be invisible to a rider session.
	if err := broker.Publish(ctx, PoolTopic, []byte("pool")); err != nil {
		t.Fatalf("publish pool: %v", err)
	}
	if err := broker.Publish(ctx, UserTopic(rdr.SubjectID), []byte("user")); err != nil {
		t.Fatalf("publish user: %v", err)
	}

	if msg := readMessage(t, conn); msg != "user" {
		t.Fatalf("rider session received %q, want its own event only", msg)
	}

	_ = conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, payload, err := conn.ReadMessage(); err == nil {
		t.Fatalf("rider session received unexpected extra message %q", payload)
	}
}

func TestHubSessionEndsOnClientClose(t *testing.T) {
	broker := NewLocalBroker()
	hub := NewHub(broker, discardLogger())
	drv := identity.Actor{SubjectID: "driver2", Role: identity.RoleDriver}

	srv := startHubServer(t, hub, drv)
	conn := dialHub(t, srv)
	waitForSubscriber(t, broker, PoolTopic)

	_ = conn.Close()

	// Attach closes its subscription on the way out, so the broker's
	// registry must drain.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		broker.mu.RLock()
		n := len(broker.subs[PoolTopic])
		broker.mu.RUnlock()
		if n == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("pool subscription still registered after client disconnect")
}
