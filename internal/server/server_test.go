package server

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mdhub/config"
	"mdhub/internal/feed"
	"mdhub/internal/ratelimit"
	"mdhub/internal/snapshot"
	"mdhub/internal/subscription"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type reply struct {
	Type        string          `json:"type"`
	SessionID   string          `json:"sessionId"`
	Instruments json.RawMessage `json:"instruments"`
	Message     string          `json:"message"`
	Data        json.RawMessage `json:"data"`
}

func dialTestServer(t *testing.T, s *Server, user string) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(s.Routes())
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?user=" + user
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readReply(t *testing.T, conn *websocket.Conn) reply {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var r reply
	if err := json.Unmarshal(raw, &r); err != nil {
		t.Fatalf("decode frame %s: %v", raw, err)
	}
	return r
}

func newTestServer(t *testing.T) (*Server, *subscription.Manager, *subscription.Registry) {
	t.Helper()
	registry := subscription.NewRegistry()
	manager := subscription.NewManager(ratelimit.Unlimited{}, zap.NewNop())
	s := New(config.ServerConfig{SendBuffer: 16}, registry, manager, snapshot.NewHealth(), zap.NewNop())
	return s, manager, registry
}

// go test -v --run TestSessionLifecycle
func TestSessionLifecycle(t *testing.T) {
	s, manager, _ := newTestServer(t)
	conn := dialTestServer(t, s, "u1")

	hello := readReply(t, conn)
	if hello.Type != msgConnected || hello.SessionID == "" {
		t.Fatalf("first frame = %+v, want CONNECTED with session id", hello)
	}

	if err := conn.WriteJSON(command{Type: cmdSubscribe, Instruments: []string{"A", "B"}, Category: "ltpc"}); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}
	if r := readReply(t, conn); r.Type != msgSubscribed {
		t.Fatalf("subscribe reply = %+v", r)
	}
	if got := manager.CurrentCount("u1", subscription.CategoryLTPC); got != 2 {
		t.Fatalf("admitted count = %d, want 2", got)
	}

	// A TICK for a subscribed instrument reaches the session.
	payload := []byte(`{"ltp":42}`)
	s.Broadcaster().Tick(feed.MarketUpdate{InstrumentKey: "A", Event: feed.EventTick, Payload: payload})
	tick := readReply(t, conn)
	if tick.Type != msgTick || string(tick.Data) != string(payload) {
		t.Fatalf("tick frame = %+v", tick)
	}

	if err := conn.WriteJSON(command{Type: cmdPing}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	if r := readReply(t, conn); r.Type != msgPong {
		t.Fatalf("ping reply = %+v", r)
	}

	// Unsubscribing everything releases the admitted capacity.
	if err := conn.WriteJSON(command{Type: cmdUnsubscribe}); err != nil {
		t.Fatalf("write unsubscribe: %v", err)
	}
	r := readReply(t, conn)
	if r.Type != msgUnsubscribed || string(r.Instruments) != `"all"` {
		t.Fatalf("unsubscribe reply = %+v", r)
	}
	if got := manager.CurrentCount("u1", subscription.CategoryLTPC); got != 0 {
		t.Fatalf("count after unsubscribe = %d, want 0", got)
	}
}

// go test -v --run TestMalformedCommandKeepsConnection
func TestMalformedCommandKeepsConnection(t *testing.T) {
	s, _, _ := newTestServer(t)
	conn := dialTestServer(t, s, "u1")
	readReply(t, conn) // CONNECTED

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	if r := readReply(t, conn); r.Type != msgError {
		t.Fatalf("garbage reply = %+v, want ERROR", r)
	}

	// The session survived and still answers.
	if err := conn.WriteJSON(command{Type: cmdPing}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	if r := readReply(t, conn); r.Type != msgPong {
		t.Fatalf("ping after garbage = %+v", r)
	}
}

// go test -v --run TestSubscribeValidation
func TestSubscribeValidation(t *testing.T) {
	s, _, _ := newTestServer(t)
	conn := dialTestServer(t, s, "u1")
	readReply(t, conn) // CONNECTED

	if err := conn.WriteJSON(command{Type: cmdSubscribe}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if r := readReply(t, conn); r.Type != msgError {
		t.Fatalf("empty subscribe reply = %+v, want ERROR", r)
	}

	if err := conn.WriteJSON(command{Type: cmdSubscribe, Instruments: []string{"A"}, Category: "bogus"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if r := readReply(t, conn); r.Type != msgError {
		t.Fatalf("bogus category reply = %+v, want ERROR", r)
	}
}

// go test -v --run TestSubscribeRacingTeardown
func TestSubscribeRacingTeardown(t *testing.T) {
	s, manager, registry := newTestServer(t)
	conn := dialTestServer(t, s, "u1")
	readReply(t, conn) // CONNECTED

	all := s.sessions.All()
	if len(all) != 1 {
		t.Fatalf("sessions = %d, want 1", len(all))
	}
	cl := all[0]

	// The two-store commit is not atomic: admission lands first, the
	// write side tears the session down, then the registry commit lands
	// on the dead session. The post-commit sweep must undo all of it.
	instruments := []string{"A", "B"}
	if !manager.Subscribe(cl.UserID, subscription.CategoryLTPC, instruments) {
		t.Fatal("admission commit failed")
	}
	s.closeClient(cl)
	registry.Subscribe(cl.ID, instruments, subscription.CategoryLTPC)
	s.sweepIfClosed(cl)

	if got := registry.SessionCount(); got != 0 {
		t.Fatalf("session count = %d, want 0", got)
	}
	if got := manager.CurrentCount("u1", subscription.CategoryLTPC); got != 0 {
		t.Fatalf("leaked admission capacity: count = %d, want 0", got)
	}
	if got := registry.ClientsFor("A"); len(got) != 0 {
		t.Fatalf("dead session still listed as watcher: %v", got)
	}
}

// go test -v --run TestConnectionLimit
func TestConnectionLimit(t *testing.T) {
	s, _, _ := newTestServer(t)
	ts := httptest.NewServer(s.Routes())
	t.Cleanup(ts.Close)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?user=u1"

	dial := func() *websocket.Conn {
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		t.Cleanup(func() { conn.Close() })
		return conn
	}

	// Normal users get two simultaneous connections.
	for i := 0; i < 2; i++ {
		if r := readReply(t, dial()); r.Type != msgConnected {
			t.Fatalf("connection %d = %+v, want CONNECTED", i+1, r)
		}
	}
	if r := readReply(t, dial()); r.Type != msgError {
		t.Fatalf("third connection = %+v, want ERROR", r)
	}
}

// go test -v --run TestDisconnectReleasesSubscriptions
func TestDisconnectReleasesSubscriptions(t *testing.T) {
	s, manager, registry := newTestServer(t)
	conn := dialTestServer(t, s, "u1")
	readReply(t, conn) // CONNECTED

	if err := conn.WriteJSON(command{Type: cmdSubscribe, Instruments: []string{"A", "B", "C"}, Category: "ltpc"}); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}
	readReply(t, conn) // SUBSCRIBED

	conn.Close()

	// Teardown runs on the server side of the socket; give it a moment.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if manager.CurrentCount("u1", subscription.CategoryLTPC) == 0 &&
			registry.SessionCount() == 0 && s.sessions.Count() == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("disconnect left state behind: count=%d sessions=%d",
		manager.CurrentCount("u1", subscription.CategoryLTPC), s.sessions.Count())
}
