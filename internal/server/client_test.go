package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mdhub/internal/feed"
	"mdhub/internal/subscription"

	"github.com/gorilla/websocket"
)

// rawSession upgrades one websocket against a bare handler and hands the
// server side back, so a Client can be assembled without its pumps.
func rawSession(t *testing.T) *websocket.Conn {
	t.Helper()
	upgraded := make(chan *websocket.Conn, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		upgraded <- conn
	}))
	t.Cleanup(ts.Close)

	dialer, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { dialer.Close() })

	select {
	case conn := <-upgraded:
		t.Cleanup(func() { conn.Close() })
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("upgrade never completed")
		return nil
	}
}

// go test -v --run TestSendOverflowDisconnects
func TestSendOverflowDisconnects(t *testing.T) {
	s, manager, registry := newTestServer(t)

	// A slow consumer: one-slot queue and no writer draining it.
	slow := &Client{
		ID:     "slow",
		UserID: "slow",
		conn:   rawSession(t),
		send:   make(chan []byte, 1),
		done:   make(chan struct{}),
		srv:    s,
	}
	slow.setState(StateConnected)
	healthy := testClient("healthy", 16)
	s.sessions.Add(slow)
	s.sessions.Add(healthy)

	manager.Subscribe("slow", subscription.CategoryLTPC, []string{"KEY"})
	registry.Subscribe("slow", []string{"KEY"}, subscription.CategoryLTPC)
	registry.Subscribe("healthy", []string{"KEY"}, subscription.CategoryLTPC)

	b := s.Broadcaster()
	b.Tick(feed.MarketUpdate{InstrumentKey: "KEY", Payload: []byte(`{"seq":1}`)})
	// The second frame finds the one-slot queue still full.
	b.Tick(feed.MarketUpdate{InstrumentKey: "KEY", Payload: []byte(`{"seq":2}`)})

	if slow.State() != StateClosed {
		t.Fatal("overflowing client was not disconnected")
	}
	if s.sessions.Get("slow") != nil {
		t.Fatal("disconnected client still in the session table")
	}
	if got := manager.CurrentCount("slow", subscription.CategoryLTPC); got != 0 {
		t.Fatalf("disconnect did not release capacity: %d held", got)
	}
	if got := b.Stats()["errors"]; got != 1 {
		t.Fatalf("errors = %d, want 1", got)
	}

	// The slow consumer's failure is isolated from the healthy one.
	if got := len(healthy.send); got != 2 {
		t.Fatalf("healthy client received %d frames, want 2", got)
	}
}
