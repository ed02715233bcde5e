package feed

import (
	"context"
	"sync"
	"testing"

	"go.uber.org/zap"
)

type recordPersister struct {
	mu   sync.Mutex
	puts []string
}

func (p *recordPersister) Put(_ context.Context, key string, _ []byte, _ int64) {
	p.mu.Lock()
	p.puts = append(p.puts, key)
	p.mu.Unlock()
}

type recordFanout struct {
	ticks  []string
	depths []string
}

func (f *recordFanout) Tick(u MarketUpdate)  { f.ticks = append(f.ticks, u.InstrumentKey) }
func (f *recordFanout) Depth(u MarketUpdate) { f.depths = append(f.depths, u.InstrumentKey) }

// go test -v --run TestPipelineRouting
func TestPipelineRouting(t *testing.T) {
	store := &recordPersister{}
	fanout := &recordFanout{}
	p := NewPipeline(store, fanout, zap.NewNop())

	updates := make(chan MarketUpdate, 8)
	updates <- MarketUpdate{Event: EventHeartbeat}
	updates <- MarketUpdate{InstrumentKey: "A", Event: EventTick, Payload: []byte(`{}`), ExchangeTS: 1}
	updates <- MarketUpdate{InstrumentKey: "B", Event: EventDepth, Payload: []byte(`{}`), ExchangeTS: 2}
	updates <- MarketUpdate{Event: EventError, Payload: []byte("upstream said no")}
	close(updates)

	p.Run(context.Background(), updates)

	if got := p.Processed(); got != 2 {
		t.Fatalf("processed = %d, want 2", got)
	}
	if got := p.Heartbeats(); got != 1 {
		t.Fatalf("heartbeats = %d, want 1", got)
	}

	// Persistence happens for every instrument-scoped update, before
	// fan-out, regardless of event kind.
	if len(store.puts) != 2 || store.puts[0] != "A" || store.puts[1] != "B" {
		t.Fatalf("persisted keys = %v", store.puts)
	}
	if len(fanout.ticks) != 1 || fanout.ticks[0] != "A" {
		t.Fatalf("ticks = %v", fanout.ticks)
	}
	if len(fanout.depths) != 1 || fanout.depths[0] != "B" {
		t.Fatalf("depths = %v", fanout.depths)
	}
}

// go test -v --run TestPipelineStopsOnCancel
func TestPipelineStopsOnCancel(t *testing.T) {
	p := NewPipeline(&recordPersister{}, &recordFanout{}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// The channel stays open; cancellation alone must end the loop.
	p.Run(ctx, make(chan MarketUpdate))
}
