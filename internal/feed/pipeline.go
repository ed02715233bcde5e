package feed

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
)

// Persister retains the latest payload per instrument. Implemented by
// the tiered snapshot store; it never fails toward the pipeline.
type Persister interface {
	Put(ctx context.Context, key string, payload []byte, ts int64)
}

// Fanout delivers instrument-scoped updates to interested sessions.
type Fanout interface {
	Tick(u MarketUpdate)
	Depth(u MarketUpdate)
}

// Pipeline consumes the upstream update stream: persist first, then fan
// out. Storage trouble never stops the stream.
type Pipeline struct {
	store  Persister
	fanout Fanout
	logger *zap.Logger

	processed  atomic.Int64
	heartbeats atomic.Int64
	skipped    atomic.Int64
}

func NewPipeline(store Persister, fanout Fanout, logger *zap.Logger) *Pipeline {
	return &Pipeline{store: store, fanout: fanout, logger: logger}
}

// Run processes updates until the channel closes or the context is
// cancelled.
func (p *Pipeline) Run(ctx context.Context, updates <-chan MarketUpdate) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("feed pipeline stopped",
				zap.Int64("processed", p.processed.Load()))
			return
		case u, ok := <-updates:
			if !ok {
				p.logger.Info("feed channel closed",
					zap.Int64("processed", p.processed.Load()))
				return
			}
			p.handle(ctx, u)
		}
	}
}

func (p *Pipeline) handle(ctx context.Context, u MarketUpdate) {
	if !u.HasInstrument() {
		switch u.Event {
		case EventHeartbeat:
			p.heartbeats.Add(1)
		case EventError:
			p.skipped.Add(1)
			p.logger.Warn("error event from upstream feed",
				zap.ByteString("payload", u.Payload))
		default:
			p.skipped.Add(1)
			p.logger.Debug("skipping update without instrument",
				zap.String("event", u.Event.String()))
		}
		return
	}

	p.store.Put(ctx, u.InstrumentKey, u.Payload, u.ExchangeTS)

	switch u.Event {
	case EventTick:
		p.fanout.Tick(u)
	case EventDepth:
		p.fanout.Depth(u)
	}
	p.processed.Add(1)
}

// Processed returns the count of instrument-scoped updates handled.
func (p *Pipeline) Processed() int64 { return p.processed.Load() }

// Heartbeats returns the count of heartbeat events observed.
func (p *Pipeline) Heartbeats() int64 { return p.heartbeats.Load() }
