package server

import (
	"encoding/json"
	"sync/atomic"

	"mdhub/internal/feed"
	"mdhub/internal/subscription"

	"go.uber.org/zap"
)

// Broadcaster fans market updates out to the sessions interested in the
// update's instrument. Each message is serialized once; per-session send
// failures are counted and isolated so one bad client never aborts the
// remaining sends.
type Broadcaster struct {
	sessions *Sessions
	registry *subscription.Registry
	logger   *zap.Logger

	ticks  atomic.Int64
	depths atomic.Int64
	errors atomic.Int64
}

func NewBroadcaster(sessions *Sessions, registry *subscription.Registry, logger *zap.Logger) *Broadcaster {
	return &Broadcaster{
		sessions: sessions,
		registry: registry,
		logger:   logger,
	}
}

// Tick fans out a last-traded-price update.
func (b *Broadcaster) Tick(u feed.MarketUpdate) {
	if b.fanOut(msgTick, u) {
		b.ticks.Add(1)
	}
}

// Depth fans out an order-book update.
func (b *Broadcaster) Depth(u feed.MarketUpdate) {
	if b.fanOut(msgDepth, u) {
		b.depths.Add(1)
	}
}

// fanOut reports whether anything was sent. An instrument nobody watches
// is a no-op and leaves every counter untouched.
func (b *Broadcaster) fanOut(msgType string, u feed.MarketUpdate) bool {
	interested := b.registry.ClientsFor(u.InstrumentKey)
	if len(interested) == 0 {
		return false
	}

	msg, err := json.Marshal(envelope{Type: msgType, Data: u.Payload})
	if err != nil {
		b.errors.Add(1)
		b.logger.Warn("failed to encode broadcast",
			zap.String("instrument", u.InstrumentKey), zap.Error(err))
		return false
	}

	for _, sessionID := range interested {
		client := b.sessions.Get(sessionID)
		if client == nil {
			continue
		}
		if !client.Send(msg) {
			b.errors.Add(1)
		}
	}
	return true
}

// BroadcastAll sends to every connected session regardless of
// subscriptions. Used for system and admin notices.
func (b *Broadcaster) BroadcastAll(msgType string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		b.errors.Add(1)
		b.logger.Warn("failed to encode broadcast", zap.Error(err))
		return
	}
	msg, err := json.Marshal(envelope{Type: msgType, Data: raw})
	if err != nil {
		b.errors.Add(1)
		return
	}

	for _, client := range b.sessions.All() {
		if !client.Send(msg) {
			b.errors.Add(1)
		}
	}
}

// Stats returns the running broadcast counters.
func (b *Broadcaster) Stats() map[string]int64 {
	return map[string]int64{
		"ticks_broadcast":   b.ticks.Load(),
		"depths_broadcast":  b.depths.Load(),
		"errors":            b.errors.Load(),
		"connected_clients": int64(b.sessions.Count()),
	}
}
