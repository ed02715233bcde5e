package snapshot

import "sync/atomic"

// Health is the shared availability record for the hot and warm tiers.
// Every tier attempt writes its outcome here; the archive tier reads it
// to decide whether to engage. One value is shared by reference among
// the tiers, it is not process-global state.
//
// Reads and writes are lock-free; briefly stale values are acceptable.
type Health struct {
	hot  atomic.Bool
	warm atomic.Bool
}

// NewHealth returns a Health with both tiers assumed up. The first
// failed attempt corrects the assumption.
func NewHealth() *Health {
	h := &Health{}
	h.hot.Store(true)
	h.warm.Store(true)
	return h
}

func (h *Health) HotUp() bool  { return h.hot.Load() }
func (h *Health) WarmUp() bool { return h.warm.Load() }

func (h *Health) SetHot(up bool)  { h.hot.Store(up) }
func (h *Health) SetWarm(up bool) { h.warm.Store(up) }
