package feed

import "time"

// EventType classifies a message from the upstream market feed.
type EventType int

const (
	EventUnknown  EventType = iota
	EventTick               // last-traded-price update
	EventDepth              // order-book update
	EventSnapshot           // full initial feed for an instrument
	EventHeartbeat
	EventError
)

func (t EventType) String() string {
	switch t {
	case EventTick:
		return "tick"
	case EventDepth:
		return "depth"
	case EventSnapshot:
		return "snapshot"
	case EventHeartbeat:
		return "heartbeat"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// MarketUpdate is a single decoded message from the upstream feed.
// InstrumentKey is set for tick/depth/snapshot events and empty for
// heartbeat/error/unknown. Payload is the decoded update as a JSON
// document; it is embedded verbatim in outbound client frames, and a
// non-JSON payload is dropped at fan-out. Values are immutable once
// constructed.
type MarketUpdate struct {
	InstrumentKey string    `json:"instrument_key"`
	Event         EventType `json:"event"`
	Payload       []byte    `json:"payload"`
	ExchangeTS    int64     `json:"exchange_ts"` // exchange timestamp (ms since epoch)
	ReceivedAt    time.Time `json:"received_at"`
}

// HasInstrument reports whether the update carries an instrument-scoped
// payload that should be persisted and fanned out.
func (u MarketUpdate) HasInstrument() bool {
	switch u.Event {
	case EventTick, EventDepth, EventSnapshot:
		return u.InstrumentKey != ""
	default:
		return false
	}
}
