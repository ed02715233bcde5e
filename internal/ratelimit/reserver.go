// Package ratelimit provides the subscription-capacity collaborator
// consumed by the admission layer. A Reserver hands out abstract
// capacity units per user and feed mode; the admission layer reserves
// before committing a subscription and releases on unsubscribe.
package ratelimit

// Reserver reserves and releases subscription capacity.
type Reserver interface {
	// TrySubscribe reserves n units for the user in the given mode.
	// It returns false, reserving nothing, when capacity is exhausted.
	TrySubscribe(userID, mode string, n int) bool

	// Release returns n units previously reserved. Releasing more than
	// is held must not underflow.
	Release(userID, mode string, n int)
}

// Unlimited is a Reserver that always grants. Selected at startup when
// no upstream capacity service is configured.
type Unlimited struct{}

func (Unlimited) TrySubscribe(string, string, int) bool { return true }

func (Unlimited) Release(string, string, int) {}
