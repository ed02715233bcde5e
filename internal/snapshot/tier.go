package snapshot

import "context"

// Tier is one layer of the persistence cascade. The cascade order is the
// order of the slice handed to NewTieredStore; adding, removing or
// reordering tiers is a construction-time change only.
type Tier struct {
	Name string

	// Write persists the latest payload for an instrument. A tier flips
	// its own health flag as a side effect of the attempt.
	Write func(ctx context.Context, key string, payload []byte, ts int64) error

	// Read returns the stored payload or (nil, nil) on a miss. Nil for
	// tiers that are not part of the recovery read path.
	Read func(ctx context.Context, key string) ([]byte, error)

	// Healthy reports the tier's last known availability.
	Healthy func() bool
}
