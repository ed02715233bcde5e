package snapshot

import (
	"context"
	"errors"
	"sync"
	"time"

	"mdhub/pkg/storage/postgres"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SnapshotDB is the capability the warm tier needs from the relational
// store. Implemented by pkg/storage/postgres.
type SnapshotDB interface {
	UpsertSnapshot(ctx context.Context, record *postgres.SnapshotRecord) error
	GetSnapshot(ctx context.Context, instrumentKey string) (*postgres.SnapshotRecord, error)
}

// WarmTier upserts the single authoritative row per instrument. Upserts
// are throttled per key to bound write amplification. While the hot tier
// is down the throttle is skipped and every update goes through, so no
// data is lost.
type WarmTier struct {
	db          SnapshotDB
	health      *Health
	minInterval time.Duration
	logger      *zap.Logger
	now         func() time.Time

	mu        sync.Mutex
	lastWrite map[string]time.Time
}

func NewWarmTier(db SnapshotDB, health *Health, minInterval time.Duration, logger *zap.Logger) *WarmTier {
	return &WarmTier{
		db:          db,
		health:      health,
		minInterval: minInterval,
		logger:      logger,
		now:         time.Now,
		lastWrite:   make(map[string]time.Time),
	}
}

func (t *WarmTier) Write(ctx context.Context, key string, payload []byte, ts int64) error {
	if t.health.HotUp() && !t.due(key) {
		return nil
	}

	err := t.db.UpsertSnapshot(ctx, &postgres.SnapshotRecord{
		InstrumentKey: key,
		Payload:       payload,
		Timestamp:     ts,
	})
	if err != nil {
		t.health.SetWarm(false)
		return err
	}
	t.health.SetWarm(true)

	t.mu.Lock()
	t.lastWrite[key] = t.now()
	t.mu.Unlock()
	return nil
}

// due reports whether the per-key throttle window has elapsed.
func (t *WarmTier) due(key string) bool {
	if t.minInterval <= 0 {
		return true
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	last, ok := t.lastWrite[key]
	return !ok || t.now().Sub(last) >= t.minInterval
}

func (t *WarmTier) Read(ctx context.Context, key string) ([]byte, error) {
	record, err := t.db.GetSnapshot(ctx, key)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		t.health.SetWarm(true)
		return nil, nil
	}
	if err != nil {
		t.health.SetWarm(false)
		return nil, err
	}
	t.health.SetWarm(true)
	return record.Payload, nil
}

// Tier binds the warm tier into the cascade.
func (t *WarmTier) Tier() Tier {
	return Tier{Name: "warm", Write: t.Write, Read: t.Read, Healthy: t.health.WarmUp}
}
