package snapshot

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const hotKeyPrefix = "md:"

// KV is the capability the hot tier needs from its backing cache.
// Implemented by pkg/storage/redis.
type KV interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, bool, error)
}

// HotTier keeps the latest payload per instrument in a TTL'd cache.
// Entries expire at the next trading-session cutoff, not after a fixed
// age.
type HotTier struct {
	kv     KV
	health *Health
	cutoff string
	loc    *time.Location
	logger *zap.Logger
	now    func() time.Time
}

func NewHotTier(kv KV, health *Health, cutoff string, zone string, logger *zap.Logger) (*HotTier, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("invalid cutoff zone %q: %w", zone, err)
	}
	if _, err := CutoffTTL(time.Now(), cutoff, loc); err != nil {
		return nil, err
	}
	return &HotTier{
		kv:     kv,
		health: health,
		cutoff: cutoff,
		loc:    loc,
		logger: logger,
		now:    time.Now,
	}, nil
}

func (t *HotTier) Write(ctx context.Context, key string, payload []byte, _ int64) error {
	ttl, err := CutoffTTL(t.now(), t.cutoff, t.loc)
	if err != nil {
		return err
	}

	encoded := base64.StdEncoding.EncodeToString(payload)
	if err := t.kv.Set(ctx, hotKeyPrefix+key, encoded, ttl); err != nil {
		t.health.SetHot(false)
		return err
	}
	t.health.SetHot(true)
	return nil
}

func (t *HotTier) Read(ctx context.Context, key string) ([]byte, error) {
	val, ok, err := t.kv.Get(ctx, hotKeyPrefix+key)
	if err != nil {
		t.health.SetHot(false)
		return nil, err
	}
	t.health.SetHot(true)
	if !ok {
		return nil, nil
	}

	payload, err := base64.StdEncoding.DecodeString(val)
	if err != nil {
		return nil, fmt.Errorf("corrupt cached snapshot for %s: %w", key, err)
	}
	return payload, nil
}

// Tier binds the hot tier into the cascade.
func (t *HotTier) Tier() Tier {
	return Tier{Name: "hot", Write: t.Write, Read: t.Read, Healthy: t.health.HotUp}
}
