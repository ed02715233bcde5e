package ratelimit

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// CapacityLedger is an in-process Reserver tracking per-user, per-mode
// usage against fixed per-mode capacities.
type CapacityLedger struct {
	capacities map[string]int // mode -> max units per user
	logger     *zap.Logger

	mu    sync.Mutex
	usage map[string]map[string]int // userID -> mode -> units held

	attempts   atomic.Int64
	rejections atomic.Int64
}

func NewCapacityLedger(capacities map[string]int, logger *zap.Logger) *CapacityLedger {
	caps := make(map[string]int, len(capacities))
	for mode, n := range capacities {
		caps[mode] = n
	}
	return &CapacityLedger{
		capacities: caps,
		logger:     logger,
		usage:      make(map[string]map[string]int),
	}
}

// TrySubscribe reserves n units for the user in the given mode.
// Unknown modes are rejected.
func (l *CapacityLedger) TrySubscribe(userID, mode string, n int) bool {
	l.attempts.Add(1)

	capacity, ok := l.capacities[mode]
	if !ok {
		l.rejections.Add(1)
		l.logger.Warn("capacity reservation for unknown mode",
			zap.String("user", userID), zap.String("mode", mode))
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	byMode, ok := l.usage[userID]
	if !ok {
		byMode = make(map[string]int)
		l.usage[userID] = byMode
	}

	if byMode[mode]+n > capacity {
		l.rejections.Add(1)
		l.logger.Warn("capacity reservation rejected",
			zap.String("user", userID),
			zap.String("mode", mode),
			zap.Int("requested", n),
			zap.Int("held", byMode[mode]),
			zap.Int("capacity", capacity))
		return false
	}

	byMode[mode] += n
	return true
}

// Release returns n units. Over-release clamps to zero.
func (l *CapacityLedger) Release(userID, mode string, n int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	byMode, ok := l.usage[userID]
	if !ok {
		return
	}
	byMode[mode] -= n
	if byMode[mode] <= 0 {
		delete(byMode, mode)
	}
	if len(byMode) == 0 {
		delete(l.usage, userID)
	}
}

// Usage returns the units currently held by a user, per mode.
func (l *CapacityLedger) Usage(userID string) map[string]int {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string]int, len(l.usage[userID]))
	for mode, n := range l.usage[userID] {
		out[mode] = n
	}
	return out
}

// Stats returns cumulative attempt and rejection counts.
func (l *CapacityLedger) Stats() (attempts, rejections int64) {
	return l.attempts.Load(), l.rejections.Load()
}
