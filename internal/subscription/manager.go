package subscription

import (
	"sync"
	"sync/atomic"

	"mdhub/internal/ratelimit"

	"go.uber.org/zap"
)

// LimitTable resolves the caps for a user type and category. The default
// is LimitFor; tests inject smaller tables.
type LimitTable func(UserType, Category) (Limits, bool)

// Manager is the admission-control gate in front of the session
// registry. It owns the per-user subscription counts and the integration
// with the capacity reserver.
//
// The check-then-reserve-then-commit sequence in Subscribe is serialized
// per user: two concurrent requests for the same user cannot both pass
// the limit check and jointly exceed the cap.
type Manager struct {
	reserver ratelimit.Reserver
	limits   LimitTable
	logger   *zap.Logger

	mu        sync.Mutex
	userLocks map[string]*sync.Mutex
	userTypes map[string]UserType
	// userID -> category -> instrument set
	active map[string]map[Category]map[string]struct{}

	total      atomic.Int64
	byCategory map[Category]*atomic.Int64
}

func NewManager(reserver ratelimit.Reserver, logger *zap.Logger) *Manager {
	return NewManagerWithLimits(reserver, logger, LimitFor)
}

func NewManagerWithLimits(reserver ratelimit.Reserver, logger *zap.Logger, limits LimitTable) *Manager {
	byCategory := make(map[Category]*atomic.Int64, len(Categories))
	for _, c := range Categories {
		byCategory[c] = &atomic.Int64{}
	}
	return &Manager{
		reserver:   reserver,
		limits:     limits,
		logger:     logger,
		userLocks:  make(map[string]*sync.Mutex),
		userTypes:  make(map[string]UserType),
		active:     make(map[string]map[Category]map[string]struct{}),
		byCategory: byCategory,
	}
}

// SetUserType records the user's type. Defaults to UserNormal when unset.
func (m *Manager) SetUserType(userID string, t UserType) {
	m.mu.Lock()
	m.userTypes[userID] = t
	m.mu.Unlock()
}

// UserTypeOf returns the recorded type for the user.
func (m *Manager) UserTypeOf(userID string) UserType {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userTypes[userID]
}

// lockFor returns the mutex serializing admission for one user.
func (m *Manager) lockFor(userID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.userLocks[userID]
	if !ok {
		l = &sync.Mutex{}
		m.userLocks[userID] = l
	}
	return l
}

// CanSubscribe reports whether the user may add requested keys in the
// category. The combined limit applies as soon as the user holds any
// active category; otherwise the individual limit applies.
func (m *Manager) CanSubscribe(userID string, category Category, requested int) bool {
	l := m.lockFor(userID)
	l.Lock()
	defer l.Unlock()
	return m.canSubscribeLocked(userID, category, requested)
}

// canSubscribeLocked assumes the caller holds the user's lock.
func (m *Manager) canSubscribeLocked(userID string, category Category, requested int) bool {
	userType := m.UserTypeOf(userID)

	limits, ok := m.limits(userType, category)
	if !ok {
		m.logger.Warn("category not available for user type",
			zap.String("user", userID),
			zap.String("category", string(category)),
			zap.String("user_type", userType.String()))
		return false
	}

	current := m.count(userID, category)
	activeCategories := len(m.activeCategories(userID))

	limit := limits.Individual
	if activeCategories > 0 {
		limit = limits.Combined
	}

	allowed := current+requested <= limit
	if !allowed {
		m.logger.Warn("subscription limit exceeded",
			zap.String("user", userID),
			zap.String("category", string(category)),
			zap.Int("current", current),
			zap.Int("requested", requested),
			zap.Int("limit", limit))
	}
	return allowed
}

// Subscribe validates the request, reserves capacity, and only then
// commits the keys. On reserver refusal nothing is mutated.
func (m *Manager) Subscribe(userID string, category Category, keys []string) bool {
	if len(keys) == 0 {
		return true
	}

	l := m.lockFor(userID)
	l.Lock()
	defer l.Unlock()

	if !m.canSubscribeLocked(userID, category, len(keys)) {
		return false
	}
	if !m.reserver.TrySubscribe(userID, category.Mode(), len(keys)) {
		m.logger.Warn("capacity reservation refused",
			zap.String("user", userID),
			zap.String("category", string(category)),
			zap.Int("requested", len(keys)))
		return false
	}

	m.mu.Lock()
	byCat, ok := m.active[userID]
	if !ok {
		byCat = make(map[Category]map[string]struct{})
		m.active[userID] = byCat
	}
	set, ok := byCat[category]
	if !ok {
		set = make(map[string]struct{})
		byCat[category] = set
	}
	added := 0
	for _, key := range keys {
		if _, dup := set[key]; !dup {
			set[key] = struct{}{}
			added++
		}
	}
	m.mu.Unlock()

	// Duplicate keys consumed no new slots; hand their units back.
	if extra := len(keys) - added; extra > 0 {
		m.reserver.Release(userID, category.Mode(), extra)
	}

	m.total.Add(int64(added))
	m.byCategory[category].Add(int64(added))

	m.logger.Info("subscribed",
		zap.String("user", userID),
		zap.String("category", string(category)),
		zap.Int("instruments", added))
	return true
}

// Unsubscribe removes the given keys for the user and category and
// releases capacity by the exact count removed. Redundant calls are
// no-ops.
func (m *Manager) Unsubscribe(userID string, category Category, keys []string) int {
	l := m.lockFor(userID)
	l.Lock()
	defer l.Unlock()

	m.mu.Lock()
	set := m.active[userID][category]
	removed := 0
	for _, key := range keys {
		if _, held := set[key]; held {
			delete(set, key)
			removed++
		}
	}
	m.pruneLocked(userID, category)
	m.mu.Unlock()

	if removed == 0 {
		return 0
	}

	m.reserver.Release(userID, category.Mode(), removed)
	m.total.Add(int64(-removed))
	m.byCategory[category].Add(int64(-removed))

	m.logger.Info("unsubscribed",
		zap.String("user", userID),
		zap.String("category", string(category)),
		zap.Int("instruments", removed))
	return removed
}

// UnsubscribeCategory removes every key the user holds in one category.
func (m *Manager) UnsubscribeCategory(userID string, category Category) int {
	return m.Unsubscribe(userID, category, m.SubscribedKeys(userID, category))
}

// UnsubscribeAll removes everything the user holds across categories,
// releasing capacity per category. Returns removed counts by category.
func (m *Manager) UnsubscribeAll(userID string) map[Category]int {
	removed := make(map[Category]int)
	for _, category := range Categories {
		if n := m.UnsubscribeCategory(userID, category); n > 0 {
			removed[category] = n
		}
	}
	return removed
}

func (m *Manager) pruneLocked(userID string, category Category) {
	byCat, ok := m.active[userID]
	if !ok {
		return
	}
	if set, ok := byCat[category]; ok && len(set) == 0 {
		delete(byCat, category)
	}
	if len(byCat) == 0 {
		delete(m.active, userID)
	}
}

func (m *Manager) count(userID string, category Category) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active[userID][category])
}

func (m *Manager) activeCategories(userID string) []Category {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Category
	for category, set := range m.active[userID] {
		if len(set) > 0 {
			out = append(out, category)
		}
	}
	return out
}

// CurrentCount returns the user's held key count for one category.
func (m *Manager) CurrentCount(userID string, category Category) int {
	return m.count(userID, category)
}

// ActiveCategories returns the categories in which the user holds keys.
func (m *Manager) ActiveCategories(userID string) []Category {
	return m.activeCategories(userID)
}

// SubscribedKeys returns a copy of the user's keys in one category.
func (m *Manager) SubscribedKeys(userID string, category Category) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := m.active[userID][category]
	out := make([]string, 0, len(set))
	for key := range set {
		out = append(out, key)
	}
	return out
}

// RemainingCapacity returns how many more keys the user may add in the
// category under the currently applicable limit.
func (m *Manager) RemainingCapacity(userID string, category Category) int {
	l := m.lockFor(userID)
	l.Lock()
	defer l.Unlock()

	limits, ok := m.limits(m.UserTypeOf(userID), category)
	if !ok {
		return 0
	}
	limit := limits.Individual
	if len(m.activeCategories(userID)) > 0 {
		limit = limits.Combined
	}
	if remaining := limit - m.count(userID, category); remaining > 0 {
		return remaining
	}
	return 0
}

// Stats reports the running totals, overall and per category.
func (m *Manager) Stats() (total int64, byCategory map[Category]int64) {
	byCategory = make(map[Category]int64, len(m.byCategory))
	for category, counter := range m.byCategory {
		byCategory[category] = counter.Load()
	}
	return m.total.Load(), byCategory
}
