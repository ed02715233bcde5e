package subscription

import "sync"

// Registry tracks which client sessions are interested in which
// instruments. It is a derived index: it enforces no limits itself and
// can be rebuilt from the sessions' subscriptions.
type Registry struct {
	mu sync.RWMutex

	// sessionID -> category -> instrument set
	sessions map[string]map[Category]map[string]struct{}

	// instrumentKey -> sessionID set (reverse index for fan-out)
	instruments map[string]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		sessions:    make(map[string]map[Category]map[string]struct{}),
		instruments: make(map[string]map[string]struct{}),
	}
}

// Subscribe idempotently adds the keys to the session's set for the
// category and to each instrument's reverse index. It returns the keys
// that were actually new for this session.
func (r *Registry) Subscribe(sessionID string, keys []string, category Category) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	byCat, ok := r.sessions[sessionID]
	if !ok {
		byCat = make(map[Category]map[string]struct{})
		r.sessions[sessionID] = byCat
	}
	set, ok := byCat[category]
	if !ok {
		set = make(map[string]struct{})
		byCat[category] = set
	}

	var added []string
	for _, key := range keys {
		if _, dup := set[key]; dup {
			continue
		}
		set[key] = struct{}{}
		added = append(added, key)

		watchers, ok := r.instruments[key]
		if !ok {
			watchers = make(map[string]struct{})
			r.instruments[key] = watchers
		}
		watchers[sessionID] = struct{}{}
	}
	return added
}

// Unsubscribe removes the given keys from the session across all
// categories, or every key the session holds when keys is nil.
// It returns what was removed, grouped by category, so callers can
// release reserved capacity by the exact amount.
func (r *Registry) Unsubscribe(sessionID string, keys []string) map[Category][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(sessionID, keys)
}

// RemoveClient drops every subscription the session holds. Safe to call
// more than once; a second call removes nothing.
func (r *Registry) RemoveClient(sessionID string) map[Category][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(sessionID, nil)
}

func (r *Registry) removeLocked(sessionID string, keys []string) map[Category][]string {
	removed := make(map[Category][]string)

	byCat, ok := r.sessions[sessionID]
	if !ok {
		return removed
	}

	for category, set := range byCat {
		targets := keys
		if targets == nil {
			targets = make([]string, 0, len(set))
			for key := range set {
				targets = append(targets, key)
			}
		}
		for _, key := range targets {
			if _, held := set[key]; !held {
				continue
			}
			delete(set, key)
			removed[category] = append(removed[category], key)

			if watchers, ok := r.instruments[key]; ok {
				delete(watchers, sessionID)
				if len(watchers) == 0 {
					delete(r.instruments, key)
				}
			}
		}
		if len(set) == 0 {
			delete(byCat, category)
		}
	}
	if len(byCat) == 0 {
		delete(r.sessions, sessionID)
	}
	return removed
}

// ClientsFor returns the sessions subscribed to an instrument. The
// result is never nil and is safe for the caller to retain.
func (r *Registry) ClientsFor(instrumentKey string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	watchers := r.instruments[instrumentKey]
	out := make([]string, 0, len(watchers))
	for sessionID := range watchers {
		out = append(out, sessionID)
	}
	return out
}

// InstrumentsFor returns the session's subscribed keys for one category.
func (r *Registry) InstrumentsFor(sessionID string, category Category) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.sessions[sessionID][category]
	out := make([]string, 0, len(set))
	for key := range set {
		out = append(out, key)
	}
	return out
}

// HasSubscribers reports whether any session watches the instrument.
func (r *Registry) HasSubscribers(instrumentKey string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.instruments[instrumentKey]) > 0
}

// SessionCount returns the number of sessions holding subscriptions.
func (r *Registry) SessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// InstrumentCount returns the number of instruments with at least one
// watcher.
func (r *Registry) InstrumentCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.instruments)
}
