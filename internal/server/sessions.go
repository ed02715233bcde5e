package server

import "sync"

// Sessions is the registry of currently connected clients, keyed by
// session id.
type Sessions struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

func NewSessions() *Sessions {
	return &Sessions{clients: make(map[string]*Client)}
}

func (s *Sessions) Add(c *Client) {
	s.mu.Lock()
	s.clients[c.ID] = c
	s.mu.Unlock()
}

// AddWithinLimit adds c unless its user already holds limit sessions.
// Check and insert share the lock so two simultaneous dials by one user
// cannot both pass the cap.
func (s *Sessions) AddWithinLimit(c *Client, limit int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, existing := range s.clients {
		if existing.UserID == c.UserID {
			n++
		}
	}
	if n >= limit {
		return false
	}
	s.clients[c.ID] = c
	return true
}

func (s *Sessions) Remove(sessionID string) {
	s.mu.Lock()
	delete(s.clients, sessionID)
	s.mu.Unlock()
}

func (s *Sessions) Get(sessionID string) *Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clients[sessionID]
}

// All returns a snapshot of the connected clients.
func (s *Sessions) All() []*Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, c)
	}
	return out
}

// CountForUser returns how many sessions the user currently holds.
func (s *Sessions) CountForUser(userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, c := range s.clients {
		if c.UserID == userID {
			n++
		}
	}
	return n
}

func (s *Sessions) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}
