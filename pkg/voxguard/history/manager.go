package history

import (
	"sync"
	"time"

	"github.com/himanishpuri/VoxGuard/pkg/utils"
)

// DefaultTTL is how long an untouched session survives.
const DefaultTTL = 2 * time.Hour

// Manager owns one Store per session.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Store
	ttl      time.Duration
	now      func() time.Time
}

// NewManager returns a manager whose sessions expire after ttl of
// inactivity. A ttl of zero or less keeps sessions until dropped.
func NewManager(ttl time.Duration) *Manager {
	return &Manager{
		sessions: make(map[string]*Store),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Create starts a new session and returns its ID.
func (m *Manager) Create() string {
	id := utils.GenerateUUID()
	st := NewStore()
	st.now = m.now
	st.touched = m.now()

	m.mu.Lock()
	m.sessions[id] = st
	m.mu.Unlock()
	return id
}

// Get returns the store for id and marks the session as active.
func (m *Manager) Get(id string) (*Store, bool) {
	m.mu.Lock()
	st, ok := m.sessions[id]
	m.mu.Unlock()
	if ok {
		st.touch(m.now())
	}
	return st, ok
}

// GetOrCreate returns the store for id, creating it when id is a valid but
// unknown session ID.
func (m *Manager) GetOrCreate(id string) (*Store, bool) {
	if st, ok := m.Get(id); ok {
		return st, true
	}
	if !utils.ValidUUID(id) {
		return nil, false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.sessions[id]; ok {
		return st, true
	}
	st := NewStore()
	st.now = m.now
	st.touched = m.now()
	m.sessions[id] = st
	return st, true
}

// Drop ends a session and discards its entries.
func (m *Manager) Drop(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return false
	}
	delete(m.sessions, id)
	return true
}

// Sweep drops sessions idle for longer than the TTL and returns how many.
func (m *Manager) Sweep(now time.Time) int {
	if m.ttl <= 0 {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for id, st := range m.sessions {
		if now.Sub(st.lastTouched()) > m.ttl {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Run sweeps every interval until stop is closed.
func (m *Manager) Run(interval time.Duration, stop <-chan struct{}) {
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-t.C:
			m.Sweep(now)
		}
	}
}
