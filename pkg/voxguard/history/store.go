// Package history keeps per-session lists of classified clips.
package history

import (
	"sync"
	"time"

	"github.com/himanishpuri/VoxGuard/pkg/utils"
)

// Entry is one classified clip kept for the lifetime of a session.
type Entry struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	Prediction  string    `json:"prediction"`
	Probability float64   `json:"probability"`
	Audio       []byte    `json:"-"`
	Waveform    []byte    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store holds entries in arrival order. The zero value is not usable; call
// NewStore.
type Store struct {
	mu      sync.RWMutex
	entries []Entry
	touched time.Time
	now     func() time.Time
}

func NewStore() *Store {
	return &Store{now: time.Now, touched: time.Now()}
}

// Append stores e with a fresh ID and timestamp and returns the stored copy.
func (s *Store) Append(e Entry) Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	e.ID = utils.GenerateUUID()
	e.CreatedAt = s.now().UTC()
	s.entries = append(s.entries, e)
	s.touched = e.CreatedAt
	return e
}

// List returns a copy of all entries, most recent first.
func (s *Store) List() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, len(s.entries))
	for i, e := range s.entries {
		out[len(s.entries)-1-i] = e
	}
	return out
}

// Get returns the entry with id.
func (s *Store) Get(id string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

// Delete removes the entry with id. It reports whether an entry was removed,
// so a second call for the same id returns false and changes nothing.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, e := range s.entries {
		if e.ID == id {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			s.touched = s.now().UTC()
			return true
		}
	}
	return false
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Store) lastTouched() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.touched
}

func (s *Store) touch(t time.Time) {
	s.mu.Lock()
	s.touched = t
	s.mu.Unlock()
}
