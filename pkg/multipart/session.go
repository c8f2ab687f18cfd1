// Package multipart drives chunked uploads across requests.
//
// Adapter instances live for one request, so everything a backend needs to
// continue an upload is kept here, in a session store owned by the
// orchestrator, and handed back to a fresh adapter on every call.
package multipart

import (
	"sort"
	"sync"
	"time"

	"github.com/marmos91/dittovfs/pkg/provider"
)

// Session is one in-flight chunked upload.
type Session struct {
	ProviderID string
	Upload     *provider.UploadSession

	// parts holds the latest Part per part number.
	parts map[int]provider.Part

	// mu guards parts and LastActivity.
	mu sync.Mutex

	// upload serializes adapter calls on Upload. Adapters update
	// Upload.State while a call runs, so one session never has two calls in
	// flight.
	upload sync.Mutex

	CreatedAt    time.Time
	LastActivity time.Time
}

// ID returns the upload id.
func (s *Session) ID() string {
	return s.Upload.UploadID
}

// Parts returns the recorded parts sorted by part number.
func (s *Session) Parts() []provider.Part {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedParts(s.parts)
}

func (s *Session) record(p provider.Part, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.parts[p.PartNumber] = p
	s.LastActivity = at
}

func sortedParts(m map[int]provider.Part) []provider.Part {
	out := make([]provider.Part, 0, len(m))
	for _, p := range m {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PartNumber < out[j].PartNumber })
	return out
}

// SessionStore keeps sessions by upload id.
type SessionStore interface {
	Put(s *Session)
	Get(uploadID string) (*Session, bool)
	Delete(uploadID string)

	// IdleSince returns the sessions with no activity after cutoff.
	IdleSince(cutoff time.Time) []*Session
	Len() int
}

// MemorySessionStore is a process-local SessionStore.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemorySessionStore creates an empty store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]*Session)}
}

func (m *MemorySessionStore) Put(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID()] = s
}

func (m *MemorySessionStore) Get(uploadID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[uploadID]
	return s, ok
}

func (m *MemorySessionStore) Delete(uploadID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, uploadID)
}

func (m *MemorySessionStore) IdleSince(cutoff time.Time) []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Session
	for _, s := range m.sessions {
		s.mu.Lock()
		idle := !s.LastActivity.After(cutoff)
		s.mu.Unlock()
		if idle {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

func (m *MemorySessionStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
