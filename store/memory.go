package store

import (
	"sync"

	authstate "github.com/safeguard70e/go-authstate"
)

// MemoryStore keeps the session in process memory. It backs tests and
// deployments that explicitly do not want persistence across restarts.
type MemoryStore struct {
	mu        sync.Mutex
	session   *authstate.Session
	callbacks map[int]func(*authstate.Session)
	nextCb    int
}

var _ authstate.SessionStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{callbacks: map[int]func(*authstate.Session){}}
}

func (s *MemoryStore) Save(session *authstate.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = session
	return nil
}

func (s *MemoryStore) Load() (*authstate.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session, nil
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = nil
	return nil
}

func (s *MemoryStore) OnExternalChange(fn func(*authstate.Session)) (cancel func()) {
	if fn == nil {
		return func() {}
	}

	s.mu.Lock()
	id := s.nextCb
	s.nextCb++
	s.callbacks[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.callbacks, id)
		s.mu.Unlock()
	}
}

// EmitExternal simulates a sibling process rewriting the slot, updating the
// held session and firing registered callbacks. Tests use it to exercise
// cross-process consistency without a filesystem.
func (s *MemoryStore) EmitExternal(session *authstate.Session) {
	s.mu.Lock()
	s.session = session
	fns := make([]func(*authstate.Session), 0, len(s.callbacks))
	for _, fn := range s.callbacks {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(session)
	}
}
