// Package store provides SessionStore implementations: a durable file-backed
// slot that survives restarts and notifies sibling processes, and an
// in-memory slot used for tests and as the degradation target when the
// filesystem is unusable.
package store

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	authstate "github.com/safeguard70e/go-authstate"
)

// FileStore persists the session as a JSON document under a fixed key in a
// directory, the process analogue of a browser's localStorage slot. Writes
// go through a temp file plus rename so readers never observe a torn write.
//
// Any filesystem fault flips the store into in-memory mode: the session
// stays usable for the life of the process, it just stops surviving
// restarts. Faults are logged, never surfaced.
type FileStore struct {
	dir    string
	key    string
	logger authstate.Logger

	mu        sync.Mutex
	degraded  bool
	memory    *authstate.Session
	lastState string

	watcher   *fsnotify.Watcher
	watchOnce sync.Once
	callbacks map[int]func(*authstate.Session)
	nextCb    int
	done      chan struct{}
}

var _ authstate.SessionStore = (*FileStore)(nil)

// NewFileStore opens (creating if needed) the storage directory. A directory
// that cannot be created yields a store that is already degraded rather than
// an error; the caller keeps working without persistence.
func NewFileStore(dir, key string, logger authstate.Logger) *FileStore {
	if logger == nil {
		logger = nopLogger{}
	}
	if key == "" {
		key = authstate.DefaultStorageKey
	}

	s := &FileStore{
		dir:       dir,
		key:       key,
		logger:    logger,
		callbacks: map[int]func(*authstate.Session){},
		done:      make(chan struct{}),
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		logger.Warn("session storage unavailable, using in-memory slot", "dir", dir, "error", err)
		s.degraded = true
	}

	return s
}

func (s *FileStore) path() string {
	return filepath.Join(s.dir, s.key+".json")
}

// Save persists the session, overwriting any prior value.
func (s *FileStore) Save(session *authstate.Session) error {
	if session == nil {
		return s.Clear()
	}

	data, err := json.Marshal(session)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *session
	s.memory = &stored
	if s.degraded {
		return nil
	}

	if err := s.writeLocked(data); err != nil {
		s.logger.Warn("session write failed, degrading to in-memory slot", "error", err)
		s.degraded = true
		return nil
	}

	s.lastState = string(data)
	return nil
}

func (s *FileStore) writeLocked(data []byte) error {
	tmp, err := os.CreateTemp(s.dir, s.key+".*.tmp")
	if err != nil {
		return err
	}

	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}

	return os.Rename(name, s.path())
}

// Load returns the last saved session, or nil when the slot is empty.
// Corrupt data clears the slot and reports absence; it never errors out to
// the caller.
func (s *FileStore) Load() (*authstate.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.degraded {
		return s.memoryCopyLocked(), nil
	}

	data, err := os.ReadFile(s.path())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		s.logger.Warn("session read failed, degrading to in-memory slot", "error", err)
		s.degraded = true
		return s.memoryCopyLocked(), nil
	}

	session := &authstate.Session{}
	if err := json.Unmarshal(data, session); err != nil {
		s.logger.Warn("clearing corrupt session slot", "error", err)
		s.clearLocked()
		return nil, nil
	}

	s.memory = session
	s.lastState = string(data)
	return session, nil
}

// memoryCopyLocked returns a caller-owned copy of the in-memory slot so
// mutations on the returned session never leak back into store state.
func (s *FileStore) memoryCopyLocked() *authstate.Session {
	if s.memory == nil {
		return nil
	}
	copied := *s.memory
	return &copied
}

// Clear removes the persisted session. Idempotent.
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
	return nil
}

func (s *FileStore) clearLocked() {
	s.memory = nil
	s.lastState = ""

	if s.degraded {
		return
	}

	if err := os.Remove(s.path()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("session clear failed, degrading to in-memory slot", "error", err)
		s.degraded = true
	}
}

// OnExternalChange starts (once) a filesystem watcher on the slot and
// registers fn for changes made by other processes. Self-writes are
// suppressed by comparing against the content this process last wrote.
// Notifications are best-effort: when the watcher cannot be created the
// registration is a no-op, which the contract allows.
func (s *FileStore) OnExternalChange(fn func(*authstate.Session)) (cancel func()) {
	if fn == nil {
		return func() {}
	}

	s.watchOnce.Do(s.startWatcher)

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

func (s *FileStore) startWatcher() {
	s.mu.Lock()
	degraded := s.degraded
	s.mu.Unlock()
	if degraded {
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.logger.Warn("session change watcher unavailable", "error", err)
		return
	}

	if err := watcher.Add(s.dir); err != nil {
		s.logger.Warn("session change watcher unavailable", "dir", s.dir, "error", err)
		watcher.Close()
		return
	}

	s.watcher = watcher
	go s.watchLoop(watcher)
}

func (s *FileStore) watchLoop(watcher *fsnotify.Watcher) {
	target := s.path()

	for {
		select {
		case <-s.done:
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Name != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			s.dispatchChange()
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("session change watcher error", "error", err)
		}
	}
}

func (s *FileStore) dispatchChange() {
	data, err := os.ReadFile(s.path())
	current := ""
	if err == nil {
		current = string(data)
	} else if !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("session change read failed", "error", err)
		return
	}

	s.mu.Lock()
	if current == s.lastState {
		// Our own write echoing back through the watcher.
		s.mu.Unlock()
		return
	}
	s.lastState = current

	var session *authstate.Session
	if current != "" {
		session = &authstate.Session{}
		if err := json.Unmarshal([]byte(current), session); err != nil {
			s.logger.Warn("ignoring corrupt external session change", "error", err)
			s.mu.Unlock()
			return
		}
	}
	s.memory = session

	fns := make([]func(*authstate.Session), 0, len(s.callbacks))
	for _, fn := range s.callbacks {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(session)
	}
}

// Close stops the change watcher. The store remains usable for Save/Load.
func (s *FileStore) Close() error {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
