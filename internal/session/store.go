// Package session owns the device's login state. The session is held as
// an immutable snapshot, replaced atomically on every update, and
// persisted encrypted at rest. Absence of a session is a normal state,
// not an error.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mknutsen/chorequest/internal/model"
)

// Store persists the current session to an encrypted file and serves it
// from memory.
type Store struct {
	mu      sync.RWMutex
	path    string
	secret  string
	current *model.Session
	loaded  bool
}

// NewStore creates a session store backed by the file at path, encrypted
// with a key derived from the device secret.
func NewStore(path, secret string) *Store {
	return &Store{path: path, secret: secret}
}

// Load returns the current session, reading it from disk on first use.
// Returns (nil, nil) when no session exists.
func (s *Store) Load() (*model.Session, error) {
	s.mu.RLock()
	if s.loaded {
		defer s.mu.RUnlock()
		return s.snapshot(), nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return s.snapshot(), nil
	}

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.loaded = true
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}

	plain, err := open(s.secret, data)
	if err != nil {
		return nil, fmt.Errorf("open session file: %w", err)
	}

	var sess model.Session
	if err := json.Unmarshal(plain, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}

	s.current = &sess
	s.loaded = true
	return s.snapshot(), nil
}

// Save replaces the current session and persists it.
func (s *Store) Save(sess model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persist(&sess)
}

// Update applies transform to the current session and persists the
// result. Fails with ErrNoSession semantics (nil session passed through)
// avoided: callers must have saved a session first.
func (s *Store) Update(transform func(model.Session) model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return fmt.Errorf("update session: no session to update")
	}
	next := transform(*s.current)
	return s.persist(&next)
}

// Clear destroys the session in memory and on disk. Idempotent.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = nil
	s.loaded = true
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}

// HasValid reports whether a session with an auth token is present.
func (s *Store) HasValid() bool {
	sess, err := s.Load()
	return err == nil && sess != nil && sess.AuthToken != ""
}

// SetLastSynced records the time of the last completed sync.
func (s *Store) SetLastSynced(t time.Time) error {
	return s.Update(func(sess model.Session) model.Session {
		u := t.UTC()
		sess.LastSyncedAt = &u
		return sess
	})
}

// snapshot returns a copy so callers never share the stored value.
// Caller must hold at least a read lock.
func (s *Store) snapshot() *model.Session {
	if s.current == nil {
		return nil
	}
	cp := *s.current
	if s.current.DriveCreds != nil {
		creds := *s.current.DriveCreds
		cp.DriveCreds = &creds
	}
	if s.current.LastSyncedAt != nil {
		t := *s.current.LastSyncedAt
		cp.LastSyncedAt = &t
	}
	return &cp
}

// persist writes the session to disk via a temp-file rename so a crash
// never leaves a torn file. Caller must hold the write lock.
func (s *Store) persist(sess *model.Session) error {
	plain, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	sealed, err := seal(s.secret, plain)
	if err != nil {
		return fmt.Errorf("seal session: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	if err := os.WriteFile(tmp, sealed, 0600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace session file: %w", err)
	}

	s.current = sess
	s.loaded = true
	return nil
}
