package session

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/mknutsen/chorequest/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	return NewStore(filepath.Join(dir, "session.enc"), "test-device-secret")
}

func testSession() model.Session {
	return model.Session{
		UserID:       "user-1",
		FamilyID:     "family-1",
		AuthToken:    "token-abc",
		TokenVersion: 1,
		DriveFolder:  "families/family-1",
		CreatedAt:    time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestLoadAbsent(t *testing.T) {
	s := newTestStore(t)

	sess, err := s.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if sess != nil {
		t.Errorf("expected nil session, got %+v", sess)
	}
	if s.HasValid() {
		t.Error("HasValid should be false with no session")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)

	if err := s.Save(testSession()); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Fresh store forces a disk read and decryption.
	s2 := NewStore(s.path, s.secret)
	got, err := s2.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got == nil {
		t.Fatal("expected session, got nil")
	}
	if got.UserID != "user-1" || got.AuthToken != "token-abc" {
		t.Errorf("got %+v, want saved session", got)
	}
	if !s2.HasValid() {
		t.Error("HasValid should be true after save")
	}
}

func TestLoadWrongSecret(t *testing.T) {
	s := newTestStore(t)
	if err := s.Save(testSession()); err != nil {
		t.Fatalf("save: %v", err)
	}

	bad := NewStore(s.path, "wrong-secret")
	if _, err := bad.Load(); err == nil {
		t.Error("expected decryption error with wrong secret")
	}
}

func TestUpdateReplacesSnapshot(t *testing.T) {
	s := newTestStore(t)
	if err := s.Save(testSession()); err != nil {
		t.Fatalf("save: %v", err)
	}

	first, _ := s.Load()

	err := s.Update(func(sess model.Session) model.Session {
		sess.TokenVersion = 2
		sess.AuthToken = "token-def"
		return sess
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	// The earlier snapshot must be unaffected.
	if first.TokenVersion != 1 {
		t.Errorf("old snapshot mutated: token_version = %d", first.TokenVersion)
	}

	got, _ := s.Load()
	if got.TokenVersion != 2 || got.AuthToken != "token-def" {
		t.Errorf("got %+v, want updated session", got)
	}
}

func TestUpdateWithoutSession(t *testing.T) {
	s := newTestStore(t)
	s.Load()

	err := s.Update(func(sess model.Session) model.Session { return sess })
	if err == nil {
		t.Error("expected error updating absent session")
	}
}

func TestClear(t *testing.T) {
	s := newTestStore(t)
	if err := s.Save(testSession()); err != nil {
		t.Fatalf("save: %v", err)
	}

	if err := s.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	sess, err := s.Load()
	if err != nil {
		t.Fatalf("load after clear: %v", err)
	}
	if sess != nil {
		t.Errorf("expected nil session after clear, got %+v", sess)
	}

	// Clearing again is fine.
	if err := s.Clear(); err != nil {
		t.Fatalf("second clear: %v", err)
	}

	// Gone from disk too.
	s2 := NewStore(s.path, s.secret)
	sess, err = s2.Load()
	if err != nil || sess != nil {
		t.Errorf("fresh load after clear = (%+v, %v), want (nil, nil)", sess, err)
	}
}

func TestSetLastSynced(t *testing.T) {
	s := newTestStore(t)
	if err := s.Save(testSession()); err != nil {
		t.Fatalf("save: %v", err)
	}

	ts := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	if err := s.SetLastSynced(ts); err != nil {
		t.Fatalf("set last synced: %v", err)
	}

	got, _ := s.Load()
	if got.LastSyncedAt == nil || !got.LastSyncedAt.Equal(ts) {
		t.Errorf("last_synced_at = %v, want %v", got.LastSyncedAt, ts)
	}
}
