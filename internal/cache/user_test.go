package cache

import (
	"testing"
	"time"

	"github.com/mknutsen/chorequest/internal/model"
)

func sampleUser(id, name string) model.User {
	return model.User{
		ID:            id,
		Name:          name,
		Role:          model.RoleChild,
		CanEarnPoints: true,
		PointsBalance: 30,
		CreatedAt:     time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		UpdatedAt:     time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestUserCRUD(t *testing.T) {
	db, hub := openTestDB(t)
	s := NewUserStore(db, hub)

	u := sampleUser("user-1", "Ada")
	u.Role = model.RoleParent
	u.IsPrimaryParent = true
	u.Email = "ada@example.com"
	if err := s.Upsert(u); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := s.GetByID("user-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Ada" || !got.IsPrimaryParent {
		t.Errorf("got %+v, want primary parent Ada", got)
	}

	pp, err := s.PrimaryParent()
	if err != nil {
		t.Fatalf("primary parent: %v", err)
	}
	if pp == nil || pp.ID != "user-1" {
		t.Errorf("primary parent = %+v, want user-1", pp)
	}

	if err := s.Delete("user-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got, _ := s.GetByID("user-1"); got != nil {
		t.Error("expected nil after delete")
	}
}

func TestReplaceAllKeepingPreservesCurrentUser(t *testing.T) {
	db, hub := openTestDB(t)
	s := NewUserStore(db, hub)

	s.Upsert(sampleUser("me", "Me"))
	s.Upsert(sampleUser("sibling", "Sibling"))

	// Remote snapshot is missing both local users.
	fresh := []model.User{sampleUser("new-kid", "New Kid")}
	if err := s.ReplaceAllKeeping(fresh, "me"); err != nil {
		t.Fatalf("replace all keeping: %v", err)
	}

	if got, _ := s.GetByID("me"); got == nil {
		t.Error("current user was dropped by sync")
	}
	if got, _ := s.GetByID("sibling"); got != nil {
		t.Error("stale user should have been dropped")
	}
	if got, _ := s.GetByID("new-kid"); got == nil {
		t.Error("fresh user missing")
	}
}

func TestReplaceAllKeepingUpdatesCurrentUser(t *testing.T) {
	db, hub := openTestDB(t)
	s := NewUserStore(db, hub)

	s.Upsert(sampleUser("me", "Me"))

	// Snapshot includes the current user with a new balance.
	me := sampleUser("me", "Me")
	me.PointsBalance = 99
	if err := s.ReplaceAllKeeping([]model.User{me}, "me"); err != nil {
		t.Fatalf("replace all keeping: %v", err)
	}

	got, _ := s.GetByID("me")
	if got.PointsBalance != 99 {
		t.Errorf("points_balance = %d, want 99", got.PointsBalance)
	}
}
