package cache

import (
	"reflect"
	"testing"
	"time"

	"github.com/mknutsen/chorequest/internal/model"
)

func sampleReward() model.Reward {
	qty := 3
	return model.Reward{
		ID:          "reward-1",
		Title:       "Movie Night",
		Description: "Pick the friday movie",
		PointCost:   50,
		ImageURL:    "https://example.com/movie.png",
		Available:   true,
		Quantity:    &qty,
		CreatedAt:   time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		UpdatedAt:   time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestRewardRoundTrip(t *testing.T) {
	db, hub := openTestDB(t)
	s := NewRewardStore(db, hub)

	want := sampleReward()
	if err := s.Upsert(want); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := s.GetByID("reward-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !reflect.DeepEqual(*got, want) {
		t.Errorf("round trip mismatch:\ngot  %+v\nwant %+v", *got, want)
	}
}

func TestRewardUnlimitedQuantity(t *testing.T) {
	db, hub := openTestDB(t)
	s := NewRewardStore(db, hub)

	r := sampleReward()
	r.Quantity = nil
	if err := s.Upsert(r); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, _ := s.GetByID(r.ID)
	if got.Quantity != nil {
		t.Errorf("quantity = %v, want nil for unlimited", *got.Quantity)
	}
}

func TestRewardReplaceAllAndDelete(t *testing.T) {
	db, hub := openTestDB(t)
	s := NewRewardStore(db, hub)

	s.Upsert(sampleReward())

	other := sampleReward()
	other.ID = "reward-2"
	other.Title = "Ice Cream"
	if err := s.ReplaceAll([]model.Reward{other}); err != nil {
		t.Fatalf("replace all: %v", err)
	}

	rewards, _ := s.List()
	if len(rewards) != 1 || rewards[0].ID != "reward-2" {
		t.Errorf("rewards = %+v, want only reward-2", rewards)
	}

	if err := s.Delete("reward-2"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got, _ := s.GetByID("reward-2"); got != nil {
		t.Error("expected nil after delete")
	}
}

func TestRedemptionRoundTrip(t *testing.T) {
	db, hub := openTestDB(t)
	s := NewRedemptionStore(db, hub)

	resolved := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	want := model.RewardRedemption{
		ID:          "red-1",
		RewardID:    "reward-1",
		UserID:      "child-1",
		Status:      model.RedemptionApproved,
		RequestedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		ResolvedAt:  &resolved,
		ResolvedBy:  "parent-1",
	}
	if err := s.Upsert(want); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := s.GetByID("red-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !reflect.DeepEqual(*got, want) {
		t.Errorf("round trip mismatch:\ngot  %+v\nwant %+v", *got, want)
	}
}

func TestRedemptionListForUser(t *testing.T) {
	db, hub := openTestDB(t)
	s := NewRedemptionStore(db, hub)

	s.Upsert(model.RewardRedemption{ID: "red-1", RewardID: "r-1", UserID: "child-1", Status: model.RedemptionPending, RequestedAt: time.Now().UTC()})
	s.Upsert(model.RewardRedemption{ID: "red-2", RewardID: "r-1", UserID: "child-2", Status: model.RedemptionPending, RequestedAt: time.Now().UTC()})

	got, err := s.ListForUser("child-2")
	if err != nil {
		t.Fatalf("list for user: %v", err)
	}
	if len(got) != 1 || got[0].ID != "red-2" {
		t.Errorf("redemptions = %+v, want just red-2", got)
	}
}
