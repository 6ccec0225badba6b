package cache

import (
	"testing"
	"time"

	"github.com/mknutsen/chorequest/internal/model"
)

func sampleLog(id string, ts time.Time) model.ActivityLog {
	return model.ActivityLog{
		ID:         id,
		ActionType: model.ActionChoreCompleted,
		ActorID:    "child-1",
		ActorName:  "Kid",
		Timestamp:  ts,
		Details:    map[string]any{"chore_id": "chore-1", "points": float64(10)},
	}
}

func TestActivityInsertAndList(t *testing.T) {
	db, hub := openTestDB(t)
	s := NewActivityStore(db, hub)

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	if err := s.Insert(sampleLog("log-1", now)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.Insert(sampleLog("log-2", now.Add(time.Hour))); err != nil {
		t.Fatalf("insert: %v", err)
	}

	logs, err := s.List(0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("len = %d, want 2", len(logs))
	}
	// Newest first.
	if logs[0].ID != "log-2" {
		t.Errorf("first = %q, want log-2", logs[0].ID)
	}
	if logs[1].Details["chore_id"] != "chore-1" {
		t.Errorf("details = %+v, want chore_id chore-1", logs[1].Details)
	}
}

func TestActivityInsertBatchIsIdempotent(t *testing.T) {
	db, hub := openTestDB(t)
	s := NewActivityStore(db, hub)

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	batch := []model.ActivityLog{sampleLog("log-1", now), sampleLog("log-2", now)}

	if err := s.InsertBatch(batch); err != nil {
		t.Fatalf("first batch: %v", err)
	}
	// Re-inserting the same batch must not duplicate.
	if err := s.InsertBatch(batch); err != nil {
		t.Fatalf("second batch: %v", err)
	}

	logs, _ := s.List(0)
	if len(logs) != 2 {
		t.Errorf("len = %d, want 2", len(logs))
	}
}

func TestActivityListForUser(t *testing.T) {
	db, hub := openTestDB(t)
	s := NewActivityStore(db, hub)

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	mine := sampleLog("log-1", now)
	other := sampleLog("log-2", now)
	other.ActorID = "child-2"
	target := sampleLog("log-3", now)
	target.ActorID = "parent-1"
	target.TargetUserID = "child-1"

	s.Insert(mine)
	s.Insert(other)
	s.Insert(target)

	logs, err := s.ListForUser("child-1", 0)
	if err != nil {
		t.Fatalf("list for user: %v", err)
	}
	if len(logs) != 2 {
		t.Errorf("len = %d, want 2 (actor or target)", len(logs))
	}
}

func TestActivityPruneBefore(t *testing.T) {
	db, hub := openTestDB(t)
	s := NewActivityStore(db, hub)

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	s.Insert(sampleLog("old-1", now.AddDate(0, -2, 0)))
	s.Insert(sampleLog("old-2", now.AddDate(0, -1, -5)))
	s.Insert(sampleLog("new-1", now))

	n, err := s.PruneBefore(now.AddDate(0, -1, 0))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 2 {
		t.Errorf("pruned = %d, want 2", n)
	}

	logs, _ := s.List(0)
	if len(logs) != 1 || logs[0].ID != "new-1" {
		t.Errorf("logs = %+v, want just new-1", logs)
	}
}
