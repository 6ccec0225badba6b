package chorestatus

import (
	"testing"
	"time"

	"github.com/mknutsen/chorequest/internal/model"
)

var testNow = time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

func pendingChore() model.Chore {
	return model.Chore{
		ID:        "chore-1",
		Title:     "Clean Room",
		Points:    10,
		Status:    model.ChoreStatusPending,
		CreatedAt: testNow.Add(-24 * time.Hour),
	}
}

func TestCompleteFromPending(t *testing.T) {
	c, err := Complete(pendingChore(), "child-1", "proof.jpg", testNow)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if c.Status != model.ChoreStatusCompleted {
		t.Errorf("status = %q, want %q", c.Status, model.ChoreStatusCompleted)
	}
	if c.CompletedBy != "child-1" {
		t.Errorf("completed_by = %q, want %q", c.CompletedBy, "child-1")
	}
	if c.CompletedAt == nil || !c.CompletedAt.Equal(testNow) {
		t.Errorf("completed_at = %v, want %v", c.CompletedAt, testNow)
	}
	if c.PhotoProof != "proof.jpg" {
		t.Errorf("photo_proof = %q, want %q", c.PhotoProof, "proof.jpg")
	}
}

func TestCompleteFromVerifiedFails(t *testing.T) {
	c := pendingChore()
	c.Status = model.ChoreStatusVerified

	if _, err := Complete(c, "child-1", "", testNow); err == nil {
		t.Error("expected error completing a verified chore")
	}
}

func TestVerifyApprove(t *testing.T) {
	c, _ := Complete(pendingChore(), "child-1", "", testNow)

	c, err := Verify(c, "parent-1", true, testNow.Add(time.Hour))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if c.Status != model.ChoreStatusVerified {
		t.Errorf("status = %q, want %q", c.Status, model.ChoreStatusVerified)
	}
	if c.VerifiedBy != "parent-1" {
		t.Errorf("verified_by = %q, want %q", c.VerifiedBy, "parent-1")
	}
}

func TestVerifyRejectClearsEvidence(t *testing.T) {
	c, _ := Complete(pendingChore(), "child-1", "proof.jpg", testNow)

	c, err := Verify(c, "parent-1", false, testNow.Add(time.Hour))
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if c.Status != model.ChoreStatusPending {
		t.Errorf("status = %q, want %q", c.Status, model.ChoreStatusPending)
	}
	if c.CompletedBy != "" || c.CompletedAt != nil {
		t.Errorf("completion evidence not cleared: by=%q at=%v", c.CompletedBy, c.CompletedAt)
	}
	if c.PhotoProof != "" {
		t.Errorf("photo_proof = %q, want empty", c.PhotoProof)
	}
	if c.VerifiedBy != "" || c.VerifiedAt != nil {
		t.Errorf("verification not cleared: by=%q at=%v", c.VerifiedBy, c.VerifiedAt)
	}
}

func TestVerifiedIsTerminal(t *testing.T) {
	for _, to := range []model.ChoreStatus{
		model.ChoreStatusPending,
		model.ChoreStatusInProgress,
		model.ChoreStatusCompleted,
		model.ChoreStatusOverdue,
	} {
		if CanTransition(model.ChoreStatusVerified, to) {
			t.Errorf("verified -> %s should not be allowed", to)
		}
	}
}

func TestMarkOverdue(t *testing.T) {
	due := testNow.Add(-time.Hour)
	c := pendingChore()
	c.DueDate = &due

	c = MarkOverdue(c, testNow)
	if c.Status != model.ChoreStatusOverdue {
		t.Errorf("status = %q, want %q", c.Status, model.ChoreStatusOverdue)
	}
}

func TestMarkOverdueNotDue(t *testing.T) {
	due := testNow.Add(time.Hour)
	c := pendingChore()
	c.DueDate = &due

	c = MarkOverdue(c, testNow)
	if c.Status != model.ChoreStatusPending {
		t.Errorf("status = %q, want %q", c.Status, model.ChoreStatusPending)
	}
}

func TestMarkOverdueLeavesCompleted(t *testing.T) {
	due := testNow.Add(-time.Hour)
	c, _ := Complete(pendingChore(), "child-1", "", testNow)
	c.DueDate = &due

	c = MarkOverdue(c, testNow)
	if c.Status != model.ChoreStatusCompleted {
		t.Errorf("status = %q, want %q", c.Status, model.ChoreStatusCompleted)
	}
}

func TestCompleteFromOverdue(t *testing.T) {
	due := testNow.Add(-time.Hour)
	c := pendingChore()
	c.DueDate = &due
	c = MarkOverdue(c, testNow)

	c, err := Complete(c, "child-1", "", testNow)
	if err != nil {
		t.Fatalf("complete overdue: %v", err)
	}
	if c.Status != model.ChoreStatusCompleted {
		t.Errorf("status = %q, want %q", c.Status, model.ChoreStatusCompleted)
	}
}

func TestStartFromPending(t *testing.T) {
	c, err := Start(pendingChore(), testNow)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if c.Status != model.ChoreStatusInProgress {
		t.Errorf("status = %q, want %q", c.Status, model.ChoreStatusInProgress)
	}
}
