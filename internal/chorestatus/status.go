// Package chorestatus implements the chore lifecycle state machine:
//
//	pending -> in_progress -> completed -> verified
//
// Rejection is the only path back to pending and clears all completion
// evidence. Overdue is reachable from pending or in_progress when the
// due date passes; it still accepts completion.
package chorestatus

import (
	"fmt"
	"time"

	"github.com/mknutsen/chorequest/internal/model"
)

// CanTransition reports whether a chore may move from one status to another.
func CanTransition(from, to model.ChoreStatus) bool {
	switch from {
	case model.ChoreStatusPending:
		return to == model.ChoreStatusInProgress || to == model.ChoreStatusCompleted || to == model.ChoreStatusOverdue
	case model.ChoreStatusInProgress:
		return to == model.ChoreStatusCompleted || to == model.ChoreStatusOverdue
	case model.ChoreStatusOverdue:
		return to == model.ChoreStatusCompleted || to == model.ChoreStatusInProgress
	case model.ChoreStatusCompleted:
		// Verify forward, or reject back to pending.
		return to == model.ChoreStatusVerified || to == model.ChoreStatusPending
	case model.ChoreStatusVerified:
		// Terminal for points purposes.
		return false
	}
	return false
}

// Complete marks the chore completed by the given user, attaching photo
// proof when provided. Returns a new chore value; the input is not mutated.
func Complete(c model.Chore, userID, photoProof string, now time.Time) (model.Chore, error) {
	if !CanTransition(c.Status, model.ChoreStatusCompleted) {
		return c, fmt.Errorf("complete chore %s: invalid transition from %s", c.ID, c.Status)
	}
	c.Status = model.ChoreStatusCompleted
	c.CompletedBy = userID
	t := now.UTC()
	c.CompletedAt = &t
	c.PhotoProof = photoProof
	c.UpdatedAt = t
	return c, nil
}

// Verify approves or rejects a completed chore. Approval moves it to
// verified; rejection returns it to pending and clears completion
// evidence (completed by/at, photo proof, any prior verification).
func Verify(c model.Chore, verifierID string, approved bool, now time.Time) (model.Chore, error) {
	t := now.UTC()
	if approved {
		if !CanTransition(c.Status, model.ChoreStatusVerified) {
			return c, fmt.Errorf("verify chore %s: invalid transition from %s", c.ID, c.Status)
		}
		c.Status = model.ChoreStatusVerified
		c.VerifiedBy = verifierID
		c.VerifiedAt = &t
		c.UpdatedAt = t
		return c, nil
	}

	if !CanTransition(c.Status, model.ChoreStatusPending) {
		return c, fmt.Errorf("reject chore %s: invalid transition from %s", c.ID, c.Status)
	}
	c.Status = model.ChoreStatusPending
	c.CompletedBy = ""
	c.CompletedAt = nil
	c.PhotoProof = ""
	c.VerifiedBy = ""
	c.VerifiedAt = nil
	c.UpdatedAt = t
	return c, nil
}

// MarkOverdue moves a chore to overdue if its due date has passed and it
// is still pending or in progress. Returns the chore unchanged otherwise.
func MarkOverdue(c model.Chore, now time.Time) model.Chore {
	if c.DueDate == nil || !now.After(*c.DueDate) {
		return c
	}
	if c.Status != model.ChoreStatusPending && c.Status != model.ChoreStatusInProgress {
		return c
	}
	c.Status = model.ChoreStatusOverdue
	c.UpdatedAt = now.UTC()
	return c
}

// Start moves a pending or overdue chore to in_progress.
func Start(c model.Chore, now time.Time) (model.Chore, error) {
	if !CanTransition(c.Status, model.ChoreStatusInProgress) {
		return c, fmt.Errorf("start chore %s: invalid transition from %s", c.ID, c.Status)
	}
	c.Status = model.ChoreStatusInProgress
	c.UpdatedAt = now.UTC()
	return c, nil
}
