package model

import "time"

// ChoreStatus is the lifecycle state of a chore.
type ChoreStatus string

const (
	ChoreStatusPending    ChoreStatus = "pending"
	ChoreStatusInProgress ChoreStatus = "in_progress"
	ChoreStatusCompleted  ChoreStatus = "completed"
	ChoreStatusVerified   ChoreStatus = "verified"
	ChoreStatusOverdue    ChoreStatus = "overdue"
)

// Subtask is a single checklist item inside a chore.
type Subtask struct {
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
}

// RecurrenceSpec describes how often a recurring chore repeats.
type RecurrenceSpec struct {
	Frequency string `json:"frequency"` // daily, weekly, monthly
	Interval  int    `json:"interval"`  // every N periods; 0 means 1
}

type Chore struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	AssignedTo  []string        `json:"assigned_to,omitempty"`
	Points      int             `json:"points"`
	DueDate     *time.Time      `json:"due_date,omitempty"`
	Recurrence  *RecurrenceSpec `json:"recurrence,omitempty"`
	Subtasks    []Subtask       `json:"subtasks,omitempty"`
	Status      ChoreStatus     `json:"status"`
	CompletedBy string          `json:"completed_by,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	VerifiedBy  string          `json:"verified_by,omitempty"`
	VerifiedAt  *time.Time      `json:"verified_at,omitempty"`
	PhotoProof  string          `json:"photo_proof,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// AssignedToUser reports whether the chore is assigned to the given user.
func (c *Chore) AssignedToUser(userID string) bool {
	for _, id := range c.AssignedTo {
		if id == userID {
			return true
		}
	}
	return false
}

// ChoreTemplate is the reusable blueprint a recurring chore is spawned
// from. Persisted separately from live chores so the recurrence survives
// completion or deletion of any one instance.
type ChoreTemplate struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	AssignedTo  []string       `json:"assigned_to,omitempty"`
	Points      int            `json:"points"`
	Recurrence  RecurrenceSpec `json:"recurrence"`
	Subtasks    []Subtask      `json:"subtasks,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}
