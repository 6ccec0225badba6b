package model

import "time"

// ActionType classifies an activity log entry.
type ActionType string

const (
	ActionChoreCreated       ActionType = "chore_created"
	ActionChoreCompleted     ActionType = "chore_completed"
	ActionChoreVerified      ActionType = "chore_verified"
	ActionChoreRejected      ActionType = "chore_rejected"
	ActionChoreDeleted       ActionType = "chore_deleted"
	ActionRewardRedeemed     ActionType = "reward_redeemed"
	ActionRedemptionResolved ActionType = "redemption_resolved"
	ActionPointsAdjusted     ActionType = "points_adjusted"
	ActionUserJoined         ActionType = "user_joined"
)

// ActivityLog is an append-mostly audit record. Entries are inserted and
// pruned by cutoff date, never updated in place.
type ActivityLog struct {
	ID             string         `json:"id"`
	ActionType     ActionType     `json:"action_type"`
	ActorID        string         `json:"actor_id"`
	ActorName      string         `json:"actor_name,omitempty"`
	TargetUserID   string         `json:"target_user_id,omitempty"`
	TargetUserName string         `json:"target_user_name,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
	Details        map[string]any `json:"details,omitempty"`
}

// Valid reports whether the entry carries the fields sync requires.
// Invalid entries are dropped during sync rather than stored partially.
// The id is required too: log sync appends keyed on id, and an id
// minted locally would re-duplicate the entry on every cycle.
func (l *ActivityLog) Valid() bool {
	return l.ActionType != "" && l.ID != ""
}
