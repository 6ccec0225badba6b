package model

import "time"

type Reward struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	PointCost   int       `json:"point_cost"`
	ImageURL    string    `json:"image_url,omitempty"`
	Available   bool      `json:"available"`
	Quantity    *int      `json:"quantity,omitempty"` // nil = unlimited
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RedemptionStatus is the approval state of a reward redemption.
type RedemptionStatus string

const (
	RedemptionPending  RedemptionStatus = "pending"
	RedemptionApproved RedemptionStatus = "approved"
	RedemptionDenied   RedemptionStatus = "denied"
)

type RewardRedemption struct {
	ID          string           `json:"id"`
	RewardID    string           `json:"reward_id"`
	UserID      string           `json:"user_id"`
	Status      RedemptionStatus `json:"status"`
	RequestedAt time.Time        `json:"requested_at"`
	ResolvedAt  *time.Time       `json:"resolved_at,omitempty"`
	ResolvedBy  string           `json:"resolved_by,omitempty"`
}
