package model

import "time"

// Role distinguishes parent accounts (create/verify/approve powers) from
// child accounts (complete chores, redeem rewards).
type Role string

const (
	RoleParent Role = "parent"
	RoleChild  Role = "child"
)

type User struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Role            Role      `json:"role"`
	CanEarnPoints   bool      `json:"can_earn_points"`
	PointsBalance   int       `json:"points_balance"`
	IsPrimaryParent bool      `json:"is_primary_parent"`
	Email           string    `json:"email,omitempty"`
	AuthToken       string    `json:"auth_token,omitempty"`
	TokenVersion    int       `json:"token_version"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
