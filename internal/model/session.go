package model

import "time"

// DriveCredentials are the scoped storage credentials issued by the
// backend for direct access to the family drive. They expire and are
// refreshed through the RPC service.
type DriveCredentials struct {
	AccessKeyID     string    `json:"access_key_id"`
	SecretAccessKey string    `json:"secret_access_key"`
	SessionToken    string    `json:"session_token,omitempty"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// Valid reports whether the credentials are present and unexpired.
func (c *DriveCredentials) Valid(now time.Time) bool {
	return c != nil && c.AccessKeyID != "" && c.SecretAccessKey != "" && now.Before(c.ExpiresAt)
}

// Session is the device's current login state. Treated as an immutable
// snapshot: updates replace the whole value, never mutate it in place.
type Session struct {
	UserID       string            `json:"user_id"`
	FamilyID     string            `json:"family_id"`
	AuthToken    string            `json:"auth_token"`
	TokenVersion int               `json:"token_version"`
	DriveFolder  string            `json:"drive_folder"`
	DriveCreds   *DriveCredentials `json:"drive_creds,omitempty"`
	LastSyncedAt *time.Time        `json:"last_synced_at,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}
