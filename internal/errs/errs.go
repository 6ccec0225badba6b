// Package errs contains sentinel errors shared across the repository and
// sync layers so callers can map failures to stable conditions.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSession indicates no active session exists; no remote call was attempted.
	ErrNoSession = errors.New("no active session")

	// ErrRemoteUnavailable indicates both the storage and RPC paths failed.
	ErrRemoteUnavailable = errors.New("remote unavailable")

	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrEmptyResponse indicates the remote reported success but echoed no
	// entity back. Treated as a hard error: without the echo the caller
	// cannot assume the server-side write actually happened.
	ErrEmptyResponse = errors.New("remote returned success without entity")
)

// AuthRequiredError signals a 401-equivalent response from the remote.
// It carries a remediation URL the caller can surface to the user.
type AuthRequiredError struct {
	Message        string
	RemediationURL string
}

func (e *AuthRequiredError) Error() string {
	if e.Message == "" {
		return "authorization required"
	}
	return fmt.Sprintf("authorization required: %s", e.Message)
}

// AsAuthRequired unwraps err to an *AuthRequiredError if one is in the chain.
func AsAuthRequired(err error) (*AuthRequiredError, bool) {
	var ae *AuthRequiredError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}
