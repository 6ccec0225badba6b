package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mknutsen/chorequest/internal/errs"
	"github.com/mknutsen/chorequest/internal/model"
)

// expirySkew refreshes tokens slightly before they actually expire so an
// in-flight request never carries a token that dies mid-call.
const expirySkew = 30 * time.Second

// CredentialRefresher exchanges a still-valid auth token for fresh
// credentials. Implemented by the RPC client.
type CredentialRefresher interface {
	RefreshDriveCredentials(ctx context.Context, authToken string) (*model.DriveCredentials, error)
	RefreshAuthToken(ctx context.Context, authToken string) (newToken string, tokenVersion int, err error)
}

// TokenManager hands out valid credentials, refreshing them through the
// RPC service when they are missing or expired.
type TokenManager struct {
	store     *Store
	refresher CredentialRefresher
	logger    *slog.Logger
	now       func() time.Time
}

func NewTokenManager(store *Store, refresher CredentialRefresher, logger *slog.Logger) *TokenManager {
	return &TokenManager{
		store:     store,
		refresher: refresher,
		logger:    logger,
		now:       time.Now,
	}
}

// AuthToken returns the session's auth token, rotating it first when its
// JWT expiry is near. Fails with errs.ErrNoSession when logged out.
func (m *TokenManager) AuthToken(ctx context.Context) (string, error) {
	sess, err := m.store.Load()
	if err != nil {
		return "", fmt.Errorf("load session: %w", err)
	}
	if sess == nil || sess.AuthToken == "" {
		return "", errs.ErrNoSession
	}

	if !m.tokenExpiring(sess.AuthToken) {
		return sess.AuthToken, nil
	}

	token, version, err := m.refresher.RefreshAuthToken(ctx, sess.AuthToken)
	if err != nil {
		return "", fmt.Errorf("refresh auth token: %w", err)
	}
	if err := m.store.Update(func(s model.Session) model.Session {
		s.AuthToken = token
		s.TokenVersion = version
		return s
	}); err != nil {
		return "", fmt.Errorf("store rotated token: %w", err)
	}
	m.logger.Debug("auth token rotated", "token_version", version)
	return token, nil
}

// DriveCredentials returns valid storage credentials, or (nil, nil) when
// the drive path is unavailable so the caller can fall back to RPC.
func (m *TokenManager) DriveCredentials(ctx context.Context) (*model.DriveCredentials, error) {
	sess, err := m.store.Load()
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess == nil || sess.AuthToken == "" {
		return nil, errs.ErrNoSession
	}

	if sess.DriveCreds.Valid(m.now().Add(expirySkew)) {
		return sess.DriveCreds, nil
	}

	creds, err := m.refresher.RefreshDriveCredentials(ctx, sess.AuthToken)
	if err != nil {
		// Drive access is opportunistic; a failed refresh just means the
		// caller takes the RPC path this time.
		m.logger.Debug("drive credential refresh failed", "error", err)
		return nil, nil
	}
	if err := m.store.Update(func(s model.Session) model.Session {
		s.DriveCreds = creds
		return s
	}); err != nil {
		return nil, fmt.Errorf("store drive credentials: %w", err)
	}
	return creds, nil
}

// tokenExpiring reports whether the token is a JWT whose exp claim is
// within the skew window. Opaque tokens are treated as non-expiring.
func (m *TokenManager) tokenExpiring(token string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return m.now().Add(expirySkew).After(exp.Time)
}
