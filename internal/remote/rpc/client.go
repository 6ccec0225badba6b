// Package rpc is the fallback path to the family backend: named
// operations over JSON POST, used whenever direct drive access is
// unavailable. Every response carries a {success, error, message, data}
// envelope; a 401 is surfaced as errs.AuthRequiredError with a
// remediation URL.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/mknutsen/chorequest/internal/errs"
	"github.com/mknutsen/chorequest/internal/model"
)

// Config holds RPC client configuration.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries uint64
}

// Client invokes named operations against the backend RPC service.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 2
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

type request struct {
	Action  string `json:"action"`
	Payload any    `json:"payload,omitempty"`
}

// envelope is the wire shape of every RPC response.
type envelope struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	AuthURL string          `json:"auth_url,omitempty"`
}

// call performs one named operation. Transient failures (network errors,
// 5xx) are retried with backoff; 401 maps to AuthRequiredError.
func (c *Client) call(ctx context.Context, authToken, action string, payload any) (json.RawMessage, error) {
	body, err := json.Marshal(request{Action: action, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", action, err)
	}

	var env envelope
	backoff := retry.WithMaxRetries(c.cfg.MaxRetries, retry.NewFibonacci(250*time.Millisecond))

	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if authToken != "" {
			req.Header.Set("Authorization", "Bearer "+authToken)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("%s: %w", action, err))
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			// Decode best-effort for the remediation URL.
			var unauthEnv envelope
			_ = json.NewDecoder(resp.Body).Decode(&unauthEnv)
			return &errs.AuthRequiredError{
				Message:        unauthEnv.Message,
				RemediationURL: c.remediationURL(unauthEnv.AuthURL),
			}
		case resp.StatusCode >= 500:
			return retry.RetryableError(fmt.Errorf("%s: server status %d", action, resp.StatusCode))
		case resp.StatusCode != http.StatusOK:
			return fmt.Errorf("%s: status %d", action, resp.StatusCode)
		}

		env = envelope{}
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
			return fmt.Errorf("decode %s response: %w", action, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !env.Success {
		if isAuthError(env.Error) {
			return nil, &errs.AuthRequiredError{
				Message:        firstNonEmpty(env.Message, env.Error),
				RemediationURL: c.remediationURL(env.AuthURL),
			}
		}
		return nil, fmt.Errorf("%s: %s", action, firstNonEmpty(env.Error, env.Message, "unknown error"))
	}
	return env.Data, nil
}

// callDecode runs call and decodes the data payload into out, requiring
// the remote to echo the entity back.
func (c *Client) callDecode(ctx context.Context, authToken, action string, payload, out any) error {
	data, err := c.call(ctx, authToken, action, payload)
	if err != nil {
		return err
	}
	if len(data) == 0 || string(data) == "null" {
		return fmt.Errorf("%s: %w", action, errs.ErrEmptyResponse)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s data: %w", action, err)
	}
	return nil
}

func (c *Client) remediationURL(fromServer string) string {
	if fromServer != "" {
		return fromServer
	}
	return strings.TrimRight(c.cfg.BaseURL, "/") + "/auth"
}

func isAuthError(msg string) bool {
	m := strings.ToLower(msg)
	return strings.Contains(m, "authorization required") || strings.Contains(m, "unauthorized")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// --- Chore operations ---

func (c *Client) CreateChore(ctx context.Context, token string, chore model.Chore) (*model.Chore, error) {
	var out model.Chore
	if err := c.callDecode(ctx, token, "createChore", chore, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateRecurringChore persists the template and the first concrete
// chore in one remote operation, so a partial write cannot happen.
func (c *Client) CreateRecurringChore(ctx context.Context, token string, tmpl model.ChoreTemplate, chore model.Chore) (*model.Chore, error) {
	payload := struct {
		Template model.ChoreTemplate `json:"template"`
		Chore    model.Chore         `json:"chore"`
	}{tmpl, chore}

	var out model.Chore
	if err := c.callDecode(ctx, token, "createRecurringChore", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateChore(ctx context.Context, token string, chore model.Chore) (*model.Chore, error) {
	var out model.Chore
	if err := c.callDecode(ctx, token, "updateChore", chore, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteChore(ctx context.Context, token, choreID string) error {
	_, err := c.call(ctx, token, "deleteChore", map[string]string{"id": choreID})
	return err
}

func (c *Client) CompleteChore(ctx context.Context, token, choreID, userID, photoProof string) (*model.Chore, error) {
	payload := map[string]string{"id": choreID, "user_id": userID, "photo_proof": photoProof}
	var out model.Chore
	if err := c.callDecode(ctx, token, "completeChore", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) VerifyChore(ctx context.Context, token, choreID, verifierID string, approved bool) (*model.Chore, error) {
	payload := map[string]any{"id": choreID, "verifier_id": verifierID, "approved": approved}
	var out model.Chore
	if err := c.callDecode(ctx, token, "verifyChore", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// --- Reward operations ---

func (c *Client) CreateReward(ctx context.Context, token string, reward model.Reward) (*model.Reward, error) {
	var out model.Reward
	if err := c.callDecode(ctx, token, "createReward", reward, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateReward(ctx context.Context, token string, reward model.Reward) (*model.Reward, error) {
	var out model.Reward
	if err := c.callDecode(ctx, token, "updateReward", reward, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteReward(ctx context.Context, token, rewardID string) error {
	_, err := c.call(ctx, token, "deleteReward", map[string]string{"id": rewardID})
	return err
}

// --- Redemption operations ---

func (c *Client) RedeemReward(ctx context.Context, token, rewardID, userID string) (*model.RewardRedemption, error) {
	payload := map[string]string{"reward_id": rewardID, "user_id": userID}
	var out model.RewardRedemption
	if err := c.callDecode(ctx, token, "redeemReward", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ResolveRedemption(ctx context.Context, token, redemptionID, resolverID string, approved bool) (*model.RewardRedemption, error) {
	payload := map[string]any{"id": redemptionID, "resolver_id": resolverID, "approved": approved}
	var out model.RewardRedemption
	if err := c.callDecode(ctx, token, "resolveRedemption", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// --- User operations ---

func (c *Client) CreateUser(ctx context.Context, token string, user model.User) (*model.User, error) {
	var out model.User
	if err := c.callDecode(ctx, token, "createUser", user, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateUser(ctx context.Context, token string, user model.User) (*model.User, error) {
	var out model.User
	if err := c.callDecode(ctx, token, "updateUser", user, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteUser(ctx context.Context, token, userID string) error {
	_, err := c.call(ctx, token, "deleteUser", map[string]string{"id": userID})
	return err
}

// --- Activity log operations ---

func (c *Client) LogActivity(ctx context.Context, token string, entry model.ActivityLog) (*model.ActivityLog, error) {
	var out model.ActivityLog
	if err := c.callDecode(ctx, token, "logActivity", entry, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ActivityFilter narrows which log entries GetActivityLogs returns.
type ActivityFilter struct {
	UserID     string           `json:"user_id,omitempty"`
	ActionType model.ActionType `json:"action_type,omitempty"`
	Since      *time.Time       `json:"since,omitempty"`
	Page       int              `json:"page,omitempty"`
	PageSize   int              `json:"page_size,omitempty"`
}

func (c *Client) GetActivityLogs(ctx context.Context, token string, filter ActivityFilter) ([]model.ActivityLog, error) {
	var out model.LogDocument
	if err := c.callDecode(ctx, token, "getActivityLogs", filter, &out); err != nil {
		return nil, err
	}
	return out.Logs, nil
}

// --- Bulk data operations ---

// GetData fetches one entity collection by type name ("chores",
// "rewards", "users", "redemptions", "templates", "logs").
func (c *Client) GetData(ctx context.Context, token, dataType string) (json.RawMessage, error) {
	return c.call(ctx, token, "getData", map[string]string{"type": dataType})
}

// GetBatchData fetches several entity collections in a single round trip.
func (c *Client) GetBatchData(ctx context.Context, token string, types []string) (map[string]json.RawMessage, error) {
	var out map[string]json.RawMessage
	if err := c.callDecode(ctx, token, "getBatchData", map[string][]string{"types": types}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteAllData wipes the family's remote data. Used by the aggregate
// delete-everything flow.
func (c *Client) DeleteAllData(ctx context.Context, token string) error {
	_, err := c.call(ctx, token, "deleteAllData", nil)
	return err
}

// --- Credential operations (session.CredentialRefresher) ---

func (c *Client) RefreshDriveCredentials(ctx context.Context, authToken string) (*model.DriveCredentials, error) {
	var out model.DriveCredentials
	if err := c.callDecode(ctx, authToken, "refreshDriveCredentials", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) RefreshAuthToken(ctx context.Context, authToken string) (string, int, error) {
	var out struct {
		AuthToken    string `json:"auth_token"`
		TokenVersion int    `json:"token_version"`
	}
	if err := c.callDecode(ctx, authToken, "refreshAuthToken", nil, &out); err != nil {
		return "", 0, err
	}
	if out.AuthToken == "" {
		return "", 0, fmt.Errorf("refreshAuthToken: %w", errs.ErrEmptyResponse)
	}
	return out.AuthToken, out.TokenVersion, nil
}
