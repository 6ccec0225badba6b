package repository

import (
	"context"
	"fmt"

	"github.com/mknutsen/chorequest/internal/cache"
	"github.com/mknutsen/chorequest/internal/model"
)

// Wiper erases all family data, remote first. The local cache is only
// cleared once the remote side confirmed the wipe, so an interrupted
// wipe leaves the cache intact rather than half empty.
type Wiper struct {
	backend     *Backend
	chores      *cache.ChoreStore
	templates   *cache.TemplateStore
	rewards     *cache.RewardStore
	redemptions *cache.RedemptionStore
	users       *cache.UserStore
	logs        *cache.ActivityStore
}

func NewWiper(b *Backend, chores *cache.ChoreStore, templates *cache.TemplateStore, rewards *cache.RewardStore, redemptions *cache.RedemptionStore, users *cache.UserStore, logs *cache.ActivityStore) *Wiper {
	return &Wiper{
		backend:     b,
		chores:      chores,
		templates:   templates,
		rewards:     rewards,
		redemptions: redemptions,
		users:       users,
		logs:        logs,
	}
}

// DeleteAll wipes every entity document remotely, then every local
// table. Cancellation mid-wipe returns the context error untouched so
// callers can tell an aborted wipe from a failed one.
func (w *Wiper) DeleteAll(ctx context.Context) error {
	sess, err := w.backend.requireSession()
	if err != nil {
		return err
	}
	return w.backend.writeThrough(ctx,
		func(ctx context.Context, creds model.DriveCredentials) error {
			for file, empty := range emptyDocuments() {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if err := w.backend.Drive.WriteDocument(ctx, creds, sess.DriveFolder, file, empty); err != nil {
					return fmt.Errorf("wipe %s: %w", file, err)
				}
			}
			return nil
		},
		func(ctx context.Context, token string) error {
			return w.backend.RPC.DeleteAllData(ctx, token)
		},
		w.clearCache,
	)
}

// ClearLocal empties every local table without touching remote data.
// Logout uses it after the session is already cleared.
func (w *Wiper) ClearLocal() error {
	return w.clearCache()
}

func (w *Wiper) clearCache() error {
	steps := []struct {
		name string
		fn   func() error
	}{
		{"chores", w.chores.DeleteAll},
		{"templates", w.templates.DeleteAll},
		{"rewards", w.rewards.DeleteAll},
		{"redemptions", w.redemptions.DeleteAll},
		{"users", w.users.DeleteAll},
		{"activity", w.logs.DeleteAll},
	}
	for _, s := range steps {
		if err := s.fn(); err != nil {
			return fmt.Errorf("clear %s: %w", s.name, err)
		}
	}
	return nil
}

// emptyDocuments returns the zero-value JSON for every drive document.
func emptyDocuments() map[string][]byte {
	return map[string][]byte{
		model.ChoresFile:      []byte(`{"chores":[]}`),
		model.TemplatesFile:   []byte(`{"templates":[]}`),
		model.RewardsFile:     []byte(`{"rewards":[]}`),
		model.RedemptionsFile: []byte(`{"redemptions":[]}`),
		model.UsersFile:       []byte(`{"users":[]}`),
		model.LogsFile:        []byte(`{"logs":[]}`),
	}
}
