package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mknutsen/chorequest/internal/cache"
	"github.com/mknutsen/chorequest/internal/chorestatus"
	"github.com/mknutsen/chorequest/internal/errs"
	"github.com/mknutsen/chorequest/internal/model"
)

// ChoreRepo manages chores and their recurring templates.
type ChoreRepo struct {
	backend   *Backend
	chores    *cache.ChoreStore
	templates *cache.TemplateStore
	activity  *ActivityRepo
	now       func() time.Time
}

func NewChoreRepo(b *Backend, chores *cache.ChoreStore, templates *cache.TemplateStore, activity *ActivityRepo) *ChoreRepo {
	return &ChoreRepo{backend: b, chores: chores, templates: templates, activity: activity, now: time.Now}
}

// Create persists a new chore. A chore carrying a recurrence spec also
// gets a template; the template and the first instance must land
// together or not at all, so a partial drive write abandons the drive
// path and the RPC fallback performs both in a single operation.
func (r *ChoreRepo) Create(ctx context.Context, chore model.Chore) (*model.Chore, error) {
	sess, err := r.backend.requireSession()
	if err != nil {
		return nil, err
	}
	now := r.now().UTC()
	if chore.ID == "" {
		chore.ID = uuid.NewString()
	}
	if chore.Status == "" {
		chore.Status = model.ChoreStatusPending
	}
	chore.CreatedAt = now
	chore.UpdatedAt = now

	if chore.Recurrence != nil {
		return r.createRecurring(ctx, sess, chore, now)
	}

	stored := chore
	err = r.backend.writeThrough(ctx,
		func(ctx context.Context, creds model.DriveCredentials) error {
			return editDocument(ctx, r.backend.Drive, creds, sess.DriveFolder, model.ChoresFile, func(doc *model.ChoreDocument) error {
				doc.Chores = upsertByID(doc.Chores, choreID, chore)
				return nil
			})
		},
		func(ctx context.Context, token string) error {
			echoed, err := r.backend.RPC.CreateChore(ctx, token, chore)
			if err != nil {
				return err
			}
			stored = *echoed
			return nil
		},
		func() error { return r.chores.Upsert(stored) },
	)
	if err != nil {
		return nil, err
	}
	r.backend.logActivity(ctx, r.activity, model.ActivityLog{
		ActionType: model.ActionChoreCreated,
		Details:    map[string]any{"chore_id": stored.ID, "title": stored.Title},
	})
	return &stored, nil
}

// createRecurring writes the template and the first chore instance. On
// the drive path a failure after the template write would strand a
// template with no chore, so any failure there falls back to the RPC
// operation that creates both atomically.
func (r *ChoreRepo) createRecurring(ctx context.Context, sess *model.Session, chore model.Chore, now time.Time) (*model.Chore, error) {
	tmpl := model.ChoreTemplate{
		ID:          uuid.NewString(),
		Title:       chore.Title,
		Description: chore.Description,
		AssignedTo:  chore.AssignedTo,
		Points:      chore.Points,
		Recurrence:  *chore.Recurrence,
		Subtasks:    chore.Subtasks,
		CreatedAt:   now,
	}

	stored := chore
	err := r.backend.writeThrough(ctx,
		func(ctx context.Context, creds model.DriveCredentials) error {
			if err := editDocument(ctx, r.backend.Drive, creds, sess.DriveFolder, model.TemplatesFile, func(doc *model.TemplateDocument) error {
				doc.Templates = upsertByID(doc.Templates, templateID, tmpl)
				return nil
			}); err != nil {
				return fmt.Errorf("write template: %w", err)
			}
			if err := editDocument(ctx, r.backend.Drive, creds, sess.DriveFolder, model.ChoresFile, func(doc *model.ChoreDocument) error {
				doc.Chores = upsertByID(doc.Chores, choreID, chore)
				return nil
			}); err != nil {
				return fmt.Errorf("write chore after template: %w", err)
			}
			return nil
		},
		func(ctx context.Context, token string) error {
			echoed, err := r.backend.RPC.CreateRecurringChore(ctx, token, tmpl, chore)
			if err != nil {
				return err
			}
			stored = *echoed
			return nil
		},
		func() error {
			if err := r.templates.Upsert(tmpl); err != nil {
				return err
			}
			return r.chores.Upsert(stored)
		},
	)
	if err != nil {
		return nil, err
	}
	r.backend.logActivity(ctx, r.activity, model.ActivityLog{
		ActionType: model.ActionChoreCreated,
		Details:    map[string]any{"chore_id": stored.ID, "template_id": tmpl.ID, "title": stored.Title},
	})
	return &stored, nil
}

// Update replaces an existing chore.
func (r *ChoreRepo) Update(ctx context.Context, chore model.Chore) (*model.Chore, error) {
	sess, err := r.backend.requireSession()
	if err != nil {
		return nil, err
	}
	chore.UpdatedAt = r.now().UTC()

	stored := chore
	err = r.backend.writeThrough(ctx,
		func(ctx context.Context, creds model.DriveCredentials) error {
			return editDocument(ctx, r.backend.Drive, creds, sess.DriveFolder, model.ChoresFile, func(doc *model.ChoreDocument) error {
				if findByID(doc.Chores, choreID, chore.ID) == nil {
					return fmt.Errorf("chore %s: %w", chore.ID, errs.ErrNotFound)
				}
				doc.Chores = upsertByID(doc.Chores, choreID, chore)
				return nil
			})
		},
		func(ctx context.Context, token string) error {
			echoed, err := r.backend.RPC.UpdateChore(ctx, token, chore)
			if err != nil {
				return err
			}
			stored = *echoed
			return nil
		},
		func() error { return r.chores.Upsert(stored) },
	)
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// Delete removes a chore everywhere. Deleting a chore that is already
// gone remotely still clears the cached copy.
func (r *ChoreRepo) Delete(ctx context.Context, choreID string) error {
	sess, err := r.backend.requireSession()
	if err != nil {
		return err
	}
	err = r.backend.writeThrough(ctx,
		func(ctx context.Context, creds model.DriveCredentials) error {
			return editDocument(ctx, r.backend.Drive, creds, sess.DriveFolder, model.ChoresFile, func(doc *model.ChoreDocument) error {
				doc.Chores, _ = removeByID(doc.Chores, func(c model.Chore) string { return c.ID }, choreID)
				return nil
			})
		},
		func(ctx context.Context, token string) error {
			return r.backend.RPC.DeleteChore(ctx, token, choreID)
		},
		func() error { return r.chores.Delete(choreID) },
	)
	if err != nil {
		return err
	}
	r.backend.logActivity(ctx, r.activity, model.ActivityLog{
		ActionType: model.ActionChoreDeleted,
		Details:    map[string]any{"chore_id": choreID},
	})
	return nil
}

// Start moves a chore to in_progress.
func (r *ChoreRepo) Start(ctx context.Context, choreID string) (*model.Chore, error) {
	return r.transitionRemote(ctx, choreID, func(c model.Chore, now time.Time) (model.Chore, error) {
		return chorestatus.Start(c, now)
	}, nil)
}

// Complete marks the chore done by userID, with optional photo proof.
func (r *ChoreRepo) Complete(ctx context.Context, choreID, userID, photoProof string) (*model.Chore, error) {
	stored, err := r.transitionRemote(ctx, choreID,
		func(c model.Chore, now time.Time) (model.Chore, error) {
			return chorestatus.Complete(c, userID, photoProof, now)
		},
		func(ctx context.Context, token string) (*model.Chore, error) {
			return r.backend.RPC.CompleteChore(ctx, token, choreID, userID, photoProof)
		})
	if err != nil {
		return nil, err
	}
	r.backend.logActivity(ctx, r.activity, model.ActivityLog{
		ActionType: model.ActionChoreCompleted,
		ActorID:    userID,
		Details:    map[string]any{"chore_id": choreID, "points": stored.Points},
	})
	return stored, nil
}

// Verify approves or rejects a completed chore. Approval is terminal;
// rejection sends the chore back to pending with its evidence cleared.
func (r *ChoreRepo) Verify(ctx context.Context, choreID, verifierID string, approved bool) (*model.Chore, error) {
	stored, err := r.transitionRemote(ctx, choreID,
		func(c model.Chore, now time.Time) (model.Chore, error) {
			return chorestatus.Verify(c, verifierID, approved, now)
		},
		func(ctx context.Context, token string) (*model.Chore, error) {
			return r.backend.RPC.VerifyChore(ctx, token, choreID, verifierID, approved)
		})
	if err != nil {
		return nil, err
	}
	action := model.ActionChoreVerified
	if !approved {
		action = model.ActionChoreRejected
	}
	r.backend.logActivity(ctx, r.activity, model.ActivityLog{
		ActionType: action,
		ActorID:    verifierID,
		Details:    map[string]any{"chore_id": choreID},
	})
	return stored, nil
}

// transitionRemote runs a status transition remote-first. The drive
// path applies the transition to the chore inside the document; the
// RPC path delegates to a dedicated operation when one exists, or
// falls back to a plain update carrying the already-transitioned chore.
func (r *ChoreRepo) transitionRemote(ctx context.Context, choreID string, apply func(model.Chore, time.Time) (model.Chore, error), rpcOp func(ctx context.Context, token string) (*model.Chore, error)) (*model.Chore, error) {
	sess, err := r.backend.requireSession()
	if err != nil {
		return nil, err
	}
	now := r.now().UTC()

	var stored model.Chore
	err = r.backend.writeThrough(ctx,
		func(ctx context.Context, creds model.DriveCredentials) error {
			return editDocument(ctx, r.backend.Drive, creds, sess.DriveFolder, model.ChoresFile, func(doc *model.ChoreDocument) error {
				target := findByID(doc.Chores, func(c model.Chore) string { return c.ID }, choreID)
				if target == nil {
					return fmt.Errorf("chore %s: %w", choreID, errs.ErrNotFound)
				}
				next, err := apply(*target, now)
				if err != nil {
					return err
				}
				*target = next
				stored = next
				return nil
			})
		},
		func(ctx context.Context, token string) error {
			if rpcOp != nil {
				echoed, err := rpcOp(ctx, token)
				if err != nil {
					return err
				}
				stored = *echoed
				return nil
			}
			current, err := r.chores.GetByID(choreID)
			if err != nil {
				return err
			}
			if current == nil {
				return fmt.Errorf("chore %s: %w", choreID, errs.ErrNotFound)
			}
			next, err := apply(*current, now)
			if err != nil {
				return err
			}
			echoed, err := r.backend.RPC.UpdateChore(ctx, token, next)
			if err != nil {
				return err
			}
			stored = *echoed
			return nil
		},
		func() error { return r.chores.Upsert(stored) },
	)
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// Reads serve the cache and nudge a background refresh; callers needing
// live updates use Watch instead of polling.

func (r *ChoreRepo) Get(choreID string) (*model.Chore, error) {
	r.backend.requestRefresh()
	return r.chores.GetByID(choreID)
}

func (r *ChoreRepo) List() ([]model.Chore, error) {
	r.backend.requestRefresh()
	return r.chores.List()
}

func (r *ChoreRepo) ListForUser(userID string) ([]model.Chore, error) {
	r.backend.requestRefresh()
	return r.chores.ListForUser(userID)
}

func (r *ChoreRepo) Templates() ([]model.ChoreTemplate, error) {
	r.backend.requestRefresh()
	return r.templates.List()
}

func (r *ChoreRepo) Watch(ctx context.Context) <-chan []model.Chore {
	return r.chores.Watch(ctx)
}

// MarkOverdue sweeps cached chores whose due date has passed and pushes
// each transition remote-first. Errors on one chore do not stop the rest.
func (r *ChoreRepo) MarkOverdue(ctx context.Context) error {
	chores, err := r.chores.List()
	if err != nil {
		return err
	}
	now := r.now().UTC()
	var firstErr error
	for _, c := range chores {
		moved := chorestatus.MarkOverdue(c, now)
		if moved.Status == c.Status {
			continue
		}
		if _, err := r.Update(ctx, moved); err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return err
			}
			if firstErr == nil {
				firstErr = err
			}
			r.backend.Logger.Warn("overdue sweep update failed", "chore_id", c.ID, "error", err)
		}
	}
	return firstErr
}

func choreID(c model.Chore) string { return c.ID }

func templateID(t model.ChoreTemplate) string { return t.ID }
