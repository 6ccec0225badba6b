// Package repository implements the per-entity read/write contracts on
// top of the two remote paths and the local cache. The one rule every
// mutation obeys: the local cache changes only after a remote write
// (drive or RPC) confirmed the same change.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mknutsen/chorequest/internal/errs"
	"github.com/mknutsen/chorequest/internal/model"
	"github.com/mknutsen/chorequest/internal/remote/drive"
	"github.com/mknutsen/chorequest/internal/remote/rpc"
	"github.com/mknutsen/chorequest/internal/session"
)

// driveAPI is what repositories need from the drive client.
type driveAPI interface {
	ReadNamed(ctx context.Context, creds model.DriveCredentials, folder, name string) ([]byte, error)
	WriteDocument(ctx context.Context, creds model.DriveCredentials, folder, name string, content []byte) error
}

// tokenSource hands out per-call credentials for the two remote paths.
type tokenSource interface {
	AuthToken(ctx context.Context) (string, error)
	DriveCredentials(ctx context.Context) (*model.DriveCredentials, error)
}

var (
	_ driveAPI    = (*drive.Client)(nil)
	_ tokenSource = (*session.TokenManager)(nil)
)

// Backend bundles the shared collaborators of every entity repository.
type Backend struct {
	Sessions *session.Store
	Tokens   tokenSource
	Drive    driveAPI
	RPC      *rpc.Client
	Logger   *slog.Logger

	// RequestSync asks the orchestrator for a background refresh. Reads
	// use it fire-and-forget; it must never block. Optional.
	RequestSync func()
}

// requireSession loads the active session or fails fast.
func (b *Backend) requireSession() (*model.Session, error) {
	sess, err := b.Sessions.Load()
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess == nil || sess.AuthToken == "" {
		return nil, errs.ErrNoSession
	}
	return sess, nil
}

// writeThrough is the dual-path writer. It tries the drive operation
// first when storage credentials are available, falls back to the RPC
// operation, and runs the cache write only after one of them succeeded.
// Drive failures are logged and absorbed so the fallback can run;
// cancellation is re-raised, never absorbed.
func (b *Backend) writeThrough(ctx context.Context, driveOp func(ctx context.Context, creds model.DriveCredentials) error, rpcOp func(ctx context.Context, token string) error, cacheOp func() error) error {
	if driveOp != nil {
		creds, err := b.Tokens.DriveCredentials(ctx)
		if err != nil && !errors.Is(err, errs.ErrNoSession) {
			b.Logger.Warn("drive credentials unavailable", "error", err)
		}
		if creds != nil {
			err := driveOp(ctx, *creds)
			if err == nil {
				return cacheOp()
			}
			if ctx.Err() != nil {
				return fmt.Errorf("operation cancelled: %w", ctx.Err())
			}
			b.Logger.Warn("drive write failed, falling back to rpc", "error", err)
		}
	}

	token, err := b.Tokens.AuthToken(ctx)
	if err != nil {
		return err
	}
	if err := rpcOp(ctx, token); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("operation cancelled: %w", ctx.Err())
		}
		return err
	}
	return cacheOp()
}

// requestRefresh triggers a background sync without blocking the caller.
func (b *Backend) requestRefresh() {
	if b.RequestSync != nil {
		b.RequestSync()
	}
}

// loadDocument fetches and decodes a collection document. A document
// that does not exist yet decodes as the zero value: an empty collection.
func loadDocument[D any](ctx context.Context, api driveAPI, creds model.DriveCredentials, folder, file string) (D, error) {
	var doc D
	data, err := api.ReadNamed(ctx, creds, folder, file)
	if errors.Is(err, errs.ErrNotFound) {
		return doc, nil
	}
	if err != nil {
		return doc, err
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("parse %s: %w", file, err)
	}
	return doc, nil
}

// editDocument applies an in-memory mutation to a collection document
// and writes the whole document back.
func editDocument[D any](ctx context.Context, api driveAPI, creds model.DriveCredentials, folder, file string, edit func(*D) error) error {
	doc, err := loadDocument[D](ctx, api, creds, folder, file)
	if err != nil {
		return err
	}
	if err := edit(&doc); err != nil {
		return err
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s: %w", file, err)
	}
	return api.WriteDocument(ctx, creds, folder, file, out)
}

// upsertByID replaces the element with a matching id or appends it.
func upsertByID[T any](items []T, id func(T) string, item T) []T {
	for i := range items {
		if id(items[i]) == id(item) {
			items[i] = item
			return items
		}
	}
	return append(items, item)
}

// removeByID drops the element with a matching id. Reports whether the
// element was present.
func removeByID[T any](items []T, id func(T) string, target string) ([]T, bool) {
	for i := range items {
		if id(items[i]) == target {
			return append(items[:i], items[i+1:]...), true
		}
	}
	return items, false
}

// findByID returns a pointer into items for in-place mutation.
func findByID[T any](items []T, id func(T) string, target string) *T {
	for i := range items {
		if id(items[i]) == target {
			return &items[i]
		}
	}
	return nil
}

// logActivity appends an audit entry through the activity repository,
// best effort: a failed audit write never fails the mutation it records.
func (b *Backend) logActivity(ctx context.Context, activity *ActivityRepo, entry model.ActivityLog) {
	if activity == nil {
		return
	}
	if _, err := activity.Log(ctx, entry); err != nil {
		b.Logger.Warn("activity log write failed", "action", entry.ActionType, "error", err)
	}
}
