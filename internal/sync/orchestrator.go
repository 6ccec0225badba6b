// Package sync pulls the family's remote data into the local cache on
// a schedule. Runs are throttled, entity types fail independently, and
// the cache for a type is only replaced after its fetch fully parsed.
package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/mknutsen/chorequest/internal/cache"
	"github.com/mknutsen/chorequest/internal/errs"
	"github.com/mknutsen/chorequest/internal/model"
	"github.com/mknutsen/chorequest/internal/remote/rpc"
	"github.com/mknutsen/chorequest/internal/session"
)

const (
	// DefaultThrottle is the minimum gap between unforced full syncs.
	DefaultThrottle = 15 * time.Minute
	// DefaultInterval is how often the background loop wakes up.
	DefaultInterval = 5 * time.Minute
)

type driveAPI interface {
	ReadNamed(ctx context.Context, creds model.DriveCredentials, folder, name string) ([]byte, error)
}

type tokenSource interface {
	AuthToken(ctx context.Context) (string, error)
	DriveCredentials(ctx context.Context) (*model.DriveCredentials, error)
}

// Stores bundles the cache tables the orchestrator refreshes.
type Stores struct {
	Chores      *cache.ChoreStore
	Templates   *cache.TemplateStore
	Rewards     *cache.RewardStore
	Redemptions *cache.RedemptionStore
	Users       *cache.UserStore
	Logs        *cache.ActivityStore
}

type Config struct {
	Throttle time.Duration
	Interval time.Duration
}

// Orchestrator owns the background refresh loop.
type Orchestrator struct {
	cfg      Config
	sessions *session.Store
	tokens   tokenSource
	drive    driveAPI
	rpc      *rpc.Client
	stores   Stores
	logger   *slog.Logger
	now      func() time.Time

	runMu sync.Mutex // one sync at a time
	// batch holds documents prefetched in one RPC call for the run in
	// progress. Guarded by runMu.
	batch map[string]json.RawMessage

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	trigger chan struct{}
}

func New(cfg Config, sessions *session.Store, tokens tokenSource, drive driveAPI, rpcClient *rpc.Client, stores Stores, logger *slog.Logger) *Orchestrator {
	if cfg.Throttle <= 0 {
		cfg.Throttle = DefaultThrottle
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Orchestrator{
		cfg:      cfg,
		sessions: sessions,
		tokens:   tokens,
		drive:    drive,
		rpc:      rpcClient,
		stores:   stores,
		logger:   logger.With("component", "sync"),
		now:      time.Now,
		trigger:  make(chan struct{}, 1),
	}
}

// Start launches the background loop. Safe to call once per Stop.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.done = make(chan struct{})
	go o.loop(ctx)
	o.logger.Info("sync loop started", "interval", o.cfg.Interval, "throttle", o.cfg.Throttle)
}

// Stop halts the loop and waits for any in-flight run to finish.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	cancel, done := o.cancel, o.done
	o.cancel, o.done = nil, nil
	o.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	o.logger.Info("sync loop stopped")
}

// RequestSync nudges the loop to run soon without blocking. Used by
// repositories after reads and mutations that want fresher data.
func (o *Orchestrator) RequestSync() {
	select {
	case o.trigger <- struct{}{}:
	default:
	}
}

func (o *Orchestrator) loop(ctx context.Context) {
	defer close(o.done)
	ticker := time.NewTicker(o.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.runLogged(ctx, false)
		case <-o.trigger:
			o.runLogged(ctx, false)
		}
	}
}

func (o *Orchestrator) runLogged(ctx context.Context, force bool) {
	ran, err := o.SyncAll(ctx, force)
	switch {
	case err != nil && ctx.Err() != nil:
		return
	case err != nil:
		o.logger.Warn("sync finished with errors", "error", err)
	case ran:
		o.logger.Debug("sync completed")
	}
}

// SyncAll refreshes every entity type from the remote side. Unforced
// runs inside the throttle window are skipped and leave the last-synced
// timestamp untouched. Entity types are isolated: one failing fetch is
// collected and the rest still refresh. Returns whether a run happened.
func (o *Orchestrator) SyncAll(ctx context.Context, force bool) (bool, error) {
	o.runMu.Lock()
	defer o.runMu.Unlock()

	sess, err := o.sessions.Load()
	if err != nil {
		return false, fmt.Errorf("load session: %w", err)
	}
	if sess == nil || sess.AuthToken == "" {
		return false, errs.ErrNoSession
	}

	now := o.now().UTC()
	if !force && sess.LastSyncedAt != nil && now.Sub(*sess.LastSyncedAt) < o.cfg.Throttle {
		o.logger.Debug("sync skipped, inside throttle window", "last", *sess.LastSyncedAt)
		return false, nil
	}

	o.batch = nil
	defer func() { o.batch = nil }()
	o.prefetchBatch(ctx)

	var errAll error
	run := func(entity string, apply func(context.Context, *model.Session) error) {
		if ctx.Err() != nil {
			return
		}
		if err := apply(ctx, sess); err != nil {
			if ctx.Err() == nil {
				o.logger.Warn("entity sync failed", "entity", entity, "error", err)
			}
			errAll = multierr.Append(errAll, fmt.Errorf("%s: %w", entity, err))
		}
	}
	run(cache.EntityChores, o.syncChores)
	run(cache.EntityTemplates, o.syncTemplates)
	run(cache.EntityRewards, o.syncRewards)
	run(cache.EntityRedemptions, o.syncRedemptions)
	run(cache.EntityUsers, o.syncUsers)
	run(cache.EntityLogs, o.syncLogs)

	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err := o.sessions.SetLastSynced(now); err != nil {
		errAll = multierr.Append(errAll, fmt.Errorf("record sync time: %w", err))
	}
	return true, errAll
}

// prefetchBatch grabs every entity document in one RPC round trip when
// the drive path is not usable for this run. Failure here is not fatal:
// the per-entity fetches simply fall back to individual calls.
func (o *Orchestrator) prefetchBatch(ctx context.Context) {
	creds, err := o.tokens.DriveCredentials(ctx)
	if err == nil && creds != nil {
		return
	}
	token, err := o.tokens.AuthToken(ctx)
	if err != nil {
		return
	}
	types := []string{
		cache.EntityChores, cache.EntityTemplates, cache.EntityRewards,
		cache.EntityRedemptions, cache.EntityUsers, cache.EntityLogs,
	}
	batch, err := o.rpc.GetBatchData(ctx, token, types)
	if err != nil {
		o.logger.Warn("batch fetch failed, using per-entity calls", "error", err)
		return
	}
	o.batch = batch
}

// fetchDocument pulls one entity document, drive first, then the
// prefetched batch, then a per-entity RPC call.
func (o *Orchestrator) fetchDocument(ctx context.Context, sess *model.Session, file, entity string, out any) error {
	creds, err := o.tokens.DriveCredentials(ctx)
	if err == nil && creds != nil {
		data, err := o.drive.ReadNamed(ctx, *creds, sess.DriveFolder, file)
		switch {
		case err == nil:
			if uerr := json.Unmarshal(data, out); uerr != nil {
				return fmt.Errorf("parse %s: %w", file, uerr)
			}
			return nil
		case errors.Is(err, errs.ErrNotFound):
			// No document yet: an empty collection, not a failure.
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			o.logger.Warn("drive fetch failed, falling back to rpc", "entity", entity, "error", err)
		}
	}

	if data, ok := o.batch[entity]; ok {
		if len(data) == 0 {
			return errs.ErrEmptyResponse
		}
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("parse %s batch entry: %w", entity, err)
		}
		return nil
	}

	token, err := o.tokens.AuthToken(ctx)
	if err != nil {
		return err
	}
	data, err := o.rpc.GetData(ctx, token, entity)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return errs.ErrEmptyResponse
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s response: %w", entity, err)
	}
	return nil
}

func (o *Orchestrator) syncChores(ctx context.Context, sess *model.Session) error {
	var doc model.ChoreDocument
	if err := o.fetchDocument(ctx, sess, model.ChoresFile, cache.EntityChores, &doc); err != nil {
		return err
	}
	return o.stores.Chores.ReplaceAll(doc.Chores)
}

func (o *Orchestrator) syncTemplates(ctx context.Context, sess *model.Session) error {
	var doc model.TemplateDocument
	if err := o.fetchDocument(ctx, sess, model.TemplatesFile, cache.EntityTemplates, &doc); err != nil {
		return err
	}
	return o.stores.Templates.ReplaceAll(doc.Templates)
}

func (o *Orchestrator) syncRewards(ctx context.Context, sess *model.Session) error {
	var doc model.RewardDocument
	if err := o.fetchDocument(ctx, sess, model.RewardsFile, cache.EntityRewards, &doc); err != nil {
		return err
	}
	return o.stores.Rewards.ReplaceAll(doc.Rewards)
}

func (o *Orchestrator) syncRedemptions(ctx context.Context, sess *model.Session) error {
	var doc model.RedemptionDocument
	if err := o.fetchDocument(ctx, sess, model.RedemptionsFile, cache.EntityRedemptions, &doc); err != nil {
		return err
	}
	return o.stores.Redemptions.ReplaceAll(doc.Redemptions)
}

// syncUsers replaces the user table but never drops the signed-in
// user: a fetch that is missing them must not log the device out of
// its own family view.
func (o *Orchestrator) syncUsers(ctx context.Context, sess *model.Session) error {
	var doc model.UserDocument
	if err := o.fetchDocument(ctx, sess, model.UsersFile, cache.EntityUsers, &doc); err != nil {
		return err
	}
	return o.stores.Users.ReplaceAllKeeping(doc.Users, sess.UserID)
}

// syncLogs appends instead of replacing: history is append-only and
// entries missing required fields are dropped rather than stored.
func (o *Orchestrator) syncLogs(ctx context.Context, sess *model.Session) error {
	var doc model.LogDocument
	if err := o.fetchDocument(ctx, sess, model.LogsFile, cache.EntityLogs, &doc); err != nil {
		return err
	}
	valid := doc.Logs[:0:0]
	for _, l := range doc.Logs {
		if l.Valid() {
			valid = append(valid, l)
		}
	}
	if dropped := len(doc.Logs) - len(valid); dropped > 0 {
		o.logger.Warn("dropped malformed activity entries", "count", dropped)
	}
	return o.stores.Logs.InsertBatch(valid)
}
