package repository

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/mknutsen/chorequest/internal/cache"
	"github.com/mknutsen/chorequest/internal/model"
	"github.com/mknutsen/chorequest/internal/remote/rpc"
)

// ActivityRepo records and serves the family audit trail. Entries are
// append-only: written remote-first like every other mutation, pruned
// locally by age, never edited.
type ActivityRepo struct {
	backend *Backend
	logs    *cache.ActivityStore
	now     func() time.Time
}

func NewActivityRepo(b *Backend, logs *cache.ActivityStore) *ActivityRepo {
	return &ActivityRepo{backend: b, logs: logs, now: time.Now}
}

// Log appends an audit entry. An entry arriving without an ID or
// timestamp gets them filled in here so drive and RPC paths store the
// same record.
func (r *ActivityRepo) Log(ctx context.Context, entry model.ActivityLog) (*model.ActivityLog, error) {
	sess, err := r.backend.requireSession()
	if err != nil {
		return nil, err
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = r.now().UTC()
	}

	stored := entry
	err = r.backend.writeThrough(ctx,
		func(ctx context.Context, creds model.DriveCredentials) error {
			return editDocument(ctx, r.backend.Drive, creds, sess.DriveFolder, model.LogsFile, func(doc *model.LogDocument) error {
				doc.Logs = upsertByID(doc.Logs, logID, entry)
				return nil
			})
		},
		func(ctx context.Context, token string) error {
			echoed, err := r.backend.RPC.LogActivity(ctx, token, entry)
			if err != nil {
				return err
			}
			stored = *echoed
			return nil
		},
		func() error { return r.logs.Insert(stored) },
	)
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// Recent returns the newest cached entries and kicks off a background
// refresh so the next read is fresher.
func (r *ActivityRepo) Recent(limit int) ([]model.ActivityLog, error) {
	r.backend.requestRefresh()
	return r.logs.List(limit)
}

// RecentForUser returns cached entries where the user is actor or target.
func (r *ActivityRepo) RecentForUser(userID string, limit int) ([]model.ActivityLog, error) {
	r.backend.requestRefresh()
	return r.logs.ListForUser(userID, limit)
}

// Watch streams the activity list whenever it changes locally.
func (r *ActivityRepo) Watch(ctx context.Context) <-chan []model.ActivityLog {
	return r.logs.Watch(ctx)
}

// Fetch pulls filtered history from the remote side and folds any new
// entries into the cache. The drive path reads the whole log document
// and filters locally; the RPC path pushes the filter to the server.
func (r *ActivityRepo) Fetch(ctx context.Context, filter rpc.ActivityFilter) ([]model.ActivityLog, error) {
	sess, err := r.backend.requireSession()
	if err != nil {
		return nil, err
	}

	var fetched []model.ActivityLog
	err = r.backend.writeThrough(ctx,
		func(ctx context.Context, creds model.DriveCredentials) error {
			doc, err := loadDocument[model.LogDocument](ctx, r.backend.Drive, creds, sess.DriveFolder, model.LogsFile)
			if err != nil {
				return err
			}
			fetched = filterLogs(doc.Logs, filter)
			return nil
		},
		func(ctx context.Context, token string) error {
			logs, err := r.backend.RPC.GetActivityLogs(ctx, token, filter)
			if err != nil {
				return err
			}
			fetched = logs
			return nil
		},
		func() error { return r.logs.InsertBatch(validLogs(fetched)) },
	)
	if err != nil {
		return nil, err
	}
	return fetched, nil
}

// Prune drops local entries older than the cutoff. Remote history is
// the server's to keep; this only bounds the cache.
func (r *ActivityRepo) Prune(cutoff time.Time) (int64, error) {
	return r.logs.PruneBefore(cutoff)
}

func logID(l model.ActivityLog) string { return l.ID }

// filterLogs applies an activity filter to an in-memory log list,
// newest first, with the same page semantics the RPC backend uses.
func filterLogs(logs []model.ActivityLog, filter rpc.ActivityFilter) []model.ActivityLog {
	matched := make([]model.ActivityLog, 0, len(logs))
	for _, l := range logs {
		if filter.UserID != "" && l.ActorID != filter.UserID && l.TargetUserID != filter.UserID {
			continue
		}
		if filter.ActionType != "" && l.ActionType != filter.ActionType {
			continue
		}
		if filter.Since != nil && l.Timestamp.Before(*filter.Since) {
			continue
		}
		matched = append(matched, l)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Timestamp.After(matched[j].Timestamp) })

	if filter.PageSize <= 0 {
		return matched
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	start := (page - 1) * filter.PageSize
	if start >= len(matched) {
		return nil
	}
	end := start + filter.PageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end]
}

// validLogs drops entries missing required fields instead of caching
// them partially.
func validLogs(logs []model.ActivityLog) []model.ActivityLog {
	out := make([]model.ActivityLog, 0, len(logs))
	for _, l := range logs {
		if l.Valid() {
			out = append(out, l)
		}
	}
	return out
}
