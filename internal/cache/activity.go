package cache

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mknutsen/chorequest/internal/model"
	"github.com/mknutsen/chorequest/internal/notify"
)

// ActivityStore is append-mostly: entries are inserted and pruned by
// cutoff date, never updated or wholesale-replaced.
type ActivityStore struct {
	db  *sql.DB
	hub *notify.Hub
}

func NewActivityStore(db *sql.DB, hub *notify.Hub) *ActivityStore {
	return &ActivityStore{db: db, hub: hub}
}

const activityCols = `id, action_type, actor_id, actor_name, target_user_id, target_user_name, timestamp, details`

func scanActivity(scanner interface{ Scan(...any) error }) (*model.ActivityLog, error) {
	var l model.ActivityLog
	var details string

	err := scanner.Scan(&l.ID, &l.ActionType, &l.ActorID, &l.ActorName, &l.TargetUserID, &l.TargetUserName, &l.Timestamp, &details)
	if err != nil {
		return nil, err
	}

	if err := decodeJSON(details, &l.Details); err != nil {
		return nil, err
	}
	return &l, nil
}

const activityInsert = `INSERT INTO activity_logs (` + activityCols + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO NOTHING`

func activityArgs(l model.ActivityLog) ([]any, error) {
	details, err := encodeJSON(l.Details)
	if err != nil {
		return nil, err
	}
	return []any{l.ID, l.ActionType, l.ActorID, l.ActorName, l.TargetUserID, l.TargetUserName, l.Timestamp.UTC(), details}, nil
}

func (s *ActivityStore) Insert(l model.ActivityLog) error {
	args, err := activityArgs(l)
	if err != nil {
		return fmt.Errorf("encode log entry: %w", err)
	}
	if _, err := s.db.Exec(activityInsert, args...); err != nil {
		return fmt.Errorf("insert log entry: %w", err)
	}
	s.hub.Publish(notify.Event{Entity: EntityLogs, Action: "created", ID: l.ID})
	return nil
}

// InsertBatch appends a batch of entries in one transaction. Entries
// already present (same id) are left untouched.
func (s *ActivityStore) InsertBatch(logs []model.ActivityLog) error {
	if len(logs) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, l := range logs {
		args, err := activityArgs(l)
		if err != nil {
			return fmt.Errorf("encode log entry: %w", err)
		}
		if _, err := tx.Exec(activityInsert, args...); err != nil {
			return fmt.Errorf("insert log entry: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.hub.Publish(notify.Event{Entity: EntityLogs, Action: "replaced"})
	return nil
}

func (s *ActivityStore) GetByID(id string) (*model.ActivityLog, error) {
	row := s.db.QueryRow(`SELECT `+activityCols+` FROM activity_logs WHERE id = ?`, id)
	l, err := scanActivity(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get log entry: %w", err)
	}
	return l, nil
}

func (s *ActivityStore) List(limit int) ([]model.ActivityLog, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.Query(`SELECT `+activityCols+` FROM activity_logs ORDER BY timestamp DESC, id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list log entries: %w", err)
	}
	defer rows.Close()
	return collectActivity(rows)
}

func (s *ActivityStore) ListForUser(userID string, limit int) ([]model.ActivityLog, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.Query(
		`SELECT `+activityCols+` FROM activity_logs WHERE actor_id = ? OR target_user_id = ? ORDER BY timestamp DESC, id ASC LIMIT ?`,
		userID, userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list log entries for user: %w", err)
	}
	defer rows.Close()
	return collectActivity(rows)
}

func collectActivity(rows *sql.Rows) ([]model.ActivityLog, error) {
	var logs []model.ActivityLog
	for rows.Next() {
		l, err := scanActivity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan log entry: %w", err)
		}
		logs = append(logs, *l)
	}
	return logs, rows.Err()
}

// PruneBefore removes entries older than the cutoff and returns how many
// were dropped.
func (s *ActivityStore) PruneBefore(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM activity_logs WHERE timestamp < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune log entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		s.hub.Publish(notify.Event{Entity: EntityLogs, Action: "replaced"})
	}
	return n, nil
}

func (s *ActivityStore) DeleteAll() error {
	if _, err := s.db.Exec(`DELETE FROM activity_logs`); err != nil {
		return fmt.Errorf("delete all log entries: %w", err)
	}
	s.hub.Publish(notify.Event{Entity: EntityLogs, Action: "replaced"})
	return nil
}

// Watch streams the most recent log entries, re-emitting on every local
// mutation.
func (s *ActivityStore) Watch(ctx context.Context) <-chan []model.ActivityLog {
	return watchList(ctx, s.hub, EntityLogs, func() ([]model.ActivityLog, error) {
		return s.List(0)
	})
}
