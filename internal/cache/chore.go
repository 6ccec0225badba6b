package cache

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mknutsen/chorequest/internal/model"
	"github.com/mknutsen/chorequest/internal/notify"
)

type ChoreStore struct {
	db  *sql.DB
	hub *notify.Hub
}

func NewChoreStore(db *sql.DB, hub *notify.Hub) *ChoreStore {
	return &ChoreStore{db: db, hub: hub}
}

const choreCols = `id, title, description, assigned_to, points, due_date, recurrence, subtasks, status, completed_by, completed_at, verified_by, verified_at, photo_proof, created_at, updated_at`

func scanChore(scanner interface{ Scan(...any) error }) (*model.Chore, error) {
	var c model.Chore
	var assignedTo, recurrence, subtasks string
	var dueDate, completedAt, verifiedAt sql.NullTime

	err := scanner.Scan(
		&c.ID, &c.Title, &c.Description, &assignedTo, &c.Points,
		&dueDate, &recurrence, &subtasks, &c.Status,
		&c.CompletedBy, &completedAt, &c.VerifiedBy, &verifiedAt,
		&c.PhotoProof, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := decodeJSON(assignedTo, &c.AssignedTo); err != nil {
		return nil, err
	}
	if err := decodeJSON(recurrence, &c.Recurrence); err != nil {
		return nil, err
	}
	if err := decodeJSON(subtasks, &c.Subtasks); err != nil {
		return nil, err
	}
	if dueDate.Valid {
		t := dueDate.Time
		c.DueDate = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		c.CompletedAt = &t
	}
	if verifiedAt.Valid {
		t := verifiedAt.Time
		c.VerifiedAt = &t
	}
	return &c, nil
}

func choreArgs(c model.Chore) ([]any, error) {
	assignedTo, err := encodeJSON(c.AssignedTo)
	if err != nil {
		return nil, err
	}
	recurrence, err := encodeJSON(c.Recurrence)
	if err != nil {
		return nil, err
	}
	subtasks, err := encodeJSON(c.Subtasks)
	if err != nil {
		return nil, err
	}

	var dueDate, completedAt, verifiedAt sql.NullTime
	if c.DueDate != nil {
		dueDate = sql.NullTime{Time: c.DueDate.UTC(), Valid: true}
	}
	if c.CompletedAt != nil {
		completedAt = sql.NullTime{Time: c.CompletedAt.UTC(), Valid: true}
	}
	if c.VerifiedAt != nil {
		verifiedAt = sql.NullTime{Time: c.VerifiedAt.UTC(), Valid: true}
	}

	return []any{
		c.ID, c.Title, c.Description, assignedTo, c.Points,
		dueDate, recurrence, subtasks, c.Status,
		c.CompletedBy, completedAt, c.VerifiedBy, verifiedAt,
		c.PhotoProof, c.CreatedAt.UTC(), c.UpdatedAt.UTC(),
	}, nil
}

const choreUpsert = `INSERT INTO chores (` + choreCols + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title, description = excluded.description,
		assigned_to = excluded.assigned_to, points = excluded.points,
		due_date = excluded.due_date, recurrence = excluded.recurrence,
		subtasks = excluded.subtasks, status = excluded.status,
		completed_by = excluded.completed_by, completed_at = excluded.completed_at,
		verified_by = excluded.verified_by, verified_at = excluded.verified_at,
		photo_proof = excluded.photo_proof, updated_at = excluded.updated_at`

// Upsert inserts or replaces a chore by id.
func (s *ChoreStore) Upsert(c model.Chore) error {
	args, err := choreArgs(c)
	if err != nil {
		return fmt.Errorf("encode chore: %w", err)
	}
	if _, err := s.db.Exec(choreUpsert, args...); err != nil {
		return fmt.Errorf("upsert chore: %w", err)
	}
	s.hub.Publish(notify.Event{Entity: EntityChores, Action: "updated", ID: c.ID})
	return nil
}

func (s *ChoreStore) GetByID(id string) (*model.Chore, error) {
	row := s.db.QueryRow(`SELECT `+choreCols+` FROM chores WHERE id = ?`, id)
	c, err := scanChore(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get chore: %w", err)
	}
	return c, nil
}

func (s *ChoreStore) List() ([]model.Chore, error) {
	rows, err := s.db.Query(`SELECT ` + choreCols + ` FROM chores ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list chores: %w", err)
	}
	defer rows.Close()

	var chores []model.Chore
	for rows.Next() {
		c, err := scanChore(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chore: %w", err)
		}
		chores = append(chores, *c)
	}
	return chores, rows.Err()
}

// ListForUser returns chores assigned to the given user. Assignment is a
// JSON id list, so filtering happens after the scan.
func (s *ChoreStore) ListForUser(userID string) ([]model.Chore, error) {
	all, err := s.List()
	if err != nil {
		return nil, err
	}
	var chores []model.Chore
	for _, c := range all {
		if c.AssignedToUser(userID) {
			chores = append(chores, c)
		}
	}
	return chores, nil
}

func (s *ChoreStore) Delete(id string) error {
	if _, err := s.db.Exec(`DELETE FROM chores WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete chore: %w", err)
	}
	s.hub.Publish(notify.Event{Entity: EntityChores, Action: "deleted", ID: id})
	return nil
}

// ReplaceAll atomically swaps the cached chore set for a fresh remote
// snapshot.
func (s *ChoreStore) ReplaceAll(chores []model.Chore) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM chores`); err != nil {
		return fmt.Errorf("clear chores: %w", err)
	}
	for _, c := range chores {
		args, err := choreArgs(c)
		if err != nil {
			return fmt.Errorf("encode chore: %w", err)
		}
		if _, err := tx.Exec(choreUpsert, args...); err != nil {
			return fmt.Errorf("insert chore: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.hub.Publish(notify.Event{Entity: EntityChores, Action: "replaced"})
	return nil
}

func (s *ChoreStore) DeleteAll() error {
	if _, err := s.db.Exec(`DELETE FROM chores`); err != nil {
		return fmt.Errorf("delete all chores: %w", err)
	}
	s.hub.Publish(notify.Event{Entity: EntityChores, Action: "replaced"})
	return nil
}

// Watch streams the chore list, re-emitting on every local mutation.
func (s *ChoreStore) Watch(ctx context.Context) <-chan []model.Chore {
	return watchList(ctx, s.hub, EntityChores, s.List)
}
