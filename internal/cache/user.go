package cache

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mknutsen/chorequest/internal/model"
	"github.com/mknutsen/chorequest/internal/notify"
)

type UserStore struct {
	db  *sql.DB
	hub *notify.Hub
}

func NewUserStore(db *sql.DB, hub *notify.Hub) *UserStore {
	return &UserStore{db: db, hub: hub}
}

const userCols = `id, name, role, can_earn_points, points_balance, is_primary_parent, email, auth_token, token_version, created_at, updated_at`

func scanUser(scanner interface{ Scan(...any) error }) (*model.User, error) {
	var u model.User
	err := scanner.Scan(
		&u.ID, &u.Name, &u.Role, &u.CanEarnPoints, &u.PointsBalance,
		&u.IsPrimaryParent, &u.Email, &u.AuthToken, &u.TokenVersion,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

const userUpsert = `INSERT INTO users (` + userCols + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name, role = excluded.role,
		can_earn_points = excluded.can_earn_points,
		points_balance = excluded.points_balance,
		is_primary_parent = excluded.is_primary_parent,
		email = excluded.email, auth_token = excluded.auth_token,
		token_version = excluded.token_version, updated_at = excluded.updated_at`

func userArgs(u model.User) []any {
	return []any{
		u.ID, u.Name, u.Role, u.CanEarnPoints, u.PointsBalance,
		u.IsPrimaryParent, u.Email, u.AuthToken, u.TokenVersion,
		u.CreatedAt.UTC(), u.UpdatedAt.UTC(),
	}
}

func (s *UserStore) Upsert(u model.User) error {
	if _, err := s.db.Exec(userUpsert, userArgs(u)...); err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	s.hub.Publish(notify.Event{Entity: EntityUsers, Action: "updated", ID: u.ID})
	return nil
}

func (s *UserStore) GetByID(id string) (*model.User, error) {
	row := s.db.QueryRow(`SELECT `+userCols+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *UserStore) List() ([]model.User, error) {
	rows, err := s.db.Query(`SELECT ` + userCols + ` FROM users ORDER BY name ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// PrimaryParent returns the family's primary parent, or nil if the cache
// does not hold one yet.
func (s *UserStore) PrimaryParent() (*model.User, error) {
	row := s.db.QueryRow(`SELECT ` + userCols + ` FROM users WHERE is_primary_parent = 1 LIMIT 1`)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get primary parent: %w", err)
	}
	return u, nil
}

func (s *UserStore) Delete(id string) error {
	if _, err := s.db.Exec(`DELETE FROM users WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	s.hub.Publish(notify.Event{Entity: EntityUsers, Action: "deleted", ID: id})
	return nil
}

// ReplaceAllKeeping swaps the cached user set for a fresh remote
// snapshot, but never drops the row with keepID: the logged-in user's
// own record survives even when missing from the snapshot.
func (s *UserStore) ReplaceAllKeeping(users []model.User, keepID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM users WHERE id != ?`, keepID); err != nil {
		return fmt.Errorf("clear users: %w", err)
	}
	for _, u := range users {
		if _, err := tx.Exec(userUpsert, userArgs(u)...); err != nil {
			return fmt.Errorf("insert user: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.hub.Publish(notify.Event{Entity: EntityUsers, Action: "replaced"})
	return nil
}

func (s *UserStore) DeleteAll() error {
	if _, err := s.db.Exec(`DELETE FROM users`); err != nil {
		return fmt.Errorf("delete all users: %w", err)
	}
	s.hub.Publish(notify.Event{Entity: EntityUsers, Action: "replaced"})
	return nil
}

// Watch streams the user list, re-emitting on every local mutation.
func (s *UserStore) Watch(ctx context.Context) <-chan []model.User {
	return watchList(ctx, s.hub, EntityUsers, s.List)
}
