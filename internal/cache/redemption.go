package cache

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mknutsen/chorequest/internal/model"
	"github.com/mknutsen/chorequest/internal/notify"
)

type RedemptionStore struct {
	db  *sql.DB
	hub *notify.Hub
}

func NewRedemptionStore(db *sql.DB, hub *notify.Hub) *RedemptionStore {
	return &RedemptionStore{db: db, hub: hub}
}

const redemptionCols = `id, reward_id, user_id, status, requested_at, resolved_at, resolved_by`

func scanRedemption(scanner interface{ Scan(...any) error }) (*model.RewardRedemption, error) {
	var r model.RewardRedemption
	var resolvedAt sql.NullTime

	err := scanner.Scan(&r.ID, &r.RewardID, &r.UserID, &r.Status, &r.RequestedAt, &resolvedAt, &r.ResolvedBy)
	if err != nil {
		return nil, err
	}

	if resolvedAt.Valid {
		t := resolvedAt.Time
		r.ResolvedAt = &t
	}
	return &r, nil
}

const redemptionUpsert = `INSERT INTO redemptions (` + redemptionCols + `)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		reward_id = excluded.reward_id, user_id = excluded.user_id,
		status = excluded.status, resolved_at = excluded.resolved_at,
		resolved_by = excluded.resolved_by`

func redemptionArgs(r model.RewardRedemption) []any {
	var resolvedAt sql.NullTime
	if r.ResolvedAt != nil {
		resolvedAt = sql.NullTime{Time: r.ResolvedAt.UTC(), Valid: true}
	}
	return []any{r.ID, r.RewardID, r.UserID, r.Status, r.RequestedAt.UTC(), resolvedAt, r.ResolvedBy}
}

func (s *RedemptionStore) Upsert(r model.RewardRedemption) error {
	if _, err := s.db.Exec(redemptionUpsert, redemptionArgs(r)...); err != nil {
		return fmt.Errorf("upsert redemption: %w", err)
	}
	s.hub.Publish(notify.Event{Entity: EntityRedemptions, Action: "updated", ID: r.ID})
	return nil
}

func (s *RedemptionStore) GetByID(id string) (*model.RewardRedemption, error) {
	row := s.db.QueryRow(`SELECT `+redemptionCols+` FROM redemptions WHERE id = ?`, id)
	r, err := scanRedemption(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get redemption: %w", err)
	}
	return r, nil
}

func (s *RedemptionStore) List() ([]model.RewardRedemption, error) {
	rows, err := s.db.Query(`SELECT ` + redemptionCols + ` FROM redemptions ORDER BY requested_at DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list redemptions: %w", err)
	}
	defer rows.Close()
	return collectRedemptions(rows)
}

func (s *RedemptionStore) ListForUser(userID string) ([]model.RewardRedemption, error) {
	rows, err := s.db.Query(`SELECT `+redemptionCols+` FROM redemptions WHERE user_id = ? ORDER BY requested_at DESC, id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list redemptions for user: %w", err)
	}
	defer rows.Close()
	return collectRedemptions(rows)
}

func collectRedemptions(rows *sql.Rows) ([]model.RewardRedemption, error) {
	var redemptions []model.RewardRedemption
	for rows.Next() {
		r, err := scanRedemption(rows)
		if err != nil {
			return nil, fmt.Errorf("scan redemption: %w", err)
		}
		redemptions = append(redemptions, *r)
	}
	return redemptions, rows.Err()
}

func (s *RedemptionStore) Delete(id string) error {
	if _, err := s.db.Exec(`DELETE FROM redemptions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete redemption: %w", err)
	}
	s.hub.Publish(notify.Event{Entity: EntityRedemptions, Action: "deleted", ID: id})
	return nil
}

func (s *RedemptionStore) ReplaceAll(redemptions []model.RewardRedemption) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM redemptions`); err != nil {
		return fmt.Errorf("clear redemptions: %w", err)
	}
	for _, r := range redemptions {
		if _, err := tx.Exec(redemptionUpsert, redemptionArgs(r)...); err != nil {
			return fmt.Errorf("insert redemption: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.hub.Publish(notify.Event{Entity: EntityRedemptions, Action: "replaced"})
	return nil
}

func (s *RedemptionStore) DeleteAll() error {
	if _, err := s.db.Exec(`DELETE FROM redemptions`); err != nil {
		return fmt.Errorf("delete all redemptions: %w", err)
	}
	s.hub.Publish(notify.Event{Entity: EntityRedemptions, Action: "replaced"})
	return nil
}

// Watch streams the redemption list, re-emitting on every local mutation.
func (s *RedemptionStore) Watch(ctx context.Context) <-chan []model.RewardRedemption {
	return watchList(ctx, s.hub, EntityRedemptions, s.List)
}
