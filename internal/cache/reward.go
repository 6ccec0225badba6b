package cache

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mknutsen/chorequest/internal/model"
	"github.com/mknutsen/chorequest/internal/notify"
)

type RewardStore struct {
	db  *sql.DB
	hub *notify.Hub
}

func NewRewardStore(db *sql.DB, hub *notify.Hub) *RewardStore {
	return &RewardStore{db: db, hub: hub}
}

const rewardCols = `id, title, description, point_cost, image_url, available, quantity, created_at, updated_at`

func scanReward(scanner interface{ Scan(...any) error }) (*model.Reward, error) {
	var r model.Reward
	var quantity sql.NullInt64

	err := scanner.Scan(&r.ID, &r.Title, &r.Description, &r.PointCost, &r.ImageURL, &r.Available, &quantity, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if quantity.Valid {
		q := int(quantity.Int64)
		r.Quantity = &q
	}
	return &r, nil
}

const rewardUpsert = `INSERT INTO rewards (` + rewardCols + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title, description = excluded.description,
		point_cost = excluded.point_cost, image_url = excluded.image_url,
		available = excluded.available, quantity = excluded.quantity,
		updated_at = excluded.updated_at`

func rewardArgs(r model.Reward) []any {
	var quantity sql.NullInt64
	if r.Quantity != nil {
		quantity = sql.NullInt64{Int64: int64(*r.Quantity), Valid: true}
	}
	return []any{r.ID, r.Title, r.Description, r.PointCost, r.ImageURL, r.Available, quantity, r.CreatedAt.UTC(), r.UpdatedAt.UTC()}
}

func (s *RewardStore) Upsert(r model.Reward) error {
	if _, err := s.db.Exec(rewardUpsert, rewardArgs(r)...); err != nil {
		return fmt.Errorf("upsert reward: %w", err)
	}
	s.hub.Publish(notify.Event{Entity: EntityRewards, Action: "updated", ID: r.ID})
	return nil
}

func (s *RewardStore) GetByID(id string) (*model.Reward, error) {
	row := s.db.QueryRow(`SELECT `+rewardCols+` FROM rewards WHERE id = ?`, id)
	r, err := scanReward(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reward: %w", err)
	}
	return r, nil
}

func (s *RewardStore) List() ([]model.Reward, error) {
	rows, err := s.db.Query(`SELECT ` + rewardCols + ` FROM rewards ORDER BY point_cost ASC, title ASC`)
	if err != nil {
		return nil, fmt.Errorf("list rewards: %w", err)
	}
	defer rows.Close()

	var rewards []model.Reward
	for rows.Next() {
		r, err := scanReward(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reward: %w", err)
		}
		rewards = append(rewards, *r)
	}
	return rewards, rows.Err()
}

func (s *RewardStore) Delete(id string) error {
	if _, err := s.db.Exec(`DELETE FROM rewards WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete reward: %w", err)
	}
	s.hub.Publish(notify.Event{Entity: EntityRewards, Action: "deleted", ID: id})
	return nil
}

func (s *RewardStore) ReplaceAll(rewards []model.Reward) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM rewards`); err != nil {
		return fmt.Errorf("clear rewards: %w", err)
	}
	for _, r := range rewards {
		if _, err := tx.Exec(rewardUpsert, rewardArgs(r)...); err != nil {
			return fmt.Errorf("insert reward: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.hub.Publish(notify.Event{Entity: EntityRewards, Action: "replaced"})
	return nil
}

func (s *RewardStore) DeleteAll() error {
	if _, err := s.db.Exec(`DELETE FROM rewards`); err != nil {
		return fmt.Errorf("delete all rewards: %w", err)
	}
	s.hub.Publish(notify.Event{Entity: EntityRewards, Action: "replaced"})
	return nil
}

// Watch streams the reward list, re-emitting on every local mutation.
func (s *RewardStore) Watch(ctx context.Context) <-chan []model.Reward {
	return watchList(ctx, s.hub, EntityRewards, s.List)
}
