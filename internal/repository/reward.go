package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mknutsen/chorequest/internal/cache"
	"github.com/mknutsen/chorequest/internal/errs"
	"github.com/mknutsen/chorequest/internal/model"
)

// RewardRepo manages the reward catalog.
type RewardRepo struct {
	backend *Backend
	rewards *cache.RewardStore
	now     func() time.Time
}

func NewRewardRepo(b *Backend, rewards *cache.RewardStore) *RewardRepo {
	return &RewardRepo{backend: b, rewards: rewards, now: time.Now}
}

func (r *RewardRepo) Create(ctx context.Context, reward model.Reward) (*model.Reward, error) {
	sess, err := r.backend.requireSession()
	if err != nil {
		return nil, err
	}
	now := r.now().UTC()
	if reward.ID == "" {
		reward.ID = uuid.NewString()
	}
	reward.CreatedAt = now
	reward.UpdatedAt = now

	stored := reward
	err = r.backend.writeThrough(ctx,
		func(ctx context.Context, creds model.DriveCredentials) error {
			return editDocument(ctx, r.backend.Drive, creds, sess.DriveFolder, model.RewardsFile, func(doc *model.RewardDocument) error {
				doc.Rewards = upsertByID(doc.Rewards, rewardID, reward)
				return nil
			})
		},
		func(ctx context.Context, token string) error {
			echoed, err := r.backend.RPC.CreateReward(ctx, token, reward)
			if err != nil {
				return err
			}
			stored = *echoed
			return nil
		},
		func() error { return r.rewards.Upsert(stored) },
	)
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

func (r *RewardRepo) Update(ctx context.Context, reward model.Reward) (*model.Reward, error) {
	sess, err := r.backend.requireSession()
	if err != nil {
		return nil, err
	}
	reward.UpdatedAt = r.now().UTC()

	stored := reward
	err = r.backend.writeThrough(ctx,
		func(ctx context.Context, creds model.DriveCredentials) error {
			return editDocument(ctx, r.backend.Drive, creds, sess.DriveFolder, model.RewardsFile, func(doc *model.RewardDocument) error {
				if findByID(doc.Rewards, rewardID, reward.ID) == nil {
					return fmt.Errorf("reward %s: %w", reward.ID, errs.ErrNotFound)
				}
				doc.Rewards = upsertByID(doc.Rewards, rewardID, reward)
				return nil
			})
		},
		func(ctx context.Context, token string) error {
			echoed, err := r.backend.RPC.UpdateReward(ctx, token, reward)
			if err != nil {
				return err
			}
			stored = *echoed
			return nil
		},
		func() error { return r.rewards.Upsert(stored) },
	)
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

func (r *RewardRepo) Delete(ctx context.Context, rewardID string) error {
	sess, err := r.backend.requireSession()
	if err != nil {
		return err
	}
	return r.backend.writeThrough(ctx,
		func(ctx context.Context, creds model.DriveCredentials) error {
			return editDocument(ctx, r.backend.Drive, creds, sess.DriveFolder, model.RewardsFile, func(doc *model.RewardDocument) error {
				doc.Rewards, _ = removeByID(doc.Rewards, func(rw model.Reward) string { return rw.ID }, rewardID)
				return nil
			})
		},
		func(ctx context.Context, token string) error {
			return r.backend.RPC.DeleteReward(ctx, token, rewardID)
		},
		func() error { return r.rewards.Delete(rewardID) },
	)
}

func (r *RewardRepo) Get(rewardID string) (*model.Reward, error) {
	r.backend.requestRefresh()
	return r.rewards.GetByID(rewardID)
}

func (r *RewardRepo) List() ([]model.Reward, error) {
	r.backend.requestRefresh()
	return r.rewards.List()
}

func (r *RewardRepo) Watch(ctx context.Context) <-chan []model.Reward {
	return r.rewards.Watch(ctx)
}

func rewardID(r model.Reward) string { return r.ID }
