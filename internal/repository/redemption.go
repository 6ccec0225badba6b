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

// RedemptionRepo manages reward redemption requests. Point balances are
// never validated here: a redemption is requested optimistically and
// the remote side is the authority on whether the user can afford it.
type RedemptionRepo struct {
	backend     *Backend
	redemptions *cache.RedemptionStore
	activity    *ActivityRepo
	now         func() time.Time
}

func NewRedemptionRepo(b *Backend, redemptions *cache.RedemptionStore, activity *ActivityRepo) *RedemptionRepo {
	return &RedemptionRepo{backend: b, redemptions: redemptions, activity: activity, now: time.Now}
}

// Redeem files a pending redemption request for the user.
func (r *RedemptionRepo) Redeem(ctx context.Context, rewardID, userID string) (*model.RewardRedemption, error) {
	sess, err := r.backend.requireSession()
	if err != nil {
		return nil, err
	}
	redemption := model.RewardRedemption{
		ID:          uuid.NewString(),
		RewardID:    rewardID,
		UserID:      userID,
		Status:      model.RedemptionPending,
		RequestedAt: r.now().UTC(),
	}

	stored := redemption
	err = r.backend.writeThrough(ctx,
		func(ctx context.Context, creds model.DriveCredentials) error {
			return editDocument(ctx, r.backend.Drive, creds, sess.DriveFolder, model.RedemptionsFile, func(doc *model.RedemptionDocument) error {
				doc.Redemptions = upsertByID(doc.Redemptions, redemptionID, redemption)
				return nil
			})
		},
		func(ctx context.Context, token string) error {
			echoed, err := r.backend.RPC.RedeemReward(ctx, token, rewardID, userID)
			if err != nil {
				return err
			}
			stored = *echoed
			return nil
		},
		func() error { return r.redemptions.Upsert(stored) },
	)
	if err != nil {
		return nil, err
	}
	r.backend.logActivity(ctx, r.activity, model.ActivityLog{
		ActionType: model.ActionRewardRedeemed,
		ActorID:    userID,
		Details:    map[string]any{"redemption_id": stored.ID, "reward_id": rewardID},
	})
	return &stored, nil
}

// Approve grants a pending redemption. Approval moves points and
// reward inventory in one place, so it always goes through the RPC
// backend rather than editing three drive documents non-atomically.
// Balances and quantities land in the cache on the next sync.
func (r *RedemptionRepo) Approve(ctx context.Context, redemptionID, resolverID string) (*model.RewardRedemption, error) {
	if _, err := r.backend.requireSession(); err != nil {
		return nil, err
	}
	var stored model.RewardRedemption
	err := r.backend.writeThrough(ctx,
		nil,
		func(ctx context.Context, token string) error {
			echoed, err := r.backend.RPC.ResolveRedemption(ctx, token, redemptionID, resolverID, true)
			if err != nil {
				return err
			}
			stored = *echoed
			return nil
		},
		func() error { return r.redemptions.Upsert(stored) },
	)
	if err != nil {
		return nil, err
	}
	r.backend.requestRefresh()
	r.backend.logActivity(ctx, r.activity, model.ActivityLog{
		ActionType: model.ActionRedemptionResolved,
		ActorID:    resolverID,
		Details:    map[string]any{"redemption_id": redemptionID, "approved": true},
	})
	return &stored, nil
}

// Deny rejects a pending redemption. No points move, so the drive path
// can flip the status in place.
func (r *RedemptionRepo) Deny(ctx context.Context, redemptionID, resolverID string) (*model.RewardRedemption, error) {
	sess, err := r.backend.requireSession()
	if err != nil {
		return nil, err
	}
	now := r.now().UTC()

	var stored model.RewardRedemption
	err = r.backend.writeThrough(ctx,
		func(ctx context.Context, creds model.DriveCredentials) error {
			return editDocument(ctx, r.backend.Drive, creds, sess.DriveFolder, model.RedemptionsFile, func(doc *model.RedemptionDocument) error {
				target := findByID(doc.Redemptions, func(rd model.RewardRedemption) string { return rd.ID }, redemptionID)
				if target == nil {
					return fmt.Errorf("redemption %s: %w", redemptionID, errs.ErrNotFound)
				}
				if target.Status != model.RedemptionPending {
					return fmt.Errorf("redemption %s already %s", redemptionID, target.Status)
				}
				target.Status = model.RedemptionDenied
				target.ResolvedBy = resolverID
				target.ResolvedAt = &now
				stored = *target
				return nil
			})
		},
		func(ctx context.Context, token string) error {
			echoed, err := r.backend.RPC.ResolveRedemption(ctx, token, redemptionID, resolverID, false)
			if err != nil {
				return err
			}
			stored = *echoed
			return nil
		},
		func() error { return r.redemptions.Upsert(stored) },
	)
	if err != nil {
		return nil, err
	}
	r.backend.logActivity(ctx, r.activity, model.ActivityLog{
		ActionType: model.ActionRedemptionResolved,
		ActorID:    resolverID,
		Details:    map[string]any{"redemption_id": redemptionID, "approved": false},
	})
	return &stored, nil
}

func (r *RedemptionRepo) Get(redemptionID string) (*model.RewardRedemption, error) {
	r.backend.requestRefresh()
	return r.redemptions.GetByID(redemptionID)
}

func (r *RedemptionRepo) List() ([]model.RewardRedemption, error) {
	r.backend.requestRefresh()
	return r.redemptions.List()
}

func (r *RedemptionRepo) ListForUser(userID string) ([]model.RewardRedemption, error) {
	r.backend.requestRefresh()
	return r.redemptions.ListForUser(userID)
}

func (r *RedemptionRepo) Watch(ctx context.Context) <-chan []model.RewardRedemption {
	return r.redemptions.Watch(ctx)
}

func redemptionID(rd model.RewardRedemption) string { return rd.ID }
