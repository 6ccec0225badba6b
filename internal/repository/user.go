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

// UserRepo manages family member accounts.
type UserRepo struct {
	backend  *Backend
	users    *cache.UserStore
	activity *ActivityRepo
	now      func() time.Time
}

func NewUserRepo(b *Backend, users *cache.UserStore, activity *ActivityRepo) *UserRepo {
	return &UserRepo{backend: b, users: users, activity: activity, now: time.Now}
}

func (r *UserRepo) Create(ctx context.Context, user model.User) (*model.User, error) {
	sess, err := r.backend.requireSession()
	if err != nil {
		return nil, err
	}
	now := r.now().UTC()
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.CreatedAt = now
	user.UpdatedAt = now

	stored := user
	err = r.backend.writeThrough(ctx,
		func(ctx context.Context, creds model.DriveCredentials) error {
			return editDocument(ctx, r.backend.Drive, creds, sess.DriveFolder, model.UsersFile, func(doc *model.UserDocument) error {
				doc.Users = upsertByID(doc.Users, userID, user)
				return nil
			})
		},
		func(ctx context.Context, token string) error {
			echoed, err := r.backend.RPC.CreateUser(ctx, token, user)
			if err != nil {
				return err
			}
			stored = *echoed
			return nil
		},
		func() error { return r.users.Upsert(stored) },
	)
	if err != nil {
		return nil, err
	}
	r.backend.logActivity(ctx, r.activity, model.ActivityLog{
		ActionType:     model.ActionUserJoined,
		TargetUserID:   stored.ID,
		TargetUserName: stored.Name,
	})
	return &stored, nil
}

func (r *UserRepo) Update(ctx context.Context, user model.User) (*model.User, error) {
	sess, err := r.backend.requireSession()
	if err != nil {
		return nil, err
	}
	user.UpdatedAt = r.now().UTC()

	stored := user
	err = r.backend.writeThrough(ctx,
		func(ctx context.Context, creds model.DriveCredentials) error {
			return editDocument(ctx, r.backend.Drive, creds, sess.DriveFolder, model.UsersFile, func(doc *model.UserDocument) error {
				if findByID(doc.Users, userID, user.ID) == nil {
					return fmt.Errorf("user %s: %w", user.ID, errs.ErrNotFound)
				}
				doc.Users = upsertByID(doc.Users, userID, user)
				return nil
			})
		},
		func(ctx context.Context, token string) error {
			echoed, err := r.backend.RPC.UpdateUser(ctx, token, user)
			if err != nil {
				return err
			}
			stored = *echoed
			return nil
		},
		func() error { return r.users.Upsert(stored) },
	)
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// Delete removes a family member. The signed-in user cannot delete
// themselves; sign out and account removal are separate flows.
func (r *UserRepo) Delete(ctx context.Context, id string) error {
	sess, err := r.backend.requireSession()
	if err != nil {
		return err
	}
	if id == sess.UserID {
		return fmt.Errorf("delete user %s: cannot delete the signed-in user", id)
	}
	return r.backend.writeThrough(ctx,
		func(ctx context.Context, creds model.DriveCredentials) error {
			return editDocument(ctx, r.backend.Drive, creds, sess.DriveFolder, model.UsersFile, func(doc *model.UserDocument) error {
				doc.Users, _ = removeByID(doc.Users, userID, id)
				return nil
			})
		},
		func(ctx context.Context, token string) error {
			return r.backend.RPC.DeleteUser(ctx, token, id)
		},
		func() error { return r.users.Delete(id) },
	)
}

func (r *UserRepo) Get(id string) (*model.User, error) {
	r.backend.requestRefresh()
	return r.users.GetByID(id)
}

func (r *UserRepo) List() ([]model.User, error) {
	r.backend.requestRefresh()
	return r.users.List()
}

// Current returns the signed-in user's cached record.
func (r *UserRepo) Current() (*model.User, error) {
	sess, err := r.backend.requireSession()
	if err != nil {
		return nil, err
	}
	return r.users.GetByID(sess.UserID)
}

func (r *UserRepo) PrimaryParent() (*model.User, error) {
	return r.users.PrimaryParent()
}

func (r *UserRepo) Watch(ctx context.Context) <-chan []model.User {
	return r.users.Watch(ctx)
}

func userID(u model.User) string { return u.ID }
