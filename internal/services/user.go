package services

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/chandrahoro/reading-service/internal/cache"
	"github.com/chandrahoro/reading-service/internal/model"
	"github.com/chandrahoro/reading-service/internal/store"
)

// UserService wraps user lifecycle operations. Deleting a user cascades
// through the repository and tears down the user's cache entries.
type UserService struct {
	store  store.Store
	rcache *cache.ReadingCache
	log    zerolog.Logger
}

func NewUserService(st store.Store, rc *cache.ReadingCache, log zerolog.Logger) *UserService {
	return &UserService{store: st, rcache: rc, log: log}
}

func (s *UserService) Create(ctx context.Context, u *model.User) (*model.User, error) {
	return s.store.Users().Create(ctx, u)
}

func (s *UserService) Get(ctx context.Context, userID string) (*model.User, error) {
	return s.store.Users().Get(ctx, userID)
}

func (s *UserService) Delete(ctx context.Context, userID string) error {
	if err := s.store.Users().Delete(ctx, userID); err != nil {
		return err
	}
	if err := s.rcache.DeleteAllForUser(ctx, userID); err != nil {
		s.log.Warn().Err(err).Str("user", userID).Msg("cache teardown incomplete after user delete")
	}
	return nil
}

func (s *UserService) ListActive(ctx context.Context) ([]*model.User, error) {
	return s.store.Users().ListActive(ctx)
}

// ResetAllQuotas restores every user's daily generation allowance.
func (s *UserService) ResetAllQuotas(ctx context.Context) (int64, error) {
	return s.store.Users().ResetAllQuotas(ctx)
}
