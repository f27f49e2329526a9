package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/chandrahoro/reading-service/internal/cache"
	"github.com/chandrahoro/reading-service/internal/invalidation"
	"github.com/chandrahoro/reading-service/internal/model"
	"github.com/chandrahoro/reading-service/internal/services"
	"github.com/chandrahoro/reading-service/internal/store"
	"github.com/chandrahoro/reading-service/internal/store/sqlite"
)

type stubGenerator struct{ calls int }

func (g *stubGenerator) Generate(ctx context.Context, userID, date string) (*model.Reading, error) {
	g.calls++
	return &model.Reading{UserID: userID, ReadingDate: date, ReadingType: model.ReadingTypeDaily}, nil
}

func newTestRunner(t *testing.T) (*Runner, store.Store, *stubGenerator, *cache.ReadingCache) {
	t.Helper()
	db, err := sqlite.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, sqlite.EnsureSchema(context.Background(), db))

	repo := sqlite.NewWithDB(db)
	kv := cache.NewMemoryStore()
	rc := cache.NewReadingCache(kv, cache.NewStatsSink(), zerolog.Nop())
	gen := &stubGenerator{}

	rs := services.NewReadingService(repo, rc, gen, time.Minute, zerolog.Nop())
	us := services.NewUserService(repo, rc, zerolog.Nop())
	inv := invalidation.NewService(kv, rc, repo, 100, 0, zerolog.Nop())

	runner := NewRunner(rs, us, inv, Config{
		Interval:     time.Hour,
		PerUserDelay: time.Millisecond,
	}, zerolog.Nop())
	return runner, repo, gen, rc
}

func seedActiveUser(t *testing.T, repo store.Store, email string) *model.User {
	t.Helper()
	u, err := repo.Users().Create(context.Background(), &model.User{Email: email, DailyQuota: 10})
	require.NoError(t, err)
	return u
}

func TestDailyBatchGeneratesForActiveUsers(t *testing.T) {
	runner, repo, gen, _ := newTestRunner(t)
	ctx := context.Background()

	u1 := seedActiveUser(t, repo, "one@chandrahoro.example")
	u2 := seedActiveUser(t, repo, "two@chandrahoro.example")

	today := time.Now().UTC().Format(model.DateLayout)
	require.NoError(t, runner.dailyBatch(ctx, today))
	require.Equal(t, 2, gen.calls)

	for _, u := range []*model.User{u1, u2} {
		_, err := repo.Readings().Get(ctx, u.UserID, today, model.ReadingTypeDaily)
		require.NoError(t, err)
	}
}

func TestDailyBatchSkipsExistingReadings(t *testing.T) {
	runner, repo, gen, _ := newTestRunner(t)
	ctx := context.Background()

	u := seedActiveUser(t, repo, "one@chandrahoro.example")
	today := time.Now().UTC().Format(model.DateLayout)
	_, err := repo.Readings().Create(ctx, &model.Reading{
		UserID:      u.UserID,
		ReadingDate: today,
		ReadingType: model.ReadingTypeDaily,
	})
	require.NoError(t, err)

	require.NoError(t, runner.dailyBatch(ctx, today))
	require.Zero(t, gen.calls)

	// The existence check leaves the row untouched.
	r, err := repo.Readings().Get(ctx, u.UserID, today, model.ReadingTypeDaily)
	require.NoError(t, err)
	require.False(t, r.IsRead)
}

func TestResetQuotas(t *testing.T) {
	runner, repo, _, _ := newTestRunner(t)
	ctx := context.Background()

	u := seedActiveUser(t, repo, "one@chandrahoro.example")
	_, err := repo.Users().ConsumeQuota(ctx, u.UserID)
	require.NoError(t, err)

	require.NoError(t, runner.resetQuotas(ctx))

	got, err := repo.Users().Get(ctx, u.UserID)
	require.NoError(t, err)
	require.Zero(t, got.QuotaUsed)
}

func TestCleanupOnce(t *testing.T) {
	runner, _, _, rc := newTestRunner(t)
	ctx := context.Background()

	old := time.Now().UTC().AddDate(0, 0, -45).Format(model.DateLayout)
	require.NoError(t, rc.SetReading(ctx, "u1", old, &model.Reading{UserID: "u1"}))

	require.NoError(t, runner.cleanupOnce(ctx))

	_, found, err := rc.GetReading(ctx, "u1", old)
	require.NoError(t, err)
	require.False(t, found)
}
