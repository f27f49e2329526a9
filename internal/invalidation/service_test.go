package invalidation

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/chandrahoro/reading-service/internal/cache"
	"github.com/chandrahoro/reading-service/internal/model"
	"github.com/chandrahoro/reading-service/internal/store"
	"github.com/chandrahoro/reading-service/internal/store/sqlite"
)

func newTestService(t *testing.T) (*Service, cache.Store, *cache.ReadingCache, store.Store) {
	t.Helper()
	db, err := sqlite.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, sqlite.EnsureSchema(context.Background(), db))

	repo := sqlite.NewWithDB(db)
	kv := cache.NewMemoryStore()
	rc := cache.NewReadingCache(kv, cache.NewStatsSink(), zerolog.Nop())
	svc := NewService(kv, rc, repo, 2, 0, zerolog.Nop())
	return svc, kv, rc, repo
}

func seedUser(t *testing.T, repo store.Store) *model.User {
	t.Helper()
	u, err := repo.Users().Create(context.Background(), &model.User{
		Email:      "test@chandrahoro.example",
		TimeZone:   "Asia/Kolkata",
		DailyQuota: 10,
	})
	require.NoError(t, err)
	return u
}

func seedReading(t *testing.T, repo store.Store, userID, date string) *model.Reading {
	t.Helper()
	r, err := repo.Readings().Create(context.Background(), &model.Reading{
		UserID:      userID,
		ReadingDate: date,
		ReadingType: model.ReadingTypeDaily,
		Guidance:    model.Guidance{Work: "steady progress"},
	})
	require.NoError(t, err)
	return r
}

func TestInvalidateByPattern(t *testing.T) {
	svc, kv, rc, _ := newTestService(t)
	ctx := context.Background()

	for _, date := range []string{"2025-01-01", "2025-01-02", "2025-01-03"} {
		require.NoError(t, rc.SetReading(ctx, "u1", date, &model.Reading{UserID: "u1", ReadingDate: date}))
	}
	require.NoError(t, rc.SetReading(ctx, "u2", "2025-01-01", &model.Reading{UserID: "u2", ReadingDate: "2025-01-01"}))

	rep, err := svc.InvalidateByPattern(ctx, cache.UserReadingPattern("u1"), false)
	require.NoError(t, err)
	require.Equal(t, 3, rep.KeysFound)
	require.Equal(t, 3, rep.KeysDeleted)
	require.Empty(t, rep.Errors)

	n, err := kv.DBSize(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestDryRunLeavesStoreUntouched(t *testing.T) {
	svc, kv, rc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, rc.SetReading(ctx, "u1", "2025-01-01", &model.Reading{UserID: "u1"}))

	rep, err := svc.InvalidateByPattern(ctx, cache.AllReadingPattern(), true)
	require.NoError(t, err)
	require.Equal(t, 1, rep.KeysFound)
	require.Zero(t, rep.KeysDeleted)
	require.True(t, rep.DryRun)

	n, err := kv.DBSize(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestInvalidateUserCacheAllClasses(t *testing.T) {
	svc, kv, rc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, rc.SetReading(ctx, "u1", "2025-01-01", &model.Reading{UserID: "u1"}))
	require.NoError(t, rc.SetList(ctx, "u1", []*model.Reading{{UserID: "u1"}}))
	require.NoError(t, rc.SetLatest(ctx, "u1", &model.Reading{UserID: "u1"}))
	require.NoError(t, rc.SetLatest(ctx, "u2", &model.Reading{UserID: "u2"}))

	rep, err := svc.InvalidateUserCache(ctx, "u1", ClassAll)
	require.NoError(t, err)
	require.Equal(t, 3, rep.KeysDeleted)

	n, err := kv.DBSize(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestInvalidateUserCacheSingleClass(t *testing.T) {
	svc, _, rc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, rc.SetList(ctx, "u1", []*model.Reading{{UserID: "u1"}}))
	require.NoError(t, rc.SetLatest(ctx, "u1", &model.Reading{UserID: "u1"}))

	rep, err := svc.InvalidateUserCache(ctx, "u1", ClassList)
	require.NoError(t, err)
	require.Equal(t, 1, rep.KeysDeleted)

	_, found, err := rc.GetLatest(ctx, "u1")
	require.NoError(t, err)
	require.True(t, found)
}

func TestCleanupOldEntries(t *testing.T) {
	svc, _, rc, _ := newTestService(t)
	ctx := context.Background()

	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	old := now.AddDate(0, 0, -31).Format(model.DateLayout)
	boundary := now.AddDate(0, 0, -30).Format(model.DateLayout)
	fresh := now.Format(model.DateLayout)

	require.NoError(t, rc.SetReading(ctx, "u1", old, &model.Reading{UserID: "u1"}))
	require.NoError(t, rc.SetReading(ctx, "u1", boundary, &model.Reading{UserID: "u1"}))
	require.NoError(t, rc.SetReading(ctx, "u1", fresh, &model.Reading{UserID: "u1"}))
	// A list key has no date segment and never matches the scan pattern.
	require.NoError(t, rc.SetList(ctx, "u1", nil))

	rep, err := svc.CleanupOldEntries(ctx, 30, false)
	require.NoError(t, err)
	require.Equal(t, 3, rep.Scanned)
	require.Equal(t, 1, rep.KeysDeleted)

	// Exactly at the cutoff survives; only strictly older goes.
	_, found, err := rc.GetReading(ctx, "u1", boundary)
	require.NoError(t, err)
	require.True(t, found)
	_, found, err = rc.GetReading(ctx, "u1", old)
	require.NoError(t, err)
	require.False(t, found)
}

func TestCleanupDryRun(t *testing.T) {
	svc, _, rc, _ := newTestService(t)
	ctx := context.Background()

	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	old := now.AddDate(0, 0, -40).Format(model.DateLayout)
	require.NoError(t, rc.SetReading(ctx, "u1", old, &model.Reading{UserID: "u1"}))

	rep, err := svc.CleanupOldEntries(ctx, 30, true)
	require.NoError(t, err)
	require.Zero(t, rep.KeysDeleted)

	_, found, err := rc.GetReading(ctx, "u1", old)
	require.NoError(t, err)
	require.True(t, found)
}

func TestWarmUserCache(t *testing.T) {
	svc, _, rc, repo := newTestService(t)
	ctx := context.Background()

	u := seedUser(t, repo)
	today := time.Now().UTC()
	d1 := today.AddDate(0, 0, -1).Format(model.DateLayout)
	d2 := today.Format(model.DateLayout)
	seedReading(t, repo, u.UserID, d1)
	seedReading(t, repo, u.UserID, d2)

	rep, err := svc.WarmUserCache(ctx, u.UserID, 7, model.ReadingTypeDaily)
	require.NoError(t, err)
	// Two readings plus the latest pointer.
	require.Equal(t, 3, rep.Warmed)
	require.Empty(t, rep.Errors)

	_, found, err := rc.GetReading(ctx, u.UserID, d1)
	require.NoError(t, err)
	require.True(t, found)
	latest, found, err := rc.GetLatest(ctx, u.UserID)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, d2, latest.ReadingDate)
}

func TestCacheHealth(t *testing.T) {
	svc, _, rc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, rc.SetReading(ctx, "u1", "2025-01-01", &model.Reading{UserID: "u1"}))
	require.NoError(t, rc.SetReading(ctx, "u1", "2025-01-02", &model.Reading{UserID: "u1"}))
	require.NoError(t, rc.SetList(ctx, "u1", nil))
	require.NoError(t, rc.SetLatest(ctx, "u1", &model.Reading{UserID: "u1"}))

	rep, err := svc.CacheHealth(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(4), rep.TotalKeys)
	require.Equal(t, 2, rep.ReadingKeys)
	require.Equal(t, 1, rep.ListKeys)
	require.Equal(t, 1, rep.LatestKeys)
	require.Equal(t, 2, rep.SampleSize)
	require.Zero(t, rep.ExpiredSampled)
	require.NotEmpty(t, rep.MemoryUsed)
}

func TestCacheHealthIgnoresLockMarkers(t *testing.T) {
	svc, kv, rc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, rc.SetReading(ctx, "u1", "2025-01-01", &model.Reading{UserID: "u1"}))
	ok, err := kv.SetNX(ctx, cache.LockKey("u1", "2025-01-02"), "1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	rep, err := svc.CacheHealth(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), rep.TotalKeys)
	require.Equal(t, 1, rep.ReadingKeys)
	require.Equal(t, 1, rep.SampleSize)
	require.Zero(t, rep.ExpiredSampled)
}

func TestEmergencyFlushRequiresConfirm(t *testing.T) {
	svc, _, rc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, rc.SetReading(ctx, "u1", "2025-01-01", &model.Reading{UserID: "u1"}))

	_, err := svc.EmergencyFlush(ctx, "reading:*", false)
	require.ErrorIs(t, err, model.ErrConfirmationRequired)

	// The store is untouched after a refused flush.
	_, found, err := rc.GetReading(ctx, "u1", "2025-01-01")
	require.NoError(t, err)
	require.True(t, found)

	rep, err := svc.EmergencyFlush(ctx, "reading:*:*:*", true)
	require.NoError(t, err)
	require.Equal(t, 1, rep.KeysDeleted)
}

func TestRefreshCacheFreshEntry(t *testing.T) {
	svc, _, rc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, rc.SetReading(ctx, "u1", "2025-01-01", &model.Reading{UserID: "u1"}))

	rep, err := svc.RefreshCache(ctx, "u1", "2025-01-01", false)
	require.NoError(t, err)
	require.False(t, rep.Refreshed)
	require.Equal(t, "cache still fresh", rep.Reason)
}

func TestRefreshCacheAbsentEntry(t *testing.T) {
	svc, _, rc, repo := newTestService(t)
	ctx := context.Background()

	u := seedUser(t, repo)
	seedReading(t, repo, u.UserID, "2025-01-01")

	rep, err := svc.RefreshCache(ctx, u.UserID, "2025-01-01", false)
	require.NoError(t, err)
	require.True(t, rep.Refreshed)
	require.Equal(t, "entry absent", rep.Reason)

	_, found, err := rc.GetReading(ctx, u.UserID, "2025-01-01")
	require.NoError(t, err)
	require.True(t, found)
}

func TestRefreshCacheForced(t *testing.T) {
	svc, _, rc, repo := newTestService(t)
	ctx := context.Background()

	u := seedUser(t, repo)
	seedReading(t, repo, u.UserID, "2025-01-01")
	require.NoError(t, rc.SetReading(ctx, u.UserID, "2025-01-01", &model.Reading{UserID: u.UserID, ReadingDate: "2025-01-01"}))

	rep, err := svc.RefreshCache(ctx, u.UserID, "2025-01-01", true)
	require.NoError(t, err)
	require.True(t, rep.Refreshed)
	require.Equal(t, "forced", rep.Reason)
}

func TestRefreshCacheMissingFromRepo(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	_, err := svc.RefreshCache(context.Background(), "nobody", "2025-01-01", false)
	require.ErrorIs(t, err, model.ErrNotFound)
}
