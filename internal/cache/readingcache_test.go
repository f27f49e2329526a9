package cache

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/chandrahoro/reading-service/internal/model"
)

func newTestCache(t *testing.T) *ReadingCache {
	t.Helper()
	return NewReadingCache(NewMemoryStore(), NewStatsSink(), zerolog.Nop())
}

func sampleReading(userID, date string) *model.Reading {
	return &model.Reading{
		ReadingID:   "r-" + userID + "-" + date,
		UserID:      userID,
		ReadingDate: date,
		ReadingType: model.ReadingTypeDaily,
		Guidance: model.Guidance{
			Work: "favorable day for new beginnings",
		},
	}
}

func TestReadingRoundTrip(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	_, found, err := c.GetReading(ctx, "u1", "2025-03-14")
	require.NoError(t, err)
	require.False(t, found)

	in := sampleReading("u1", "2025-03-14")
	require.NoError(t, c.SetReading(ctx, "u1", "2025-03-14", in))

	out, found, err := c.GetReading(ctx, "u1", "2025-03-14")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, in.ReadingID, out.ReadingID)
	require.Equal(t, in.Guidance.Work, out.Guidance.Work)

	stats := c.Stats()
	require.Equal(t, int64(1), stats.Hits)
	require.Equal(t, int64(1), stats.Misses)
	require.Equal(t, int64(2), stats.TotalRequests)
	require.InDelta(t, 0.5, stats.HitRate, 0.001)
}

func TestCorruptEntryBehavesLikeMiss(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	key := ReadingKey(model.ReadingTypeDaily, "u1", "2025-03-14")
	require.NoError(t, c.Store().Set(ctx, key, "{not json", time.Minute))

	_, found, err := c.GetReading(ctx, "u1", "2025-03-14")
	require.NoError(t, err)
	require.False(t, found)
	require.Equal(t, int64(1), c.Stats().Misses)

	// The corrupt entry is dropped so the next write starts clean.
	exists, err := c.Store().Exists(ctx, key)
	require.NoError(t, err)
	require.False(t, exists)
}

func TestTTLOrdering(t *testing.T) {
	require.Greater(t, ReadingTTL, LatestTTL)
	require.Greater(t, LatestTTL, ListTTL)
	require.Equal(t, 24*time.Hour, ReadingTTL)
	require.Equal(t, time.Hour, LatestTTL)
	require.Equal(t, 5*time.Minute, ListTTL)
}

func TestTTLOverride(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.SetReading(ctx, "u1", "2025-03-14", sampleReading("u1", "2025-03-14"), 30*time.Second))
	ttl, err := c.EntryTTL(ctx, "u1", "2025-03-14")
	require.NoError(t, err)
	require.LessOrEqual(t, ttl, int64(30))
	require.GreaterOrEqual(t, ttl, int64(1))
}

func TestEntryTTLSentinels(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	ttl, err := c.EntryTTL(ctx, "u1", "2025-03-14")
	require.NoError(t, err)
	require.Equal(t, TTLMissing, ttl)
}

func TestListRoundTrip(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	rs := []*model.Reading{
		sampleReading("u1", "2025-03-14"),
		sampleReading("u1", "2025-03-13"),
	}
	require.NoError(t, c.SetList(ctx, "u1", rs))

	out, found, err := c.GetList(ctx, "u1")
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, out, 2)

	require.NoError(t, c.DeleteList(ctx, "u1"))
	_, found, err = c.GetList(ctx, "u1")
	require.NoError(t, err)
	require.False(t, found)
}

func TestLatestRoundTrip(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.SetLatest(ctx, "u1", sampleReading("u1", "2025-03-14")))
	out, found, err := c.GetLatest(ctx, "u1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "2025-03-14", out.ReadingDate)
}

func TestDeleteIsIdempotent(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.DeleteReading(ctx, "u1", "2025-03-14"))
	require.NoError(t, c.DeleteList(ctx, "u1"))
	require.NoError(t, c.DeleteLatest(ctx, "u1"))
}

func TestDeleteAllForUser(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.SetReading(ctx, "u1", "2025-03-13", sampleReading("u1", "2025-03-13")))
	require.NoError(t, c.SetReading(ctx, "u1", "2025-03-14", sampleReading("u1", "2025-03-14")))
	require.NoError(t, c.SetList(ctx, "u1", []*model.Reading{sampleReading("u1", "2025-03-14")}))
	require.NoError(t, c.SetLatest(ctx, "u1", sampleReading("u1", "2025-03-14")))

	// Another user's entries must survive the teardown.
	require.NoError(t, c.SetReading(ctx, "u2", "2025-03-14", sampleReading("u2", "2025-03-14")))

	require.NoError(t, c.DeleteAllForUser(ctx, "u1"))

	n, err := c.Store().DBSize(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	_, found, err := c.GetReading(ctx, "u2", "2025-03-14")
	require.NoError(t, err)
	require.True(t, found)
}

func TestStatsReset(t *testing.T) {
	sink := NewStatsSink()
	c := NewReadingCache(NewMemoryStore(), sink, zerolog.Nop())
	ctx := context.Background()

	_, _, _ = c.GetReading(ctx, "u1", "2025-03-14")
	require.Equal(t, int64(1), c.Stats().TotalRequests)

	sink.Reset()
	stats := c.Stats()
	require.Zero(t, stats.Hits)
	require.Zero(t, stats.Misses)
	require.Zero(t, stats.HitRate)
}
