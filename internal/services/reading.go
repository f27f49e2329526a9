package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/chandrahoro/reading-service/internal/cache"
	"github.com/chandrahoro/reading-service/internal/generation"
	"github.com/chandrahoro/reading-service/internal/model"
	"github.com/chandrahoro/reading-service/internal/store"
)

// ReadingService orchestrates the cache-aside read path and the
// write-then-invalidate mutation path. The cache is an optimization only:
// every cache failure falls through to the repository, while repository
// and generation failures propagate to the caller.
type ReadingService struct {
	store   store.Store
	rcache  *cache.ReadingCache
	gen     generation.Generator
	log     zerolog.Logger
	lockTTL time.Duration
}

func NewReadingService(st store.Store, rc *cache.ReadingCache, gen generation.Generator, lockTTL time.Duration, log zerolog.Logger) *ReadingService {
	if lockTTL <= 0 {
		lockTTL = time.Minute
	}
	return &ReadingService{store: st, rcache: rc, gen: gen, log: log, lockTTL: lockTTL}
}

// GetOrGenerate walks cache, repository, then the external generator,
// repopulating each level that missed on the way back up. At most one
// generation per (userID, date) runs at a time from this process; a
// concurrent winner elsewhere is absorbed through the unique constraint.
func (s *ReadingService) GetOrGenerate(ctx context.Context, userID, date string) (*model.Reading, error) {
	if r, found, err := s.rcache.GetReading(ctx, userID, date); err == nil && found {
		return r, nil
	} else if err != nil {
		s.log.Warn().Err(err).Str("user", userID).Str("date", date).Msg("cache read failed, falling through")
	}

	r, err := s.store.Readings().Get(ctx, userID, date, model.ReadingTypeDaily)
	switch {
	case err == nil:
		if !r.IsRead {
			// First repository fetch marks the reading as read. Generation
			// leaves it unread: the scheduled batch pre-generates through the
			// same path, and those readings have not been seen yet. A freshly
			// generated reading therefore stays unread across cache hits until
			// the entry expires or is invalidated and this path runs.
			if err := s.store.Readings().MarkRead(ctx, r.ReadingID); err != nil {
				s.log.Warn().Err(err).Str("reading", r.ReadingID).Msg("mark-read failed")
			} else {
				r.IsRead = true
			}
		}
		s.populate(ctx, userID, date, r)
		return r, nil
	case !errors.Is(err, model.ErrNotFound):
		return nil, err
	}

	return s.generate(ctx, userID, date)
}

func (s *ReadingService) generate(ctx context.Context, userID, date string) (*model.Reading, error) {
	lockKey := cache.LockKey(userID, date)
	acquired, lockErr := s.rcache.Store().SetNX(ctx, lockKey, "1", s.lockTTL)
	if lockErr != nil {
		// Lock is best-effort; duplicate generation is bounded by the
		// unique constraint on insert.
		s.log.Warn().Err(lockErr).Msg("generation lock unavailable")
	} else if !acquired {
		if r, err := s.waitForPeer(ctx, userID, date); err == nil {
			return r, nil
		}
	} else {
		defer func() { _, _ = s.rcache.Store().Del(ctx, lockKey) }()
	}

	if _, err := s.store.Users().ConsumeQuota(ctx, userID); err != nil {
		return nil, err
	}

	generated, err := s.gen.Generate(ctx, userID, date)
	if err != nil {
		return nil, err
	}
	generated.UserID = userID
	generated.ReadingDate = date

	saved, err := s.store.Readings().Create(ctx, generated)
	if errors.Is(err, model.ErrConflict) {
		// A concurrent generation won the insert; serve its row.
		saved, err = s.store.Readings().Get(ctx, userID, date, model.ReadingTypeDaily)
	}
	if err != nil {
		return nil, err
	}

	s.populate(ctx, userID, date, saved)
	return saved, nil
}

// waitForPeer polls briefly for the row an in-flight generation is about
// to produce, instead of issuing a duplicate generation call.
func (s *ReadingService) waitForPeer(ctx context.Context, userID, date string) (*model.Reading, error) {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline:
			return nil, model.ErrNotFound
		case <-ticker.C:
			r, err := s.store.Readings().Get(ctx, userID, date, model.ReadingTypeDaily)
			if err == nil {
				s.populate(ctx, userID, date, r)
				return r, nil
			}
			if !errors.Is(err, model.ErrNotFound) {
				return nil, err
			}
		}
	}
}

// populate refreshes the cache after a repository read or a fresh
// generation. Failures are logged, never surfaced.
func (s *ReadingService) populate(ctx context.Context, userID, date string, r *model.Reading) {
	if err := s.rcache.SetReading(ctx, userID, date, r); err != nil {
		s.log.Warn().Err(err).Str("user", userID).Str("date", date).Msg("cache populate failed")
	}
}

// invalidate removes every cache entry a mutation may have staled.
func (s *ReadingService) invalidate(ctx context.Context, userID, date string) {
	if err := s.rcache.DeleteReading(ctx, userID, date); err != nil {
		s.log.Warn().Err(err).Str("user", userID).Msg("reading invalidation failed")
	}
	if err := s.rcache.DeleteList(ctx, userID); err != nil {
		s.log.Warn().Err(err).Str("user", userID).Msg("list invalidation failed")
	}
	if err := s.rcache.DeleteLatest(ctx, userID); err != nil {
		s.log.Warn().Err(err).Str("user", userID).Msg("latest invalidation failed")
	}
}

// GetReading serves a single reading by composite key without triggering
// generation.
func (s *ReadingService) GetReading(ctx context.Context, userID, date, readingType string) (*model.Reading, error) {
	return s.store.Readings().Get(ctx, userID, date, readingType)
}

// HasReading reports whether a daily reading already exists, without
// fetching the row or touching the read flag.
func (s *ReadingService) HasReading(ctx context.Context, userID, date string) (bool, error) {
	return s.store.Readings().Exists(ctx, userID, date, model.ReadingTypeDaily)
}

// isDefaultList reports whether filters match the cacheable default
// listing. Filtered variants, including an explicit page size, change
// shape per request and skip the list cache entirely.
func isDefaultList(f model.ReadingFilters) bool {
	return f.ReadingType == "" && !f.SavedOnly && f.From == "" && f.To == "" &&
		f.IsRead == nil && f.HasFeedback == nil && f.Limit == 0 && f.Offset == 0
}

// ListReadings returns a filtered page, consulting the short-TTL list
// cache only for the default listing.
func (s *ReadingService) ListReadings(ctx context.Context, userID string, f model.ReadingFilters) (*model.ReadingPage, error) {
	cacheable := isDefaultList(f)
	if cacheable {
		if rs, found, err := s.rcache.GetList(ctx, userID); err == nil && found {
			return &model.ReadingPage{Readings: rs, HasMore: false}, nil
		}
	}
	page, err := s.store.Readings().List(ctx, userID, f)
	if err != nil {
		return nil, err
	}
	if cacheable && !page.HasMore {
		if err := s.rcache.SetList(ctx, userID, page.Readings); err != nil {
			s.log.Warn().Err(err).Str("user", userID).Msg("list cache populate failed")
		}
	}
	return page, nil
}

// GetLatest returns the user's most recent reading through the
// medium-TTL latest cache.
func (s *ReadingService) GetLatest(ctx context.Context, userID string) (*model.Reading, error) {
	if r, found, err := s.rcache.GetLatest(ctx, userID); err == nil && found {
		return r, nil
	}
	r, err := s.store.Readings().Latest(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.rcache.SetLatest(ctx, userID, r); err != nil {
		s.log.Warn().Err(err).Str("user", userID).Msg("latest cache populate failed")
	}
	return r, nil
}

// UpdateReading patches a reading and invalidates its cache entries.
func (s *ReadingService) UpdateReading(ctx context.Context, readingID string, p model.ReadingPatch) (*model.Reading, error) {
	r, err := s.store.Readings().Update(ctx, readingID, p)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, r.UserID, r.ReadingDate)
	return r, nil
}

// DeleteReading removes a reading and invalidates its cache entries.
func (s *ReadingService) DeleteReading(ctx context.Context, readingID string) error {
	r, err := s.store.Readings().GetByID(ctx, readingID)
	if err != nil {
		return err
	}
	if err := s.store.Readings().Delete(ctx, readingID); err != nil {
		return err
	}
	s.invalidate(ctx, r.UserID, r.ReadingDate)
	return nil
}

// MarkRead sets the read flag.
func (s *ReadingService) MarkRead(ctx context.Context, readingID string) (*model.Reading, error) {
	t := true
	return s.UpdateReading(ctx, readingID, model.ReadingPatch{IsRead: &t})
}

// ToggleSaved flips the bookmark flag and returns the updated reading.
func (s *ReadingService) ToggleSaved(ctx context.Context, readingID string) (*model.Reading, error) {
	if _, err := s.store.Readings().ToggleSaved(ctx, readingID); err != nil {
		return nil, err
	}
	r, err := s.store.Readings().GetByID(ctx, readingID)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, r.UserID, r.ReadingDate)
	return r, nil
}

// AddFeedback records feedback text and an optional rating.
func (s *ReadingService) AddFeedback(ctx context.Context, readingID, feedback string, rating *int) (*model.Reading, error) {
	if err := s.store.Readings().AddFeedback(ctx, readingID, feedback, rating); err != nil {
		return nil, err
	}
	r, err := s.store.Readings().GetByID(ctx, readingID)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, r.UserID, r.ReadingDate)
	return r, nil
}

// Stats aggregates one user's reading counts.
func (s *ReadingService) Stats(ctx context.Context, userID string) (*model.ReadingStats, error) {
	return s.store.Readings().Stats(ctx, userID)
}

// CacheStats snapshots the hit/miss counters.
func (s *ReadingService) CacheStats() model.CacheStats { return s.rcache.Stats() }

// DeleteAllForUser purges a user's readings and tears down every cache
// class for them. The repository purge is transactional; a cache teardown
// failure is reported but does not undo the purge.
func (s *ReadingService) DeleteAllForUser(ctx context.Context, userID string) (int64, error) {
	n, err := s.store.Readings().DeleteAllForUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	if err := s.rcache.DeleteAllForUser(ctx, userID); err != nil {
		s.log.Warn().Err(err).Str("user", userID).Msg("cache teardown incomplete after purge")
	}
	return n, nil
}
