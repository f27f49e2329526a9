// Package invalidation implements the cross-cutting cache administration
// operations: pattern-scoped bulk deletes, per-user teardown, age-based
// cleanup, warming from the repository, and health reporting. The service
// itself is stateless; all state lives in the KV store and the repository.
package invalidation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/chandrahoro/reading-service/internal/cache"
	"github.com/chandrahoro/reading-service/internal/model"
	"github.com/chandrahoro/reading-service/internal/store"
)

// Class selects which cache classes a user-scoped invalidation covers.
type Class string

const (
	ClassReading Class = "reading"
	ClassList    Class = "list"
	ClassLatest  Class = "latest"
	ClassAll     Class = "all"
)

// refreshThreshold is the remaining TTL below which RefreshCache considers
// an entry stale enough to repopulate.
const refreshThreshold = int64(3600)

// healthSampleSize bounds the TTL sampling in CacheHealth.
const healthSampleSize = 100

// Report is the outcome of one bulk invalidation run. Per-batch failures
// accumulate in Errors; they never abort the remaining batches.
type Report struct {
	Pattern     string   `json:"pattern"`
	KeysFound   int      `json:"keysFound"`
	KeysDeleted int      `json:"keysDeleted"`
	DryRun      bool     `json:"dryRun"`
	Errors      []string `json:"errors,omitempty"`
	DurationMs  int64    `json:"durationMs"`
}

// CleanupReport is the outcome of an age-based cleanup scan.
type CleanupReport struct {
	Scanned     int      `json:"scanned"`
	Skipped     int      `json:"skipped"`
	KeysDeleted int      `json:"keysDeleted"`
	DryRun      bool     `json:"dryRun"`
	Errors      []string `json:"errors,omitempty"`
	DurationMs  int64    `json:"durationMs"`
}

// WarmReport is the outcome of a cache warming pass.
type WarmReport struct {
	Warmed int      `json:"warmed"`
	Errors []string `json:"errors,omitempty"`
}

// HealthReport summarizes keyspace shape and store memory usage.
type HealthReport struct {
	TotalKeys      int64  `json:"totalKeys"`
	ReadingKeys    int    `json:"readingKeys"`
	ListKeys       int    `json:"listKeys"`
	LatestKeys     int    `json:"latestKeys"`
	SampleSize     int    `json:"sampleSize"`
	ExpiredSampled int    `json:"expiredSampled"`
	MemoryUsed     string `json:"memoryUsed"`
}

// RefreshReport says whether a refresh touched the store and why.
type RefreshReport struct {
	Refreshed  bool   `json:"refreshed"`
	Reason     string `json:"reason"`
	TTLSeconds int64  `json:"ttlSeconds"`
}

// Service wires the KV store, the typed cache and the repository together
// for administrative operations.
type Service struct {
	kv         cache.Store
	rcache     *cache.ReadingCache
	repo       store.Store
	log        zerolog.Logger
	batchSize  int
	batchDelay time.Duration
	now        func() time.Time
}

func NewService(kv cache.Store, rc *cache.ReadingCache, repo store.Store, batchSize int, batchDelay time.Duration, log zerolog.Logger) *Service {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Service{
		kv:         kv,
		rcache:     rc,
		repo:       repo,
		log:        log,
		batchSize:  batchSize,
		batchDelay: batchDelay,
		now:        time.Now,
	}
}

// deleteBatches removes keys in bounded batches with a fixed delay between
// batches so a large invalidation cannot saturate the store.
func (s *Service) deleteBatches(ctx context.Context, keys []string) (int, []string) {
	var deleted int
	var errs []string
	for start := 0; start < len(keys); start += s.batchSize {
		end := start + s.batchSize
		if end > len(keys) {
			end = len(keys)
		}
		batch := keys[start:end]
		n, err := s.kv.Del(ctx, batch...)
		deleted += int(n)
		if err != nil {
			errs = append(errs, fmt.Sprintf("batch %d-%d: %v", start, end, err))
		}
		if end < len(keys) && s.batchDelay > 0 {
			select {
			case <-ctx.Done():
				errs = append(errs, fmt.Sprintf("aborted at %d/%d: %v", end, len(keys), ctx.Err()))
				return deleted, errs
			case <-time.After(s.batchDelay):
			}
		}
	}
	return deleted, errs
}

// InvalidateByPattern enumerates keys matching a glob pattern and deletes
// them in batches. In dry-run mode it reports what would be deleted without
// deleting anything.
func (s *Service) InvalidateByPattern(ctx context.Context, pattern string, dryRun bool) (*Report, error) {
	started := s.now()
	rep := &Report{Pattern: pattern, DryRun: dryRun}

	keys, err := s.kv.Keys(ctx, pattern)
	if err != nil {
		return nil, err
	}
	rep.KeysFound = len(keys)

	if !dryRun && len(keys) > 0 {
		rep.KeysDeleted, rep.Errors = s.deleteBatches(ctx, keys)
	}
	rep.DurationMs = time.Since(started).Milliseconds()

	s.log.Info().
		Str("pattern", pattern).
		Bool("dry_run", dryRun).
		Int("found", rep.KeysFound).
		Int("deleted", rep.KeysDeleted).
		Int("errors", len(rep.Errors)).
		Msg("cache invalidation run")
	return rep, nil
}

// patternsFor expands a user-scoped class selection into glob patterns. An
// exact key is its own glob, so list/latest reuse the same delete path.
func patternsFor(userID string, class Class) []string {
	switch class {
	case ClassReading:
		return []string{cache.UserReadingPattern(userID)}
	case ClassList:
		return []string{cache.ListKey(userID)}
	case ClassLatest:
		return []string{cache.LatestKey(userID)}
	default:
		return []string{
			cache.UserReadingPattern(userID),
			cache.ListKey(userID),
			cache.LatestKey(userID),
		}
	}
}

// InvalidateUserCache tears down one or all cache classes for a user,
// accumulating totals across the per-class runs.
func (s *Service) InvalidateUserCache(ctx context.Context, userID string, class Class) (*Report, error) {
	started := s.now()
	total := &Report{Pattern: "user:" + userID + ":" + string(class)}
	for _, p := range patternsFor(userID, class) {
		rep, err := s.InvalidateByPattern(ctx, p, false)
		if err != nil {
			total.Errors = append(total.Errors, fmt.Sprintf("%s: %v", p, err))
			continue
		}
		total.KeysFound += rep.KeysFound
		total.KeysDeleted += rep.KeysDeleted
		total.Errors = append(total.Errors, rep.Errors...)
	}
	total.DurationMs = time.Since(started).Milliseconds()
	return total, nil
}

// CleanupOldEntries scans all single-reading keys, parses the embedded
// date, and deletes entries strictly older than maxAgeDays. Keys that do
// not parse are skipped, not failed.
func (s *Service) CleanupOldEntries(ctx context.Context, maxAgeDays int, dryRun bool) (*CleanupReport, error) {
	started := s.now()
	rep := &CleanupReport{DryRun: dryRun}

	keys, err := s.kv.Keys(ctx, cache.AllReadingPattern())
	if err != nil {
		return nil, err
	}
	rep.Scanned = len(keys)

	cutoff := s.now().UTC().AddDate(0, 0, -maxAgeDays).Truncate(24 * time.Hour)
	var stale []string
	for _, k := range keys {
		d, ok := cache.ParseReadingDate(k)
		if !ok {
			rep.Skipped++
			continue
		}
		if d.Before(cutoff) {
			stale = append(stale, k)
		}
	}

	if dryRun {
		rep.KeysDeleted = 0
	} else if len(stale) > 0 {
		rep.KeysDeleted, rep.Errors = s.deleteBatches(ctx, stale)
	}
	rep.DurationMs = time.Since(started).Milliseconds()

	s.log.Info().
		Int("scanned", rep.Scanned).
		Int("stale", len(stale)).
		Int("deleted", rep.KeysDeleted).
		Int("skipped", rep.Skipped).
		Bool("dry_run", dryRun).
		Msg("cache cleanup run")
	return rep, nil
}

// WarmUserCache reads the last N days of readings back from the repository
// and populates the cache for each, plus the latest pointer. Used after a
// cold start or bulk flush.
func (s *Service) WarmUserCache(ctx context.Context, userID string, days int, readingType string) (*WarmReport, error) {
	if days <= 0 {
		days = 7
	}
	if readingType == "" {
		readingType = model.ReadingTypeDaily
	}
	rep := &WarmReport{}

	now := s.now().UTC()
	from := now.AddDate(0, 0, -days).Format(model.DateLayout)
	to := now.Format(model.DateLayout)

	dates, err := s.repo.Readings().Dates(ctx, userID, from, to)
	if err != nil {
		return nil, err
	}

	for _, d := range dates {
		r, err := s.repo.Readings().Get(ctx, userID, d, readingType)
		if err != nil {
			rep.Errors = append(rep.Errors, fmt.Sprintf("%s: %v", d, err))
			continue
		}
		if err := s.rcache.SetReading(ctx, userID, d, r); err != nil {
			rep.Errors = append(rep.Errors, fmt.Sprintf("%s: %v", d, err))
			continue
		}
		rep.Warmed++
	}

	if latest, err := s.repo.Readings().Latest(ctx, userID); err == nil {
		if err := s.rcache.SetLatest(ctx, userID, latest); err == nil {
			rep.Warmed++
		} else {
			rep.Errors = append(rep.Errors, fmt.Sprintf("latest: %v", err))
		}
	}

	s.log.Info().Str("user", userID).Int("warmed", rep.Warmed).Int("errors", len(rep.Errors)).Msg("cache warmed")
	return rep, nil
}

// CacheHealth reports keyspace shape, a sampled estimate of expired-but-
// retained keys (first healthSampleSize keys rather than a full scan), and
// store memory usage.
func (s *Service) CacheHealth(ctx context.Context) (*HealthReport, error) {
	rep := &HealthReport{}

	total, err := s.kv.DBSize(ctx)
	if err != nil {
		return nil, err
	}
	rep.TotalKeys = total

	readingKeys, err := s.kv.Keys(ctx, cache.AllReadingPattern())
	if err != nil {
		return nil, err
	}
	singles := readingKeys[:0:0]
	for _, k := range readingKeys {
		if cache.IsSingleReadingKey(k) {
			singles = append(singles, k)
		}
	}
	rep.ReadingKeys = len(singles)
	if listKeys, err := s.kv.Keys(ctx, "reading:list:*"); err == nil {
		rep.ListKeys = len(listKeys)
	}
	if latestKeys, err := s.kv.Keys(ctx, "reading:latest:*"); err == nil {
		rep.LatestKeys = len(latestKeys)
	}

	// Lock markers share the reading prefix but carry their own short TTL;
	// sampling only single-reading keys keeps the expiry estimate honest.
	sample := singles
	if len(sample) > healthSampleSize {
		sample = sample[:healthSampleSize]
	}
	rep.SampleSize = len(sample)
	for _, k := range sample {
		ttl, err := s.kv.TTL(ctx, k)
		if err != nil {
			continue
		}
		if ttl == cache.TTLMissing {
			rep.ExpiredSampled++
		}
	}

	if info, err := s.kv.Info(ctx, "memory"); err == nil {
		rep.MemoryUsed = parseUsedMemory(info)
	}
	return rep, nil
}

func parseUsedMemory(info string) string {
	for _, line := range strings.Split(info, "\n") {
		line = strings.TrimSpace(line)
		if v, ok := strings.CutPrefix(line, "used_memory_human:"); ok {
			return v
		}
	}
	return ""
}

// EmergencyFlush is the destructive bulk delete. It refuses to touch the
// store unless confirm is explicitly true.
func (s *Service) EmergencyFlush(ctx context.Context, pattern string, confirm bool) (*Report, error) {
	if !confirm {
		return nil, fmt.Errorf("%w: emergency flush of %q requires confirm=true", model.ErrConfirmationRequired, pattern)
	}
	s.log.Warn().Str("pattern", pattern).Msg("emergency cache flush")
	return s.InvalidateByPattern(ctx, pattern, false)
}

// RefreshCache repopulates the (userID, date) entry from the repository
// when it is absent, about to expire, or when forced. A still-fresh entry
// is reported without any store writes.
func (s *Service) RefreshCache(ctx context.Context, userID, date string, force bool) (*RefreshReport, error) {
	ttl, err := s.rcache.EntryTTL(ctx, userID, date)
	if err != nil {
		return nil, err
	}
	if !force && ttl >= refreshThreshold {
		return &RefreshReport{Refreshed: false, Reason: "cache still fresh", TTLSeconds: ttl}, nil
	}

	r, err := s.repo.Readings().Get(ctx, userID, date, model.ReadingTypeDaily)
	if err != nil {
		return nil, err
	}
	if err := s.rcache.SetReading(ctx, userID, date, r); err != nil {
		return nil, err
	}
	reason := "ttl below threshold"
	if force {
		reason = "forced"
	} else if ttl == cache.TTLMissing {
		reason = "entry absent"
	}
	return &RefreshReport{Refreshed: true, Reason: reason, TTLSeconds: ttl}, nil
}
