// Package jobs runs the scheduled maintenance loops: the daily reading
// batch, the quota reset, and the cache cleanup sweep. Each job is a
// polling loop in its own goroutine that fires when its local date rolls
// over (daily jobs) or on every tick (cleanup).
package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/chandrahoro/reading-service/internal/invalidation"
	"github.com/chandrahoro/reading-service/internal/model"
	"github.com/chandrahoro/reading-service/internal/services"
)

// Config controls polling cadence and batch pacing.
type Config struct {
	Interval        time.Duration // poll interval for date-rollover checks
	PerUserDelay    time.Duration // pause between users in the daily batch
	CleanupInterval time.Duration // cadence of the cache cleanup sweep
	CleanupMaxAge   int           // days before a cached reading is stale
}

func (c *Config) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	if c.PerUserDelay <= 0 {
		c.PerUserDelay = 100 * time.Millisecond
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = time.Hour
	}
	if c.CleanupMaxAge <= 0 {
		c.CleanupMaxAge = 30
	}
}

// Runner owns the scheduled loops.
type Runner struct {
	readings *services.ReadingService
	users    *services.UserService
	inval    *invalidation.Service
	cfg      Config
	log      zerolog.Logger
	now      func() time.Time

	lastBatchDate string
	lastResetDate string
}

func NewRunner(rs *services.ReadingService, us *services.UserService, inv *invalidation.Service, cfg Config, log zerolog.Logger) *Runner {
	cfg.applyDefaults()
	return &Runner{readings: rs, users: us, inval: inv, cfg: cfg, log: log, now: time.Now}
}

// Run starts all loops and blocks until ctx is canceled.
func (r *Runner) Run(ctx context.Context) error {
	r.log.Info().Dur("interval", r.cfg.Interval).Dur("cleanup_interval", r.cfg.CleanupInterval).Msg("job runner starting")

	daily := time.NewTicker(r.cfg.Interval)
	defer daily.Stop()
	cleanup := time.NewTicker(r.cfg.CleanupInterval)
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("job runner stopping")
			return ctx.Err()
		case <-daily.C:
			today := r.now().Format(model.DateLayout)
			if today != r.lastResetDate {
				if err := r.resetQuotas(ctx); err != nil {
					r.log.Error().Err(err).Msg("quota reset failed")
				} else {
					r.lastResetDate = today
				}
			}
			if today != r.lastBatchDate {
				if err := r.dailyBatch(ctx, today); err != nil {
					r.log.Error().Err(err).Msg("daily batch failed")
				} else {
					r.lastBatchDate = today
				}
			}
		case <-cleanup.C:
			if err := r.cleanupOnce(ctx); err != nil {
				r.log.Error().Err(err).Msg("cache cleanup failed")
			}
		}
	}
}

// dailyBatch generates today's reading for every active user that does
// not already have one. Per-user failures are counted, never fatal.
func (r *Runner) dailyBatch(ctx context.Context, date string) error {
	users, err := r.users.ListActive(ctx)
	if err != nil {
		return err
	}

	var generated, skipped, failed int
	for _, u := range users {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if ok, err := r.readings.HasReading(ctx, u.UserID, date); err == nil && ok {
			skipped++
			continue
		}
		if _, err := r.readings.GetOrGenerate(ctx, u.UserID, date); err != nil {
			failed++
			r.log.Warn().Err(err).Str("user", u.UserID).Str("date", date).Msg("batch generation failed")
		} else {
			generated++
		}
		time.Sleep(r.cfg.PerUserDelay)
	}

	r.log.Info().Str("date", date).Int("generated", generated).Int("skipped", skipped).Int("failed", failed).Msg("daily batch complete")
	return nil
}

func (r *Runner) resetQuotas(ctx context.Context) error {
	n, err := r.users.ResetAllQuotas(ctx)
	if err != nil {
		return err
	}
	r.log.Info().Int64("users", n).Msg("quotas reset")
	return nil
}

func (r *Runner) cleanupOnce(ctx context.Context) error {
	rep, err := r.inval.CleanupOldEntries(ctx, r.cfg.CleanupMaxAge, false)
	if err != nil {
		return err
	}
	r.log.Info().Int("scanned", rep.Scanned).Int("deleted", rep.KeysDeleted).Msg("cache cleanup complete")
	return nil
}
