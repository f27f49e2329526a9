// Package readingworker runs the scheduled jobs process: daily batch
// generation, quota resets and cache cleanup, against the same
// dependency graph as the HTTP service.
package readingworker

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chandrahoro/reading-service/internal/config"
	"github.com/chandrahoro/reading-service/internal/jobs"
	"github.com/chandrahoro/reading-service/internal/logger"
	"github.com/chandrahoro/reading-service/readingservice"
)

// Run starts the job runner and blocks until shutdown or error.
func Run() error {
	log := logger.New("reading-worker")

	cfg, err := config.New()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := readingservice.NewDeps(ctx, cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("Dependency wiring failed")
		return err
	}

	runner := jobs.NewRunner(deps.Readings, deps.Users, deps.Inval, jobs.Config{
		Interval:        time.Duration(cfg.JobIntervalSeconds) * time.Second,
		PerUserDelay:    time.Duration(cfg.JobPerUserDelayMs) * time.Millisecond,
		CleanupInterval: time.Hour,
		CleanupMaxAge:   cfg.CleanupMaxAgeDays,
	}, log)

	if err := runner.Run(ctx); err != nil && err != context.Canceled {
		log.Error().Err(err).Msg("job runner exit")
		return err
	}
	return nil
}
