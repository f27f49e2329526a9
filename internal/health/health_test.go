package health

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type flakyPinger struct {
	fail atomic.Bool
}

func (p *flakyPinger) HealthPing(ctx context.Context) error {
	if p.fail.Load() {
		return errors.New("unreachable")
	}
	return nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestPingCheckerTransitions(t *testing.T) {
	p := &flakyPinger{}
	hc := NewPingChecker("dep", p, zerolog.Nop(), time.Second)

	if hc.IsHealthy() {
		t.Fatal("checker must start unhealthy")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hc.Start(ctx, 10*time.Millisecond)

	waitFor(t, hc.IsHealthy)

	p.fail.Store(true)
	waitFor(t, func() bool { return !hc.IsHealthy() })

	p.fail.Store(false)
	waitFor(t, hc.IsHealthy)
}

func TestServiceHealthCheckerAggregates(t *testing.T) {
	good := &flakyPinger{}
	bad := &flakyPinger{}
	bad.fail.Store(true)

	c1 := NewPingChecker("good", good, zerolog.Nop(), time.Second)
	c2 := NewPingChecker("bad", bad, zerolog.Nop(), time.Second)
	svc := NewServiceHealthChecker(zerolog.Nop(), c1, c2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c1.Start(ctx, 10*time.Millisecond)
	go c2.Start(ctx, 10*time.Millisecond)
	go svc.Start(ctx, 10*time.Millisecond)

	waitFor(t, c1.IsHealthy)
	if svc.IsHealthy() {
		t.Fatal("aggregate must be unhealthy while any dependency is down")
	}

	bad.fail.Store(false)
	waitFor(t, svc.IsHealthy)
}
