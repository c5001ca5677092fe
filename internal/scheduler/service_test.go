package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"flowdesk/internal/eventbus"
	"flowdesk/pkg/logx"
)

func newTestService() *Service {
	return New(Config{
		Enabled:        true,
		Workers:        1,
		DefaultTimeout: time.Minute,
		Timezone:       "UTC",
	}, eventbus.New(), logx.Nop())
}

// Cancelling one job must not redirect the cron firings of the survivors:
// the definitions slice is compacted on cancel, so a firing registered
// before the cancel has to keep executing its own body.
func TestCancelKeepsSurvivorBodiesIntact(t *testing.T) {
	s := newTestService()

	var alpha, beat, gamma, delta atomic.Int64
	counter := func(n *atomic.Int64) func(context.Context) error {
		return func(context.Context) error {
			n.Add(1)
			return nil
		}
	}
	register := func(name, schedule string, n *atomic.Int64) {
		t.Helper()
		if _, err := s.Register(name, schedule, time.Minute, counter(n)); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}
	register("alpha", "@every 1h", &alpha)
	register("beat", "@every 1s", &beat)
	register("gamma", "@every 1h", &gamma)
	register("delta", "@every 1h", &delta)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer func() {
		stopCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		s.Stop(stopCtx)
	}()

	if !s.Cancel("alpha") {
		t.Fatal("cancel alpha failed")
	}

	time.Sleep(2500 * time.Millisecond)

	if got := beat.Load(); got < 1 {
		t.Fatalf("beat ran %d times, want at least 1", got)
	}
	for name, n := range map[string]*atomic.Int64{
		"alpha": &alpha, "gamma": &gamma, "delta": &delta,
	} {
		if got := n.Load(); got != 0 {
			t.Fatalf("%s ran %d times on beat's schedule", name, got)
		}
	}
}

func TestCancelUnknownNameIsNoOp(t *testing.T) {
	t.Parallel()
	s := newTestService()
	if _, err := s.Register("real", "@every 1h", time.Minute, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("register: %v", err)
	}
	if s.Cancel("ghost") {
		t.Fatal("cancelling an unknown job reported removal")
	}
	snap := s.Snapshot()
	if len(snap.Jobs) != 1 || snap.Jobs[0].Name != "real" {
		t.Fatalf("jobs after no-op cancel = %+v", snap.Jobs)
	}
}
