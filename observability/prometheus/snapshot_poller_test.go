package prometheus

import (
	"context"
	"testing"
	"time"

	"github.com/Swind/go-async-runner/core"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type runnerStub struct {
	stats core.RunnerStats
}

func (s runnerStub) Stats() core.RunnerStats { return s.stats }

type poolStub struct {
	stats core.PoolStats
}

func (s poolStub) Stats() core.PoolStats { return s.stats }

func TestSnapshotPoller_CollectsRunnerAndPoolStats(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	poller.AddRunner("runner-a", runnerStub{stats: core.RunnerStats{
		Name:      "runner-a",
		InFlight:  3,
		Submitted: 10,
		Completed: 5,
		Failed:    1,
		Canceled:  1,
		Rejected:  2,
		Shutdown:  true,
	}})
	poller.AddPool("pool-a", poolStub{stats: core.PoolStats{
		Queued:  4,
		Active:  2,
		Delayed: 1,
		Workers: 8,
		Running: true,
	}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	poller.Start(ctx)
	defer poller.Stop()

	assertEventually(t, 2*time.Second, func() bool {
		inFlight := testutil.ToFloat64(poller.runnerInFlight.WithLabelValues("runner-a"))
		active := testutil.ToFloat64(poller.poolActive.WithLabelValues("pool-a"))
		return inFlight == 3 && active == 2
	})

	if got := testutil.ToFloat64(poller.runnerSubmitted.WithLabelValues("runner-a")); got != 10 {
		t.Fatalf("runner submitted gauge = %v, want 10", got)
	}
	if got := testutil.ToFloat64(poller.runnerRejected.WithLabelValues("runner-a")); got != 2 {
		t.Fatalf("runner rejected gauge = %v, want 2", got)
	}
	if got := testutil.ToFloat64(poller.runnerShutdown.WithLabelValues("runner-a")); got != 1 {
		t.Fatalf("runner shutdown gauge = %v, want 1", got)
	}
	if got := testutil.ToFloat64(poller.poolRunning.WithLabelValues("pool-a")); got != 1 {
		t.Fatalf("pool running gauge = %v, want 1", got)
	}
}

func TestSnapshotPoller_StartStop_Idempotent(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	poller.Start(ctx)
	poller.Start(ctx)
	poller.Stop()
	poller.Stop()
}

func TestSnapshotPoller_CustomNamespace(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPollerWithNamespace("requestor", reg, time.Hour)
	if err != nil {
		t.Fatalf("NewSnapshotPollerWithNamespace failed: %v", err)
	}

	poller.AddRunner("", runnerStub{stats: core.RunnerStats{InFlight: 1}})
	poller.collectOnce()

	if n := testutil.CollectAndCount(poller.runnerInFlight, "requestor_runner_in_flight"); n != 1 {
		t.Fatalf("series count = %d, want 1", n)
	}
	if got := testutil.ToFloat64(poller.runnerInFlight.WithLabelValues("runner")); got != 1 {
		t.Fatalf("fallback runner label gauge = %v, want 1", got)
	}
}

func assertEventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}
