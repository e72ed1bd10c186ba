package prometheus

import (
	"context"
	"sync"
	"time"

	"github.com/Swind/go-async-runner/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// RunnerSnapshotProvider provides current runner stats snapshots.
type RunnerSnapshotProvider interface {
	Stats() core.RunnerStats
}

// PoolSnapshotProvider provides current pool stats snapshots.
type PoolSnapshotProvider interface {
	Stats() core.PoolStats
}

// SnapshotPoller periodically exports runner/pool Stats() snapshots into Prometheus gauges.
type SnapshotPoller struct {
	interval time.Duration

	runnersMu sync.RWMutex
	runners   map[string]RunnerSnapshotProvider

	poolsMu sync.RWMutex
	pools   map[string]PoolSnapshotProvider

	runnerInFlight  *prom.GaugeVec
	runnerSubmitted *prom.GaugeVec
	runnerCompleted *prom.GaugeVec
	runnerFailed    *prom.GaugeVec
	runnerCanceled  *prom.GaugeVec
	runnerRejected  *prom.GaugeVec
	runnerShutdown  *prom.GaugeVec

	poolQueued  *prom.GaugeVec
	poolActive  *prom.GaugeVec
	poolDelayed *prom.GaugeVec
	poolWorkers *prom.GaugeVec
	poolRunning *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller in the "asyncrunner" namespace and registers its collectors.
func NewSnapshotPoller(reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	return NewSnapshotPollerWithNamespace("asyncrunner", reg, interval)
}

// NewSnapshotPollerWithNamespace creates a snapshot poller and registers its collectors.
func NewSnapshotPollerWithNamespace(namespace string, reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if namespace == "" {
		namespace = "asyncrunner"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	runnerGauge := func(name, help string) *prom.GaugeVec {
		return prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, []string{"runner"})
	}
	runnerInFlight := runnerGauge("runner_in_flight", "Registered, unfinished tasks per runner.")
	runnerSubmitted := runnerGauge("runner_submitted", "Runner submitted task count snapshot.")
	runnerCompleted := runnerGauge("runner_completed", "Runner completed task count snapshot.")
	runnerFailed := runnerGauge("runner_failed", "Runner failed task count snapshot.")
	runnerCanceled := runnerGauge("runner_canceled", "Runner cancelled task count snapshot.")
	runnerRejected := runnerGauge("runner_rejected", "Runner rejected task count snapshot.")
	runnerShutdown := runnerGauge("runner_shutdown", "Runner shutdown state (1=shut down, 0=accepting).")

	poolQueued := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "pool_queued",
		Help:      "Queued tasks per pool.",
	}, []string{"pool"})
	poolActive := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "pool_active",
		Help:      "Active tasks per pool.",
	}, []string{"pool"})
	poolDelayed := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "pool_delayed",
		Help:      "Delayed tasks per pool.",
	}, []string{"pool"})
	poolWorkers := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "pool_workers",
		Help:      "Worker count per pool.",
	}, []string{"pool"})
	poolRunning := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "pool_running",
		Help:      "Pool running state (1=running, 0=stopped).",
	}, []string{"pool"})

	var err error
	for _, gauge := range []**prom.GaugeVec{
		&runnerInFlight, &runnerSubmitted, &runnerCompleted, &runnerFailed,
		&runnerCanceled, &runnerRejected, &runnerShutdown,
	} {
		if *gauge, err = registerCollector(reg, *gauge); err != nil {
			return nil, err
		}
	}
	if poolQueued, err = registerCollector(reg, poolQueued); err != nil {
		return nil, err
	}
	if poolActive, err = registerCollector(reg, poolActive); err != nil {
		return nil, err
	}
	if poolDelayed, err = registerCollector(reg, poolDelayed); err != nil {
		return nil, err
	}
	if poolWorkers, err = registerCollector(reg, poolWorkers); err != nil {
		return nil, err
	}
	if poolRunning, err = registerCollector(reg, poolRunning); err != nil {
		return nil, err
	}

	return &SnapshotPoller{
		interval:        interval,
		runners:         make(map[string]RunnerSnapshotProvider),
		pools:           make(map[string]PoolSnapshotProvider),
		runnerInFlight:  runnerInFlight,
		runnerSubmitted: runnerSubmitted,
		runnerCompleted: runnerCompleted,
		runnerFailed:    runnerFailed,
		runnerCanceled:  runnerCanceled,
		runnerRejected:  runnerRejected,
		runnerShutdown:  runnerShutdown,
		poolQueued:      poolQueued,
		poolActive:      poolActive,
		poolDelayed:     poolDelayed,
		poolWorkers:     poolWorkers,
		poolRunning:     poolRunning,
	}, nil
}

// AddRunner adds or replaces a runner snapshot provider by name.
func (p *SnapshotPoller) AddRunner(name string, provider RunnerSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "runner")
	p.runnersMu.Lock()
	p.runners[name] = provider
	p.runnersMu.Unlock()
}

// AddPool adds or replaces a pool snapshot provider by name.
func (p *SnapshotPoller) AddPool(name string, provider PoolSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "pool")
	p.poolsMu.Lock()
	p.pools[name] = provider
	p.poolsMu.Unlock()
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.running {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.stateMu.Unlock()

	go p.loop(pollCtx)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.running = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.collectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.collectOnce()
		}
	}
}

func (p *SnapshotPoller) collectOnce() {
	p.runnersMu.RLock()
	for name, provider := range p.runners {
		stats := provider.Stats()
		p.runnerInFlight.WithLabelValues(name).Set(float64(stats.InFlight))
		p.runnerSubmitted.WithLabelValues(name).Set(float64(stats.Submitted))
		p.runnerCompleted.WithLabelValues(name).Set(float64(stats.Completed))
		p.runnerFailed.WithLabelValues(name).Set(float64(stats.Failed))
		p.runnerCanceled.WithLabelValues(name).Set(float64(stats.Canceled))
		p.runnerRejected.WithLabelValues(name).Set(float64(stats.Rejected))
		p.runnerShutdown.WithLabelValues(name).Set(boolGauge(stats.Shutdown))
	}
	p.runnersMu.RUnlock()

	p.poolsMu.RLock()
	for name, provider := range p.pools {
		stats := provider.Stats()
		p.poolQueued.WithLabelValues(name).Set(float64(stats.Queued))
		p.poolActive.WithLabelValues(name).Set(float64(stats.Active))
		p.poolDelayed.WithLabelValues(name).Set(float64(stats.Delayed))
		p.poolWorkers.WithLabelValues(name).Set(float64(stats.Workers))
		p.poolRunning.WithLabelValues(name).Set(boolGauge(stats.Running))
	}
	p.poolsMu.RUnlock()
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
