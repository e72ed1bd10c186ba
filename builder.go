package asyncrunner

import (
	"context"
	"fmt"

	"github.com/Swind/go-async-runner/config"
	"github.com/Swind/go-async-runner/core"
	logruslog "github.com/Swind/go-async-runner/logging/logrus"
	promexport "github.com/Swind/go-async-runner/observability/prometheus"
	prom "github.com/prometheus/client_golang/prometheus"
)

// Runtime is an AsyncRunner together with the executor and exporters built for it.
type Runtime struct {
	Runner   *AsyncRunner
	Pool     *GoroutineThreadPool // nil for the goroutine executor
	Executor Executor

	cfg    *config.Config
	poller *promexport.SnapshotPoller
	goExec *GoExecutor
}

// BuildRuntime wires a runner from cfg. Metrics are registered on reg when
// cfg.Metrics.Enabled; a nil reg uses the default Prometheus registerer.
// The returned Runtime is started; call Close to stop it.
func BuildRuntime(ctx context.Context, cfg *config.Config, reg prom.Registerer) (*Runtime, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := logruslog.New(cfg.NewLogrus()).WithComponent("async-runner")
	runnerCfg := cfg.AsyncRunnerConfig()
	runnerCfg.Logger = logger

	rt := &Runtime{cfg: cfg}

	switch cfg.Executor.Type {
	case config.ExecutorGoroutine:
		rt.goExec = core.NewGoExecutor(ctx)
		rt.Executor = rt.goExec
	default:
		schedCfg := core.DefaultTaskSchedulerConfig()
		schedCfg.Logger = logger
		rt.Pool = NewGoroutineThreadPoolWithConfig(cfg.Executor.ID, cfg.Executor.Workers, schedCfg)
		rt.Executor = rt.Pool
	}

	if cfg.Metrics.Enabled {
		exporter, err := promexport.NewMetricsExporter(cfg.Metrics.Namespace, reg, promexport.ExporterOptions{})
		if err != nil {
			return nil, fmt.Errorf("register runner metrics: %w", err)
		}
		runnerCfg.Metrics = exporter

		poller, err := promexport.NewSnapshotPollerWithNamespace(cfg.Metrics.Namespace, reg, cfg.Metrics.PollInterval)
		if err != nil {
			return nil, fmt.Errorf("register snapshot metrics: %w", err)
		}
		rt.poller = poller
	}

	rt.Runner = core.NewAsyncRunnerWithConfig(rt.Executor, runnerCfg)

	if rt.Pool != nil {
		rt.Pool.Start(ctx)
	}
	if rt.poller != nil {
		rt.poller.AddRunner(rt.Runner.Name(), rt.Runner)
		if rt.Pool != nil {
			rt.poller.AddPool(rt.Pool.ID(), rt.Pool)
		}
		rt.poller.Start(ctx)
	}

	logger.Info("runtime started",
		core.F("runner", rt.Runner.Name()),
		core.F("executor", cfg.Executor.Type))
	return rt, nil
}

// Close shuts the runner down, stops the executor and the snapshot poller.
// Both executors wait for running tasks and release the ones that never ran
// with a cancelled context, so the runner's registry is empty once Close
// returns. A task that ignores its context delays Close until it returns.
func (rt *Runtime) Close() error {
	rt.Runner.Shutdown()

	var err error
	switch {
	case rt.Pool != nil && rt.cfg.Executor.StopTimeout > 0:
		err = rt.Pool.StopGraceful(rt.cfg.Executor.StopTimeout)
	case rt.Pool != nil:
		rt.Pool.Stop()
	case rt.goExec != nil:
		rt.goExec.Close()
	}

	if rt.poller != nil {
		rt.poller.Stop()
	}
	return err
}
