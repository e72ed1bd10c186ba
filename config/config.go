// Package config loads AsyncRunner settings from a YAML file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/Swind/go-async-runner/core"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Executor types
const (
	ExecutorPool      = "pool"
	ExecutorGoroutine = "goroutine"
)

// Config is the on-disk configuration of one runner and its executor.
type Config struct {
	Runner   RunnerConfig   `yaml:"runner"`
	Executor ExecutorConfig `yaml:"executor"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type RunnerConfig struct {
	Name            string `yaml:"name"`
	SleepMode       string `yaml:"sleep_mode"`
	ShutdownMode    string `yaml:"shutdown_mode"`
	MaxInFlight     int64  `yaml:"max_in_flight"`
	HistoryCapacity int    `yaml:"history_capacity"`
}

type ExecutorConfig struct {
	// Type is "pool" or "goroutine".
	Type    string `yaml:"type"`
	ID      string `yaml:"id"`
	Workers int    `yaml:"workers"`
	// StopTimeout bounds a graceful pool stop; 0 stops immediately.
	StopTimeout time.Duration `yaml:"stop_timeout"`
}

type MetricsConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Namespace    string        `yaml:"namespace"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Runner: RunnerConfig{
			Name:            "async-runner",
			SleepMode:       string(core.SleepNoop),
			ShutdownMode:    string(core.ShutdownNoop),
			HistoryCapacity: 100,
		},
		Executor: ExecutorConfig{
			Type:    ExecutorPool,
			ID:      "async-runner-pool",
			Workers: 4,
		},
		Metrics: MetricsConfig{
			Namespace:    "asyncrunner",
			PollInterval: time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path. A missing file yields Default().
func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("cannot read config file at %s: %w", path, err)
	}

	cfg, err := Parse(content)
	if err != nil {
		return nil, fmt.Errorf("config file at %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML on top of Default() and validates the result.
// Unknown keys are rejected.
func Parse(content []byte) (*Config, error) {
	cfg := Default()

	decoder := yaml.NewDecoder(bytes.NewReader(content))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("cannot parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enumerations and ranges.
func (c *Config) Validate() error {
	switch core.SleepMode(c.Runner.SleepMode) {
	case core.SleepNoop, core.SleepBlock, core.SleepCooperative:
	default:
		return fmt.Errorf("runner.sleep_mode %q must be one of noop, block, cooperative", c.Runner.SleepMode)
	}

	switch core.ShutdownMode(c.Runner.ShutdownMode) {
	case core.ShutdownNoop, core.ShutdownReject:
	default:
		return fmt.Errorf("runner.shutdown_mode %q must be one of noop, reject", c.Runner.ShutdownMode)
	}

	if c.Runner.MaxInFlight < 0 {
		return fmt.Errorf("runner.max_in_flight must not be negative, got %d", c.Runner.MaxInFlight)
	}

	switch c.Executor.Type {
	case ExecutorPool:
		if c.Executor.Workers < 1 {
			return fmt.Errorf("executor.workers must be at least 1, got %d", c.Executor.Workers)
		}
	case ExecutorGoroutine:
	default:
		return fmt.Errorf("executor.type %q must be one of %s, %s", c.Executor.Type, ExecutorPool, ExecutorGoroutine)
	}

	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q must be text or json", c.Logging.Format)
	}
	return nil
}

// AsyncRunnerConfig converts the runner section. Handlers stay unset so the
// core defaults apply unless the caller fills them in.
func (c *Config) AsyncRunnerConfig() *core.AsyncRunnerConfig {
	return &core.AsyncRunnerConfig{
		Name:            c.Runner.Name,
		SleepMode:       core.SleepMode(c.Runner.SleepMode),
		ShutdownMode:    core.ShutdownMode(c.Runner.ShutdownMode),
		MaxInFlight:     c.Runner.MaxInFlight,
		HistoryCapacity: c.Runner.HistoryCapacity,
	}
}

// NewLogrus builds a logrus logger from the logging section.
func (c *Config) NewLogrus() *logrus.Logger {
	l := logrus.New()
	if level, err := logrus.ParseLevel(c.Logging.Level); err == nil {
		l.SetLevel(level)
	}
	if strings.EqualFold(c.Logging.Format, "json") {
		l.SetFormatter(&logrus.JSONFormatter{})
	}
	return l
}
