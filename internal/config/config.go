// Package config holds the sweep configuration: one varying parameter
// axis, the held-fixed network and payload parameters, and the endpoints
// the protocol rounds run against. Values come from defaults, then an
// optional YAML file, then BENCH_* environment variables, then CLI flags.
package config

import (
	"fmt"
	"math"
	"time"
)

// SweepKind selects which parameter varies across the sweep.
type SweepKind string

const (
	SweepBandwidth SweepKind = "bandwidth"
	SweepLatency   SweepKind = "latency"
	SweepPayload   SweepKind = "payload"
)

const (
	DefaultInterface     = "lo"
	DefaultBandwidthMbps = 1000
	DefaultLatencyMs     = 25
	DefaultRequestSize   = 64
	DefaultResponseSize  = 1024
	DefaultVersion       = "1.0"
	DefaultEngine        = "zk"
	DefaultRepetitions   = 3
	DefaultWarmupRuns    = 2
	DefaultOutputPath    = "results/sweep.csv"
	DefaultRoundTimeout  = "120s"
	DefaultStartTimeout  = "30s"
)

// DefaultAxes are the swept values when no axis is configured.
var DefaultAxes = map[SweepKind][]float64{
	SweepBandwidth: {10, 50, 100, 500, 1000},
	SweepLatency:   {5, 10, 25, 50, 100},
	SweepPayload:   {256, 1024, 4096, 16384},
}

// Endpoint describes one external process the sweep starts before any
// run executes.
type Endpoint struct {
	Name     string   `yaml:"name"`
	Command  string   `yaml:"command"`
	Args     []string `yaml:"args"`
	ProbeURL string   `yaml:"probe_url"`
}

// Config is immutable for the duration of one sweep invocation.
type Config struct {
	Interface string    `yaml:"interface"`
	Kind      SweepKind `yaml:"kind"`
	Axis      []float64 `yaml:"axis"`

	BandwidthMbps float64 `yaml:"bandwidth_mbps"`
	LatencyMs     float64 `yaml:"latency_ms"`
	RequestSize   int64   `yaml:"request_size"`
	ResponseSize  int64   `yaml:"response_size"`

	Version string `yaml:"version"`
	Engine  string `yaml:"engine"`

	Sudo        bool   `yaml:"sudo"`
	Repetitions int    `yaml:"repetitions"`
	WarmupRuns  int    `yaml:"warmup_runs"`
	OutputPath  string `yaml:"output"`
	ShowShaping bool   `yaml:"show_shaping"`
	HistoryOff  bool   `yaml:"history_off"`

	AttestorURL string `yaml:"attestor_url"`
	TargetURL   string `yaml:"target_url"`
	Ports       []int  `yaml:"ports"`

	RoundBinary  string     `yaml:"round_binary"`
	Endpoints    []Endpoint `yaml:"endpoints"`
	RoundTimeout string     `yaml:"round_timeout"`
	StartTimeout string     `yaml:"start_timeout"`
}

// ConfigurationError is fatal at sweep start, before any run executes.
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration %s: %v", e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func configErr(field, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Field: field, Err: fmt.Errorf(format, args...)}
}

// Validate checks the invariants the orchestrator relies on: a non-empty
// axis of finite positive values, exactly one varying parameter, and
// sane repetition counts.
func (c *Config) Validate() error {
	if c.Interface == "" {
		return configErr("interface", "interface name is required")
	}

	switch c.Kind {
	case SweepBandwidth, SweepLatency, SweepPayload:
	default:
		return configErr("kind", "unknown sweep kind %q", c.Kind)
	}

	if len(c.Axis) == 0 {
		return configErr("axis", "axis must not be empty")
	}
	for i, v := range c.Axis {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return configErr("axis", "value %d is not finite", i)
		}
		if v <= 0 {
			return configErr("axis", "value %d must be positive, got %v", i, v)
		}
	}

	if c.Repetitions < 1 {
		return configErr("repetitions", "must be >= 1, got %d", c.Repetitions)
	}
	if c.WarmupRuns < 0 {
		return configErr("warmup_runs", "must be >= 0, got %d", c.WarmupRuns)
	}

	if c.BandwidthMbps <= 0 {
		return configErr("bandwidth_mbps", "must be positive, got %v", c.BandwidthMbps)
	}
	if c.LatencyMs < 0 {
		return configErr("latency_ms", "must be >= 0, got %v", c.LatencyMs)
	}
	if c.RequestSize <= 0 || c.ResponseSize <= 0 {
		return configErr("payload", "request and response sizes must be positive")
	}

	if c.OutputPath == "" {
		return configErr("output", "output path is required")
	}

	if _, err := time.ParseDuration(c.RoundTimeout); err != nil {
		return configErr("round_timeout", "invalid duration: %v", err)
	}
	if _, err := time.ParseDuration(c.StartTimeout); err != nil {
		return configErr("start_timeout", "invalid duration: %v", err)
	}

	for _, p := range c.Ports {
		if p <= 0 || p > 65535 {
			return configErr("ports", "port must be between 1 and 65535, got %d", p)
		}
	}

	return nil
}

// RoundTimeoutDuration returns the parsed round timeout. Validate must
// have passed.
func (c *Config) RoundTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.RoundTimeout)
	return d
}

// StartTimeoutDuration returns the parsed endpoint start timeout.
func (c *Config) StartTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.StartTimeout)
	return d
}
