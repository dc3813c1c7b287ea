package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"go.yaml.in/yaml/v4"
)

// Load builds the sweep configuration from defaults, then the YAML file
// at path (skipped when empty or absent), then BENCH_* environment
// variables. The result is validated; a ConfigurationError here aborts
// the sweep before any run executes.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, configErr("file", "failed to read %s: %v", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, configErr("file", "failed to parse %s: %v", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if len(cfg.Axis) == 0 {
		cfg.Axis = DefaultAxes[cfg.Kind]
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Interface:     DefaultInterface,
		Kind:          SweepBandwidth,
		BandwidthMbps: DefaultBandwidthMbps,
		LatencyMs:     DefaultLatencyMs,
		RequestSize:   DefaultRequestSize,
		ResponseSize:  DefaultResponseSize,
		Version:       DefaultVersion,
		Engine:        DefaultEngine,
		Repetitions:   DefaultRepetitions,
		WarmupRuns:    DefaultWarmupRuns,
		OutputPath:    DefaultOutputPath,
		RoundTimeout:  DefaultRoundTimeout,
		StartTimeout:  DefaultStartTimeout,
	}
}

// applyEnv overlays BENCH_* environment variables. Every input is
// optional; only variables that are actually set override the file.
func applyEnv(cfg *Config) error {
	v := viper.New()
	v.SetEnvPrefix("bench")
	v.AutomaticEnv()

	if s := v.GetString("interface"); s != "" {
		cfg.Interface = s
	}
	if s := v.GetString("sweep"); s != "" {
		cfg.Kind = SweepKind(strings.ToLower(s))
	}
	if s := v.GetString("axis"); s != "" {
		axis, err := ParseAxis(s)
		if err != nil {
			return err
		}
		cfg.Axis = axis
	}
	if v.IsSet("bandwidth_mbps") {
		cfg.BandwidthMbps = v.GetFloat64("bandwidth_mbps")
	}
	if v.IsSet("latency_ms") {
		cfg.LatencyMs = v.GetFloat64("latency_ms")
	}
	if v.IsSet("request_size") {
		cfg.RequestSize = v.GetInt64("request_size")
	}
	if v.IsSet("response_size") {
		cfg.ResponseSize = v.GetInt64("response_size")
	}
	if s := v.GetString("version"); s != "" {
		cfg.Version = s
	}
	if s := v.GetString("engine"); s != "" {
		cfg.Engine = s
	}
	if v.IsSet("sudo") {
		cfg.Sudo = v.GetBool("sudo")
	}
	if v.IsSet("repetitions") {
		cfg.Repetitions = v.GetInt("repetitions")
	}
	if v.IsSet("warmup_runs") {
		cfg.WarmupRuns = v.GetInt("warmup_runs")
	}
	if s := v.GetString("output"); s != "" {
		cfg.OutputPath = s
	}
	if v.IsSet("show_shaping") {
		cfg.ShowShaping = v.GetBool("show_shaping")
	}
	if s := v.GetString("ports"); s != "" {
		ports, err := parsePorts(s)
		if err != nil {
			return err
		}
		cfg.Ports = ports
	}
	if s := v.GetString("attestor_url"); s != "" {
		cfg.AttestorURL = s
	}
	if s := v.GetString("target_url"); s != "" {
		cfg.TargetURL = s
	}
	if s := v.GetString("round_binary"); s != "" {
		cfg.RoundBinary = s
	}

	return nil
}

// ParseAxis parses a comma-separated list of numeric values, or a single
// value, into the sweep axis.
func ParseAxis(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	axis := make([]float64, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		f, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, configErr("axis", "invalid value %q: %v", part, err)
		}
		axis = append(axis, f)
	}
	if len(axis) == 0 {
		return nil, configErr("axis", "no values in %q", s)
	}
	return axis, nil
}

func parsePorts(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	ports := make([]int, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		p, err := strconv.Atoi(part)
		if err != nil {
			return nil, configErr("ports", "invalid port %q: %v", part, err)
		}
		ports = append(ports, p)
	}
	return ports, nil
}

// Describe returns a one-line rendition of the sweep for log output.
func (c *Config) Describe() string {
	return fmt.Sprintf("%s sweep over %v on %s (fixed: %gmbit %gms, payload %dB/%dB, %d reps)",
		c.Kind, c.Axis, c.Interface,
		c.BandwidthMbps, c.LatencyMs,
		c.RequestSize, c.ResponseSize,
		c.Repetitions)
}
