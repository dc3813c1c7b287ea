// Package main provides the CLI entry point for attestor-bench, a
// network-condition benchmarking harness for attestation protocol rounds.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"attestor-bench/internal/config"
	"attestor-bench/internal/counters"
	"attestor-bench/internal/netem"
	"attestor-bench/internal/oscmd"
	"attestor-bench/internal/protocol"
	"attestor-bench/internal/results"
	"attestor-bench/internal/sweep"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	root := newRootCmd(logger)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(logger *slog.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:   "attestor-bench",
		Short: "Benchmark attestation protocol rounds under shaped network conditions",
		Long: `Attestor-bench drives repeated protocol rounds while shaping bandwidth
and latency on a network interface, measuring bytes on the wire with
accounting rules and recording per-phase timings for each run.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newRunCmd(logger))

	return root
}

func newRunCmd(logger *slog.Logger) *cobra.Command {
	var (
		configPath string
		sweepKind  string
		axis       string
		output     string
		reps       int
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one sweep and export the results",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configPath, sweepKind, axis, output, reps)
			if err != nil {
				return err
			}
			return runSweep(cmd.Context(), logger, cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configPath, "config", "bench.yaml",
		"Path to the sweep configuration file")
	flags.StringVar(&sweepKind, "sweep", "",
		"Varying parameter: bandwidth, latency or payload")
	flags.StringVar(&axis, "axis", "",
		"Comma-separated axis values (overrides config)")
	flags.StringVar(&output, "output", "",
		"CSV output path (overrides config)")
	flags.IntVar(&reps, "repetitions", 0,
		"Measured repetitions per axis value (overrides config)")

	return cmd
}

func loadConfig(path, sweepKind, axis, output string, reps int) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if sweepKind != "" {
		kind := config.SweepKind(sweepKind)
		// The configured axis belongs to the configured kind; it only
		// gives way to the default axis when the kind actually changes.
		if kind != cfg.Kind && axis == "" {
			cfg.Axis = config.DefaultAxes[kind]
		}
		cfg.Kind = kind
	}
	if axis != "" {
		values, err := config.ParseAxis(axis)
		if err != nil {
			return nil, err
		}
		cfg.Axis = values
	}
	if output != "" {
		cfg.OutputPath = output
	}
	if reps > 0 {
		cfg.Repetitions = reps
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runSweep(parent context.Context, logger *slog.Logger, cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("sweep starting", slog.String("config", cfg.Describe()))

	commander := oscmd.NewShellCommander(cfg.Sudo)
	shaper := netem.NewShaper(commander, logger)
	ctrs := counters.NewCounters(commander, logger)
	runner := protocol.NewExecRoundRunner(cfg.RoundBinary, cfg.RoundTimeoutDuration(), logger)
	endpoints := protocol.NewEndpoints(logger)

	orch := sweep.NewOrchestrator(cfg, shaper, ctrs, runner, endpoints, logger)

	records, err := orch.Run(ctx)
	if err != nil && len(records) == 0 {
		return err
	}
	if err != nil && errors.Is(err, context.Canceled) {
		logger.Warn("sweep interrupted, exporting partial results")
	}

	if exportErr := results.ExportCSV(records, cfg.OutputPath); exportErr != nil {
		return fmt.Errorf("failed to export results: %w", exportErr)
	}
	logger.Info("results exported",
		slog.String("path", cfg.OutputPath),
		slog.Int("rows", len(records)),
	)

	results.PrintSummary(records)

	if !cfg.HistoryOff {
		saveHistory(logger, cfg, records)
	}

	return nil
}

// saveHistory appends the sweep to the local history store. Persistence
// is a convenience; failures are logged and the sweep still succeeds.
func saveHistory(logger *slog.Logger, cfg *config.Config, records []results.RunRecord) {
	store, err := results.OpenHistory()
	if err != nil {
		logger.Warn("history store unavailable", slog.String("error", err.Error()))
		return
	}
	defer store.Close()

	entry := results.HistoryEntry{
		SweepID:   uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Kind:      string(cfg.Kind),
		Records:   records,
	}
	if err := store.Append(entry); err != nil {
		logger.Warn("failed to save sweep history", slog.String("error", err.Error()))
		return
	}
	logger.Info("sweep saved to history", slog.String("sweep_id", entry.SweepID))
}
