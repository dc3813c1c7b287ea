// Package sweep sequences warmup and measured protocol rounds across one
// varying parameter while holding the others fixed. It is single-threaded
// by design: shaping rules and byte counters are process-wide OS
// resources, and exactly one measured run may own them at a time.
package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"attestor-bench/internal/config"
	"attestor-bench/internal/counters"
	"attestor-bench/internal/netem"
	"attestor-bench/internal/protocol"
	"attestor-bench/internal/results"
)

// warmupPayloadSize is the minimal payload used for warmup rounds. The
// rounds exist only to stabilize connection pools and warm code paths;
// their results are discarded.
const warmupPayloadSize = 64

// Orchestrator drives one sweep: INIT, WARMUP, then per parameter value
// and repetition SHAPE, INSTRUMENT, EXECUTE, TEARDOWN, and finally hands
// the ordered record sequence back for export.
type Orchestrator struct {
	cfg       *config.Config
	shaper    *netem.Shaper
	counters  *counters.Counters
	runner    protocol.RoundRunner
	endpoints *protocol.Endpoints
	logger    *slog.Logger
	rss       *rssSampler
}

func NewOrchestrator(
	cfg *config.Config,
	shaper *netem.Shaper,
	ctrs *counters.Counters,
	runner protocol.RoundRunner,
	endpoints *protocol.Endpoints,
	logger *slog.Logger,
) *Orchestrator {
	rss, err := newRSSSampler()
	if err != nil {
		logger.Warn("rss sampling unavailable", slog.String("error", err.Error()))
	}
	return &Orchestrator{
		cfg:       cfg,
		shaper:    shaper,
		counters:  ctrs,
		runner:    runner,
		endpoints: endpoints,
		logger:    logger.With(slog.String("component", "sweep")),
		rss:       rss,
	}
}

// Run executes the full sweep and returns one record per intended run,
// in execution order. Only an endpoint start failure aborts; every
// per-run failure degrades to an error record and the sweep continues.
func (o *Orchestrator) Run(ctx context.Context) ([]results.RunRecord, error) {
	if len(o.cfg.Endpoints) > 0 && o.endpoints != nil {
		specs := make([]protocol.EndpointSpec, 0, len(o.cfg.Endpoints))
		for _, ep := range o.cfg.Endpoints {
			specs = append(specs, protocol.EndpointSpec{
				Name:     ep.Name,
				Command:  ep.Command,
				Args:     ep.Args,
				ProbeURL: ep.ProbeURL,
			})
		}
		if err := o.endpoints.Start(ctx, specs, o.cfg.StartTimeoutDuration()); err != nil {
			return nil, fmt.Errorf("failed to start protocol endpoints: %w", err)
		}
		defer o.endpoints.Stop()
	}

	o.warmup(ctx)

	records := make([]results.RunRecord, 0, len(o.cfg.Axis)*o.cfg.Repetitions)
	for _, value := range o.cfg.Axis {
		for rep := 1; rep <= o.cfg.Repetitions; rep++ {
			if ctx.Err() != nil {
				o.logger.Warn("sweep interrupted",
					slog.Int("completed", len(records)))
				return records, ctx.Err()
			}
			rec := o.runOnce(ctx, value, rep)
			records = append(records, rec)
		}
	}

	return records, nil
}

// warmup runs a few rounds with minimal payload over the unshaped
// network. Failures are logged and otherwise ignored.
func (o *Orchestrator) warmup(ctx context.Context) {
	for i := 0; i < o.cfg.WarmupRuns; i++ {
		spec := protocol.RoundSpec{
			AttestorURL:  o.cfg.AttestorURL,
			TargetURL:    o.cfg.TargetURL,
			RequestSize:  warmupPayloadSize,
			ResponseSize: warmupPayloadSize,
			Version:      o.cfg.Version,
			Engine:       o.cfg.Engine,
		}
		if _, err := o.runner.Run(ctx, spec, nil); err != nil {
			o.logger.Warn("warmup round failed",
				slog.Int("round", i+1),
				slog.String("error", err.Error()),
			)
			continue
		}
		o.logger.Info("warmup round done", slog.Int("round", i+1))
	}
}

// pointParams resolves the effective parameters for one axis value.
func (o *Orchestrator) pointParams(value float64) (bw, lat float64, reqSize, respSize int64) {
	bw = o.cfg.BandwidthMbps
	lat = o.cfg.LatencyMs
	reqSize = o.cfg.RequestSize
	respSize = o.cfg.ResponseSize

	switch o.cfg.Kind {
	case config.SweepBandwidth:
		bw = value
	case config.SweepLatency:
		lat = value
	case config.SweepPayload:
		reqSize = int64(value)
		respSize = int64(value)
	}
	return bw, lat, reqSize, respSize
}

// runOnce measures exactly one protocol round under one shaped network
// condition. Teardown runs on every exit path: a round that fails must
// still clear shaping and read out the counters, otherwise every later
// run on this interface and port set is contaminated.
// The record is a named return so the deferred teardown can still fill
// in runtime, memory and byte counts on the failure paths.
func (o *Orchestrator) runOnce(ctx context.Context, value float64, rep int) (rec results.RunRecord) {
	bw, lat, reqSize, respSize := o.pointParams(value)

	rec = results.RunRecord{
		Kind:          o.cfg.Engine,
		Name:          fmt.Sprintf("%s-%s", o.cfg.Kind, netem.FormatValue(value)),
		BandwidthMbps: bw,
		LatencyMs:     lat,
		RequestSize:   reqSize,
		ResponseSize:  respSize,
		// Byte counts default to the nominal payload sizes so the
		// columns never have holes when the counter read fails.
		SendBytes: reqSize,
		RecvBytes: respSize,
	}

	o.logger.Info("run starting",
		slog.String("point", rec.Name),
		slog.Int("rep", rep),
		slog.Float64("bandwidth_mbps", bw),
		slog.Float64("latency_ms", lat),
	)

	memBefore := o.rss.rssMB()
	countersInstalled := false
	start := time.Now()

	// Teardown always runs, success or failure. Release order: clear
	// shaping first, then read and remove counters, then finalize the
	// record. Errors here never escalate past a warning; best-effort
	// teardown is what keeps later runs uncontaminated.
	defer func() {
		// The runtime clock stops here, before any teardown command
		// executes: recorded runtimes cover the round, not the cleanup.
		elapsed := time.Since(start)

		o.shaper.Clear(ctx, o.cfg.Interface)

		if countersInstalled {
			sent, recv, err := o.counters.Read(ctx, o.cfg.Ports)
			if err != nil {
				o.logger.Warn("counter read failed, using nominal sizes",
					slog.String("error", err.Error()))
			} else {
				rec.SendBytes = sent
				rec.RecvBytes = recv
			}
		}
		// Remove is not gated on a successful install: Install can fail
		// after appending rules (the zeroing step), and those appended
		// rules must still come off the chain. Removing absent rules is
		// a no-op.
		if len(o.cfg.Ports) > 0 {
			o.counters.Remove(ctx, o.cfg.Ports)
		}

		rec.RuntimeMs = float64(elapsed.Microseconds()) / 1000
		rec.MemoryRSSMB = o.rss.rssMB() - memBefore
		if rec.Error != "" {
			rec.ClearPhases()
		}
		rec.Finalize()

		o.logger.Info("run finished",
			slog.String("point", rec.Name),
			slog.Int("rep", rep),
			slog.Float64("runtime_ms", rec.RuntimeMs),
			slog.Int64("send_bytes", rec.SendBytes),
			slog.Int64("recv_bytes", rec.RecvBytes),
			slog.Bool("failed", rec.Error != ""),
		)
	}()

	// SHAPE
	if err := o.shaper.Apply(ctx, o.cfg.Interface, bw, lat); err != nil {
		rec.Error = err.Error()
		return rec
	}
	if o.cfg.ShowShaping {
		o.logger.Info("active shaping",
			slog.String("qdisc", o.shaper.Inspect(ctx, o.cfg.Interface)))
	}

	// INSTRUMENT. A counter failure degrades byte counts to the nominal
	// sizes; the round still executes.
	if len(o.cfg.Ports) > 0 {
		if err := o.counters.Install(ctx, o.cfg.Ports); err != nil {
			o.logger.Warn("counter install failed, byte counts will be nominal",
				slog.String("error", err.Error()))
		} else {
			countersInstalled = true
		}
	}

	// EXECUTE
	collector := NewStepCollector(&rec)
	spec := protocol.RoundSpec{
		AttestorURL:  o.cfg.AttestorURL,
		TargetURL:    o.cfg.TargetURL,
		RequestSize:  reqSize,
		ResponseSize: respSize,
		Version:      o.cfg.Version,
		Engine:       o.cfg.Engine,
	}

	result, err := o.runner.Run(ctx, spec, collector.OnStep)
	if err != nil {
		rec.Error = err.Error()
		return rec
	}

	if rec.ZKProofBytes == nil && result.ProofBytes > 0 {
		rec.ZKProofBytes = results.Int64Ptr(result.ProofBytes)
	}

	// Third-party verification is timed here, around our own call into
	// the collaborator, not via a phase event.
	verifyStart := time.Now()
	if err := o.runner.Verify(ctx, result); err != nil {
		rec.Error = err.Error()
		return rec
	}
	rec.ThirdPartyVerifyMs = results.Float64Ptr(
		float64(time.Since(verifyStart).Microseconds()) / 1000)

	return rec
}
