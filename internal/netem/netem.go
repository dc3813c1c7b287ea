// Package netem applies and clears emulated network conditions (bandwidth
// cap plus added delay) on an interface via tc qdisc netem.
package netem

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"attestor-bench/internal/oscmd"
)

// ShapingError reports a failure to install or query a shaping rule.
// Fatal to the current run, never to the sweep.
type ShapingError struct {
	Iface string
	Op    string
	Err   error
}

func (e *ShapingError) Error() string {
	return fmt.Sprintf("shaping %s on %s: %v", e.Op, e.Iface, e.Err)
}

func (e *ShapingError) Unwrap() error { return e.Err }

// Shaper owns at most one active netem rule per interface.
type Shaper struct {
	cmd    oscmd.Commander
	logger *slog.Logger
}

func NewShaper(cmd oscmd.Commander, logger *slog.Logger) *Shaper {
	return &Shaper{cmd: cmd, logger: logger.With(slog.String("component", "netem"))}
}

// Apply replaces any existing root qdisc on iface with a netem rule
// enforcing the given rate and delay.
//
// On the loopback device traffic traverses the qdisc twice (once per
// direction), so half the requested latency is installed per direction and
// the round trip adds up to the requested value. Other interfaces get the
// full delay once.
func (s *Shaper) Apply(ctx context.Context, iface string, bandwidthMbps, latencyMs float64) error {
	s.Clear(ctx, iface)

	delay := latencyMs
	if iface == "lo" {
		delay = latencyMs / 2
	}

	args := []string{
		"qdisc", "add", "dev", iface, "root", "netem",
		"rate", FormatValue(bandwidthMbps) + "mbit",
		"delay", FormatValue(delay) + "ms",
	}
	if _, err := s.cmd.Run(ctx, "tc", args...); err != nil {
		return &ShapingError{Iface: iface, Op: "apply", Err: err}
	}

	s.logger.Info("shaping applied",
		slog.String("iface", iface),
		slog.Float64("bandwidth_mbps", bandwidthMbps),
		slog.Float64("latency_ms", latencyMs),
	)
	return nil
}

// Clear removes the root qdisc on iface. Clearing an interface with no
// active rule is a no-op: tc reports an error for that case but the shaper
// cannot distinguish "already absent" from a benign race, so delete
// failures are only logged at debug severity.
func (s *Shaper) Clear(ctx context.Context, iface string) {
	out, ok := s.cmd.RunQuiet(ctx, "tc", "qdisc", "del", "dev", iface, "root")
	if !ok {
		s.logger.Debug("qdisc delete reported failure",
			slog.String("iface", iface),
			slog.String("output", out),
		)
	}
}

// Inspect returns the current qdisc status text for diagnostics.
// Best-effort: failures are logged and an empty string is returned.
func (s *Shaper) Inspect(ctx context.Context, iface string) string {
	out, ok := s.cmd.RunQuiet(ctx, "tc", "qdisc", "show", "dev", iface)
	if !ok {
		s.logger.Warn("qdisc show failed", slog.String("iface", iface))
		return ""
	}
	return out
}

// FormatValue renders a shaping parameter without a trailing ".0" so the
// generated tc arguments match what an operator would type by hand.
func FormatValue(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
