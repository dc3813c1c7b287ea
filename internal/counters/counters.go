// Package counters measures bytes on the wire with iptables accounting
// rules, one pair per port: an outbound rule keyed by destination port and
// an inbound rule keyed by source port. The rules sit in the OUTPUT chain
// and do nothing but count; the protocol under test is never modified.
package counters

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"attestor-bench/internal/oscmd"
)

const chain = "OUTPUT"

// InstrumentationError reports a counter install/read/remove failure.
// The orchestrator degrades byte counts rather than aborting on it.
type InstrumentationError struct {
	Op  string
	Err error
}

func (e *InstrumentationError) Error() string {
	return fmt.Sprintf("counter %s: %v", e.Op, e.Err)
}

func (e *InstrumentationError) Unwrap() error { return e.Err }

// InsertOutcome reports what an idempotent insert actually did.
type InsertOutcome int

const (
	AlreadyPresent InsertOutcome = iota
	Inserted
)

// Counters installs, zeroes, reads and removes accounting rules for a
// port set. All operations are independently idempotent: they run once per
// measured run in loops that may span hundreds of iterations, and any
// leaked rule or stale counter silently corrupts every later measurement.
type Counters struct {
	cmd    oscmd.Commander
	logger *slog.Logger
}

func NewCounters(cmd oscmd.Commander, logger *slog.Logger) *Counters {
	return &Counters{cmd: cmd, logger: logger.With(slog.String("component", "counters"))}
}

// ruleArgs returns the match arguments for one accounting rule.
// direction is "dport" for transmitted bytes, "sport" for received.
func ruleArgs(port int, direction string) []string {
	return []string{"-p", "tcp", "--" + direction, strconv.Itoa(port), "-j", "ACCEPT"}
}

// Install ensures one dport and one sport rule exist per port, then zeroes
// the chain counters so the upcoming run starts from zero. Installing twice
// never duplicates a rule: each insert is preceded by an existence check.
func (c *Counters) Install(ctx context.Context, ports []int) error {
	for _, port := range ports {
		for _, direction := range []string{"dport", "sport"} {
			outcome, err := c.ensureRule(ctx, port, direction)
			if err != nil {
				return err
			}
			if outcome == Inserted {
				c.logger.Debug("accounting rule inserted",
					slog.Int("port", port),
					slog.String("direction", direction),
				)
			}
		}
	}

	if _, err := c.cmd.Run(ctx, "iptables", "-Z", chain); err != nil {
		return &InstrumentationError{Op: "zero", Err: err}
	}
	return nil
}

// ensureRule is the explicit check-then-insert: a -C probe answers whether
// the rule exists, and only a failed probe triggers the -A append.
func (c *Counters) ensureRule(ctx context.Context, port int, direction string) (InsertOutcome, error) {
	match := ruleArgs(port, direction)

	if _, ok := c.cmd.RunQuiet(ctx, "iptables", append([]string{"-C", chain}, match...)...); ok {
		return AlreadyPresent, nil
	}

	if _, err := c.cmd.Run(ctx, "iptables", append([]string{"-A", chain}, match...)...); err != nil {
		return AlreadyPresent, &InstrumentationError{Op: "install", Err: err}
	}
	return Inserted, nil
}

// Read sums the byte counters of every rule matching the port set and
// returns (transmitted, received). A missing rule counts as zero and a
// malformed listing line is skipped; a run must never fail just because
// one accounting line did not parse.
func (c *Counters) Read(ctx context.Context, ports []int) (sent, recv int64, err error) {
	out, runErr := c.cmd.Run(ctx, "iptables", "-L", chain, "-v", "-n", "-x")
	if runErr != nil {
		return 0, 0, &InstrumentationError{Op: "read", Err: runErr}
	}
	sent, recv = ParseChainBytes(out, ports)
	return sent, recv, nil
}

// ParseChainBytes extracts per-port byte totals from iptables -L -v -n -x
// output. The first two lines are the chain banner and the column header;
// in each rule line the byte counter is the second whitespace field.
func ParseChainBytes(listing string, ports []int) (sent, recv int64) {
	lines := strings.Split(listing, "\n")
	if len(lines) <= 2 {
		return 0, 0
	}

	for _, line := range lines[2:] {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		bytes, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			continue
		}
		for _, port := range ports {
			p := strconv.Itoa(port)
			if hasToken(fields, "dpt:"+p) {
				sent += bytes
			} else if hasToken(fields, "spt:"+p) {
				recv += bytes
			}
		}
	}
	return sent, recv
}

// hasToken reports whether one whitespace field equals token exactly.
// Substring matching would let port 80 claim the dpt:8001 rule's bytes.
func hasToken(fields []string, token string) bool {
	for _, f := range fields {
		if f == token {
			return true
		}
	}
	return false
}

// Remove deletes every accounting rule for the port set. Deletion is
// repeat-until-absent, not single-shot: iptables happily accumulates
// duplicate matching rules across retries and -D removes only one per
// call. Deleting a rule that is already gone is success.
func (c *Counters) Remove(ctx context.Context, ports []int) {
	for _, port := range ports {
		for _, direction := range []string{"dport", "sport"} {
			match := append([]string{"-D", chain}, ruleArgs(port, direction)...)
			deleted := 0
			for {
				if _, ok := c.cmd.RunQuiet(ctx, "iptables", match...); !ok {
					break
				}
				deleted++
			}
			if deleted > 1 {
				c.logger.Warn("removed duplicate accounting rules",
					slog.Int("port", port),
					slog.String("direction", direction),
					slog.Int("count", deleted),
				)
			}
		}
	}
}
