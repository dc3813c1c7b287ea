package protocol

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"time"
)

// ExecRoundRunner drives rounds through the collaborator's CLI. The CLI
// prints one JSON object per line on stdout: step events as they happen,
// then a single result object. Anything that does not parse as JSON is
// collaborator chatter and is ignored.
type ExecRoundRunner struct {
	Binary  string
	Timeout time.Duration
	Logger  *slog.Logger
}

func NewExecRoundRunner(binary string, timeout time.Duration, logger *slog.Logger) *ExecRoundRunner {
	return &ExecRoundRunner{
		Binary:  binary,
		Timeout: timeout,
		Logger:  logger.With(slog.String("component", "round-runner")),
	}
}

// streamLine is the union of the two line shapes the collaborator emits.
type streamLine struct {
	Step   *StepEvent   `json:"step,omitempty"`
	Result *RoundResult `json:"result,omitempty"`
	Error  string       `json:"error,omitempty"`
}

func (r *ExecRoundRunner) Run(ctx context.Context, spec RoundSpec, onStep func(StepEvent)) (*RoundResult, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	args := []string{
		"round",
		"--attestor", spec.AttestorURL,
		"--target", spec.TargetURL,
		"--request-size", strconv.FormatInt(spec.RequestSize, 10),
		"--response-size", strconv.FormatInt(spec.ResponseSize, 10),
		"--version", spec.Version,
		"--engine", spec.Engine,
	}

	r.Logger.Debug("round starting",
		slog.String("binary", r.Binary),
		slog.Int64("request_size", spec.RequestSize),
		slog.Int64("response_size", spec.ResponseSize),
	)

	cmd := exec.CommandContext(ctx, r.Binary, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &ProtocolError{Stage: "start", Err: err}
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, &ProtocolError{Stage: "start", Err: err}
	}

	var (
		result   *RoundResult
		roundErr string
	)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var line streamLine
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			continue
		}
		switch {
		case line.Step != nil:
			if onStep != nil {
				onStep(*line.Step)
			}
		case line.Result != nil:
			result = line.Result
		case line.Error != "":
			roundErr = line.Error
		}
	}

	waitErr := cmd.Wait()

	if roundErr != "" {
		return nil, &ProtocolError{Stage: "round", Err: fmt.Errorf("%s", roundErr)}
	}
	if waitErr != nil && !IsBenignTermination(waitErr) {
		return nil, &ProtocolError{
			Stage: "round",
			Err:   fmt.Errorf("%v, stderr: %s", waitErr, stderr.String()),
		}
	}
	if result == nil {
		return nil, &ProtocolError{Stage: "round", Err: fmt.Errorf("collaborator produced no result")}
	}
	return result, nil
}

// Verify replays the receipt through the collaborator's verifier.
func (r *ExecRoundRunner) Verify(ctx context.Context, result *RoundResult) error {
	if result == nil || len(result.Receipt) == 0 {
		return &ProtocolError{Stage: "verify", Err: fmt.Errorf("no receipt to verify")}
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, r.Binary, "verify")
	cmd.Stdin = bytes.NewReader(result.Receipt)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return &ProtocolError{
			Stage: "verify",
			Err:   fmt.Errorf("%v, output: %s", err, bytes.TrimSpace(out)),
		}
	}
	return nil
}
