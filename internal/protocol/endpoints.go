package protocol

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

const (
	// readinessInterval is the time between readiness probe attempts.
	readinessInterval = 200 * time.Millisecond
	// readinessRequestTimeout bounds each individual probe request.
	readinessRequestTimeout = 2 * time.Second
)

// EndpointSpec describes one external process the sweep depends on.
type EndpointSpec struct {
	Name     string
	Command  string
	Args     []string
	ProbeURL string
}

// Endpoints starts and stops the external attestor and mock-target
// processes a sweep runs against. A sweep that cannot start its endpoints
// cannot measure anything, so start failures abort before any run.
type Endpoints struct {
	logger *slog.Logger
	procs  []*exec.Cmd
}

func NewEndpoints(logger *slog.Logger) *Endpoints {
	return &Endpoints{logger: logger.With(slog.String("component", "endpoints"))}
}

// Start launches each endpoint process and waits for its readiness probe.
// On any failure the already-started processes are stopped before the
// error is returned.
func (e *Endpoints) Start(ctx context.Context, specs []EndpointSpec, timeout time.Duration) error {
	for _, spec := range specs {
		cmd := exec.CommandContext(ctx, spec.Command, spec.Args...)
		if err := cmd.Start(); err != nil {
			e.Stop()
			return fmt.Errorf("start %s: %w", spec.Name, err)
		}
		e.procs = append(e.procs, cmd)

		e.logger.Info("endpoint started",
			slog.String("name", spec.Name),
			slog.Int("pid", cmd.Process.Pid),
		)

		if spec.ProbeURL == "" {
			continue
		}
		if err := waitToBeReady(ctx, timeout, spec.ProbeURL); err != nil {
			e.Stop()
			return fmt.Errorf("%s did not become ready: %w", spec.Name, err)
		}
	}
	return nil
}

// Stop terminates every endpoint process, most recently started first.
// Best-effort: a process that already exited is not an error.
func (e *Endpoints) Stop() {
	for i := len(e.procs) - 1; i >= 0; i-- {
		cmd := e.procs[i]
		if cmd.Process == nil {
			continue
		}
		if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
			e.logger.Debug("endpoint signal failed",
				slog.Int("pid", cmd.Process.Pid),
				slog.String("error", err.Error()),
			)
		}
		_ = cmd.Wait()
	}
	e.procs = nil
}

func waitToBeReady(ctx context.Context, timeout time.Duration, probeURL string) error {
	client := http.Client{}
	deadline := time.Now().Add(timeout)
	url := strings.TrimRight(probeURL, "/")

	var lastErr error

	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		reqCtx, cancel := context.WithTimeout(ctx, readinessRequestTimeout)
		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
		if err != nil {
			cancel()
			return fmt.Errorf("failed to create readiness request: %w", err)
		}

		resp, err := client.Do(req)
		cancel()

		if err != nil {
			lastErr = err
			time.Sleep(readinessInterval)
			continue
		}

		resp.Body.Close()
		if resp.StatusCode >= http.StatusInternalServerError {
			lastErr = fmt.Errorf("unexpected status code: %d", resp.StatusCode)
			time.Sleep(readinessInterval)
			continue
		}
		return nil
	}

	if lastErr != nil {
		return fmt.Errorf("not ready in %s: last error: %v", timeout, lastErr)
	}
	return fmt.Errorf("not ready in %s", timeout)
}
