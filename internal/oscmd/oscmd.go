// Package oscmd runs the external commands (tc, iptables) that the harness
// uses to shape and account traffic. Shaping and counter code never touches
// os/exec directly; everything goes through a Commander so tests can
// substitute a fake.
package oscmd

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultTimeout bounds a single external command invocation.
const DefaultTimeout = 30 * time.Second

// Commander executes one external command and returns its combined output.
type Commander interface {
	// Run executes name with args and fails on a non-zero exit.
	Run(ctx context.Context, name string, args ...string) (string, error)
	// RunQuiet executes name with args and reports only whether the command
	// exited zero. Used for best-effort operations (rule checks, deletes of
	// possibly-absent rules) where a failure is an answer, not an error.
	RunQuiet(ctx context.Context, name string, args ...string) (string, bool)
}

// ShellCommander is the production Commander. When Sudo is set, every
// command is prefixed with sudo -n so a privilege failure surfaces
// immediately instead of hanging on a password prompt.
type ShellCommander struct {
	Sudo    bool
	Timeout time.Duration
}

func NewShellCommander(sudo bool) *ShellCommander {
	return &ShellCommander{Sudo: sudo, Timeout: DefaultTimeout}
}

func (s *ShellCommander) Run(ctx context.Context, name string, args ...string) (string, error) {
	out, err := s.exec(ctx, name, args)
	if err != nil {
		return out, fmt.Errorf("%s %s failed: %v, output: %s",
			name, strings.Join(args, " "), err, strings.TrimSpace(out))
	}
	return out, nil
}

func (s *ShellCommander) RunQuiet(ctx context.Context, name string, args ...string) (string, bool) {
	out, err := s.exec(ctx, name, args)
	return out, err == nil
}

func (s *ShellCommander) exec(ctx context.Context, name string, args []string) (string, error) {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if s.Sudo {
		args = append([]string{"-n", name}, args...)
		name = "sudo"
	}

	cmd := exec.CommandContext(runCtx, name, args...)
	out, err := cmd.CombinedOutput() // stdout + stderr
	return string(out), err
}
