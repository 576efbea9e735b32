// Package notify dispatches session summaries through an operator-configured
// command. The transport itself (chat webhook, desktop notifier, TTS) is a
// black box: postflight only runs the command with the summary path appended
// and records whether it succeeded.
package notify

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/google/shlex"
)

// Notifier delivers one summary. Implementations must be safe to call
// repeatedly with the same path; delivery is best-effort, retried only by
// virtue of the worker's next sweep.
type Notifier interface {
	Enabled() bool
	Dispatch(ctx context.Context, summaryPath string) error
}

// CommandNotifier shells out to the configured command. An empty command
// disables dispatch entirely.
type CommandNotifier struct {
	Command string
	Timeout time.Duration
}

func NewCommandNotifier(command string, timeout time.Duration) *CommandNotifier {
	return &CommandNotifier{Command: command, Timeout: timeout}
}

func (n *CommandNotifier) Enabled() bool {
	return strings.TrimSpace(n.Command) != ""
}

// Dispatch runs the notify command with the summary path as its final
// argument. Output is captured and folded into the error on failure so the
// ledger keeps enough context to debug a broken transport.
func (n *CommandNotifier) Dispatch(ctx context.Context, summaryPath string) error {
	if !n.Enabled() {
		return errors.New("notify command not configured")
	}

	argv, err := shlex.Split(n.Command)
	if err != nil {
		return fmt.Errorf("parse notify command %q: %w", n.Command, err)
	}
	if len(argv) == 0 {
		return errors.New("notify command not configured")
	}

	if n.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, argv[0], append(argv[1:], summaryPath)...) //nolint:gosec // G204: command comes from the operator's own config
	out, err := cmd.CombinedOutput()
	if err != nil {
		detail := strings.TrimSpace(string(out))
		if detail != "" {
			return fmt.Errorf("notify command failed: %w: %s", err, tail(detail, 300))
		}
		return fmt.Errorf("notify command failed: %w", err)
	}
	return nil
}

// tail keeps the last max bytes of s; failure detail usually sits at the end
// of a command's output.
func tail(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return "..." + s[len(s)-max:]
}
