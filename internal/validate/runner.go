package validate

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/google/shlex"
)

// RunResult is the raw outcome of one validator invocation.
type RunResult struct {
	ExitCode int
	Output   string
}

// Runner invokes the configured external validator binary. The command
// string is shell-split, so settings may carry flags ("linkcheck --strict");
// target paths are appended as trailing arguments.
type Runner struct {
	Command string
	Dir     string
	Timeout time.Duration
}

// Run executes the validator over paths. The returned error is reserved for
// launch failures (empty command, binary missing, permission denied): a
// non-zero exit with captured output is a normal result, not an error. A
// timeout kills the process and surfaces as exit code -1 with whatever
// output was captured, so classification can never mistake it for clean.
func (r *Runner) Run(ctx context.Context, paths []string) (RunResult, error) {
	argv, err := shlex.Split(r.Command)
	if err != nil {
		return RunResult{}, fmt.Errorf("parse validator command %q: %w", r.Command, err)
	}
	if len(argv) == 0 {
		return RunResult{}, errors.New("validator command is empty")
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, argv[0], append(argv[1:], paths...)...) //nolint:gosec // G204: command comes from the operator's own config
	cmd.Dir = r.Dir

	// Crash traces land on stderr, and the crash heuristic needs to see
	// them, so capture both streams together.
	out, err := cmd.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return RunResult{ExitCode: exitErr.ExitCode(), Output: string(out)}, nil
		}
		return RunResult{}, fmt.Errorf("launch validator %q: %w", argv[0], err)
	}
	return RunResult{ExitCode: 0, Output: string(out)}, nil
}
