package validate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRunnerCapturesOutputAndExitCode(t *testing.T) {
	r := &Runner{Command: `sh -c 'printf "a.md:1: broken\n"; exit 1'`}

	res, err := r.Run(context.Background(), nil)
	require.NoError(t, err, "non-zero exit with output is a normal result")
	require.Equal(t, 1, res.ExitCode)
	require.Equal(t, "a.md:1: broken\n", res.Output)
}

func TestRunnerAppendsPathsAsArguments(t *testing.T) {
	r := &Runner{Command: `sh -c 'echo "$@"' --`}

	res, err := r.Run(context.Background(), []string{"one.md", "two.md"})
	require.NoError(t, err)
	require.Equal(t, 0, res.ExitCode)
	require.Equal(t, "one.md two.md\n", res.Output)
}

func TestRunnerLaunchFailures(t *testing.T) {
	_, err := (&Runner{Command: "postflight-test-no-such-binary"}).Run(context.Background(), nil)
	require.Error(t, err)

	_, err = (&Runner{Command: ""}).Run(context.Background(), nil)
	require.Error(t, err)

	_, err = (&Runner{Command: `sh -c 'unterminated`}).Run(context.Background(), nil)
	require.Error(t, err)
}

func TestRunnerTimeoutIsNotALaunchFailure(t *testing.T) {
	r := &Runner{Command: "sleep 5", Timeout: 100 * time.Millisecond}

	start := time.Now()
	res, err := r.Run(context.Background(), nil)
	require.NoError(t, err)
	require.Less(t, time.Since(start), 3*time.Second)
	require.Equal(t, -1, res.ExitCode, "a killed validator must not look like exit 0")
}
