package worker

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// processAlive reports whether the OS knows the PID. On Unix, FindProcess
// always succeeds, so signal 0 is the actual existence probe.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// processCommandLine returns the command line of a PID via ps. Works on
// Linux and macOS without procfs assumptions.
func processCommandLine(pid int) (string, error) {
	out, err := exec.Command("ps", "-p", strconv.Itoa(pid), "-o", "command=").Output()
	if err != nil {
		return "", fmt.Errorf("ps -p %d: %w", pid, err)
	}
	return strings.TrimSpace(string(out)), nil
}

// processElapsed returns how long a PID has been running, from ps etime.
func processElapsed(pid int) (time.Duration, error) {
	out, err := exec.Command("ps", "-p", strconv.Itoa(pid), "-o", "etime=").Output()
	if err != nil {
		return 0, fmt.Errorf("ps -p %d: %w", pid, err)
	}
	return parseElapsed(strings.TrimSpace(string(out)))
}

// parseElapsed parses ps etime output: [[DD-]HH:]MM:SS.
func parseElapsed(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, errors.New("empty etime")
	}

	days := 0
	if idx := strings.IndexByte(raw, '-'); idx >= 0 {
		d, err := strconv.Atoi(raw[:idx])
		if err != nil {
			return 0, fmt.Errorf("parse etime %q: %w", raw, err)
		}
		days = d
		raw = raw[idx+1:]
	}

	parts := strings.Split(raw, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("parse etime %q: unexpected format", raw)
	}

	var hours, minutes, seconds int
	var err error
	switch len(parts) {
	case 2:
		minutes, err = strconv.Atoi(parts[0])
		if err == nil {
			seconds, err = strconv.Atoi(parts[1])
		}
	case 3:
		hours, err = strconv.Atoi(parts[0])
		if err == nil {
			minutes, err = strconv.Atoi(parts[1])
		}
		if err == nil {
			seconds, err = strconv.Atoi(parts[2])
		}
	}
	if err != nil {
		return 0, fmt.Errorf("parse etime %q: %w", raw, err)
	}

	return time.Duration(days)*24*time.Hour +
		time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds)*time.Second, nil
}

// childPIDs lists direct children of a PID via pgrep. Exit code 1 means no
// children, which is the common case, not an error.
func childPIDs(pid int) []int {
	out, err := exec.Command("pgrep", "-P", strconv.Itoa(pid)).Output()
	if err != nil {
		return nil
	}

	var pids []int
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if line == "" {
			continue
		}
		if p, err := strconv.Atoi(line); err == nil {
			pids = append(pids, p)
		}
	}
	return pids
}
