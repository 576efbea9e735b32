// Package worker supervises and runs the singleton notification dispatcher.
// The supervisor side (this file) manages the worker process from short-lived
// hook/CLI invocations; the runner side (runner.go) is the worker process
// itself. The PID file records which process holds the singleton role; the
// flock taken by the runner is the authoritative mutual exclusion, so a lost
// spawn race resolves itself when the loser fails its TryLock and exits.
package worker

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dotcommander/postflight/internal/evlog"
	"github.com/dotcommander/postflight/internal/models"
	"github.com/dotcommander/postflight/internal/statestore"
)

const (
	// PIDFileName is the supervisor lock file inside the state dir.
	PIDFileName = "notify-worker.pid"

	// LockFileName is the flock the runner holds for its whole lifetime.
	LockFileName = "notify-worker.lock"

	// signature is the substring the worker's command line must contain.
	// Checked alongside OS liveness so a recycled PID belonging to some
	// unrelated process is never mistaken for our worker.
	signature = "worker run"

	stopPollInterval = 100 * time.Millisecond
)

// Supervisor manages the singleton worker process through the PID file.
type Supervisor struct {
	Store  statestore.Store
	Events *evlog.Logger

	// Injection points for tests; nil fields use the real OS implementations.
	alive      func(pid int) bool
	cmdline    func(pid int) (string, error)
	startedAgo func(pid int) (time.Duration, error)
	signalPID  func(pid int, sig syscall.Signal) error
	children   func(pid int) []int
	spawn      func() (int, error)
}

// NewSupervisor returns a Supervisor backed by the real OS process table,
// spawning the worker by re-executing the current binary.
func NewSupervisor(store statestore.Store, events *evlog.Logger) *Supervisor {
	return &Supervisor{
		Store:      store,
		Events:     events,
		alive:      processAlive,
		cmdline:    processCommandLine,
		startedAgo: processElapsed,
		signalPID:  func(pid int, sig syscall.Signal) error { return syscall.Kill(pid, sig) },
		children:   childPIDs,
		spawn:      spawnDetachedWorker,
	}
}

// lockedPID reads and parses the PID file. Zero means no lock present.
func (s *Supervisor) lockedPID() (int, error) {
	val, _, err := s.Store.Read(PIDFileName)
	if err != nil {
		if errors.Is(err, statestore.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil {
		return 0, fmt.Errorf("corrupt pid file: %w", err)
	}
	return pid, nil
}

// isWorker runs the two-part liveness check: the OS must report the PID
// alive AND its command line must contain the worker signature. Failing
// either means the lock is stale.
func (s *Supervisor) isWorker(pid int) bool {
	if pid <= 0 || !s.alive(pid) {
		return false
	}
	line, err := s.cmdline(pid)
	if err != nil {
		return false
	}
	return strings.Contains(line, signature)
}

// EnsureRunning starts the worker unless a healthy one already holds the
// lock. Idempotent: a healthy worker means no spawn and no lock write. Never
// waits for the spawned worker to finish initializing.
func (s *Supervisor) EnsureRunning() (models.EnsureResult, error) {
	pid, err := s.lockedPID()
	if err != nil && !strings.Contains(err.Error(), "corrupt pid file") {
		return models.EnsureResult{}, err
	}
	if err == nil && pid > 0 && s.isWorker(pid) {
		return models.EnsureResult{Started: false, PID: pid}, nil
	}

	if pid > 0 || err != nil {
		// Dead, recycled, or corrupt entry: self-heal before spawning.
		slog.Warn("clearing stale worker lock", "pid", pid)
		s.Events.Warn(models.ComponentSupervisor, "stale worker lock cleared", map[string]any{"pid": pid})
		if clearErr := s.Store.Clear(PIDFileName); clearErr != nil {
			return models.EnsureResult{}, clearErr
		}
	}

	newPID, err := s.spawn()
	if err != nil {
		return models.EnsureResult{}, fmt.Errorf("spawn worker: %w", err)
	}
	if err := s.Store.Write(PIDFileName, strconv.Itoa(newPID)); err != nil {
		slog.Warn("worker pid file write failed", "pid", newPID, "error", err.Error())
	}
	s.Events.Emit(models.ComponentSupervisor, models.EventWorkerStarted, map[string]any{"pid": newPID})
	return models.EnsureResult{Started: true, PID: newPID}, nil
}

// Stop terminates the worker: graceful signal, poll up to gracefulTimeout,
// then forced kill of the worker and any still-alive children it spawned.
// The lock file is removed on every path out of this call.
func (s *Supervisor) Stop(gracefulTimeout time.Duration) error {
	defer func() {
		if err := s.Store.Clear(PIDFileName); err != nil {
			slog.Warn("worker pid file clear failed", "error", err.Error())
		}
	}()

	pid, err := s.lockedPID()
	if err != nil || pid == 0 || !s.isWorker(pid) {
		// Nothing live to stop; the deferred clear self-heals any stale entry.
		return nil
	}

	if err := s.signalPID(pid, syscall.SIGTERM); err != nil {
		return fmt.Errorf("signal worker %d: %w", pid, err)
	}

	deadline := time.Now().Add(gracefulTimeout)
	for time.Now().Before(deadline) {
		if !s.alive(pid) {
			s.Events.Emit(models.ComponentSupervisor, models.EventWorkerStopped, map[string]any{"pid": pid, "forced": false})
			return nil
		}
		time.Sleep(stopPollInterval)
	}

	// Escalate. The worker may have a file-watcher child of its own.
	kids := s.children(pid)
	_ = s.signalPID(pid, syscall.SIGKILL)
	for _, kid := range kids {
		if s.alive(kid) {
			_ = s.signalPID(kid, syscall.SIGKILL)
		}
	}
	s.Events.Emit(models.ComponentSupervisor, models.EventWorkerStopped, map[string]any{"pid": pid, "forced": true})
	return nil
}

// Status reports the worker's state without mutating the lock file, even
// when the entry is stale. Uptime comes from the process start time via ps,
// not the lock file's mtime: the file may have been rewritten after the
// process actually started.
func (s *Supervisor) Status() models.WorkerStatus {
	pid, err := s.lockedPID()
	if err != nil || pid == 0 {
		return models.WorkerStatus{Running: false}
	}
	if !s.isWorker(pid) {
		return models.WorkerStatus{Running: false}
	}

	status := models.WorkerStatus{Running: true, PID: pid}
	if up, err := s.startedAgo(pid); err == nil {
		status.UptimeSeconds = int64(up.Seconds())
	}
	return status
}

// Restart is Stop followed by EnsureRunning.
func (s *Supervisor) Restart(gracefulTimeout time.Duration) (models.EnsureResult, error) {
	if err := s.Stop(gracefulTimeout); err != nil {
		return models.EnsureResult{}, err
	}
	return s.EnsureRunning()
}

// spawnDetachedWorker re-executes the current binary as "worker run" in its
// own session with /dev/null stdio, so it survives the caller's exit and
// cannot contaminate the hook's stdout protocol.
func spawnDetachedWorker() (int, error) {
	exe, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("locate executable: %w", err)
	}

	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", os.DevNull, err)
	}
	defer func() { _ = devNull.Close() }()

	cmd := exec.Command(exe, "worker", "run")
	cmd.Stdin = devNull
	cmd.Stdout = devNull
	cmd.Stderr = devNull
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return 0, err
	}
	pid := cmd.Process.Pid
	if err := cmd.Process.Release(); err != nil {
		slog.Warn("worker process release failed", "pid", pid, "error", err.Error())
	}
	return pid, nil
}
