package worker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gofrs/flock"

	"github.com/dotcommander/postflight/internal/app"
	"github.com/dotcommander/postflight/internal/evlog"
	"github.com/dotcommander/postflight/internal/models"
	"github.com/dotcommander/postflight/internal/notify"
	"github.com/dotcommander/postflight/internal/statestore"
	"github.com/dotcommander/postflight/internal/store"
)

// ErrAlreadyRunning is returned by Run when another worker holds the flock.
var ErrAlreadyRunning = errors.New("worker already running (lock held by another process)")

// Runner is the long-lived worker process: it dispatches session summaries
// through the notifier, ingests the JSONL event stream into the history DB,
// and prunes expired state. One sweep runs per poll tick and per filesystem
// change under the state dir.
type Runner struct {
	StateDir string
	Settings app.WorkerSettings
	Notifier notify.Notifier
	Events   *evlog.Logger

	// OpenDB is swappable for tests; nil uses the configured history DB.
	OpenDB func() (*sql.DB, error)

	now func() time.Time
}

// NewRunner wires a Runner against the real history DB.
func NewRunner(stateDir string, settings app.WorkerSettings, events *evlog.Logger) *Runner {
	return &Runner{
		StateDir: stateDir,
		Settings: settings,
		Notifier: notify.NewCommandNotifier(settings.NotifyCommand, settings.NotifyTimeout),
		Events:   events,
		OpenDB:   store.InitDB,
		now:      time.Now,
	}
}

// Run executes the worker loop until ctx is canceled. The flock taken here
// is the authoritative singleton guard: a second worker losing TryLock exits
// immediately, regardless of what the PID file says.
func (r *Runner) Run(ctx context.Context) error {
	fileLock := flock.New(filepath.Join(r.StateDir, LockFileName))
	locked, err := fileLock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire worker lock: %w", err)
	}
	if !locked {
		return ErrAlreadyRunning
	}
	defer func() { _ = fileLock.Unlock() }()

	pidStore := statestore.NewFileStore(r.StateDir)
	pid := os.Getpid()
	if err := pidStore.Write(PIDFileName, strconv.Itoa(pid)); err != nil {
		slog.Warn("worker pid file write failed", "error", err.Error())
	}
	defer func() {
		// Only remove the entry if it is still ours; a restart may already
		// have written a successor's PID.
		if val, _, err := pidStore.Read(PIDFileName); err == nil && val == strconv.Itoa(pid) {
			_ = pidStore.Clear(PIDFileName)
		}
	}()

	var db *sql.DB
	if r.OpenDB != nil {
		db, err = r.OpenDB()
		if err != nil {
			// Dispatch and prune still work without the history DB; only
			// the ingest sweep needs it.
			slog.Error("history db unavailable, ingest disabled", "error", err.Error())
			db = nil
		} else {
			defer func() { _ = db.Close() }()
		}
	}

	if !r.Notifier.Enabled() {
		slog.Info("notify command not configured, dispatch disabled")
	}

	slog.Info("worker started", "pid", pid, "state_dir", r.StateDir, "poll", r.Settings.PollInterval.String())
	r.Events.Emit(models.ComponentWorker, models.EventWorkerStarted, map[string]any{"pid": pid})

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("fsnotify unavailable, falling back to polling only", "error", err.Error())
	} else {
		defer func() { _ = watcher.Close() }()
		for _, dir := range []string{app.SummariesDir(r.StateDir), r.StateDir} {
			if err := watcher.Add(dir); err != nil {
				slog.Warn("watch failed", "dir", dir, "error", err.Error())
			}
		}
	}

	ticker := time.NewTicker(r.Settings.PollInterval)
	defer ticker.Stop()

	// Initial sweep picks up whatever accumulated while no worker ran.
	r.sweep(ctx, db)

	var watchEvents chan fsnotify.Event
	var watchErrors chan error
	if watcher != nil {
		watchEvents = watcher.Events
		watchErrors = watcher.Errors
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopping", "pid", pid)
			r.Events.Emit(models.ComponentWorker, models.EventWorkerStopped, map[string]any{"pid": pid})
			return nil
		case <-ticker.C:
			r.sweep(ctx, db)
		case ev, ok := <-watchEvents:
			if !ok {
				watchEvents = nil
				continue
			}
			if ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Write) || ev.Op.Has(fsnotify.Rename) {
				r.sweep(ctx, db)
			}
		case err, ok := <-watchErrors:
			if !ok {
				watchErrors = nil
				continue
			}
			slog.Warn("watcher error", "error", err.Error())
		}
	}
}
