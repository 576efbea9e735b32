package worker

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dotcommander/postflight/internal/app"
	"github.com/dotcommander/postflight/internal/evlog"
	"github.com/dotcommander/postflight/internal/models"
	"github.com/dotcommander/postflight/internal/sessions"
	"github.com/dotcommander/postflight/internal/store"
	"github.com/dotcommander/postflight/internal/summary"
)

// sweep runs the three worker duties concurrently. Each duty logs and
// absorbs its own failures; a broken notifier must not stall ingest, and a
// missing DB must not stall dispatch.
func (r *Runner) sweep(ctx context.Context, db *sql.DB) {
	var g errgroup.Group
	g.Go(func() error { return r.dispatchSummaries(ctx, db) })
	g.Go(func() error { return r.ingestEvents(db) })
	g.Go(func() error { return r.prune() })
	if err := g.Wait(); err != nil {
		slog.Warn("sweep finished with errors", "error", err.Error())
	}
}

// dispatchSummaries sends every pending summary through the notifier and
// archives the ones that were delivered. A failed dispatch leaves the file
// in place so the next sweep retries it.
func (r *Runner) dispatchSummaries(ctx context.Context, db *sql.DB) error {
	if !r.Notifier.Enabled() {
		return nil
	}

	pendingDir := app.SummariesDir(r.StateDir)
	paths, err := summary.List(pendingDir)
	if err != nil {
		return fmt.Errorf("list summaries: %w", err)
	}

	for _, path := range paths {
		sessionID := ""
		if s, readErr := summary.ReadFile(path); readErr == nil {
			sessionID = s.SessionID
		}

		dispatchErr := r.Notifier.Dispatch(ctx, path)
		r.recordDispatch(db, sessionID, path, dispatchErr)

		if dispatchErr != nil {
			slog.Warn("summary dispatch failed, will retry", "path", path, "error", dispatchErr.Error())
			r.Events.Emit(models.ComponentWorker, models.EventNotifyFailed, map[string]any{
				"session_id": sessionID, "summary": path, "error": dispatchErr.Error(),
			})
			continue
		}

		r.Events.Emit(models.ComponentWorker, models.EventNotifyDispatched, map[string]any{
			"session_id": sessionID, "summary": path,
		})
		archived := filepath.Join(app.SummaryArchiveDir(r.StateDir), filepath.Base(path))
		if err := os.Rename(path, archived); err != nil {
			slog.Warn("summary archive failed", "path", path, "error", err.Error())
		}
	}
	return nil
}

func (r *Runner) recordDispatch(db *sql.DB, sessionID, path string, dispatchErr error) {
	if db == nil {
		return
	}
	n := models.Notification{
		SessionID:    sessionID,
		SummaryPath:  path,
		OK:           dispatchErr == nil,
		DispatchedAt: r.now().UTC(),
	}
	if dispatchErr != nil {
		n.Error = dispatchErr.Error()
	}
	if _, err := store.RecordNotification(db, n); err != nil {
		slog.Warn("notification ledger write failed", "error", err.Error())
	}
}

// ingestEvents copies new JSONL event records into the history DB, resuming
// from the byte offset recorded for the stream. A partial trailing line
// (a hook mid-append) is left for the next sweep; a shrunken file means the
// stream was rotated, so ingest restarts from zero.
func (r *Runner) ingestEvents(db *sql.DB) error {
	if db == nil {
		return nil
	}

	source := app.EventLogPath(r.StateDir)
	f, err := os.Open(source) //nolint:gosec // G304: path is inside our own state dir
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open event stream: %w", err)
	}
	defer func() { _ = f.Close() }()

	offset, err := store.IngestOffset(db, source)
	if err != nil {
		return fmt.Errorf("read ingest offset: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat event stream: %w", err)
	}
	if info.Size() < offset {
		slog.Warn("event stream shrank, restarting ingest", "size", info.Size(), "offset", offset)
		offset = 0
	}
	if info.Size() == offset {
		return nil
	}

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("seek event stream: %w", err)
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("read event stream: %w", err)
	}

	// Consume only whole lines; anything after the last newline is a write
	// in flight.
	end := bytes.LastIndexByte(data, '\n')
	if end < 0 {
		return nil
	}
	consumed := data[:end+1]
	newOffset := offset + int64(len(consumed))

	var records []models.EventLogRecord
	skipped := 0
	for _, line := range bytes.Split(consumed, []byte{'\n'}) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		rec, parseErr := evlog.ParseRecord(line)
		if parseErr != nil {
			skipped++
			continue
		}
		records = append(records, rec)
	}
	if skipped > 0 {
		slog.Warn("skipped malformed event lines", "count", skipped)
	}

	inserted, err := store.InsertIngestedEvents(db, source, records, newOffset)
	if err != nil {
		return fmt.Errorf("ingest events: %w", err)
	}
	if inserted > 0 {
		slog.Info("ingested events", "count", inserted, "offset", newOffset)
	}
	return nil
}

// prune removes expired state: old session-start records, archived
// summaries past retention, and stale validator reports.
func (r *Runner) prune() error {
	now := r.now()

	sessStore := sessions.NewStore(app.SessionsDir(r.StateDir))
	if _, err := sessStore.Prune(daysToDuration(r.Settings.SessionRetentionDays), now); err != nil {
		slog.Warn("session prune failed", "error", err.Error())
	}

	pruneDir(app.SummaryArchiveDir(r.StateDir), "summary_", daysToDuration(r.Settings.SummaryRetentionDays), now)
	pruneDir(app.ReportsDir(r.StateDir), "report_", daysToDuration(r.Settings.ReportRetentionDays), now)
	return nil
}

func daysToDuration(days int) time.Duration {
	return time.Duration(days) * 24 * time.Hour
}

func pruneDir(dir, prefix string, maxAge time.Duration, now time.Time) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	cutoff := now.Add(-maxAge)
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if err := os.Remove(path); err != nil {
			slog.Warn("prune failed", "path", path, "error", err.Error())
		}
	}
}
