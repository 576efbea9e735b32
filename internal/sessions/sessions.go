// Package sessions persists per-session start records so the summary builder
// can compute a session duration. Records are small JSON files under
// <state_dir>/sessions, one per session_id. Lookups never fail: a missing or
// unreadable record yields a zero duration.
package sessions

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dotcommander/postflight/internal/app"
)

// StartRecord marks when a session began.
type StartRecord struct {
	SessionID string    `json:"session_id"`
	StartedAt time.Time `json:"started_at"`
	CWD       string    `json:"cwd,omitempty"`
}

// Store reads and writes start records in a single directory.
type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// StartPath returns the record path for a session. Session IDs pass through
// app.SanitizeSessionID so a hostile or malformed ID cannot escape the
// directory.
func (s *Store) StartPath(sessionID string) string {
	return filepath.Join(s.dir, "start_"+app.SanitizeSessionID(sessionID)+".json")
}

// RecordStart writes the start record atomically (temp file + rename in the
// same directory). Re-recording an existing session overwrites it, so a
// restarted session restarts its clock.
func (s *Store) RecordStart(sessionID, cwd string, at time.Time) error {
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return err
	}
	rec := StartRecord{SessionID: sessionID, StartedAt: at.UTC(), CWD: cwd}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, ".start-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, s.StartPath(sessionID))
}

// DurationSeconds returns whole seconds elapsed since the session's recorded
// start. Missing records, unreadable JSON, and clock skew (start in the
// future) all yield 0.
func (s *Store) DurationSeconds(sessionID string, now time.Time) int64 {
	data, err := os.ReadFile(s.StartPath(sessionID))
	if err != nil {
		return 0
	}
	var rec StartRecord
	if err := json.Unmarshal(data, &rec); err != nil || rec.StartedAt.IsZero() {
		return 0
	}
	secs := int64(now.Sub(rec.StartedAt).Seconds())
	if secs < 0 {
		return 0
	}
	return secs
}

// Prune removes start records whose mtime is older than maxAge. Per-file
// remove failures are logged and skipped; the returned count covers
// successful removals only.
func (s *Store) Prune(maxAge time.Duration, now time.Time) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	removed := 0
	cutoff := now.Add(-maxAge)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "start_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(s.dir, name)
		if err := os.Remove(path); err != nil {
			slog.Default().Warn("session record prune failed", "path", path, "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}
