// Package summary assembles and persists the per-session JSON artifact the
// notification worker consumes. Summaries are write-once per session: later
// sessions write new files, and filenames embed the session id plus a
// workspace hash so concurrently open workspaces never collide.
package summary

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dotcommander/postflight/internal/app"
	"github.com/dotcommander/postflight/internal/models"
)

// BuildInput carries everything the builder needs. All fields are plain
// values so Build stays a pure assembly step: callers degrade git, duration,
// and transcript fields to their defaults before calling.
type BuildInput struct {
	CorrelationID    string
	SessionID        string
	WorkspacePath    string
	RepositoryRoot   string
	WorkingDirectory string

	LastUserPrompt      string
	LastResponseExcerpt string

	DurationSeconds   int64
	Git               models.GitStatus
	Validation        models.ValidationResult
	ModifiedFileCount int
}

// Build assembles a SessionSummary. The available-actions menu comes from
// the static registry, keyed only on the validation error count and the
// session's modified-file count.
func Build(in BuildInput, now time.Time) models.SessionSummary {
	return models.SessionSummary{
		CorrelationID:       in.CorrelationID,
		WorkspacePath:       in.WorkspacePath,
		RepositoryRoot:      in.RepositoryRoot,
		WorkingDirectory:    in.WorkingDirectory,
		SessionID:           in.SessionID,
		LastUserPrompt:      in.LastUserPrompt,
		LastResponseExcerpt: in.LastResponseExcerpt,
		Timestamp:           now.UTC(),
		DurationSeconds:     in.DurationSeconds,
		GitStatus:           in.Git,
		Validation:          in.Validation,
		AvailableActions:    AvailableActions(in.Validation.ErrorCount, in.ModifiedFileCount),
	}
}

// FileName returns the workspace-scoped summary filename for a session.
func FileName(sessionID, workspaceHash string) string {
	return "summary_" + app.SanitizeSessionID(sessionID) + "_" + workspaceHash + ".json"
}

// Persist writes the summary into dir under its canonical filename and
// returns the final path. The write is atomic from a consumer's point of
// view: temp file in the same directory, then rename into place.
func Persist(dir string, s models.SessionSummary) (string, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", err
	}
	path := filepath.Join(dir, FileName(s.SessionID, app.WorkspaceHash(s.WorkspacePath)))
	if err := WriteFile(path, s); err != nil {
		return "", err
	}
	return path, nil
}

// WriteFile atomically writes a summary to an explicit path. Used by Persist
// and by the background scan when it rewrites the validation field of an
// already-persisted summary.
func WriteFile(path string, s models.SessionSummary) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".summary-*.tmp")
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
	return os.Rename(tmpName, path)
}

// ReadFile loads a persisted summary.
func ReadFile(path string) (models.SessionSummary, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: paths come from our own state dir
	if err != nil {
		return models.SessionSummary{}, err
	}
	var s models.SessionSummary
	if err := json.Unmarshal(data, &s); err != nil {
		return models.SessionSummary{}, err
	}
	return s, nil
}

// List returns summary file paths in dir, oldest first (mtime, then name).
// The worker dispatches in this order so earlier sessions notify first.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	type candidate struct {
		path    string
		modTime time.Time
	}
	var found []candidate
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "summary_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		found = append(found, candidate{path: filepath.Join(dir, name), modTime: info.ModTime()})
	}

	sort.Slice(found, func(i, j int) bool {
		if !found[i].modTime.Equal(found[j].modTime) {
			return found[i].modTime.Before(found[j].modTime)
		}
		return found[i].path < found[j].path
	})

	paths := make([]string, len(found))
	for i, c := range found {
		paths[i] = c.path
	}
	return paths, nil
}
