package sessions

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRecordStartAndDuration(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "sessions"))
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.RecordStart("sess-abc", "/work", start))

	got := store.DurationSeconds("sess-abc", start.Add(95*time.Second))
	require.Equal(t, int64(95), got)
}

func TestDurationDefaultsToZero(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	now := time.Now()

	// Missing record.
	require.Equal(t, int64(0), store.DurationSeconds("never-started", now))

	// Corrupt record.
	require.NoError(t, os.WriteFile(store.StartPath("corrupt"), []byte("{nope"), 0o600))
	require.Equal(t, int64(0), store.DurationSeconds("corrupt", now))

	// Start timestamp in the future (clock skew).
	require.NoError(t, store.RecordStart("future", "", now.Add(time.Hour)))
	require.Equal(t, int64(0), store.DurationSeconds("future", now))
}

func TestRecordStartOverwritesAndLeavesNoTempFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "sessions")
	store := NewStore(dir)
	first := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	second := first.Add(30 * time.Minute)

	require.NoError(t, store.RecordStart("sess", "/a", first))
	require.NoError(t, store.RecordStart("sess", "/b", second))

	require.Equal(t, int64(60), store.DurationSeconds("sess", second.Add(time.Minute)))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "start_sess.json", entries[0].Name())
}

func TestStartPathSanitizesSessionID(t *testing.T) {
	store := NewStore("/state/sessions")

	require.Equal(t, "/state/sessions/start_a_b_c.json", store.StartPath("a/b/c"))
	require.Equal(t, "/state/sessions/start_session.json", store.StartPath(""))
	require.Equal(t, "/state/sessions/start_____.json", store.StartPath("../."))
}

func TestPruneRemovesOnlyOldRecords(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "sessions")
	store := NewStore(dir)
	now := time.Now()

	require.NoError(t, store.RecordStart("old", "", now.Add(-48*time.Hour)))
	require.NoError(t, store.RecordStart("fresh", "", now))
	old := store.StartPath("old")
	require.NoError(t, os.Chtimes(old, now.Add(-48*time.Hour), now.Add(-48*time.Hour)))

	// Unrelated files are left alone.
	stray := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(stray, []byte("keep"), 0o600))
	require.NoError(t, os.Chtimes(stray, now.Add(-48*time.Hour), now.Add(-48*time.Hour)))

	removed, err := store.Prune(24*time.Hour, now)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	_, err = os.Stat(old)
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(store.StartPath("fresh"))
	require.NoError(t, err)
	_, err = os.Stat(stray)
	require.NoError(t, err)
}

func TestPruneMissingDirIsNoop(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "does-not-exist"))
	removed, err := store.Prune(time.Hour, time.Now())
	require.NoError(t, err)
	require.Equal(t, 0, removed)
}
