package guard

import (
	"bufio"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dotcommander/postflight/internal/evlog"
	"github.com/dotcommander/postflight/internal/models"
	"github.com/dotcommander/postflight/internal/statestore"
)

func newTestGuard(t *testing.T) (*Guard, statestore.Store, string) {
	t.Helper()
	dir := t.TempDir()
	store := statestore.NewFileStore(dir)
	eventsPath := filepath.Join(dir, "events.jsonl")
	g := New(store, 600*time.Second, evlog.New(eventsPath, "corr", "hash", "sess"))
	return g, store, eventsPath
}

func TestEvaluate_ActiveFlagAlwaysShortCircuits(t *testing.T) {
	g, store, _ := newTestGuard(t)

	// Even with a fresh marker present, the host flag wins unconditionally.
	require.NoError(t, store.Write(MarkerName, "{}"))

	d := g.Evaluate(true)
	require.True(t, d.ShortCircuit)
	require.Equal(t, models.ReasonLoopPreventionActiveFlag, d.Reason)
}

func TestEvaluate_NoMarkerProceeds(t *testing.T) {
	g, _, _ := newTestGuard(t)

	d := g.Evaluate(false)
	require.False(t, d.ShortCircuit)
	require.True(t, d.Allowed())
	require.Empty(t, d.Reason)
}

func TestEvaluate_FreshMarkerShortCircuits(t *testing.T) {
	g, store, _ := newTestGuard(t)
	require.NoError(t, store.Write(MarkerName, "{}"))

	d := g.Evaluate(false)
	require.True(t, d.ShortCircuit)
	require.Equal(t, models.ReasonAutofixInProgress, d.Reason)

	// Marker untouched: the remediation workflow still owns it.
	_, _, err := store.Read(MarkerName)
	require.NoError(t, err)
}

func TestEvaluate_StalenessBoundaryIsStrict(t *testing.T) {
	g, store, _ := newTestGuard(t)
	require.NoError(t, store.Write(MarkerName, "{}"))

	_, mod, err := store.Read(MarkerName)
	require.NoError(t, err)

	// Exactly at the window: not strictly less than, so the marker is stale.
	g.now = func() time.Time { return mod.Add(600 * time.Second) }
	d := g.Evaluate(false)
	require.False(t, d.ShortCircuit)

	// One tick inside the window keeps the short-circuit.
	require.NoError(t, store.Write(MarkerName, "{}"))
	_, mod, err = store.Read(MarkerName)
	require.NoError(t, err)
	g.now = func() time.Time { return mod.Add(600*time.Second - time.Millisecond) }
	d = g.Evaluate(false)
	require.True(t, d.ShortCircuit)
	require.Equal(t, models.ReasonAutofixInProgress, d.Reason)
}

func TestEvaluate_StaleMarkerDeletedAndWarned(t *testing.T) {
	g, store, eventsPath := newTestGuard(t)
	require.NoError(t, store.Write(MarkerName, "{}"))

	_, mod, err := store.Read(MarkerName)
	require.NoError(t, err)
	g.now = func() time.Time { return mod.Add(700 * time.Second) }

	d := g.Evaluate(false)
	require.False(t, d.ShortCircuit)

	// Marker is gone.
	_, _, err = store.Read(MarkerName)
	require.ErrorIs(t, err, statestore.ErrNotFound)

	// A warning event was recorded; no skip event.
	f, err := os.Open(eventsPath)
	require.NoError(t, err)
	defer f.Close()

	var names []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		rec, err := evlog.ParseRecord(scanner.Bytes())
		require.NoError(t, err)
		names = append(names, rec.EventName)
	}
	require.NoError(t, scanner.Err())
	require.Contains(t, names, models.EventWarning)
	require.NotContains(t, names, models.EventHookSkippedLoopPrevention)
}
