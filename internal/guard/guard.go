// Package guard decides whether a stop-hook invocation must short-circuit
// to avoid re-triggering itself.
package guard

import (
	"errors"
	"log/slog"
	"time"

	"github.com/dotcommander/postflight/internal/evlog"
	"github.com/dotcommander/postflight/internal/models"
	"github.com/dotcommander/postflight/internal/statestore"
)

// MarkerName is the autofix-in-progress marker entry in the state store.
// Presence + mtime is the whole contract; the contents are advisory.
const MarkerName = "autofix-in-progress.json"

// Guard evaluates loop-prevention state for one hook invocation.
type Guard struct {
	store  statestore.Store
	window time.Duration
	events *evlog.Logger

	now func() time.Time
}

// New returns a Guard using the given staleness window for the marker.
func New(store statestore.Store, window time.Duration, events *evlog.Logger) *Guard {
	return &Guard{
		store:  store,
		window: window,
		events: events,
		now:    time.Now,
	}
}

// Evaluate returns the loop-prevention verdict. The host sets stopHookActive
// when re-invoking the hook after a blocking response; that case must always
// pass the stop through, or the hook would re-trigger forever.
//
// The decision itself is at most one read and one delete of the marker; it
// stays well inside the host's hook timeout budget.
func (g *Guard) Evaluate(stopHookActive bool) models.GuardDecision {
	if stopHookActive {
		return models.GuardDecision{ShortCircuit: true, Reason: models.ReasonLoopPreventionActiveFlag}
	}

	_, modTime, err := g.store.Read(MarkerName)
	if err != nil {
		if !errors.Is(err, statestore.ErrNotFound) {
			// Unreadable marker state degrades to "proceed": the pipeline
			// still ends in an allow, so nothing can wedge the host.
			slog.Warn("autofix marker unreadable", "error", err.Error())
		}
		return models.GuardDecision{}
	}

	age := g.now().Sub(modTime)
	if age < g.window {
		return models.GuardDecision{ShortCircuit: true, Reason: models.ReasonAutofixInProgress}
	}

	// Stale marker: the remediation workflow died without cleaning up.
	// Self-heal and continue.
	if err := g.store.Clear(MarkerName); err != nil {
		slog.Warn("stale autofix marker not removable", "error", err.Error())
	}
	slog.Warn("stale autofix marker removed", "age_seconds", int64(age.Seconds()))
	g.events.Warn(models.ComponentGuard, "stale autofix marker removed", map[string]any{
		"age_seconds": int64(age.Seconds()),
	})
	return models.GuardDecision{}
}
