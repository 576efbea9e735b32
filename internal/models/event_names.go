package models

// Lifecycle event names written to the event stream by the orchestrator.
// Dotted <component>.<transition> form; analytics tooling matches on these.
const (
	EventSessionStarted = "session.started"

	EventHookStarted               = "hook.started"
	EventHookCompleted             = "hook.completed"
	EventHookSkippedLoopPrevention = "hook.skipped_loop_prevention"

	EventValidationTier1Started  = "validation.tier1_started"
	EventValidationTier1Complete = "validation.tier1_complete"
	EventValidationTier2Blocked  = "validation.tier2_blocked"
	EventValidationTier2Clear    = "validation.tier2_clear"

	EventSummaryWritten = "summary.written"

	EventWorkerEnsured = "worker.ensured"
	EventWorkerStarted = "worker.started"
	EventWorkerStopped = "worker.stopped"

	EventNotifyDispatched = "notify.dispatched"
	EventNotifyFailed     = "notify.failed"

	// EventWarning covers self-healing paths (stale marker, stale lock).
	// Never escalated to the user; recorded for audit only.
	EventWarning = "warning"
)

// Component labels for EventLogRecord.Component.
const (
	ComponentHook       = "hook"
	ComponentGuard      = "guard"
	ComponentValidation = "validation"
	ComponentSummary    = "summary"
	ComponentSupervisor = "supervisor"
	ComponentWorker     = "worker"
	ComponentSession    = "session"
)
