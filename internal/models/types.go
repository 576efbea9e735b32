package models

import (
	"encoding/json"
	"time"
)

// ID Strategy:
// - History events use int64 (monotonic ordering, auto-increment in SQLite)
// - Sessions, summaries, and correlation ids use strings minted by the host
//   or by uuid (collision-free across concurrently open workspaces)
//
// Append-only streams benefit from sequential IDs; artifacts that several
// workspaces may write into one shared state dir need the string forms.

// GuardDecision is the loop-prevention verdict for one hook invocation.
type GuardDecision struct {
	ShortCircuit bool   `json:"short_circuit"`
	Reason       string `json:"reason,omitempty"`
}

// Guard short-circuit reasons.
const (
	ReasonLoopPreventionActiveFlag = "loop_prevention_active_flag"
	ReasonAutofixInProgress        = "autofix_in_progress"
)

// Allowed returns true if the session stop may proceed through the pipeline.
func (d GuardDecision) Allowed() bool {
	return !d.ShortCircuit
}

// ValidationResult is the parsed outcome of one validator invocation.
// Produced fresh per run and never mutated afterwards.
type ValidationResult struct {
	Ran                bool           `json:"ran"`
	ErrorCount         int            `json:"error_count"`
	PerFileErrorCounts map[string]int `json:"per_file_error_counts,omitempty"`
	RawReportRef       string         `json:"raw_report_ref,omitempty"`
}

// HasErrors returns true if the validator ran and reported at least one error.
func (v ValidationResult) HasErrors() bool {
	return v.Ran && v.ErrorCount > 0
}

// GitStatus is a snapshot of the workspace repository at session stop.
// Fields degrade individually to "unknown"/0 when git introspection fails.
type GitStatus struct {
	Branch         string   `json:"branch"`
	ModifiedCount  int      `json:"modified_count"`
	UntrackedCount int      `json:"untracked_count"`
	StagedCount    int      `json:"staged_count"`
	Ahead          int      `json:"ahead"`
	Behind         int      `json:"behind"`
	PorcelainLines []string `json:"porcelain_lines,omitempty"`
}

// UnknownBranch is the sentinel for branch/root fields when git fails.
const UnknownBranch = "unknown"

// ActionDescriptor names a follow-up workflow offered in a session summary.
type ActionDescriptor struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Command     string `json:"command,omitempty"`
}

// SessionSummary is the durable per-session artifact consumed by the
// notification worker. Write-once: later sessions write new files.
type SessionSummary struct {
	CorrelationID       string             `json:"correlation_id"`
	WorkspacePath       string             `json:"workspace_path"`
	RepositoryRoot      string             `json:"repository_root"`
	WorkingDirectory    string             `json:"working_directory"`
	SessionID           string             `json:"session_id"`
	LastUserPrompt      string             `json:"last_user_prompt,omitempty"`
	LastResponseExcerpt string             `json:"last_response_excerpt,omitempty"`
	Timestamp           time.Time          `json:"timestamp"`
	DurationSeconds     int64              `json:"duration_seconds"`
	GitStatus           GitStatus          `json:"git_status"`
	Validation          ValidationResult   `json:"validation"`
	AvailableActions    []ActionDescriptor `json:"available_actions"`
}

// EventLogRecord is one line of the append-only lifecycle event stream.
// Never mutated or deleted by this system; rotation is an external concern.
type EventLogRecord struct {
	CorrelationID string          `json:"correlation_id"`
	WorkspaceHash string          `json:"workspace_hash"`
	SessionID     string          `json:"session_id,omitempty"`
	Component     string          `json:"component"`
	EventName     string          `json:"event_name"`
	PayloadJSON   json.RawMessage `json:"payload_json,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}

// HistoryEvent is an EventLogRecord after ingestion into the history DB.
type HistoryEvent struct {
	ID            int64           `json:"id"`
	CorrelationID string          `json:"correlation_id"`
	WorkspaceHash string          `json:"workspace_hash"`
	SessionID     string          `json:"session_id,omitempty"`
	Component     string          `json:"component"`
	EventName     string          `json:"event_name"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	IngestedAt    time.Time       `json:"ingested_at"`
}

// EnsureResult reports what EnsureRunning did.
type EnsureResult struct {
	Started bool `json:"started"`
	PID     int  `json:"pid,omitempty"`
}

// WorkerStatus is the read-only supervisor view of the worker process.
// Uptime comes from the process start time, not the lock file mtime.
type WorkerStatus struct {
	Running       bool  `json:"running"`
	PID           int   `json:"pid,omitempty"`
	UptimeSeconds int64 `json:"uptime_seconds,omitempty"`
}

// Notification is one row of the worker's dispatch ledger.
type Notification struct {
	ID           int64     `json:"id"`
	SessionID    string    `json:"session_id"`
	SummaryPath  string    `json:"summary_path"`
	OK           bool      `json:"ok"`
	Error        string    `json:"error,omitempty"`
	DispatchedAt time.Time `json:"dispatched_at"`
}

// Host hook protocol constants. Veto is communicated through the response
// body, never the exit code.
const (
	HookDecisionBlock = "block"

	HookEventStop         = "Stop"
	HookEventSessionStart = "SessionStart"
)
