// Package evlog appends lifecycle events to the JSONL event stream.
// Write-only leaf: a failed append degrades to a diagnostic log line and
// never propagates an error into the hook flow.
package evlog

import (
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dotcommander/postflight/internal/models"
)

// Logger carries the per-invocation identity so call sites only supply the
// component, event name, and payload.
type Logger struct {
	path          string
	correlationID string
	workspaceHash string
	sessionID     string

	mu sync.Mutex
}

// New returns a Logger writing to the given event log path.
func New(path, correlationID, workspaceHash, sessionID string) *Logger {
	return &Logger{
		path:          path,
		correlationID: correlationID,
		workspaceHash: workspaceHash,
		sessionID:     sessionID,
	}
}

// Emit appends one event record. payload may be nil or any JSON-marshalable
// value. Append failures are logged and swallowed: the event stream is an
// audit artifact, never a gate.
func (l *Logger) Emit(component, eventName string, payload any) {
	if l == nil {
		return
	}

	rec := models.EventLogRecord{
		CorrelationID: l.correlationID,
		WorkspaceHash: l.workspaceHash,
		SessionID:     l.sessionID,
		Component:     component,
		EventName:     eventName,
		Timestamp:     time.Now().UTC(),
	}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			slog.Warn("event payload not marshalable", "event", eventName, "error", err.Error())
		} else {
			rec.PayloadJSON = b
		}
	}

	line, err := json.Marshal(rec)
	if err != nil {
		slog.Warn("event record not marshalable", "event", eventName, "error", err.Error())
		return
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640)
	if err != nil {
		slog.Warn("event log open failed", "path", l.path, "error", err.Error())
		return
	}
	defer func() { _ = f.Close() }()

	// One Write call per record keeps lines whole under concurrent appenders
	// (O_APPEND writes are atomic for small buffers on local filesystems).
	if _, err := f.Write(line); err != nil {
		slog.Warn("event log append failed", "path", l.path, "error", err.Error())
	}
}

// Warn records a self-healing anomaly (stale marker, stale lock) as a
// warning event. Never escalated to the user.
func (l *Logger) Warn(component, message string, fields map[string]any) {
	payload := map[string]any{"message": message}
	for k, v := range fields {
		payload[k] = v
	}
	l.Emit(component, models.EventWarning, payload)
}

// ParseRecord decodes one JSONL line back into an EventLogRecord.
// Used by the worker when ingesting the stream into the history DB.
func ParseRecord(line []byte) (models.EventLogRecord, error) {
	var rec models.EventLogRecord
	if err := json.Unmarshal(line, &rec); err != nil {
		return models.EventLogRecord{}, err
	}
	return rec, nil
}
