package store

import (
	"fmt"

	"github.com/dotcommander/postflight/internal/models"
)

// RecoverableError is an alias for models.RecoverableError, retained so
// callers can reference store.RecoverableError without importing models.
type RecoverableError = models.RecoverableError

// DBOpenError carries structured context when the history database cannot
// be opened. History is an auxiliary concern, so callers typically degrade
// (ingest disabled) rather than fail the invocation.
type DBOpenError struct {
	Path string
	Err  error
}

func (e *DBOpenError) Error() string {
	return fmt.Sprintf("failed to open history database %s: %v", e.Path, e.Err)
}
func (e *DBOpenError) ErrorCode() string { return "DB_OPEN_FAILED" }
func (e *DBOpenError) Context() map[string]string {
	return map[string]string{"path": e.Path}
}
func (e *DBOpenError) SuggestedAction() string {
	return "check directory permissions, or point --db-path at a writable location"
}
func (e *DBOpenError) Unwrap() error { return e.Err }

// SlogAttrs surfaces the structured context in command error logs.
func (e *DBOpenError) SlogAttrs() []any {
	return []any{"path", e.Path, "error_code", e.ErrorCode()}
}
