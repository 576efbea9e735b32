package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dotcommander/postflight/internal/models"
)

// IngestOffset returns the byte offset up to which the given JSONL stream has
// been ingested. A stream with no cursor row starts at zero.
func IngestOffset(db *sql.DB, source string) (int64, error) {
	var offset int64
	err := RetryWithBackoff(func() error {
		scanErr := db.QueryRow(`SELECT byte_offset FROM ingest_state WHERE source = ?`, source).Scan(&offset)
		if scanErr == sql.ErrNoRows {
			offset = 0
			return nil
		}
		return scanErr
	})
	if err != nil {
		return 0, fmt.Errorf("failed to read ingest offset for %s: %w", source, err)
	}
	return offset, nil
}

// InsertIngestedEvents appends records to the events table and advances the
// stream's cursor to newOffset in the same transaction. Crash between sweeps
// therefore re-reads, never half-ingests: either all records land with the
// new offset, or none do and the old offset stands.
func InsertIngestedEvents(db *sql.DB, source string, records []models.EventLogRecord, newOffset int64) (int, error) {
	inserted := 0
	err := Transact(db, func(tx *sql.Tx) error {
		inserted = 0
		for _, rec := range records {
			var payload any
			if len(rec.PayloadJSON) > 0 {
				payload = string(rec.PayloadJSON)
			}
			var sessionID any
			if rec.SessionID != "" {
				sessionID = rec.SessionID
			}
			if _, err := tx.Exec(`
				INSERT INTO events (correlation_id, workspace_hash, session_id, component, event_name, payload, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, rec.CorrelationID, rec.WorkspaceHash, sessionID, rec.Component, rec.EventName, payload, rec.Timestamp.UTC()); err != nil {
				return fmt.Errorf("insert event %s: %w", rec.EventName, err)
			}
			inserted++
		}

		if _, err := tx.Exec(`
			INSERT INTO ingest_state (source, byte_offset, updated_at)
			VALUES (?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(source) DO UPDATE SET byte_offset = excluded.byte_offset, updated_at = CURRENT_TIMESTAMP
		`, source, newOffset); err != nil {
			return fmt.Errorf("advance ingest offset: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// ListEventsParams filters the history query. Zero values mean "no filter".
type ListEventsParams struct {
	SessionID string
	Component string
	EventName string
	SinceID   int64
	Limit     int
	Desc      bool
}

// ListEvents returns ingested events matching the filters, ordered by id.
func ListEvents(db *sql.DB, p ListEventsParams) ([]*models.HistoryEvent, error) {
	if p.Limit <= 0 {
		p.Limit = 50
	}
	if p.Limit > 1000 {
		p.Limit = 1000
	}

	where := make([]string, 0, 4)
	args := make([]interface{}, 0, 6)

	if p.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, p.SessionID)
	}
	if p.Component != "" {
		where = append(where, "component = ?")
		args = append(args, p.Component)
	}
	if p.EventName != "" {
		where = append(where, "event_name = ?")
		args = append(args, p.EventName)
	}
	if p.SinceID > 0 {
		where = append(where, "id > ?")
		args = append(args, p.SinceID)
	}

	query := `
		SELECT id, correlation_id, workspace_hash, session_id, component, event_name, payload, created_at, ingested_at
		FROM events
	`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	if p.Desc {
		query += " ORDER BY id DESC"
	} else {
		query += " ORDER BY id ASC"
	}
	query += " LIMIT ?"
	args = append(args, p.Limit)

	var out []*models.HistoryEvent
	err := RetryWithBackoff(func() error {
		rows, err := db.Query(query, args...)
		if err != nil {
			return fmt.Errorf("failed to list events: %w", err)
		}
		defer func() { _ = rows.Close() }()

		out = make([]*models.HistoryEvent, 0)
		for rows.Next() {
			var e models.HistoryEvent
			var sessionID sql.NullString
			var payload sql.NullString
			if err := rows.Scan(&e.ID, &e.CorrelationID, &e.WorkspaceHash, &sessionID, &e.Component, &e.EventName, &payload, &e.CreatedAt, &e.IngestedAt); err != nil {
				return fmt.Errorf("failed to scan event: %w", err)
			}
			if sessionID.Valid {
				e.SessionID = sessionID.String
			}
			if payload.Valid && payload.String != "" {
				e.Payload = json.RawMessage(payload.String)
			}
			out = append(out, &e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CountEvents returns the total number of ingested events.
func CountEvents(db *sql.DB) (int, error) {
	var n int
	err := RetryWithBackoff(func() error {
		return db.QueryRow(`SELECT COUNT(*) FROM events`).Scan(&n)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}
