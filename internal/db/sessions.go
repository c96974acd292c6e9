package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CaptureSession is one guidance attempt as journaled by the runner.
type CaptureSession struct {
	ID         string     `json:"id"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	Outcome    string     `json:"outcome,omitempty"`
	Reason     string     `json:"reason,omitempty"`
	OutputPath string     `json:"output_path,omitempty"`
	TurnAngle  float64    `json:"turn_angle"`
}

// Transition is one state change within a session.
type Transition struct {
	ID     int64     `json:"id"`
	From   string    `json:"from"`
	To     string    `json:"to"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

// RecordSessionStart inserts a session row. Starting an id twice is a no-op.
func (db *DB) RecordSessionStart(ctx context.Context, id string, at time.Time) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO capture_sessions (session_id, started_ns) VALUES (?, ?)
		 ON CONFLICT(session_id) DO NOTHING`,
		id, at.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to record session start: %w", err)
	}
	return nil
}

// RecordTransition appends a state change to a session.
func (db *DB) RecordTransition(ctx context.Context, id, from, to, reason string, at time.Time) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO state_transitions (session_id, from_state, to_state, reason, at_ns)
		 VALUES (?, ?, ?, ?, ?)`,
		id, from, to, reason, at.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to record transition %s -> %s: %w", from, to, err)
	}
	return nil
}

// RecordSessionEnd stores the outcome of a session. A session whose start
// was never journaled is created with its end time as the start.
func (db *DB) RecordSessionEnd(ctx context.Context, id, outcome, reason, outputPath string, turnAngle float64, at time.Time) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO capture_sessions (session_id, started_ns, ended_ns, outcome, reason, output_path, turn_angle)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
			ended_ns = excluded.ended_ns,
			outcome = excluded.outcome,
			reason = excluded.reason,
			output_path = excluded.output_path,
			turn_angle = excluded.turn_angle`,
		id, at.UnixNano(), at.UnixNano(), outcome, reason, outputPath, turnAngle)
	if err != nil {
		return fmt.Errorf("failed to record session end: %w", err)
	}
	return nil
}

const sessionColumns = `session_id, started_ns, ended_ns, outcome, reason, output_path, turn_angle`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (CaptureSession, error) {
	var (
		s         CaptureSession
		startedNs int64
		endedNs   sql.NullInt64
		outcome   sql.NullString
	)
	if err := row.Scan(&s.ID, &startedNs, &endedNs, &outcome, &s.Reason, &s.OutputPath, &s.TurnAngle); err != nil {
		return s, err
	}
	s.StartedAt = time.Unix(0, startedNs).UTC()
	if endedNs.Valid {
		t := time.Unix(0, endedNs.Int64).UTC()
		s.EndedAt = &t
	}
	s.Outcome = outcome.String
	return s, nil
}

// ListSessions returns the most recent sessions first. limit <= 0 returns
// all of them.
func (db *DB) ListSessions(ctx context.Context, limit int) ([]CaptureSession, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM capture_sessions ORDER BY started_ns DESC, session_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	sessions := []CaptureSession{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// GetSession returns one session, or ErrNotFound.
func (db *DB) GetSession(ctx context.Context, id string) (CaptureSession, error) {
	s, err := scanSession(db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM capture_sessions WHERE session_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return s, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return s, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// SessionTransitions returns a session's transitions in the order they
// were recorded.
func (db *DB) SessionTransitions(ctx context.Context, id string) ([]Transition, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT transition_id, from_state, to_state, reason, at_ns
		 FROM state_transitions WHERE session_id = ? ORDER BY transition_id`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list transitions: %w", err)
	}
	defer rows.Close()

	out := []Transition{}
	for rows.Next() {
		var (
			tr   Transition
			atNs int64
		)
		if err := rows.Scan(&tr.ID, &tr.From, &tr.To, &tr.Reason, &atNs); err != nil {
			return nil, fmt.Errorf("failed to scan transition: %w", err)
		}
		tr.At = time.Unix(0, atNs).UTC()
		out = append(out, tr)
	}
	return out, rows.Err()
}
