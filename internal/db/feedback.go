package db

import (
	"context"
	"fmt"
	"time"
)

// Feedback is a scored analysis of a completed capture session.
type Feedback struct {
	ID                int64     `json:"id"`
	SessionID         string    `json:"session_id"`
	Score             float64   `json:"score"`
	Velocity          string    `json:"velocity,omitempty"`
	Power             string    `json:"power,omitempty"`
	KnockoutPotential string    `json:"knockout_potential,omitempty"`
	Completed         bool      `json:"completed"`
	CreatedAt         time.Time `json:"created_at"`
}

// RecordFeedback stores f and sets its ID. The session must exist.
func (db *DB) RecordFeedback(ctx context.Context, f *Feedback) error {
	if f.Score < 0 || f.Score > 100 {
		return fmt.Errorf("score %.1f out of range [0, 100]", f.Score)
	}
	if _, err := db.GetSession(ctx, f.SessionID); err != nil {
		return err
	}
	completed := 0
	if f.Completed {
		completed = 1
	}
	result, err := db.ExecContext(ctx,
		`INSERT INTO feedback (session_id, score, velocity, power, knockout_potential, completed, created_ns)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.SessionID, f.Score, f.Velocity, f.Power, f.KnockoutPotential, completed, f.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to record feedback: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}
	f.ID = id
	return nil
}

// ListFeedback returns feedback newest first. limit <= 0 returns all.
func (db *DB) ListFeedback(ctx context.Context, limit int) ([]Feedback, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.QueryContext(ctx,
		`SELECT feedback_id, session_id, score, velocity, power, knockout_potential, completed, created_ns
		 FROM feedback ORDER BY created_ns DESC, feedback_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list feedback: %w", err)
	}
	defer rows.Close()

	out := []Feedback{}
	for rows.Next() {
		var (
			f         Feedback
			completed int
			createdNs int64
		)
		if err := rows.Scan(&f.ID, &f.SessionID, &f.Score, &f.Velocity, &f.Power, &f.KnockoutPotential, &completed, &createdNs); err != nil {
			return nil, fmt.Errorf("failed to scan feedback: %w", err)
		}
		f.Completed = completed != 0
		f.CreatedAt = time.Unix(0, createdNs).UTC()
		out = append(out, f)
	}
	return out, rows.Err()
}
