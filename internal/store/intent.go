package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rcliao/meeting-rag/internal/model"
)

// Intents is the write-ahead log of cross-store meeting operations.
type Intents interface {
	// BeginIntent records a pending operation and returns it with its ULID.
	BeginIntent(ctx context.Context, op, meetingID, payload string) (*model.Intent, error)
	// FinishIntent moves an intent to done or failed.
	FinishIntent(ctx context.Context, id, status, detail string) error
	// PendingIntents returns unfinished intents, oldest first.
	PendingIntents(ctx context.Context) ([]model.Intent, error)
}

func (s *SQLStore) BeginIntent(ctx context.Context, op, meetingID, payload string) (*model.Intent, error) {
	in := &model.Intent{
		ID:        s.newID(),
		Op:        op,
		MeetingID: meetingID,
		Payload:   payload,
		Status:    model.IntentPending,
	}
	created := nowString()
	if _, err := s.exec(ctx, `INSERT INTO meeting_intents (id, op, meeting_id, payload, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`, in.ID, op, meetingID, payload, in.Status, created); err != nil {
		return nil, fmt.Errorf("begin intent: %w", err)
	}
	in.CreatedAt = parseTime(created)
	return in, nil
}

func (s *SQLStore) FinishIntent(ctx context.Context, id, status, detail string) error {
	if status != model.IntentDone && status != model.IntentFailed {
		return fmt.Errorf("invalid intent status %q (valid: done, failed)", status)
	}
	res, err := s.exec(ctx, `UPDATE meeting_intents SET status = ?, detail = ?, updated_at = ? WHERE id = ?`,
		status, detail, nowString(), id)
	if err != nil {
		return fmt.Errorf("finish intent: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("intent %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLStore) PendingIntents(ctx context.Context) ([]model.Intent, error) {
	rows, err := s.query(ctx, `SELECT id, op, meeting_id, payload, status, detail, created_at, updated_at
		FROM meeting_intents WHERE status = ? ORDER BY id`, model.IntentPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	intents := []model.Intent{}
	for rows.Next() {
		var in model.Intent
		var created string
		var updated sql.NullString
		if err := rows.Scan(&in.ID, &in.Op, &in.MeetingID, &in.Payload, &in.Status, &in.Detail, &created, &updated); err != nil {
			return nil, err
		}
		in.CreatedAt = parseTime(created)
		if updated.Valid {
			t := parseTime(updated.String)
			in.UpdatedAt = &t
		}
		intents = append(intents, in)
	}
	if err := rows.Err(); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return intents, nil
}
