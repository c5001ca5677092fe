package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"flowdesk/internal/model"
)

func (s *SQLiteStore) EnqueueDelivery(ctx context.Context, e *model.QueueEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.JobType == "" {
		e.JobType = "deliver"
	}
	if e.Status == "" {
		e.Status = model.QueuePending
	}
	if e.MaxAttempts <= 0 {
		e.MaxAttempts = 3
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notification_queue
		   (id, notification_id, job_type, scheduled_for, status, attempts,
		    max_attempts, last_attempt_at, next_attempt_at, processed_at,
		    last_error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.NotificationID, e.JobType, e.ScheduledFor.UTC(), e.Status,
		e.Attempts, e.MaxAttempts, e.LastAttemptAt, e.NextAttemptAt,
		e.ProcessedAt, e.LastError, e.CreatedAt,
	)
	return err
}

// DuePendingEntries returns pending entries whose scheduled or retry time
// has arrived, oldest first.
func (s *SQLiteStore) DuePendingEntries(ctx context.Context, now time.Time, limit int) ([]model.QueueEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []model.QueueEntry
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM notification_queue
		 WHERE status = 'pending'
		   AND scheduled_for <= ?
		   AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
		 ORDER BY scheduled_for ASC
		 LIMIT ?`,
		now.UTC(), now.UTC(), limit,
	)
	return out, err
}

func (s *SQLiteStore) ClaimEntry(ctx context.Context, id string, at time.Time) (int, bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, false, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE notification_queue
		 SET status = 'processing', attempts = attempts + 1, last_attempt_at = ?
		 WHERE id = ? AND status = 'pending'`,
		at.UTC(), id,
	)
	if err != nil {
		return 0, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, false, err
	}
	if n == 0 {
		return 0, false, nil
	}

	var attempts int
	if err := tx.GetContext(ctx, &attempts,
		`SELECT attempts FROM notification_queue WHERE id = ?`, id); err != nil {
		return 0, false, err
	}
	if err := tx.Commit(); err != nil {
		return 0, false, err
	}
	return attempts, true, nil
}

func (s *SQLiteStore) CompleteEntry(ctx context.Context, id string, at time.Time) error {
	return s.finishEntry(ctx, id, "completed",
		`UPDATE notification_queue
		 SET status = 'completed', processed_at = ?, last_error = ''
		 WHERE id = ? AND status = 'processing'`,
		at.UTC(), id)
}

// RescheduleEntry puts a processing entry back to pending with a future
// retry time. Attempts are untouched; ClaimEntry already counted this one.
func (s *SQLiteStore) RescheduleEntry(ctx context.Context, id string, nextAt time.Time, lastErr string) error {
	return s.finishEntry(ctx, id, "rescheduled",
		`UPDATE notification_queue
		 SET status = 'pending', next_attempt_at = ?, last_error = ?
		 WHERE id = ? AND status = 'processing'`,
		nextAt.UTC(), lastErr, id)
}

// RequeueStaleProcessing flips processing entries claimed before cutoff back
// to pending. A crash between ClaimEntry and the finishing transition leaves
// the row in processing forever otherwise; the attempt ClaimEntry counted is
// kept, so the max-attempts budget still holds across restarts.
func (s *SQLiteStore) RequeueStaleProcessing(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notification_queue
		 SET status = 'pending', last_error = 'delivery interrupted'
		 WHERE status = 'processing'
		   AND (last_attempt_at IS NULL OR last_attempt_at <= ?)`,
		cutoff.UTC(),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) FailEntry(ctx context.Context, id string, lastErr string) error {
	return s.finishEntry(ctx, id, "failed",
		`UPDATE notification_queue
		 SET status = 'failed', processed_at = ?, last_error = ?
		 WHERE id = ? AND status = 'processing'`,
		time.Now().UTC(), lastErr, id)
}

func (s *SQLiteStore) finishEntry(ctx context.Context, id, verb, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.Join(ErrNotFound, errors.New("queue entry "+id+" not processing, cannot be "+verb))
	}
	return nil
}

// GetQueueEntry is used by tests and the admin status endpoint.
func (s *SQLiteStore) GetQueueEntry(ctx context.Context, id string) (model.QueueEntry, error) {
	var e model.QueueEntry
	err := s.db.GetContext(ctx, &e, `SELECT * FROM notification_queue WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.QueueEntry{}, ErrNotFound
	}
	return e, err
}

// QueueDepth counts pending entries, for the status endpoint.
func (s *SQLiteStore) QueueDepth(ctx context.Context) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM notification_queue WHERE status = 'pending'`)
	return n, err
}
