package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"flowdesk/internal/model"
)

// notifRow maps the payload TEXT column separately; the JSON round-trip
// happens here, not in the model.
type notifRow struct {
	model.Notification
	PayloadJSON sql.NullString `db:"payload"`
}

func (r notifRow) toModel() (model.Notification, error) {
	n := r.Notification
	if r.PayloadJSON.Valid && r.PayloadJSON.String != "" {
		if err := json.Unmarshal([]byte(r.PayloadJSON.String), &n.Payload); err != nil {
			return n, fmt.Errorf("decode payload for %s: %w", n.ID, err)
		}
	}
	return n, nil
}

func (s *SQLiteStore) CreateNotification(ctx context.Context, n *model.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if n.Priority == "" {
		n.Priority = model.PriorityMedium
	}

	var payload any
	if len(n.Payload) > 0 {
		b, err := json.Marshal(n.Payload)
		if err != nil {
			return fmt.Errorf("encode payload: %w", err)
		}
		payload = string(b)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications
		   (id, user_id, org_id, type, category, title, message, payload,
		    priority, is_read, read_at, scheduled_for, delivered_at,
		    in_app_delivered, email_delivered, push_delivered, email_error,
		    entity_type, entity_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.UserID, n.OrgID, n.Type, n.Category, n.Title, n.Message, payload,
		n.Priority, n.IsRead, n.ReadAt, n.ScheduledFor, n.DeliveredAt,
		n.InAppDelivered, n.EmailDelivered, n.PushDelivered, n.EmailError,
		n.EntityType, n.EntityID, n.CreatedAt,
	)
	return err
}

func (s *SQLiteStore) GetNotification(ctx context.Context, id string) (model.Notification, error) {
	var row notifRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM notifications WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Notification{}, ErrNotFound
	}
	if err != nil {
		return model.Notification{}, err
	}
	return row.toModel()
}

func (s *SQLiteStore) ListNotifications(ctx context.Context, userID string, opts ListOptions) ([]model.Notification, int, int, error) {
	where := []string{"user_id = ?"}
	args := []any{userID}
	if opts.UnreadOnly {
		where = append(where, "is_read = 0")
	}
	if opts.Category != "" {
		where = append(where, "category = ?")
		args = append(args, opts.Category)
	}
	if opts.Type != "" {
		where = append(where, "type = ?")
		args = append(args, opts.Type)
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := s.db.GetContext(ctx, &total,
		`SELECT COUNT(*) FROM notifications WHERE `+cond, args...); err != nil {
		return nil, 0, 0, err
	}
	var unread int
	if err := s.db.GetContext(ctx, &unread,
		`SELECT COUNT(*) FROM notifications WHERE user_id = ? AND is_read = 0`, userID); err != nil {
		return nil, 0, 0, err
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT * FROM notifications WHERE ` + cond + ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, opts.Offset)

	var rows []notifRow
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, 0, 0, err
	}
	out := make([]model.Notification, 0, len(rows))
	for _, r := range rows {
		n, err := r.toModel()
		if err != nil {
			return nil, 0, 0, err
		}
		out = append(out, n)
	}
	return out, total, unread, nil
}

// MarkRead only touches rows owned by userID; IDs belonging to other users
// are silently ignored.
func (s *SQLiteStore) MarkRead(ctx context.Context, userID string, ids []string, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	q, args, err := sqlx.In(
		`UPDATE notifications SET is_read = 1, read_at = ?
		 WHERE user_id = ? AND is_read = 0 AND id IN (?)`,
		at.UTC(), userID, ids,
	)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, s.db.Rebind(q), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) MarkAllRead(ctx context.Context, userID string, at time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1, read_at = ? WHERE user_id = ? AND is_read = 0`,
		at.UTC(), userID,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) RecordDelivery(ctx context.Context, id string, emailDelivered bool, emailErr string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications
		 SET in_app_delivered = 1, email_delivered = ?, email_error = ?, delivered_at = ?
		 WHERE id = ?`,
		emailDelivered, emailErr, at.UTC(), id,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteReadBefore removes notifications that are both read and older than
// the cutoff. Unread rows are kept regardless of age.
func (s *SQLiteStore) DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM notifications WHERE is_read = 1 AND created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
