package store

import (
	"context"
	"errors"
	"time"

	"flowdesk/internal/model"
)

var ErrNotFound = errors.New("not found")

// ListOptions filters and paginates a user's notification feed.
type ListOptions struct {
	UnreadOnly bool
	Category   model.Category
	Type       model.NotificationType
	Limit      int
	Offset     int
}

// Store is the persistence API consumed by the dispatcher, the retry queue
// processor, and the reminder engine. The CRUD side of the product owns the
// domain tables (tasks, meetings, users, ...); this interface exposes only
// the reads the notification core needs, plus the submission Overdue
// transition, which the reminder engine is the sole writer of.
type Store interface {
	// Notifications.
	CreateNotification(ctx context.Context, n *model.Notification) error
	GetNotification(ctx context.Context, id string) (model.Notification, error)
	ListNotifications(ctx context.Context, userID string, opts ListOptions) (page []model.Notification, total, unread int, err error)
	MarkRead(ctx context.Context, userID string, ids []string, at time.Time) (int64, error)
	MarkAllRead(ctx context.Context, userID string, at time.Time) (int64, error)
	RecordDelivery(ctx context.Context, id string, emailDelivered bool, emailErr string, at time.Time) error
	DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// ClaimDedup atomically claims the de-duplication key until the given
	// instant. It reports false when the key is still held, in which case
	// the caller must suppress its notification. Two concurrent claims for
	// the same key cannot both succeed.
	ClaimDedup(ctx context.Context, key string, until time.Time) (bool, error)
	// ReleaseDedup gives a claimed key back, so a reminder whose creation
	// failed can be retried before the window expires.
	ReleaseDedup(ctx context.Context, key string) error

	// Delivery queue.
	EnqueueDelivery(ctx context.Context, e *model.QueueEntry) error
	DuePendingEntries(ctx context.Context, now time.Time, limit int) ([]model.QueueEntry, error)
	// ClaimEntry transitions a pending entry to processing and increments
	// attempts. ok is false when the entry was not pending (already claimed
	// by a concurrent tick, completed, or failed).
	ClaimEntry(ctx context.Context, id string, at time.Time) (attempts int, ok bool, err error)
	CompleteEntry(ctx context.Context, id string, at time.Time) error
	RescheduleEntry(ctx context.Context, id string, nextAt time.Time, lastErr string) error
	FailEntry(ctx context.Context, id string, lastErr string) error
	// RequeueStaleProcessing returns processing entries whose claim is
	// older than cutoff to pending. Such entries belong to a run that died
	// mid-delivery; attempts stay as counted.
	RequeueStaleProcessing(ctx context.Context, cutoff time.Time) (int64, error)
	QueueDepth(ctx context.Context) (int, error)

	// Preferences and per-org policy.
	GetPreferences(ctx context.Context, userID string) (model.Preferences, error)
	UpsertPreferences(ctx context.Context, p model.Preferences) error
	// GetReportSettings creates the default row lazily on first access.
	GetReportSettings(ctx context.Context, orgID string) (model.ReportSettings, error)
	UpdateReportSettings(ctx context.Context, s model.ReportSettings) error

	// Domain reads.
	ListOrganizations(ctx context.Context) ([]model.Organization, error)
	GetUser(ctx context.Context, id string) (model.User, error)
	ListActiveUsers(ctx context.Context, orgID string) ([]model.User, error)
	ListUsersByRole(ctx context.Context, orgID string, roles ...model.Role) ([]model.User, error)
	TasksDueBetween(ctx context.Context, from, to time.Time) ([]model.Task, error)
	TasksOverdue(ctx context.Context, asOf time.Time) ([]model.Task, error)
	MeetingsStartingBetween(ctx context.Context, from, to time.Time) ([]model.Meeting, error)

	// Weekly submissions, keyed by the Monday 00:00 week anchor.
	GetSubmission(ctx context.Context, kind model.SubmissionKind, userID string, weekStart time.Time) (model.Submission, error)
	// MarkSubmissionOverdue reports whether a row actually transitioned;
	// already-overdue and submitted rows are left alone.
	MarkSubmissionOverdue(ctx context.Context, kind model.SubmissionKind, userID string, weekStart time.Time) (bool, error)
	CountSubmitted(ctx context.Context, kind model.SubmissionKind, orgID string, weekStart time.Time) (int, error)

	Close() error
}
