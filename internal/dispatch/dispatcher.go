// Package dispatch creates notifications and fans them out across delivery
// channels. Preference checks happen here: a disabled category is a silent
// no-op, and email failures never block in-app delivery.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"flowdesk/internal/eventbus"
	"flowdesk/internal/mailer"
	"flowdesk/internal/model"
	"flowdesk/internal/store"
	"flowdesk/pkg/logx"
)

const (
	EventCreated   = "notification.created"
	EventDelivered = "notification.delivered"
)

// Spec describes one notification to create. Title and message are derived
// from Type and Payload; callers never pass free-form content except through
// the system announcement type.
type Spec struct {
	UserID  string
	OrgID   string
	Type    model.NotificationType
	Payload map[string]any

	// Priority overrides the type's default when set.
	Priority model.Priority

	EntityType string
	EntityID   string

	// ScheduledFor defers delivery; it must be in the future.
	ScheduledFor *time.Time
}

type Dispatcher struct {
	store store.Store
	email mailer.Channel
	bus   eventbus.Bus
	log   logx.Logger

	now func() time.Time
}

func New(st store.Store, email mailer.Channel, bus eventbus.Bus, log logx.Logger) *Dispatcher {
	return &Dispatcher{
		store: st,
		email: email,
		bus:   bus,
		log:   log.With(logx.String("component", "dispatch")),
		now:   time.Now,
	}
}

// Create persists and (unless deferred) delivers one notification.
//
// Returns (nil, nil) when the recipient disabled the category in-app: a
// suppressed notification is not an error and leaves no record.
func (d *Dispatcher) Create(ctx context.Context, spec Spec) (*model.Notification, error) {
	if spec.UserID == "" {
		return nil, errors.New("dispatch: recipient is required")
	}
	def, title, message, err := buildContent(spec.Type, spec.Payload)
	if err != nil {
		return nil, err
	}

	prefs, err := d.store.GetPreferences(ctx, spec.UserID)
	if errors.Is(err, store.ErrNotFound) {
		prefs = model.DefaultPreferences(spec.UserID, spec.OrgID)
	} else if err != nil {
		return nil, fmt.Errorf("load preferences: %w", err)
	}
	if !prefs.Allows(def.Category, model.ChannelInApp) {
		d.log.Debug("notification suppressed by preference",
			logx.String("user", spec.UserID),
			logx.String("type", string(spec.Type)),
		)
		return nil, nil
	}

	now := d.now().UTC()
	if spec.ScheduledFor != nil && !spec.ScheduledFor.After(now) {
		return nil, fmt.Errorf("dispatch: scheduled_for %s is not in the future", spec.ScheduledFor)
	}

	priority := def.Priority
	if spec.Priority != "" {
		priority = spec.Priority
	}
	n := &model.Notification{
		UserID:       spec.UserID,
		OrgID:        spec.OrgID,
		Type:         spec.Type,
		Category:     def.Category,
		Title:        title,
		Message:      message,
		Payload:      spec.Payload,
		Priority:     priority,
		ScheduledFor: spec.ScheduledFor,
		EntityType:   spec.EntityType,
		EntityID:     spec.EntityID,
		CreatedAt:    now,
	}
	if err := d.store.CreateNotification(ctx, n); err != nil {
		return nil, fmt.Errorf("persist notification: %w", err)
	}
	d.bus.Publish(eventbus.Event{Type: EventCreated, Data: n.ID})

	if spec.ScheduledFor != nil {
		entry := &model.QueueEntry{
			NotificationID: n.ID,
			ScheduledFor:   spec.ScheduledFor.UTC(),
		}
		if err := d.store.EnqueueDelivery(ctx, entry); err != nil {
			return nil, fmt.Errorf("enqueue deferred delivery: %w", err)
		}
		return n, nil
	}

	// Immediate path: the notification exists regardless of how delivery
	// goes, so a failing email only gets logged here. The record keeps the
	// error for inspection.
	if err := d.Deliver(ctx, n); err != nil {
		d.log.Warn("delivery failed",
			logx.String("notification", n.ID),
			logx.Err(err),
		)
	}
	return n, nil
}

// CreateBulk creates the same notification for many recipients. One failing
// recipient never aborts the rest.
func (d *Dispatcher) CreateBulk(ctx context.Context, userIDs []string, spec Spec) (created, failed int) {
	for _, uid := range userIDs {
		s := spec
		s.UserID = uid
		n, err := d.Create(ctx, s)
		if err != nil {
			failed++
			d.log.Error("bulk create failed",
				logx.String("user", uid),
				logx.String("type", string(spec.Type)),
				logx.Err(err),
			)
			continue
		}
		if n != nil {
			created++
		}
	}
	return created, failed
}

// Deliver pushes an already-persisted notification out. In-app delivery is
// the row itself; email goes out when the user preference, the organization's
// report email policy, and a valid address all allow it. The returned error
// reflects the email leg only and is
// what the retry queue keys off.
func (d *Dispatcher) Deliver(ctx context.Context, n *model.Notification) error {
	now := d.now().UTC()

	emailWanted := false
	prefs, err := d.store.GetPreferences(ctx, n.UserID)
	if errors.Is(err, store.ErrNotFound) {
		prefs = model.DefaultPreferences(n.UserID, n.OrgID)
		err = nil
	}
	if err != nil {
		return fmt.Errorf("load preferences: %w", err)
	}
	emailWanted = prefs.Allows(n.Category, model.ChannelEmail)

	// The organization can switch report email off wholesale; the per-user
	// preference only narrows further.
	if emailWanted && n.Category == model.CategoryReport && n.OrgID != "" {
		rs, err := d.store.GetReportSettings(ctx, n.OrgID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("load report settings: %w", err)
		}
		if err == nil && !rs.EmailEnabled {
			emailWanted = false
		}
	}

	if !emailWanted {
		if err := d.store.RecordDelivery(ctx, n.ID, false, "", now); err != nil {
			return err
		}
		d.bus.Publish(eventbus.Event{Type: EventDelivered, Data: n.ID})
		return nil
	}

	u, err := d.store.GetUser(ctx, n.UserID)
	if err != nil {
		return fmt.Errorf("load recipient: %w", err)
	}
	_, sendErr := d.email.Send(ctx, u.Email, n.Title, n.Message)
	errText := ""
	if sendErr != nil {
		errText = sendErr.Error()
	}
	if err := d.store.RecordDelivery(ctx, n.ID, sendErr == nil, errText, now); err != nil {
		return err
	}
	d.bus.Publish(eventbus.Event{Type: EventDelivered, Data: n.ID})
	if sendErr != nil && !mailer.IsPermanent(sendErr) {
		return sendErr
	}
	if sendErr != nil {
		// Bad address: retrying cannot help, the record keeps the error.
		d.log.Warn("email permanently rejected",
			logx.String("notification", n.ID),
			logx.Err(sendErr),
		)
	}
	return nil
}

// List returns a page of the user's feed plus total and unread counts.
func (d *Dispatcher) List(ctx context.Context, userID string, opts store.ListOptions) ([]model.Notification, int, int, error) {
	return d.store.ListNotifications(ctx, userID, opts)
}

// MarkRead marks the given notifications read for userID. IDs the user does
// not own are ignored; the count of actually updated rows is returned.
func (d *Dispatcher) MarkRead(ctx context.Context, userID string, ids []string) (int64, error) {
	return d.store.MarkRead(ctx, userID, ids, d.now().UTC())
}

func (d *Dispatcher) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	return d.store.MarkAllRead(ctx, userID, d.now().UTC())
}

// CleanupOld deletes notifications that are read and older than the
// retention window. Unread notifications are never removed.
func (d *Dispatcher) CleanupOld(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := d.now().UTC().Add(-retention)
	return d.store.DeleteReadBefore(ctx, cutoff)
}
