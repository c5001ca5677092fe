package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"flowdesk/internal/dispatch"
	"flowdesk/internal/model"
	"flowdesk/internal/store"
	"flowdesk/pkg/logx"
)

// Notifier is the slice of the dispatcher the engine needs.
type Notifier interface {
	Create(ctx context.Context, spec dispatch.Spec) (*model.Notification, error)
	CreateBulk(ctx context.Context, userIDs []string, spec dispatch.Spec) (created, failed int)
}

type Options struct {
	// DedupWindow is how long a claimed reminder key suppresses repeats.
	DedupWindow time.Duration
	// ComplianceThreshold is the minimum acceptable submission rate in
	// percent.
	ComplianceThreshold float64
	// Location anchors weeks and due instants. Defaults to time.Local.
	Location *time.Location
}

// Engine drives the weekly plan/report reminder cycle, the overdue sweep,
// the compliance alert, and the task and meeting reminder scans.
type Engine struct {
	store    store.Store
	notifier Notifier
	opts     Options
	log      logx.Logger

	now func() time.Time
}

func New(st store.Store, n Notifier, opts Options, log logx.Logger) *Engine {
	if opts.DedupWindow <= 0 {
		opts.DedupWindow = 24 * time.Hour
	}
	if opts.ComplianceThreshold <= 0 {
		opts.ComplianceThreshold = 80
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Engine{
		store:    st,
		notifier: n,
		opts:     opts,
		log:      log.With(logx.String("component", "reminder")),
		now:      time.Now,
	}
}

func dueType(kind model.SubmissionKind) model.NotificationType {
	if kind == model.KindPlan {
		return model.TypeWeeklyPlanDue
	}
	return model.TypeWeeklyReportDue
}

func overdueType(kind model.SubmissionKind) model.NotificationType {
	if kind == model.KindPlan {
		return model.TypeWeeklyPlanOverdue
	}
	return model.TypeWeeklyReportOverdue
}

// dedupKey suppresses repeats per user and submission kind rather than per
// notification type: within one window a user gets either the Due or the
// Overdue reminder for a kind, never both.
func dedupKey(userID string, kind model.SubmissionKind) string {
	return userID + "|submission:" + string(kind)
}

// ScanDue runs one reminder pass for a submission kind. It only acts on an
// organization's configured reminder weekdays; the de-duplication claim
// keeps a second run on the same day silent.
func (e *Engine) ScanDue(ctx context.Context, kind model.SubmissionKind) error {
	now := e.now().In(e.opts.Location)
	orgs, err := e.store.ListOrganizations(ctx)
	if err != nil {
		return fmt.Errorf("list organizations: %w", err)
	}

	for _, org := range orgs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.scanOrgDue(ctx, org, kind, now); err != nil {
			e.log.Error("reminder scan failed for organization",
				logx.String("org", org.ID),
				logx.String("kind", string(kind)),
				logx.Err(err),
			)
		}
	}
	return nil
}

func (e *Engine) scanOrgDue(ctx context.Context, org model.Organization, kind model.SubmissionKind, now time.Time) error {
	settings, err := e.store.GetReportSettings(ctx, org.ID)
	if err != nil {
		return err
	}
	if !settings.Enforced || !settings.InAppEnabled {
		return nil
	}
	if !isReminderDay(now, settings.ReminderDays(kind)) {
		return nil
	}

	weekStart := WeekStart(now)
	due, err := DueInstant(weekStart, settings.DueDay(kind), settings.DueTime(kind))
	if err != nil {
		return fmt.Errorf("resolve due instant: %w", err)
	}
	// The grace window delays the Overdue transition here the same way it
	// does in the sweep: one deadline, two consumers.
	deadline := due
	if settings.GraceHours > 0 {
		deadline = deadline.Add(time.Duration(settings.GraceHours) * time.Hour)
	}
	class := Classify(now, deadline)
	if class == ClassNone {
		return nil
	}

	users, err := e.store.ListActiveUsers(ctx, org.ID)
	if err != nil {
		return err
	}

	var sent int
	for _, u := range users {
		notified, err := e.remindUser(ctx, u, kind, class, weekStart, due)
		if err != nil {
			e.log.Error("reminder failed",
				logx.String("user", u.ID),
				logx.String("kind", string(kind)),
				logx.Err(err),
			)
			continue
		}
		if notified {
			sent++
		}
	}
	e.log.Info("reminder pass",
		logx.String("org", org.ID),
		logx.String("kind", string(kind)),
		logx.String("class", class.String()),
		logx.Int("users", len(users)),
		logx.Int("notified", sent),
	)
	return nil
}

func (e *Engine) remindUser(ctx context.Context, u model.User, kind model.SubmissionKind, class Class, weekStart, due time.Time) (bool, error) {
	sub, err := e.store.GetSubmission(ctx, kind, u.ID, weekStart)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return false, err
	}
	if err == nil && sub.Status == model.SubmissionSubmitted {
		return false, nil
	}

	ntype := dueType(kind)
	if class == ClassOverdue {
		ntype = overdueType(kind)
		if _, err := e.store.MarkSubmissionOverdue(ctx, kind, u.ID, weekStart); err != nil {
			return false, err
		}
	}

	now := e.now().UTC()
	key := dedupKey(u.ID, kind)
	ok, err := e.store.ClaimDedup(ctx, key, now.Add(e.opts.DedupWindow))
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	_, err = e.notifier.Create(ctx, dispatch.Spec{
		UserID: u.ID,
		OrgID:  u.OrgID,
		Type:   ntype,
		Payload: map[string]any{
			"dueAt":     due.Format("Mon, 02 Jan 2006 15:04"),
			"weekStart": weekStart.Format("2006-01-02"),
		},
		EntityType: "submission",
		EntityID:   string(kind) + ":" + weekStart.Format("2006-01-02"),
	})
	if err != nil {
		// A held key with no notification behind it would swallow the
		// reminder for the whole window; give it back so the next pass
		// can retry.
		if relErr := e.store.ReleaseDedup(ctx, key); relErr != nil {
			e.log.Error("dedup release failed", logx.String("key", key), logx.Err(relErr))
		}
		return false, err
	}
	return true, nil
}

// SweepOverdue marks every unsubmitted plan and report whose due instant has
// passed and notifies the owner once. It runs independently of reminder
// weekdays so a submission never stays draft past its week.
func (e *Engine) SweepOverdue(ctx context.Context) error {
	now := e.now().In(e.opts.Location)
	orgs, err := e.store.ListOrganizations(ctx)
	if err != nil {
		return fmt.Errorf("list organizations: %w", err)
	}

	for _, org := range orgs {
		if err := ctx.Err(); err != nil {
			return err
		}
		settings, err := e.store.GetReportSettings(ctx, org.ID)
		if err != nil {
			e.log.Error("load settings", logx.String("org", org.ID), logx.Err(err))
			continue
		}
		if !settings.Enforced {
			continue
		}
		users, err := e.store.ListActiveUsers(ctx, org.ID)
		if err != nil {
			e.log.Error("list users", logx.String("org", org.ID), logx.Err(err))
			continue
		}
		for _, kind := range []model.SubmissionKind{model.KindPlan, model.KindReport} {
			weekStart := WeekStart(now)
			due, err := DueInstant(weekStart, settings.DueDay(kind), settings.DueTime(kind))
			if err != nil {
				e.log.Error("resolve due instant",
					logx.String("org", org.ID), logx.String("kind", string(kind)), logx.Err(err))
				continue
			}
			if settings.GraceHours > 0 {
				due = due.Add(time.Duration(settings.GraceHours) * time.Hour)
			}
			if !now.After(due) {
				continue
			}
			for _, u := range users {
				if err := e.sweepUser(ctx, u, kind, weekStart, due); err != nil {
					e.log.Error("overdue sweep failed",
						logx.String("user", u.ID),
						logx.String("kind", string(kind)),
						logx.Err(err),
					)
				}
			}
		}
	}
	return nil
}

func (e *Engine) sweepUser(ctx context.Context, u model.User, kind model.SubmissionKind, weekStart, due time.Time) error {
	sub, err := e.store.GetSubmission(ctx, kind, u.ID, weekStart)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if err == nil && sub.Status == model.SubmissionSubmitted {
		return nil
	}
	transitioned, err := e.store.MarkSubmissionOverdue(ctx, kind, u.ID, weekStart)
	if err != nil {
		return err
	}
	if !transitioned {
		return nil
	}

	now := e.now().UTC()
	key := dedupKey(u.ID, kind)
	ok, err := e.store.ClaimDedup(ctx, key, now.Add(e.opts.DedupWindow))
	if err != nil || !ok {
		return err
	}
	_, err = e.notifier.Create(ctx, dispatch.Spec{
		UserID: u.ID,
		OrgID:  u.OrgID,
		Type:   overdueType(kind),
		Payload: map[string]any{
			"dueAt":     due.Format("Mon, 02 Jan 2006 15:04"),
			"weekStart": weekStart.Format("2006-01-02"),
		},
		EntityType: "submission",
		EntityID:   string(kind) + ":" + weekStart.Format("2006-01-02"),
	})
	if err != nil {
		if relErr := e.store.ReleaseDedup(ctx, key); relErr != nil {
			e.log.Error("dedup release failed", logx.String("key", key), logx.Err(relErr))
		}
	}
	return err
}
