package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"flowdesk/internal/model"
)

// ---- Preferences ----

func (s *SQLiteStore) GetPreferences(ctx context.Context, userID string) (model.Preferences, error) {
	var p model.Preferences
	err := s.db.GetContext(ctx, &p,
		`SELECT * FROM notification_preferences WHERE user_id = ?`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Preferences{}, ErrNotFound
	}
	return p, err
}

func (s *SQLiteStore) UpsertPreferences(ctx context.Context, p model.Preferences) error {
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO notification_preferences
		   (user_id, org_id, task_in_app, task_email, project_in_app, project_email,
		    meeting_in_app, meeting_email, report_in_app, report_email,
		    system_in_app, system_email)
		 VALUES (:user_id, :org_id, :task_in_app, :task_email, :project_in_app, :project_email,
		         :meeting_in_app, :meeting_email, :report_in_app, :report_email,
		         :system_in_app, :system_email)
		 ON CONFLICT(user_id) DO UPDATE SET
		   org_id = excluded.org_id,
		   task_in_app = excluded.task_in_app, task_email = excluded.task_email,
		   project_in_app = excluded.project_in_app, project_email = excluded.project_email,
		   meeting_in_app = excluded.meeting_in_app, meeting_email = excluded.meeting_email,
		   report_in_app = excluded.report_in_app, report_email = excluded.report_email,
		   system_in_app = excluded.system_in_app, system_email = excluded.system_email`,
		p,
	)
	return err
}

// ---- Report settings ----

// settingsRow flattens the reminder day lists into comma-joined TEXT.
type settingsRow struct {
	model.ReportSettings
	PlanDays   string `db:"plan_reminder_days"`
	ReportDays string `db:"report_reminder_days"`
}

func (s *SQLiteStore) GetReportSettings(ctx context.Context, orgID string) (model.ReportSettings, error) {
	var row settingsRow
	err := s.db.GetContext(ctx, &row,
		`SELECT * FROM report_settings WHERE org_id = ?`, orgID)
	if errors.Is(err, sql.ErrNoRows) {
		def := model.DefaultReportSettings(orgID)
		if err := s.insertReportSettings(ctx, def); err != nil {
			return model.ReportSettings{}, err
		}
		return def, nil
	}
	if err != nil {
		return model.ReportSettings{}, err
	}
	rs := row.ReportSettings
	rs.PlanReminderDays = splitDays(row.PlanDays)
	rs.ReportReminderDays = splitDays(row.ReportDays)
	return rs, nil
}

func (s *SQLiteStore) UpdateReportSettings(ctx context.Context, rs model.ReportSettings) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE report_settings SET
		   plan_due_day = ?, plan_due_time = ?, plan_reminder_days = ?,
		   report_due_day = ?, report_due_time = ?, report_reminder_days = ?,
		   enforced = ?, grace_hours = ?,
		   email_enabled = ?, in_app_enabled = ?, manager_alerts = ?
		 WHERE org_id = ?`,
		rs.PlanDueDay, rs.PlanDueTime, joinDays(rs.PlanReminderDays),
		rs.ReportDueDay, rs.ReportDueTime, joinDays(rs.ReportReminderDays),
		rs.Enforced, rs.GraceHours,
		rs.EmailEnabled, rs.InAppEnabled, rs.ManagerAlerts,
		rs.OrgID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return s.insertReportSettings(ctx, rs)
	}
	return nil
}

func (s *SQLiteStore) insertReportSettings(ctx context.Context, rs model.ReportSettings) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO report_settings
		   (org_id, plan_due_day, plan_due_time, plan_reminder_days,
		    report_due_day, report_due_time, report_reminder_days,
		    enforced, grace_hours, email_enabled, in_app_enabled, manager_alerts)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(org_id) DO NOTHING`,
		rs.OrgID, rs.PlanDueDay, rs.PlanDueTime, joinDays(rs.PlanReminderDays),
		rs.ReportDueDay, rs.ReportDueTime, joinDays(rs.ReportReminderDays),
		rs.Enforced, rs.GraceHours, rs.EmailEnabled, rs.InAppEnabled, rs.ManagerAlerts,
	)
	return err
}

func splitDays(s string) []int {
	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	return out
}

func joinDays(days []int) string {
	parts := make([]string, 0, len(days))
	for _, d := range days {
		parts = append(parts, strconv.Itoa(d))
	}
	return strings.Join(parts, ",")
}

// ---- Organizations and users ----

func (s *SQLiteStore) ListOrganizations(ctx context.Context) ([]model.Organization, error) {
	var out []model.Organization
	err := s.db.SelectContext(ctx, &out, `SELECT * FROM organizations ORDER BY id`)
	return out, err
}

func (s *SQLiteStore) GetUser(ctx context.Context, id string) (model.User, error) {
	var u model.User
	err := s.db.GetContext(ctx, &u, `SELECT * FROM users WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	return u, err
}

func (s *SQLiteStore) ListActiveUsers(ctx context.Context, orgID string) ([]model.User, error) {
	var out []model.User
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM users WHERE org_id = ? AND active = 1 ORDER BY id`, orgID)
	return out, err
}

func (s *SQLiteStore) ListUsersByRole(ctx context.Context, orgID string, roles ...model.Role) ([]model.User, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	q, args, err := sqlx.In(
		`SELECT * FROM users WHERE org_id = ? AND active = 1 AND role IN (?) ORDER BY id`,
		orgID, roles,
	)
	if err != nil {
		return nil, err
	}
	var out []model.User
	err = s.db.SelectContext(ctx, &out, s.db.Rebind(q), args...)
	return out, err
}

// ---- Tasks and meetings ----

func (s *SQLiteStore) TasksDueBetween(ctx context.Context, from, to time.Time) ([]model.Task, error) {
	var out []model.Task
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM tasks
		 WHERE status != 'done' AND due_date IS NOT NULL
		   AND due_date > ? AND due_date <= ?
		 ORDER BY due_date ASC`,
		from.UTC(), to.UTC(),
	)
	return out, err
}

func (s *SQLiteStore) TasksOverdue(ctx context.Context, asOf time.Time) ([]model.Task, error) {
	var out []model.Task
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM tasks
		 WHERE status != 'done' AND due_date IS NOT NULL AND due_date < ?
		 ORDER BY due_date ASC`,
		asOf.UTC(),
	)
	return out, err
}

func (s *SQLiteStore) MeetingsStartingBetween(ctx context.Context, from, to time.Time) ([]model.Meeting, error) {
	var meetings []model.Meeting
	err := s.db.SelectContext(ctx, &meetings,
		`SELECT * FROM meetings
		 WHERE status = 'scheduled' AND starts_at > ? AND starts_at <= ?
		 ORDER BY starts_at ASC`,
		from.UTC(), to.UTC(),
	)
	if err != nil || len(meetings) == 0 {
		return meetings, err
	}

	ids := make([]string, len(meetings))
	for i, m := range meetings {
		ids[i] = m.ID
	}
	q, args, err := sqlx.In(
		`SELECT meeting_id, user_id FROM meeting_attendees WHERE meeting_id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	var rows []struct {
		MeetingID string `db:"meeting_id"`
		UserID    string `db:"user_id"`
	}
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(q), args...); err != nil {
		return nil, err
	}
	byMeeting := make(map[string][]string, len(meetings))
	for _, r := range rows {
		byMeeting[r.MeetingID] = append(byMeeting[r.MeetingID], r.UserID)
	}
	for i := range meetings {
		meetings[i].AttendeeIDs = byMeeting[meetings[i].ID]
	}
	return meetings, nil
}

// ---- Weekly submissions ----

func submissionTable(kind model.SubmissionKind) (string, error) {
	switch kind {
	case model.KindPlan:
		return "weekly_plans", nil
	case model.KindReport:
		return "weekly_reports", nil
	default:
		return "", fmt.Errorf("unknown submission kind %q", kind)
	}
}

func (s *SQLiteStore) GetSubmission(ctx context.Context, kind model.SubmissionKind, userID string, weekStart time.Time) (model.Submission, error) {
	table, err := submissionTable(kind)
	if err != nil {
		return model.Submission{}, err
	}
	var sub model.Submission
	err = s.db.GetContext(ctx, &sub,
		`SELECT * FROM `+table+` WHERE user_id = ? AND week_start = ?`,
		userID, weekStart.UTC())
	if errors.Is(err, sql.ErrNoRows) {
		return model.Submission{}, ErrNotFound
	}
	return sub, err
}

// MarkSubmissionOverdue flips a missing-or-draft week to overdue. When no
// row exists yet one is created directly in the overdue state, so the
// compliance counters see it either way.
func (s *SQLiteStore) MarkSubmissionOverdue(ctx context.Context, kind model.SubmissionKind, userID string, weekStart time.Time) (bool, error) {
	table, err := submissionTable(kind)
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE `+table+` SET status = 'overdue'
		 WHERE user_id = ? AND week_start = ? AND status NOT IN ('submitted', 'overdue')`,
		userID, weekStart.UTC())
	if err != nil {
		return false, err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return true, nil
	}

	// No draft row: distinguish "already submitted/overdue" from "absent".
	var exists int
	err = s.db.GetContext(ctx, &exists,
		`SELECT COUNT(*) FROM `+table+` WHERE user_id = ? AND week_start = ?`,
		userID, weekStart.UTC())
	if err != nil {
		return false, err
	}
	if exists > 0 {
		return false, nil
	}

	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return false, err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO `+table+` (id, org_id, user_id, week_start, status)
		 VALUES (?, ?, ?, ?, 'overdue')
		 ON CONFLICT(user_id, week_start) DO NOTHING`,
		uuid.NewString(), u.OrgID, userID, weekStart.UTC())
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLiteStore) CountSubmitted(ctx context.Context, kind model.SubmissionKind, orgID string, weekStart time.Time) (int, error) {
	table, err := submissionTable(kind)
	if err != nil {
		return 0, err
	}
	var n int
	err = s.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM `+table+`
		 WHERE org_id = ? AND week_start = ? AND status = 'submitted'`,
		orgID, weekStart.UTC())
	return n, err
}
