package model

import "time"

// Read models for the domain records the reminder engine scans. The CRUD
// side of the product owns these tables; the engine only reads them, except
// for the submission Overdue transition.

type Organization struct {
	ID   string `db:"id"`
	Name string `db:"name"`
}

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleMember  Role = "member"
)

type User struct {
	ID     string `db:"id"`
	OrgID  string `db:"org_id"`
	Name   string `db:"name"`
	Email  string `db:"email"`
	Role   Role   `db:"role"`
	Active bool   `db:"active"`
}

type TaskStatus string

const (
	TaskTodo       TaskStatus = "todo"
	TaskInProgress TaskStatus = "in_progress"
	TaskDone       TaskStatus = "done"
)

type Task struct {
	ID         string     `db:"id"`
	OrgID      string     `db:"org_id"`
	ProjectID  string     `db:"project_id"`
	Title      string     `db:"title"`
	Status     TaskStatus `db:"status"`
	AssigneeID string     `db:"assignee_id"`
	DueDate    *time.Time `db:"due_date"`
}

type MeetingStatus string

const (
	MeetingScheduled MeetingStatus = "scheduled"
	MeetingCompleted MeetingStatus = "completed"
	MeetingCancelled MeetingStatus = "cancelled"
)

type Meeting struct {
	ID       string        `db:"id"`
	OrgID    string        `db:"org_id"`
	Title    string        `db:"title"`
	Status   MeetingStatus `db:"status"`
	StartsAt time.Time     `db:"starts_at"`

	// AttendeeIDs is loaded from the join table.
	AttendeeIDs []string `db:"-"`
}

// SubmissionKind distinguishes the two weekly artifacts; plan and report
// share the same compliance machinery.
type SubmissionKind string

const (
	KindPlan   SubmissionKind = "plan"
	KindReport SubmissionKind = "report"
)

type SubmissionStatus string

const (
	SubmissionDraft     SubmissionStatus = "draft"
	SubmissionSubmitted SubmissionStatus = "submitted"
	SubmissionOverdue   SubmissionStatus = "overdue"
)

// Submission is one user's weekly plan or report, keyed by the Monday 00:00
// week anchor.
type Submission struct {
	ID        string           `db:"id"`
	OrgID     string           `db:"org_id"`
	UserID    string           `db:"user_id"`
	WeekStart time.Time        `db:"week_start"`
	Status    SubmissionStatus `db:"status"`
}

// ReportSettings holds one organization's weekly plan/report cadence policy.
// DueDay uses 1-7 for Monday-Sunday (offset from the week anchor);
// ReminderDays use Go weekday numbering, 0=Sunday..6=Saturday.
type ReportSettings struct {
	OrgID string `db:"org_id"`

	PlanDueDay       int    `db:"plan_due_day"`
	PlanDueTime      string `db:"plan_due_time"` // "HH:MM"
	PlanReminderDays []int  `db:"-"`

	ReportDueDay       int    `db:"report_due_day"`
	ReportDueTime      string `db:"report_due_time"`
	ReportReminderDays []int  `db:"-"`

	Enforced   bool `db:"enforced"`
	GraceHours int  `db:"grace_hours"`

	EmailEnabled  bool `db:"email_enabled"`
	InAppEnabled  bool `db:"in_app_enabled"`
	ManagerAlerts bool `db:"manager_alerts"`
}

// DefaultReportSettings is the implicit policy when an organization has no
// stored row: plan due Monday 10:00, report due Friday 17:00.
func DefaultReportSettings(orgID string) ReportSettings {
	return ReportSettings{
		OrgID:              orgID,
		PlanDueDay:         1,
		PlanDueTime:        "10:00",
		PlanReminderDays:   []int{1}, // Monday
		ReportDueDay:       5,
		ReportDueTime:      "17:00",
		ReportReminderDays: []int{4, 5}, // Thursday, Friday
		Enforced:           true,
		EmailEnabled:       true,
		InAppEnabled:       true,
		ManagerAlerts:      true,
	}
}

// DueDay returns the due weekday (1-7, Monday-based) for the given kind.
func (s ReportSettings) DueDay(kind SubmissionKind) int {
	if kind == KindPlan {
		return s.PlanDueDay
	}
	return s.ReportDueDay
}

// DueTime returns the "HH:MM" due time for the given kind.
func (s ReportSettings) DueTime(kind SubmissionKind) string {
	if kind == KindPlan {
		return s.PlanDueTime
	}
	return s.ReportDueTime
}

// ReminderDays returns the reminder weekday set for the given kind.
func (s ReportSettings) ReminderDays(kind SubmissionKind) []int {
	if kind == KindPlan {
		return s.PlanReminderDays
	}
	return s.ReportReminderDays
}
