package model

import "time"

// NotificationType is the closed set of alerts the system can emit.
type NotificationType string

const (
	TypeTaskDueSoon         NotificationType = "TASK_DUE_SOON"
	TypeTaskOverdue         NotificationType = "TASK_OVERDUE"
	TypeMeetingReminder     NotificationType = "MEETING_REMINDER"
	TypeWeeklyPlanDue       NotificationType = "WEEKLY_PLAN_DUE"
	TypeWeeklyPlanOverdue   NotificationType = "WEEKLY_PLAN_OVERDUE"
	TypeWeeklyReportDue     NotificationType = "WEEKLY_REPORT_DUE"
	TypeWeeklyReportOverdue NotificationType = "WEEKLY_REPORT_OVERDUE"
	TypeLowComplianceAlert  NotificationType = "LOW_COMPLIANCE_ALERT"
	TypeSystemAnnouncement  NotificationType = "SYSTEM_ANNOUNCEMENT"
)

// Types lists every notification type. Content builders are checked against
// this list so a new type cannot silently fall through to a default string.
func Types() []NotificationType {
	return []NotificationType{
		TypeTaskDueSoon,
		TypeTaskOverdue,
		TypeMeetingReminder,
		TypeWeeklyPlanDue,
		TypeWeeklyPlanOverdue,
		TypeWeeklyReportDue,
		TypeWeeklyReportOverdue,
		TypeLowComplianceAlert,
		TypeSystemAnnouncement,
	}
}

type Category string

const (
	CategoryTask    Category = "task"
	CategoryProject Category = "project"
	CategoryMeeting Category = "meeting"
	CategoryReport  Category = "report"
	CategorySystem  Category = "system"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

type Channel string

const (
	ChannelInApp Channel = "in_app"
	ChannelEmail Channel = "email"
	ChannelPush  Channel = "push"
)

// Notification is one user-facing alert. Type, category, and recipient are
// immutable after creation; only read state and delivery status change.
type Notification struct {
	ID      string           `db:"id"`
	UserID  string           `db:"user_id"`
	OrgID   string           `db:"org_id"`
	Type    NotificationType `db:"type"`
	Category Category        `db:"category"`

	Title   string         `db:"title"`
	Message string         `db:"message"`
	Payload map[string]any `db:"-"`

	Priority Priority `db:"priority"`

	IsRead bool       `db:"is_read"`
	ReadAt *time.Time `db:"read_at"`

	// ScheduledFor is set only for deferred notifications and must be in
	// the future at creation time.
	ScheduledFor *time.Time `db:"scheduled_for"`
	DeliveredAt  *time.Time `db:"delivered_at"`

	InAppDelivered bool   `db:"in_app_delivered"`
	EmailDelivered bool   `db:"email_delivered"`
	PushDelivered  bool   `db:"push_delivered"`
	EmailError     string `db:"email_error"`

	// Optional back-reference to the triggering domain object.
	EntityType string `db:"entity_type"`
	EntityID   string `db:"entity_id"`

	CreatedAt time.Time `db:"created_at"`
}

type QueueStatus string

const (
	QueuePending    QueueStatus = "pending"
	QueueProcessing QueueStatus = "processing"
	QueueCompleted  QueueStatus = "completed"
	QueueFailed     QueueStatus = "failed"
)

// QueueEntry is a durable, retryable delivery task. Status transitions are
// monotonic along pending -> processing -> {completed | pending | failed};
// attempts only increases. Once failed the entry is terminal.
type QueueEntry struct {
	ID             string      `db:"id"`
	NotificationID string      `db:"notification_id"`
	JobType        string      `db:"job_type"`
	ScheduledFor   time.Time   `db:"scheduled_for"`
	Status         QueueStatus `db:"status"`
	Attempts       int         `db:"attempts"`
	MaxAttempts    int         `db:"max_attempts"`
	LastAttemptAt  *time.Time  `db:"last_attempt_at"`
	NextAttemptAt  *time.Time  `db:"next_attempt_at"`
	ProcessedAt    *time.Time  `db:"processed_at"`
	LastError      string      `db:"last_error"`
	CreatedAt      time.Time   `db:"created_at"`
}

// Preferences holds one user's per-category, per-channel notification
// switches. Absence of a row is equivalent to DefaultPreferences.
type Preferences struct {
	UserID string `db:"user_id"`
	OrgID  string `db:"org_id"`

	TaskInApp    bool `db:"task_in_app"`
	TaskEmail    bool `db:"task_email"`
	ProjectInApp bool `db:"project_in_app"`
	ProjectEmail bool `db:"project_email"`
	MeetingInApp bool `db:"meeting_in_app"`
	MeetingEmail bool `db:"meeting_email"`
	ReportInApp  bool `db:"report_in_app"`
	ReportEmail  bool `db:"report_email"`
	SystemInApp  bool `db:"system_in_app"`
	SystemEmail  bool `db:"system_email"`
}

// DefaultPreferences returns the all-enabled defaults used when a user has
// no stored preference row.
func DefaultPreferences(userID, orgID string) Preferences {
	return Preferences{
		UserID: userID, OrgID: orgID,
		TaskInApp: true, TaskEmail: true,
		ProjectInApp: true, ProjectEmail: true,
		MeetingInApp: true, MeetingEmail: true,
		ReportInApp: true, ReportEmail: true,
		SystemInApp: true, SystemEmail: true,
	}
}

// Allows reports whether the given category is enabled on the given channel.
// Unknown channels (push) default to the in-app switch.
func (p Preferences) Allows(cat Category, ch Channel) bool {
	email := ch == ChannelEmail
	switch cat {
	case CategoryTask:
		if email {
			return p.TaskEmail
		}
		return p.TaskInApp
	case CategoryProject:
		if email {
			return p.ProjectEmail
		}
		return p.ProjectInApp
	case CategoryMeeting:
		if email {
			return p.MeetingEmail
		}
		return p.MeetingInApp
	case CategoryReport:
		if email {
			return p.ReportEmail
		}
		return p.ReportInApp
	case CategorySystem:
		if email {
			return p.SystemEmail
		}
		return p.SystemInApp
	default:
		return true
	}
}
