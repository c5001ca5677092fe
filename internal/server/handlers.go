package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"flowdesk/internal/dispatch"
	"flowdesk/internal/model"
	"flowdesk/internal/store"
)

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Liveness probe",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body struct {
			Status string `json:"status" example:"ok"`
		}
	}, error) {
		out := &struct {
			Body struct {
				Status string `json:"status" example:"ok"`
			}
		}{}
		out.Body.Status = "ok"
		return out, nil
	})
}

type statusBody struct {
	Version          string    `json:"version"`
	StartedAt        time.Time `json:"started_at"`
	SchedulerEnabled bool      `json:"scheduler_enabled"`
	SchedulerRunning bool      `json:"scheduler_running"`
	Timezone         string    `json:"timezone"`
	Workers          int       `json:"workers"`
	Jobs             int       `json:"jobs"`
	QueueDepth       int       `json:"queue_depth"`
	EventsDropped    uint64    `json:"events_dropped"`
}

func registerStatus(api huma.API, deps Deps) {
	huma.Register(api, huma.Operation{
		OperationID: "status",
		Method:      http.MethodGet,
		Path:        "/status",
		Summary:     "Daemon status",
	}, func(ctx context.Context, _ *struct{}) (*struct{ Body statusBody }, error) {
		snap := deps.Scheduler.Snapshot()
		depth, err := deps.Store.QueueDepth(ctx)
		if err != nil {
			return nil, mapStoreErr(err)
		}
		var dropped uint64
		if deps.Bus != nil {
			dropped = deps.Bus.Dropped()
		}
		return &struct{ Body statusBody }{Body: statusBody{
			Version:          versionOr(deps.Version),
			StartedAt:        deps.StartedAt,
			SchedulerEnabled: snap.Enabled,
			SchedulerRunning: snap.Running,
			Timezone:         snap.Timezone,
			Workers:          snap.Workers,
			Jobs:             len(snap.Jobs),
			QueueDepth:       depth,
			EventsDropped:    dropped,
		}}, nil
	})
}

type jobBody struct {
	Name    string     `json:"name"`
	Spec    string     `json:"spec"`
	Timeout string     `json:"timeout,omitempty"`
	Next    *time.Time `json:"next,omitempty"`
	Prev    *time.Time `json:"prev,omitempty"`
}

type historyBody struct {
	Name     string    `json:"name"`
	Started  time.Time `json:"started"`
	Duration string    `json:"duration"`
	Error    string    `json:"error,omitempty"`
}

func registerJobs(api huma.API, deps Deps) {
	huma.Register(api, huma.Operation{
		OperationID: "list-jobs",
		Method:      http.MethodGet,
		Path:        "/jobs",
		Summary:     "List scheduled jobs and recent run history",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body struct {
			Jobs    []jobBody     `json:"jobs"`
			History []historyBody `json:"history"`
		}
	}, error) {
		snap := deps.Scheduler.Snapshot()
		out := &struct {
			Body struct {
				Jobs    []jobBody     `json:"jobs"`
				History []historyBody `json:"history"`
			}
		}{}
		for _, j := range snap.Jobs {
			jb := jobBody{Name: j.Name, Spec: j.Spec}
			if j.Timeout > 0 {
				jb.Timeout = j.Timeout.String()
			}
			if !j.Next.IsZero() {
				next := j.Next
				jb.Next = &next
			}
			if !j.Prev.IsZero() {
				prev := j.Prev
				jb.Prev = &prev
			}
			out.Body.Jobs = append(out.Body.Jobs, jb)
		}
		for _, h := range snap.History {
			out.Body.History = append(out.Body.History, historyBody{
				Name:     h.Name,
				Started:  h.Started,
				Duration: h.Duration.String(),
				Error:    h.Error,
			})
		}
		return out, nil
	})

	type jobPath struct {
		Name string `path:"name"`
	}

	huma.Register(api, huma.Operation{
		OperationID: "run-job",
		Method:      http.MethodPost,
		Path:        "/jobs/{name}/run",
		Summary:     "Trigger one immediate run of a job",
	}, func(ctx context.Context, input *jobPath) (*struct {
		Body struct {
			Triggered string `json:"triggered"`
		}
	}, error) {
		if err := deps.Scheduler.RunNow(input.Name); err != nil {
			if strings.Contains(err.Error(), "unknown job") {
				return nil, huma.Error404NotFound(err.Error())
			}
			return nil, huma.Error409Conflict(err.Error())
		}
		out := &struct {
			Body struct {
				Triggered string `json:"triggered"`
			}
		}{}
		out.Body.Triggered = input.Name
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reschedule-job",
		Method:      http.MethodPost,
		Path:        "/jobs/{name}/reschedule",
		Summary:     "Change a job's schedule",
	}, func(ctx context.Context, input *struct {
		Name string `path:"name"`
		Body struct {
			Schedule string `json:"schedule" example:"@every 5m"`
		}
	}) (*struct {
		Body struct {
			Name     string `json:"name"`
			Schedule string `json:"schedule"`
		}
	}, error) {
		if err := deps.Scheduler.Reschedule(input.Name, input.Body.Schedule); err != nil {
			if strings.Contains(err.Error(), "unknown job") {
				return nil, huma.Error404NotFound(err.Error())
			}
			return nil, huma.Error400BadRequest(err.Error())
		}
		out := &struct {
			Body struct {
				Name     string `json:"name"`
				Schedule string `json:"schedule"`
			}
		}{}
		out.Body.Name = input.Name
		out.Body.Schedule = input.Body.Schedule
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-job",
		Method:      http.MethodDelete,
		Path:        "/jobs/{name}",
		Summary:     "Cancel a job",
	}, func(ctx context.Context, input *jobPath) (*struct {
		Body struct {
			Removed bool `json:"removed"`
		}
	}, error) {
		out := &struct {
			Body struct {
				Removed bool `json:"removed"`
			}
		}{}
		out.Body.Removed = deps.Scheduler.Cancel(input.Name)
		return out, nil
	})
}

func registerSchedulerControl(api huma.API, deps Deps) {
	huma.Register(api, huma.Operation{
		OperationID: "scheduler-start",
		Method:      http.MethodPost,
		Path:        "/scheduler/start",
		Summary:     "Start the scheduler",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body struct {
			Running bool `json:"running"`
		}
	}, error) {
		deps.Scheduler.Start(context.WithoutCancel(ctx))
		out := &struct {
			Body struct {
				Running bool `json:"running"`
			}
		}{}
		out.Body.Running = deps.Scheduler.Snapshot().Running
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "scheduler-stop",
		Method:      http.MethodPost,
		Path:        "/scheduler/stop",
		Summary:     "Stop the scheduler",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body struct {
			Running bool `json:"running"`
		}
	}, error) {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		deps.Scheduler.Stop(stopCtx)
		out := &struct {
			Body struct {
				Running bool `json:"running"`
			}
		}{}
		out.Body.Running = deps.Scheduler.Snapshot().Running
		return out, nil
	})
}

type notificationBody struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Category    string         `json:"category"`
	Title       string         `json:"title"`
	Message     string         `json:"message"`
	Payload     map[string]any `json:"payload,omitempty"`
	Priority    string         `json:"priority"`
	IsRead      bool           `json:"is_read"`
	ReadAt      *time.Time     `json:"read_at,omitempty"`
	DeliveredAt *time.Time     `json:"delivered_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

func toNotificationBody(n model.Notification) notificationBody {
	return notificationBody{
		ID:          n.ID,
		Type:        string(n.Type),
		Category:    string(n.Category),
		Title:       n.Title,
		Message:     n.Message,
		Payload:     n.Payload,
		Priority:    string(n.Priority),
		IsRead:      n.IsRead,
		ReadAt:      n.ReadAt,
		DeliveredAt: n.DeliveredAt,
		CreatedAt:   n.CreatedAt,
	}
}

func registerNotifications(api huma.API, deps Deps) {
	huma.Register(api, huma.Operation{
		OperationID: "list-notifications",
		Method:      http.MethodGet,
		Path:        "/users/{user_id}/notifications",
		Summary:     "List a user's notifications",
	}, func(ctx context.Context, input *struct {
		UserID     string `path:"user_id"`
		UnreadOnly bool   `query:"unread_only"`
		Category   string `query:"category"`
		Type       string `query:"type"`
		Limit      int    `query:"limit"`
		Offset     int    `query:"offset"`
	}) (*struct {
		Body struct {
			Notifications []notificationBody `json:"notifications"`
			Total         int                `json:"total"`
			Unread        int                `json:"unread"`
		}
	}, error) {
		page, total, unread, err := deps.Dispatcher.List(ctx, input.UserID, store.ListOptions{
			UnreadOnly: input.UnreadOnly,
			Category:   model.Category(input.Category),
			Type:       model.NotificationType(input.Type),
			Limit:      input.Limit,
			Offset:     input.Offset,
		})
		if err != nil {
			return nil, mapStoreErr(err)
		}
		out := &struct {
			Body struct {
				Notifications []notificationBody `json:"notifications"`
				Total         int                `json:"total"`
				Unread        int                `json:"unread"`
			}
		}{}
		out.Body.Total = total
		out.Body.Unread = unread
		for _, n := range page {
			out.Body.Notifications = append(out.Body.Notifications, toNotificationBody(n))
		}
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "mark-read",
		Method:      http.MethodPost,
		Path:        "/users/{user_id}/notifications/read",
		Summary:     "Mark notifications read",
	}, func(ctx context.Context, input *struct {
		UserID string `path:"user_id"`
		Body   struct {
			IDs []string `json:"ids"`
		}
	}) (*struct {
		Body struct {
			Updated int64 `json:"updated"`
		}
	}, error) {
		n, err := deps.Dispatcher.MarkRead(ctx, input.UserID, input.Body.IDs)
		if err != nil {
			return nil, mapStoreErr(err)
		}
		out := &struct {
			Body struct {
				Updated int64 `json:"updated"`
			}
		}{}
		out.Body.Updated = n
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "mark-all-read",
		Method:      http.MethodPost,
		Path:        "/users/{user_id}/notifications/read-all",
		Summary:     "Mark every notification read",
	}, func(ctx context.Context, input *struct {
		UserID string `path:"user_id"`
	}) (*struct {
		Body struct {
			Updated int64 `json:"updated"`
		}
	}, error) {
		n, err := deps.Dispatcher.MarkAllRead(ctx, input.UserID)
		if err != nil {
			return nil, mapStoreErr(err)
		}
		out := &struct {
			Body struct {
				Updated int64 `json:"updated"`
			}
		}{}
		out.Body.Updated = n
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "create-announcement",
		Method:      http.MethodPost,
		Path:        "/orgs/{org_id}/announcements",
		Summary:     "Broadcast a system announcement to every active member",
	}, func(ctx context.Context, input *struct {
		OrgID string `path:"org_id"`
		Body  struct {
			Title    string `json:"title" minLength:"1"`
			Message  string `json:"message" minLength:"1"`
			Priority string `json:"priority,omitempty" enum:"low,medium,high"`
		}
	}) (*struct {
		Body struct {
			Created int `json:"created"`
			Failed  int `json:"failed"`
		}
	}, error) {
		users, err := deps.Store.ListActiveUsers(ctx, input.OrgID)
		if err != nil {
			return nil, mapStoreErr(err)
		}
		ids := make([]string, 0, len(users))
		for _, u := range users {
			ids = append(ids, u.ID)
		}
		created, failed := deps.Dispatcher.CreateBulk(ctx, ids, dispatch.Spec{
			OrgID:    input.OrgID,
			Type:     model.TypeSystemAnnouncement,
			Priority: model.Priority(input.Body.Priority),
			Payload: map[string]any{
				"title":   input.Body.Title,
				"message": input.Body.Message,
			},
		})
		out := &struct {
			Body struct {
				Created int `json:"created"`
				Failed  int `json:"failed"`
			}
		}{}
		out.Body.Created = created
		out.Body.Failed = failed
		return out, nil
	})
}

type preferencesBody struct {
	TaskInApp    bool `json:"task_in_app"`
	TaskEmail    bool `json:"task_email"`
	ProjectInApp bool `json:"project_in_app"`
	ProjectEmail bool `json:"project_email"`
	MeetingInApp bool `json:"meeting_in_app"`
	MeetingEmail bool `json:"meeting_email"`
	ReportInApp  bool `json:"report_in_app"`
	ReportEmail  bool `json:"report_email"`
	SystemInApp  bool `json:"system_in_app"`
	SystemEmail  bool `json:"system_email"`
}

func registerPreferences(api huma.API, deps Deps) {
	type userPath struct {
		UserID string `path:"user_id"`
	}

	huma.Register(api, huma.Operation{
		OperationID: "get-preferences",
		Method:      http.MethodGet,
		Path:        "/users/{user_id}/preferences",
		Summary:     "Notification preferences (defaults when unset)",
	}, func(ctx context.Context, input *userPath) (*struct{ Body preferencesBody }, error) {
		p, err := deps.Store.GetPreferences(ctx, input.UserID)
		if errorsIsNotFound(err) {
			u, uerr := deps.Store.GetUser(ctx, input.UserID)
			if uerr != nil {
				return nil, mapStoreErr(uerr)
			}
			p = model.DefaultPreferences(u.ID, u.OrgID)
		} else if err != nil {
			return nil, mapStoreErr(err)
		}
		return &struct{ Body preferencesBody }{Body: preferencesBody{
			TaskInApp: p.TaskInApp, TaskEmail: p.TaskEmail,
			ProjectInApp: p.ProjectInApp, ProjectEmail: p.ProjectEmail,
			MeetingInApp: p.MeetingInApp, MeetingEmail: p.MeetingEmail,
			ReportInApp: p.ReportInApp, ReportEmail: p.ReportEmail,
			SystemInApp: p.SystemInApp, SystemEmail: p.SystemEmail,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "put-preferences",
		Method:      http.MethodPut,
		Path:        "/users/{user_id}/preferences",
		Summary:     "Replace notification preferences",
	}, func(ctx context.Context, input *struct {
		UserID string `path:"user_id"`
		Body   preferencesBody
	}) (*struct{ Body preferencesBody }, error) {
		u, err := deps.Store.GetUser(ctx, input.UserID)
		if err != nil {
			return nil, mapStoreErr(err)
		}
		b := input.Body
		p := model.Preferences{
			UserID: u.ID, OrgID: u.OrgID,
			TaskInApp: b.TaskInApp, TaskEmail: b.TaskEmail,
			ProjectInApp: b.ProjectInApp, ProjectEmail: b.ProjectEmail,
			MeetingInApp: b.MeetingInApp, MeetingEmail: b.MeetingEmail,
			ReportInApp: b.ReportInApp, ReportEmail: b.ReportEmail,
			SystemInApp: b.SystemInApp, SystemEmail: b.SystemEmail,
		}
		if err := deps.Store.UpsertPreferences(ctx, p); err != nil {
			return nil, mapStoreErr(err)
		}
		return &struct{ Body preferencesBody }{Body: b}, nil
	})
}

type reportSettingsBody struct {
	PlanDueDay         int    `json:"plan_due_day" minimum:"1" maximum:"7"`
	PlanDueTime        string `json:"plan_due_time" example:"10:00"`
	PlanReminderDays   []int  `json:"plan_reminder_days"`
	ReportDueDay       int    `json:"report_due_day" minimum:"1" maximum:"7"`
	ReportDueTime      string `json:"report_due_time" example:"17:00"`
	ReportReminderDays []int  `json:"report_reminder_days"`
	Enforced           bool   `json:"enforced"`
	GraceHours         int    `json:"grace_hours"`
	EmailEnabled       bool   `json:"email_enabled"`
	InAppEnabled       bool   `json:"in_app_enabled"`
	ManagerAlerts      bool   `json:"manager_alerts"`
}

func registerReportSettings(api huma.API, deps Deps) {
	type orgPath struct {
		OrgID string `path:"org_id"`
	}

	huma.Register(api, huma.Operation{
		OperationID: "get-report-settings",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}/report-settings",
		Summary:     "Weekly plan/report cadence policy",
	}, func(ctx context.Context, input *orgPath) (*struct{ Body reportSettingsBody }, error) {
		s, err := deps.Store.GetReportSettings(ctx, input.OrgID)
		if err != nil {
			return nil, mapStoreErr(err)
		}
		return &struct{ Body reportSettingsBody }{Body: toSettingsBody(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "put-report-settings",
		Method:      http.MethodPut,
		Path:        "/orgs/{org_id}/report-settings",
		Summary:     "Replace the cadence policy",
	}, func(ctx context.Context, input *struct {
		OrgID string `path:"org_id"`
		Body  reportSettingsBody
	}) (*struct{ Body reportSettingsBody }, error) {
		b := input.Body
		s := model.ReportSettings{
			OrgID:              input.OrgID,
			PlanDueDay:         b.PlanDueDay,
			PlanDueTime:        b.PlanDueTime,
			PlanReminderDays:   b.PlanReminderDays,
			ReportDueDay:       b.ReportDueDay,
			ReportDueTime:      b.ReportDueTime,
			ReportReminderDays: b.ReportReminderDays,
			Enforced:           b.Enforced,
			GraceHours:         b.GraceHours,
			EmailEnabled:       b.EmailEnabled,
			InAppEnabled:       b.InAppEnabled,
			ManagerAlerts:      b.ManagerAlerts,
		}
		if err := deps.Store.UpdateReportSettings(ctx, s); err != nil {
			return nil, mapStoreErr(err)
		}
		return &struct{ Body reportSettingsBody }{Body: b}, nil
	})
}

func toSettingsBody(s model.ReportSettings) reportSettingsBody {
	return reportSettingsBody{
		PlanDueDay:         s.PlanDueDay,
		PlanDueTime:        s.PlanDueTime,
		PlanReminderDays:   s.PlanReminderDays,
		ReportDueDay:       s.ReportDueDay,
		ReportDueTime:      s.ReportDueTime,
		ReportReminderDays: s.ReportReminderDays,
		Enforced:           s.Enforced,
		GraceHours:         s.GraceHours,
		EmailEnabled:       s.EmailEnabled,
		InAppEnabled:       s.InAppEnabled,
		ManagerAlerts:      s.ManagerAlerts,
	}
}

func errorsIsNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
