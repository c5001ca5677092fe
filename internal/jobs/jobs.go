// Package jobs defines the built-in job set and registers it with the
// scheduler. Schedules can be overridden per job name from configuration;
// the job bodies themselves are fixed.
package jobs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"flowdesk/internal/config"
	"flowdesk/internal/dispatch"
	"flowdesk/internal/model"
	"flowdesk/internal/queue"
	"flowdesk/internal/reminder"
	"flowdesk/internal/scheduler"
	"flowdesk/pkg/logx"
)

// Built-in job names. Stable: the admin API addresses jobs by these.
const (
	JobPlanReminders   = "plan.reminders"
	JobReportReminders = "report.reminders"
	JobComplianceWeek  = "compliance.weekly"
	JobQueueDrain      = "queue.drain"
	JobTaskDueDates    = "task.duedates"
	JobMeetingRemind   = "meeting.reminders"
	JobEveningSweep    = "evening.sweep"
	JobCleanup         = "notifications.cleanup"
)

// Deps collects everything the job bodies touch.
type Deps struct {
	Scheduler  *scheduler.Service
	Queue      *queue.Processor
	Engine     *reminder.Engine
	Dispatcher *dispatch.Dispatcher
	Log        logx.Logger
}

type def struct {
	name     string
	schedule string
	timeout  time.Duration
	run      func(ctx context.Context) error
}

// Register installs the built-in jobs, applying any per-name schedule
// override from the config. Unknown override names are rejected so a typo
// in the config file cannot silently leave a job on its default cadence.
func Register(deps Deps, cfg *config.Config) error {
	retention := time.Duration(cfg.CleanupDays()) * 24 * time.Hour

	defs := []def{
		{
			name:     JobPlanReminders,
			schedule: "0 9 * * *",
			timeout:  5 * time.Minute,
			run: func(ctx context.Context) error {
				return deps.Engine.ScanDue(ctx, model.KindPlan)
			},
		},
		{
			name:     JobReportReminders,
			schedule: "30 9 * * *",
			timeout:  5 * time.Minute,
			run: func(ctx context.Context) error {
				return deps.Engine.ScanDue(ctx, model.KindReport)
			},
		},
		{
			name:     JobComplianceWeek,
			schedule: "30 10 * * 1",
			timeout:  5 * time.Minute,
			run:      deps.Engine.ComplianceCheck,
		},
		{
			name:     JobQueueDrain,
			schedule: "@every 15m",
			timeout:  2 * time.Minute,
			run:      deps.Queue.Tick,
		},
		{
			name: JobTaskDueDates,
			// Work hours only; an overdue task does not need a 3am nag.
			schedule: "0 8-18/2 * * 1-5",
			timeout:  5 * time.Minute,
			run:      deps.Engine.ScanTasks,
		},
		{
			name:     JobMeetingRemind,
			schedule: "@every 30m",
			timeout:  2 * time.Minute,
			run:      deps.Engine.ScanMeetings,
		},
		{
			name:     JobEveningSweep,
			schedule: "0 18 * * *",
			timeout:  5 * time.Minute,
			run:      deps.Engine.SweepOverdue,
		},
		{
			name:     JobCleanup,
			schedule: "0 3 * * *",
			timeout:  5 * time.Minute,
			run: func(ctx context.Context) error {
				n, err := deps.Dispatcher.CleanupOld(ctx, retention)
				if err != nil {
					return err
				}
				deps.Log.Info("notification cleanup",
					logx.Int64("deleted", n),
					logx.Duration("retention", retention),
				)
				return nil
			},
		},
	}

	known := make(map[string]bool, len(defs))
	for _, d := range defs {
		known[d.name] = true
	}
	for name := range cfg.Jobs {
		if !known[name] {
			return fmt.Errorf("jobs: schedule override for unknown job %q", name)
		}
	}

	for _, d := range defs {
		schedule := d.schedule
		if o, ok := cfg.Jobs[d.name]; ok && strings.TrimSpace(o) != "" {
			schedule = o
		}
		if _, err := deps.Scheduler.Register(d.name, schedule, d.timeout, d.run); err != nil {
			return fmt.Errorf("jobs: register %s: %w", d.name, err)
		}
	}
	return nil
}

// Names lists the built-in job names in registration order.
func Names() []string {
	return []string{
		JobPlanReminders,
		JobReportReminders,
		JobComplianceWeek,
		JobQueueDrain,
		JobTaskDueDates,
		JobMeetingRemind,
		JobEveningSweep,
		JobCleanup,
	}
}
