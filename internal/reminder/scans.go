package reminder

import (
	"context"
	"fmt"
	"time"

	"flowdesk/internal/dispatch"
	"flowdesk/internal/model"
	"flowdesk/pkg/logx"
)

// taskLookahead is how far ahead the due-soon scan looks.
const taskLookahead = 24 * time.Hour

// ScanTasks notifies assignees about tasks due within the lookahead window
// and about tasks already past due. There is no de-duplication claim here:
// the scan cadence is the rate limit, and a standing overdue task is meant
// to keep nagging.
func (e *Engine) ScanTasks(ctx context.Context) error {
	now := e.now().In(e.opts.Location)

	dueSoon, err := e.store.TasksDueBetween(ctx, now, now.Add(taskLookahead))
	if err != nil {
		return fmt.Errorf("list tasks due soon: %w", err)
	}
	var sent int
	for _, t := range dueSoon {
		if t.AssigneeID == "" || t.DueDate == nil {
			continue
		}
		_, err := e.notifier.Create(ctx, dispatch.Spec{
			UserID: t.AssigneeID,
			OrgID:  t.OrgID,
			Type:   model.TypeTaskDueSoon,
			Payload: map[string]any{
				"taskTitle": t.Title,
				"dueDate":   t.DueDate.In(e.opts.Location).Format("Mon, 02 Jan 2006 15:04"),
			},
			EntityType: "task",
			EntityID:   t.ID,
		})
		if err != nil {
			e.log.Error("task due-soon reminder failed",
				logx.String("task", t.ID), logx.Err(err))
			continue
		}
		sent++
	}

	overdue, err := e.store.TasksOverdue(ctx, now)
	if err != nil {
		return fmt.Errorf("list overdue tasks: %w", err)
	}
	var nagged int
	for _, t := range overdue {
		if t.AssigneeID == "" || t.DueDate == nil {
			continue
		}
		days := int(now.Sub(*t.DueDate).Hours() / 24)
		if days < 1 {
			days = 1
		}
		_, err := e.notifier.Create(ctx, dispatch.Spec{
			UserID: t.AssigneeID,
			OrgID:  t.OrgID,
			Type:   model.TypeTaskOverdue,
			Payload: map[string]any{
				"taskTitle":   t.Title,
				"daysOverdue": days,
			},
			EntityType: "task",
			EntityID:   t.ID,
		})
		if err != nil {
			e.log.Error("task overdue reminder failed",
				logx.String("task", t.ID), logx.Err(err))
			continue
		}
		nagged++
	}

	e.log.Info("task scan",
		logx.Int("due_soon", sent),
		logx.Int("overdue", nagged),
	)
	return nil
}

// Meeting reminder tiers: inside 15 minutes the reminder is high priority,
// inside the hour it is a regular heads-up.
const (
	meetingNearTier = 15 * time.Minute
	meetingFarTier  = 60 * time.Minute
)

// ScanMeetings reminds every attendee of meetings starting within the hour.
// Completed and cancelled meetings never match; the scan interval keeps the
// two tiers from stacking more than once each.
func (e *Engine) ScanMeetings(ctx context.Context) error {
	now := e.now().In(e.opts.Location)
	meetings, err := e.store.MeetingsStartingBetween(ctx, now, now.Add(meetingFarTier))
	if err != nil {
		return fmt.Errorf("list upcoming meetings: %w", err)
	}

	var sent int
	for _, m := range meetings {
		until := m.StartsAt.Sub(now)
		minutes := int(until.Round(time.Minute) / time.Minute)
		priority := model.PriorityMedium
		if until <= meetingNearTier {
			priority = model.PriorityHigh
		}
		for _, uid := range m.AttendeeIDs {
			_, err := e.notifier.Create(ctx, dispatch.Spec{
				UserID:   uid,
				OrgID:    m.OrgID,
				Type:     model.TypeMeetingReminder,
				Priority: priority,
				Payload: map[string]any{
					"meetingTitle": m.Title,
					"startsAt":     m.StartsAt.In(e.opts.Location).Format("15:04"),
					"minutesUntil": minutes,
				},
				EntityType: "meeting",
				EntityID:   m.ID,
			})
			if err != nil {
				e.log.Error("meeting reminder failed",
					logx.String("meeting", m.ID),
					logx.String("user", uid),
					logx.Err(err),
				)
				continue
			}
			sent++
		}
	}
	e.log.Info("meeting scan",
		logx.Int("meetings", len(meetings)),
		logx.Int("notified", sent),
	)
	return nil
}
