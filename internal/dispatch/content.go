package dispatch

import (
	"fmt"
	"strconv"
	"time"

	"flowdesk/internal/model"
	"flowdesk/internal/template"
)

// contentDef binds a notification type to its category, default priority,
// and the title/message templates rendered from the payload.
type contentDef struct {
	Category model.Category
	Priority model.Priority
	Title    string
	Message  string
}

var contentRegistry = map[model.NotificationType]contentDef{
	model.TypeTaskDueSoon: {
		Category: model.CategoryTask,
		Priority: model.PriorityMedium,
		Title:    "Task due soon",
		Message:  `"{{taskTitle}}" is due {{dueDate}}.`,
	},
	model.TypeTaskOverdue: {
		Category: model.CategoryTask,
		Priority: model.PriorityHigh,
		Title:    "Task overdue",
		Message:  `"{{taskTitle}}" is {{daysOverdue}} day(s) overdue.`,
	},
	model.TypeMeetingReminder: {
		Category: model.CategoryMeeting,
		Priority: model.PriorityMedium,
		Title:    "Meeting reminder",
		Message:  `"{{meetingTitle}}" starts at {{startsAt}} (in about {{minutesUntil}} minutes).`,
	},
	model.TypeWeeklyPlanDue: {
		Category: model.CategoryReport,
		Priority: model.PriorityMedium,
		Title:    "Weekly plan due",
		Message:  `Your weekly plan is due {{dueAt}}. Please submit it on time.`,
	},
	model.TypeWeeklyPlanOverdue: {
		Category: model.CategoryReport,
		Priority: model.PriorityHigh,
		Title:    "Weekly plan overdue",
		Message:  `Your weekly plan was due {{dueAt}} and has not been submitted.`,
	},
	model.TypeWeeklyReportDue: {
		Category: model.CategoryReport,
		Priority: model.PriorityMedium,
		Title:    "Weekly report due",
		Message:  `Your weekly report is due {{dueAt}}. Please submit it on time.`,
	},
	model.TypeWeeklyReportOverdue: {
		Category: model.CategoryReport,
		Priority: model.PriorityHigh,
		Title:    "Weekly report overdue",
		Message:  `Your weekly report was due {{dueAt}} and has not been submitted.`,
	},
	model.TypeLowComplianceAlert: {
		Category: model.CategoryReport,
		Priority: model.PriorityHigh,
		Title:    "Low report compliance",
		Message:  `Weekly compliance is below target: plans {{planRate}}%, reports {{reportRate}}% ({{overdueCount}} overdue of {{totalUsers}} members).`,
	},
	model.TypeSystemAnnouncement: {
		Category: model.CategorySystem,
		Priority: model.PriorityMedium,
		Title:    "{{title}}",
		Message:  "{{message}}",
	},
}

// buildContent renders the title and message for a notification type. An
// unknown type is an error, never a silently generic notification.
func buildContent(t model.NotificationType, payload map[string]any) (contentDef, string, string, error) {
	def, ok := contentRegistry[t]
	if !ok {
		return contentDef{}, "", "", fmt.Errorf("no content defined for notification type %q", t)
	}
	vars := stringifyPayload(payload)
	return def, template.Render(def.Title, vars), template.Render(def.Message, vars), nil
}

func stringifyPayload(payload map[string]any) map[string]string {
	if len(payload) == 0 {
		return nil
	}
	vars := make(map[string]string, len(payload))
	for k, v := range payload {
		switch x := v.(type) {
		case string:
			vars[k] = x
		case int:
			vars[k] = strconv.Itoa(x)
		case int64:
			vars[k] = strconv.FormatInt(x, 10)
		case float64:
			vars[k] = strconv.FormatFloat(x, 'f', -1, 64)
		case bool:
			vars[k] = strconv.FormatBool(x)
		case time.Time:
			vars[k] = x.Format("Mon, 02 Jan 2006 15:04")
		default:
			vars[k] = fmt.Sprintf("%v", x)
		}
	}
	return vars
}
