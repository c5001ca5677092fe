// Package reminder scans domain state and turns it into notifications:
// weekly plan/report reminders, overdue sweeps, compliance alerts, and the
// task and meeting reminder passes.
package reminder

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// WeekStart truncates t to Monday 00:00 in t's location. Applying it to a
// value that is already a week anchor returns the same instant.
func WeekStart(t time.Time) time.Time {
	daysSinceMonday := (int(t.Weekday()) + 6) % 7
	y, m, d := t.AddDate(0, 0, -daysSinceMonday).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DueInstant resolves a due weekday and wall time against a week anchor.
// dueDay is 1-7, Monday-based (1 = the anchor day itself).
func DueInstant(weekStart time.Time, dueDay int, hhmm string) (time.Time, error) {
	if dueDay < 1 || dueDay > 7 {
		return time.Time{}, fmt.Errorf("due day %d out of range 1..7", dueDay)
	}
	hour, minute, err := parseClock(hhmm)
	if err != nil {
		return time.Time{}, err
	}
	day := weekStart.AddDate(0, 0, dueDay-1)
	y, m, d := day.Date()
	return time.Date(y, m, d, hour, minute, 0, 0, weekStart.Location()), nil
}

func parseClock(hhmm string) (int, int, error) {
	parts := strings.SplitN(strings.TrimSpace(hhmm), ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("clock time %q is not HH:MM", hhmm)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("clock time %q: bad hour", hhmm)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("clock time %q: bad minute", hhmm)
	}
	return hour, minute, nil
}

// isReminderDay reports whether now's weekday is in the configured set.
// Days use Go weekday numbers, 0=Sunday..6=Saturday.
func isReminderDay(now time.Time, days []int) bool {
	wd := int(now.Weekday())
	for _, d := range days {
		if d == wd {
			return true
		}
	}
	return false
}
