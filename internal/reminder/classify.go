package reminder

import "time"

// Class is the urgency of a submission relative to its due instant.
type Class int

const (
	ClassNone Class = iota
	ClassDue
	ClassOverdue
)

func (c Class) String() string {
	switch c {
	case ClassDue:
		return "due"
	case ClassOverdue:
		return "overdue"
	default:
		return "none"
	}
}

// dueSoonWindow is how far before the due instant a same-day reminder
// starts counting as "due".
const dueSoonWindow = 2 * time.Hour

// Classify places now against the due instant. Past due is overdue; due
// today inside the lead window, or due tomorrow, is due; anything further
// out is none.
func Classify(now, due time.Time) Class {
	if now.After(due) {
		return ClassOverdue
	}
	if sameDay(now, due) {
		if !now.Before(due.Add(-dueSoonWindow)) {
			return ClassDue
		}
		return ClassNone
	}
	if sameDay(now.AddDate(0, 0, 1), due) {
		return ClassDue
	}
	return ClassNone
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
