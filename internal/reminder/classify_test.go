package reminder

import (
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	t.Parallel()
	due := date(2026, time.March, 6, 17, 0) // Friday 17:00

	tests := []struct {
		name string
		now  time.Time
		want Class
	}{
		{name: "friday inside lead window", now: date(2026, time.March, 6, 16, 30), want: ClassDue},
		{name: "friday at window edge", now: date(2026, time.March, 6, 15, 0), want: ClassDue},
		{name: "friday morning outside window", now: date(2026, time.March, 6, 9, 0), want: ClassNone},
		{name: "friday evening past due", now: date(2026, time.March, 6, 18, 0), want: ClassOverdue},
		{name: "thursday is due-tomorrow", now: date(2026, time.March, 5, 9, 0), want: ClassDue},
		{name: "wednesday is too early", now: date(2026, time.March, 4, 9, 0), want: ClassNone},
		{name: "next monday is overdue", now: date(2026, time.March, 9, 8, 0), want: ClassOverdue},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.now, due); got != tt.want {
				t.Fatalf("Classify(%v, %v) = %s, want %s", tt.now, due, got, tt.want)
			}
		})
	}
}

func TestClassString(t *testing.T) {
	t.Parallel()
	if ClassNone.String() != "none" || ClassDue.String() != "due" || ClassOverdue.String() != "overdue" {
		t.Fatalf("unexpected class strings: %s %s %s", ClassNone, ClassDue, ClassOverdue)
	}
}
