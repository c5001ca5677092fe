package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"flowdesk/internal/model"
	"flowdesk/internal/store"
	"flowdesk/pkg/logx"
)

// queueStore keeps entries in memory and mimics the claim semantics of the
// persistent store. It panics on store.Store methods the processor never
// calls.
type queueStore struct {
	store.Store

	entries       map[string]*model.QueueEntry
	notifications map[string]model.Notification
	rescheduled   []time.Time
}

func newQueueStore() *queueStore {
	return &queueStore{
		entries:       map[string]*model.QueueEntry{},
		notifications: map[string]model.Notification{},
	}
}

func (s *queueStore) add(e model.QueueEntry) {
	if e.Status == "" {
		e.Status = model.QueuePending
	}
	cp := e
	s.entries[e.ID] = &cp
}

func (s *queueStore) DuePendingEntries(_ context.Context, now time.Time, limit int) ([]model.QueueEntry, error) {
	var out []model.QueueEntry
	for _, e := range s.entries {
		if e.Status != model.QueuePending || e.ScheduledFor.After(now) {
			continue
		}
		if e.NextAttemptAt != nil && e.NextAttemptAt.After(now) {
			continue
		}
		out = append(out, *e)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *queueStore) ClaimEntry(_ context.Context, id string, at time.Time) (int, bool, error) {
	e, ok := s.entries[id]
	if !ok {
		return 0, false, store.ErrNotFound
	}
	if e.Status != model.QueuePending {
		return 0, false, nil
	}
	e.Status = model.QueueProcessing
	e.Attempts++
	e.LastAttemptAt = &at
	return e.Attempts, true, nil
}

func (s *queueStore) CompleteEntry(_ context.Context, id string, at time.Time) error {
	e, ok := s.entries[id]
	if !ok {
		return store.ErrNotFound
	}
	e.Status = model.QueueCompleted
	e.ProcessedAt = &at
	return nil
}

func (s *queueStore) RescheduleEntry(_ context.Context, id string, nextAt time.Time, lastErr string) error {
	e, ok := s.entries[id]
	if !ok {
		return store.ErrNotFound
	}
	e.Status = model.QueuePending
	e.NextAttemptAt = &nextAt
	e.LastError = lastErr
	s.rescheduled = append(s.rescheduled, nextAt)
	return nil
}

func (s *queueStore) RequeueStaleProcessing(_ context.Context, cutoff time.Time) (int64, error) {
	var n int64
	for _, e := range s.entries {
		if e.Status != model.QueueProcessing {
			continue
		}
		if e.LastAttemptAt == nil || !e.LastAttemptAt.After(cutoff) {
			e.Status = model.QueuePending
			n++
		}
	}
	return n, nil
}

func (s *queueStore) FailEntry(_ context.Context, id string, lastErr string) error {
	e, ok := s.entries[id]
	if !ok {
		return store.ErrNotFound
	}
	e.Status = model.QueueFailed
	e.LastError = lastErr
	return nil
}

func (s *queueStore) GetNotification(_ context.Context, id string) (model.Notification, error) {
	n, ok := s.notifications[id]
	if !ok {
		return model.Notification{}, store.ErrNotFound
	}
	return n, nil
}

type scriptedDeliverer struct {
	errs  []error // consumed one per call, last repeats
	calls int
}

func (d *scriptedDeliverer) Deliver(context.Context, *model.Notification) error {
	d.calls++
	if len(d.errs) == 0 {
		return nil
	}
	err := d.errs[0]
	if len(d.errs) > 1 {
		d.errs = d.errs[1:]
	}
	return err
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestTickCompletesDeliverableEntry(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)
	st := newQueueStore()
	st.notifications["n1"] = model.Notification{ID: "n1", UserID: "u1"}
	st.add(model.QueueEntry{ID: "e1", NotificationID: "n1", ScheduledFor: now.Add(-time.Minute)})

	del := &scriptedDeliverer{}
	p := New(st, del, Options{}, logx.Nop())
	p.now = fixedClock(now)

	if err := p.Tick(context.Background()); err != nil {
		t.Fatalf("Tick error: %v", err)
	}
	e := st.entries["e1"]
	if e.Status != model.QueueCompleted {
		t.Fatalf("status = %s, want completed", e.Status)
	}
	if e.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", e.Attempts)
	}
	if e.ProcessedAt == nil {
		t.Fatal("ProcessedAt not set")
	}
}

func TestTickReschedulesWithLinearBackoff(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)
	st := newQueueStore()
	st.notifications["n1"] = model.Notification{ID: "n1"}
	st.add(model.QueueEntry{ID: "e1", NotificationID: "n1", ScheduledFor: now.Add(-time.Minute), MaxAttempts: 3})

	del := &scriptedDeliverer{errs: []error{errors.New("smtp timeout")}}
	step := 5 * time.Minute
	p := New(st, del, Options{RetryStep: step}, logx.Nop())
	p.now = fixedClock(now)

	// First attempt retries after 1 step.
	if err := p.Tick(context.Background()); err != nil {
		t.Fatalf("Tick error: %v", err)
	}
	e := st.entries["e1"]
	if e.Status != model.QueuePending {
		t.Fatalf("status = %s, want pending", e.Status)
	}
	if e.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", e.Attempts)
	}
	if want := now.Add(step); !e.NextAttemptAt.Equal(want) {
		t.Fatalf("next attempt = %v, want %v", e.NextAttemptAt, want)
	}

	// Second attempt, clock past the hold: retries after 2 steps.
	p.now = fixedClock(now.Add(step))
	if err := p.Tick(context.Background()); err != nil {
		t.Fatalf("Tick error: %v", err)
	}
	if e.Attempts != 2 {
		t.Fatalf("attempts = %d, want 2", e.Attempts)
	}
	if want := now.Add(step).Add(2 * step); !e.NextAttemptAt.Equal(want) {
		t.Fatalf("next attempt = %v, want %v", e.NextAttemptAt, want)
	}
}

func TestTickFailsEntryAtMaxAttempts(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)
	st := newQueueStore()
	st.notifications["n1"] = model.Notification{ID: "n1"}
	st.add(model.QueueEntry{ID: "e1", NotificationID: "n1", ScheduledFor: now.Add(-time.Minute), Attempts: 2, MaxAttempts: 3})

	del := &scriptedDeliverer{errs: []error{errors.New("still broken")}}
	p := New(st, del, Options{RetryStep: time.Minute}, logx.Nop())
	p.now = fixedClock(now)

	if err := p.Tick(context.Background()); err != nil {
		t.Fatalf("Tick error: %v", err)
	}
	e := st.entries["e1"]
	if e.Status != model.QueueFailed {
		t.Fatalf("status = %s, want failed", e.Status)
	}
	if e.Attempts != 3 {
		t.Fatalf("attempts = %d, want 3", e.Attempts)
	}
	if e.LastError == "" {
		t.Fatal("terminal entry should keep its last error")
	}

	// A failed entry is terminal: the next tick must not touch it.
	if err := p.Tick(context.Background()); err != nil {
		t.Fatalf("Tick error: %v", err)
	}
	if e.Attempts != 3 || e.Status != model.QueueFailed {
		t.Fatalf("failed entry was revisited: %+v", e)
	}
}

func TestTickSkipsNotYetDueEntries(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)
	st := newQueueStore()
	st.add(model.QueueEntry{ID: "future", NotificationID: "n1", ScheduledFor: now.Add(time.Hour)})
	hold := now.Add(30 * time.Minute)
	st.add(model.QueueEntry{ID: "held", NotificationID: "n2", ScheduledFor: now.Add(-time.Hour), NextAttemptAt: &hold})

	del := &scriptedDeliverer{}
	p := New(st, del, Options{}, logx.Nop())
	p.now = fixedClock(now)

	if err := p.Tick(context.Background()); err != nil {
		t.Fatalf("Tick error: %v", err)
	}
	if del.calls != 0 {
		t.Fatalf("deliverer called %d times for undue entries", del.calls)
	}
}

func TestTickCompletesWhenNotificationGone(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)
	st := newQueueStore()
	st.add(model.QueueEntry{ID: "e1", NotificationID: "vanished", ScheduledFor: now.Add(-time.Minute)})

	del := &scriptedDeliverer{errs: []error{errors.New("must not be called")}}
	p := New(st, del, Options{}, logx.Nop())
	p.now = fixedClock(now)

	if err := p.Tick(context.Background()); err != nil {
		t.Fatalf("Tick error: %v", err)
	}
	if del.calls != 0 {
		t.Fatal("deliverer must not run for a deleted notification")
	}
	if st.entries["e1"].Status != model.QueueCompleted {
		t.Fatalf("status = %s, want completed", st.entries["e1"].Status)
	}
}

func TestTickResumesOrphanedProcessingEntry(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)
	st := newQueueStore()
	st.notifications["n1"] = model.Notification{ID: "n1", UserID: "u1"}
	st.notifications["n2"] = model.Notification{ID: "n2", UserID: "u2"}

	// e1 was claimed by a run that died an hour ago; e2 is a live claim
	// from moments ago and must be left alone.
	stale := now.Add(-time.Hour)
	fresh := now.Add(-time.Minute)
	st.add(model.QueueEntry{
		ID: "e1", NotificationID: "n1", ScheduledFor: now.Add(-2 * time.Hour),
		Status: model.QueueProcessing, Attempts: 1, MaxAttempts: 3, LastAttemptAt: &stale,
	})
	st.add(model.QueueEntry{
		ID: "e2", NotificationID: "n2", ScheduledFor: now.Add(-2 * time.Hour),
		Status: model.QueueProcessing, Attempts: 1, MaxAttempts: 3, LastAttemptAt: &fresh,
	})

	del := &scriptedDeliverer{}
	p := New(st, del, Options{Lease: 10 * time.Minute}, logx.Nop())
	p.now = fixedClock(now)

	if err := p.Tick(context.Background()); err != nil {
		t.Fatalf("Tick error: %v", err)
	}

	e1 := st.entries["e1"]
	if e1.Status != model.QueueCompleted {
		t.Fatalf("orphaned entry status = %s, want completed", e1.Status)
	}
	// ClaimEntry counted the interrupted attempt; the resume adds one.
	if e1.Attempts != 2 {
		t.Fatalf("attempts = %d, want 2", e1.Attempts)
	}
	if st.entries["e2"].Status != model.QueueProcessing {
		t.Fatalf("live claim was stolen: status = %s", st.entries["e2"].Status)
	}
}
