package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"flowdesk/internal/model"
	"flowdesk/pkg/logx"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := Open(Config{Path: filepath.Join(t.TempDir(), "test.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func seedUser(t *testing.T, st *SQLiteStore, id, orgID string, role model.Role) {
	t.Helper()
	_, err := st.db.Exec(
		`INSERT INTO users (id, org_id, name, email, role, active) VALUES (?, ?, ?, ?, ?, 1)`,
		id, orgID, id, id+"@example.com", role)
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
}

func TestNotificationRoundTrip(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	n := &model.Notification{
		UserID:   "u1",
		OrgID:    "o1",
		Type:     model.TypeTaskDueSoon,
		Category: model.CategoryTask,
		Title:    "Task due soon",
		Message:  `"Write docs" is due tomorrow.`,
		Payload:  map[string]any{"taskTitle": "Write docs", "daysOverdue": float64(2)},
	}
	if err := st.CreateNotification(ctx, n); err != nil {
		t.Fatalf("create: %v", err)
	}
	if n.ID == "" || n.CreatedAt.IsZero() {
		t.Fatalf("create did not fill defaults: %+v", n)
	}

	got, err := st.GetNotification(ctx, n.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != n.Title || got.Type != n.Type || got.Priority != model.PriorityMedium {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.Payload["taskTitle"] != "Write docs" || got.Payload["daysOverdue"] != float64(2) {
		t.Fatalf("payload mismatch: %+v", got.Payload)
	}

	if _, err := st.GetNotification(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListAndMarkRead(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	var ids []string
	for i := 0; i < 3; i++ {
		n := &model.Notification{
			UserID: "u1", OrgID: "o1",
			Type: model.TypeTaskDueSoon, Category: model.CategoryTask,
			Title: "t", Message: "m",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := st.CreateNotification(ctx, n); err != nil {
			t.Fatalf("create: %v", err)
		}
		ids = append(ids, n.ID)
	}
	other := &model.Notification{
		UserID: "u2", OrgID: "o1",
		Type: model.TypeTaskDueSoon, Category: model.CategoryTask, Title: "t", Message: "m",
	}
	if err := st.CreateNotification(ctx, other); err != nil {
		t.Fatalf("create: %v", err)
	}

	page, total, unread, err := st.ListNotifications(ctx, "u1", ListOptions{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 3 || unread != 3 || len(page) != 3 {
		t.Fatalf("list = %d/%d/%d, want 3/3/3", len(page), total, unread)
	}
	// Newest first.
	if page[0].ID != ids[2] {
		t.Fatalf("order: first = %s, want %s", page[0].ID, ids[2])
	}

	// Marking u1's notifications as u2 touches nothing.
	updated, err := st.MarkRead(ctx, "u2", ids[:2], base)
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if updated != 0 {
		t.Fatalf("cross-user mark updated %d rows", updated)
	}

	updated, err = st.MarkRead(ctx, "u1", ids[:2], base)
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if updated != 2 {
		t.Fatalf("marked %d rows, want 2", updated)
	}
	// Re-marking already-read ids is a no-op.
	if again, _ := st.MarkRead(ctx, "u1", ids[:2], base); again != 0 {
		t.Fatalf("re-mark updated %d rows", again)
	}

	_, _, unread, err = st.ListNotifications(ctx, "u1", ListOptions{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if unread != 1 {
		t.Fatalf("unread = %d, want 1", unread)
	}

	if n, err := st.MarkAllRead(ctx, "u1", base); err != nil || n != 1 {
		t.Fatalf("mark all = %d, %v", n, err)
	}

	// Cleanup removes only read-and-old rows.
	removed, err := st.DeleteReadBefore(ctx, time.Now().UTC().Add(time.Minute))
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if removed != 3 {
		t.Fatalf("removed %d, want 3", removed)
	}
	if _, total, _, _ := st.ListNotifications(ctx, "u2", ListOptions{}); total != 1 {
		t.Fatal("unread notification of u2 must survive cleanup")
	}
}

func TestClaimDedup(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	until := time.Now().Add(time.Hour)
	ok, err := st.ClaimDedup(ctx, "u1|WEEKLY_REPORT_DUE", until)
	if err != nil || !ok {
		t.Fatalf("first claim = %v, %v", ok, err)
	}
	ok, err = st.ClaimDedup(ctx, "u1|WEEKLY_REPORT_DUE", until.Add(time.Hour))
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if ok {
		t.Fatal("held key must not be claimable")
	}

	// A different key is independent.
	if ok, _ := st.ClaimDedup(ctx, "u2|WEEKLY_REPORT_DUE", until); !ok {
		t.Fatal("unrelated key should claim")
	}

	// An expired hold is replaceable.
	if ok, err := st.ClaimDedup(ctx, "stale", time.Now().Add(-time.Minute)); err != nil || !ok {
		t.Fatalf("expired seed claim = %v, %v", ok, err)
	}
	if ok, err := st.ClaimDedup(ctx, "stale", until); err != nil || !ok {
		t.Fatalf("reclaim of expired key = %v, %v", ok, err)
	}

	// Releasing a held key makes it claimable again before expiry.
	if err := st.ReleaseDedup(ctx, "u1|WEEKLY_REPORT_DUE"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, err := st.ClaimDedup(ctx, "u1|WEEKLY_REPORT_DUE", until); err != nil || !ok {
		t.Fatalf("claim after release = %v, %v", ok, err)
	}
}

func TestQueueLifecycle(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	n := &model.Notification{UserID: "u1", OrgID: "o1", Type: model.TypeMeetingReminder,
		Category: model.CategoryMeeting, Title: "t", Message: "m"}
	if err := st.CreateNotification(ctx, n); err != nil {
		t.Fatalf("create notification: %v", err)
	}

	e := &model.QueueEntry{NotificationID: n.ID, ScheduledFor: now.Add(-time.Minute)}
	if err := st.EnqueueDelivery(ctx, e); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if e.ID == "" || e.Status != model.QueuePending || e.MaxAttempts != 3 || e.JobType != "deliver" {
		t.Fatalf("enqueue defaults: %+v", e)
	}

	if depth, err := st.QueueDepth(ctx); err != nil || depth != 1 {
		t.Fatalf("depth = %d, %v", depth, err)
	}

	due, err := st.DuePendingEntries(ctx, now, 10)
	if err != nil || len(due) != 1 {
		t.Fatalf("due = %d, %v", len(due), err)
	}

	attempts, ok, err := st.ClaimEntry(ctx, e.ID, now)
	if err != nil || !ok || attempts != 1 {
		t.Fatalf("claim = %d, %v, %v", attempts, ok, err)
	}
	// The entry is processing now: not claimable, not listed as due.
	if _, ok, _ := st.ClaimEntry(ctx, e.ID, now); ok {
		t.Fatal("processing entry must not claim again")
	}
	if due, _ := st.DuePendingEntries(ctx, now, 10); len(due) != 0 {
		t.Fatal("processing entry must not list as due")
	}

	// Reschedule puts it back, held until next_attempt_at.
	next := now.Add(5 * time.Minute)
	if err := st.RescheduleEntry(ctx, e.ID, next, "smtp timeout"); err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if due, _ := st.DuePendingEntries(ctx, now, 10); len(due) != 0 {
		t.Fatal("held entry listed as due too early")
	}
	due, err = st.DuePendingEntries(ctx, next.Add(time.Second), 10)
	if err != nil || len(due) != 1 {
		t.Fatalf("due after hold = %d, %v", len(due), err)
	}
	if due[0].Attempts != 1 || due[0].LastError != "smtp timeout" {
		t.Fatalf("rescheduled entry = %+v", due[0])
	}

	// Claim again and complete.
	attempts, ok, err = st.ClaimEntry(ctx, e.ID, next)
	if err != nil || !ok || attempts != 2 {
		t.Fatalf("second claim = %d, %v, %v", attempts, ok, err)
	}
	if err := st.CompleteEntry(ctx, e.ID, next); err != nil {
		t.Fatalf("complete: %v", err)
	}
	got, err := st.GetQueueEntry(ctx, e.ID)
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if got.Status != model.QueueCompleted || got.ProcessedAt == nil {
		t.Fatalf("completed entry = %+v", got)
	}
	if depth, _ := st.QueueDepth(ctx); depth != 0 {
		t.Fatalf("depth after complete = %d", depth)
	}

	if err := st.FailEntry(ctx, "missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("fail on missing entry = %v", err)
	}
}

func TestRequeueStaleProcessing(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	n := &model.Notification{UserID: "u1", OrgID: "o1", Type: model.TypeWeeklyReportDue,
		Category: model.CategoryReport, Title: "t", Message: "m"}
	if err := st.CreateNotification(ctx, n); err != nil {
		t.Fatalf("create notification: %v", err)
	}

	// orphan was claimed by a run that died an hour ago; live was claimed
	// just now.
	orphan := &model.QueueEntry{NotificationID: n.ID, ScheduledFor: now.Add(-2 * time.Hour)}
	live := &model.QueueEntry{NotificationID: n.ID, ScheduledFor: now.Add(-2 * time.Hour)}
	for _, e := range []*model.QueueEntry{orphan, live} {
		if err := st.EnqueueDelivery(ctx, e); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	if _, ok, err := st.ClaimEntry(ctx, orphan.ID, now.Add(-time.Hour)); err != nil || !ok {
		t.Fatalf("claim orphan: %v %v", ok, err)
	}
	if _, ok, err := st.ClaimEntry(ctx, live.ID, now); err != nil || !ok {
		t.Fatalf("claim live: %v %v", ok, err)
	}

	requeued, err := st.RequeueStaleProcessing(ctx, now.Add(-10*time.Minute))
	if err != nil {
		t.Fatalf("requeue: %v", err)
	}
	if requeued != 1 {
		t.Fatalf("requeued = %d, want 1", requeued)
	}

	got, err := st.GetQueueEntry(ctx, orphan.ID)
	if err != nil {
		t.Fatalf("get orphan: %v", err)
	}
	// Back to pending with the interrupted attempt still on the books.
	if got.Status != model.QueuePending || got.Attempts != 1 {
		t.Fatalf("requeued entry = %+v", got)
	}
	if due, _ := st.DuePendingEntries(ctx, now, 10); len(due) != 1 || due[0].ID != orphan.ID {
		t.Fatalf("due after requeue = %+v", due)
	}
	if got, _ := st.GetQueueEntry(ctx, live.ID); got.Status != model.QueueProcessing {
		t.Fatalf("live claim disturbed: %+v", got)
	}
}

func TestPreferences(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	if _, err := st.GetPreferences(ctx, "u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	p := model.DefaultPreferences("u1", "o1")
	p.ReportEmail = false
	if err := st.UpsertPreferences(ctx, p); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, err := st.GetPreferences(ctx, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ReportEmail || !got.ReportInApp {
		t.Fatalf("preferences = %+v", got)
	}

	// Upsert overwrites.
	p.ReportEmail = true
	if err := st.UpsertPreferences(ctx, p); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if got, _ := st.GetPreferences(ctx, "u1"); !got.ReportEmail {
		t.Fatal("upsert did not overwrite")
	}
}

func TestReportSettingsLazyDefault(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	got, err := st.GetReportSettings(ctx, "o1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	want := model.DefaultReportSettings("o1")
	if got.PlanDueDay != want.PlanDueDay || got.ReportDueTime != want.ReportDueTime || !got.Enforced {
		t.Fatalf("defaults = %+v", got)
	}
	if len(got.ReportReminderDays) != 2 || got.ReportReminderDays[0] != 4 {
		t.Fatalf("reminder days = %v", got.ReportReminderDays)
	}

	got.ReportDueDay = 4
	got.ReportDueTime = "16:00"
	got.ReportReminderDays = []int{3, 4}
	got.GraceHours = 12
	if err := st.UpdateReportSettings(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}
	again, err := st.GetReportSettings(ctx, "o1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if again.ReportDueDay != 4 || again.ReportDueTime != "16:00" || again.GraceHours != 12 {
		t.Fatalf("updated settings = %+v", again)
	}
	if len(again.ReportReminderDays) != 2 || again.ReportReminderDays[0] != 3 {
		t.Fatalf("updated reminder days = %v", again.ReportReminderDays)
	}
}

func TestMarkSubmissionOverdue(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()
	seedUser(t, st, "u1", "o1", model.RoleMember)
	week := time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC)

	// Absent row: created directly in the overdue state.
	transitioned, err := st.MarkSubmissionOverdue(ctx, model.KindReport, "u1", week)
	if err != nil || !transitioned {
		t.Fatalf("mark absent = %v, %v", transitioned, err)
	}
	sub, err := st.GetSubmission(ctx, model.KindReport, "u1", week)
	if err != nil {
		t.Fatalf("get submission: %v", err)
	}
	if sub.Status != model.SubmissionOverdue || sub.OrgID != "o1" {
		t.Fatalf("submission = %+v", sub)
	}

	// Already overdue: no transition.
	if transitioned, _ := st.MarkSubmissionOverdue(ctx, model.KindReport, "u1", week); transitioned {
		t.Fatal("already-overdue row reported a transition")
	}

	// Submitted rows are never downgraded.
	_, err = st.db.Exec(
		`INSERT INTO weekly_plans (id, org_id, user_id, week_start, status) VALUES ('p1', 'o1', 'u1', ?, 'submitted')`,
		week)
	if err != nil {
		t.Fatalf("seed plan: %v", err)
	}
	if transitioned, _ := st.MarkSubmissionOverdue(ctx, model.KindPlan, "u1", week); transitioned {
		t.Fatal("submitted row was downgraded")
	}

	if n, err := st.CountSubmitted(ctx, model.KindPlan, "o1", week); err != nil || n != 1 {
		t.Fatalf("plans submitted = %d, %v", n, err)
	}
	if n, err := st.CountSubmitted(ctx, model.KindReport, "o1", week); err != nil || n != 0 {
		t.Fatalf("reports submitted = %d, %v", n, err)
	}
}

func TestUserQueries(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()
	seedUser(t, st, "boss", "o1", model.RoleManager)
	seedUser(t, st, "root", "o1", model.RoleAdmin)
	seedUser(t, st, "u1", "o1", model.RoleMember)
	seedUser(t, st, "elsewhere", "o2", model.RoleMember)

	users, err := st.ListActiveUsers(ctx, "o1")
	if err != nil || len(users) != 3 {
		t.Fatalf("active users = %d, %v", len(users), err)
	}

	leads, err := st.ListUsersByRole(ctx, "o1", model.RoleAdmin, model.RoleManager)
	if err != nil || len(leads) != 2 {
		t.Fatalf("leads = %d, %v", len(leads), err)
	}

	u, err := st.GetUser(ctx, "u1")
	if err != nil || u.OrgID != "o1" || u.Role != model.RoleMember {
		t.Fatalf("user = %+v, %v", u, err)
	}
	if _, err := st.GetUser(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
