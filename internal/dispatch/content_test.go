package dispatch

import (
	"strings"
	"testing"

	"flowdesk/internal/model"
)

func TestContentRegistryCoversAllTypes(t *testing.T) {
	t.Parallel()
	for _, nt := range model.Types() {
		def, ok := contentRegistry[nt]
		if !ok {
			t.Fatalf("no content definition for %s", nt)
		}
		if def.Category == "" || def.Priority == "" || def.Title == "" || def.Message == "" {
			t.Fatalf("incomplete content definition for %s: %+v", nt, def)
		}
	}
}

func TestBuildContent(t *testing.T) {
	t.Parallel()
	def, title, message, err := buildContent(model.TypeTaskOverdue, map[string]any{
		"taskTitle":   "Ship release notes",
		"daysOverdue": 3,
	})
	if err != nil {
		t.Fatalf("buildContent error: %v", err)
	}
	if def.Category != model.CategoryTask || def.Priority != model.PriorityHigh {
		t.Fatalf("unexpected definition: %+v", def)
	}
	if title != "Task overdue" {
		t.Fatalf("title = %q", title)
	}
	if message != `"Ship release notes" is 3 day(s) overdue.` {
		t.Fatalf("message = %q", message)
	}
}

func TestBuildContentAnnouncementPassthrough(t *testing.T) {
	t.Parallel()
	_, title, message, err := buildContent(model.TypeSystemAnnouncement, map[string]any{
		"title":   "Maintenance window",
		"message": "We will be offline Saturday 02:00-03:00 UTC.",
	})
	if err != nil {
		t.Fatalf("buildContent error: %v", err)
	}
	if title != "Maintenance window" {
		t.Fatalf("title = %q", title)
	}
	if !strings.Contains(message, "offline Saturday") {
		t.Fatalf("message = %q", message)
	}
}

func TestBuildContentUnknownType(t *testing.T) {
	t.Parallel()
	if _, _, _, err := buildContent(model.NotificationType("NOPE"), nil); err == nil {
		t.Fatal("expected error for unknown type")
	}
}

func TestBuildContentMissingPayloadRendersEmpty(t *testing.T) {
	t.Parallel()
	_, _, message, err := buildContent(model.TypeTaskDueSoon, nil)
	if err != nil {
		t.Fatalf("buildContent error: %v", err)
	}
	if strings.Contains(message, "{{") {
		t.Fatalf("placeholder leaked into message: %q", message)
	}
}
