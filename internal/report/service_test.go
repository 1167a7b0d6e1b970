package report_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/tavarakyyti/chat/internal/chat"
	"github.com/tavarakyyti/chat/internal/identity"
	"github.com/tavarakyyti/chat/internal/report"
	"github.com/tavarakyyti/chat/internal/storage/memory"
)

var (
	admin = identity.Identity{UserID: "admin", IsAdmin: true}
	user  = identity.Identity{UserID: "u1"}
)

func newService() *report.Service {
	return report.NewService(memory.NewReportStore())
}

func TestReport_RequiresReference(t *testing.T) {
	svc := newService()
	_, err := svc.Report(context.Background(), "u1", report.Input{Reason: "spam"})
	if !errors.Is(err, chat.ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
}

func TestReport_DefaultsOpenAndClipsReason(t *testing.T) {
	svc := newService()
	r, err := svc.Report(context.Background(), "u1", report.Input{
		MessageID: "m1",
		Reason:    strings.Repeat("x", chat.MaxReasonChars+10),
	})
	if err != nil {
		t.Fatalf("Report() error: %v", err)
	}
	if r.Status != report.StatusOpen {
		t.Errorf("expected status open, got %q", r.Status)
	}
	if n := len([]rune(r.Reason)); n != chat.MaxReasonChars {
		t.Errorf("expected reason clipped to %d, got %d", chat.MaxReasonChars, n)
	}
	if r.ReporterID != "u1" || r.MessageID != "m1" || r.ConversationID != "" {
		t.Errorf("unexpected report refs: %+v", r)
	}
}

func TestSetStatus_AdminOnly(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	r, _ := svc.Report(ctx, "u1", report.Input{ConversationID: "c1", Reason: "abuse"})

	if _, err := svc.SetStatus(ctx, user, r.ID, report.StatusClosed); !errors.Is(err, chat.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for non-admin, got %v", err)
	}
	if _, err := svc.List(ctx, user, ""); !errors.Is(err, chat.ErrForbidden) {
		t.Fatalf("expected ErrForbidden listing as non-admin, got %v", err)
	}
}

func TestSetStatus_Lifecycle(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	r, _ := svc.Report(ctx, "u1", report.Input{ConversationID: "c1", Reason: "abuse"})

	steps := []struct {
		status  report.Status
		wantErr error
	}{
		{"archived", chat.ErrInvalidStatus},
		{report.StatusReviewing, nil},
		{report.StatusReviewing, nil}, // same status is a no-op
		{report.StatusOpen, chat.ErrInvalidStatus},
		{report.StatusClosed, nil},
		{report.StatusReviewing, chat.ErrInvalidStatus},
	}
	for _, step := range steps {
		got, err := svc.SetStatus(ctx, admin, r.ID, step.status)
		if step.wantErr != nil {
			if !errors.Is(err, step.wantErr) {
				t.Fatalf("SetStatus(%q): expected %v, got %v", step.status, step.wantErr, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("SetStatus(%q) error: %v", step.status, err)
		}
		if got.Status != step.status {
			t.Errorf("expected status %q, got %q", step.status, got.Status)
		}
	}
}

func TestSetStatus_OpenToClosed(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	r, _ := svc.Report(ctx, "u1", report.Input{MessageID: "m1"})

	got, err := svc.SetStatus(ctx, admin, r.ID, report.StatusClosed)
	if err != nil {
		t.Fatalf("SetStatus() error: %v", err)
	}
	if got.Status != report.StatusClosed {
		t.Errorf("expected closed, got %q", got.Status)
	}
}

func TestSetStatus_NotFound(t *testing.T) {
	svc := newService()
	_, err := svc.SetStatus(context.Background(), admin, "missing", report.StatusClosed)
	if !errors.Is(err, chat.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestList_NewestFirstWithFilter(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	first, _ := svc.Report(ctx, "u1", report.Input{MessageID: "m1"})
	second, _ := svc.Report(ctx, "u2", report.Input{MessageID: "m2"})
	if _, err := svc.SetStatus(ctx, admin, first.ID, report.StatusClosed); err != nil {
		t.Fatalf("SetStatus() error: %v", err)
	}

	all, err := svc.List(ctx, admin, "")
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(all) != 2 || all[0].ID != second.ID || all[1].ID != first.ID {
		t.Fatalf("expected [second, first], got %+v", all)
	}

	open, err := svc.List(ctx, admin, report.StatusOpen)
	if err != nil {
		t.Fatalf("List(open) error: %v", err)
	}
	if len(open) != 1 || open[0].ID != second.ID {
		t.Fatalf("expected only the open report, got %+v", open)
	}

	if _, err := svc.List(ctx, admin, "bogus"); !errors.Is(err, chat.ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus for unknown filter, got %v", err)
	}
}
