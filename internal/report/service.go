package report

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tavarakyyti/chat/internal/chat"
	"github.com/tavarakyyti/chat/internal/identity"
	"github.com/tavarakyyti/chat/internal/metrics"
)

// MaxListSize caps the admin report listing.
const MaxListSize = 500

// Input is the payload of a report request.
type Input struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
	Reason         string `json:"reason"`
}

// Service files reports and applies admin status changes.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService creates a Service backed by store.
func NewService(store Store) *Service {
	return &Service{
		store: store,
		now:   func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
}

// Report files a new open report. At least one of the message or
// conversation references is required; membership is not checked.
func (s *Service) Report(ctx context.Context, reporterID string, in Input) (*Report, error) {
	if reporterID == "" {
		return nil, chat.ErrUnauthorized
	}
	convID := strings.TrimSpace(in.ConversationID)
	msgID := strings.TrimSpace(in.MessageID)
	if convID == "" && msgID == "" {
		return nil, chat.ErrInvalidPayload
	}

	now := s.now()
	r := &Report{
		ID:             uuid.NewString(),
		ReporterID:     reporterID,
		MessageID:      msgID,
		ConversationID: convID,
		Reason:         chat.ClipText(in.Reason, chat.MaxReasonChars),
		Status:         StatusOpen,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.Create(ctx, r); err != nil {
		return nil, fmt.Errorf("report: create: %w", err)
	}
	metrics.ReportsTotal.WithLabelValues(string(StatusOpen)).Inc()
	log.Printf("report: created id=%s reporter=%s conversation=%s message=%s", r.ID, reporterID, convID, msgID)
	return r, nil
}

// SetStatus moves a report to status. Only admins may call it. Setting the
// current status again succeeds without a write.
func (s *Service) SetStatus(ctx context.Context, actor identity.Identity, id string, status Status) (*Report, error) {
	if actor.UserID == "" {
		return nil, chat.ErrUnauthorized
	}
	if !actor.IsAdmin {
		return nil, chat.ErrForbidden
	}
	if !status.Valid() {
		return nil, chat.ErrInvalidStatus
	}

	current, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == status {
		return current, nil
	}
	if !CanTransition(current.Status, status) {
		return nil, chat.ErrInvalidStatus
	}

	now := s.now()
	ok, err := s.store.UpdateStatus(ctx, id, current.Status, status, now)
	if err != nil {
		return nil, fmt.Errorf("report: update status: %w", err)
	}
	if !ok {
		// Lost a race with another admin; re-check against the new state.
		latest, err := s.get(ctx, id)
		if err != nil {
			return nil, err
		}
		if latest.Status == status {
			return latest, nil
		}
		return nil, chat.ErrInvalidStatus
	}

	current.Status = status
	current.UpdatedAt = now
	metrics.ReportsTotal.WithLabelValues(string(status)).Inc()
	log.Printf("report: status id=%s status=%s admin=%s", id, status, actor.UserID)
	return current, nil
}

// List returns the newest reports, optionally filtered by status. Admin only.
func (s *Service) List(ctx context.Context, actor identity.Identity, status Status) ([]*Report, error) {
	if actor.UserID == "" {
		return nil, chat.ErrUnauthorized
	}
	if !actor.IsAdmin {
		return nil, chat.ErrForbidden
	}
	if status != "" && !status.Valid() {
		return nil, chat.ErrInvalidStatus
	}
	list, err := s.store.List(ctx, status, MaxListSize)
	if err != nil {
		return nil, fmt.Errorf("report: list: %w", err)
	}
	return list, nil
}

func (s *Service) get(ctx context.Context, id string) (*Report, error) {
	if id == "" {
		return nil, chat.ErrNotFound
	}
	r, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, chat.ErrNotFound) {
			return nil, chat.ErrNotFound
		}
		return nil, fmt.Errorf("report: get: %w", err)
	}
	return r, nil
}
