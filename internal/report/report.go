// Package report implements moderation reports: any authenticated user can
// flag a message or conversation, and admins move reports through the
// open -> reviewing -> closed lifecycle.
package report

import (
	"context"
	"time"
)

// Status is a report's position in the moderation lifecycle.
type Status string

const (
	StatusOpen      Status = "open"
	StatusReviewing Status = "reviewing"
	StatusClosed    Status = "closed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusReviewing, StatusClosed:
		return true
	}
	return false
}

// transitions lists the allowed forward moves. Reports are never reopened.
var transitions = map[Status][]Status{
	StatusOpen:      {StatusReviewing, StatusClosed},
	StatusReviewing: {StatusClosed},
}

// CanTransition reports whether a report in from may move to to.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Report references a message and/or a conversation. It does not own either.
type Report struct {
	ID             string    `json:"id"`
	ReporterID     string    `json:"reporterId"`
	MessageID      string    `json:"messageId,omitempty"`
	ConversationID string    `json:"conversationId,omitempty"`
	Reason         string    `json:"reason"`
	Status         Status    `json:"status"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Store persists reports. Lookups that match nothing return chat.ErrNotFound.
type Store interface {
	Create(ctx context.Context, r *Report) error
	Get(ctx context.Context, id string) (*Report, error)

	// List returns up to limit reports, newest first. An empty status
	// matches every report.
	List(ctx context.Context, status Status, limit int) ([]*Report, error)

	// UpdateStatus moves the report from one status to another and reports
	// whether a row matched both id and from.
	UpdateStatus(ctx context.Context, id string, from, to Status, at time.Time) (bool, error)
}
