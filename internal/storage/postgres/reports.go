package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tavarakyyti/chat/internal/chat"
	"github.com/tavarakyyti/chat/internal/report"
)

// ReportStore implements report.Store.
type ReportStore struct {
	db *sql.DB
}

// NewReportStore creates a ReportStore backed by db.
func NewReportStore(db *sql.DB) *ReportStore {
	return &ReportStore{db: db}
}

const reportColumns = `id, reporter_id, message_id, conversation_id, reason, status, created_at, updated_at`

func scanReport(row interface{ Scan(...any) error }) (*report.Report, error) {
	var r report.Report
	var status string
	if err := row.Scan(&r.ID, &r.ReporterID, &r.MessageID, &r.ConversationID, &r.Reason, &status,
		&r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Status = report.Status(status)
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return &r, nil
}

// Create implements report.Store.
func (s *ReportStore) Create(ctx context.Context, r *report.Report) error {
	const query = `
		INSERT INTO chat_reports (` + reportColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.ReporterID, r.MessageID, r.ConversationID, r.Reason, string(r.Status),
		r.CreatedAt.UTC(), r.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("postgres: insert report: %w", err)
	}
	return nil
}

// Get implements report.Store.
func (s *ReportStore) Get(ctx context.Context, id string) (*report.Report, error) {
	r, err := scanReport(s.db.QueryRowContext(ctx,
		`SELECT `+reportColumns+` FROM chat_reports WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, chat.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: get report: %w", err)
	}
	return r, nil
}

// List implements report.Store.
func (s *ReportStore) List(ctx context.Context, status report.Status, limit int) ([]*report.Report, error) {
	if limit <= 0 {
		limit = report.MaxListSize
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+reportColumns+`
		FROM chat_reports
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC, seq DESC
		LIMIT $2`, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list reports: %w", err)
	}

	out := make([]*report.Report, 0)
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("postgres: scan report: %w", err)
		}
		out = append(out, r)
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateStatus implements report.Store.
func (s *ReportStore) UpdateStatus(ctx context.Context, id string, from, to report.Status, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE chat_reports SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2`, id, string(from), string(to), at.UTC())
	if err != nil {
		return false, fmt.Errorf("postgres: update report status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("postgres: update report status: %w", err)
	}
	return n > 0, nil
}
