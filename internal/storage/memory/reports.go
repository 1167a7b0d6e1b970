package memory

import (
	"context"
	"sync"
	"time"

	"github.com/tavarakyyti/chat/internal/chat"
	"github.com/tavarakyyti/chat/internal/report"
)

// ReportStore keeps reports in insertion order.
type ReportStore struct {
	mu      sync.RWMutex
	reports []*report.Report
}

// NewReportStore creates an empty ReportStore.
func NewReportStore() *ReportStore {
	return &ReportStore{}
}

// Create implements report.Store.
func (s *ReportStore) Create(ctx context.Context, r *report.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.reports = append(s.reports, &cp)
	return nil
}

// Get implements report.Store.
func (s *ReportStore) Get(ctx context.Context, id string) (*report.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.reports {
		if r.ID == id {
			cp := *r
			return &cp, nil
		}
	}
	return nil, chat.ErrNotFound
}

// List implements report.Store. Reports are appended in creation order, so
// walking backwards yields newest first.
func (s *ReportStore) List(ctx context.Context, status report.Status, limit int) ([]*report.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*report.Report, 0)
	for i := len(s.reports) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		r := s.reports[i]
		if status != "" && r.Status != status {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

// UpdateStatus implements report.Store.
func (s *ReportStore) UpdateStatus(ctx context.Context, id string, from, to report.Status, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.reports {
		if r.ID == id && r.Status == from {
			r.Status = to
			r.UpdatedAt = at
			return true, nil
		}
	}
	return false, nil
}
