package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Service coordinates writing and reading the audit trail. Writes are best
// effort from the caller's point of view: Record returns the error, but
// security decisions must never depend on it succeeding.
type Service struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds an audit service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// Record appends one event to the trail.
func (s *Service) Record(ctx context.Context, event Event) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("audit: repository not configured")
	}
	if event.Action == "" {
		return fmt.Errorf("audit: event requires an action")
	}
	if event.At.IsZero() {
		event.At = s.now()
	}
	return s.repo.Insert(ctx, event)
}

// Trail returns a page of events, newest first.
func (s *Service) Trail(ctx context.Context, filters Filters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 50 {
		pageSize = 50
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize

	events, err := s.repo.Window(ctx, filters, pageSize+1, offset)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(events) > pageSize
	if hasNext {
		events = events[:pageSize]
	}
	return Result{
		Events: events,
		Paging: PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext},
	}, nil
}

// Export returns every event matching the filters without paging.
func (s *Service) Export(ctx context.Context, filters Filters) ([]Event, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("audit: repository not configured")
	}
	const exportLimit = 10000
	return s.repo.Window(ctx, filters, exportLimit, 0)
}
