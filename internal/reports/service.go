package reports

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/powerdeck/powerdeck/internal/audit"
	"github.com/powerdeck/powerdeck/internal/cache"
)

// TagReports groups cached report data for invalidation.
const TagReports = "reports"

// ErrInvalidPeriod indicates a report range where the end precedes the start.
var ErrInvalidPeriod = errors.New("reports: period end before start")

// Service coordinates report operations. Listings and single lookups are
// cached; every write invalidates the whole tag.
type Service struct {
	repo   RepositoryPort
	cache  *cache.Cache
	audit  *audit.Service
	logger *slog.Logger
}

// NewService builds a Service. Cache and audit may be nil.
func NewService(repo RepositoryPort, cacheLayer *cache.Cache, auditSvc *audit.Service, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cacheLayer, audit: auditSvc, logger: logger}
}

// List returns all reports, cache first.
func (s *Service) List(ctx context.Context) ([]Report, error) {
	if s.cache == nil {
		return s.repo.List(ctx)
	}
	var reports []Report
	err := s.cache.GetOrSet(ctx, "reports:list", &reports, func(loadCtx context.Context) (any, error) {
		return s.repo.List(loadCtx)
	}, cache.Options{Tags: []string{TagReports}})
	return reports, err
}

// Get returns one report, cache first.
func (s *Service) Get(ctx context.Context, id int64) (*Report, error) {
	if s.cache == nil {
		return s.repo.FindByID(ctx, id)
	}
	var report Report
	err := s.cache.GetOrSet(ctx, fmt.Sprintf("reports:%d", id), &report, func(loadCtx context.Context) (any, error) {
		return s.repo.FindByID(loadCtx, id)
	}, cache.Options{Tags: []string{TagReports}})
	if err != nil {
		return nil, err
	}
	return &report, nil
}

// Create validates the period and stores a new report.
func (s *Service) Create(ctx context.Context, actorID int64, input CreateInput) (*Report, error) {
	start, err := time.Parse("2006-01-02", input.PeriodStart)
	if err != nil {
		return nil, fmt.Errorf("reports: invalid period start: %w", err)
	}
	end, err := time.Parse("2006-01-02", input.PeriodEnd)
	if err != nil {
		return nil, fmt.Errorf("reports: invalid period end: %w", err)
	}
	if end.Before(start) {
		return nil, ErrInvalidPeriod
	}
	report, err := s.repo.Create(ctx, Report{
		Title:       input.Title,
		PeriodStart: start,
		PeriodEnd:   end,
		TotalKWh:    input.TotalKWh,
		PeakKW:      input.PeakKW,
		Notes:       input.Notes,
		CreatedBy:   actorID,
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	s.record(ctx, actorID, "report.created", report.ID)
	return report, nil
}

// Update rewrites mutable fields of an existing report.
func (s *Service) Update(ctx context.Context, actorID, id int64, input UpdateInput) (*Report, error) {
	report, err := s.repo.Update(ctx, Report{
		ID:       id,
		Title:    input.Title,
		TotalKWh: input.TotalKWh,
		PeakKW:   input.PeakKW,
		Notes:    input.Notes,
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	s.record(ctx, actorID, "report.updated", id)
	return report, nil
}

// Delete removes a report.
func (s *Service) Delete(ctx context.Context, actorID, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	s.record(ctx, actorID, "report.deleted", id)
	return nil
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache != nil {
		s.cache.InvalidateByTags(ctx, []string{TagReports})
	}
}

func (s *Service) record(ctx context.Context, actorID int64, action string, reportID int64) {
	if s.audit == nil {
		return
	}
	event := audit.Event{
		UserID:   actorID,
		Action:   action,
		Resource: "reports",
		Details:  map[string]any{"report_id": reportID},
	}
	if err := s.audit.Record(ctx, event); err != nil {
		s.logger.Warn("record report event", slog.Any("error", err))
	}
}
