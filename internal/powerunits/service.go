package powerunits

import (
	"context"
	"log/slog"
	"time"

	"github.com/powerdeck/powerdeck/internal/audit"
	"github.com/powerdeck/powerdeck/internal/cache"
)

// TagPowerUnits groups cached unit data for invalidation.
const TagPowerUnits = "power-units"

// Service coordinates power unit operations. The listing is the hottest
// read on the dashboard, so it is served stale while a background refresh
// runs instead of blocking on the loader.
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

// List returns all units, serving stale data while revalidating.
func (s *Service) List(ctx context.Context) ([]PowerUnit, error) {
	if s.cache == nil {
		return s.repo.List(ctx)
	}
	var units []PowerUnit
	err := s.cache.GetStaleWhileRevalidate(ctx, "power-units:list", &units, func(loadCtx context.Context) (any, error) {
		return s.repo.List(loadCtx)
	}, cache.Options{
		TTL:                  30 * time.Second,
		Tags:                 []string{TagPowerUnits},
		StaleWhileRevalidate: 5 * time.Minute,
	})
	return units, err
}

// Get loads one unit directly; single-unit reads are cheap enough to skip
// the cache.
func (s *Service) Get(ctx context.Context, id int64) (*PowerUnit, error) {
	return s.repo.FindByID(ctx, id)
}

// Create registers a new unit.
func (s *Service) Create(ctx context.Context, actorID int64, input CreateInput) (*PowerUnit, error) {
	unit, err := s.repo.Create(ctx, PowerUnit{
		Name:       input.Name,
		Location:   input.Location,
		CapacityKW: input.CapacityKW,
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	s.record(ctx, actorID, "power_unit.created", unit.ID, map[string]any{"name": unit.Name})
	return unit, nil
}

// Update edits a unit's descriptive fields.
func (s *Service) Update(ctx context.Context, actorID, id int64, input UpdateInput) (*PowerUnit, error) {
	unit, err := s.repo.Update(ctx, PowerUnit{
		ID:         id,
		Name:       input.Name,
		Location:   input.Location,
		CapacityKW: input.CapacityKW,
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	s.record(ctx, actorID, "power_unit.updated", id, nil)
	return unit, nil
}

// SetStatus transitions a unit between states.
func (s *Service) SetStatus(ctx context.Context, actorID, id int64, status Status) (*PowerUnit, error) {
	if !status.Valid() {
		return nil, ErrUnknownStatus
	}
	unit, err := s.repo.UpdateStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	s.record(ctx, actorID, "power_unit.status_changed", id, map[string]any{"status": string(status)})
	return unit, nil
}

// Delete removes a unit.
func (s *Service) Delete(ctx context.Context, actorID, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	s.record(ctx, actorID, "power_unit.deleted", id, nil)
	return nil
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache != nil {
		s.cache.InvalidateByTags(ctx, []string{TagPowerUnits})
	}
}

func (s *Service) record(ctx context.Context, actorID int64, action string, unitID int64, details map[string]any) {
	if s.audit == nil {
		return
	}
	if details == nil {
		details = map[string]any{}
	}
	details["unit_id"] = unitID
	event := audit.Event{UserID: actorID, Action: action, Resource: "power_units", Details: details}
	if err := s.audit.Record(ctx, event); err != nil {
		s.logger.Warn("record power unit event", slog.Any("error", err))
	}
}
