package voicebot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/powerdeck/powerdeck/internal/audit"
	"github.com/powerdeck/powerdeck/internal/cache"
)

// TagVoicebotCalls groups cached call data for invalidation.
const TagVoicebotCalls = "voicebot-calls"

// listLimit caps the dashboard call listing.
const listLimit = 200

// Service coordinates voicebot call records.
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

// List returns recent calls, cache first.
func (s *Service) List(ctx context.Context) ([]Call, error) {
	if s.cache == nil {
		return s.repo.List(ctx, listLimit)
	}
	var calls []Call
	err := s.cache.GetOrSet(ctx, "voicebot:list", &calls, func(loadCtx context.Context) (any, error) {
		return s.repo.List(loadCtx, listLimit)
	}, cache.Options{Tags: []string{TagVoicebotCalls}})
	return calls, err
}

// Get loads one call record.
func (s *Service) Get(ctx context.Context, id int64) (*Call, error) {
	return s.repo.FindByID(ctx, id)
}

// Ingest records a finished call.
func (s *Service) Ingest(ctx context.Context, actorID int64, input IngestInput) (*Call, error) {
	startedAt, err := time.Parse(time.RFC3339, input.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("voicebot: invalid started_at: %w", err)
	}
	call, err := s.repo.Insert(ctx, Call{
		CallSID:         input.CallSID,
		Caller:          input.Caller,
		Intent:          input.Intent,
		Status:          input.Status,
		DurationSeconds: input.DurationSeconds,
		Transcript:      input.Transcript,
		StartedAt:       startedAt,
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	s.record(ctx, actorID, "voicebot_call.ingested", call.ID)
	return call, nil
}

// Delete removes a call record.
func (s *Service) Delete(ctx context.Context, actorID, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	s.record(ctx, actorID, "voicebot_call.deleted", id)
	return nil
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache != nil {
		s.cache.InvalidateByTags(ctx, []string{TagVoicebotCalls})
	}
}

func (s *Service) record(ctx context.Context, actorID int64, action string, callID int64) {
	if s.audit == nil {
		return
	}
	event := audit.Event{
		UserID:   actorID,
		Action:   action,
		Resource: "voicebot_calls",
		Details:  map[string]any{"call_id": callID},
	}
	if err := s.audit.Record(ctx, event); err != nil {
		s.logger.Warn("record voicebot event", slog.Any("error", err))
	}
}
