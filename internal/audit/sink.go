package audit

import (
	"context"

	"github.com/powerdeck/powerdeck/internal/authz"
)

// Sink adapts the audit service to the authorization gate's event contract.
type Sink struct {
	service *Service
}

// NewSink wraps the service for use as an authz.AuditSink.
func NewSink(service *Service) *Sink {
	return &Sink{service: service}
}

// RecordEvent implements authz.AuditSink.
func (s *Sink) RecordEvent(ctx context.Context, event authz.Event) error {
	return s.service.Record(ctx, Event{
		UserID:   event.UserID,
		Action:   event.Action,
		Resource: event.Resource,
		Details:  event.Details,
		At:       event.At,
	})
}
