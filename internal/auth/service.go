package auth

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/powerdeck/powerdeck/internal/audit"
	"github.com/powerdeck/powerdeck/internal/shared"
)

// Service wraps authentication business rules. Every failure path returns
// the same ErrInvalidCredentials so the response does not leak whether the
// email exists.
type Service struct {
	repo   Repository
	audit  *audit.Service
	logger *slog.Logger
}

// NewService constructs a new Service. The audit service may be nil.
func NewService(repo Repository, auditSvc *audit.Service, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: auditSvc, logger: logger}
}

// Authenticate validates email/password credentials against the user record.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		s.recordLogin(ctx, 0, false, map[string]any{"email": email, "reason": "unknown_email"})
		return nil, shared.ErrInvalidCredentials
	}
	if user.IsDeleted {
		s.recordLogin(ctx, user.ID, false, map[string]any{"reason": "deleted_account"})
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.recordLogin(ctx, user.ID, false, map[string]any{"reason": "bad_password"})
		return nil, shared.ErrInvalidCredentials
	}
	s.recordLogin(ctx, user.ID, true, nil)
	return user, nil
}

// RegisterSession persists the session metadata in postgres.
func (s *Service) RegisterSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	return s.repo.CreateSession(ctx, id, userID, expiresAt, ip, ua)
}

// RemoveSession deletes a session record from postgres.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	return s.repo.DeleteSession(ctx, id)
}

func (s *Service) recordLogin(ctx context.Context, userID int64, success bool, details map[string]any) {
	if s.audit == nil {
		return
	}
	action := "login.failure"
	if success {
		action = "login.success"
	}
	event := audit.Event{UserID: userID, Action: action, Resource: "auth", Details: details}
	if err := s.audit.Record(ctx, event); err != nil {
		s.logger.Warn("record login event", slog.Any("error", err))
	}
}
