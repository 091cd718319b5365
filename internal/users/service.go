package users

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/powerdeck/powerdeck/internal/audit"
	"github.com/powerdeck/powerdeck/internal/authz"
	"github.com/powerdeck/powerdeck/internal/cache"
	"github.com/powerdeck/powerdeck/internal/shared"
)

// TagUsers groups every cached user listing for invalidation.
const TagUsers = "users"

// Service handles user management. Role changes and deletions invalidate the
// cached user listings so the authorization gate and the dashboard pick up
// the new role on the next request.
type Service struct {
	repo   RepositoryPort
	cache  *cache.Cache
	audit  *audit.Service
	logger *slog.Logger
}

// NewService builds a Service instance. Cache and audit may be nil.
func NewService(repo RepositoryPort, cacheLayer *cache.Cache, auditSvc *audit.Service, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cacheLayer, audit: auditSvc, logger: logger}
}

// List returns all active users, served from cache when possible.
func (s *Service) List(ctx context.Context) ([]User, error) {
	const key = "users:list"
	if s.cache == nil {
		return s.repo.List(ctx)
	}
	var users []User
	err := s.cache.GetOrSet(ctx, key, &users, func(loadCtx context.Context) (any, error) {
		return s.repo.List(loadCtx)
	}, cache.Options{Tags: []string{TagUsers}})
	return users, err
}

// FindByID loads one user record.
func (s *Service) FindByID(ctx context.Context, id int64) (*User, error) {
	return s.repo.FindByID(ctx, id)
}

// Create registers a new account with a bcrypt password hash.
func (s *Service) Create(ctx context.Context, actorID int64, input CreateInput) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	user, err := s.repo.Create(ctx, input.Email, input.Name, string(hash), input.Role)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	s.record(ctx, actorID, "user.created", user.ID, map[string]any{"email": user.Email, "role": user.Role})
	return user, nil
}

// UpdateRole changes a user's persisted role. The change takes effect on the
// target's next request because the gate re-reads the record every time.
func (s *Service) UpdateRole(ctx context.Context, actorID, id int64, role string) (*User, error) {
	user, err := s.repo.UpdateRole(ctx, id, role)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	s.record(ctx, actorID, "user.role_changed", id, map[string]any{"new_role": role})
	return user, nil
}

// SoftDelete deactivates an account. Existing sessions stop authenticating
// immediately because the gate rejects deleted records.
func (s *Service) SoftDelete(ctx context.Context, actorID, id int64) error {
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	s.record(ctx, actorID, "user.deleted", id, nil)
	return nil
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache != nil {
		s.cache.InvalidateByTags(ctx, []string{TagUsers})
	}
}

func (s *Service) record(ctx context.Context, actorID int64, action string, targetID int64, details map[string]any) {
	if s.audit == nil {
		return
	}
	if details == nil {
		details = map[string]any{}
	}
	details["target_user_id"] = targetID
	event := audit.Event{UserID: actorID, Action: action, Resource: "users", Details: details}
	if err := s.audit.Record(ctx, event); err != nil {
		s.logger.Warn("record user event", slog.Any("error", err))
	}
}

// GateStore adapts the repository to the authorization gate's user lookup.
type GateStore struct {
	repo RepositoryPort
}

// NewGateStore wraps the repository for use as an authz.UserStore.
func NewGateStore(repo RepositoryPort) *GateStore {
	return &GateStore{repo: repo}
}

// FindUserByID implements authz.UserStore. Missing records come back as
// (nil, nil) so the gate treats them as an authentication failure rather
// than a server fault.
func (g *GateStore) FindUserByID(ctx context.Context, id int64) (*authz.User, error) {
	user, err := g.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &authz.User{
		ID:        user.ID,
		Email:     user.Email,
		Name:      user.Name,
		Role:      user.Role,
		IsDeleted: user.IsDeleted,
	}, nil
}
