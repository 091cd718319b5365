package authz

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Denial codes returned in the error envelope.
const (
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeInternal     = "INTERNAL_ERROR"
)

// SessionUser is the identity carried by a session. The role here is
// advisory only: authorization decisions always use the persisted record.
type SessionUser struct {
	ID    int64
	Email string
	Name  string
	Role  string
}

// User is the persisted account record, the source of truth for the role.
type User struct {
	ID        int64
	Email     string
	Name      string
	Role      string
	IsDeleted bool
}

// Principal is the authenticated identity attached to an allowed request.
type Principal struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  Role   `json:"role"`
}

// Denial is a terminal authorization outcome rendered as
// {success:false, error, code}.
type Denial struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"error"`
}

// SessionProvider resolves the current session identity. A nil SessionUser
// with a nil error means no session.
type SessionProvider interface {
	Session(ctx context.Context) (*SessionUser, error)
}

// UserStore loads persisted user records. A nil user with a nil error means
// the record does not exist.
type UserStore interface {
	FindUserByID(ctx context.Context, id int64) (*User, error)
}

// AuditSink records security events, best effort.
type AuditSink interface {
	RecordEvent(ctx context.Context, event Event) error
}

// Event is an append-only audit record.
type Event struct {
	UserID   int64
	Action   string
	Resource string
	Details  map[string]any
	At       time.Time
}

// SessionProviderFunc adapts a function to the SessionProvider interface.
type SessionProviderFunc func(ctx context.Context) (*SessionUser, error)

// Session implements SessionProvider.
func (f SessionProviderFunc) Session(ctx context.Context) (*SessionUser, error) {
	return f(ctx)
}

// Gate resolves the caller's identity and produces allow/deny decisions for
// role-gated operations. Failures while loading the session or the user
// record never escape as raw errors: they become a 500 denial.
type Gate struct {
	sessions SessionProvider
	users    UserStore
	audit    AuditSink
	logger   *slog.Logger
	now      func() time.Time
}

// NewGate constructs a Gate. The audit sink may be nil.
func NewGate(sessions SessionProvider, users UserStore, audit AuditSink, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		sessions: sessions,
		users:    users,
		audit:    audit,
		logger:   logger,
		now:      time.Now,
	}
}

// RequireAuth authenticates the caller: load the session, then re-fetch the
// persisted user record. The persisted role always wins over whatever the
// session carries. A user record without a recognised role still
// authenticates; role checks fail closed later in the RequireRole family.
func (g *Gate) RequireAuth(ctx context.Context) (*Principal, *Denial) {
	sess, err := g.sessions.Session(ctx)
	if err != nil {
		g.logger.Error("authz load session", slog.Any("error", err))
		return nil, g.denyInternal()
	}
	if sess == nil || sess.ID == 0 {
		return nil, denyUnauthorized("authentication required")
	}

	user, err := g.users.FindUserByID(ctx, sess.ID)
	if err != nil {
		g.logger.Error("authz load user", slog.Int64("user_id", sess.ID), slog.Any("error", err))
		return nil, g.denyInternal()
	}
	if user == nil || user.IsDeleted {
		return nil, denyUnauthorized("authentication required")
	}

	role, _ := ParseRole(user.Role)
	return &Principal{
		ID:    user.ID,
		Email: user.Email,
		Name:  user.Name,
		Role:  role,
	}, nil
}

// RequireRole authenticates and then checks the persisted role against the
// minimum using the total privilege order.
func (g *Gate) RequireRole(ctx context.Context, min Role) (*Principal, *Denial) {
	principal, denial := g.RequireAuth(ctx)
	if denial != nil {
		return nil, denial
	}
	if !principal.Role.AtLeast(min) {
		g.recordDenial(ctx, principal, min)
		return nil, denyForbidden()
	}
	return principal, nil
}

// RequireAdmin requires the exact ADMIN role.
func (g *Gate) RequireAdmin(ctx context.Context) (*Principal, *Denial) {
	principal, denial := g.RequireAuth(ctx)
	if denial != nil {
		return nil, denial
	}
	if principal.Role != RoleAdmin {
		g.recordDenial(ctx, principal, RoleAdmin)
		return nil, denyForbidden()
	}
	return principal, nil
}

// RequireOperatorOrAdmin requires OPERATOR privilege or better.
func (g *Gate) RequireOperatorOrAdmin(ctx context.Context) (*Principal, *Denial) {
	return g.RequireRole(ctx, RoleOperator)
}

// recordDenial emits an audit event for an authorization denial. Audit
// failures are logged and swallowed, never failing the decision.
func (g *Gate) recordDenial(ctx context.Context, principal *Principal, required Role) {
	if g.audit == nil {
		return
	}
	event := Event{
		UserID:   principal.ID,
		Action:   "authz.denied",
		Resource: "role:" + string(required),
		Details: map[string]any{
			"actual_role":   string(principal.Role),
			"required_role": string(required),
		},
		At: g.now(),
	}
	if err := g.audit.RecordEvent(ctx, event); err != nil {
		g.logger.Warn("authz audit write failed", slog.Any("error", err))
	}
}

func (g *Gate) denyInternal() *Denial {
	return &Denial{
		Status:  http.StatusInternalServerError,
		Code:    CodeInternal,
		Message: "internal error during authorization",
	}
}

func denyUnauthorized(message string) *Denial {
	return &Denial{
		Status:  http.StatusUnauthorized,
		Code:    CodeUnauthorized,
		Message: message,
	}
}

func denyForbidden() *Denial {
	return &Denial{
		Status:  http.StatusForbidden,
		Code:    CodeForbidden,
		Message: "insufficient privileges",
	}
}
