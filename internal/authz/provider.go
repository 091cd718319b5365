package authz

import (
	"context"
	"strconv"

	"github.com/powerdeck/powerdeck/internal/shared"
)

// Session value keys written at login. All of them are advisory; the
// persisted user record is re-fetched on every authorization decision.
const (
	SessionEmailKey = "email"
	SessionNameKey  = "name"
	SessionRoleKey  = "role"
)

// SharedSessionProvider resolves the session identity placed in the request
// context by the session middleware. A missing, anonymous or malformed
// session reads as "no session", not as an error.
func SharedSessionProvider() SessionProvider {
	return SessionProviderFunc(func(ctx context.Context) (*SessionUser, error) {
		sess := shared.SessionFromContext(ctx)
		if sess == nil || sess.User() == "" {
			return nil, nil
		}
		id, err := strconv.ParseInt(sess.User(), 10, 64)
		if err != nil {
			return nil, nil
		}
		return &SessionUser{
			ID:    id,
			Email: sess.Get(SessionEmailKey),
			Name:  sess.Get(SessionNameKey),
			Role:  sess.Get(SessionRoleKey),
		}, nil
	})
}
