package shared

import "context"

type sessionContextKey struct{}

// ContextWithSession stores the request session in the context. The session
// middleware is the only writer; handlers read it back with
// SessionFromContext.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext returns the session placed by the middleware, or nil
// on routes mounted outside the session stack.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*Session)
	return sess
}
