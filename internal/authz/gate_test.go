package authz_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/powerdeck/powerdeck/internal/authz"
)

type stubSessions struct {
	user *authz.SessionUser
	err  error
}

func (s *stubSessions) Session(ctx context.Context) (*authz.SessionUser, error) {
	return s.user, s.err
}

type stubUsers struct {
	users map[int64]*authz.User
	err   error
}

func (s *stubUsers) FindUserByID(ctx context.Context, id int64) (*authz.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.users[id], nil
}

type stubAudit struct {
	events []authz.Event
	err    error
}

func (s *stubAudit) RecordEvent(ctx context.Context, event authz.Event) error {
	s.events = append(s.events, event)
	return s.err
}

func newGate(sess *stubSessions, users *stubUsers, audit *stubAudit) *authz.Gate {
	var sink authz.AuditSink
	if audit != nil {
		sink = audit
	}
	return authz.NewGate(sess, users, sink, nil)
}

func TestRequireAuthDeniesWithoutSession(t *testing.T) {
	cases := map[string]*stubSessions{
		"no session":           {user: nil},
		"session without user": {user: &authz.SessionUser{ID: 0}},
	}
	for name, sessions := range cases {
		t.Run(name, func(t *testing.T) {
			gate := newGate(sessions, &stubUsers{users: map[int64]*authz.User{}}, nil)
			principal, denial := gate.RequireAuth(context.Background())
			assert.Nil(t, principal)
			require.NotNil(t, denial)
			assert.Equal(t, http.StatusUnauthorized, denial.Status)
			assert.Equal(t, authz.CodeUnauthorized, denial.Code)
		})
	}
}

func TestRequireAuthDeniesUnknownUser(t *testing.T) {
	gate := newGate(
		&stubSessions{user: &authz.SessionUser{ID: 42}},
		&stubUsers{users: map[int64]*authz.User{}},
		nil,
	)
	principal, denial := gate.RequireAuth(context.Background())
	assert.Nil(t, principal)
	require.NotNil(t, denial)
	assert.Equal(t, http.StatusUnauthorized, denial.Status)
}

func TestRequireAuthDeniesDeletedUser(t *testing.T) {
	gate := newGate(
		&stubSessions{user: &authz.SessionUser{ID: 42}},
		&stubUsers{users: map[int64]*authz.User{
			42: {ID: 42, Email: "gone@test.com", Role: "ADMIN", IsDeleted: true},
		}},
		nil,
	)
	_, denial := gate.RequireAuth(context.Background())
	require.NotNil(t, denial)
	assert.Equal(t, http.StatusUnauthorized, denial.Status)
}

func TestRequireAuthConvertsStoreErrorTo500(t *testing.T) {
	gate := newGate(
		&stubSessions{user: &authz.SessionUser{ID: 42}},
		&stubUsers{err: errors.New("connection refused")},
		nil,
	)
	principal, denial := gate.RequireAuth(context.Background())
	assert.Nil(t, principal)
	require.NotNil(t, denial)
	assert.Equal(t, http.StatusInternalServerError, denial.Status)
	assert.Equal(t, authz.CodeInternal, denial.Code)
}

func TestRequireAuthSessionErrorTo500(t *testing.T) {
	gate := newGate(&stubSessions{err: errors.New("redis down")}, &stubUsers{}, nil)
	_, denial := gate.RequireAuth(context.Background())
	require.NotNil(t, denial)
	assert.Equal(t, http.StatusInternalServerError, denial.Status)
}

func TestPersistedRoleWinsOverSessionRole(t *testing.T) {
	// Session still carries VIEWER while the record was promoted to ADMIN.
	gate := newGate(
		&stubSessions{user: &authz.SessionUser{ID: 1, Role: "VIEWER"}},
		&stubUsers{users: map[int64]*authz.User{
			1: {ID: 1, Email: "admin@test.com", Role: "ADMIN"},
		}},
		nil,
	)
	principal, denial := gate.RequireAuth(context.Background())
	require.Nil(t, denial)
	assert.Equal(t, authz.RoleAdmin, principal.Role)
}

func TestViewerPromotedToOperatorScenario(t *testing.T) {
	gate := newGate(
		&stubSessions{user: &authz.SessionUser{ID: 5, Email: "viewer@test.com", Role: "VIEWER"}},
		&stubUsers{users: map[int64]*authz.User{
			5: {ID: 5, Email: "viewer@test.com", Role: "OPERATOR"},
		}},
		nil,
	)
	principal, denial := gate.RequireOperatorOrAdmin(context.Background())
	require.Nil(t, denial)
	assert.Equal(t, authz.RoleOperator, principal.Role)
}

func TestRequireRoleMatrix(t *testing.T) {
	roles := []authz.Role{authz.RoleViewer, authz.RoleOperator, authz.RoleAdmin}
	for _, actual := range roles {
		for _, required := range roles {
			gate := newGate(
				&stubSessions{user: &authz.SessionUser{ID: 1}},
				&stubUsers{users: map[int64]*authz.User{
					1: {ID: 1, Role: string(actual)},
				}},
				nil,
			)
			principal, denial := gate.RequireRole(context.Background(), required)
			if actual.Level() >= required.Level() {
				require.Nil(t, denial, "%s should satisfy %s", actual, required)
				assert.Equal(t, actual, principal.Role)
			} else {
				require.NotNil(t, denial, "%s should not satisfy %s", actual, required)
				assert.Equal(t, http.StatusForbidden, denial.Status)
				assert.Equal(t, authz.CodeForbidden, denial.Code)
				assert.Nil(t, principal)
			}
		}
	}
}

func TestUndefinedRoleAuthenticatesButFailsRoleChecks(t *testing.T) {
	gate := newGate(
		&stubSessions{user: &authz.SessionUser{ID: 1}},
		&stubUsers{users: map[int64]*authz.User{
			1: {ID: 1, Email: "norole@test.com", Role: ""},
		}},
		nil,
	)

	principal, denial := gate.RequireAuth(context.Background())
	require.Nil(t, denial)
	assert.Equal(t, authz.Role(""), principal.Role)

	_, denial = gate.RequireRole(context.Background(), authz.RoleViewer)
	require.NotNil(t, denial)
	assert.Equal(t, http.StatusForbidden, denial.Status)
}

func TestRequireAdminIsExactMatch(t *testing.T) {
	gate := newGate(
		&stubSessions{user: &authz.SessionUser{ID: 1}},
		&stubUsers{users: map[int64]*authz.User{
			1: {ID: 1, Role: "OPERATOR"},
		}},
		nil,
	)
	_, denial := gate.RequireAdmin(context.Background())
	require.NotNil(t, denial)
	assert.Equal(t, http.StatusForbidden, denial.Status)
}

func TestDenialEmitsAuditEvent(t *testing.T) {
	audit := &stubAudit{}
	gate := newGate(
		&stubSessions{user: &authz.SessionUser{ID: 9}},
		&stubUsers{users: map[int64]*authz.User{
			9: {ID: 9, Role: "VIEWER"},
		}},
		audit,
	)
	_, denial := gate.RequireAdmin(context.Background())
	require.NotNil(t, denial)
	require.Len(t, audit.events, 1)
	assert.Equal(t, "authz.denied", audit.events[0].Action)
	assert.Equal(t, int64(9), audit.events[0].UserID)
}

func TestAuditFailureDoesNotChangeDecision(t *testing.T) {
	audit := &stubAudit{err: errors.New("audit store down")}
	gate := newGate(
		&stubSessions{user: &authz.SessionUser{ID: 9}},
		&stubUsers{users: map[int64]*authz.User{
			9: {ID: 9, Role: "VIEWER"},
		}},
		audit,
	)
	_, denial := gate.RequireAdmin(context.Background())
	require.NotNil(t, denial)
	assert.Equal(t, http.StatusForbidden, denial.Status)
}

func TestMiddlewareRendersDenialEnvelope(t *testing.T) {
	gate := newGate(&stubSessions{}, &stubUsers{}, nil)
	mw := authz.Middleware{Gate: gate}

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run on denial")
	})
	res := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/reports", nil)
	mw.Authenticated()(next).ServeHTTP(res, req)

	assert.Equal(t, http.StatusUnauthorized, res.Code)
	assert.JSONEq(t, `{"success":false,"error":"authentication required","code":"UNAUTHORIZED"}`, res.Body.String())
}

func TestMiddlewarePassesPrincipal(t *testing.T) {
	gate := newGate(
		&stubSessions{user: &authz.SessionUser{ID: 3}},
		&stubUsers{users: map[int64]*authz.User{
			3: {ID: 3, Email: "op@test.com", Role: "OPERATOR"},
		}},
		nil,
	)
	mw := authz.Middleware{Gate: gate}

	var seen *authz.Principal
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = authz.PrincipalFromContext(r.Context())
	})
	res := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/reports", nil)
	mw.OperatorOrAdmin()(next).ServeHTTP(res, req)

	require.NotNil(t, seen)
	assert.Equal(t, authz.RoleOperator, seen.Role)
}

func TestRoleParsing(t *testing.T) {
	role, ok := authz.ParseRole(" admin ")
	assert.True(t, ok)
	assert.Equal(t, authz.RoleAdmin, role)

	_, ok = authz.ParseRole("superuser")
	assert.False(t, ok)

	assert.True(t, authz.RoleAdmin.AtLeast(authz.RoleViewer))
	assert.False(t, authz.RoleViewer.AtLeast(authz.RoleOperator))
	assert.False(t, authz.Role("").AtLeast(authz.Role("")))
}
