package users_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/powerdeck/powerdeck/internal/cache"
	"github.com/powerdeck/powerdeck/internal/kvstore"
	"github.com/powerdeck/powerdeck/internal/resilience"
	"github.com/powerdeck/powerdeck/internal/shared"
	"github.com/powerdeck/powerdeck/internal/users"
)

type stubRepo struct {
	byID      map[int64]*users.User
	listCalls int
	created   []string
}

func (s *stubRepo) FindByID(ctx context.Context, id int64) (*users.User, error) {
	if user, ok := s.byID[id]; ok {
		return user, nil
	}
	return nil, shared.ErrNotFound
}

func (s *stubRepo) List(ctx context.Context) ([]users.User, error) {
	s.listCalls++
	var all []users.User
	for _, user := range s.byID {
		if !user.IsDeleted {
			all = append(all, *user)
		}
	}
	return all, nil
}

func (s *stubRepo) Create(ctx context.Context, email, name, passwordHash, role string) (*users.User, error) {
	s.created = append(s.created, passwordHash)
	user := &users.User{ID: int64(len(s.byID) + 1), Email: email, Name: name, Role: role}
	s.byID[user.ID] = user
	return user, nil
}

func (s *stubRepo) UpdateRole(ctx context.Context, id int64, role string) (*users.User, error) {
	user, ok := s.byID[id]
	if !ok || user.IsDeleted {
		return nil, shared.ErrNotFound
	}
	user.Role = role
	return user, nil
}

func (s *stubRepo) SoftDelete(ctx context.Context, id int64) error {
	user, ok := s.byID[id]
	if !ok || user.IsDeleted {
		return shared.ErrNotFound
	}
	user.IsDeleted = true
	return nil
}

func newCache(t *testing.T) *cache.Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := kvstore.New(client, nil)
	breaker := resilience.NewBreaker("cache-redis", resilience.BreakerConfig{})
	c := cache.New(store, breaker, resilience.NewExecutor(nil), cache.Config{Prefix: "test", DefaultTTL: time.Minute}, nil)
	t.Cleanup(c.Close)
	return c
}

func TestCreateHashesPassword(t *testing.T) {
	repo := &stubRepo{byID: map[int64]*users.User{}}
	svc := users.NewService(repo, nil, nil, nil)

	_, err := svc.Create(context.Background(), 1, users.CreateInput{
		Email:    "new@test.local",
		Name:     "New User",
		Password: "longenough",
		Role:     "VIEWER",
	})
	require.NoError(t, err)
	require.Len(t, repo.created, 1)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.created[0]), []byte("longenough")))
}

func TestListServedFromCacheUntilRoleChange(t *testing.T) {
	repo := &stubRepo{byID: map[int64]*users.User{
		1: {ID: 1, Email: "a@test.local", Role: "VIEWER"},
	}}
	svc := users.NewService(repo, newCache(t), nil, nil)
	ctx := context.Background()

	_, err := svc.List(ctx)
	require.NoError(t, err)
	_, err = svc.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.listCalls)

	_, err = svc.UpdateRole(ctx, 9, 1, "OPERATOR")
	require.NoError(t, err)

	listed, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.listCalls)
	require.Len(t, listed, 1)
	assert.Equal(t, "OPERATOR", listed[0].Role)
}

func TestSoftDeleteInvalidatesListing(t *testing.T) {
	repo := &stubRepo{byID: map[int64]*users.User{
		1: {ID: 1, Email: "a@test.local", Role: "VIEWER"},
		2: {ID: 2, Email: "b@test.local", Role: "ADMIN"},
	}}
	svc := users.NewService(repo, newCache(t), nil, nil)
	ctx := context.Background()

	first, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, first, 2)

	require.NoError(t, svc.SoftDelete(ctx, 2, 1))

	second, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, second, 1)
}

func TestGateStoreMapsRecords(t *testing.T) {
	repo := &stubRepo{byID: map[int64]*users.User{
		1: {ID: 1, Email: "a@test.local", Name: "A", Role: "OPERATOR"},
	}}
	store := users.NewGateStore(repo)

	user, err := store.FindUserByID(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "OPERATOR", user.Role)

	missing, err := store.FindUserByID(context.Background(), 99)
	require.NoError(t, err)
	assert.Nil(t, missing)
}
