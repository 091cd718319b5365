package powerunits_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/powerdeck/powerdeck/internal/cache"
	"github.com/powerdeck/powerdeck/internal/kvstore"
	"github.com/powerdeck/powerdeck/internal/powerunits"
	"github.com/powerdeck/powerdeck/internal/resilience"
	"github.com/powerdeck/powerdeck/internal/shared"
)

type stubRepo struct {
	units     map[int64]*powerunits.PowerUnit
	listCalls atomic.Int64
}

func (s *stubRepo) List(ctx context.Context) ([]powerunits.PowerUnit, error) {
	s.listCalls.Add(1)
	var all []powerunits.PowerUnit
	for _, unit := range s.units {
		all = append(all, *unit)
	}
	return all, nil
}

func (s *stubRepo) FindByID(ctx context.Context, id int64) (*powerunits.PowerUnit, error) {
	if unit, ok := s.units[id]; ok {
		return unit, nil
	}
	return nil, shared.ErrNotFound
}

func (s *stubRepo) Create(ctx context.Context, unit powerunits.PowerUnit) (*powerunits.PowerUnit, error) {
	unit.ID = int64(len(s.units) + 1)
	unit.Status = powerunits.StatusOffline
	s.units[unit.ID] = &unit
	return &unit, nil
}

func (s *stubRepo) Update(ctx context.Context, unit powerunits.PowerUnit) (*powerunits.PowerUnit, error) {
	existing, ok := s.units[unit.ID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	existing.Name = unit.Name
	existing.Location = unit.Location
	existing.CapacityKW = unit.CapacityKW
	return existing, nil
}

func (s *stubRepo) UpdateStatus(ctx context.Context, id int64, status powerunits.Status) (*powerunits.PowerUnit, error) {
	existing, ok := s.units[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	existing.Status = status
	return existing, nil
}

func (s *stubRepo) Delete(ctx context.Context, id int64) error {
	if _, ok := s.units[id]; !ok {
		return shared.ErrNotFound
	}
	delete(s.units, id)
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

func TestListCachesUntilWrite(t *testing.T) {
	repo := &stubRepo{units: map[int64]*powerunits.PowerUnit{
		1: {ID: 1, Name: "Gen A", Status: powerunits.StatusOnline},
	}}
	svc := powerunits.NewService(repo, newCache(t), nil, nil)
	ctx := context.Background()

	first, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, first, 1)

	_, err = svc.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), repo.listCalls.Load())

	_, err = svc.SetStatus(ctx, 9, 1, powerunits.StatusMaintenance)
	require.NoError(t, err)

	second, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), repo.listCalls.Load())
	require.Len(t, second, 1)
	assert.Equal(t, powerunits.StatusMaintenance, second[0].Status)
}

func TestSetStatusRejectsUnknown(t *testing.T) {
	repo := &stubRepo{units: map[int64]*powerunits.PowerUnit{
		1: {ID: 1, Name: "Gen A"},
	}}
	svc := powerunits.NewService(repo, nil, nil, nil)

	_, err := svc.SetStatus(context.Background(), 1, 1, powerunits.Status("EXPLODED"))
	assert.ErrorIs(t, err, powerunits.ErrUnknownStatus)
}

func TestCreateStartsOffline(t *testing.T) {
	repo := &stubRepo{units: map[int64]*powerunits.PowerUnit{}}
	svc := powerunits.NewService(repo, nil, nil, nil)

	unit, err := svc.Create(context.Background(), 1, powerunits.CreateInput{
		Name:       "Gen B",
		Location:   "Plant 2",
		CapacityKW: 500,
	})
	require.NoError(t, err)
	assert.Equal(t, powerunits.StatusOffline, unit.Status)
}
