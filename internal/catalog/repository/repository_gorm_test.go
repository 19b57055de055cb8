package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/servicehub/internal/billingcycle"
	catalogdomain "github.com/smallbiznis/servicehub/internal/catalog/domain"
	"github.com/smallbiznis/servicehub/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(id int64, slug string, capacity *int64) *catalogdomain.Service {
	now := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	return &catalogdomain.Service{
		ID:       snowflake.ID(id),
		Name:     "Fiber " + slug,
		Slug:     slug,
		Category: catalogdomain.CategoryInternet,
		Price:    catalogdomain.Price{Amount: 50000, Currency: "INR", BillingCycle: billingcycle.Monthly},
		Availability: catalogdomain.Availability{
			IsActive:         true,
			MaxSubscriptions: capacity,
		},
		Constraints:    catalogdomain.Constraints{MaxQuantityPerUser: 3},
		Specifications: catalogdomain.Attributes{"speed_mbps": "100"},
		Features:       []string{"router"},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func ptr[T any](v T) *T { return &v }

func TestGormRepo_InsertAndFind(t *testing.T) {
	repo := NewGorm(dbtest.Open(t, Models()...))
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, newService(1, "fiber-100", nil)))

	got, err := repo.FindBySlug(ctx, "fiber-100")
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(1), got.ID)
	assert.Equal(t, "100", got.Specifications["speed_mbps"])
	assert.Equal(t, []string{"router"}, got.Features)
	assert.Equal(t, billingcycle.Monthly, got.Price.BillingCycle)

	_, err = repo.FindByID(ctx, 99)
	assert.ErrorIs(t, err, catalogdomain.ErrServiceNotFound)

	err = repo.Insert(ctx, newService(2, "fiber-100", nil))
	assert.ErrorIs(t, err, catalogdomain.ErrSlugConflict)
}

func TestGormRepo_InactiveIsPersisted(t *testing.T) {
	repo := NewGorm(dbtest.Open(t, Models()...))
	ctx := context.Background()

	svc := newService(1, "legacy", nil)
	svc.Availability.IsActive = false
	require.NoError(t, repo.Insert(ctx, svc))

	got, err := repo.FindByID(ctx, 1)
	require.NoError(t, err)
	assert.False(t, got.Availability.IsActive)
}

func TestGormRepo_ReserveRespectsCap(t *testing.T) {
	repo := NewGorm(dbtest.Open(t, Models()...))
	ctx := context.Background()
	require.NoError(t, repo.Insert(ctx, newService(1, "capped", ptr[int64](1))))

	require.NoError(t, repo.Reserve(ctx, 1))
	assert.ErrorIs(t, repo.Reserve(ctx, 1), catalogdomain.ErrCapacityExceeded)
	assert.ErrorIs(t, repo.Reserve(ctx, 42), catalogdomain.ErrServiceUnavailable)

	got, err := repo.FindByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Availability.CurrentSubscriptions)
}

func TestGormRepo_ReserveRejectsInactive(t *testing.T) {
	repo := NewGorm(dbtest.Open(t, Models()...))
	ctx := context.Background()
	svc := newService(1, "off", nil)
	svc.Availability.IsActive = false
	require.NoError(t, repo.Insert(ctx, svc))

	assert.ErrorIs(t, repo.Reserve(ctx, 1), catalogdomain.ErrServiceUnavailable)
}

func TestGormRepo_ConcurrentReserveNeverExceedsCap(t *testing.T) {
	repo := NewGorm(dbtest.Open(t, Models()...))
	ctx := context.Background()
	const capacity = 5
	require.NoError(t, repo.Insert(ctx, newService(1, "busy", ptr[int64](capacity))))

	var (
		wg       sync.WaitGroup
		accepted atomic.Int64
		rejected atomic.Int64
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := repo.Reserve(ctx, 1); err == nil {
				accepted.Add(1)
			} else if assert.ErrorIs(t, err, catalogdomain.ErrCapacityExceeded) {
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(capacity), accepted.Load())
	assert.Equal(t, int64(15), rejected.Load())

	got, err := repo.FindByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(capacity), got.Availability.CurrentSubscriptions)
}

func TestGormRepo_ReleaseIsFloorClamped(t *testing.T) {
	repo := NewGorm(dbtest.Open(t, Models()...))
	ctx := context.Background()
	require.NoError(t, repo.Insert(ctx, newService(1, "svc", nil)))

	require.NoError(t, repo.Reserve(ctx, 1))
	require.NoError(t, repo.Release(ctx, 1))
	require.NoError(t, repo.Release(ctx, 1))

	got, err := repo.FindByID(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, got.Availability.CurrentSubscriptions)
}

func TestGormRepo_UpdateKeepsCounter(t *testing.T) {
	repo := NewGorm(dbtest.Open(t, Models()...))
	ctx := context.Background()
	require.NoError(t, repo.Insert(ctx, newService(1, "svc", nil)))
	require.NoError(t, repo.Reserve(ctx, 1))

	stale := newService(1, "svc", ptr[int64](10))
	stale.Name = "Renamed"
	stale.Availability.IsActive = false
	require.NoError(t, repo.Update(ctx, stale))

	got, err := repo.FindByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)
	assert.False(t, got.Availability.IsActive)
	assert.Equal(t, int64(1), got.Availability.CurrentSubscriptions)
	require.NotNil(t, got.Availability.MaxSubscriptions)
	assert.Equal(t, int64(10), *got.Availability.MaxSubscriptions)

	assert.ErrorIs(t, repo.Update(ctx, newService(7, "missing", nil)), catalogdomain.ErrServiceNotFound)
}

func TestGormRepo_ListFilters(t *testing.T) {
	repo := NewGorm(dbtest.Open(t, Models()...))
	ctx := context.Background()

	a := newService(1, "fiber-a", nil)
	b := newService(2, "fiber-b", nil)
	b.Availability.IsActive = false
	c := newService(3, "logo", nil)
	c.Name = "Logo Design"
	c.Category = catalogdomain.CategoryDesign
	for _, s := range []*catalogdomain.Service{a, b, c} {
		require.NoError(t, repo.Insert(ctx, s))
	}

	active := true
	got, err := repo.List(ctx, catalogdomain.ListFilter{Active: &active})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	design := catalogdomain.CategoryDesign
	got, err = repo.List(ctx, catalogdomain.ListFilter{Category: &design})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "logo", got[0].Slug)

	got, err = repo.List(ctx, catalogdomain.ListFilter{Query: "FIBER"})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = repo.List(ctx, catalogdomain.ListFilter{AfterID: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, snowflake.ID(2), got[0].ID)

	byIDs, err := repo.FindByIDs(ctx, []snowflake.ID{1, 3, 99})
	require.NoError(t, err)
	assert.Len(t, byIDs, 2)
}
