package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/servicehub/internal/catalog/domain"
	"github.com/smallbiznis/servicehub/internal/catalog/repository"
	"github.com/smallbiznis/servicehub/internal/clock"
	"github.com/smallbiznis/servicehub/internal/config"
	"github.com/smallbiznis/servicehub/pkg/db/dbtest"
	"github.com/smallbiznis/servicehub/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) catalogdomain.CatalogService {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return NewService(Params{
		Log:      zap.NewNop(),
		GenID:    node,
		Repo:     repository.NewGorm(dbtest.Open(t, repository.Models()...)),
		Commerce: config.NewStaticCommerceHolder(config.DefaultCommercePolicy()),
		Clock:    clock.NewFakeClock(time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)),
	})
}

func fiberRequest(name string) catalogdomain.CreateRequest {
	return catalogdomain.CreateRequest{
		Name:     name,
		Category: "Internet",
		Price:    catalogdomain.PriceInput{Amount: 50000, BillingCycle: "monthly"},
	}
}

func TestCreate_AppliesDefaults(t *testing.T) {
	svc := newTestService(t)

	created, err := svc.Create(context.Background(), fiberRequest("Fiber 100 Mbps"))
	require.NoError(t, err)

	assert.Equal(t, "fiber-100-mbps", created.Slug)
	assert.Equal(t, "INR", created.Price.Currency)
	assert.True(t, created.Availability.IsActive)
	assert.Equal(t, int64(1), created.Constraints.MaxQuantityPerUser)
	assert.Nil(t, created.Availability.MaxSubscriptions)
}

func TestCreate_SlugCollisionGetsSuffix(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	first, err := svc.Create(ctx, fiberRequest("Fiber"))
	require.NoError(t, err)
	second, err := svc.Create(ctx, fiberRequest("fiber"))
	require.NoError(t, err)
	third, err := svc.Create(ctx, fiberRequest("FIBER"))
	require.NoError(t, err)

	assert.Equal(t, "fiber", first.Slug)
	assert.Equal(t, "fiber-2", second.Slug)
	assert.Equal(t, "fiber-3", third.Slug)
}

func TestCreate_Validation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*catalogdomain.CreateRequest)
		want   error
	}{
		{"blank name", func(r *catalogdomain.CreateRequest) { r.Name = "  " }, catalogdomain.ErrInvalidName},
		{"unknown category", func(r *catalogdomain.CreateRequest) { r.Category = "Groceries" }, catalogdomain.ErrInvalidCategory},
		{"negative price", func(r *catalogdomain.CreateRequest) { r.Price.Amount = -1 }, catalogdomain.ErrInvalidPrice},
		{"price above bound", func(r *catalogdomain.CreateRequest) {
			r.Price.Amount = catalogdomain.MaxPriceAmount + 1
		}, catalogdomain.ErrInvalidPrice},
		{"bad currency", func(r *catalogdomain.CreateRequest) { r.Price.Currency = "rupees" }, catalogdomain.ErrInvalidCurrency},
		{"zero quantity cap", func(r *catalogdomain.CreateRequest) {
			zero := int64(0)
			r.MaxQuantityPerUser = &zero
		}, catalogdomain.ErrInvalidConstraints},
		{"quantity cap above bound", func(r *catalogdomain.CreateRequest) {
			huge := int64(10_000_000)
			r.MaxQuantityPerUser = &huge
		}, catalogdomain.ErrInvalidConstraints},
		{"negative capacity", func(r *catalogdomain.CreateRequest) {
			negative := int64(-1)
			r.MaxSubscriptions = &negative
		}, catalogdomain.ErrInvalidCapacity},
		{"bad attribute key", func(r *catalogdomain.CreateRequest) {
			r.Specifications = map[string]string{"Bad Key": "x"}
		}, catalogdomain.ErrInvalidAttributes},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := fiberRequest("Fiber")
			tc.mutate(&req)
			_, err := svc.Create(ctx, req)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestUpdate_RejectsCapBelowCurrent(t *testing.T) {
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	repo := repository.NewGorm(dbtest.Open(t, repository.Models()...))
	svc := NewService(Params{
		Log:      zap.NewNop(),
		GenID:    node,
		Repo:     repo,
		Commerce: config.NewStaticCommerceHolder(config.DefaultCommercePolicy()),
		Clock:    clock.SystemClock{},
	})
	ctx := context.Background()

	created, err := svc.Create(ctx, fiberRequest("Fiber"))
	require.NoError(t, err)
	require.NoError(t, repo.Reserve(ctx, created.ID))
	require.NoError(t, repo.Reserve(ctx, created.ID))

	one := int64(1)
	_, err = svc.Update(ctx, created.ID.String(), catalogdomain.UpdateRequest{MaxSubscriptions: &one})
	assert.ErrorIs(t, err, catalogdomain.ErrInvalidCapacity)

	inactive := false
	updated, err := svc.Update(ctx, created.ID.String(), catalogdomain.UpdateRequest{IsActive: &inactive})
	require.NoError(t, err)
	assert.False(t, updated.Availability.IsActive)
	assert.Equal(t, int64(2), updated.Availability.CurrentSubscriptions)
}

func TestGet_ByIDOrSlug(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, fiberRequest("Gaming Pass"))
	require.NoError(t, err)

	byID, err := svc.Get(ctx, created.ID.String())
	require.NoError(t, err)
	assert.Equal(t, created.ID, byID.ID)

	bySlug, err := svc.Get(ctx, "gaming-pass")
	require.NoError(t, err)
	assert.Equal(t, created.ID, bySlug.ID)

	_, err = svc.Get(ctx, "nope")
	assert.ErrorIs(t, err, catalogdomain.ErrServiceNotFound)
}

func TestList_Paginates(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for _, name := range []string{"A", "B", "C"} {
		_, err := svc.Create(ctx, fiberRequest("Plan "+name))
		require.NoError(t, err)
	}

	first, err := svc.List(ctx, catalogdomain.ListRequest{Pagination: pagination.Pagination{PageSize: 2}})
	require.NoError(t, err)
	require.Len(t, first.Services, 2)
	assert.True(t, first.PageInfo.HasMore)

	second, err := svc.List(ctx, catalogdomain.ListRequest{Pagination: pagination.Pagination{
		PageSize:  2,
		PageToken: first.PageInfo.NextPageToken,
	}})
	require.NoError(t, err)
	require.Len(t, second.Services, 1)
	assert.False(t, second.PageInfo.HasMore)
	assert.Equal(t, "plan-c", second.Services[0].Slug)

	_, err = svc.List(ctx, catalogdomain.ListRequest{Pagination: pagination.Pagination{PageToken: "%%%"}})
	assert.ErrorIs(t, err, catalogdomain.ErrInvalidPageToken)
}
