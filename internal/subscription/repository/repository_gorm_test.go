package repository

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/servicehub/internal/billingcycle"
	catalogdomain "github.com/smallbiznis/servicehub/internal/catalog/domain"
	subscriptiondomain "github.com/smallbiznis/servicehub/internal/subscription/domain"
	"github.com/smallbiznis/servicehub/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)

func newSubscription(t *testing.T, id, userID int64) *subscriptiondomain.Subscription {
	t.Helper()

	sub, err := subscriptiondomain.New(subscriptiondomain.NewParams{
		ID:     snowflake.ID(id),
		UserID: snowflake.ID(userID),
		Items: []subscriptiondomain.LineItem{
			{
				ServiceID:      10,
				Quantity:       2,
				Customizations: catalogdomain.Attributes{"channel_pack": "sports"},
				PriceAtSubscription: subscriptiondomain.PriceSnapshot{
					Amount: 500, Currency: "INR", BillingCycle: billingcycle.Monthly,
				},
			},
			{
				ServiceID: 11,
				Quantity:  1,
				PriceAtSubscription: subscriptiondomain.PriceSnapshot{
					Amount: 300, Currency: "INR", BillingCycle: billingcycle.Monthly,
				},
			},
		},
		Pricing:      subscriptiondomain.Pricing{Subtotal: 1300, Taxes: 234, Total: 1534, Currency: "INR"},
		BillingCycle: billingcycle.Monthly,
		StartDate:    start,
		Installation: true,
		Address: subscriptiondomain.Address{
			Street: "12 MG Road", City: "Pune", State: "MH", Pincode: "411001", Country: "India",
		},
		Metadata: subscriptiondomain.Metadata{Source: "web", Tags: []string{"promo"}},
		Note:     "ring the bell",
		Author:   "user",
		Now:      start,
	})
	require.NoError(t, err)
	return &sub
}

func TestGormRepo_InsertAndFind(t *testing.T) {
	repo := NewGorm(dbtest.Open(t, Models()...))
	ctx := context.Background()

	sub := newSubscription(t, 1, 7)
	require.NoError(t, repo.Insert(ctx, sub))

	got, err := repo.FindByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.StatusPending, got.Status)
	assert.Equal(t, sub.Pricing, got.Pricing)
	require.Len(t, got.Items, 2)
	assert.Equal(t, snowflake.ID(10), got.Items[0].ServiceID)
	assert.Equal(t, "sports", got.Items[0].Customizations["channel_pack"])
	assert.Equal(t, int64(300), got.Items[1].PriceAtSubscription.Amount)
	assert.Equal(t, sub.Address, got.Address)
	assert.Equal(t, []string{"promo"}, got.Metadata.Tags)
	require.Len(t, got.Notes, 1)
	assert.Equal(t, "ring the bell", got.Notes[0].Message)
	require.NotNil(t, got.Dates.NextBillingDate)
	assert.True(t, got.Dates.NextBillingDate.Equal(time.Date(2024, time.February, 15, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, subscriptiondomain.InstallationScheduled, got.Installation.Status)

	_, err = repo.FindByID(ctx, 99)
	assert.ErrorIs(t, err, subscriptiondomain.ErrSubscriptionNotFound)
}

func TestGormRepo_UpdateChecksVersion(t *testing.T) {
	repo := NewGorm(dbtest.Open(t, Models()...))
	ctx := context.Background()
	require.NoError(t, repo.Insert(ctx, newSubscription(t, 1, 7)))

	first, err := repo.FindByID(ctx, 1)
	require.NoError(t, err)
	stale, err := repo.FindByID(ctx, 1)
	require.NoError(t, err)

	cancelled, err := subscriptiondomain.Cancel(*first, "moving", "user", start.Add(time.Hour))
	require.NoError(t, err)
	cancelled.CapacityReleased = true
	require.NoError(t, repo.Update(ctx, &cancelled))
	assert.Equal(t, int64(1), cancelled.Version)

	paused := stale.Clone()
	paused.Status = subscriptiondomain.StatusPaused
	assert.ErrorIs(t, repo.Update(ctx, &paused), subscriptiondomain.ErrConcurrentUpdate)

	got, err := repo.FindByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.StatusCancelled, got.Status)
	assert.True(t, got.CapacityReleased)
	assert.Len(t, got.Notes, 2)
	assert.Len(t, got.Items, 2)

	missing := newSubscription(t, 42, 7)
	assert.ErrorIs(t, repo.Update(ctx, missing), subscriptiondomain.ErrSubscriptionNotFound)
}

func TestGormRepo_ListAndCount(t *testing.T) {
	repo := NewGorm(dbtest.Open(t, Models()...))
	ctx := context.Background()

	for id := int64(1); id <= 4; id++ {
		require.NoError(t, repo.Insert(ctx, newSubscription(t, id, 7)))
	}
	require.NoError(t, repo.Insert(ctx, newSubscription(t, 5, 8)))

	sub, err := repo.FindByID(ctx, 2)
	require.NoError(t, err)
	cancelled, err := subscriptiondomain.Cancel(*sub, "", "user", start)
	require.NoError(t, err)
	require.NoError(t, repo.Update(ctx, &cancelled))

	count, err := repo.CountActiveByUser(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	page, err := repo.List(ctx, subscriptiondomain.ListFilter{UserID: 7, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, snowflake.ID(4), page[0].ID)
	assert.Equal(t, snowflake.ID(3), page[1].ID)
	assert.Len(t, page[0].Items, 2)

	next, err := repo.List(ctx, subscriptiondomain.ListFilter{UserID: 7, BeforeID: page[1].ID})
	require.NoError(t, err)
	require.Len(t, next, 2)
	assert.Equal(t, snowflake.ID(2), next[0].ID)

	onlyCancelled, err := repo.List(ctx, subscriptiondomain.ListFilter{
		Statuses: []subscriptiondomain.Status{subscriptiondomain.StatusCancelled},
	})
	require.NoError(t, err)
	require.Len(t, onlyCancelled, 1)
	assert.Equal(t, snowflake.ID(2), onlyCancelled[0].ID)
}

func TestGormRepo_DueAndExpiring(t *testing.T) {
	repo := NewGorm(dbtest.Open(t, Models()...))
	ctx := context.Background()

	end := start.AddDate(0, 3, 0)
	for id := int64(1); id <= 3; id++ {
		sub := newSubscription(t, id, 7)
		sub.Status = subscriptiondomain.StatusActive
		sub.Dates.EndDate = &end
		require.NoError(t, repo.Insert(ctx, sub))
	}
	pending := newSubscription(t, 4, 7)
	require.NoError(t, repo.Insert(ctx, pending))

	due, err := repo.ListDueForBilling(ctx, start.AddDate(0, 1, 0), 2)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, snowflake.ID(1), due[0].ID)

	none, err := repo.ListDueForBilling(ctx, start, 0)
	require.NoError(t, err)
	assert.Empty(t, none)

	expiring, err := repo.ListExpiring(ctx, end, 0)
	require.NoError(t, err)
	assert.Len(t, expiring, 3)

	expiring, err = repo.ListExpiring(ctx, end.Add(-time.Second), 0)
	require.NoError(t, err)
	assert.Empty(t, expiring)
}
