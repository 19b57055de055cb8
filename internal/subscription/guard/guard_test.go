package guard

import (
	"testing"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/servicehub/internal/catalog/domain"
	subscriptiondomain "github.com/smallbiznis/servicehub/internal/subscription/domain"
	"github.com/stretchr/testify/assert"
)

var policy = Policy{MaxActivePerUser: 5, QuoteCategories: []string{"Design", "Development"}}

func int64p(v int64) *int64 { return &v }

func service(id snowflake.ID) *catalogdomain.Service {
	return &catalogdomain.Service{
		ID:           id,
		Category:     catalogdomain.CategoryCable,
		Price:        catalogdomain.Price{Amount: 500},
		Availability: catalogdomain.Availability{IsActive: true},
		Constraints:  catalogdomain.Constraints{MaxQuantityPerUser: 3},
	}
}

func catalog(services ...*catalogdomain.Service) map[snowflake.ID]*catalogdomain.Service {
	out := make(map[snowflake.ID]*catalogdomain.Service, len(services))
	for _, s := range services {
		out[s.ID] = s
	}
	return out
}

func TestValidate_Accepts(t *testing.T) {
	assert.NoError(t, Validate(policy, 4, []Line{{ServiceID: 1, Quantity: 3}}, catalog(service(1))))
}

func TestValidate_FullServiceRejected(t *testing.T) {
	full := service(1)
	full.Availability.MaxSubscriptions = int64p(1)
	full.Availability.CurrentSubscriptions = 1

	err := Validate(policy, 0, []Line{{ServiceID: 1, Quantity: 1}}, catalog(full))
	assert.ErrorIs(t, err, subscriptiondomain.ErrCapacityExceeded)
}

func TestValidate_QuantityOverPerUserMax(t *testing.T) {
	err := Validate(policy, 0, []Line{{ServiceID: 1, Quantity: 4}}, catalog(service(1)))
	assert.ErrorIs(t, err, subscriptiondomain.ErrQuantityExceeded)
}

func TestValidate_UnavailableServices(t *testing.T) {
	inactive := service(2)
	inactive.Availability.IsActive = false

	err := Validate(policy, 0, []Line{{ServiceID: 9, Quantity: 1}}, catalog(service(1)))
	assert.ErrorIs(t, err, subscriptiondomain.ErrServiceUnavailable)

	err = Validate(policy, 0, []Line{{ServiceID: 2, Quantity: 1}}, catalog(inactive))
	assert.ErrorIs(t, err, subscriptiondomain.ErrServiceUnavailable)
}

func TestValidate_QuoteLimit(t *testing.T) {
	design := service(1)
	design.Category = catalogdomain.CategoryDesign
	design.Price.Amount = 40000
	design.Constraints.MaxOnlineOrderValue = int64p(50000)

	assert.NoError(t, Validate(policy, 0, []Line{{ServiceID: 1, Quantity: 1}}, catalog(design)))

	err := Validate(policy, 0, []Line{{ServiceID: 1, Quantity: 2}}, catalog(design))
	assert.ErrorIs(t, err, subscriptiondomain.ErrRequiresQuote)

	cable := service(2)
	cable.Price.Amount = 40000
	cable.Constraints.MaxOnlineOrderValue = int64p(50000)
	assert.NoError(t, Validate(policy, 0, []Line{{ServiceID: 2, Quantity: 2}}, catalog(cable)))

	cable.Constraints.RequiresQuote = true
	err = Validate(policy, 0, []Line{{ServiceID: 2, Quantity: 2}}, catalog(cable))
	assert.ErrorIs(t, err, subscriptiondomain.ErrRequiresQuote)
}

func TestValidate_QuoteLimitOnOverflowingValue(t *testing.T) {
	design := service(1)
	design.Category = catalogdomain.CategoryDesign
	design.Price.Amount = 1_000_000_000_000
	design.Constraints.MaxQuantityPerUser = 10_000_000
	design.Constraints.MaxOnlineOrderValue = int64p(100000)

	err := Validate(policy, 0, []Line{{ServiceID: 1, Quantity: 10_000_000}}, catalog(design))
	assert.ErrorIs(t, err, subscriptiondomain.ErrRequiresQuote)
}

func TestValidate_UserCapCheckedFirst(t *testing.T) {
	err := Validate(policy, 5, []Line{{ServiceID: 99, Quantity: 10}}, catalog())
	assert.ErrorIs(t, err, subscriptiondomain.ErrUserLimitReached)
}

func TestValidate_FailsFastOnFirstLine(t *testing.T) {
	full := service(2)
	full.Availability.MaxSubscriptions = int64p(0)

	err := Validate(policy, 0, []Line{
		{ServiceID: 1, Quantity: 4},
		{ServiceID: 2, Quantity: 1},
	}, catalog(service(1), full))
	assert.ErrorIs(t, err, subscriptiondomain.ErrQuantityExceeded)
}
