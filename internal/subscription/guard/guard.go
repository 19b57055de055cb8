// Package guard validates a proposed order against per-user and per-service
// limits before anything is persisted.
package guard

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/servicehub/internal/catalog/domain"
	"github.com/smallbiznis/servicehub/internal/pricing"
	subscriptiondomain "github.com/smallbiznis/servicehub/internal/subscription/domain"
)

// Policy holds the configurable limits.
type Policy struct {
	MaxActivePerUser int
	QuoteCategories  []string
}

type Line struct {
	ServiceID snowflake.ID
	Quantity  int64
}

// Validate checks the per-user cap first, then every line in order. The first
// violation is returned.
func Validate(policy Policy, activeCount int64, lines []Line, services map[snowflake.ID]*catalogdomain.Service) error {
	if policy.MaxActivePerUser > 0 && activeCount >= int64(policy.MaxActivePerUser) {
		return fmt.Errorf("%w: %d of %d subscriptions in use", subscriptiondomain.ErrUserLimitReached, activeCount, policy.MaxActivePerUser)
	}

	for _, line := range lines {
		if err := validateLine(policy, line, services[line.ServiceID]); err != nil {
			return err
		}
	}
	return nil
}

func validateLine(policy Policy, line Line, service *catalogdomain.Service) error {
	if service == nil || !service.Availability.IsActive {
		return fmt.Errorf("%w: service %s", subscriptiondomain.ErrServiceUnavailable, line.ServiceID)
	}
	if line.Quantity > service.Constraints.MaxQuantityPerUser {
		return fmt.Errorf("%w: service %s allows %d", subscriptiondomain.ErrQuantityExceeded, line.ServiceID, service.Constraints.MaxQuantityPerUser)
	}
	if !service.Availability.HasCapacity() {
		return fmt.Errorf("%w: service %s", subscriptiondomain.ErrCapacityExceeded, line.ServiceID)
	}
	if limit := service.Constraints.MaxOnlineOrderValue; limit != nil && service.RequiresQuote(policy.QuoteCategories) {
		value, ok := pricing.MulAmount(service.Price.Amount, line.Quantity)
		if !ok || value > *limit {
			return fmt.Errorf("%w: service %s", subscriptiondomain.ErrRequiresQuote, line.ServiceID)
		}
	}
	return nil
}
