package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/servicehub/internal/billingcycle"
)

type Category string

const (
	CategoryCable       Category = "Cable"
	CategorySilver      Category = "Silver"
	CategorySnacks      Category = "Snacks"
	CategoryInternet    Category = "Internet"
	CategoryGaming      Category = "Gaming"
	CategoryDesign      Category = "Design"
	CategoryDevelopment Category = "Development"
)

var categories = []Category{
	CategoryCable,
	CategorySilver,
	CategorySnacks,
	CategoryInternet,
	CategoryGaming,
	CategoryDesign,
	CategoryDevelopment,
}

// ParseCategory matches raw case-insensitively against the closed category set.
func ParseCategory(raw string) (Category, error) {
	raw = strings.TrimSpace(raw)
	for _, c := range categories {
		if strings.EqualFold(raw, string(c)) {
			return c, nil
		}
	}
	return "", ErrInvalidCategory
}

type Price struct {
	Amount       int64              `json:"amount"`
	Currency     string             `json:"currency"`
	BillingCycle billingcycle.Cycle `json:"billing_cycle"`
}

type Availability struct {
	IsActive             bool   `json:"is_active"`
	MaxSubscriptions     *int64 `json:"max_subscriptions,omitempty"`
	CurrentSubscriptions int64  `json:"current_subscriptions"`
}

// HasCapacity reports whether one more subscription fits.
func (a Availability) HasCapacity() bool {
	return a.MaxSubscriptions == nil || a.CurrentSubscriptions < *a.MaxSubscriptions
}

type Constraints struct {
	MaxQuantityPerUser    int64  `json:"max_quantity_per_user"`
	MinSubscriptionPeriod int    `json:"min_subscription_period"`
	MaxOnlineOrderValue   *int64 `json:"max_online_order_value,omitempty"`
	RequiresQuote         bool   `json:"requires_quote"`
}

// Service is an orderable catalog entry.
type Service struct {
	ID             snowflake.ID `json:"id,string"`
	Name           string       `json:"name"`
	Slug           string       `json:"slug"`
	Category       Category     `json:"category"`
	Description    string       `json:"description,omitempty"`
	Price          Price        `json:"price"`
	Availability   Availability `json:"availability"`
	Constraints    Constraints  `json:"constraints"`
	Specifications Attributes   `json:"specifications,omitempty"`
	Features       []string     `json:"features,omitempty"`
	Tags           []string     `json:"tags,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// RequiresQuote reports whether orders above the online limit need a manual
// quote. quoteCategories comes from the commerce policy.
func (s *Service) RequiresQuote(quoteCategories []string) bool {
	if s.Constraints.RequiresQuote {
		return true
	}
	for _, c := range quoteCategories {
		if strings.EqualFold(strings.TrimSpace(c), string(s.Category)) {
			return true
		}
	}
	return false
}
