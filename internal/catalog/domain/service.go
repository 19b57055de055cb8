package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/servicehub/pkg/db/pagination"
)

type CatalogService interface {
	Create(ctx context.Context, req CreateRequest) (*Service, error)
	Update(ctx context.Context, id string, req UpdateRequest) (*Service, error)
	Get(ctx context.Context, idOrSlug string) (*Service, error)
	List(ctx context.Context, req ListRequest) (*ListResponse, error)
}

type PriceInput struct {
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	BillingCycle string `json:"billing_cycle"`
}

type CreateRequest struct {
	Name                  string            `json:"name"`
	Category              string            `json:"category"`
	Description           string            `json:"description"`
	Price                 PriceInput        `json:"price"`
	IsActive              *bool             `json:"is_active"`
	MaxSubscriptions      *int64            `json:"max_subscriptions"`
	MaxQuantityPerUser    *int64            `json:"max_quantity_per_user"`
	MinSubscriptionPeriod int               `json:"min_subscription_period"`
	MaxOnlineOrderValue   *int64            `json:"max_online_order_value"`
	RequiresQuote         bool              `json:"requires_quote"`
	Specifications        map[string]string `json:"specifications"`
	Features              []string          `json:"features"`
	Tags                  []string          `json:"tags"`
}

// UpdateRequest applies only the fields that are set.
type UpdateRequest struct {
	Name                  *string           `json:"name"`
	Category              *string           `json:"category"`
	Description           *string           `json:"description"`
	Price                 *PriceInput       `json:"price"`
	IsActive              *bool             `json:"is_active"`
	MaxSubscriptions      *int64            `json:"max_subscriptions"`
	ClearMaxSubscriptions bool              `json:"clear_max_subscriptions"`
	MaxQuantityPerUser    *int64            `json:"max_quantity_per_user"`
	MinSubscriptionPeriod *int              `json:"min_subscription_period"`
	MaxOnlineOrderValue   *int64            `json:"max_online_order_value"`
	RequiresQuote         *bool             `json:"requires_quote"`
	Specifications        map[string]string `json:"specifications"`
	Features              []string          `json:"features"`
	Tags                  []string          `json:"tags"`
}

type ListRequest struct {
	pagination.Pagination
	Category   string `form:"category"`
	ActiveOnly bool   `form:"active_only"`
	Active     *bool  `form:"active"`
	Query      string `form:"q"`
}

type ListResponse struct {
	Services []*Service           `json:"services"`
	PageInfo *pagination.PageInfo `json:"page_info"`
}

var (
	ErrInvalidID          = errors.New("invalid_id")
	ErrInvalidName        = errors.New("invalid_name")
	ErrInvalidCategory    = errors.New("invalid_category")
	ErrInvalidPrice       = errors.New("invalid_price")
	ErrInvalidCurrency    = errors.New("invalid_currency")
	ErrInvalidConstraints = errors.New("invalid_constraints")
	ErrInvalidCapacity    = errors.New("invalid_capacity")
	ErrInvalidAttributes  = errors.New("invalid_attributes")
	ErrInvalidPageToken   = errors.New("invalid_page_token")
	ErrServiceNotFound    = errors.New("service_not_found")
	ErrSlugConflict       = errors.New("slug_conflict")
	ErrServiceUnavailable = errors.New("service_unavailable")
	ErrCapacityExceeded   = errors.New("capacity_exceeded")
)

// Catalog bounds keep line values (amount * quantity) far from int64 overflow.
const (
	MaxPriceAmount          int64 = 1_000_000_000_000
	MaxQuantityPerUserLimit int64 = 10_000
)
