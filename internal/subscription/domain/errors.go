package domain

import (
	"errors"

	catalogdomain "github.com/smallbiznis/servicehub/internal/catalog/domain"
	"github.com/smallbiznis/servicehub/internal/pricing"
)

var (
	ErrInvalidID            = errors.New("invalid_id")
	ErrInvalidUser          = errors.New("invalid_user")
	ErrInvalidStatus        = errors.New("invalid_status")
	ErrInvalidPayment       = errors.New("invalid_payment")
	ErrInvalidPaymentMethod = errors.New("invalid_payment_method")
	ErrInvalidAddress       = errors.New("invalid_address")
	ErrInvalidPincode       = errors.New("invalid_pincode")
	ErrInvalidSchedule      = errors.New("invalid_schedule")
	ErrInvalidInstallation  = errors.New("invalid_installation")
	ErrInvalidCustomization = errors.New("invalid_customization")
	ErrInvalidQuantity      = errors.New("invalid_quantity")
	ErrInvalidPageToken     = errors.New("invalid_page_token")
	ErrEmptyOrder           = errors.New("empty_order")
	ErrDuplicateService     = errors.New("duplicate_service")
	ErrInvalidTransition    = errors.New("invalid_transition")
	ErrSubscriptionNotFound = errors.New("subscription_not_found")
	ErrConcurrentUpdate     = errors.New("concurrent_update")
	ErrForbidden            = errors.New("forbidden")

	ErrQuantityExceeded = errors.New("quantity_exceeded")
	ErrRequiresQuote    = errors.New("requires_quote")
	ErrUserLimitReached = errors.New("user_limit_reached")

	ErrServiceUnavailable = catalogdomain.ErrServiceUnavailable
	ErrCapacityExceeded   = catalogdomain.ErrCapacityExceeded
	ErrMixedCurrency      = pricing.ErrMixedCurrency
	ErrAmountOverflow     = pricing.ErrAmountOverflow
)
