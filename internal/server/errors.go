package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/servicehub/internal/authorization"
	"github.com/smallbiznis/servicehub/internal/billingcycle"
	catalogdomain "github.com/smallbiznis/servicehub/internal/catalog/domain"
	"github.com/smallbiznis/servicehub/internal/pricing"
	subscriptiondomain "github.com/smallbiznis/servicehub/internal/subscription/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrOrderInFlight      = errors.New("order_in_flight")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

// Ordered so wrapped errors resolve to their most specific code.
var validationErrors = []error{
	ErrInvalidRequest,
	catalogdomain.ErrInvalidID,
	catalogdomain.ErrInvalidName,
	catalogdomain.ErrInvalidCategory,
	catalogdomain.ErrInvalidPrice,
	catalogdomain.ErrInvalidCurrency,
	catalogdomain.ErrInvalidConstraints,
	catalogdomain.ErrInvalidCapacity,
	catalogdomain.ErrInvalidAttributes,
	catalogdomain.ErrInvalidPageToken,
	subscriptiondomain.ErrInvalidID,
	subscriptiondomain.ErrInvalidStatus,
	subscriptiondomain.ErrInvalidPayment,
	subscriptiondomain.ErrInvalidPaymentMethod,
	subscriptiondomain.ErrInvalidAddress,
	subscriptiondomain.ErrInvalidPincode,
	subscriptiondomain.ErrInvalidSchedule,
	subscriptiondomain.ErrInvalidInstallation,
	subscriptiondomain.ErrInvalidCustomization,
	subscriptiondomain.ErrInvalidQuantity,
	subscriptiondomain.ErrInvalidPageToken,
	subscriptiondomain.ErrEmptyOrder,
	subscriptiondomain.ErrDuplicateService,
	subscriptiondomain.ErrMixedCurrency,
	subscriptiondomain.ErrAmountOverflow,
	billingcycle.ErrInvalidBillingCycle,
	pricing.ErrInvalidQuantity,
	pricing.ErrInvalidUnitPrice,
	pricing.ErrInvalidCurrency,
}

var capacityErrors = []error{
	subscriptiondomain.ErrUserLimitReached,
	subscriptiondomain.ErrServiceUnavailable,
	subscriptiondomain.ErrQuantityExceeded,
	subscriptiondomain.ErrCapacityExceeded,
	subscriptiondomain.ErrRequiresQuote,
}

var conflictErrors = []error{
	catalogdomain.ErrSlugConflict,
	subscriptiondomain.ErrConcurrentUpdate,
	subscriptiondomain.ErrInvalidTransition,
	ErrOrderInFlight,
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if code := matchCode(err, validationErrors); code != "" {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: detailMessage(err, code, "invalid value"),
				},
			},
		}
	}

	if code := matchCode(err, capacityErrors); code != "" {
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "capacity_error",
			Message: detailMessage(err, code, "order cannot be fulfilled"),
			Errors: []ValidationError{
				{
					Field:   "services",
					Code:    code,
					Message: detailMessage(err, code, "order cannot be fulfilled"),
				},
			},
		}
	}

	if code := matchCode(err, conflictErrors); code != "" {
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: detailMessage(err, code, "conflict"),
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, authorization.ErrInvalidActor),
		errors.Is(err, subscriptiondomain.ErrInvalidUser):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden),
		errors.Is(err, subscriptiondomain.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog reports the response type and code the request log records.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, catalogdomain.ErrServiceNotFound),
		errors.Is(err, subscriptiondomain.ErrSubscriptionNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func matchCode(err error, candidates []error) string {
	for _, candidate := range candidates {
		if errors.Is(err, candidate) {
			return candidate.Error()
		}
	}
	return ""
}

// detailMessage returns the wrapped context of err, or fallback when err is
// the bare sentinel.
func detailMessage(err error, code, fallback string) string {
	msg := strings.TrimSpace(err.Error())
	if msg == code {
		return fallback
	}
	return msg
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "empty_order", "duplicate_service", "mixed_currency", "amount_overflow":
		return "services"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}
