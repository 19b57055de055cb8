package domain

import (
	"context"
	"time"

	"github.com/smallbiznis/servicehub/pkg/db/pagination"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Subscription, error)
	Get(ctx context.Context, id string) (*Subscription, error)
	List(ctx context.Context, req ListRequest) (*ListResponse, error)

	Cancel(ctx context.Context, id string, req ReasonRequest) (*Subscription, error)
	Pause(ctx context.Context, id string, req ReasonRequest) (*Subscription, error)
	Resume(ctx context.Context, id string) (*Subscription, error)
	AddPayment(ctx context.Context, id string, req PaymentRequest) (*Subscription, error)

	OverrideStatus(ctx context.Context, id string, req StatusRequest) (*Subscription, error)
	Reschedule(ctx context.Context, id string, req ScheduleRequest) (*Subscription, error)
	UpdateInstallation(ctx context.Context, id string, req InstallationRequest) (*Subscription, error)
	ListDueForBilling(ctx context.Context, req DueRequest) ([]*Subscription, error)
	ListExpiring(ctx context.Context, req DueRequest) ([]*Subscription, error)
}

type LineItemRequest struct {
	ServiceID      string            `json:"service_id"`
	Quantity       int64             `json:"quantity"`
	Customizations map[string]string `json:"customizations"`
}

type MetadataRequest struct {
	Source       string   `json:"source"`
	ReferralCode string   `json:"referral_code"`
	PromoCode    string   `json:"promo_code"`
	Tags         []string `json:"tags"`
}

type CreateRequest struct {
	// UserID lets administrators order on behalf of a user.
	UserID               string            `json:"user_id"`
	Services             []LineItemRequest `json:"services"`
	BillingCycle         string            `json:"billing_cycle"`
	StartDate            *time.Time        `json:"start_date"`
	EndDate              *time.Time        `json:"end_date"`
	InstallationRequired bool              `json:"installation_required"`
	InstallationDate     *time.Time        `json:"installation_date"`
	Address              Address           `json:"address"`
	Metadata             MetadataRequest   `json:"metadata"`
	Notes                string            `json:"notes"`
}

type ListRequest struct {
	pagination.Pagination
	Status string `form:"status"`
	UserID string `form:"user_id"`
}

type ListResponse struct {
	Subscriptions []*Subscription      `json:"subscriptions"`
	PageInfo      *pagination.PageInfo `json:"page_info"`
}

type ReasonRequest struct {
	Reason string `json:"reason"`
}

type PaymentRequest struct {
	Amount        int64      `json:"amount"`
	Currency      string     `json:"currency"`
	Method        string     `json:"method"`
	TransactionID string     `json:"transaction_id"`
	Status        string     `json:"status"`
	PaidAt        *time.Time `json:"paid_at"`
	Notes         string     `json:"notes"`
}

type StatusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

type ScheduleRequest struct {
	StartDate    *time.Time `json:"start_date"`
	BillingCycle *string    `json:"billing_cycle"`
	EndDate      *time.Time `json:"end_date"`
	ClearEndDate bool       `json:"clear_end_date"`
}

type InstallationRequest struct {
	ScheduledDate *time.Time  `json:"scheduled_date"`
	Status        *string     `json:"status"`
	Technician    *Technician `json:"technician"`
	Notes         *string     `json:"notes"`
}

type DueRequest struct {
	At    *time.Time `form:"at" time_format:"2006-01-02T15:04:05Z07:00"`
	Limit int        `form:"limit"`
}
