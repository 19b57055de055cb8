package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/servicehub/internal/billingcycle"
	catalogdomain "github.com/smallbiznis/servicehub/internal/catalog/domain"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
	StatusFailed    Status = "failed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusPaused, StatusCancelled, StatusExpired, StatusFailed:
		return true
	default:
		return false
	}
}

// Terminal statuses free the capacity held by the subscription.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusExpired || s == StatusFailed
}

// CountedStatuses are the statuses that count toward the per-user cap.
var CountedStatuses = []Status{StatusPending, StatusActive, StatusPaused}

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
	PaymentStatusPartial  PaymentStatus = "partial"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusFailed, PaymentStatusRefunded, PaymentStatusPartial:
		return true
	default:
		return false
	}
}

type PaymentMethod string

const (
	PaymentMethodCard       PaymentMethod = "card"
	PaymentMethodUPI        PaymentMethod = "upi"
	PaymentMethodNetbanking PaymentMethod = "netbanking"
	PaymentMethodWallet     PaymentMethod = "wallet"
	PaymentMethodCash       PaymentMethod = "cash"
	PaymentMethodCheque     PaymentMethod = "cheque"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCard, PaymentMethodUPI, PaymentMethodNetbanking, PaymentMethodWallet, PaymentMethodCash, PaymentMethodCheque:
		return true
	default:
		return false
	}
}

type PaymentRecordStatus string

const (
	PaymentRecordPending  PaymentRecordStatus = "pending"
	PaymentRecordSuccess  PaymentRecordStatus = "success"
	PaymentRecordFailed   PaymentRecordStatus = "failed"
	PaymentRecordRefunded PaymentRecordStatus = "refunded"
)

func (s PaymentRecordStatus) Valid() bool {
	switch s {
	case PaymentRecordPending, PaymentRecordSuccess, PaymentRecordFailed, PaymentRecordRefunded:
		return true
	default:
		return false
	}
}

type InstallationStatus string

const (
	InstallationNotRequired InstallationStatus = "not-required"
	InstallationScheduled   InstallationStatus = "scheduled"
	InstallationInProgress  InstallationStatus = "in-progress"
	InstallationCompleted   InstallationStatus = "completed"
	InstallationFailed      InstallationStatus = "failed"
)

func (s InstallationStatus) Valid() bool {
	switch s {
	case InstallationNotRequired, InstallationScheduled, InstallationInProgress, InstallationCompleted, InstallationFailed:
		return true
	default:
		return false
	}
}

// PriceSnapshot freezes the service price at subscription time.
type PriceSnapshot struct {
	Amount       int64              `json:"amount"`
	Currency     string             `json:"currency"`
	BillingCycle billingcycle.Cycle `json:"billing_cycle"`
}

type LineItem struct {
	ServiceID           snowflake.ID             `json:"service_id,string"`
	Quantity            int64                    `json:"quantity"`
	Customizations      catalogdomain.Attributes `json:"customizations,omitempty"`
	PriceAtSubscription PriceSnapshot            `json:"price_at_subscription"`
}

type Pricing struct {
	Subtotal  int64  `json:"subtotal"`
	Taxes     int64  `json:"taxes"`
	Discounts int64  `json:"discounts"`
	Total     int64  `json:"total"`
	Currency  string `json:"currency"`
}

type Dates struct {
	StartDate       time.Time  `json:"start_date"`
	EndDate         *time.Time `json:"end_date,omitempty"`
	NextBillingDate *time.Time `json:"next_billing_date"`
	LastPaymentDate *time.Time `json:"last_payment_date,omitempty"`
	CancelledDate   *time.Time `json:"cancelled_date,omitempty"`
	PausedDate      *time.Time `json:"paused_date,omitempty"`
}

type Technician struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type Installation struct {
	IsRequired    bool               `json:"is_required"`
	ScheduledDate *time.Time         `json:"scheduled_date,omitempty"`
	Status        InstallationStatus `json:"status"`
	Technician    *Technician        `json:"technician,omitempty"`
	Notes         string             `json:"notes,omitempty"`
}

type Address struct {
	Street   string `json:"street"`
	City     string `json:"city"`
	State    string `json:"state"`
	Pincode  string `json:"pincode"`
	Country  string `json:"country"`
	Landmark string `json:"landmark,omitempty"`
}

type PaymentRecord struct {
	Amount        int64               `json:"amount"`
	Currency      string              `json:"currency"`
	Method        PaymentMethod       `json:"method"`
	TransactionID string              `json:"transaction_id,omitempty"`
	Status        PaymentRecordStatus `json:"status"`
	PaidAt        *time.Time          `json:"paid_at,omitempty"`
	Notes         string              `json:"notes,omitempty"`
}

type Metadata struct {
	Source       string   `json:"source,omitempty"`
	ReferralCode string   `json:"referral_code,omitempty"`
	PromoCode    string   `json:"promo_code,omitempty"`
	Tags         []string `json:"tags,omitempty"`
}

// Note is one entry of the append-only audit trail.
type Note struct {
	At      time.Time `json:"at"`
	Author  string    `json:"author"`
	Message string    `json:"message"`
}

// Subscription is the aggregate mutated by the lifecycle functions.
type Subscription struct {
	ID             snowflake.ID       `json:"id,string"`
	UserID         snowflake.ID       `json:"user_id,string"`
	Items          []LineItem         `json:"services"`
	Pricing        Pricing            `json:"pricing"`
	BillingCycle   billingcycle.Cycle `json:"billing_cycle"`
	Status         Status             `json:"status"`
	PaymentStatus  PaymentStatus      `json:"payment_status"`
	Dates          Dates              `json:"dates"`
	Installation   Installation       `json:"installation"`
	Address        Address            `json:"address"`
	PaymentHistory []PaymentRecord    `json:"payment_history"`
	Metadata       Metadata           `json:"metadata"`
	Notes          []Note             `json:"notes"`

	// CapacityReleased is set once the service counters held by this
	// subscription have been decremented.
	CapacityReleased bool `json:"-"`
	// Version guards concurrent writers; every successful Update bumps it.
	Version int64 `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ServiceIDs lists the referenced services in line order.
func (s *Subscription) ServiceIDs() []snowflake.ID {
	ids := make([]snowflake.ID, 0, len(s.Items))
	for _, item := range s.Items {
		ids = append(ids, item.ServiceID)
	}
	return ids
}

// Clone returns a deep copy so transitions never share state with their input.
func (s Subscription) Clone() Subscription {
	out := s

	if s.Items != nil {
		out.Items = make([]LineItem, len(s.Items))
		for i, item := range s.Items {
			item.Customizations = item.Customizations.Clone()
			out.Items[i] = item
		}
	}
	out.Dates = Dates{
		StartDate:       s.Dates.StartDate,
		EndDate:         cloneTime(s.Dates.EndDate),
		NextBillingDate: cloneTime(s.Dates.NextBillingDate),
		LastPaymentDate: cloneTime(s.Dates.LastPaymentDate),
		CancelledDate:   cloneTime(s.Dates.CancelledDate),
		PausedDate:      cloneTime(s.Dates.PausedDate),
	}
	out.Installation.ScheduledDate = cloneTime(s.Installation.ScheduledDate)
	if s.Installation.Technician != nil {
		tech := *s.Installation.Technician
		out.Installation.Technician = &tech
	}
	if s.PaymentHistory != nil {
		out.PaymentHistory = make([]PaymentRecord, len(s.PaymentHistory))
		for i, record := range s.PaymentHistory {
			record.PaidAt = cloneTime(record.PaidAt)
			out.PaymentHistory[i] = record
		}
	}
	if s.Metadata.Tags != nil {
		out.Metadata.Tags = make([]string, len(s.Metadata.Tags))
		copy(out.Metadata.Tags, s.Metadata.Tags)
	}
	if s.Notes != nil {
		out.Notes = make([]Note, len(s.Notes))
		copy(out.Notes, s.Notes)
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
