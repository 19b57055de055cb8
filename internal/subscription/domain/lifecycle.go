package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/servicehub/internal/billingcycle"
)

// The functions in this file are the subscription state machine. Each takes
// the current aggregate by value and returns the next one; the input is never
// modified and a rejected transition returns the zero value with an error.

// NewParams carries the already validated inputs of a new subscription.
type NewParams struct {
	ID           snowflake.ID
	UserID       snowflake.ID
	Items        []LineItem
	Pricing      Pricing
	BillingCycle billingcycle.Cycle
	StartDate    time.Time
	EndDate      *time.Time
	Installation bool
	InstallAt    *time.Time
	Address      Address
	Metadata     Metadata
	Note         string
	Author       string
	Now          time.Time
}

// New builds a subscription in its entry state.
func New(p NewParams) (Subscription, error) {
	next, err := billingcycle.NextBillingDate(p.StartDate, p.BillingCycle)
	if err != nil {
		return Subscription{}, err
	}
	if p.EndDate != nil && !p.EndDate.After(p.StartDate) {
		return Subscription{}, ErrInvalidSchedule
	}
	if p.ID == 0 || p.UserID == 0 {
		return Subscription{}, ErrInvalidID
	}

	out := Subscription{ID: p.ID, UserID: p.UserID}
	out.Items = p.Items
	out.Pricing = p.Pricing
	out.BillingCycle = p.BillingCycle
	out.Status = StatusPending
	out.PaymentStatus = PaymentStatusPending
	out.Dates = Dates{
		StartDate:       p.StartDate,
		EndDate:         p.EndDate,
		NextBillingDate: next,
	}
	out.Installation = Installation{Status: InstallationNotRequired}
	if p.Installation {
		out.Installation = Installation{IsRequired: true, Status: InstallationScheduled, ScheduledDate: p.InstallAt}
	}
	out.Address = p.Address
	out.Metadata = p.Metadata
	out.PaymentHistory = []PaymentRecord{}
	out.Notes = []Note{}
	if msg := strings.TrimSpace(p.Note); msg != "" {
		out.Notes = append(out.Notes, Note{At: p.Now, Author: p.Author, Message: msg})
	}
	out.CreatedAt = p.Now
	out.UpdatedAt = p.Now
	return out, nil
}

// Cancel moves any subscription that is not already cancelled or expired to cancelled.
func Cancel(sub Subscription, reason, author string, now time.Time) (Subscription, error) {
	if sub.Status == StatusCancelled || sub.Status == StatusExpired {
		return Subscription{}, fmt.Errorf("%w: cannot cancel %s subscription", ErrInvalidTransition, sub.Status)
	}

	out := sub.Clone()
	out.Status = StatusCancelled
	out.Dates.CancelledDate = &now
	out.Notes = appendNote(out.Notes, now, author, reason)
	out.UpdatedAt = now
	return out, nil
}

// Pause is only valid for active subscriptions.
func Pause(sub Subscription, reason, author string, now time.Time) (Subscription, error) {
	if sub.Status != StatusActive {
		return Subscription{}, fmt.Errorf("%w: cannot pause %s subscription", ErrInvalidTransition, sub.Status)
	}

	out := sub.Clone()
	out.Status = StatusPaused
	out.Dates.PausedDate = &now
	out.Notes = appendNote(out.Notes, now, author, reason)
	out.UpdatedAt = now
	return out, nil
}

// Resume is only valid for paused subscriptions.
func Resume(sub Subscription, author string, now time.Time) (Subscription, error) {
	if sub.Status != StatusPaused {
		return Subscription{}, fmt.Errorf("%w: cannot resume %s subscription", ErrInvalidTransition, sub.Status)
	}

	out := sub.Clone()
	out.Status = StatusActive
	out.Dates.PausedDate = nil
	out.Notes = appendNote(out.Notes, now, author, "resumed")
	out.UpdatedAt = now
	return out, nil
}

// AddPayment appends record to the payment history. A successful payment
// marks the subscription paid but leaves its status untouched.
func AddPayment(sub Subscription, record PaymentRecord, now time.Time) (Subscription, error) {
	record, err := normalizePayment(record, sub.Pricing.Currency)
	if err != nil {
		return Subscription{}, err
	}

	out := sub.Clone()
	if record.Status == PaymentRecordSuccess {
		if record.PaidAt == nil {
			paidAt := now
			record.PaidAt = &paidAt
		}
		lastPayment := *record.PaidAt
		out.PaymentStatus = PaymentStatusPaid
		out.Dates.LastPaymentDate = &lastPayment
	}
	out.PaymentHistory = append(out.PaymentHistory, record)
	out.UpdatedAt = now
	return out, nil
}

// Override sets status on behalf of an administrator. Cancel, pause and
// resume from paused go through their transitions so side effects apply;
// every other target is written directly.
func Override(sub Subscription, target Status, reason, author string, now time.Time) (Subscription, error) {
	if !target.Valid() {
		return Subscription{}, ErrInvalidStatus
	}
	if target == sub.Status {
		return Subscription{}, fmt.Errorf("%w: subscription already %s", ErrInvalidTransition, target)
	}

	switch {
	case target == StatusCancelled:
		return Cancel(sub, reason, author, now)
	case target == StatusPaused:
		return Pause(sub, reason, author, now)
	case target == StatusActive && sub.Status == StatusPaused:
		out, err := Resume(sub, author, now)
		if err != nil {
			return Subscription{}, err
		}
		out.Notes = appendNote(out.Notes, now, author, reason)
		return out, nil
	}

	out := sub.Clone()
	message := fmt.Sprintf("status changed from %s to %s", sub.Status, target)
	if r := strings.TrimSpace(reason); r != "" {
		message += ": " + r
	}
	out.Status = target
	out.Notes = appendNote(out.Notes, now, author, message)
	out.UpdatedAt = now
	return out, nil
}

// ScheduleChange describes an administrative change to the billing schedule.
type ScheduleChange struct {
	StartDate    *time.Time
	BillingCycle *billingcycle.Cycle
	EndDate      *time.Time
	ClearEndDate bool
}

// Reschedule changes the start date, billing cycle or end date and recomputes
// the next billing date.
func Reschedule(sub Subscription, change ScheduleChange, author string, now time.Time) (Subscription, error) {
	if sub.Status == StatusCancelled || sub.Status == StatusExpired {
		return Subscription{}, fmt.Errorf("%w: cannot reschedule %s subscription", ErrInvalidTransition, sub.Status)
	}
	if change.StartDate == nil && change.BillingCycle == nil && change.EndDate == nil && !change.ClearEndDate {
		return Subscription{}, ErrInvalidSchedule
	}

	out := sub.Clone()
	if change.StartDate != nil {
		out.Dates.StartDate = *change.StartDate
	}
	if change.BillingCycle != nil {
		if !change.BillingCycle.Valid() {
			return Subscription{}, billingcycle.ErrInvalidBillingCycle
		}
		out.BillingCycle = *change.BillingCycle
	}
	if change.ClearEndDate {
		out.Dates.EndDate = nil
	} else if change.EndDate != nil {
		end := *change.EndDate
		out.Dates.EndDate = &end
	}
	if out.Dates.EndDate != nil && !out.Dates.EndDate.After(out.Dates.StartDate) {
		return Subscription{}, ErrInvalidSchedule
	}

	next, err := billingcycle.NextBillingDate(out.Dates.StartDate, out.BillingCycle)
	if err != nil {
		return Subscription{}, err
	}
	out.Dates.NextBillingDate = next
	out.Notes = appendNote(out.Notes, now, author, fmt.Sprintf("schedule changed: start %s, cycle %s",
		out.Dates.StartDate.Format(time.DateOnly), out.BillingCycle))
	out.UpdatedAt = now
	return out, nil
}

// InstallationChange describes an update to the installation visit.
type InstallationChange struct {
	ScheduledDate *time.Time
	Status        *InstallationStatus
	Technician    *Technician
	Notes         *string
}

// UpdateInstallation applies change to a subscription that requires installation.
func UpdateInstallation(sub Subscription, change InstallationChange, author string, now time.Time) (Subscription, error) {
	if sub.Status == StatusCancelled || sub.Status == StatusExpired {
		return Subscription{}, fmt.Errorf("%w: cannot update installation of %s subscription", ErrInvalidTransition, sub.Status)
	}
	if !sub.Installation.IsRequired {
		return Subscription{}, fmt.Errorf("%w: installation not required", ErrInvalidInstallation)
	}

	out := sub.Clone()
	if change.ScheduledDate != nil {
		scheduled := *change.ScheduledDate
		out.Installation.ScheduledDate = &scheduled
	}
	if change.Status != nil {
		status := *change.Status
		if !status.Valid() || status == InstallationNotRequired {
			return Subscription{}, ErrInvalidInstallation
		}
		if out.Installation.Status == InstallationCompleted && status != InstallationCompleted {
			return Subscription{}, fmt.Errorf("%w: installation already completed", ErrInvalidTransition)
		}
		out.Installation.Status = status
	}
	if change.Technician != nil {
		tech := Technician{
			Name:  strings.TrimSpace(change.Technician.Name),
			Phone: strings.TrimSpace(change.Technician.Phone),
		}
		if tech.Name == "" {
			return Subscription{}, ErrInvalidInstallation
		}
		out.Installation.Technician = &tech
	}
	if change.Notes != nil {
		out.Installation.Notes = strings.TrimSpace(*change.Notes)
	}
	if change.Status != nil && *change.Status == InstallationScheduled && out.Installation.ScheduledDate == nil {
		return Subscription{}, fmt.Errorf("%w: scheduled installation needs a date", ErrInvalidInstallation)
	}

	out.Notes = appendNote(out.Notes, now, author, "installation "+string(out.Installation.Status))
	out.UpdatedAt = now
	return out, nil
}

func normalizePayment(record PaymentRecord, defaultCurrency string) (PaymentRecord, error) {
	if record.Amount < 0 {
		return PaymentRecord{}, ErrInvalidPayment
	}
	if !record.Method.Valid() {
		return PaymentRecord{}, ErrInvalidPaymentMethod
	}
	if record.Status == "" {
		record.Status = PaymentRecordPending
	}
	if !record.Status.Valid() {
		return PaymentRecord{}, ErrInvalidPayment
	}
	record.Currency = strings.ToUpper(strings.TrimSpace(record.Currency))
	if record.Currency == "" {
		record.Currency = defaultCurrency
	}
	record.TransactionID = strings.TrimSpace(record.TransactionID)
	record.Notes = strings.TrimSpace(record.Notes)
	if record.PaidAt != nil {
		paidAt := *record.PaidAt
		record.PaidAt = &paidAt
	}
	return record, nil
}

func appendNote(notes []Note, at time.Time, author, message string) []Note {
	message = strings.TrimSpace(message)
	if message == "" {
		return notes
	}
	return append(notes, Note{At: at, Author: author, Message: message})
}
