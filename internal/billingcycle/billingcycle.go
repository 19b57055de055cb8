package billingcycle

import (
	"errors"
	"strings"
	"time"
)

// Cycle is the recurrence period of a service price or subscription.
type Cycle string

const (
	OneTime   Cycle = "one-time"
	Monthly   Cycle = "monthly"
	Quarterly Cycle = "quarterly"
	Yearly    Cycle = "yearly"
)

var ErrInvalidBillingCycle = errors.New("invalid_billing_cycle")

// Parse normalizes raw into a known cycle.
func Parse(raw string) (Cycle, error) {
	c := Cycle(strings.ToLower(strings.TrimSpace(raw)))
	if !c.Valid() {
		return "", ErrInvalidBillingCycle
	}
	return c, nil
}

func (c Cycle) Valid() bool {
	switch c {
	case OneTime, Monthly, Quarterly, Yearly:
		return true
	default:
		return false
	}
}

func (c Cycle) Recurring() bool {
	return c.Valid() && c != OneTime
}

// NextBillingDate projects the next charge date from start. One-time cycles
// have no next billing date. Month overflow follows time.AddDate, so
// 2024-01-31 plus one month is 2024-03-02.
func NextBillingDate(start time.Time, cycle Cycle) (*time.Time, error) {
	var next time.Time
	switch cycle {
	case OneTime:
		return nil, nil
	case Monthly:
		next = start.AddDate(0, 1, 0)
	case Quarterly:
		next = start.AddDate(0, 3, 0)
	case Yearly:
		next = start.AddDate(1, 0, 0)
	default:
		return nil, ErrInvalidBillingCycle
	}
	return &next, nil
}
