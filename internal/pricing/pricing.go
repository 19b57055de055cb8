package pricing

import (
	"errors"
	"math"
	"strings"
)

// DefaultTaxRateBasisPoints is 18% GST.
const DefaultTaxRateBasisPoints int64 = 1800

const basisPointsDenominator = 10000

var (
	ErrMixedCurrency    = errors.New("mixed_currency")
	ErrInvalidQuantity  = errors.New("invalid_quantity")
	ErrInvalidUnitPrice = errors.New("invalid_unit_price")
	ErrInvalidTaxRate   = errors.New("invalid_tax_rate")
	ErrInvalidCurrency  = errors.New("invalid_currency")
	ErrAmountOverflow   = errors.New("amount_overflow")
)

// Line is one priced line item. Amounts are in the smallest currency unit.
type Line struct {
	UnitPrice int64
	Quantity  int64
	Currency  string
}

// Breakdown always satisfies Total == Subtotal + Taxes - Discounts.
type Breakdown struct {
	Subtotal  int64  `json:"subtotal"`
	Taxes     int64  `json:"taxes"`
	Discounts int64  `json:"discounts"`
	Total     int64  `json:"total"`
	Currency  string `json:"currency"`
}

// Calculate prices a basket with tax applied on the whole subtotal. Callers
// reject empty baskets; an empty slice prices to zero.
func Calculate(lines []Line, taxRateBasisPoints int64) (Breakdown, error) {
	if taxRateBasisPoints < 0 {
		return Breakdown{}, ErrInvalidTaxRate
	}

	currency := ""
	var subtotal int64
	for i, line := range lines {
		if line.Quantity < 1 {
			return Breakdown{}, ErrInvalidQuantity
		}
		if line.UnitPrice < 0 {
			return Breakdown{}, ErrInvalidUnitPrice
		}
		c := strings.ToUpper(strings.TrimSpace(line.Currency))
		if c == "" {
			return Breakdown{}, ErrInvalidCurrency
		}
		if i == 0 {
			currency = c
		} else if c != currency {
			return Breakdown{}, ErrMixedCurrency
		}

		amount, ok := MulAmount(line.UnitPrice, line.Quantity)
		if !ok {
			return Breakdown{}, ErrAmountOverflow
		}
		if subtotal, ok = AddAmount(subtotal, amount); !ok {
			return Breakdown{}, ErrAmountOverflow
		}
	}

	taxes, err := ComputeTaxExclusive(subtotal, taxRateBasisPoints)
	if err != nil {
		return Breakdown{}, err
	}
	total, ok := AddAmount(subtotal, taxes)
	if !ok {
		return Breakdown{}, ErrAmountOverflow
	}
	return Breakdown{
		Subtotal:  subtotal,
		Taxes:     taxes,
		Discounts: 0,
		Total:     total,
		Currency:  currency,
	}, nil
}

// ComputeTaxExclusive returns subtotal*rate rounded half up to the nearest unit.
func ComputeTaxExclusive(subtotal, rateBasisPoints int64) (int64, error) {
	if subtotal <= 0 || rateBasisPoints <= 0 {
		return 0, nil
	}
	scaled, ok := MulAmount(subtotal, rateBasisPoints)
	if !ok {
		return 0, ErrAmountOverflow
	}
	if scaled, ok = AddAmount(scaled, basisPointsDenominator/2); !ok {
		return 0, ErrAmountOverflow
	}
	return scaled / basisPointsDenominator, nil
}

// MulAmount multiplies two non-negative amounts, reporting false on overflow.
func MulAmount(a, b int64) (int64, bool) {
	if a < 0 || b < 0 {
		return 0, false
	}
	if a == 0 || b == 0 {
		return 0, true
	}
	if a > math.MaxInt64/b {
		return 0, false
	}
	return a * b, true
}

// AddAmount adds two non-negative amounts, reporting false on overflow.
func AddAmount(a, b int64) (int64, bool) {
	if a < 0 || b < 0 || a > math.MaxInt64-b {
		return 0, false
	}
	return a + b, true
}
