package domain

import (
	"regexp"
	"strings"
)

const DefaultCountry = "India"

var pincodePattern = regexp.MustCompile(`^\d{6}$`)

// Normalize trims every field, defaults the country and validates the result.
func (a Address) Normalize() (Address, error) {
	out := Address{
		Street:   strings.TrimSpace(a.Street),
		City:     strings.TrimSpace(a.City),
		State:    strings.TrimSpace(a.State),
		Pincode:  strings.TrimSpace(a.Pincode),
		Country:  strings.TrimSpace(a.Country),
		Landmark: strings.TrimSpace(a.Landmark),
	}
	if out.Country == "" {
		out.Country = DefaultCountry
	}
	if out.Street == "" || out.City == "" || out.State == "" {
		return Address{}, ErrInvalidAddress
	}
	if !pincodePattern.MatchString(out.Pincode) {
		return Address{}, ErrInvalidPincode
	}
	return out, nil
}
