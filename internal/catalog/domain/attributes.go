package domain

import (
	"regexp"
	"sort"
	"unicode/utf8"
)

const (
	MaxAttributeEntries     = 32
	MaxAttributeValueLength = 512
)

var attributeKeyPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,63}$`)

// Attributes is a bounded string map used for service specifications and
// line item customizations. Keys are lower snake case.
type Attributes map[string]string

func (a Attributes) Validate() error {
	if len(a) > MaxAttributeEntries {
		return ErrInvalidAttributes
	}
	for key, value := range a {
		if !attributeKeyPattern.MatchString(key) {
			return ErrInvalidAttributes
		}
		if utf8.RuneCountInString(value) > MaxAttributeValueLength {
			return ErrInvalidAttributes
		}
	}
	return nil
}

// Keys returns the keys in lexical order.
func (a Attributes) Keys() []string {
	keys := make([]string, 0, len(a))
	for key := range a {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (a Attributes) Clone() Attributes {
	if a == nil {
		return nil
	}
	out := make(Attributes, len(a))
	for key, value := range a {
		out[key] = value
	}
	return out
}
