package validation

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxCityLen is the longest city name accepted, in runes.
const DefaultMaxCityLen = 100

var (
	// ErrCityEmpty is returned when the city is missing, empty or whitespace-only.
	ErrCityEmpty = errors.New("city is required")
	// ErrCityTooLong is returned when the city exceeds the maximum length.
	ErrCityTooLong = errors.New("city too long")
	// ErrCityInvalid is returned for invalid UTF-8 or control characters.
	ErrCityInvalid = errors.New("city contains invalid characters")
)

// ValidateCity rejects city names that cannot be a real lookup key and otherwise leaves
// them alone: no trimming, no case folding. Any printable name is passed through because
// the store matches cities exactly and the provider decides what exists.
// maxLen <= 0 uses DefaultMaxCityLen.
func ValidateCity(city string, maxLen int) error {
	if strings.TrimSpace(city) == "" {
		return ErrCityEmpty
	}
	if maxLen <= 0 {
		maxLen = DefaultMaxCityLen
	}
	if !utf8.ValidString(city) {
		return ErrCityInvalid
	}
	if utf8.RuneCountInString(city) > maxLen {
		return ErrCityTooLong
	}
	for _, r := range city {
		if unicode.IsControl(r) {
			return ErrCityInvalid
		}
	}
	return nil
}
