package weather

import (
	"errors"
	"fmt"
)

var (
	// ErrProviderUnavailable means the forecast provider could not be
	// reached after exhausting the retry budget.
	ErrProviderUnavailable = errors.New("forecast provider unavailable")

	// ErrUserNotFound is returned when a referenced user does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrUserExists is returned on an attempt to register a duplicate
	// username.
	ErrUserExists = errors.New("user already exists")

	// ErrCityNotFound is returned when a city is unknown or not in the
	// requesting user's tracked list.
	ErrCityNotFound = errors.New("city not found")

	// ErrNoDataAtTime is returned when no sample exists at the resolved
	// forecast time.
	ErrNoDataAtTime = errors.New("no weather data at requested time")

	// ErrInvalidParameter is returned for an unknown weather field name.
	ErrInvalidParameter = errors.New("invalid weather parameter")

	// ErrTimeFormatInvalid is returned when a requested time does not
	// parse as HH:MM.
	ErrTimeFormatInvalid = errors.New("invalid time format, expected HH:MM")

	// ErrStoreIO wraps persistence-layer failures.
	ErrStoreIO = errors.New("store io failure")
)

// ProviderError carries the upstream status and body of a non-success
// provider response for diagnostics.
type ProviderError struct {
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("forecast provider returned status %d: %s", e.StatusCode, e.Body)
}
