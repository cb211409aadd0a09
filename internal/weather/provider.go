package weather

import (
	"context"
	"time"
)

// ForecastClient abstracts the external forecast provider (Open-Meteo).
// Fetch returns a normalized bundle for the given coordinates or fails with
// ErrProviderUnavailable / *ProviderError.
type ForecastClient interface {
	Fetch(ctx context.Context, latitude, longitude float64) (ForecastBundle, error)
}

// SampleStore is the contract the time-series store must satisfy. All
// methods are safe for concurrent use; a single-row write is visible to
// readers as an atomic step.
type SampleStore interface {
	// UpsertMany inserts or overwrites one row per (city, forecast wall
	// time) key for each sample in the batch.
	UpsertMany(ctx context.Context, cityID string, samples []WeatherSample) error

	// QueryAt returns the sample whose local forecast time matches the
	// given hour and minute exactly, preferring the newest forecast time
	// when the retention window briefly holds two days with the same
	// wall-clock hour. Returns ErrNoDataAtTime when absent.
	QueryAt(ctx context.Context, cityID string, hour, minute int) (WeatherSample, error)

	// DeleteOlderThan removes, for each listed city, every sample whose
	// forecast instant precedes that city's UTC cutoff. Cities absent
	// from the map are left untouched. Returns the number of rows
	// removed.
	DeleteOlderThan(ctx context.Context, cutoffs map[string]time.Time) (int, error)
}

// Registry holds users, cities, and the tracked-city association.
type Registry interface {
	CreateUser(ctx context.Context, username string) (User, error)
	GetUser(ctx context.Context, userID string) (User, error)

	// CreateCityIfAbsent returns the existing city with the given name or
	// creates a new one. City names are unique.
	CreateCityIfAbsent(ctx context.Context, name string, latitude, longitude float64) (City, error)

	// SetCityTimezone records the provider-reported IANA zone for a city.
	SetCityTimezone(ctx context.Context, cityID, timezone string) error

	// LinkUserCity associates a user with a city. Returns false when the
	// link already existed.
	LinkUserCity(ctx context.Context, userID, cityID string) (bool, error)

	// UserCityByName returns the named city if the user tracks it,
	// ErrCityNotFound otherwise.
	UserCityByName(ctx context.Context, userID, name string) (City, error)

	ListUserCities(ctx context.Context, userID string) ([]City, error)

	// ListCities returns every tracked city, for the refresh cycle.
	ListCities(ctx context.Context) ([]City, error)
}
