package weather_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weather-tracker/internal/store"
	"weather-tracker/internal/weather"
)

type fakeClient struct {
	fetch func(latitude, longitude float64) (weather.ForecastBundle, error)
}

func (f *fakeClient) Fetch(ctx context.Context, latitude, longitude float64) (weather.ForecastBundle, error) {
	return f.fetch(latitude, longitude)
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// moscowBundle builds a one-day bundle with a sample at every hour of the
// current Moscow day.
func moscowBundle(t *testing.T) weather.ForecastBundle {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Moscow")
	require.NoError(t, err)

	day := time.Now().In(loc)
	midnight := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)

	bundle := weather.ForecastBundle{
		Timezone: "Europe/Moscow",
		Current:  weather.CurrentConditions{Temperature: 18.4, WindSpeed: 11.2, Pressure: 1012.3},
	}
	for h := 0; h < 24; h++ {
		bundle.Hourly = append(bundle.Hourly, weather.HourlyPoint{
			Time:          midnight.Add(time.Duration(h) * time.Hour),
			Temperature:   15 + float64(h)/10,
			Humidity:      55,
			WindSpeed:     10,
			Precipitation: 0.1,
		})
	}
	return bundle
}

func newTestService(t *testing.T, client weather.ForecastClient) (*weather.Service, *store.MemoryRegistry, *store.MemorySampleStore) {
	t.Helper()
	registry := store.NewMemoryRegistry()
	samples := store.NewMemorySampleStore()
	svc := weather.NewService(registry, samples, client, quietLogger(), nil, 24*time.Hour)
	return svc, registry, samples
}

func TestMoscowEndToEnd(t *testing.T) {
	ctx := context.Background()
	bundle := moscowBundle(t)
	client := &fakeClient{fetch: func(latitude, longitude float64) (weather.ForecastBundle, error) {
		return bundle, nil
	}}
	svc, _, _ := newTestService(t, client)

	user, err := svc.CreateUser(ctx, "test_user")
	require.NoError(t, err)

	result, err := svc.AddCityForUser(ctx, user.ID, "Moscow", 55.7558, 37.6176)
	require.NoError(t, err)
	require.NoError(t, result.FetchErr)
	assert.False(t, result.AlreadyTracked)
	assert.Equal(t, "Moscow", result.City.Name)

	// The initial fetch captured the provider-reported zone.
	cities, err := svc.ListUserCities(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, cities, 1)
	assert.Equal(t, "Europe/Moscow", cities[0].Timezone)

	got, err := svc.WeatherAt(ctx, user.ID, "Moscow", "12:00", "temperature,humidity")
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.InDelta(t, 16.2, got["temperature"], 1e-9)
	assert.Equal(t, 55.0, got["humidity"])

	// 12:07 rounds down to the same sample.
	rounded, err := svc.WeatherAt(ctx, user.ID, "Moscow", "12:07", "temperature")
	require.NoError(t, err)
	assert.Equal(t, got["temperature"], rounded["temperature"])

	// Re-adding the same city is reported, not duplicated.
	result, err = svc.AddCityForUser(ctx, user.ID, "Moscow", 55.7558, 37.6176)
	require.NoError(t, err)
	assert.True(t, result.AlreadyTracked)

	cities, err = svc.ListUserCities(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, cities, 1)
}

func TestWeatherAtInputErrors(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{fetch: func(latitude, longitude float64) (weather.ForecastBundle, error) {
		return moscowBundle(t), nil
	}}
	svc, _, _ := newTestService(t, client)

	user, err := svc.CreateUser(ctx, "test_user")
	require.NoError(t, err)
	_, err = svc.AddCityForUser(ctx, user.ID, "Moscow", 55.7558, 37.6176)
	require.NoError(t, err)

	_, err = svc.WeatherAt(ctx, user.ID, "Moscow", "noon", "")
	assert.ErrorIs(t, err, weather.ErrTimeFormatInvalid)

	_, err = svc.WeatherAt(ctx, user.ID, "Moscow", "12:00", "temperature,pressure")
	assert.ErrorIs(t, err, weather.ErrInvalidParameter)

	_, err = svc.WeatherAt(ctx, user.ID, "Berlin", "12:00", "")
	assert.ErrorIs(t, err, weather.ErrCityNotFound)

	_, err = svc.WeatherAt(ctx, "missing-user", "Moscow", "12:00", "")
	assert.ErrorIs(t, err, weather.ErrUserNotFound)
}

func TestRefreshAllIsolatesPerCityFailure(t *testing.T) {
	ctx := context.Background()
	bundle := moscowBundle(t)
	client := &fakeClient{fetch: func(latitude, longitude float64) (weather.ForecastBundle, error) {
		if latitude == 0 {
			return weather.ForecastBundle{}, weather.ErrProviderUnavailable
		}
		return bundle, nil
	}}
	svc, registry, samples := newTestService(t, client)

	broken, err := registry.CreateCityIfAbsent(ctx, "Nowhere", 0, 0)
	require.NoError(t, err)
	healthy, err := registry.CreateCityIfAbsent(ctx, "Moscow", 55.7558, 37.6176)
	require.NoError(t, err)

	report, err := svc.RefreshAll(ctx)
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 2)
	assert.Equal(t, 1, report.Failed())

	for _, outcome := range report.Outcomes {
		switch outcome.CityID {
		case broken.ID:
			assert.ErrorIs(t, outcome.Err, weather.ErrProviderUnavailable)
			assert.Zero(t, outcome.Samples)
		case healthy.ID:
			assert.NoError(t, outcome.Err)
			assert.Equal(t, 24, outcome.Samples)
		default:
			t.Fatalf("unexpected outcome for city %s", outcome.CityID)
		}
	}

	// The healthy city's samples made it to the store.
	_, err = samples.QueryAt(ctx, healthy.ID, 12, 0)
	assert.NoError(t, err)
}

func TestRefreshAllSweepsExpiredSamples(t *testing.T) {
	ctx := context.Background()
	loc, err := time.LoadLocation("Europe/Moscow")
	require.NoError(t, err)

	fresh := time.Now().In(loc).Truncate(time.Hour)
	stale := fresh.Add(-30 * time.Hour)

	bundle := weather.ForecastBundle{
		Timezone: "Europe/Moscow",
		Hourly: []weather.HourlyPoint{
			{Time: stale, Temperature: 1},
			{Time: fresh, Temperature: 2},
		},
	}
	client := &fakeClient{fetch: func(latitude, longitude float64) (weather.ForecastBundle, error) {
		return bundle, nil
	}}
	svc, registry, samples := newTestService(t, client)

	_, err = registry.CreateCityIfAbsent(ctx, "Moscow", 55.7558, 37.6176)
	require.NoError(t, err)

	report, err := svc.RefreshAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Failed())
	assert.Equal(t, 1, report.Evicted)

	city, err := registry.CreateCityIfAbsent(ctx, "Moscow", 55.7558, 37.6176)
	require.NoError(t, err)

	sample, err := samples.QueryAt(ctx, city.ID, fresh.Hour(), 0)
	require.NoError(t, err)
	assert.True(t, time.Since(sample.ForecastTime) <= 24*time.Hour,
		"surviving samples stay within the retention window")
}

func TestSweepSkipsCityWithoutTimezone(t *testing.T) {
	ctx := context.Background()
	loc, err := time.LoadLocation("Europe/Moscow")
	require.NoError(t, err)
	stale := time.Now().In(loc).Truncate(time.Hour).Add(-30 * time.Hour)

	// The provider reports no zone, so the city never gets one and the
	// sweeper must leave its samples alone instead of failing.
	bundle := weather.ForecastBundle{
		Hourly: []weather.HourlyPoint{{Time: stale, Temperature: 1}},
	}
	client := &fakeClient{fetch: func(latitude, longitude float64) (weather.ForecastBundle, error) {
		return bundle, nil
	}}
	svc, registry, samples := newTestService(t, client)

	city, err := registry.CreateCityIfAbsent(ctx, "Moscow", 55.7558, 37.6176)
	require.NoError(t, err)

	report, err := svc.RefreshAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Failed())
	assert.Zero(t, report.Evicted)

	_, err = samples.QueryAt(ctx, city.ID, stale.Hour(), 0)
	assert.NoError(t, err)
}

func TestRefreshAllIdempotentUpsert(t *testing.T) {
	ctx := context.Background()
	bundle := moscowBundle(t)
	client := &fakeClient{fetch: func(latitude, longitude float64) (weather.ForecastBundle, error) {
		return bundle, nil
	}}
	svc, registry, samples := newTestService(t, client)

	city, err := registry.CreateCityIfAbsent(ctx, "Moscow", 55.7558, 37.6176)
	require.NoError(t, err)

	_, err = svc.RefreshAll(ctx)
	require.NoError(t, err)
	_, err = svc.RefreshAll(ctx)
	require.NoError(t, err)

	// Counting via a delete-everything cutoff: the same bundle twice
	// leaves exactly one row per timestamp.
	removed, err := samples.DeleteOlderThan(ctx, map[string]time.Time{
		city.ID: time.Now().Add(48 * time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, 24, removed)
}

func TestRefreshAllStopsBetweenCitiesOnCancel(t *testing.T) {
	bundle := moscowBundle(t)

	ctx, cancel := context.WithCancel(context.Background())
	var fetches int
	client := &fakeClient{fetch: func(latitude, longitude float64) (weather.ForecastBundle, error) {
		fetches++
		cancel() // request shutdown while the first city is in flight
		return bundle, nil
	}}
	svc, registry, _ := newTestService(t, client)

	_, err := registry.CreateCityIfAbsent(ctx, "Moscow", 55.7558, 37.6176)
	require.NoError(t, err)
	_, err = registry.CreateCityIfAbsent(ctx, "Berlin", 52.52, 13.405)
	require.NoError(t, err)

	report, err := svc.RefreshAll(ctx)
	require.NoError(t, err)

	// The in-flight city finished its upsert; the rest of the cycle,
	// including the sweep, was abandoned.
	assert.Equal(t, 1, fetches)
	require.Len(t, report.Outcomes, 1)
	assert.NoError(t, report.Outcomes[0].Err)
	assert.Equal(t, 24, report.Outcomes[0].Samples)
}

func TestAddCityKeepsLinkWhenFetchFails(t *testing.T) {
	ctx := context.Background()
	fetchErr := &weather.ProviderError{StatusCode: 500, Body: "boom"}
	client := &fakeClient{fetch: func(latitude, longitude float64) (weather.ForecastBundle, error) {
		return weather.ForecastBundle{}, fetchErr
	}}
	svc, _, _ := newTestService(t, client)

	user, err := svc.CreateUser(ctx, "test_user")
	require.NoError(t, err)

	result, err := svc.AddCityForUser(ctx, user.ID, "Moscow", 55.7558, 37.6176)
	require.NoError(t, err)

	var perr *weather.ProviderError
	require.True(t, errors.As(result.FetchErr, &perr))

	cities, err := svc.ListUserCities(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, cities, 1, "link survives a failed initial fetch")
}
