package weather

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"weather-tracker/internal/metrics"
)

// Service orchestrates forecast refreshes, retention sweeps, and queries
// against the sample store. It is the single writer driven by the scheduler
// and the read path used by the HTTP layer.
type Service struct {
	registry  Registry
	samples   SampleStore
	client    ForecastClient
	log       *logrus.Logger
	collector *metrics.Collector
	retention time.Duration

	now func() time.Time
}

// NewService creates a Service. The collector may be nil (metrics disabled).
func NewService(
	registry Registry,
	samples SampleStore,
	client ForecastClient,
	log *logrus.Logger,
	collector *metrics.Collector,
	retention time.Duration,
) *Service {
	return &Service{
		registry:  registry,
		samples:   samples,
		client:    client,
		log:       log,
		collector: collector,
		retention: retention,
		now:       time.Now,
	}
}

// CreateUser registers a new user. Duplicate usernames fail with
// ErrUserExists.
func (s *Service) CreateUser(ctx context.Context, username string) (User, error) {
	return s.registry.CreateUser(ctx, username)
}

// ListUserCities returns the cities tracked by the user.
func (s *Service) ListUserCities(ctx context.Context, userID string) ([]City, error) {
	return s.registry.ListUserCities(ctx, userID)
}

// AddCityResult reports the outcome of tracking a city: whether the link
// already existed and whether the initial forecast fetch succeeded. The
// link stands even when the fetch fails; the next refresh cycle heals it.
type AddCityResult struct {
	City           City
	AlreadyTracked bool
	FetchErr       error
}

// AddCityForUser creates the city if absent, links it to the user, and on a
// first-time link performs the initial fetch and upsert as a side effect.
func (s *Service) AddCityForUser(ctx context.Context, userID, name string, latitude, longitude float64) (AddCityResult, error) {
	if _, err := s.registry.GetUser(ctx, userID); err != nil {
		return AddCityResult{}, err
	}

	city, err := s.registry.CreateCityIfAbsent(ctx, name, latitude, longitude)
	if err != nil {
		return AddCityResult{}, err
	}

	created, err := s.registry.LinkUserCity(ctx, userID, city.ID)
	if err != nil {
		return AddCityResult{}, err
	}
	if !created {
		return AddCityResult{City: city, AlreadyTracked: true}, nil
	}

	result := AddCityResult{City: city}
	if _, err := s.refreshCity(ctx, city); err != nil {
		s.log.WithField("city", city.Name).WithError(err).Warn("initial forecast fetch failed")
		result.FetchErr = err
	}
	return result, nil
}

// CurrentConditions fetches live conditions for arbitrary coordinates.
func (s *Service) CurrentConditions(ctx context.Context, latitude, longitude float64) (CurrentConditions, error) {
	bundle, err := s.client.Fetch(ctx, latitude, longitude)
	if err != nil {
		return CurrentConditions{}, err
	}
	return bundle.Current, nil
}

// WeatherAt resolves a point-in-time query for a tracked city: the requested
// HH:MM is rounded to the nearest hour and the matching sample is projected
// onto the requested fields.
func (s *Service) WeatherAt(ctx context.Context, userID, cityName, timeOfDay, parameters string) (map[string]float64, error) {
	if _, err := s.registry.GetUser(ctx, userID); err != nil {
		return nil, err
	}

	fields, err := ParseFields(parameters)
	if err != nil {
		return nil, err
	}

	hour, minute, err := ParseTimeOfDay(timeOfDay)
	if err != nil {
		return nil, err
	}

	city, err := s.registry.UserCityByName(ctx, userID, cityName)
	if err != nil {
		return nil, err
	}

	sample, err := s.samples.QueryAt(ctx, city.ID, RoundToNearestHour(hour, minute), 0)
	if err != nil {
		return nil, err
	}

	return ProjectFields(sample, fields), nil
}

// RefreshAll runs one full refresh cycle: every tracked city is fetched and
// upserted independently, then the retention sweep runs. A single city's
// failure is recorded in the report and never aborts the cycle.
// Cancellation is honored between cities; a cancelled cycle unwinds without
// sweeping.
func (s *Service) RefreshAll(ctx context.Context) (CycleReport, error) {
	report := CycleReport{Started: s.now().UTC()}

	cities, err := s.registry.ListCities(ctx)
	if err != nil {
		report.Finished = s.now().UTC()
		return report, err
	}

	for _, city := range cities {
		if ctx.Err() != nil {
			break
		}

		n, err := s.refreshCity(ctx, city)
		if err != nil {
			s.log.WithField("city", city.Name).WithError(err).Warn("city refresh failed")
			if s.collector != nil {
				s.collector.FetchErrorsTotal.WithLabelValues(city.Name).Inc()
			}
		}
		report.Outcomes = append(report.Outcomes, CityOutcome{
			CityID:   city.ID,
			CityName: city.Name,
			Samples:  n,
			Err:      err,
		})
	}

	if ctx.Err() == nil {
		// Re-list so zones captured earlier in this same cycle are
		// visible to the sweeper.
		swept, err := s.registry.ListCities(ctx)
		if err != nil {
			s.log.WithError(err).Warn("listing cities for sweep failed, using cycle snapshot")
			swept = cities
		}
		report.Evicted = s.sweep(ctx, swept)
	}

	report.Finished = s.now().UTC()
	if s.collector != nil {
		s.collector.RefreshCyclesTotal.Inc()
		s.collector.CycleDuration.Observe(report.Finished.Sub(report.Started).Seconds())
	}
	return report, nil
}

// refreshCity fetches one city's forecast, captures the provider-reported
// time zone, and upserts the bundle. Returns the number of samples written.
func (s *Service) refreshCity(ctx context.Context, city City) (int, error) {
	start := s.now()
	bundle, err := s.client.Fetch(ctx, city.Latitude, city.Longitude)
	if s.collector != nil {
		s.collector.ProviderRequestDuration.Observe(s.now().Sub(start).Seconds())
	}
	if err != nil {
		return 0, err
	}

	if bundle.Timezone != "" && bundle.Timezone != city.Timezone {
		if err := s.registry.SetCityTimezone(ctx, city.ID, bundle.Timezone); err != nil {
			s.log.WithField("city", city.Name).WithError(err).Warn("failed to record city timezone")
		}
	}

	samples := bundle.Samples(city.ID, s.now().UTC())
	if err := s.samples.UpsertMany(ctx, city.ID, samples); err != nil {
		return 0, err
	}

	if s.collector != nil {
		s.collector.SamplesUpsertedTotal.Add(float64(len(samples)))
	}
	return len(samples), nil
}

// sweep deletes samples older than the retention window. Cities without a
// usable time zone are skipped with a warning; one bad city never fails
// the sweep.
func (s *Service) sweep(ctx context.Context, cities []City) int {
	cutoff := s.now().UTC().Add(-s.retention)

	cutoffs := make(map[string]time.Time, len(cities))
	for _, city := range cities {
		if city.Timezone == "" {
			s.log.WithField("city", city.Name).Warn("skipping sweep: city has no time zone yet")
			continue
		}
		if _, err := time.LoadLocation(city.Timezone); err != nil {
			s.log.WithField("city", city.Name).WithError(err).Warn("skipping sweep: unknown time zone")
			continue
		}
		cutoffs[city.ID] = cutoff
	}

	if len(cutoffs) == 0 {
		return 0
	}

	removed, err := s.samples.DeleteOlderThan(ctx, cutoffs)
	if err != nil {
		s.log.WithError(err).Error("retention sweep failed")
		return 0
	}

	if removed > 0 {
		s.log.WithField("removed", removed).Info("retention sweep evicted expired samples")
	}
	if s.collector != nil {
		s.collector.SamplesEvictedTotal.Add(float64(removed))
	}
	return removed
}
