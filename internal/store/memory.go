package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"weather-tracker/internal/weather"
)

const wallKeyLayout = "2006-01-02T15:04"

// MemorySampleStore is a concurrency-safe in-memory implementation of
// weather.SampleStore, keyed by city id and forecast wall time.
type MemorySampleStore struct {
	mu sync.RWMutex

	// city id -> forecast wall time key -> sample
	data map[string]map[string]weather.WeatherSample
}

// NewMemorySampleStore creates an empty store.
func NewMemorySampleStore() *MemorySampleStore {
	return &MemorySampleStore{
		data: make(map[string]map[string]weather.WeatherSample),
	}
}

// UpsertMany inserts or overwrites one entry per (city, forecast wall time).
func (s *MemorySampleStore) UpsertMany(ctx context.Context, cityID string, samples []weather.WeatherSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, ok := s.data[cityID]
	if !ok {
		rows = make(map[string]weather.WeatherSample, len(samples))
		s.data[cityID] = rows
	}
	for _, sample := range samples {
		sample.CityID = cityID
		rows[sample.ForecastTime.Format(wallKeyLayout)] = sample
	}
	return nil
}

// QueryAt returns the sample whose local forecast time matches hour:minute,
// preferring the newest forecast time among matches.
func (s *MemorySampleStore) QueryAt(ctx context.Context, cityID string, hour, minute int) (weather.WeatherSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, ok := s.data[cityID]
	if !ok {
		return weather.WeatherSample{}, weather.ErrNoDataAtTime
	}

	var best weather.WeatherSample
	var found bool
	for _, sample := range rows {
		if sample.ForecastTime.Hour() != hour || sample.ForecastTime.Minute() != minute {
			continue
		}
		if !found || sample.ForecastTime.After(best.ForecastTime) {
			best = sample
			found = true
		}
	}
	if !found {
		return weather.WeatherSample{}, weather.ErrNoDataAtTime
	}
	return best, nil
}

// DeleteOlderThan removes samples whose forecast instant precedes the
// owning city's cutoff.
func (s *MemorySampleStore) DeleteOlderThan(ctx context.Context, cutoffs map[string]time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int
	for cityID, cutoff := range cutoffs {
		rows, ok := s.data[cityID]
		if !ok {
			continue
		}
		for key, sample := range rows {
			if sample.ForecastTime.Before(cutoff) {
				delete(rows, key)
				removed++
			}
		}
	}
	return removed, nil
}

// MemoryRegistry is an in-memory implementation of weather.Registry.
type MemoryRegistry struct {
	mu sync.RWMutex

	users      map[string]weather.User    // by id
	usernames  map[string]string          // username -> id
	cities     map[string]weather.City    // by id
	cityNames  map[string]string          // name -> id
	userCities map[string]map[string]bool // user id -> set of city ids
}

// NewMemoryRegistry creates an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		users:      make(map[string]weather.User),
		usernames:  make(map[string]string),
		cities:     make(map[string]weather.City),
		cityNames:  make(map[string]string),
		userCities: make(map[string]map[string]bool),
	}
}

func (r *MemoryRegistry) CreateUser(ctx context.Context, username string) (weather.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.usernames[username]; exists {
		return weather.User{}, weather.ErrUserExists
	}
	user := weather.User{ID: uuid.NewString(), Username: username}
	r.users[user.ID] = user
	r.usernames[username] = user.ID
	return user, nil
}

func (r *MemoryRegistry) GetUser(ctx context.Context, userID string) (weather.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[userID]
	if !ok {
		return weather.User{}, weather.ErrUserNotFound
	}
	return user, nil
}

func (r *MemoryRegistry) CreateCityIfAbsent(ctx context.Context, name string, latitude, longitude float64) (weather.City, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, exists := r.cityNames[name]; exists {
		return r.cities[id], nil
	}
	city := weather.City{
		ID:        uuid.NewString(),
		Name:      name,
		Latitude:  latitude,
		Longitude: longitude,
	}
	r.cities[city.ID] = city
	r.cityNames[name] = city.ID
	return city, nil
}

func (r *MemoryRegistry) SetCityTimezone(ctx context.Context, cityID, timezone string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	city, ok := r.cities[cityID]
	if !ok {
		return weather.ErrCityNotFound
	}
	city.Timezone = timezone
	r.cities[cityID] = city
	return nil
}

func (r *MemoryRegistry) LinkUserCity(ctx context.Context, userID, cityID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[userID]; !ok {
		return false, weather.ErrUserNotFound
	}
	if _, ok := r.cities[cityID]; !ok {
		return false, weather.ErrCityNotFound
	}

	linked, ok := r.userCities[userID]
	if !ok {
		linked = make(map[string]bool)
		r.userCities[userID] = linked
	}
	if linked[cityID] {
		return false, nil
	}
	linked[cityID] = true
	return true, nil
}

func (r *MemoryRegistry) UserCityByName(ctx context.Context, userID, name string) (weather.City, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cityID, ok := r.cityNames[name]
	if !ok || !r.userCities[userID][cityID] {
		return weather.City{}, weather.ErrCityNotFound
	}
	return r.cities[cityID], nil
}

func (r *MemoryRegistry) ListUserCities(ctx context.Context, userID string) ([]weather.City, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.users[userID]; !ok {
		return nil, weather.ErrUserNotFound
	}

	var cities []weather.City
	for cityID := range r.userCities[userID] {
		cities = append(cities, r.cities[cityID])
	}
	return cities, nil
}

func (r *MemoryRegistry) ListCities(ctx context.Context) ([]weather.City, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cities := make([]weather.City, 0, len(r.cities))
	for _, city := range r.cities {
		cities = append(cities, city)
	}
	return cities, nil
}
