package weather

import (
	"time"
)

// City is a place tracked by at least one user. Coordinates are fixed at
// creation; Timezone is the IANA zone name reported by the forecast provider
// and is filled in after the first successful fetch.
type City struct {
	ID        string  `json:"id" db:"id"`
	Name      string  `json:"name" db:"name"`
	Latitude  float64 `json:"latitude" db:"latitude"`
	Longitude float64 `json:"longitude" db:"longitude"`
	Timezone  string  `json:"timezone,omitempty" db:"timezone"`
}

// User is a registered account identified by a unique username.
type User struct {
	ID       string `json:"id" db:"id"`
	Username string `json:"username" db:"username"`
}

// WeatherSample is one hourly forecast reading for one city.
// ForecastTime carries the city's time zone, so its wall-clock fields are
// local to the city while the instant itself stays absolute. At most one
// sample exists per (city, forecast wall time); a re-fetch overwrites.
type WeatherSample struct {
	CityID        string    `json:"-" db:"city_id"`
	ForecastTime  time.Time `json:"forecast_time" db:"forecast_local"`
	Temperature   float64   `json:"temperature" db:"temperature"`
	Humidity      float64   `json:"humidity" db:"humidity"`
	WindSpeed     float64   `json:"wind_speed" db:"wind_speed"`
	Precipitation float64   `json:"precipitation" db:"precipitation"`
	RecordedAt    time.Time `json:"recorded_at" db:"recorded_at"`
}

// HourlyPoint is one normalized entry of a provider bundle, not yet bound
// to a city.
type HourlyPoint struct {
	Time          time.Time
	Temperature   float64
	Humidity      float64
	Pressure      float64
	WindSpeed     float64
	Precipitation float64
}

// CurrentConditions is the provider's current-weather block plus the first
// hourly mean-sea-level pressure reading.
type CurrentConditions struct {
	Temperature float64 `json:"temperature"`
	WindSpeed   float64 `json:"wind_speed"`
	Pressure    float64 `json:"pressure"`
}

// ForecastBundle is the normalized result of a single provider call:
// current conditions plus one day of hourly points, with timestamps already
// parsed in the provider-reported zone. Bundles are ephemeral; they exist
// only to be converted into sample upserts.
type ForecastBundle struct {
	Timezone string
	Current  CurrentConditions
	Hourly   []HourlyPoint
}

// Samples binds the bundle's hourly points to a city.
func (b ForecastBundle) Samples(cityID string, recordedAt time.Time) []WeatherSample {
	samples := make([]WeatherSample, 0, len(b.Hourly))
	for _, p := range b.Hourly {
		samples = append(samples, WeatherSample{
			CityID:        cityID,
			ForecastTime:  p.Time,
			Temperature:   p.Temperature,
			Humidity:      p.Humidity,
			WindSpeed:     p.WindSpeed,
			Precipitation: p.Precipitation,
			RecordedAt:    recordedAt,
		})
	}
	return samples
}

// CityOutcome records how one city fared during a refresh cycle.
type CityOutcome struct {
	CityID   string
	CityName string
	Samples  int
	Err      error
}

// CycleReport summarizes one full refresh cycle: per-city outcomes followed
// by the sweep result.
type CycleReport struct {
	Started  time.Time
	Finished time.Time
	Outcomes []CityOutcome
	Evicted  int
}

// Failed returns the number of cities whose refresh did not complete.
func (r CycleReport) Failed() int {
	var n int
	for _, o := range r.Outcomes {
		if o.Err != nil {
			n++
		}
	}
	return n
}
