package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"weather-tracker/internal/weather"
)

// DefaultOpenMeteoBaseURL is the public Open-Meteo forecast endpoint.
const DefaultOpenMeteoBaseURL = "https://api.open-meteo.com"

const hourlyParams = "temperature_2m,relativehumidity_2m,pressure_msl,windspeed_10m,precipitation"

// OpenMeteoClient implements weather.ForecastClient against the Open-Meteo
// API. It requests current conditions plus a one-day hourly series labeled
// in the location's own time zone, and normalizes the parallel hourly
// arrays into timestamped points exactly once, here.
type OpenMeteoClient struct {
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

// NewOpenMeteoClient creates a client with a bounded retry budget and a
// circuit breaker around the forecast endpoint.
func NewOpenMeteoClient(client *http.Client, baseURL string) *OpenMeteoClient {
	if baseURL == "" {
		baseURL = DefaultOpenMeteoBaseURL
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "openmeteo",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	return &OpenMeteoClient{
		baseURL: baseURL,
		httpCfg: HTTPClientConfig{
			Client: client,
			Backoff: BackoffConfig{
				MaxRetries:      2, // 3 attempts total
				InitialInterval: 500 * time.Millisecond,
				MaxInterval:     5 * time.Second,
			},
		},
		circuit: cb,
	}
}

type openMeteoResponse struct {
	Timezone       string `json:"timezone"`
	CurrentWeather struct {
		Temperature float64 `json:"temperature"`
		WindSpeed   float64 `json:"windspeed"`
		Time        string  `json:"time"`
	} `json:"current_weather"`
	Hourly struct {
		Time               []string  `json:"time"`
		Temperature2m      []float64 `json:"temperature_2m"`
		RelativeHumidity2m []float64 `json:"relativehumidity_2m"`
		PressureMSL        []float64 `json:"pressure_msl"`
		WindSpeed10m       []float64 `json:"windspeed_10m"`
		Precipitation      []float64 `json:"precipitation"`
	} `json:"hourly"`
}

// Fetch requests the forecast for the given coordinates.
func (c *OpenMeteoClient) Fetch(ctx context.Context, latitude, longitude float64) (weather.ForecastBundle, error) {
	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("latitude", fmt.Sprintf("%f", latitude))
		values.Set("longitude", fmt.Sprintf("%f", longitude))
		values.Set("current_weather", "true")
		values.Set("hourly", hourlyParams)
		values.Set("forecast_days", "1")
		values.Set("timezone", "auto")

		u := fmt.Sprintf("%s/v1/forecast?%s", c.baseURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, c.httpCfg, c.circuit, buildRequest)
	if err != nil {
		return weather.ForecastBundle{}, err
	}
	defer resp.Body.Close()

	var payload openMeteoResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return weather.ForecastBundle{}, fmt.Errorf("%w: decoding response: %v", weather.ErrProviderUnavailable, err)
	}

	return normalize(payload)
}

// normalize converts the provider's parallel hourly arrays into structured
// points, parsing timestamps in the provider-reported zone. Array lengths
// may disagree on a partial response; iteration is bounded by the shortest.
func normalize(payload openMeteoResponse) (weather.ForecastBundle, error) {
	loc := time.UTC
	if payload.Timezone != "" {
		parsed, err := time.LoadLocation(payload.Timezone)
		if err == nil {
			loc = parsed
		}
	}

	bundle := weather.ForecastBundle{
		Timezone: payload.Timezone,
		Current: weather.CurrentConditions{
			Temperature: payload.CurrentWeather.Temperature,
			WindSpeed:   payload.CurrentWeather.WindSpeed,
		},
	}

	h := payload.Hourly
	n := len(h.Time)
	for _, l := range []int{len(h.Temperature2m), len(h.RelativeHumidity2m), len(h.WindSpeed10m), len(h.Precipitation)} {
		if l < n {
			n = l
		}
	}

	if len(h.PressureMSL) > 0 {
		bundle.Current.Pressure = h.PressureMSL[0]
	}

	bundle.Hourly = make([]weather.HourlyPoint, 0, n)
	for i := 0; i < n; i++ {
		ts, err := time.ParseInLocation("2006-01-02T15:04", h.Time[i], loc)
		if err != nil {
			return weather.ForecastBundle{}, fmt.Errorf("%w: hourly timestamp %q: %v", weather.ErrProviderUnavailable, h.Time[i], err)
		}

		point := weather.HourlyPoint{
			Time:          ts,
			Temperature:   h.Temperature2m[i],
			Humidity:      h.RelativeHumidity2m[i],
			WindSpeed:     h.WindSpeed10m[i],
			Precipitation: h.Precipitation[i],
		}
		if i < len(h.PressureMSL) {
			point.Pressure = h.PressureMSL[i]
		}
		bundle.Hourly = append(bundle.Hourly, point)
	}

	return bundle, nil
}
