package weather

import (
	"fmt"
	"strings"
	"time"
)

// Weather field names accepted by point-in-time queries.
const (
	FieldTemperature   = "temperature"
	FieldHumidity      = "humidity"
	FieldWindSpeed     = "wind_speed"
	FieldPrecipitation = "precipitation"
)

// DefaultFields is the projection used when the caller does not narrow the
// parameter list.
var DefaultFields = []string{FieldTemperature, FieldHumidity, FieldWindSpeed, FieldPrecipitation}

// ParseTimeOfDay parses a wall-clock "HH:MM" string.
func ParseTimeOfDay(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrTimeFormatInvalid, s)
	}
	return t.Hour(), t.Minute(), nil
}

// RoundToNearestHour rounds a wall-clock time to the nearest full hour.
// Minutes >= 30 round up; 23:45 wraps to 00:00 of the same reference day.
func RoundToNearestHour(hour, minute int) int {
	if minute >= 30 {
		return (hour + 1) % 24
	}
	return hour
}

// ParseFields splits and validates a comma-separated parameter list.
// An empty list means the default projection; any unknown name fails the
// whole request.
func ParseFields(s string) ([]string, error) {
	if strings.TrimSpace(s) == "" {
		return DefaultFields, nil
	}
	parts := strings.Split(s, ",")
	fields := make([]string, 0, len(parts))
	for _, p := range parts {
		name := strings.TrimSpace(p)
		switch name {
		case FieldTemperature, FieldHumidity, FieldWindSpeed, FieldPrecipitation:
			fields = append(fields, name)
		default:
			return nil, fmt.Errorf("%w: %q (available: %s)",
				ErrInvalidParameter, name, strings.Join(DefaultFields, ", "))
		}
	}
	return fields, nil
}

// ProjectFields extracts the requested fields from a sample.
func ProjectFields(sample WeatherSample, fields []string) map[string]float64 {
	out := make(map[string]float64, len(fields))
	for _, f := range fields {
		switch f {
		case FieldTemperature:
			out[f] = sample.Temperature
		case FieldHumidity:
			out[f] = sample.Humidity
		case FieldWindSpeed:
			out[f] = sample.WindSpeed
		case FieldPrecipitation:
			out[f] = sample.Precipitation
		}
	}
	return out
}
