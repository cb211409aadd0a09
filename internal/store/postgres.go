package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"weather-tracker/internal/weather"
)

const pgUniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id       UUID PRIMARY KEY,
	username TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS cities (
	id        UUID PRIMARY KEY,
	name      TEXT NOT NULL UNIQUE,
	latitude  DOUBLE PRECISION NOT NULL,
	longitude DOUBLE PRECISION NOT NULL,
	timezone  TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS user_cities (
	user_id UUID NOT NULL REFERENCES users (id),
	city_id UUID NOT NULL REFERENCES cities (id),
	PRIMARY KEY (user_id, city_id)
);

CREATE TABLE IF NOT EXISTS weather_samples (
	city_id        UUID NOT NULL REFERENCES cities (id),
	forecast_local TIMESTAMP NOT NULL,
	forecast_utc   TIMESTAMPTZ NOT NULL,
	temperature    DOUBLE PRECISION NOT NULL,
	humidity       DOUBLE PRECISION NOT NULL,
	wind_speed     DOUBLE PRECISION NOT NULL,
	precipitation  DOUBLE PRECISION NOT NULL,
	recorded_at    TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (city_id, forecast_local)
);

CREATE INDEX IF NOT EXISTS idx_weather_samples_forecast_utc
	ON weather_samples (city_id, forecast_utc);
`

// OpenPostgres connects to PostgreSQL, verifies the connection, and ensures
// the schema exists.
func OpenPostgres(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: opening postgres: %v", weather.ErrStoreIO, err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: pinging postgres: %v", weather.ErrStoreIO, err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: creating schema: %v", weather.ErrStoreIO, err)
	}

	return db, nil
}

// PostgresSampleStore implements weather.SampleStore on PostgreSQL. The
// primary key on (city_id, forecast_local) makes upserts idempotent; the
// local wall time drives hour:minute queries and forecast_utc drives
// retention, mirroring the sample's dual nature.
type PostgresSampleStore struct {
	db *sqlx.DB
}

// NewPostgresSampleStore wraps an open connection.
func NewPostgresSampleStore(db *sqlx.DB) *PostgresSampleStore {
	return &PostgresSampleStore{db: db}
}

// UpsertMany writes the batch in one transaction.
func (s *PostgresSampleStore) UpsertMany(ctx context.Context, cityID string, samples []weather.WeatherSample) error {
	if len(samples) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: beginning upsert: %v", weather.ErrStoreIO, err)
	}
	defer tx.Rollback()

	const query = `
		INSERT INTO weather_samples
			(city_id, forecast_local, forecast_utc, temperature, humidity, wind_speed, precipitation, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (city_id, forecast_local) DO UPDATE SET
			forecast_utc  = EXCLUDED.forecast_utc,
			temperature   = EXCLUDED.temperature,
			humidity      = EXCLUDED.humidity,
			wind_speed    = EXCLUDED.wind_speed,
			precipitation = EXCLUDED.precipitation,
			recorded_at   = EXCLUDED.recorded_at`

	for _, sample := range samples {
		_, err := tx.ExecContext(ctx, query,
			cityID,
			sample.ForecastTime,
			sample.ForecastTime.UTC(),
			sample.Temperature,
			sample.Humidity,
			sample.WindSpeed,
			sample.Precipitation,
			sample.RecordedAt,
		)
		if err != nil {
			return fmt.Errorf("%w: upserting sample: %v", weather.ErrStoreIO, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing upsert: %v", weather.ErrStoreIO, err)
	}
	return nil
}

// QueryAt matches the local wall-clock hour and minute, newest first.
func (s *PostgresSampleStore) QueryAt(ctx context.Context, cityID string, hour, minute int) (weather.WeatherSample, error) {
	const query = `
		SELECT city_id, forecast_local, temperature, humidity, wind_speed, precipitation, recorded_at
		FROM weather_samples
		WHERE city_id = $1
		  AND EXTRACT(HOUR FROM forecast_local) = $2
		  AND EXTRACT(MINUTE FROM forecast_local) = $3
		ORDER BY forecast_local DESC
		LIMIT 1`

	var sample weather.WeatherSample
	err := s.db.GetContext(ctx, &sample, query, cityID, hour, minute)
	if errors.Is(err, sql.ErrNoRows) {
		return weather.WeatherSample{}, weather.ErrNoDataAtTime
	}
	if err != nil {
		return weather.WeatherSample{}, fmt.Errorf("%w: querying sample: %v", weather.ErrStoreIO, err)
	}
	return sample, nil
}

// DeleteOlderThan removes expired samples per city cutoff.
func (s *PostgresSampleStore) DeleteOlderThan(ctx context.Context, cutoffs map[string]time.Time) (int, error) {
	var removed int64
	for cityID, cutoff := range cutoffs {
		res, err := s.db.ExecContext(ctx,
			`DELETE FROM weather_samples WHERE city_id = $1 AND forecast_utc < $2`,
			cityID, cutoff.UTC())
		if err != nil {
			return int(removed), fmt.Errorf("%w: deleting expired samples: %v", weather.ErrStoreIO, err)
		}
		n, _ := res.RowsAffected()
		removed += n
	}
	return int(removed), nil
}

// PostgresRegistry implements weather.Registry on PostgreSQL.
type PostgresRegistry struct {
	db *sqlx.DB
}

// NewPostgresRegistry wraps an open connection.
func NewPostgresRegistry(db *sqlx.DB) *PostgresRegistry {
	return &PostgresRegistry{db: db}
}

func (r *PostgresRegistry) CreateUser(ctx context.Context, username string) (weather.User, error) {
	user := weather.User{ID: uuid.NewString(), Username: username}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, username) VALUES ($1, $2)`,
		user.ID, user.Username)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pgUniqueViolation {
			return weather.User{}, weather.ErrUserExists
		}
		return weather.User{}, fmt.Errorf("%w: creating user: %v", weather.ErrStoreIO, err)
	}
	return user, nil
}

func (r *PostgresRegistry) GetUser(ctx context.Context, userID string) (weather.User, error) {
	var user weather.User
	err := r.db.GetContext(ctx, &user,
		`SELECT id, username FROM users WHERE id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return weather.User{}, weather.ErrUserNotFound
	}
	if err != nil {
		return weather.User{}, fmt.Errorf("%w: fetching user: %v", weather.ErrStoreIO, err)
	}
	return user, nil
}

func (r *PostgresRegistry) CreateCityIfAbsent(ctx context.Context, name string, latitude, longitude float64) (weather.City, error) {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO cities (id, name, latitude, longitude) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (name) DO NOTHING`,
		uuid.NewString(), name, latitude, longitude)
	if err != nil {
		return weather.City{}, fmt.Errorf("%w: creating city: %v", weather.ErrStoreIO, err)
	}

	var city weather.City
	err = r.db.GetContext(ctx, &city,
		`SELECT id, name, latitude, longitude, timezone FROM cities WHERE name = $1`, name)
	if err != nil {
		return weather.City{}, fmt.Errorf("%w: fetching city: %v", weather.ErrStoreIO, err)
	}
	return city, nil
}

func (r *PostgresRegistry) SetCityTimezone(ctx context.Context, cityID, timezone string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE cities SET timezone = $2 WHERE id = $1`, cityID, timezone)
	if err != nil {
		return fmt.Errorf("%w: updating city timezone: %v", weather.ErrStoreIO, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return weather.ErrCityNotFound
	}
	return nil
}

func (r *PostgresRegistry) LinkUserCity(ctx context.Context, userID, cityID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO user_cities (user_id, city_id) VALUES ($1, $2)
		 ON CONFLICT (user_id, city_id) DO NOTHING`,
		userID, cityID)
	if err != nil {
		return false, fmt.Errorf("%w: linking user and city: %v", weather.ErrStoreIO, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *PostgresRegistry) UserCityByName(ctx context.Context, userID, name string) (weather.City, error) {
	var city weather.City
	err := r.db.GetContext(ctx, &city, `
		SELECT c.id, c.name, c.latitude, c.longitude, c.timezone
		FROM cities c
		JOIN user_cities uc ON uc.city_id = c.id
		WHERE uc.user_id = $1 AND c.name = $2`,
		userID, name)
	if errors.Is(err, sql.ErrNoRows) {
		return weather.City{}, weather.ErrCityNotFound
	}
	if err != nil {
		return weather.City{}, fmt.Errorf("%w: fetching tracked city: %v", weather.ErrStoreIO, err)
	}
	return city, nil
}

func (r *PostgresRegistry) ListUserCities(ctx context.Context, userID string) ([]weather.City, error) {
	if _, err := r.GetUser(ctx, userID); err != nil {
		return nil, err
	}

	var cities []weather.City
	err := r.db.SelectContext(ctx, &cities, `
		SELECT c.id, c.name, c.latitude, c.longitude, c.timezone
		FROM cities c
		JOIN user_cities uc ON uc.city_id = c.id
		WHERE uc.user_id = $1
		ORDER BY c.name`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("%w: listing tracked cities: %v", weather.ErrStoreIO, err)
	}
	return cities, nil
}

func (r *PostgresRegistry) ListCities(ctx context.Context) ([]weather.City, error) {
	var cities []weather.City
	err := r.db.SelectContext(ctx, &cities,
		`SELECT id, name, latitude, longitude, timezone FROM cities ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("%w: listing cities: %v", weather.ErrStoreIO, err)
	}
	return cities, nil
}
