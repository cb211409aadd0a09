package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberadaptor "github.com/gofiber/fiber/v2/middleware/adaptor"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpapi "weather-tracker/internal/api/http"
	"weather-tracker/internal/config"
	"weather-tracker/internal/logger"
	"weather-tracker/internal/metrics"
	"weather-tracker/internal/scheduler"
	"weather-tracker/internal/store"
	"weather-tracker/internal/weather"
	"weather-tracker/internal/weather/providers"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New("info").WithError(err).Fatal("failed to load config")
	}

	log := logger.New(cfg.LogLevel)
	collector := metrics.NewCollector("weather_tracker")

	// Shared HTTP client for outbound provider calls: 5s dial budget,
	// overall request bounded by cfg.HTTPTimeout.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout: 5 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout: 5 * time.Second,
		},
	}

	// Store selection: PostgreSQL when configured, in-memory otherwise.
	var (
		samples  weather.SampleStore
		registry weather.Registry
	)
	if cfg.DatabaseURL != "" {
		db, err := store.OpenPostgres(context.Background(), cfg.DatabaseURL)
		if err != nil {
			log.WithError(err).Fatal("failed to open postgres store")
		}
		defer db.Close()
		samples = store.NewPostgresSampleStore(db)
		registry = store.NewPostgresRegistry(db)
		log.Info("using postgres store")
	} else {
		samples = store.NewMemorySampleStore()
		registry = store.NewMemoryRegistry()
		log.Info("using in-memory store")
	}

	client := providers.NewOpenMeteoClient(httpClient, cfg.OpenMeteoBaseURL)
	service := weather.NewService(registry, samples, client, log, collector, cfg.RetentionWindow)

	sched := scheduler.New(service, cfg.FetchInterval, log)
	if err := sched.Start(); err != nil {
		log.WithError(err).Fatal("failed to start scheduler")
	}
	defer sched.Stop()

	app := fiber.New(fiber.Config{
		AppName:               "weather-tracker",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	app.Use(fiberlogger.New())
	app.Use(recover.New())
	app.Use(func(c *fiber.Ctx) error {
		err := c.Next()
		status := c.Response().StatusCode()
		if err != nil {
			if e, ok := err.(*fiber.Error); ok {
				status = e.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}
		collector.APIRequestsTotal.WithLabelValues(c.Path(), c.Method(), strconv.Itoa(status)).Inc()
		return err
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "weather-tracker",
		})
	})
	app.Get("/metrics", fiberadaptor.HTTPHandler(promhttp.Handler()))

	httpapi.RegisterRoutes(app, service)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.WithError(err).Error("fiber server stopped")
		}
	}()
	log.WithField("port", cfg.Port).Info("server listening")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.WithError(err).Error("error during shutdown")
	}
}
