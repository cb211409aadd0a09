package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/sirupsen/logrus"

	"weather-tracker/internal/weather"
)

// Refresher runs one refresh cycle over all tracked cities.
type Refresher interface {
	RefreshAll(ctx context.Context) (weather.CycleReport, error)
}

// Scheduler drives the periodic forecast refresh. It owns a cancellation
// context checked by the cycle between cities, so Stop lets an in-flight
// city finish its fetch and upsert before unwinding.
type Scheduler struct {
	scheduler *gocron.Scheduler
	service   Refresher
	interval  time.Duration
	log       *logrus.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Scheduler that refreshes every interval.
func New(service Refresher, interval time.Duration, log *logrus.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		service:   service,
		interval:  interval,
		log:       log,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start schedules the recurring cycle and runs the first one immediately.
// Singleton mode guarantees cycles never overlap.
func (s *Scheduler) Start() error {
	_, err := s.scheduler.Every(s.interval).
		SingletonMode().
		StartImmediately().
		Do(s.runCycle)
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	s.log.WithField("interval", s.interval.String()).Info("refresh scheduler started")
	return nil
}

// Stop requests cooperative cancellation and waits for the current cycle
// to unwind.
func (s *Scheduler) Stop() {
	s.cancel()
	s.scheduler.Stop()
	s.wg.Wait()
	s.log.Info("refresh scheduler stopped")
}

func (s *Scheduler) runCycle() {
	s.wg.Add(1)
	defer s.wg.Done()

	// A cycle must never take the scheduler down with it.
	defer func() {
		if r := recover(); r != nil {
			s.log.WithField("panic", r).Error("refresh cycle panicked")
		}
	}()

	if s.ctx.Err() != nil {
		return
	}

	s.log.Info("refresh cycle starting")

	// A cycle may never outlive its own interval.
	ctx, cancel := context.WithTimeout(s.ctx, s.interval)
	defer cancel()

	report, err := s.service.RefreshAll(ctx)
	if err != nil {
		if s.ctx.Err() != nil {
			s.log.WithError(err).Info("refresh cycle cancelled")
			return
		}
		s.log.WithError(err).Error("refresh cycle failed")
		return
	}

	s.log.WithFields(logrus.Fields{
		"cities":   len(report.Outcomes),
		"failed":   report.Failed(),
		"evicted":  report.Evicted,
		"duration": report.Finished.Sub(report.Started).String(),
	}).Info("refresh cycle completed")
}
