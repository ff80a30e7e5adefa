// Package runtime composes a trace.Collector with its clock, notify
// bus, and health metrics server into a single running service: the
// periodic harvester a long-lived process wires up once at startup.
package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/obstrace/obstrace/internal/clock"
	"github.com/obstrace/obstrace/internal/config"
	"github.com/obstrace/obstrace/internal/health"
	"github.com/obstrace/obstrace/internal/notify"
	notifyhttp "github.com/obstrace/obstrace/internal/notify/http"
	"github.com/obstrace/obstrace/internal/trace"
)

// Service is the top-level orchestrator for the obstrace demo service.
type Service interface {
	// Start initializes all components and begins periodic harvesting.
	Start(ctx context.Context) error
	// Stop shuts down all components gracefully.
	Stop() error
	// Collector exposes the underlying collector so callers (and tests)
	// can emit events directly into it.
	Collector() *trace.Collector
	// SetEnabled toggles the collector's gate, keeping the health gauge
	// in sync.
	SetEnabled(v bool)
}

type service struct {
	log    logrus.FieldLogger
	cfg    *config.Config
	health *health.Metrics
	bus    *notify.Bus
	clock  trace.Clock
	coll   *trace.Collector

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	interval time.Duration
}

// New creates a Service wiring a trace.Collector, a monotonic clock, a
// notify.Bus, and a health.Metrics server together. The collector's
// label and enabled-at-start state come from cfg.
func New(log logrus.FieldLogger, cfg *config.Config) (Service, error) {
	hm := health.New(log, cfg.Health)

	bus, err := notify.New(log, cfg.Notify, notifyhttp.WithErrorHook(func(error) {
		hm.NotifyExportErrors.Inc()
	}))
	if err != nil {
		return nil, fmt.Errorf("creating notify bus: %w", err)
	}

	bus.OnQueueDropped(func(n int) {
		hm.NotifyQueueDropped.Add(float64(n))
	})

	ck := clock.NewMonotonic(log)
	coll := trace.NewCollector(cfg.Label, ck)

	bus.Attach(coll)
	bus.Subscribe(hm.ObserveCollection)

	return &service{
		log:      log.WithField("component", "runtime"),
		cfg:      cfg,
		health:   hm,
		bus:      bus,
		clock:    ck,
		coll:     coll,
		interval: cfg.HarvestInterval,
	}, nil
}

// Collector returns the wrapped trace.Collector.
func (s *service) Collector() *trace.Collector {
	return s.coll
}

func (s *service) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	// 1. Start health metrics server.
	if err := s.health.Start(ctx); err != nil {
		return fmt.Errorf("starting health metrics: %w", err)
	}

	s.log.WithField("addr", s.health.Addr()).Info("health metrics server started")

	// 2. Start the notify bus's HTTP export worker, if configured.
	s.bus.Start(ctx)

	// 3. Open the gate, if configured to start enabled.
	s.coll.SetEnabled(s.cfg.EnabledAtStart)
	s.health.ObserveGate(s.cfg.EnabledAtStart)

	// 4. Launch the periodic harvester.
	s.wg.Add(1)
	go s.harvestLoop(ctx)

	s.log.WithFields(logrus.Fields{
		"label":            s.cfg.Label,
		"enabled_at_start": s.cfg.EnabledAtStart,
		"harvest_interval": s.interval,
	}).Info("runtime started")

	return nil
}

func (s *service) harvestLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.harvest()
		}
	}
}

func (s *service) harvest() {
	defer s.health.Timer()()

	s.coll.CreateCollection()
}

// SetEnabled toggles the collector's gate, keeping the health gauge in
// sync. Exposed so an operator surface (CLI signal, admin endpoint)
// can flip collection on and off without reaching into the collector
// directly.
func (s *service) SetEnabled(v bool) {
	s.coll.SetEnabled(v)
	s.health.ObserveGate(v)
}

func (s *service) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}

	s.wg.Wait()

	if err := s.bus.Stop(context.Background()); err != nil {
		s.log.WithError(err).Warn("notify bus shutdown error")
	}

	if err := s.health.Stop(); err != nil {
		return fmt.Errorf("stopping health metrics: %w", err)
	}

	s.log.Info("runtime stopped")

	return nil
}
