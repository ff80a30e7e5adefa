// Package health exposes Prometheus metrics and pprof profiling
// endpoints for a running trace collector: gate state, per-kind event
// counters, and harvest timing, so an operator can see the collector
// behaving without reading a Collection themselves.
package health

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"sync/atomic"

	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/obstrace/obstrace/internal/notify"
)

// Config configures the health metrics server.
type Config struct {
	// Addr is the listen address for the metrics server. Defaults to
	// ":9090".
	Addr string `yaml:"addr"`
}

// Metrics exposes Prometheus metrics for a trace collector's runtime
// state plus the standard pprof profiling endpoints.
type Metrics struct {
	log      logrus.FieldLogger
	addr     string
	server   *http.Server
	listener net.Listener
	registry *prometheus.Registry

	GateEnabled        prometheus.Gauge
	RegistrySize       prometheus.Gauge
	EventsByKind       *prometheus.CounterVec
	HarvestsTotal      prometheus.Counter
	HarvestDuration    prometheus.Histogram
	HarvestEventCount  prometheus.Histogram
	NotifyQueueDropped prometheus.Counter
	NotifyExportErrors prometheus.Counter

	running atomic.Bool
}

// New creates a Metrics instance registered against its own
// Prometheus registry.
func New(log logrus.FieldLogger, cfg Config) *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		log:      log.WithField("component", "health"),
		addr:     cfg.Addr,
		registry: reg,

		GateEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "obstrace",
			Name:      "gate_enabled",
			Help:      "Whether the collector's enable gate is open (1) or closed (0).",
		}),
		RegistrySize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "obstrace",
			Name:      "registry_size",
			Help:      "Number of registered per-thread slots.",
		}),
		EventsByKind: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "obstrace",
				Name:      "events_by_kind_total",
				Help:      "Total events harvested by kind.",
			},
			[]string{"kind"},
		),
		HarvestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "obstrace",
			Name:      "harvests_total",
			Help:      "Total CreateCollection calls.",
		}),
		HarvestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "obstrace",
			Name:      "harvest_duration_seconds",
			Help:      "Wall-clock time spent inside CreateCollection.",
			Buckets:   []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
		}),
		HarvestEventCount: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "obstrace",
			Name:      "harvest_event_count",
			Help:      "Number of events contained in a single harvest.",
			Buckets:   []float64{0, 10, 100, 1000, 10000, 100000},
		}),
		NotifyQueueDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "obstrace",
			Name:      "notify_queue_dropped_total",
			Help:      "Total flattened events dropped because the notify export queue was full.",
		}),
		NotifyExportErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "obstrace",
			Name:      "notify_export_errors_total",
			Help:      "Total notify HTTP export failures.",
		}),
	}

	reg.MustRegister(
		m.GateEnabled,
		m.RegistrySize,
		m.EventsByKind,
		m.HarvestsTotal,
		m.HarvestDuration,
		m.HarvestEventCount,
		m.NotifyQueueDropped,
		m.NotifyExportErrors,
	)

	return m
}

// ObserveCollection records per-kind event counts and the collection's
// total size. Intended to be wired as a notify.Bus subscriber, or
// called directly with the output of notify.Flatten.
func (m *Metrics) ObserveCollection(events []notify.Event) {
	for _, e := range events {
		m.EventsByKind.WithLabelValues(e.Kind).Inc()
	}

	m.HarvestEventCount.Observe(float64(len(events)))
}

// ObserveGate mirrors a collector's enable gate into GateEnabled.
// Intended to be called whenever SetEnabled is invoked.
func (m *Metrics) ObserveGate(enabled bool) {
	if enabled {
		m.GateEnabled.Set(1)
	} else {
		m.GateEnabled.Set(0)
	}
}

// Timer wraps a HarvestDuration observation around a CreateCollection
// call. Usage:
//
//	defer m.Timer()()
func (m *Metrics) Timer() func() {
	start := time.Now()

	return func() {
		m.HarvestDuration.Observe(time.Since(start).Seconds())
		m.HarvestsTotal.Inc()
	}
}

// Start begins serving /metrics, /healthz, and the pprof endpoints.
func (m *Metrics) Start(_ context.Context) error {
	if m.addr == "" {
		m.addr = ":9090"
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	ln, err := net.Listen("tcp", m.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", m.addr, err)
	}

	m.listener = ln
	m.server = &http.Server{Handler: mux}
	m.running.Store(true)

	go func() {
		m.log.WithField("addr", ln.Addr().String()).Info("health metrics server started")

		if err := m.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			m.log.WithError(err).Error("health metrics server error")
		}

		m.running.Store(false)
	}()

	return nil
}

// Addr returns the actual listener address. Useful when started with
// ":0" to discover the OS-assigned port.
func (m *Metrics) Addr() string {
	if m.listener != nil {
		return m.listener.Addr().String()
	}

	return m.addr
}

// Stop gracefully shuts down the metrics server.
func (m *Metrics) Stop() error {
	if m.server == nil {
		return nil
	}

	return m.server.Close()
}

// SampleRegistrySize sets RegistrySize to count, the number of a
// trace.Collector's registered slots at the moment of the call. The
// gauge changes only when this is called, since the registry has no
// natural "changed" event.
func (m *Metrics) SampleRegistrySize(count int) {
	m.RegistrySize.Set(float64(count))
}
