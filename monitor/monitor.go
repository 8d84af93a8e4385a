// monitor/monitor.go
package monitor

import (
	"context"
	"errors"
	"expvar"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wfunc/blinkduel/logger"
)

type Metrics struct {
	RoomsCreated     prometheus.Counter
	RoomsJoined      prometheus.Counter
	PhaseTransitions *prometheus.CounterVec
	Outcomes         *prometheus.CounterVec
	Vouchers         *prometheus.CounterVec
	CommitConflicts  prometheus.Counter
	InFlight         prometheus.Gauge
	RequestLatency   *prometheus.HistogramVec
}

func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RoomsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rooms_created_total",
			Help:      "Number of rooms created",
		}),
		RoomsJoined: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rooms_joined_total",
			Help:      "Number of successful joins",
		}),
		PhaseTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phase_transitions_total",
			Help:      "Committed phase transitions by target phase",
		}, []string{"phase"}),
		Outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outcomes_total",
			Help:      "Decided matches by cause",
		}, []string{"cause"}),
		Vouchers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vouchers_issued_total",
			Help:      "Settlement vouchers issued by kind",
		}, []string{"kind"}),
		CommitConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commit_conflicts_total",
			Help:      "Compare-and-swap attempts lost to a concurrent writer",
		}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "requests_in_flight",
			Help:      "Requests currently being served",
		}),
		RequestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_latency_seconds",
			Help:      "Request processing latency",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"route", "status"}),
	}

	reg.MustRegister(
		m.RoomsCreated,
		m.RoomsJoined,
		m.PhaseTransitions,
		m.Outcomes,
		m.Vouchers,
		m.CommitConflicts,
		m.InFlight,
		m.RequestLatency,
	)

	return m
}

// Monitor records engine metrics. A nil *Monitor discards everything.
type Monitor struct {
	metrics   *Metrics
	registry  *prometheus.Registry
	startTime time.Time
	server    *http.Server
	once      sync.Once
}

func NewMonitor(namespace string) *Monitor {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Monitor{
		metrics:   NewMetrics(namespace, reg),
		registry:  reg,
		startTime: time.Now(),
	}
}

// Metrics exposes the collectors for inspection.
func (m *Monitor) Metrics() *Metrics {
	return m.metrics
}

// Registry is the registry behind /metrics.
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves /metrics and /debug/vars.
func (m *Monitor) Handler() http.Handler {
	// 添加expvar指标
	m.once.Do(func() {
		if expvar.Get("uptime") == nil {
			expvar.Publish("uptime", expvar.Func(func() interface{} {
				return time.Since(m.startTime).Seconds()
			}))
		}
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry}))
	mux.Handle("/debug/vars", expvar.Handler())
	return mux
}

// StartServer serves the metrics listener in the background.
func (m *Monitor) StartServer(addr string) {
	m.server = &http.Server{Addr: addr, Handler: m.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := m.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Errorf("metrics server stopped: %v", err)
		}
	}()
}

// Shutdown stops the metrics listener.
func (m *Monitor) Shutdown(ctx context.Context) error {
	if m == nil || m.server == nil {
		return nil
	}
	return m.server.Shutdown(ctx)
}

func (m *Monitor) IncRoomsCreated() {
	if m == nil {
		return
	}
	m.metrics.RoomsCreated.Inc()
}

func (m *Monitor) IncRoomsJoined() {
	if m == nil {
		return
	}
	m.metrics.RoomsJoined.Inc()
}

func (m *Monitor) IncPhaseTransition(phase string) {
	if m == nil {
		return
	}
	m.metrics.PhaseTransitions.WithLabelValues(phase).Inc()
}

func (m *Monitor) IncOutcome(cause string) {
	if m == nil {
		return
	}
	m.metrics.Outcomes.WithLabelValues(cause).Inc()
}

func (m *Monitor) IncVoucher(kind string) {
	if m == nil {
		return
	}
	m.metrics.Vouchers.WithLabelValues(kind).Inc()
}

func (m *Monitor) IncCommitConflict() {
	if m == nil {
		return
	}
	m.metrics.CommitConflicts.Inc()
}

// TrackRequest marks a request in flight and returns its completion func.
func (m *Monitor) TrackRequest(route string) func(status int) {
	if m == nil {
		return func(int) {}
	}
	start := time.Now()
	m.metrics.InFlight.Inc()
	return func(status int) {
		m.metrics.InFlight.Dec()
		m.metrics.RequestLatency.WithLabelValues(route, http.StatusText(status)).Observe(time.Since(start).Seconds())
	}
}
