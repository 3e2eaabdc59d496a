package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for build runs. A disabled instance
// has nil collectors and every method is a no-op.
type Metrics struct {
	config MetricsConfig

	tasksTotal   *prometheus.CounterVec
	taskDuration *prometheus.HistogramVec
	runsTotal    *prometheus.CounterVec
	runDuration  *prometheus.HistogramVec
	errorsByCode *prometheus.CounterVec

	tasksRunning prometheus.Gauge
	tasksQueued  prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates the collectors on a private registry.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	ns := cfg.Namespace
	buckets := cfg.Buckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	m := &Metrics{
		config:   cfg,
		registry: prometheus.NewRegistry(),
		tasksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "tasks_total",
			Help:      "Tasks finished, by outcome",
		}, []string{"outcome"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "task_duration_seconds",
			Help:      "Wall time of task execution, by outcome",
			Buckets:   buckets,
		}, []string{"outcome"}),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "runs_total",
			Help:      "Build runs finished, by status",
		}, []string{"status"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "run_duration_seconds",
			Help:      "Wall time of a build run, by status",
			Buckets:   buckets,
		}, []string{"status"}),
		errorsByCode: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "errors_total",
			Help:      "Task failures by error class and code",
		}, []string{"class", "code"}),
		tasksRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "tasks_running",
			Help:      "Tasks currently held by a worker",
		}),
		tasksQueued: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "tasks_queued",
			Help:      "Tasks ready and waiting for a worker",
		}),
	}

	m.registry.MustRegister(
		m.tasksTotal,
		m.taskDuration,
		m.runsTotal,
		m.runDuration,
		m.errorsByCode,
		m.tasksRunning,
		m.tasksQueued,
	)
	return m, nil
}

// Enabled reports whether collectors exist.
func (m *Metrics) Enabled() bool {
	return m != nil && m.registry != nil
}

// Registry returns the private registry, or nil when disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordTask counts one finished task.
func (m *Metrics) RecordTask(outcome string, duration time.Duration) {
	if !m.Enabled() {
		return
	}
	m.tasksTotal.WithLabelValues(outcome).Inc()
	m.taskDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordRun counts one finished run.
func (m *Metrics) RecordRun(status string, duration time.Duration) {
	if !m.Enabled() {
		return
	}
	m.runsTotal.WithLabelValues(status).Inc()
	m.runDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordError counts a failure by class and optionally code.
func (m *Metrics) RecordError(class, code string) {
	if !m.Enabled() {
		return
	}
	if code == "" {
		code = "none"
	}
	m.errorsByCode.WithLabelValues(class, code).Inc()
}

func (m *Metrics) TaskStarted() {
	if !m.Enabled() {
		return
	}
	m.tasksRunning.Inc()
}

func (m *Metrics) TaskFinished() {
	if !m.Enabled() {
		return
	}
	m.tasksRunning.Dec()
}

// SetQueued sets the ready queue depth.
func (m *Metrics) SetQueued(n int) {
	if !m.Enabled() {
		return
	}
	m.tasksQueued.Set(float64(n))
}

// Timer measures elapsed wall time.
type Timer struct {
	start time.Time
}

func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if !m.Enabled() {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Serve exposes the registry on addr until ctx is done. It returns once the
// listener stops.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	if !m.Enabled() {
		return nil
	}
	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
