package observability

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Request and tool call outcomes used as the status label.
const (
	StatusOK        = "ok"
	StatusError     = "error"
	StatusCancelled = "cancelled"
)

// MetricsConfig configures the metrics collectors
type MetricsConfig struct {
	// Service identification, added as constant labels
	ServiceName    string
	ServiceVersion string

	Namespace        string    // Prometheus namespace (default: mcp)
	Subsystem        string    // Prometheus subsystem
	HistogramBuckets []float64 // Latency buckets in milliseconds

	// Registerer receives the collectors. A private registry is created when
	// nil; pass prometheus.DefaultRegisterer to expose them globally.
	Registerer prometheus.Registerer

	// Gatherer backs Handler. Defaults to the private registry, or to
	// prometheus.DefaultGatherer when Registerer is the default registerer.
	Gatherer prometheus.Gatherer

	ConstLabels prometheus.Labels
}

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	gatherer prometheus.Gatherer

	requestTotal     *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	toolCallTotal    *prometheus.CounterVec
	toolCallDuration *prometheus.HistogramVec
	activeSessions   prometheus.Gauge
	inflight         prometheus.Gauge
	cancellations    prometheus.Counter
}

// NewMetrics creates and registers the collectors. Collectors that are
// already registered with an identical description are reused, so several
// servers in one process can share a registerer.
func NewMetrics(config MetricsConfig) (*Metrics, error) {
	if config.Namespace == "" {
		config.Namespace = "mcp"
	}
	if config.HistogramBuckets == nil {
		config.HistogramBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}
	}
	labels := prometheus.Labels{}
	for k, v := range config.ConstLabels {
		labels[k] = v
	}
	if config.ServiceName != "" {
		labels["service"] = config.ServiceName
	}
	if config.ServiceVersion != "" {
		labels["version"] = config.ServiceVersion
	}

	registerer, gatherer := config.Registerer, config.Gatherer
	if registerer == nil {
		reg := prometheus.NewRegistry()
		registerer = reg
		if gatherer == nil {
			gatherer = reg
		}
	}
	if gatherer == nil {
		if g, ok := registerer.(prometheus.Gatherer); ok {
			gatherer = g
		} else {
			gatherer = prometheus.DefaultGatherer
		}
	}

	m := &Metrics{gatherer: gatherer}

	m.requestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "request_total",
			Help:        "Total number of MCP requests handled",
			ConstLabels: labels,
		},
		[]string{"method", "status"},
	)
	m.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "request_duration_milliseconds",
			Help:        "Duration of MCP requests in milliseconds",
			Buckets:     config.HistogramBuckets,
			ConstLabels: labels,
		},
		[]string{"method", "status"},
	)
	m.toolCallTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "tool_call_total",
			Help:        "Total number of tool invocations",
			ConstLabels: labels,
		},
		[]string{"tool", "status"},
	)
	m.toolCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "tool_call_duration_milliseconds",
			Help:        "Duration of tool calls in milliseconds",
			Buckets:     config.HistogramBuckets,
			ConstLabels: labels,
		},
		[]string{"tool", "status"},
	)
	m.activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "active_sessions",
			Help:        "Number of open sessions",
			ConstLabels: labels,
		},
	)
	m.inflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "inflight_requests",
			Help:        "Number of requests currently executing",
			ConstLabels: labels,
		},
	)
	m.cancellations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "cancellations_total",
			Help:        "Requests that ended because they were cancelled",
			ConstLabels: labels,
		},
	)

	var err error
	if m.requestTotal, err = register(registerer, m.requestTotal); err != nil {
		return nil, err
	}
	if m.requestDuration, err = register(registerer, m.requestDuration); err != nil {
		return nil, err
	}
	if m.toolCallTotal, err = register(registerer, m.toolCallTotal); err != nil {
		return nil, err
	}
	if m.toolCallDuration, err = register(registerer, m.toolCallDuration); err != nil {
		return nil, err
	}
	if m.activeSessions, err = register(registerer, m.activeSessions); err != nil {
		return nil, err
	}
	if m.inflight, err = register(registerer, m.inflight); err != nil {
		return nil, err
	}
	if m.cancellations, err = register(registerer, m.cancellations); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](r prometheus.Registerer, c C) (C, error) {
	if err := r.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("failed to register metrics: %w", err)
	}
	return c, nil
}

// RecordRequest records one completed request.
func (m *Metrics) RecordRequest(method, status string, duration time.Duration) {
	m.requestTotal.WithLabelValues(method, status).Inc()
	m.requestDuration.WithLabelValues(method, status).Observe(milliseconds(duration))
}

// RecordToolCall records one tools/call by tool name.
func (m *Metrics) RecordToolCall(tool, status string, duration time.Duration) {
	m.toolCallTotal.WithLabelValues(tool, status).Inc()
	m.toolCallDuration.WithLabelValues(tool, status).Observe(milliseconds(duration))
}

// RecordCancellation counts a request that ended cancelled.
func (m *Metrics) RecordCancellation() {
	m.cancellations.Inc()
}

// SessionOpened and SessionClosed track the active session gauge.
func (m *Metrics) SessionOpened() { m.activeSessions.Inc() }

func (m *Metrics) SessionClosed() { m.activeSessions.Dec() }

func (m *Metrics) requestStarted() { m.inflight.Inc() }

func (m *Metrics) requestFinished() { m.inflight.Dec() }

// Handler serves the collected metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
