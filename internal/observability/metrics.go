package observability

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/spec-kit/subscription-reconciler/internal/billing"
	"github.com/spec-kit/subscription-reconciler/internal/reconcile"
)

const namespace = "reconciler"

// Metrics holds the Prometheus collectors for the service.
type Metrics struct {
	requests        *prometheus.CounterVec
	requestErrors   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	runs            *prometheus.CounterVec
	runDuration     prometheus.Histogram
	outcomes        *prometheus.CounterVec
	billingPages    prometheus.Counter
	malformed       prometheus.Counter
	lastSuccess     prometheus.Gauge
}

// NewMetrics creates collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		requestErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "errors_total",
			Help:      "HTTP error responses by route, method and error code.",
		}, []string{"route", "method", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "total",
			Help:      "Reconciliation runs by result.",
		}, []string{"result"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "duration_seconds",
			Help:      "Reconciliation run duration in seconds.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "identity_outcomes_total",
			Help:      "Per-identity outcomes by kind and failed store.",
		}, []string{"outcome", "store"}),
		billingPages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "pages_fetched_total",
			Help:      "Billing source pages fetched.",
		}),
		malformed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "malformed_records_total",
			Help:      "Billing records skipped for lacking a customer email.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.requests, m.requestErrors, m.requestDuration, m.runs, m.runDuration,
			m.outcomes, m.billingPages, m.malformed, m.lastSuccess)
	}
	return m
}

// RecordRequest observes one HTTP request.
func (m *Metrics) RecordRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordError counts an error response.
func (m *Metrics) RecordError(route, method, code string) {
	if m == nil {
		return
	}
	m.requestErrors.WithLabelValues(route, method, code).Inc()
}

// RecordRun observes a finished reconciliation run.
func (m *Metrics) RecordRun(report *reconcile.Report) {
	if m == nil || report == nil {
		return
	}
	m.runs.WithLabelValues(RunResult(report)).Inc()
	m.runDuration.Observe(report.Duration().Seconds())
	m.billingPages.Add(float64(report.BillingPages))
	m.malformed.Add(float64(report.SkippedRecords))

	for _, o := range report.Outcomes {
		m.outcomes.WithLabelValues(string(o.Kind), string(o.FailedStore)).Inc()
	}
	if report.Success() {
		m.lastSuccess.Set(float64(report.FinishedAt.Unix()))
	}
}

// RunResult labels a report for metrics and events.
func RunResult(report *reconcile.Report) string {
	switch {
	case report.Success():
		return "success"
	case billing.IsSourceFetchError(report.Err):
		return "source_fetch_error"
	case errors.Is(report.Err, reconcile.ErrRunCancelled):
		return "cancelled"
	default:
		return "error"
	}
}
