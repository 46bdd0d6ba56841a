package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds all Prometheus metrics.
type Registry struct {
	*prometheus.Registry

	// HTTP metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Business metrics
	vendorCalls         *prometheus.CounterVec
	vendorCallDuration  *prometheus.HistogramVec
	oauthHandshakes     *prometheus.CounterVec
	tokenRefreshes      *prometheus.CounterVec
	ordersPlaced        *prometheus.CounterVec
	aggregationCycles   prometheus.Counter
	aggregationDuration prometheus.Histogram
	connectionsActive   prometheus.Gauge
}

// NewRegistry creates a new metrics registry with all metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	// Register Go runtime metrics
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{
		Registry: reg,

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		httpRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently in flight",
			},
		),
	}

	reg.MustRegister(r.httpRequestsTotal)
	reg.MustRegister(r.httpRequestDuration)
	reg.MustRegister(r.httpRequestsInFlight)

	// Business metrics
	r.vendorCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brokerhub_vendor_calls_total",
			Help: "Total number of brokerage vendor API calls",
		},
		[]string{"broker", "operation", "status"},
	)
	r.vendorCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "brokerhub_vendor_call_duration_seconds",
			Help:    "Vendor API call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"broker", "operation"},
	)
	r.oauthHandshakes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brokerhub_oauth_handshakes_total",
			Help: "Total number of OAuth handshake completions",
		},
		[]string{"broker", "status"},
	)
	r.tokenRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brokerhub_token_refreshes_total",
			Help: "Total number of token refresh attempts",
		},
		[]string{"broker", "status"},
	)
	r.ordersPlaced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brokerhub_orders_placed_total",
			Help: "Total number of orders submitted to vendors",
		},
		[]string{"broker", "status"},
	)
	r.aggregationCycles = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "brokerhub_aggregation_cycles_total",
			Help: "Total number of portfolio aggregation fan-outs",
		},
	)
	r.aggregationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "brokerhub_aggregation_duration_seconds",
			Help:    "Portfolio aggregation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
	r.connectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "brokerhub_connections_active",
			Help: "Number of active broker connections",
		},
	)

	reg.MustRegister(r.vendorCalls)
	reg.MustRegister(r.vendorCallDuration)
	reg.MustRegister(r.oauthHandshakes)
	reg.MustRegister(r.tokenRefreshes)
	reg.MustRegister(r.ordersPlaced)
	reg.MustRegister(r.aggregationCycles)
	reg.MustRegister(r.aggregationDuration)
	reg.MustRegister(r.connectionsActive)

	return r
}

// RecordRequest records metrics for an HTTP request.
func (r *Registry) RecordRequest(method, path string, status int, duration float64) {
	statusStr := statusToString(status)
	r.httpRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	r.httpRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// InFlightInc increments in-flight requests.
func (r *Registry) InFlightInc() {
	r.httpRequestsInFlight.Inc()
}

// InFlightDec decrements in-flight requests.
func (r *Registry) InFlightDec() {
	r.httpRequestsInFlight.Dec()
}

// RecordVendorCall records one vendor API call outcome.
func (r *Registry) RecordVendorCall(broker, operation, status string, duration float64) {
	r.vendorCalls.WithLabelValues(broker, operation, status).Inc()
	r.vendorCallDuration.WithLabelValues(broker, operation).Observe(duration)
}

// RecordHandshake records an OAuth handshake completion attempt.
func (r *Registry) RecordHandshake(broker, status string) {
	r.oauthHandshakes.WithLabelValues(broker, status).Inc()
}

// RecordTokenRefresh records a token refresh attempt.
func (r *Registry) RecordTokenRefresh(broker, status string) {
	r.tokenRefreshes.WithLabelValues(broker, status).Inc()
}

// RecordOrderPlaced records an order submission outcome.
func (r *Registry) RecordOrderPlaced(broker, status string) {
	r.ordersPlaced.WithLabelValues(broker, status).Inc()
}

// RecordAggregation records a portfolio aggregation fan-out.
func (r *Registry) RecordAggregation(duration float64) {
	r.aggregationCycles.Inc()
	r.aggregationDuration.Observe(duration)
}

// ConnectionOpened increments the active connection gauge.
func (r *Registry) ConnectionOpened() {
	r.connectionsActive.Inc()
}

// ConnectionClosed decrements the active connection gauge.
func (r *Registry) ConnectionClosed() {
	r.connectionsActive.Dec()
}

func statusToString(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}
