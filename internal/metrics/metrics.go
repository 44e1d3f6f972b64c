package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes viewer metrics that are safe to scrape via Prometheus.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry             *prometheus.Registry
	httpRequests         *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	routeRequests        *prometheus.CounterVec
	routeRequestDuration prometheus.Histogram
	staleResponses       prometheus.Counter
	overlayRenders       *prometheus.CounterVec
	unresolvedStations   prometheus.Counter
}

// New creates a fresh Metrics registry with HTTP, route and overlay metrics registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "metroview",
		Name:      "http_requests_total",
		Help:      "Count of control requests processed by the viewer",
	}, []string{"method", "path", "status"})

	httpRequestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "metroview",
		Name:      "http_request_duration_seconds",
		Help:      "Duration of control requests served by the viewer",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	routeRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "metroview",
		Name:      "route_requests_total",
		Help:      "Route service requests by outcome",
	}, []string{"outcome"})

	routeRequestDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "metroview",
		Name:      "route_request_duration_seconds",
		Help:      "Round-trip time of route service requests",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	staleResponses := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "metroview",
		Name:      "route_stale_responses_total",
		Help:      "Route responses discarded because a newer request was issued",
	})

	overlayRenders := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "metroview",
		Name:      "overlay_renders_total",
		Help:      "Overlay render attempts by result",
	}, []string{"result"})

	unresolvedStations := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "metroview",
		Name:      "overlay_unresolved_stations_total",
		Help:      "Route stations skipped because the diagram has no representation for them",
	})

	registry.MustRegister(
		httpRequests,
		httpRequestDuration,
		routeRequests,
		routeRequestDuration,
		staleResponses,
		overlayRenders,
		unresolvedStations,
	)

	return &Metrics{
		registry:             registry,
		httpRequests:         httpRequests,
		httpRequestDuration:  httpRequestDuration,
		routeRequests:        routeRequests,
		routeRequestDuration: routeRequestDuration,
		staleResponses:       staleResponses,
		overlayRenders:       overlayRenders,
		unresolvedStations:   unresolvedStations,
	}
}

// ObserveHTTPRequest records a single HTTP request/response cycle.
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{
		"method": method,
		"path":   path,
		"status": strconv.Itoa(status),
	}
	m.httpRequests.With(labels).Inc()
	m.httpRequestDuration.With(labels).Observe(duration.Seconds())
}

// ObserveRouteRequest records one completed route service call.
func (m *Metrics) ObserveRouteRequest(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.routeRequests.With(prometheus.Labels{"outcome": outcome}).Inc()
	m.routeRequestDuration.Observe(duration.Seconds())
}

// IncStaleResponse counts a discarded out-of-order response.
func (m *Metrics) IncStaleResponse() {
	if m == nil {
		return
	}
	m.staleResponses.Inc()
}

// ObserveOverlayRender records a render attempt and how many stations it skipped.
func (m *Metrics) ObserveOverlayRender(drawn bool, missing int) {
	if m == nil {
		return
	}
	result := "cleared"
	if drawn {
		result = "drawn"
	}
	m.overlayRenders.With(prometheus.Labels{"result": result}).Inc()
	if missing > 0 {
		m.unresolvedStations.Add(float64(missing))
	}
}

// Handler exposes the Prometheus registry over HTTP.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("metrics unavailable"))
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
