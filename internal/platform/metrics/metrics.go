package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/circles-api/internal/events"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "circles"

// Outcome labels for circle operations.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics holds every collector the service exports.
type Metrics struct {
	gatherer prometheus.Gatherer

	circleOps        *prometheus.CounterVec
	eventsPublished  *prometheus.CounterVec
	eventsDelivered  prometheus.Counter
	eventsDropped    prometheus.Counter
	deliveryFailures prometheus.Counter
	subscribers      prometheus.Gauge
	scoreCache       *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

var _ events.Metrics = (*Metrics)(nil)

// New creates the collectors and registers them on reg.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		gatherer: reg,
		circleOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circle_operations_total",
			Help:      "Lending circle operations by action and outcome.",
		}, []string{"action", "outcome"}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Circle events handed to the broadcaster.",
		}, []string{"type"}),
		eventsDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_delivered_total",
			Help:      "Circle events successfully delivered to an observer.",
		}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Circle events dropped because an observer queue was full.",
		}),
		deliveryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_delivery_failures_total",
			Help:      "Observer deliveries that returned an error or panicked.",
		}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "event_subscribers",
			Help:      "Current number of event observers.",
		}),
		scoreCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "score_cache_requests_total",
			Help:      "Credit score cache lookups by result.",
		}, []string{"result"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route, method and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
	}

	reg.MustRegister(
		m.circleOps,
		m.eventsPublished,
		m.eventsDelivered,
		m.eventsDropped,
		m.deliveryFailures,
		m.subscribers,
		m.scoreCache,
		m.httpDuration,
	)
	return m
}

// CircleOperation records one registry command.
func (m *Metrics) CircleOperation(action string, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	m.circleOps.WithLabelValues(action, outcome).Inc()
}

// ScoreCacheHit records a cache hit.
func (m *Metrics) ScoreCacheHit() { m.scoreCache.WithLabelValues("hit").Inc() }

// ScoreCacheMiss records a cache miss.
func (m *Metrics) ScoreCacheMiss() { m.scoreCache.WithLabelValues("miss").Inc() }

// EventPublished implements events.Metrics.
func (m *Metrics) EventPublished(eventType string) {
	m.eventsPublished.WithLabelValues(eventType).Inc()
}

// EventDelivered implements events.Metrics.
func (m *Metrics) EventDelivered() { m.eventsDelivered.Inc() }

// EventDropped implements events.Metrics.
func (m *Metrics) EventDropped() { m.eventsDropped.Inc() }

// DeliveryFailed implements events.Metrics.
func (m *Metrics) DeliveryFailed() { m.deliveryFailures.Inc() }

// SubscribersChanged implements events.Metrics.
func (m *Metrics) SubscribersChanged(count int) { m.subscribers.Set(float64(count)) }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Middleware records request durations labelled by chi route pattern so
// path parameters do not explode label cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.httpDuration.
			WithLabelValues(route, r.Method, strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())
	})
}
