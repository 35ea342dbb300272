// Package metrics exposes Prometheus collectors for HTTP traffic, order resolution and extractor calls.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "smartprice"

// Registry owns a private Prometheus registry so tests can create as many as they need.
type Registry struct {
	reg *prometheus.Registry

	HTTPRequests        *prometheus.CounterVec
	HTTPLatency         *prometheus.HistogramVec
	Resolutions         *prometheus.CounterVec
	ResolutionLatency   *prometheus.HistogramVec
	DroppedRows         *prometheus.CounterVec
	ExtractorCalls      *prometheus.CounterVec
	ExtractorLatency    *prometheus.HistogramVec
	QuotationsCreated   *prometheus.CounterVec
	EventPublishFailure prometheus.Counter
}

// NewRegistry creates and registers every collector, including the Go runtime collectors.
func NewRegistry() *Registry {
	r := prometheus.NewRegistry()

	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by route, method and status code.",
	}, []string{"route", "method", "status"})
	httpLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method"})
	resolutions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "order_resolutions_total",
		Help:      "Order text resolutions by outcome.",
	}, []string{"outcome"})
	resolutionLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "order_resolution_duration_seconds",
		Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
	}, []string{"outcome"})
	dropped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "order_rows_dropped_total",
		Help:      "Extracted rows discarded during resolution.",
	}, []string{"reason"})
	extractorCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "extractor_calls_total",
	}, []string{"extractor", "outcome"})
	extractorLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "extractor_call_duration_seconds",
		Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
	}, []string{"extractor"})
	quotations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "quotations_created_total",
	}, []string{"tier"})
	publishFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "event_publish_failures_total",
	})

	r.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		httpRequests, httpLatency,
		resolutions, resolutionLatency, dropped,
		extractorCalls, extractorLatency,
		quotations, publishFailures,
	)
	return &Registry{
		reg:                 r,
		HTTPRequests:        httpRequests,
		HTTPLatency:         httpLatency,
		Resolutions:         resolutions,
		ResolutionLatency:   resolutionLatency,
		DroppedRows:         dropped,
		ExtractorCalls:      extractorCalls,
		ExtractorLatency:    extractorLatency,
		QuotationsCreated:   quotations,
		EventPublishFailure: publishFailures,
	}
}

// Handler serves the registry in the Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// Gatherer exposes the underlying registry for tests.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// ObserveResolution records one order resolution attempt.
func (r *Registry) ObserveResolution(outcome string, elapsed time.Duration) {
	r.Resolutions.WithLabelValues(outcome).Inc()
	if elapsed > 0 {
		r.ResolutionLatency.WithLabelValues(outcome).Observe(elapsed.Seconds())
	}
}

// ObserveDroppedRow counts an extracted row that did not become a line item.
func (r *Registry) ObserveDroppedRow(reason string) {
	r.DroppedRows.WithLabelValues(reason).Inc()
}

// ObserveExtractorCall records one upstream model call.
func (r *Registry) ObserveExtractorCall(extractor, outcome string, elapsed time.Duration) {
	r.ExtractorCalls.WithLabelValues(extractor, outcome).Inc()
	r.ExtractorLatency.WithLabelValues(extractor).Observe(elapsed.Seconds())
}

// ObserveQuotation counts a completed quotation by tier.
func (r *Registry) ObserveQuotation(tier string) {
	r.QuotationsCreated.WithLabelValues(tier).Inc()
}

// ObservePublishFailure counts an event that could not be delivered.
func (r *Registry) ObservePublishFailure() {
	r.EventPublishFailure.Inc()
}

// Middleware records request counts and latency labelled by the chi route pattern.
func (r *Registry) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, req)

		route := "unmatched"
		if rctx := chi.RouteContext(req.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		r.HTTPRequests.WithLabelValues(route, req.Method, strconv.Itoa(status)).Inc()
		r.HTTPLatency.WithLabelValues(route, req.Method).Observe(time.Since(start).Seconds())
	})
}
