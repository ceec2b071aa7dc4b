// Package metrics collects Prometheus request metrics labelled by route
// template and exposes them for scraping.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// UnmatchedRoute labels requests that did not match any route.
const UnmatchedRoute = "unmatched"

// Config selects which metrics are collected.
type Config struct {
	Namespace string
	Subsystem string

	// Buckets for the latency histogram. Default: prometheus.DefBuckets.
	Buckets []float64

	EnableLatency    bool
	EnableThroughput bool
	EnableQPS        bool
	EnableErrors     bool

	// Filter excludes requests for which it returns false.
	Filter func(*http.Request) bool

	// Registry receives the collectors. A new registry is created when nil.
	Registry *prometheus.Registry
}

// Collector records request metrics.
type Collector struct {
	config   Config
	registry *prometheus.Registry

	requests *prometheus.CounterVec
	errors   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	bytes    *prometheus.CounterVec
	inFlight prometheus.Gauge
}

// NewCollector creates the enabled metrics and registers them.
func NewCollector(config Config) (*Collector, error) {
	reg := config.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	buckets := config.Buckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}
	labels := []string{"method", "route", "status"}

	c := &Collector{config: config, registry: reg}
	c.inFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: config.Namespace,
		Subsystem: config.Subsystem,
		Name:      "requests_in_flight",
		Help:      "Number of requests currently being served.",
	})
	collectors := []prometheus.Collector{c.inFlight}

	if config.EnableQPS {
		c.requests = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "requests_total",
			Help:      "Total number of requests.",
		}, labels)
		collectors = append(collectors, c.requests)
	}
	if config.EnableErrors {
		c.errors = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "request_errors_total",
			Help:      "Total number of requests answered with status 400 or above.",
		}, labels)
		collectors = append(collectors, c.errors)
	}
	if config.EnableLatency {
		c.latency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "request_duration_seconds",
			Help:      "Request latency in seconds.",
			Buckets:   buckets,
		}, []string{"method", "route"})
		collectors = append(collectors, c.latency)
	}
	if config.EnableThroughput {
		c.bytes = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "response_bytes_total",
			Help:      "Total number of response body bytes written.",
		}, []string{"method", "route"})
		collectors = append(collectors, c.bytes)
	}

	for _, col := range collectors {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Registry returns the registry holding the collector's metrics.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// HTTPHandler serves the registry in the Prometheus exposition format.
func (c *Collector) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Handler wraps h, labelling its requests with route.
func (c *Collector) Handler(route string, h http.Handler) http.Handler {
	return c.Middleware(func(*http.Request) string { return route })(h)
}

// Middleware records metrics for every request, labelling it with the value
// returned by label after the handler has run. A nil label function or an
// empty result records UnmatchedRoute.
func (c *Collector) Middleware(label func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if c.config.Filter != nil && !c.config.Filter(r) {
				next.ServeHTTP(w, r)
				return
			}

			c.inFlight.Inc()
			defer c.inFlight.Dec()

			rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(rw, r)

			route := UnmatchedRoute
			if label != nil {
				if l := label(r); l != "" {
					route = l
				}
			}
			c.observe(r.Method, route, rw.status, rw.bytes, time.Since(start))
		})
	}
}

func (c *Collector) observe(method, route string, status int, bytes int64, d time.Duration) {
	code := strconv.Itoa(status)
	if c.requests != nil {
		c.requests.WithLabelValues(method, route, code).Inc()
	}
	if c.errors != nil && status >= 400 {
		c.errors.WithLabelValues(method, route, code).Inc()
	}
	if c.latency != nil {
		c.latency.WithLabelValues(method, route).Observe(d.Seconds())
	}
	if c.bytes != nil {
		c.bytes.WithLabelValues(method, route).Add(float64(bytes))
	}
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	bytes       int64
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(status int) {
	if !w.wroteHeader {
		w.status = status
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	n, err := w.ResponseWriter.Write(b)
	w.bytes += int64(n)
	return n, err
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
