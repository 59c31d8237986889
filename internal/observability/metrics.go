package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Business metrics
	FeatureTogglesTotal     *prometheus.CounterVec
	InheritanceBlocksTotal  prometheus.Counter
	SharingTransitionsTotal *prometheus.CounterVec
	QuotaDenialsTotal       *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "enablement_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "enablement_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "enablement_feature_cache_hits_total",
				Help: "Total number of resolved-feature cache hits",
			},
			[]string{"backend"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "enablement_feature_cache_misses_total",
				Help: "Total number of resolved-feature cache misses",
			},
			[]string{"backend"},
		),

		FeatureTogglesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "enablement_feature_toggles_total",
				Help: "Total number of explicit feature toggle writes",
			},
			[]string{"enabled"},
		),
		InheritanceBlocksTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "enablement_inheritance_blocks_total",
				Help: "Total number of enable requests blocked by an ancestor",
			},
		),
		SharingTransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "enablement_sharing_transitions_total",
				Help: "Total number of sharing requests entering a status",
			},
			[]string{"status"},
		),
		QuotaDenialsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "enablement_quota_denials_total",
				Help: "Total number of quota reservations refused",
			},
			[]string{"quota_type"},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.FeatureTogglesTotal,
		m.InheritanceBlocksTotal,
		m.SharingTransitionsTotal,
		m.QuotaDenialsTotal,
	)

	return m
}

// CacheLookup records a cache hit or miss
func (m *Metrics) CacheLookup(backend string, hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHitsTotal.WithLabelValues(backend).Inc()
	} else {
		m.CacheMissesTotal.WithLabelValues(backend).Inc()
	}
}

// ToggleWritten records an explicit toggle write
func (m *Metrics) ToggleWritten(enabled bool) {
	if m == nil {
		return
	}
	m.FeatureTogglesTotal.WithLabelValues(strconv.FormatBool(enabled)).Inc()
}

// InheritanceBlocked records an enable refused because of an ancestor
func (m *Metrics) InheritanceBlocked() {
	if m == nil {
		return
	}
	m.InheritanceBlocksTotal.Inc()
}

// SharingTransition records a sharing request entering status
func (m *Metrics) SharingTransition(status string) {
	if m == nil {
		return
	}
	m.SharingTransitionsTotal.WithLabelValues(status).Inc()
}

// QuotaDenied records a refused reservation
func (m *Metrics) QuotaDenied(quotaType string) {
	if m == nil {
		return
	}
	m.QuotaDenialsTotal.WithLabelValues(quotaType).Inc()
}

// GinMiddleware instruments gin requests; the path label is the route template
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if m == nil {
			return
		}
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the Prometheus exposition format
func Handler(registry *prometheus.Registry) gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
