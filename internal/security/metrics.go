package security

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// StoreLatency can be used by store implementations to record operation latency.
	StoreLatency *prometheus.HistogramVec

	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter

	// DBPoolOpenConnections tracks the number of currently open database connections.
	DBPoolOpenConnections prometheus.Gauge

	// DBPoolMaxConnections tracks the configured maximum database connections.
	DBPoolMaxConnections prometheus.Gauge

	// NotificationsCreatedTotal counts notifications written by message fan-out, by policy.
	NotificationsCreatedTotal *prometheus.CounterVec

	// MessageEditsTotal counts edits that captured a history row.
	MessageEditsTotal prometheus.Counter

	// UsersDeletedTotal counts completed user deletion cascades.
	UsersDeletedTotal prometheus.Counter

	// EvictedRowsTotal counts rows removed by the eviction service, by kind.
	EvictedRowsTotal *prometheus.CounterVec
)

var validLabelKey = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ParseMetricsLabels parses a comma-separated list of key=value pairs into
// Prometheus labels. Values support ${VAR} / $VAR environment variable expansion.
// Label values may not contain commas. Returns nil for an empty string.
func ParseMetricsLabels(s string) (prometheus.Labels, error) {
	s = os.Expand(s, os.Getenv)
	if s == "" {
		return nil, nil
	}
	labels := prometheus.Labels{}
	for _, pair := range strings.Split(s, ",") {
		idx := strings.IndexByte(pair, '=')
		if idx < 0 {
			return nil, fmt.Errorf("invalid label %q: expected key=value", pair)
		}
		k, v := pair[:idx], pair[idx+1:]
		if !validLabelKey.MatchString(k) {
			return nil, fmt.Errorf("invalid label key %q: must match [a-zA-Z_][a-zA-Z0-9_]*", k)
		}
		labels[k] = v
	}
	return labels, nil
}

var initMetricsOnce sync.Once

// InitMetrics registers all Prometheus metrics with the given constant labels.
// Must be called before starting the HTTP server or any store/cache initialization
// that records metrics. Safe to call multiple times; only the first call registers.
func InitMetrics(constLabels prometheus.Labels) {
	initMetricsOnce.Do(func() {
		initMetricsInner(constLabels)
	})
}

func initMetricsInner(constLabels prometheus.Labels) {
	reg := prometheus.WrapRegistererWith(constLabels, prometheus.DefaultRegisterer)
	f := promauto.With(reg)

	httpRequestsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_service_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "messaging_service_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	StoreLatency = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "messaging_service_store_latency_seconds",
			Help:    "Store operation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	CacheHitsTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "messaging_service_cache_hits_total",
		Help: "Total cache hits",
	})

	CacheMissesTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "messaging_service_cache_misses_total",
		Help: "Total cache misses",
	})

	DBPoolOpenConnections = f.NewGauge(prometheus.GaugeOpts{
		Name: "messaging_service_db_pool_open_connections",
		Help: "Number of open database connections",
	})

	DBPoolMaxConnections = f.NewGauge(prometheus.GaugeOpts{
		Name: "messaging_service_db_pool_max_connections",
		Help: "Maximum number of database connections",
	})

	NotificationsCreatedTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_service_notifications_created_total",
			Help: "Total notifications created by message fan-out",
		},
		[]string{"policy"},
	)

	MessageEditsTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "messaging_service_message_edits_total",
		Help: "Total message edits recorded in history",
	})

	UsersDeletedTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "messaging_service_users_deleted_total",
		Help: "Total users removed together with their dependent records",
	})

	EvictedRowsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_service_evicted_rows_total",
			Help: "Total rows removed by background eviction",
		},
		[]string{"kind"},
	)
}

// RecordNotifications adds n to the fan-out counter. It is a no-op before InitMetrics.
func RecordNotifications(policy string, n int) {
	if NotificationsCreatedTotal == nil || n == 0 {
		return
	}
	NotificationsCreatedTotal.WithLabelValues(policy).Add(float64(n))
}

// RecordMessageEdit increments the edit counter. It is a no-op before InitMetrics.
func RecordMessageEdit() {
	if MessageEditsTotal != nil {
		MessageEditsTotal.Inc()
	}
}

// RecordUserDeleted increments the user deletion counter. It is a no-op before InitMetrics.
func RecordUserDeleted() {
	if UsersDeletedTotal != nil {
		UsersDeletedTotal.Inc()
	}
}

// RecordEvicted adds n to the eviction counter for kind. It is a no-op before InitMetrics.
func RecordEvicted(kind string, n int64) {
	if EvictedRowsTotal == nil || n <= 0 {
		return
	}
	EvictedRowsTotal.WithLabelValues(kind).Add(float64(n))
}

// RecordCacheLookup counts a cache hit or miss. It is a no-op before InitMetrics.
func RecordCacheLookup(hit bool) {
	if hit {
		if CacheHitsTotal != nil {
			CacheHitsTotal.Inc()
		}
		return
	}
	if CacheMissesTotal != nil {
		CacheMissesTotal.Inc()
	}
}

// MetricsMiddleware records HTTP request metrics for Prometheus.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if httpRequestsTotal == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method).Observe(duration.Seconds())
	}
}
