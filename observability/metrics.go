package observability

import (
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type httpMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	httpMetricsOnce sync.Once
	httpRegistry    *httpMetrics

	marketplaceMetricsOnce sync.Once
	marketplaceRegistry    *MarketplaceMetrics
)

// HTTP returns the lazily-initialised registry recording marketd API activity.
func HTTP() *httpMetrics {
	httpMetricsOnce.Do(func() {
		httpRegistry = &httpMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "market",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total API requests segmented by route, method, and outcome.",
			}, []string{"route", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "market",
				Subsystem: "http",
				Name:      "errors_total",
				Help:      "Total API errors segmented by route, method, and status code.",
			}, []string{"route", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "market",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for API handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "market",
				Subsystem: "http",
				Name:      "throttles_total",
				Help:      "Count of API requests rejected due to throttling policies.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(
			httpRegistry.requests,
			httpRegistry.errors,
			httpRegistry.latency,
			httpRegistry.throttles,
		)
	})
	return httpRegistry
}

// Observe records the outcome of an API request. The status code should be the
// HTTP status that was ultimately written to the response writer.
func (m *httpMetrics) Observe(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
		m.errors.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	}
	m.requests.WithLabelValues(route, method, outcome).Inc()
	m.latency.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter. Reasons should be stable
// strings such as "rate_limit" so dashboards and alerts remain consistent.
func (m *httpMetrics) RecordThrottle(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(reason).Inc()
}

// MarketplaceMetrics captures marketplace operation outcomes and sale volume.
type MarketplaceMetrics struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	payouts    *prometheus.CounterVec
	units      prometheus.Counter
	paused     prometheus.Gauge
}

// Marketplace returns the singleton marketplace metrics registry.
func Marketplace() *MarketplaceMetrics {
	marketplaceMetricsOnce.Do(func() {
		marketplaceRegistry = &MarketplaceMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "market",
				Subsystem: "marketplace",
				Name:      "operations_total",
				Help:      "Count of marketplace operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "market",
				Subsystem: "marketplace",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for marketplace operations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			payouts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "market",
				Subsystem: "marketplace",
				Name:      "payout_volume_total",
				Help:      "Native currency paid out by collects segmented by share.",
			}, []string{"share"}),
			units: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "market",
				Subsystem: "marketplace",
				Name:      "units_sold_total",
				Help:      "Token units delivered to collectors.",
			}),
			paused: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "market",
				Subsystem: "marketplace",
				Name:      "paused",
				Help:      "Set to 1 while creation and collection are paused.",
			}),
		}
		prometheus.MustRegister(
			marketplaceRegistry.operations,
			marketplaceRegistry.latency,
			marketplaceRegistry.payouts,
			marketplaceRegistry.units,
			marketplaceRegistry.paused,
		)
	})
	return marketplaceRegistry
}

// Observe records a marketplace operation. Outcome is "success" or the error
// kind that rejected the call.
func (m *MarketplaceMetrics) Observe(operation, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	if outcome == "" {
		outcome = "success"
	}
	m.operations.WithLabelValues(op, outcome).Inc()
	m.latency.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordSale adds a single-unit sale and its payout shares.
func (m *MarketplaceMetrics) RecordSale(royalty, fee, issuer *big.Int) {
	if m == nil {
		return
	}
	m.units.Inc()
	m.payouts.WithLabelValues("royalty").Add(toFloat(royalty))
	m.payouts.WithLabelValues("fee").Add(toFloat(fee))
	m.payouts.WithLabelValues("issuer").Add(toFloat(issuer))
}

// SetPaused mirrors the pause flag.
func (m *MarketplaceMetrics) SetPaused(paused bool) {
	if m == nil {
		return
	}
	if paused {
		m.paused.Set(1)
		return
	}
	m.paused.Set(0)
}

func toFloat(v *big.Int) float64 {
	if v == nil || v.Sign() <= 0 {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
