package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mailprobe"

var (
	metricValidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validations_total",
			Help:      "Completed email validations by status and method.",
		},
		[]string{"status", "method"},
	)
	metricValidationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "validation_duration_seconds",
			Help:      "Duration of a single email validation.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"method"},
	)
	metricSMTPProbes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "smtp_probes_total",
			Help:      "SMTP probe outcomes.",
		},
		[]string{"outcome"},
	)
	metricCircuitOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_open",
			Help:      "1 while the SMTP circuit breaker is open.",
		},
	)
	metricCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by namespace, tier and result.",
		},
		[]string{"namespace", "tier", "result"},
	)
	metricDNSBL = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dnsbl_lookups_total",
			Help:      "DNSBL lookups by zone and result.",
		},
		[]string{"zone", "result"},
	)
	metricBatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Batches by lifecycle event.",
		},
		[]string{"event"},
	)
)

func ObserveValidation(status, method string, started time.Time) {
	metricValidations.WithLabelValues(status, method).Inc()
	metricValidationDuration.WithLabelValues(method).Observe(time.Since(started).Seconds())
}

func SMTPProbe(outcome string) {
	metricSMTPProbes.WithLabelValues(outcome).Inc()
}

func CircuitOpen(open bool) {
	if open {
		metricCircuitOpen.Set(1)
	} else {
		metricCircuitOpen.Set(0)
	}
}

func CacheLookup(namespace, tier string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	metricCache.WithLabelValues(namespace, tier, result).Inc()
}

func DNSBLLookup(zone string, listed bool) {
	result := "clean"
	if listed {
		result = "listed"
	}
	metricDNSBL.WithLabelValues(zone, result).Inc()
}

func BatchEvent(event string) {
	metricBatches.WithLabelValues(event).Inc()
}

func Handler() http.Handler {
	return promhttp.Handler()
}
