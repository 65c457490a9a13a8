// Package metrics exposes discovery counters on a private Prometheus registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ekaya-inc/relayscout/pkg/discovery"
	"github.com/ekaya-inc/relayscout/pkg/models"
)

const namespace = "relayscout"

// Verification outcomes.
const (
	OutcomeValid   = "valid"
	OutcomeInvalid = "invalid"
	OutcomeError   = "error"
)

// Collector holds every metric the service reports. It implements
// discovery.Recorder.
type Collector struct {
	// Counters
	recordsIngested *prometheus.CounterVec
	admissions      prometheus.Counter
	rejections      prometheus.Counter
	sessionStops    *prometheus.CounterVec
	verifications   *prometheus.CounterVec

	// Gauges
	activeSubscriptions prometheus.Gauge
	registeredRelays    prometheus.Gauge
	admittedAddresses   prometheus.Gauge

	verificationDuration prometheus.Histogram

	registry *prometheus.Registry
}

var _ discovery.Recorder = (*Collector)(nil)

// NewCollector creates a collector registered on its own registry.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,

		recordsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_ingested_total",
			Help:      "Profile records delivered to the engine, by origin and result",
		}, []string{"origin", "result"}),

		admissions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "addresses_admitted_total",
			Help:      "Addresses admitted to the discovery index",
		}),

		rejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "addresses_rejected_total",
			Help:      "New addresses seen after the discovery index was full",
		}),

		sessionStops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_stops_total",
			Help:      "Discovery sessions stopped, by reason",
		}, []string{"reason"}),

		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "address_verifications_total",
			Help:      "Lightning address lookups, by outcome",
		}, []string{"outcome"}),

		activeSubscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_subscriptions",
			Help:      "Open relay subscriptions (session and enrichment)",
		}),

		registeredRelays: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registered_relays",
			Help:      "Relays currently in the source registry",
		}),

		admittedAddresses: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "admitted_addresses",
			Help:      "Addresses admitted in the current session",
		}),

		verificationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "address_verification_duration_seconds",
			Help:      "Time spent resolving a Lightning address",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~5s
		}),
	}

	registry.MustRegister(
		c.recordsIngested,
		c.admissions,
		c.rejections,
		c.sessionStops,
		c.verifications,
		c.activeSubscriptions,
		c.registeredRelays,
		c.admittedAddresses,
		c.verificationDuration,
	)

	return c
}

// RecordIngest counts one engine outcome.
func (c *Collector) RecordIngest(origin models.Origin, result discovery.Result) {
	c.recordsIngested.WithLabelValues(origin.String(), string(result)).Inc()
}

// RecordAdmission counts an admission; order is the 1-based admission position.
func (c *Collector) RecordAdmission(order int) {
	c.admissions.Inc()
	c.admittedAddresses.Set(float64(order))
}

// RecordRejection counts an address turned away by a full index.
func (c *Collector) RecordRejection() {
	c.rejections.Inc()
}

// RecordSessionStart clears the per-session gauge.
func (c *Collector) RecordSessionStart() {
	c.admittedAddresses.Set(0)
}

// RecordSessionStop counts a session stop.
func (c *Collector) RecordSessionStop(reason models.StopReason) {
	c.sessionStops.WithLabelValues(string(reason)).Inc()
}

// RecordVerification counts a lookup outcome and its duration.
func (c *Collector) RecordVerification(outcome string, elapsed time.Duration) {
	c.verifications.WithLabelValues(outcome).Inc()
	c.verificationDuration.Observe(elapsed.Seconds())
}

// AddSubscriptions moves the open subscription gauge by delta.
func (c *Collector) AddSubscriptions(delta int) {
	c.activeSubscriptions.Add(float64(delta))
}

// SetRegisteredRelays sets the registry size gauge.
func (c *Collector) SetRegisteredRelays(n int) {
	c.registeredRelays.Set(float64(n))
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns an HTTP handler serving the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
