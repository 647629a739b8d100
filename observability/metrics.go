package observability

import (
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SovereignMetrics tracks intent throughput and the event stream of the
// settlement engine.
type SovereignMetrics struct {
	intents     *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	events      *prometheus.CounterVec
	volume      *prometheus.CounterVec
	subscribers prometheus.Gauge
	throttles   *prometheus.CounterVec
	journal     *prometheus.CounterVec
}

var (
	sovereignMetricsOnce sync.Once
	sovereignRegistry    *SovereignMetrics
)

// Sovereign returns the lazily-initialised metrics registry.
func Sovereign() *SovereignMetrics {
	sovereignMetricsOnce.Do(func() {
		sovereignRegistry = &SovereignMetrics{
			intents: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "sov",
				Subsystem: "engine",
				Name:      "intents_total",
				Help:      "Intents handled segmented by intent and outcome category.",
			}, []string{"intent", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "sov",
				Subsystem: "engine",
				Name:      "intent_duration_seconds",
				Help:      "Latency of intent execution including the state commit.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"intent"}),
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "sov",
				Subsystem: "events",
				Name:      "emitted_total",
				Help:      "Committed events segmented by type.",
			}, []string{"type"}),
			volume: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "sov",
				Subsystem: "pool",
				Name:      "base_volume_total",
				Help:      "Base currency traded through pools segmented by sovereign and side.",
			}, []string{"sovereign", "side"}),
			subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "sov",
				Subsystem: "stream",
				Name:      "subscribers",
				Help:      "Open websocket event subscriptions.",
			}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "sov",
				Subsystem: "http",
				Name:      "throttled_total",
				Help:      "Requests rejected by the per-client rate limiter.",
			}, []string{"route"}),
			journal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "sov",
				Subsystem: "journal",
				Name:      "writes_total",
				Help:      "Receipt journal writes segmented by outcome.",
			}, []string{"outcome"}),
		}
		prometheus.MustRegister(
			sovereignRegistry.intents,
			sovereignRegistry.latency,
			sovereignRegistry.events,
			sovereignRegistry.volume,
			sovereignRegistry.subscribers,
			sovereignRegistry.throttles,
			sovereignRegistry.journal,
		)
	})
	return sovereignRegistry
}

// ObserveIntent records one intent. Outcome is "ok" or the error category.
func (m *SovereignMetrics) ObserveIntent(intent, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	intent = normalizeLabel(intent)
	m.intents.WithLabelValues(intent, normalizeLabel(outcome)).Inc()
	m.latency.WithLabelValues(intent).Observe(elapsed.Seconds())
}

// RecordEvent counts a committed event.
func (m *SovereignMetrics) RecordEvent(eventType string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(normalizeLabel(eventType)).Inc()
}

// RecordVolume adds traded base currency for a sovereign.
func (m *SovereignMetrics) RecordVolume(sovereignID, side string, amount *big.Int) {
	if m == nil || amount == nil || amount.Sign() <= 0 {
		return
	}
	m.volume.WithLabelValues(normalizeLabel(sovereignID), normalizeLabel(side)).Add(bigToFloat(amount))
}

// SubscriberOpened and SubscriberClosed track websocket streams.
func (m *SovereignMetrics) SubscriberOpened() {
	if m != nil {
		m.subscribers.Inc()
	}
}

func (m *SovereignMetrics) SubscriberClosed() {
	if m != nil {
		m.subscribers.Dec()
	}
}

// RecordThrottle counts a rate limited request.
func (m *SovereignMetrics) RecordThrottle(route string) {
	if m == nil {
		return
	}
	m.throttles.WithLabelValues(normalizeLabel(route)).Inc()
}

// RecordJournalWrite counts a receipt journal write.
func (m *SovereignMetrics) RecordJournalWrite(ok bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	m.journal.WithLabelValues(outcome).Inc()
}

func normalizeLabel(v string) string {
	trimmed := strings.ToLower(strings.TrimSpace(v))
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}

func bigToFloat(v *big.Int) float64 {
	f, _ := new(big.Float).SetInt(v).Float64()
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return math.MaxFloat64
	}
	return f
}
