package observability

import (
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	consensusMetricsOnce sync.Once
	consensusRegistry    *consensusMetrics

	chainMetricsOnce sync.Once
	chainRegistry    *chainMetrics
)

// ModuleMetrics returns the lazily-initialised module metrics registry used to
// record RPC module activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "dytallix",
				Subsystem: "module",
				Name:      "requests_total",
				Help:      "Total JSON-RPC module requests segmented by module and method.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "dytallix",
				Subsystem: "module",
				Name:      "errors_total",
				Help:      "Total JSON-RPC module errors segmented by module, method, and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "dytallix",
				Subsystem: "module",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC module handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "dytallix",
				Subsystem: "module",
				Name:      "throttles_total",
				Help:      "Count of module requests rejected due to throttling policies.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of a module request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied module and
// reason. Reasons should be stable strings such as "rate_limit" or
// "quota_exceeded" so dashboards and alerts remain consistent.
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(module, reason).Inc()
}

type consensusMetrics struct {
	blockInterval prometheus.Gauge
}

// Consensus exposes the metrics registry for consensus level instrumentation.
func Consensus() *consensusMetrics {
	consensusMetricsOnce.Do(func() {
		consensusRegistry = &consensusMetrics{
			blockInterval: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "dytallix",
				Subsystem: "consensus",
				Name:      "block_interval_seconds",
				Help:      "Interval in seconds between the timestamps of consecutive committed blocks.",
			}),
		}
		prometheus.MustRegister(consensusRegistry.blockInterval)
	})
	return consensusRegistry
}

// RecordBlockInterval updates the block interval gauge with the supplied duration.
func (m *consensusMetrics) RecordBlockInterval(interval time.Duration) {
	if m == nil {
		return
	}
	seconds := interval.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.blockInterval.Set(seconds)
}

// chainMetrics covers the block-execution counters SPEC_FULL.md §2 names
// directly: gas used per block, emission minted per pool, mempool size, and
// governance proposal tallies.
type chainMetrics struct {
	blockGasUsed    prometheus.Gauge
	emissionMinted  *prometheus.CounterVec
	mempoolSize     prometheus.Gauge
	proposalTallies *prometheus.CounterVec
}

// Chain exposes the metrics registry for block-execution instrumentation.
func Chain() *chainMetrics {
	chainMetricsOnce.Do(func() {
		chainRegistry = &chainMetrics{
			blockGasUsed: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "dytallix",
				Subsystem: "executor",
				Name:      "block_gas_used",
				Help:      "Gas consumed by the most recently committed block.",
			}),
			emissionMinted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "dytallix",
				Subsystem: "emission",
				Name:      "minted_total",
				Help:      "Cumulative DRT minted, segmented by emission pool.",
			}, []string{"pool"}),
			mempoolSize: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "dytallix",
				Subsystem: "mempool",
				Name:      "size",
				Help:      "Current number of transactions pending in the mempool.",
			}),
			proposalTallies: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "dytallix",
				Subsystem: "governance",
				Name:      "proposal_tallies_total",
				Help:      "Count of governance proposals tallied, segmented by outcome.",
			}, []string{"outcome"}),
		}
		prometheus.MustRegister(
			chainRegistry.blockGasUsed,
			chainRegistry.emissionMinted,
			chainRegistry.mempoolSize,
			chainRegistry.proposalTallies,
		)
	})
	return chainRegistry
}

// RecordBlockGasUsed sets the block-gas-used gauge to used.
func (m *chainMetrics) RecordBlockGasUsed(used uint64) {
	if m == nil {
		return
	}
	m.blockGasUsed.Set(float64(used))
}

// RecordEmission adds amount to the cumulative minted counter for pool.
func (m *chainMetrics) RecordEmission(pool string, amount *big.Int) {
	if m == nil || amount == nil || amount.Sign() <= 0 {
		return
	}
	f, _ := new(big.Float).SetInt(amount).Float64()
	m.emissionMinted.WithLabelValues(pool).Add(f)
}

// SetMempoolSize sets the mempool-size gauge to n.
func (m *chainMetrics) SetMempoolSize(n int) {
	if m == nil {
		return
	}
	m.mempoolSize.Set(float64(n))
}

// RecordProposalTally increments the tally counter for the given outcome
// (e.g. "passed", "rejected").
func (m *chainMetrics) RecordProposalTally(outcome string) {
	if m == nil {
		return
	}
	if outcome = strings.TrimSpace(outcome); outcome == "" {
		outcome = "unknown"
	}
	m.proposalTallies.WithLabelValues(outcome).Inc()
}
