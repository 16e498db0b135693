package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type LendingMetrics struct {
	operations      *prometheus.CounterVec
	rejections      *prometheus.CounterVec
	latencySeconds  *prometheus.HistogramVec
	poolDeposited   *prometheus.GaugeVec
	poolBorrowed    *prometheus.GaugeVec
	oracleFailures  *prometheus.CounterVec
	activePositions *prometheus.GaugeVec
}

var (
	lendingOnce     sync.Once
	lendingRegistry *LendingMetrics
)

func Lending() *LendingMetrics {
	lendingOnce.Do(func() {
		lendingRegistry = &LendingMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "lending_operations_total",
				Help: "Count of completed ledger operations by kind.",
			}, []string{"operation"}),
			rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "lending_rejections_total",
				Help: "Count of rejected ledger operations by kind and reason.",
			}, []string{"operation", "reason"}),
			latencySeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "lending_operation_seconds",
				Help:    "Latency of ledger operations by kind.",
				Buckets: prometheus.DefBuckets,
			}, []string{"operation"}),
			poolDeposited: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "lending_pool_deposited",
				Help: "Asset-side value of the deposit pool per bank.",
			}, []string{"asset"}),
			poolBorrowed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "lending_pool_borrowed",
				Help: "Asset-side value of the outstanding debt per bank.",
			}, []string{"asset"}),
			oracleFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "lending_oracle_failures_total",
				Help: "Number of oracle price fetches rejected by reason.",
			}, []string{"reason"}),
			activePositions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "lending_active_positions",
				Help: "Number of currently active borrow positions per owner.",
			}, []string{"owner"}),
		}
		prometheus.MustRegister(
			lendingRegistry.operations,
			lendingRegistry.rejections,
			lendingRegistry.latencySeconds,
			lendingRegistry.poolDeposited,
			lendingRegistry.poolBorrowed,
			lendingRegistry.oracleFailures,
			lendingRegistry.activePositions,
		)
	})
	return lendingRegistry
}

func (m *LendingMetrics) ObserveOperation(operation string, seconds float64) {
	if m == nil {
		return
	}
	if operation == "" {
		operation = "unknown"
	}
	m.operations.WithLabelValues(operation).Inc()
	m.latencySeconds.WithLabelValues(operation).Observe(seconds)
}

func (m *LendingMetrics) ObserveRejection(operation, reason string) {
	if m == nil {
		return
	}
	if operation == "" {
		operation = "unknown"
	}
	if reason == "" {
		reason = "unknown"
	}
	m.rejections.WithLabelValues(operation, reason).Inc()
}

func (m *LendingMetrics) SetPoolTotals(asset string, deposited, borrowed uint64) {
	if m == nil || asset == "" {
		return
	}
	m.poolDeposited.WithLabelValues(asset).Set(float64(deposited))
	m.poolBorrowed.WithLabelValues(asset).Set(float64(borrowed))
}

func (m *LendingMetrics) ObserveOracleFailure(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.oracleFailures.WithLabelValues(reason).Inc()
}

func (m *LendingMetrics) SetActivePositions(owner string, count int) {
	if m == nil || owner == "" {
		return
	}
	m.activePositions.WithLabelValues(owner).Set(float64(count))
}
