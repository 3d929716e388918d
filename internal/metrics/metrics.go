package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Loyalty groups the counters emitted by the reward engine.
type Loyalty struct {
	cascadeTasks     *prometheus.CounterVec
	globalNumbers    *prometheus.CounterVec
	rewardPoints     *prometheus.CounterVec
	qrRedemptions    *prometheus.CounterVec
	cascadeDurations prometheus.Histogram
}

var (
	loyaltyOnce     sync.Once
	loyaltyRegistry *Loyalty
)

// Default returns the process-wide metrics, registering them on first use.
func Default() *Loyalty {
	loyaltyOnce.Do(func() {
		loyaltyRegistry = &Loyalty{
			cascadeTasks: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "loyalty_cascade_tasks_total",
				Help: "Cascade tasks processed by kind and outcome.",
			}, []string{"kind", "outcome"}),
			globalNumbers: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "loyalty_global_numbers_allocated_total",
				Help: "Global Numbers allocated by source.",
			}, []string{"source"}),
			rewardPoints: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "loyalty_reward_points_paid_total",
				Help: "Reward points credited to income wallets by reward kind.",
			}, []string{"kind"}),
			qrRedemptions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "loyalty_qr_redemptions_total",
				Help: "QR transfer redemption attempts by outcome.",
			}, []string{"outcome"}),
			cascadeDurations: prometheus.NewHistogram(prometheus.HistogramOpts{
				Name:    "loyalty_cascade_duration_seconds",
				Help:    "Time spent draining one cascade.",
				Buckets: prometheus.DefBuckets,
			}),
		}
		prometheus.MustRegister(
			loyaltyRegistry.cascadeTasks,
			loyaltyRegistry.globalNumbers,
			loyaltyRegistry.rewardPoints,
			loyaltyRegistry.qrRedemptions,
			loyaltyRegistry.cascadeDurations,
		)
	})
	return loyaltyRegistry
}

func (m *Loyalty) ObserveTask(kind, outcome string) {
	if m == nil {
		return
	}
	m.cascadeTasks.WithLabelValues(kind, outcome).Inc()
}

func (m *Loyalty) ObserveGlobalNumber(source string) {
	if m == nil {
		return
	}
	m.globalNumbers.WithLabelValues(source).Inc()
}

func (m *Loyalty) ObserveRewardPoints(kind string, points float64) {
	if m == nil || points <= 0 {
		return
	}
	m.rewardPoints.WithLabelValues(kind).Add(points)
}

func (m *Loyalty) ObserveQRRedemption(outcome string) {
	if m == nil {
		return
	}
	m.qrRedemptions.WithLabelValues(outcome).Inc()
}

func (m *Loyalty) ObserveCascadeSeconds(seconds float64) {
	if m == nil {
		return
	}
	m.cascadeDurations.Observe(seconds)
}
