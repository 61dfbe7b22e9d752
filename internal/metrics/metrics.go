// Package metrics provides Prometheus metrics for the risk engine. It
// defines and registers the gauges, counters, and histograms exposed
// via the metrics endpoint for monitoring gate denials, sizing
// outcomes, drawdown, and ruin estimates.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus metric the risk engine exposes.
type Metrics struct {
	GateDenialsTotal   *prometheus.CounterVec // reason -> count
	SizingRequests     prometheus.Counter
	SizingDenials      *prometheus.CounterVec // reason -> count
	KellyFraction      prometheus.Gauge
	DrawdownFraction   prometheus.Gauge
	RiskOfRuin         prometheus.Gauge
	OpenPositions      prometheus.Gauge
	DailyPnL           prometheus.Gauge
	GlobalCooldown     prometheus.Gauge // 0/1
	StopOutsTotal      prometheus.Counter
	RecoveredPositions prometheus.Counter
	SizingLatency      prometheus.Histogram
}

// New creates and registers all metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry, useful for
// isolated collection in tests without touching the global registry.
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		GateDenialsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_gate_denials_total",
			Help: "Total number of entry-gate denials, by reason",
		}, []string{"reason"}),
		SizingRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "risk_sizing_requests_total",
			Help: "Total number of position-size calculations attempted",
		}),
		SizingDenials: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_sizing_denials_total",
			Help: "Total number of sizing-pipeline denials, by reason",
		}, []string{"reason"}),
		KellyFraction: factory.NewGauge(prometheus.GaugeOpts{
			Name: "risk_sizing_kelly_fraction",
			Help: "Most recently computed Kelly fraction after safety scaling, confidence weighting, and the Kelly cap",
		}),
		DrawdownFraction: factory.NewGauge(prometheus.GaugeOpts{
			Name: "risk_drawdown_fraction",
			Help: "Current drawdown as a fraction of peak bankroll",
		}),
		RiskOfRuin: factory.NewGauge(prometheus.GaugeOpts{
			Name: "risk_of_ruin_estimate",
			Help: "Most recently computed risk-of-ruin probability",
		}),
		OpenPositions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "risk_open_positions",
			Help: "Number of currently open positions",
		}),
		DailyPnL: factory.NewGauge(prometheus.GaugeOpts{
			Name: "risk_daily_pnl",
			Help: "Realised profit and loss for the current UTC trading day",
		}),
		GlobalCooldown: factory.NewGauge(prometheus.GaugeOpts{
			Name: "risk_global_cooldown_active",
			Help: "1 if the post-loss global cooldown is currently active, else 0",
		}),
		StopOutsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "risk_stop_outs_total",
			Help: "Total number of positions closed via a stop-loss breach",
		}),
		RecoveredPositions: factory.NewCounter(prometheus.CounterOpts{
			Name: "risk_recovered_positions_total",
			Help: "Total number of positions rebuilt by startup recovery",
		}),
		SizingLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "risk_sizing_duration_seconds",
			Help:    "Duration of calculate_position_size calls in seconds",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),
	}
}

// RecordGateDenial increments the gate-denial counter for a reason.
func (m *Metrics) RecordGateDenial(reason string) {
	m.GateDenialsTotal.WithLabelValues(reason).Inc()
}

// RecordSizingDenial increments the sizing-denial counter for a reason.
func (m *Metrics) RecordSizingDenial(reason string) {
	m.SizingDenials.WithLabelValues(reason).Inc()
}

// SetGlobalCooldown sets the cooldown gauge to 1 or 0.
func (m *Metrics) SetGlobalCooldown(active bool) {
	if active {
		m.GlobalCooldown.Set(1)
		return
	}
	m.GlobalCooldown.Set(0)
}
