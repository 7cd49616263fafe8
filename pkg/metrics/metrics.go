// Package metrics exposes the exchange engine's Prometheus instruments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "guildex"

// Metrics groups the engine counters and gauges. A nil *Metrics is valid and records
// nothing, so callers never need to check.
type Metrics struct {
	OrdersSubmitted *prometheus.CounterVec // by side, kind
	OrdersRejected  *prometheus.CounterVec // by reason
	OrdersCancelled prometheus.Counter
	OrdersResting   prometheus.Gauge

	TradesTotal  prometheus.Counter
	TradedVolume prometheus.Counter
	PriceUpdates *prometheus.CounterVec // by source

	TradingHalted prometheus.Gauge
	StateSaves    *prometheus.CounterVec // by result
}

// New creates the instruments and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OrdersSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_submitted_total",
			Help:      "Orders accepted for matching",
		}, []string{"side", "kind"}),
		OrdersRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_rejected_total",
			Help:      "Orders rejected before matching",
		}, []string{"reason"}),
		OrdersCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_cancelled_total",
			Help:      "Resting orders removed by cancel or dropped as unfunded",
		}),
		OrdersResting: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "orders_resting",
			Help:      "Orders currently resting across all books",
		}),
		TradesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_total",
			Help:      "Executed fills",
		}),
		TradedVolume: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "traded_shares_total",
			Help:      "Shares moved by executed fills",
		}),
		PriceUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "price_updates_total",
			Help:      "Price history appends",
		}, []string{"source"}),
		TradingHalted: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "trading_halted",
			Help:      "1 while trading is administratively halted",
		}),
		StateSaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_saves_total",
			Help:      "Engine state persistence attempts",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.OrdersSubmitted, m.OrdersRejected, m.OrdersCancelled, m.OrdersResting,
		m.TradesTotal, m.TradedVolume, m.PriceUpdates, m.TradingHalted, m.StateSaves,
	)
	return m
}

func (m *Metrics) ObserveSubmit(side, kind string) {
	if m == nil {
		return
	}
	m.OrdersSubmitted.WithLabelValues(side, kind).Inc()
}

func (m *Metrics) ObserveReject(reason string) {
	if m == nil {
		return
	}
	m.OrdersRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveCancel() {
	if m == nil {
		return
	}
	m.OrdersCancelled.Inc()
}

func (m *Metrics) ObserveTrade(volume int64) {
	if m == nil {
		return
	}
	m.TradesTotal.Inc()
	m.TradedVolume.Add(float64(volume))
	m.PriceUpdates.WithLabelValues("trade").Inc()
}

func (m *Metrics) ObserveDrift() {
	if m == nil {
		return
	}
	m.PriceUpdates.WithLabelValues("drift").Inc()
}

func (m *Metrics) SetResting(n int) {
	if m == nil {
		return
	}
	m.OrdersResting.Set(float64(n))
}

func (m *Metrics) SetHalted(halted bool) {
	if m == nil {
		return
	}
	if halted {
		m.TradingHalted.Set(1)
	} else {
		m.TradingHalted.Set(0)
	}
}

func (m *Metrics) ObserveSave(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.StateSaves.WithLabelValues("error").Inc()
		return
	}
	m.StateSaves.WithLabelValues("ok").Inc()
}
