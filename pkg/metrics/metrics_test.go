package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveSubmit("buy", "limit")
	m.ObserveReject("halted")
	m.ObserveCancel()
	m.ObserveTrade(3)
	m.ObserveDrift()
	m.SetResting(2)
	m.SetHalted(true)
	m.ObserveSave(nil)
}

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveSubmit("buy", "limit")
	m.ObserveSubmit("buy", "limit")
	m.ObserveTrade(5)
	m.ObserveTrade(2)
	m.SetHalted(true)
	m.ObserveSave(errors.New("disk full"))

	if got := testutil.ToFloat64(m.OrdersSubmitted.WithLabelValues("buy", "limit")); got != 2 {
		t.Errorf("orders_submitted = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.TradedVolume); got != 7 {
		t.Errorf("traded_shares = %v, want 7", got)
	}
	if got := testutil.ToFloat64(m.TradingHalted); got != 1 {
		t.Errorf("trading_halted = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.StateSaves.WithLabelValues("error")); got != 1 {
		t.Errorf("state_saves{error} = %v, want 1", got)
	}
}
