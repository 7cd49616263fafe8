package events

import "testing"

type recorder struct {
	trades []TradeEvent
	prices []PriceEvent
}

func (r *recorder) PublishTrade(ev TradeEvent) { r.trades = append(r.trades, ev) }
func (r *recorder) PublishPrice(ev PriceEvent) { r.prices = append(r.prices, ev) }

func TestFanoutDeliversToEveryPublisher(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	f := Fanout{a, Nop{}, b}

	f.PublishTrade(TradeEvent{ID: "t1", Price: 3, Volume: 2})
	f.PublishPrice(PriceEvent{Security: "g1", Price: 3})

	for i, r := range []*recorder{a, b} {
		if len(r.trades) != 1 || r.trades[0].ID != "t1" {
			t.Errorf("publisher %d trades = %+v", i, r.trades)
		}
		if len(r.prices) != 1 || r.prices[0].Security != "g1" {
			t.Errorf("publisher %d prices = %+v", i, r.prices)
		}
	}
}
