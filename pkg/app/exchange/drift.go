package exchange

import (
	"fmt"

	"github.com/guildex/guildex/pkg/app/core/market"
	"github.com/guildex/guildex/pkg/app/core/orderbook"
)

// ApplyActivity folds one activity sample into every listed security's true price and
// drifts its traded price toward it, appending one history point per security.
// Securities absent from activity get an idle sample.
func (e *Engine) ApplyActivity(activity map[orderbook.SecurityID]market.Activity) error {
	return e.run("apply_activity", func(out *outbox) error {
		p := e.cfg.Pricing
		ts := e.now()
		list := e.registry.List()
		for _, sec := range list {
			a := activity[sec.ID]
			sec.AddSample(p.Sample(a), p.Window)
			before := sec.LastPrice()
			sec.AppendPrice(p.Drift(before, sec.TruePrice), ts)
			out.price(sec, "drift", ts)
			e.Metrics.ObserveDrift()

			if e.Logger != nil {
				e.Logger.Infow("price_drifted",
					"security", sec.ID, "ticker", sec.Ticker, "members", a.Members, "messages", a.Messages,
					"authors", a.Authors, "true_price", sec.TruePrice, "from", before, "to", sec.LastPrice())
			}
		}
		if len(list) > 0 {
			out.journal = fmt.Sprintf("drift securities=%d", len(list))
		}
		return nil
	})
}
