package command

import (
	"fmt"
	"strings"

	"github.com/guildex/guildex/pkg/app/core/orderbook"
	"github.com/guildex/guildex/pkg/app/exchange"
)

func tickerOf(e *exchange.Engine, id orderbook.SecurityID) string {
	if info, err := e.Security(id); err == nil {
		return info.Ticker
	}
	return string(id)
}

func priceLabel(o orderbook.Order) string {
	if o.Kind == orderbook.Market {
		return "market"
	}
	return fmt.Sprintf("@%d", o.Price)
}

func renderResult(ticker string, submitted orderbook.Order, res *exchange.Result) string {
	var b strings.Builder
	if res.Filled > 0 {
		var coins int64
		for _, t := range res.Trades {
			coins += t.Price * t.Volume
		}
		verb := "Bought"
		if submitted.Side == orderbook.Sell {
			verb = "Sold"
		}
		fmt.Fprintf(&b, "%s %d %s for %d coins.", verb, res.Filled, ticker, coins)
	}
	if res.Resting != nil {
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, "Order #%d queued: %s %d %s %s.", res.Resting.ID, res.Resting.Side, res.Resting.Volume, ticker, priceLabel(*res.Resting))
	}
	if res.Dropped > 0 {
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, "%d shares dropped, you ran out of coins.", res.Dropped)
	}
	if b.Len() == 0 {
		return "Nothing to do."
	}
	return b.String()
}

func renderOrders(e *exchange.Engine, orders []orderbook.Order) string {
	if len(orders) == 0 {
		return "You have no open orders."
	}
	var b strings.Builder
	b.WriteString("Open orders:")
	for _, o := range orders {
		fmt.Fprintf(&b, "\n  #%d %s %d %s %s", o.ID, o.Side, o.Volume, tickerOf(e, o.Security), priceLabel(o))
	}
	return b.String()
}

func renderPortfolio(p exchange.Portfolio) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Coins: %d (%d reserved by open buys)", p.Coins, p.Reserved)
	for _, pos := range p.Positions {
		fmt.Fprintf(&b, "\n  %s: %d shares @%d = %d", pos.Ticker, pos.Shares, pos.Price, pos.Value)
	}
	if n := len(p.Pending); n > 0 {
		fmt.Fprintf(&b, "\nOpen orders: %d", n)
	}
	fmt.Fprintf(&b, "\nNet worth: %d", p.NetWorth)
	return b.String()
}

func renderList(secs []exchange.SecurityInfo) string {
	if len(secs) == 0 {
		return "No guilds are listed yet."
	}
	var b strings.Builder
	b.WriteString("Listed guilds:")
	for _, s := range secs {
		fmt.Fprintf(&b, "\n  %-8s %d", s.Ticker, s.Price)
	}
	return b.String()
}

func renderBook(v exchange.BookView) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s last %d", v.Ticker, v.LastPrice)
	side := func(title string, levels []orderbook.PriceLevel) {
		fmt.Fprintf(&b, "\n%s:", title)
		if len(levels) == 0 {
			b.WriteString(" none")
		}
		for _, l := range levels {
			fmt.Fprintf(&b, "\n  %d x %d (%d orders)", l.Volume, l.Price, l.Orders)
		}
	}
	side("Asks", v.Asks)
	side("Bids", v.Bids)
	if v.MarketBuys > 0 || v.MarketSells > 0 {
		fmt.Fprintf(&b, "\nMarket: %d to buy, %d to sell", v.MarketBuys, v.MarketSells)
	}
	return b.String()
}
