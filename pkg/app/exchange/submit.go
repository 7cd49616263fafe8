package exchange

import (
	"fmt"

	"github.com/guildex/guildex/pkg/app/core/ledger"
	"github.com/guildex/guildex/pkg/app/core/market"
	"github.com/guildex/guildex/pkg/app/core/orderbook"
)

// Result describes what Submit did with an order.
type Result struct {
	Order   orderbook.Order  // the submitted order; Volume is what was left after matching
	Resting *orderbook.Order // nil when nothing was queued
	Trades  []Trade
	Filled  int64

	// Unaffordable remainder of a market buy, discarded rather than queued.
	Dropped int64
}

// Submit matches o against its security's book and queues any remainder.
//
// Orders from SystemID skip the halt and the admission check. Seed orders are only
// accepted from SystemID. A zero or negative volume is a no-op.
func (e *Engine) Submit(o orderbook.Order) (*Result, error) {
	var res *Result
	err := e.run("submit", func(out *outbox) error {
		var err error
		res, err = e.submitLocked(o, out)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (e *Engine) submitLocked(o orderbook.Order, out *outbox) (*Result, error) {
	system := o.Owner == orderbook.SystemID
	if e.halted && !system {
		return nil, ErrTradingHalted
	}
	if o.Volume <= 0 {
		return &Result{Order: o}, nil
	}
	if err := validate(o); err != nil {
		return nil, err
	}
	sec, err := e.registry.Get(o.Security)
	if err != nil {
		return nil, err
	}
	if !o.Kind.Priced() {
		o.Price = 0
	} else if _, ok := ledger.Cost(o.Volume, o.Price); !ok {
		return nil, fmt.Errorf("%w: %d x %d overflows", ErrInvalidOrder, o.Volume, o.Price)
	}
	if !system {
		if err := e.admit(o); err != nil {
			return nil, err
		}
	}

	o.ID = 0
	o.CreatedAt = e.now()

	res := &Result{}
	starved, err := e.match(sec, &o, res, out)
	if err != nil {
		return nil, err
	}

	switch {
	case o.Volume == 0:
	case starved && res.Filled == 0:
		return nil, fmt.Errorf("%w: %s cannot afford %s at %d", ErrInsufficientFunds, o.Owner, sec.Ticker, sec.LastPrice())
	case starved:
		res.Dropped = o.Volume
	default:
		o.ID = e.nextID
		if err := sec.Book.Insert(o); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInternal, err)
		}
		e.nextID++
		e.ledger.AddPending(o.Owner, o.ID)
		e.index[o.ID] = sec.ID
		resting := o
		res.Resting = &resting
	}
	res.Order = o

	e.Metrics.ObserveSubmit(o.Side.String(), o.Kind.String())
	out.journal = fmt.Sprintf("submit user=%s sec=%s side=%s kind=%s price=%d filled=%d resting=%d dropped=%d",
		o.Owner, sec.ID, o.Side, o.Kind, o.Price, res.Filled, o.ID, res.Dropped)
	if e.Logger != nil {
		e.Logger.Infow("order_submitted",
			"user", o.Owner, "security", sec.ID, "side", o.Side.String(), "kind", o.Kind.String(),
			"price", o.Price, "filled", res.Filled, "trades", len(res.Trades), "resting_id", o.ID)
	}
	return res, nil
}

func validate(o orderbook.Order) error {
	if o.Owner == "" {
		return fmt.Errorf("%w: missing owner", ErrInvalidOrder)
	}
	if o.Side != orderbook.Buy && o.Side != orderbook.Sell {
		return fmt.Errorf("%w: side %d", ErrInvalidOrder, o.Side)
	}
	switch o.Kind {
	case orderbook.Limit, orderbook.Market:
	case orderbook.Seed:
		if o.Owner != orderbook.SystemID {
			return fmt.Errorf("%w: seed orders are issued by the exchange only", ErrInvalidOrder)
		}
		if o.Side != orderbook.Sell {
			return fmt.Errorf("%w: seed orders sell", ErrInvalidOrder)
		}
	default:
		return fmt.Errorf("%w: kind %d", ErrInvalidOrder, o.Kind)
	}
	if o.Kind.Priced() && o.Price <= 0 {
		return fmt.Errorf("%w: price must be positive", ErrInvalidOrder)
	}
	return nil
}

// admit rejects o when, after netting out the owner's other resting orders, a buy
// limit would need more coins than are free or a sell more shares than are free.
func (e *Engine) admit(o orderbook.Order) error {
	if o.Side == orderbook.Buy {
		if o.Kind != orderbook.Limit {
			return nil // market buys are budgeted per fill
		}
		cost, _ := ledger.Cost(o.Volume, o.Price)
		free := e.ledger.Funds(o.Owner) - e.reservedCoins(o.Owner)
		if free < cost {
			return fmt.Errorf("%w: %s has %d free coins, order needs %d", ErrInsufficientFunds, o.Owner, free, cost)
		}
		return nil
	}

	free := e.ledger.Holdings(o.Owner, o.Security) - e.reservedShares(o.Owner, o.Security)
	if free < o.Volume {
		return fmt.Errorf("%w: %s has %d free shares of %s, order sells %d", ErrInsufficientHoldings, o.Owner, free, o.Security, o.Volume)
	}
	return nil
}

// reservedCoins is what the user's resting buy limits, across all securities, would
// cost if they filled.
func (e *Engine) reservedCoins(user orderbook.UserID) int64 {
	acc, ok := e.ledger.Get(user)
	if !ok {
		return 0
	}
	var total int64
	for id := range acc.Pending {
		o, ok := e.resting(id)
		if !ok || o.Side != orderbook.Buy || o.Kind != orderbook.Limit {
			continue
		}
		cost, _ := ledger.Cost(o.Volume, o.Price)
		total = addCapped(total, cost)
	}
	return total
}

// reservedShares is the volume of sec the user already has resting on the sell side.
func (e *Engine) reservedShares(user orderbook.UserID, sec orderbook.SecurityID) int64 {
	acc, ok := e.ledger.Get(user)
	if !ok {
		return 0
	}
	var total int64
	for id := range acc.Pending {
		o, ok := e.resting(id)
		if ok && o.Side == orderbook.Sell && o.Security == sec {
			total += o.Volume
		}
	}
	return total
}

// budget is how many shares user can pay for at price without touching coins
// reserved by their resting buy limits.
func (e *Engine) budget(user orderbook.UserID, price int64) int64 {
	if user == orderbook.SystemID || price <= 0 {
		return -1
	}
	free := e.ledger.Funds(user) - e.reservedCoins(user)
	if free <= 0 {
		return 0
	}
	return free / price
}

func (e *Engine) resting(id orderbook.OrderID) (orderbook.Order, bool) {
	secID, ok := e.index[id]
	if !ok {
		return orderbook.Order{}, false
	}
	sec, err := e.registry.Get(secID)
	if err != nil {
		return orderbook.Order{}, false
	}
	return sec.Book.Get(id)
}

func addCapped(a, b int64) int64 {
	const maxInt64 = 1<<63 - 1
	if a > maxInt64-b {
		return maxInt64
	}
	return a + b
}

// counterparty finds the next resting order o trades against and the price of that
// trade.
//
// A priced order takes resting market orders first, at its own price, then priced
// orders at exactly its price. A market order sweeps priced levels best first at the
// resting price, then resting market orders at the last traded price.
func counterparty(sec *market.Security, o *orderbook.Order) (orderbook.Order, int64, bool) {
	opp := o.Side.Opposite()
	if o.Kind.Priced() {
		if c, ok := sec.Book.PeekMarket(opp); ok {
			return c, o.Price, true
		}
		if c, ok := sec.Book.PeekLimit(opp, o.Price); ok {
			return c, o.Price, true
		}
		return orderbook.Order{}, 0, false
	}

	if best, ok := sec.Book.BestPrice(opp); ok {
		if c, ok := sec.Book.PeekLimit(opp, best); ok {
			return c, best, true
		}
	}
	if c, ok := sec.Book.PeekMarket(opp); ok {
		if p := sec.LastPrice(); p > 0 {
			return c, p, true
		}
	}
	return orderbook.Order{}, 0, false
}

// match fills o against the book until it is exhausted or nothing can trade.
// starved reports that o is a market buy that ran out of affordable volume.
func (e *Engine) match(sec *market.Security, o *orderbook.Order, res *Result, out *outbox) (starved bool, err error) {
	for o.Volume > 0 {
		c, price, ok := counterparty(sec, o)
		if !ok {
			return false, nil
		}

		volume := min(o.Volume, c.Volume)
		if o.Side == orderbook.Buy && o.Kind == orderbook.Market {
			if b := e.budget(o.Owner, price); b == 0 {
				return true, nil
			} else if b > 0 {
				volume = min(volume, b)
			}
		}
		if c.Side == orderbook.Buy && c.Kind == orderbook.Market {
			b := e.budget(c.Owner, price)
			if b == 0 {
				if err := e.dropLocked(sec, c); err != nil {
					return false, err
				}
				continue
			}
			if b > 0 {
				volume = min(volume, b)
			}
		}
		// volume never exceeds an order whose cost was checked on entry
		if _, ok := ledger.Cost(volume, price); !ok {
			return false, fmt.Errorf("%w: fill of %d at %d overflows", ErrInternal, volume, price)
		}

		if err := e.fill(sec, o, c, volume, price, res, out); err != nil {
			return false, err
		}
	}
	return false, nil
}

func (e *Engine) fill(sec *market.Security, o *orderbook.Order, c orderbook.Order, volume, price int64, res *Result, out *outbox) error {
	buyer, seller := o.Owner, c.Owner
	if o.Side == orderbook.Sell {
		buyer, seller = c.Owner, o.Owner
	}
	if err := e.ledger.Transfer(buyer, seller, sec.ID, volume, price); err != nil {
		return fmt.Errorf("%w: settle against order %d: %v", ErrInternal, c.ID, err)
	}
	removed, err := sec.Book.Fill(c.ID, volume)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if removed {
		e.ledger.RemovePending(c.Owner, c.ID)
		delete(e.index, c.ID)
	}
	o.Volume -= volume

	ts := e.now()
	sec.AppendPrice(price, ts)
	t := newTrade(sec.ID, *o, c, volume, price, ts)
	res.Trades = append(res.Trades, t)
	res.Filled += volume
	out.trade(t, sec)
	e.Metrics.ObserveTrade(volume)
	return nil
}

// dropLocked removes a resting market buy whose owner can no longer pay for a single
// share.
func (e *Engine) dropLocked(sec *market.Security, c orderbook.Order) error {
	if _, err := sec.Book.Cancel(c.ID); err != nil {
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
	e.ledger.RemovePending(c.Owner, c.ID)
	delete(e.index, c.ID)
	e.Metrics.ObserveCancel()
	if e.Logger != nil {
		e.Logger.Warnw("market_order_dropped", "order_id", c.ID, "user", c.Owner, "security", sec.ID, "volume", c.Volume)
	}
	return nil
}

// Cancel removes one of user's resting orders from its book and the user's pending set.
// Cancelling is allowed while trading is halted.
func (e *Engine) Cancel(user orderbook.UserID, id orderbook.OrderID) (orderbook.Order, error) {
	var cancelled orderbook.Order
	err := e.run("cancel", func(out *outbox) error {
		if !e.ledger.HasPending(user, id) {
			return fmt.Errorf("%w: %d is not a resting order of %s", ErrInvalidOrderID, id, user)
		}
		secID, ok := e.index[id]
		if !ok {
			return fmt.Errorf("%w: pending order %d has no book", ErrInternal, id)
		}
		sec, err := e.registry.Get(secID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInternal, err)
		}
		o, err := sec.Book.Cancel(id)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInternal, err)
		}
		e.ledger.RemovePending(user, id)
		delete(e.index, id)
		cancelled = o

		e.Metrics.ObserveCancel()
		out.journal = fmt.Sprintf("cancel user=%s order=%d sec=%s volume=%d", user, id, secID, o.Volume)
		if e.Logger != nil {
			e.Logger.Infow("order_cancelled", "user", user, "order_id", id, "security", secID, "volume", o.Volume)
		}
		return nil
	})
	return cancelled, err
}
