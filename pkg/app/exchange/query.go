package exchange

import (
	"sort"

	"github.com/guildex/guildex/pkg/app/core/ledger"
	"github.com/guildex/guildex/pkg/app/core/market"
	"github.com/guildex/guildex/pkg/app/core/orderbook"
)

type SecurityInfo struct {
	ID        orderbook.SecurityID `json:"id"`
	Ticker    string               `json:"ticker"`
	Price     int64                `json:"price"`
	TruePrice int64                `json:"truePrice"`
	ListPrice int64                `json:"listPrice"`
	Resting   int                  `json:"resting"`
}

func infoOf(sec *market.Security) SecurityInfo {
	return SecurityInfo{
		ID:        sec.ID,
		Ticker:    sec.Ticker,
		Price:     sec.LastPrice(),
		TruePrice: sec.TruePrice,
		ListPrice: sec.ListPrice,
		Resting:   sec.Book.Len(),
	}
}

// Position is one holding valued at the security's current price.
type Position struct {
	Security orderbook.SecurityID `json:"security"`
	Ticker   string               `json:"ticker"`
	Shares   int64                `json:"shares"`
	Price    int64                `json:"price"`
	Value    int64                `json:"value"`
}

type Portfolio struct {
	User      orderbook.UserID  `json:"user"`
	Coins     int64             `json:"coins"`
	Reserved  int64             `json:"reserved"` // held back by resting buy limits
	Positions []Position        `json:"positions"`
	Pending   []orderbook.Order `json:"pending"`
	NetWorth  int64             `json:"netWorth"`
}

// BookView is a read-only snapshot of one security's order book.
type BookView struct {
	Security     orderbook.SecurityID   `json:"security"`
	Ticker       string                 `json:"ticker"`
	Bids         []orderbook.PriceLevel `json:"bids"`
	Asks         []orderbook.PriceLevel `json:"asks"`
	MarketBuys   int64                  `json:"marketBuys"`
	MarketSells  int64                  `json:"marketSells"`
	LastPrice    int64                  `json:"lastPrice"`
	TruePrice    int64                  `json:"truePrice"`
	RestingCount int                    `json:"restingCount"`
}

func (e *Engine) Balance(user orderbook.UserID) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Funds(user)
}

func (e *Engine) Holdings(user orderbook.UserID, sec orderbook.SecurityID) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Holdings(user, sec)
}

// ListPending returns the user's resting orders in id order.
func (e *Engine) ListPending(user orderbook.UserID) []orderbook.Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pendingLocked(user)
}

func (e *Engine) pendingLocked(user orderbook.UserID) []orderbook.Order {
	acc, ok := e.ledger.Get(user)
	if !ok {
		return nil
	}
	var out []orderbook.Order
	for _, id := range acc.PendingIDs() {
		if o, ok := e.resting(id); ok {
			out = append(out, o)
		}
	}
	return out
}

func (e *Engine) Portfolio(user orderbook.UserID) Portfolio {
	e.mu.Lock()
	defer e.mu.Unlock()

	p := Portfolio{
		User:     user,
		Coins:    e.ledger.Funds(user),
		Reserved: e.reservedCoins(user),
		Pending:  e.pendingLocked(user),
	}
	p.NetWorth = p.Coins
	if acc, ok := e.ledger.Get(user); ok {
		for secID, shares := range acc.Holdings {
			pos := Position{Security: secID, Shares: shares}
			if sec, err := e.registry.Get(secID); err == nil {
				pos.Ticker = sec.Ticker
				pos.Price = sec.LastPrice()
				pos.Value, _ = ledger.Cost(shares, pos.Price)
			}
			p.NetWorth = addCapped(p.NetWorth, pos.Value)
			p.Positions = append(p.Positions, pos)
		}
	}
	sort.Slice(p.Positions, func(i, j int) bool { return p.Positions[i].Ticker < p.Positions[j].Ticker })
	return p
}

// Securities lists every security ordered by ticker.
func (e *Engine) Securities() []SecurityInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	list := e.registry.List()
	out := make([]SecurityInfo, 0, len(list))
	for _, sec := range list {
		out = append(out, infoOf(sec))
	}
	return out
}

// Lookup resolves a ticker in any case.
func (e *Engine) Lookup(ticker string) (SecurityInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	sec, err := e.registry.Lookup(ticker)
	if err != nil {
		return SecurityInfo{}, err
	}
	return infoOf(sec), nil
}

func (e *Engine) Security(id orderbook.SecurityID) (SecurityInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	sec, err := e.registry.Get(id)
	if err != nil {
		return SecurityInfo{}, err
	}
	return infoOf(sec), nil
}

func (e *Engine) Book(id orderbook.SecurityID) (BookView, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	sec, err := e.registry.Get(id)
	if err != nil {
		return BookView{}, err
	}
	v := BookView{
		Security:     sec.ID,
		Ticker:       sec.Ticker,
		Bids:         sec.Book.Levels(orderbook.Buy),
		Asks:         sec.Book.Levels(orderbook.Sell),
		LastPrice:    sec.LastPrice(),
		TruePrice:    sec.TruePrice,
		RestingCount: sec.Book.Len(),
	}
	v.MarketBuys, _ = sec.Book.MarketDepth(orderbook.Buy)
	v.MarketSells, _ = sec.Book.MarketDepth(orderbook.Sell)
	return v, nil
}

// History returns a copy of the security's price history, oldest first.
func (e *Engine) History(id orderbook.SecurityID) ([]market.PricePoint, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	sec, err := e.registry.Get(id)
	if err != nil {
		return nil, err
	}
	return append([]market.PricePoint(nil), sec.History...), nil
}
