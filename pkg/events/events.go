// Package events carries trade and price notifications out of the exchange engine to
// live subscribers (websocket clients, Kafka consumers).
package events

// TradeEvent is emitted once per fill.
type TradeEvent struct {
	Type     string `json:"type"` // always "trade"
	ID       string `json:"id"`
	Security string `json:"security"`
	Ticker   string `json:"ticker"`
	Price    int64  `json:"price"`
	Volume   int64  `json:"volume"`
	Buyer    string `json:"buyer"`
	Seller   string `json:"seller"`
	Time     int64  `json:"time"` // unix milliseconds
}

// PriceEvent is emitted when a security's current price changes.
type PriceEvent struct {
	Type      string `json:"type"` // always "price"
	Security  string `json:"security"`
	Ticker    string `json:"ticker"`
	Price     int64  `json:"price"`
	TruePrice int64  `json:"truePrice"`
	Source    string `json:"source"` // "trade" or "drift"
	Time      int64  `json:"time"`
}

// Publisher receives events after the engine has released its lock. Implementations
// must not block for long.
type Publisher interface {
	PublishTrade(TradeEvent)
	PublishPrice(PriceEvent)
}

// Nop discards everything.
type Nop struct{}

func (Nop) PublishTrade(TradeEvent) {}
func (Nop) PublishPrice(PriceEvent) {}

// Fanout forwards every event to each publisher in turn.
type Fanout []Publisher

func (f Fanout) PublishTrade(ev TradeEvent) {
	for _, p := range f {
		p.PublishTrade(ev)
	}
}

func (f Fanout) PublishPrice(ev PriceEvent) {
	for _, p := range f {
		p.PublishPrice(ev)
	}
}

var (
	_ Publisher = Nop{}
	_ Publisher = Fanout(nil)
)
