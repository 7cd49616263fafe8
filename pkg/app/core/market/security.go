package market

import (
	"github.com/guildex/guildex/pkg/app/core/orderbook"
	"github.com/shopspring/decimal"
)

// PricePoint is one entry of a security's price history. Time is unix milliseconds.
type PricePoint struct {
	Price int64 `json:"price"`
	Time  int64 `json:"time"`
}

// Security is a listed guild: its ticker, activity-derived true price, traded price
// history and order book.
type Security struct {
	ID        orderbook.SecurityID
	Ticker    string
	ListPrice int64 // price at listing, used until the first history point exists

	// Recent activity samples, oldest first, at most the pricing window long.
	Samples   []int64
	TruePrice int64

	// Append-only; one point per trade and per drift step.
	History []PricePoint

	Book *orderbook.OrderBook
}

// NewSecurity creates a security with an empty book. The true price starts at listPrice.
func NewSecurity(id orderbook.SecurityID, ticker string, listPrice int64) *Security {
	return &Security{
		ID:        id,
		Ticker:    ticker,
		ListPrice: listPrice,
		TruePrice: listPrice,
		Book:      orderbook.NewOrderBook(),
	}
}

// LastPrice is the tail of the price history, or the listing price before any.
func (s *Security) LastPrice() int64 {
	if n := len(s.History); n > 0 {
		return s.History[n-1].Price
	}
	return s.ListPrice
}

// AppendPrice records a traded or drifted price.
func (s *Security) AppendPrice(price, ts int64) {
	s.History = append(s.History, PricePoint{Price: price, Time: ts})
}

// AddSample folds a new activity sample into the window, dropping the oldest beyond
// window, and recomputes the true price as the window mean.
func (s *Security) AddSample(sample int64, window int) {
	if window < 1 {
		window = 1
	}
	s.Samples = append(s.Samples, sample)
	if over := len(s.Samples) - window; over > 0 {
		s.Samples = append([]int64(nil), s.Samples[over:]...)
	}

	sum := decimal.Zero
	for _, v := range s.Samples {
		sum = sum.Add(decimal.NewFromInt(v))
	}
	s.TruePrice = sum.Div(decimal.NewFromInt(int64(len(s.Samples)))).Round(0).IntPart()
}
