package exchange

import (
	"github.com/google/uuid"

	"github.com/guildex/guildex/pkg/app/core/orderbook"
	"github.com/guildex/guildex/pkg/events"
)

// Trade is one executed fill between a buyer and a seller.
type Trade struct {
	ID        string               `json:"id"`
	Security  orderbook.SecurityID `json:"security"`
	Price     int64                `json:"price"`
	Volume    int64                `json:"volume"`
	Buyer     orderbook.UserID     `json:"buyer"`
	Seller    orderbook.UserID     `json:"seller"`
	BuyOrder  orderbook.OrderID    `json:"buyOrder,omitempty"` // 0 when the buyer was the incoming order
	SellOrder orderbook.OrderID    `json:"sellOrder,omitempty"`
	Taker     orderbook.Side       `json:"taker"`
	Time      int64                `json:"time"`
}

func newTrade(sec orderbook.SecurityID, taker, maker orderbook.Order, volume, price, ts int64) Trade {
	t := Trade{
		ID:       uuid.NewString(),
		Security: sec,
		Price:    price,
		Volume:   volume,
		Taker:    taker.Side,
		Time:     ts,
	}
	if taker.Side == orderbook.Buy {
		t.Buyer, t.Seller = taker.Owner, maker.Owner
		t.SellOrder = maker.ID
	} else {
		t.Buyer, t.Seller = maker.Owner, taker.Owner
		t.BuyOrder = maker.ID
	}
	return t
}

func (t Trade) event(ticker string) events.TradeEvent {
	return events.TradeEvent{
		Type:     "trade",
		ID:       t.ID,
		Security: string(t.Security),
		Ticker:   ticker,
		Price:    t.Price,
		Volume:   t.Volume,
		Buyer:    string(t.Buyer),
		Seller:   string(t.Seller),
		Time:     t.Time,
	}
}
