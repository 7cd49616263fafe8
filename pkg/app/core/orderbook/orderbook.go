package orderbook

import (
	"container/heap"
	"fmt"
	"sort"
)

// OrderBook holds the resting orders of one security.
//
// Priced orders (limit and seed) queue FIFO per price level, one map per side, with a heap
// per side for best-price lookup. Market orders queue FIFO per side with no price.
// Queues store ids only; the single copy of each resting order lives in the orders arena,
// so removing an id from the arena and its queue invalidates every view at once.
//
// OrderBook is not safe for concurrent use; the exchange engine serializes access.
type OrderBook struct {
	bidHeap *maxPriceHeap
	askHeap *minPriceHeap

	bids map[int64][]OrderID // price -> FIFO
	asks map[int64][]OrderID

	marketBids []OrderID
	marketAsks []OrderID

	orders map[OrderID]*Order
}

func NewOrderBook() *OrderBook {
	bidHeap := &maxPriceHeap{}
	askHeap := &minPriceHeap{}
	heap.Init(bidHeap)
	heap.Init(askHeap)

	return &OrderBook{
		bidHeap: bidHeap,
		askHeap: askHeap,
		bids:    make(map[int64][]OrderID),
		asks:    make(map[int64][]OrderID),
		orders:  make(map[OrderID]*Order),
	}
}

func (ob *OrderBook) levels(s Side) map[int64][]OrderID {
	if s == Buy {
		return ob.bids
	}
	return ob.asks
}

func (ob *OrderBook) marketQueue(s Side) *[]OrderID {
	if s == Buy {
		return &ob.marketBids
	}
	return &ob.marketAsks
}

func (ob *OrderBook) pushLevel(s Side, price int64) {
	if s == Buy {
		heap.Push(ob.bidHeap, price)
	} else {
		heap.Push(ob.askHeap, price)
	}
}

func (ob *OrderBook) dropLevel(s Side, price int64) {
	delete(ob.levels(s), price)
	if s == Buy {
		removePrice(ob.bidHeap, *ob.bidHeap, price)
	} else {
		removePrice(ob.askHeap, *ob.askHeap, price)
	}
}

// Insert appends o to the tail of its queue: the price level for limit and seed orders,
// the side's market queue otherwise. o.ID must already be assigned and unused.
func (ob *OrderBook) Insert(o Order) error {
	if o.ID == 0 {
		return fmt.Errorf("insert order without id")
	}
	if _, exists := ob.orders[o.ID]; exists {
		return fmt.Errorf("order %d already resting", o.ID)
	}
	if o.Volume <= 0 {
		return fmt.Errorf("order %d has non-positive volume %d", o.ID, o.Volume)
	}

	if o.Kind.Priced() {
		lv := ob.levels(o.Side)
		if len(lv[o.Price]) == 0 {
			ob.pushLevel(o.Side, o.Price)
		}
		lv[o.Price] = append(lv[o.Price], o.ID)
	} else {
		q := ob.marketQueue(o.Side)
		*q = append(*q, o.ID)
	}

	cp := o
	ob.orders[o.ID] = &cp
	return nil
}

// Get returns a copy of the resting order with the given id.
func (ob *OrderBook) Get(id OrderID) (Order, bool) {
	o, ok := ob.orders[id]
	if !ok {
		return Order{}, false
	}
	return *o, true
}

// PeekLimit returns the oldest priced order on side s at exactly price.
func (ob *OrderBook) PeekLimit(s Side, price int64) (Order, bool) {
	q := ob.levels(s)[price]
	if len(q) == 0 {
		return Order{}, false
	}
	return *ob.orders[q[0]], true
}

// PeekMarket returns the oldest market order on side s.
func (ob *OrderBook) PeekMarket(s Side) (Order, bool) {
	q := *ob.marketQueue(s)
	if len(q) == 0 {
		return Order{}, false
	}
	return *ob.orders[q[0]], true
}

// BestPrice returns the most favourable priced level on side s for a counter-party:
// the highest buy price or the lowest sell price.
func (ob *OrderBook) BestPrice(s Side) (int64, bool) {
	if s == Buy {
		return ob.bidHeap.peek()
	}
	return ob.askHeap.peek()
}

// Fill consumes volume from the resting order id. A complete fill removes the order from
// its queue and the arena and reports removed=true; a partial fill shrinks it in place,
// keeping its queue position.
func (ob *OrderBook) Fill(id OrderID, volume int64) (removed bool, err error) {
	o, ok := ob.orders[id]
	if !ok {
		return false, fmt.Errorf("%w: %d", ErrInvalidOrderID, id)
	}
	if volume <= 0 || volume > o.Volume {
		return false, fmt.Errorf("fill %d of order %d with %d remaining", volume, id, o.Volume)
	}
	if volume < o.Volume {
		o.Volume -= volume
		return false, nil
	}
	ob.remove(o)
	return true, nil
}

// Cancel removes the resting order id from the book and returns it.
func (ob *OrderBook) Cancel(id OrderID) (Order, error) {
	o, ok := ob.orders[id]
	if !ok {
		return Order{}, fmt.Errorf("%w: %d", ErrInvalidOrderID, id)
	}
	ob.remove(o)
	return *o, nil
}

func (ob *OrderBook) remove(o *Order) {
	if o.Kind.Priced() {
		lv := ob.levels(o.Side)
		lv[o.Price] = without(lv[o.Price], o.ID)
		if len(lv[o.Price]) == 0 {
			ob.dropLevel(o.Side, o.Price)
		}
	} else {
		q := ob.marketQueue(o.Side)
		*q = without(*q, o.ID)
	}
	delete(ob.orders, o.ID)
}

// without removes id from q preserving order. The head is the common case.
func without(q []OrderID, id OrderID) []OrderID {
	if len(q) > 0 && q[0] == id {
		return q[1:]
	}
	for i, v := range q {
		if v == id {
			return append(q[:i:i], q[i+1:]...)
		}
	}
	return q
}

// Levels returns the priced levels of side s, best price first.
func (ob *OrderBook) Levels(s Side) []PriceLevel {
	var levels []PriceLevel
	for price, ids := range ob.levels(s) {
		if len(ids) == 0 {
			continue
		}
		var total int64
		for _, id := range ids {
			total += ob.orders[id].Volume
		}
		levels = append(levels, PriceLevel{Price: price, Volume: total, Orders: len(ids)})
	}

	sort.Slice(levels, func(i, j int) bool {
		if s == Buy {
			return levels[i].Price > levels[j].Price
		}
		return levels[i].Price < levels[j].Price
	})
	return levels
}

// MarketDepth returns the total volume and count of market orders queued on side s.
func (ob *OrderBook) MarketDepth(s Side) (volume int64, orders int) {
	for _, id := range *ob.marketQueue(s) {
		volume += ob.orders[id].Volume
	}
	return volume, len(*ob.marketQueue(s))
}

// Orders returns copies of every resting order in id order. Ids are issued monotonically,
// so re-inserting the result in order rebuilds identical queues.
func (ob *OrderBook) Orders() []Order {
	out := make([]Order, 0, len(ob.orders))
	for _, o := range ob.orders {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of resting orders.
func (ob *OrderBook) Len() int { return len(ob.orders) }
