package exchange

import (
	"errors"
	"reflect"
	"testing"

	"pgregory.net/rapid"

	"github.com/guildex/guildex/pkg/app/core/orderbook"
)

var propertyUsers = []orderbook.UserID{alice, bob, carol}

var propertySecurities = []orderbook.SecurityID{"g1", "g2"}

func newPropertyEngine(ipoShares int64) *Engine {
	cfg := DefaultConfig()
	cfg.IPOShares = ipoShares
	cfg.Admins = []orderbook.UserID{admin}
	e := NewEngine(cfg)
	for i, id := range propertySecurities {
		if _, err := e.RegisterSecurity(id, string(rune('A'+i))+"X", int64(2+i)); err != nil {
			panic(err)
		}
	}
	return e
}

func drawOrder(t *rapid.T) orderbook.Order {
	o := orderbook.Order{
		Owner:    rapid.SampledFrom(propertyUsers).Draw(t, "owner"),
		Security: rapid.SampledFrom(propertySecurities).Draw(t, "security"),
		Side:     rapid.SampledFrom([]orderbook.Side{orderbook.Buy, orderbook.Sell}).Draw(t, "side"),
		Kind:     rapid.SampledFrom([]orderbook.Kind{orderbook.Limit, orderbook.Market}).Draw(t, "kind"),
		Volume:   rapid.Int64Range(0, 40).Draw(t, "volume"),
	}
	if o.Kind == orderbook.Limit {
		o.Price = rapid.Int64Range(1, 8).Draw(t, "price")
	}
	return o
}

// checkInvariants verifies conservation, non-negative balances and that every
// resting order is indexed consistently in its book, its owner's pending set and the
// engine index.
func checkInvariants(t *rapid.T, e *Engine, totalCoins int64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var coins int64
	for _, u := range propertyUsers {
		coins += e.ledger.Funds(u)
	}
	coins += e.ledger.Balance(orderbook.SystemID)
	if coins != totalCoins {
		t.Fatalf("coins not conserved: %d, want %d", coins, totalCoins)
	}

	for _, acc := range e.ledger.Accounts() {
		if err := acc.Validate(); err != nil {
			t.Fatalf("account %s: %v", acc.ID, err)
		}
	}

	resting := 0
	for _, id := range propertySecurities {
		if n := e.ledger.TotalShares(id); n != 0 {
			t.Fatalf("shares of %s not conserved: %d", id, n)
		}
		sec, _ := e.registry.Get(id)
		for _, o := range sec.Book.Orders() {
			if !e.ledger.HasPending(o.Owner, o.ID) {
				t.Fatalf("order %d on book but not pending for %s", o.ID, o.Owner)
			}
			if e.index[o.ID] != id {
				t.Fatalf("order %d indexed under %s, rests in %s", o.ID, e.index[o.ID], id)
			}
			if o.Volume <= 0 {
				t.Fatalf("order %d rests with volume %d", o.ID, o.Volume)
			}
		}
		resting += sec.Book.Len()
	}
	pending := 0
	for _, acc := range e.ledger.Accounts() {
		pending += len(acc.Pending)
	}
	if pending != resting || len(e.index) != resting {
		t.Fatalf("pending %d / index %d / resting %d diverge", pending, len(e.index), resting)
	}

	for _, u := range propertyUsers {
		if e.ledger.Funds(u) < e.reservedCoins(u) {
			t.Fatalf("%s reserves more coins than it has", u)
		}
		for _, id := range propertySecurities {
			if e.ledger.Holdings(u, id) < e.reservedShares(u, id) {
				t.Fatalf("%s reserves more shares of %s than it has", u, id)
			}
		}
	}
}

func TestPropertyEngineInvariants(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		e := newPropertyEngine(50)
		totalCoins := int64(len(propertyUsers)) * e.cfg.StartingCoins

		steps := rapid.IntRange(1, 60).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			switch rapid.IntRange(0, 9).Draw(t, "op") {
			case 0:
				user := rapid.SampledFrom(propertyUsers).Draw(t, "canceller")
				pending := e.ListPending(user)
				if len(pending) > 0 {
					o := rapid.SampledFrom(pending).Draw(t, "cancelled")
					if _, err := e.Cancel(user, o.ID); err != nil {
						t.Fatalf("cancel own order: %v", err)
					}
				}
			case 1:
				sec := rapid.SampledFrom(propertySecurities).Draw(t, "seeded")
				if _, err := e.Seed(admin, sec, rapid.Int64Range(1, 20).Draw(t, "seedVolume"), rapid.Int64Range(1, 8).Draw(t, "seedPrice")); err != nil {
					t.Fatalf("seed: %v", err)
				}
			default:
				before := e.Snapshot()
				_, err := e.Submit(drawOrder(t))
				if err != nil {
					if errors.Is(err, ErrInternal) {
						t.Fatalf("internal fault: %v", err)
					}
					if !reflect.DeepEqual(before, e.Snapshot()) {
						t.Fatalf("rejected order %v mutated state", err)
					}
				}
			}
			checkInvariants(t, e, totalCoins)
		}
	})
}

// Orders resting at one price fill strictly in arrival order.
func TestPropertyPriceTimePriority(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		e := newPropertyEngine(0)
		sec := propertySecurities[0]
		price := rapid.Int64Range(1, 8).Draw(t, "price")

		volumes := rapid.SliceOfN(rapid.Int64Range(1, 10), 2, 6).Draw(t, "volumes")
		var ids []orderbook.OrderID
		for _, v := range volumes {
			res, err := e.Seed(admin, sec, v, price)
			if err != nil || res.Resting == nil {
				t.Fatalf("seed: %+v %v", res, err)
			}
			ids = append(ids, res.Resting.ID)
		}

		take := rapid.Int64Range(1, 40).Draw(t, "take")
		res, err := e.Submit(orderbook.Order{Owner: alice, Security: sec, Side: orderbook.Buy, Kind: orderbook.Limit, Volume: take, Price: price})
		if err != nil {
			if errors.Is(err, ErrInsufficientFunds) {
				return
			}
			t.Fatalf("submit: %v", err)
		}

		remaining := take
		for i, tr := range res.Trades {
			if tr.SellOrder != ids[i] {
				t.Fatalf("trade %d hit order %d, want %d", i, tr.SellOrder, ids[i])
			}
			if i < len(res.Trades)-1 && tr.Volume != volumes[i] {
				t.Fatalf("order %d partially filled before a later one was touched", ids[i])
			}
			remaining -= tr.Volume
		}
		if res.Order.Volume != remaining {
			t.Fatalf("remaining %d, want %d", res.Order.Volume, remaining)
		}
	})
}
