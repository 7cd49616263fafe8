// Package exchange is the guild stock exchange: one engine owning the ledger, the
// security registry and every order book, serialized behind a single mutex.
package exchange

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/guildex/guildex/pkg/app/core/ledger"
	"github.com/guildex/guildex/pkg/app/core/market"
	"github.com/guildex/guildex/pkg/app/core/orderbook"
	"github.com/guildex/guildex/pkg/events"
	"github.com/guildex/guildex/pkg/metrics"
	"github.com/guildex/guildex/pkg/util"
)

// Store persists the complete engine state. Commit must apply the state and the new
// trades atomically.
type Store interface {
	Commit(st *State, trades []Trade) error
	LoadState() (*State, error) // nil, nil when nothing was saved yet
}

// WAL receives one human-readable line per mutating operation.
type WAL interface {
	Append(line string)
}

type Config struct {
	StartingCoins int64 // granted to every new account
	IPOShares     int64 // seeded at the listing price on registration; 0 disables
	Pricing       market.Pricing
	Admins        []orderbook.UserID
}

func DefaultConfig() Config {
	return Config{
		StartingCoins: 1000,
		IPOShares:     1000,
		Pricing:       market.DefaultPricing(),
	}
}

// Engine is safe for concurrent use. Every operation runs to completion under one lock;
// events are published after the lock is released.
//
// The exported fields are optional collaborators and must be set before first use.
type Engine struct {
	mu sync.Mutex

	cfg      Config
	admins   map[orderbook.UserID]struct{}
	ledger   *ledger.Ledger
	registry *market.Registry

	// resting order id -> security whose book holds it
	index  map[orderbook.OrderID]orderbook.SecurityID
	nextID orderbook.OrderID
	halted bool

	Logger    *zap.SugaredLogger
	Store     Store
	WAL       WAL
	Publisher events.Publisher
	Metrics   *metrics.Metrics
	Clock     util.Clock
}

func NewEngine(cfg Config) *Engine {
	admins := make(map[orderbook.UserID]struct{}, len(cfg.Admins))
	for _, id := range cfg.Admins {
		admins[id] = struct{}{}
	}
	if cfg.Pricing.Window < 1 {
		cfg.Pricing.Window = 1
	}
	return &Engine{
		cfg:      cfg,
		admins:   admins,
		ledger:   ledger.New(cfg.StartingCoins),
		registry: market.NewRegistry(),
		index:    make(map[orderbook.OrderID]orderbook.SecurityID),
		nextID:   1,
		Clock:    util.RealClock{},
	}
}

// outbox collects what a locked operation produced: the journal line that marks the
// state dirty, the trades to persist and the events to publish once unlocked.
type outbox struct {
	journal string
	trades  []Trade
	tickers map[orderbook.SecurityID]string
	prices  []events.PriceEvent
}

func (o *outbox) trade(t Trade, sec *market.Security) {
	o.trades = append(o.trades, t)
	if o.tickers == nil {
		o.tickers = make(map[orderbook.SecurityID]string)
	}
	o.tickers[t.Security] = sec.Ticker
	o.price(sec, "trade", t.Time)
}

func (o *outbox) price(sec *market.Security, source string, ts int64) {
	o.prices = append(o.prices, events.PriceEvent{
		Type:      "price",
		Security:  string(sec.ID),
		Ticker:    sec.Ticker,
		Price:     sec.LastPrice(),
		TruePrice: sec.TruePrice,
		Source:    source,
		Time:      ts,
	})
}

// run executes fn inside the exclusive region, commits when fn dirtied the state, and
// publishes the resulting events after unlocking.
func (e *Engine) run(op string, fn func(out *outbox) error) error {
	var out outbox

	e.mu.Lock()
	err := fn(&out)
	switch {
	case err != nil && errors.Is(err, ErrInternal):
		if e.Logger != nil {
			e.Logger.Errorw("engine_fault", "op", op, "err", err)
		}
		e.rollbackLocked()
		out = outbox{}
	case err == nil && out.journal != "":
		e.commitLocked(&out)
	}
	e.mu.Unlock()

	if err != nil {
		e.Metrics.ObserveReject(reason(err))
		return err
	}
	e.publish(&out)
	return nil
}

func (e *Engine) commitLocked(out *outbox) {
	if e.WAL != nil {
		e.WAL.Append(out.journal)
	}
	e.Metrics.SetResting(len(e.index))
	if e.Store == nil {
		return
	}
	err := e.Store.Commit(e.snapshotLocked(), out.trades)
	e.Metrics.ObserveSave(err)
	if err != nil && e.Logger != nil {
		e.Logger.Errorw("state_save_failed", "err", err, "journal", out.journal)
	}
}

func (e *Engine) publish(out *outbox) {
	if e.Publisher == nil {
		return
	}
	for _, t := range out.trades {
		e.Publisher.PublishTrade(t.event(out.tickers[t.Security]))
	}
	for _, p := range out.prices {
		e.Publisher.PublishPrice(p)
	}
}

func (e *Engine) now() int64 { return e.Clock.Now().UnixMilli() }

// IsAdmin reports whether user may halt, resume, seed and grant coins.
func (e *Engine) IsAdmin(user orderbook.UserID) bool {
	_, ok := e.admins[user]
	return ok
}

func (e *Engine) Halted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.halted
}
