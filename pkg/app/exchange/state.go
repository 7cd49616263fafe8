package exchange

import (
	"fmt"

	"github.com/guildex/guildex/pkg/app/core/ledger"
	"github.com/guildex/guildex/pkg/app/core/market"
	"github.com/guildex/guildex/pkg/app/core/orderbook"
)

// State is the complete persisted engine state. Restoring it reproduces every balance,
// holding, resting order id and queue position.
type State struct {
	NextOrderID orderbook.OrderID `json:"nextOrderId"`
	Halted      bool              `json:"halted"`
	Accounts    []*ledger.Account `json:"accounts"`
	Securities  []SecurityState   `json:"securities"`
}

type SecurityState struct {
	ID        orderbook.SecurityID `json:"id"`
	Ticker    string               `json:"ticker"`
	ListPrice int64                `json:"listPrice"`
	Samples   []int64              `json:"samples"`
	TruePrice int64                `json:"truePrice"`
	History   []market.PricePoint  `json:"history"`
	Orders    []orderbook.Order    `json:"orders"` // ascending id
}

// Snapshot returns a copy of the current state.
func (e *Engine) Snapshot() *State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() *State {
	st := &State{NextOrderID: e.nextID, Halted: e.halted}
	for _, acc := range e.ledger.Accounts() {
		cp := &ledger.Account{ID: acc.ID, Coins: acc.Coins, Holdings: make(map[orderbook.SecurityID]int64, len(acc.Holdings))}
		for k, v := range acc.Holdings {
			cp.Holdings[k] = v
		}
		st.Accounts = append(st.Accounts, cp)
	}
	for _, sec := range e.registry.List() {
		st.Securities = append(st.Securities, SecurityState{
			ID:        sec.ID,
			Ticker:    sec.Ticker,
			ListPrice: sec.ListPrice,
			Samples:   append([]int64(nil), sec.Samples...),
			TruePrice: sec.TruePrice,
			History:   append([]market.PricePoint(nil), sec.History...),
			Orders:    sec.Book.Orders(),
		})
	}
	return st
}

// Restore replaces the engine state with st. Pending sets are rebuilt from the resting
// orders. On error the engine is left unchanged.
func (e *Engine) Restore(st *State) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.restoreLocked(st)
}

func (e *Engine) restoreLocked(st *State) error {
	led := ledger.New(e.cfg.StartingCoins)
	for _, a := range st.Accounts {
		acc := ledger.NewAccount(a.ID, a.Coins)
		for k, v := range a.Holdings {
			if v != 0 {
				acc.Holdings[k] = v
			}
		}
		led.Restore(acc)
	}

	reg := market.NewRegistry()
	index := make(map[orderbook.OrderID]orderbook.SecurityID)
	next := st.NextOrderID
	if next < 1 {
		next = 1
	}
	for _, ss := range st.Securities {
		sec := market.NewSecurity(ss.ID, ss.Ticker, ss.ListPrice)
		sec.Samples = append([]int64(nil), ss.Samples...)
		sec.TruePrice = ss.TruePrice
		sec.History = append([]market.PricePoint(nil), ss.History...)
		for _, o := range ss.Orders {
			if o.Security != ss.ID {
				return fmt.Errorf("order %d of %s filed under %s", o.ID, o.Security, ss.ID)
			}
			if _, dup := index[o.ID]; dup {
				return fmt.Errorf("order id %d appears twice", o.ID)
			}
			if err := sec.Book.Insert(o); err != nil {
				return fmt.Errorf("restore %s: %w", ss.ID, err)
			}
			led.AddPending(o.Owner, o.ID)
			index[o.ID] = ss.ID
			if o.ID >= next {
				next = o.ID + 1
			}
		}
		if err := reg.Register(sec); err != nil {
			return fmt.Errorf("restore %s: %w", ss.ID, err)
		}
	}

	e.ledger = led
	e.registry = reg
	e.index = index
	e.nextID = next
	e.halted = st.Halted
	e.Metrics.SetHalted(e.halted)
	e.Metrics.SetResting(len(index))
	return nil
}

// Load restores the last committed state from the store, if any.
func (e *Engine) Load() error {
	if e.Store == nil {
		return nil
	}
	st, err := e.Store.LoadState()
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	if st == nil {
		return nil
	}
	if err := e.Restore(st); err != nil {
		return err
	}
	if e.Logger != nil {
		e.Logger.Infow("state_loaded", "accounts", len(st.Accounts), "securities", len(st.Securities), "next_order_id", e.nextID)
	}
	return nil
}

// rollbackLocked discards in-memory changes by reloading the last committed state.
// Without a store there is nothing to go back to and the fault is only logged.
func (e *Engine) rollbackLocked() {
	if e.Store == nil {
		return
	}
	st, err := e.Store.LoadState()
	if err == nil {
		if st == nil {
			st = &State{}
		}
		err = e.restoreLocked(st)
	}
	if err != nil && e.Logger != nil {
		e.Logger.Errorw("rollback_failed", "err", err)
	}
}
