package ledger

import (
	"errors"
	"fmt"
	"sort"

	"github.com/guildex/guildex/pkg/app/core/orderbook"
)

var (
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInsufficientHoldings = errors.New("insufficient holdings")
)

// Ledger owns every balance and holding. It does no locking of its own; the exchange
// engine calls it only from inside its exclusive region.
type Ledger struct {
	accounts      map[orderbook.UserID]*Account
	startingCoins int64
}

// New creates an empty ledger. Accounts opened later start with startingCoins.
func New(startingCoins int64) *Ledger {
	return &Ledger{
		accounts:      make(map[orderbook.UserID]*Account),
		startingCoins: startingCoins,
	}
}

// Open returns the account for user, creating it with the starting balance on first use.
// The system account always starts at zero and is allowed to go negative.
func (l *Ledger) Open(user orderbook.UserID) *Account {
	if acc, ok := l.accounts[user]; ok {
		return acc
	}
	coins := l.startingCoins
	if user == orderbook.SystemID {
		coins = 0
	}
	acc := NewAccount(user, coins)
	l.accounts[user] = acc
	return acc
}

// Get returns an existing account without creating it.
func (l *Ledger) Get(user orderbook.UserID) (*Account, bool) {
	acc, ok := l.accounts[user]
	return acc, ok
}

// Balance returns the user's coins, zero for unknown users.
func (l *Ledger) Balance(user orderbook.UserID) int64 {
	if acc, ok := l.accounts[user]; ok {
		return acc.Coins
	}
	return 0
}

// Funds returns the user's coins, or the balance Open would grant when the account does
// not exist yet. It never creates the account.
func (l *Ledger) Funds(user orderbook.UserID) int64 {
	if acc, ok := l.accounts[user]; ok {
		return acc.Coins
	}
	if user == orderbook.SystemID {
		return 0
	}
	return l.startingCoins
}

// Holdings returns the user's shares of sec, zero when absent.
func (l *Ledger) Holdings(user orderbook.UserID, sec orderbook.SecurityID) int64 {
	if acc, ok := l.accounts[user]; ok {
		return acc.Shares(sec)
	}
	return 0
}

// Deposit credits coins to user (admin grant).
func (l *Ledger) Deposit(user orderbook.UserID, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("deposit amount must be positive: %d", amount)
	}
	acc := l.Open(user)
	acc.Coins += amount
	return nil
}

// Transfer settles one trade: buyer pays volume*unitPrice coins to seller and seller
// delivers volume shares of sec to buyer. Callers validate funds up front; Transfer
// refuses, without mutating anything, if a non-system party would still go negative.
func (l *Ledger) Transfer(buyer, seller orderbook.UserID, sec orderbook.SecurityID, volume, unitPrice int64) error {
	if volume <= 0 || unitPrice < 0 {
		return fmt.Errorf("invalid transfer: volume=%d price=%d", volume, unitPrice)
	}
	cost, ok := Cost(volume, unitPrice)
	if !ok {
		return fmt.Errorf("transfer cost overflows: volume=%d price=%d", volume, unitPrice)
	}

	b := l.Open(buyer)
	s := l.Open(seller)

	if !b.IsSystem() && b.Coins < cost {
		return fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientFunds, buyer, b.Coins, cost)
	}
	if !s.IsSystem() && s.Shares(sec) < volume {
		return fmt.Errorf("%w: %s has %d of %s, needs %d", ErrInsufficientHoldings, seller, s.Shares(sec), sec, volume)
	}

	b.Coins -= cost
	s.Coins += cost
	s.addShares(sec, -volume)
	b.addShares(sec, volume)
	return nil
}

// Cost returns volume*unitPrice and false when the product overflows int64.
func Cost(volume, unitPrice int64) (int64, bool) {
	if volume < 0 || unitPrice < 0 {
		return 0, false
	}
	if volume == 0 || unitPrice == 0 {
		return 0, true
	}
	c := volume * unitPrice
	if c/unitPrice != volume {
		return 0, false
	}
	return c, true
}

func (l *Ledger) AddPending(user orderbook.UserID, id orderbook.OrderID) {
	l.Open(user).Pending[id] = struct{}{}
}

// RemovePending drops id from the user's pending set and reports whether it was there.
func (l *Ledger) RemovePending(user orderbook.UserID, id orderbook.OrderID) bool {
	acc, ok := l.accounts[user]
	if !ok {
		return false
	}
	if _, ok := acc.Pending[id]; !ok {
		return false
	}
	delete(acc.Pending, id)
	return true
}

// HasPending reports whether id is one of the user's resting orders.
func (l *Ledger) HasPending(user orderbook.UserID, id orderbook.OrderID) bool {
	acc, ok := l.accounts[user]
	if !ok {
		return false
	}
	_, ok = acc.Pending[id]
	return ok
}

// Accounts returns every account ordered by id.
func (l *Ledger) Accounts() []*Account {
	out := make([]*Account, 0, len(l.accounts))
	for _, acc := range l.accounts {
		out = append(out, acc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Restore installs an account loaded from storage, replacing any existing one.
func (l *Ledger) Restore(acc *Account) {
	if acc.Holdings == nil {
		acc.Holdings = make(map[orderbook.SecurityID]int64)
	}
	if acc.Pending == nil {
		acc.Pending = make(map[orderbook.OrderID]struct{})
	}
	l.accounts[acc.ID] = acc
}

// TotalCoins sums coins over every account, system included. Trades never change it.
func (l *Ledger) TotalCoins() int64 {
	var total int64
	for _, acc := range l.accounts {
		total += acc.Coins
	}
	return total
}

// TotalShares sums holdings of sec over every account, system included. Shares issued by
// the system show up as a negative system holding, so this is always zero.
func (l *Ledger) TotalShares(sec orderbook.SecurityID) int64 {
	var total int64
	for _, acc := range l.accounts {
		total += acc.Shares(sec)
	}
	return total
}
