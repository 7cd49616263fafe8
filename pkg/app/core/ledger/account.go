package ledger

import (
	"fmt"
	"sort"

	"github.com/guildex/guildex/pkg/app/core/orderbook"
)

// Account is one user's coin balance, share holdings and resting orders.
type Account struct {
	ID    orderbook.UserID `json:"id"`
	Coins int64            `json:"coins"`

	// security -> shares. Zero entries are deleted, never stored.
	Holdings map[orderbook.SecurityID]int64 `json:"holdings"`

	// Ids of this user's resting orders across all securities. The order itself lives in
	// its security's book; this is only an index for lookup and cancellation.
	Pending map[orderbook.OrderID]struct{} `json:"-"`
}

// NewAccount creates an account holding coins and nothing else.
func NewAccount(id orderbook.UserID, coins int64) *Account {
	return &Account{
		ID:       id,
		Coins:    coins,
		Holdings: make(map[orderbook.SecurityID]int64),
		Pending:  make(map[orderbook.OrderID]struct{}),
	}
}

// IsSystem reports whether this is the exchange's own unbounded account.
func (a *Account) IsSystem() bool { return a.ID == orderbook.SystemID }

// Shares returns the holding in sec, zero when absent.
func (a *Account) Shares(sec orderbook.SecurityID) int64 {
	return a.Holdings[sec]
}

func (a *Account) addShares(sec orderbook.SecurityID, delta int64) {
	n := a.Holdings[sec] + delta
	if n == 0 {
		delete(a.Holdings, sec)
		return
	}
	a.Holdings[sec] = n
}

// PendingIDs returns the resting order ids in ascending order.
func (a *Account) PendingIDs() []orderbook.OrderID {
	ids := make([]orderbook.OrderID, 0, len(a.Pending))
	for id := range a.Pending {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Validate checks account invariants. The system account may hold negative balances.
func (a *Account) Validate() error {
	if a.IsSystem() {
		return nil
	}
	if a.Coins < 0 {
		return fmt.Errorf("negative balance: %d", a.Coins)
	}
	for sec, n := range a.Holdings {
		if n <= 0 {
			return fmt.Errorf("non-positive holding of %s: %d", sec, n)
		}
	}
	return nil
}
