package storage

import (
	"fmt"

	"github.com/guildex/guildex/pkg/app/core/orderbook"
)

// Key schema:
//
//	meta                         -> next order id, halt flag (gob)
//	acc:<user>                   -> ledger account (json)
//	sec:<security>               -> security without history (json)
//	ord:<security>:<id>          -> resting order (json)
//	hist:<security>:<seq>        -> price point (json)
//	trade:<security>:<ts>:<id>   -> executed trade (json), never rewritten
//
// Numeric components are zero-padded to 20 digits so keys sort numerically.
const (
	keyMeta        = "meta"
	prefixAccount  = "acc:"
	prefixSecurity = "sec:"
	prefixOrder    = "ord:"
	prefixHistory  = "hist:"
	prefixTrade    = "trade:"
)

func accountKey(user orderbook.UserID) []byte {
	return []byte(prefixAccount + string(user))
}

func securityKey(sec orderbook.SecurityID) []byte {
	return []byte(prefixSecurity + string(sec))
}

func orderKey(sec orderbook.SecurityID, id orderbook.OrderID) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d", prefixOrder, sec, id))
}

func historyKey(sec orderbook.SecurityID, seq int) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d", prefixHistory, sec, seq))
}

func historyPrefix(sec orderbook.SecurityID) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixHistory, sec))
}

func tradeKey(sec orderbook.SecurityID, ts int64, id string) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d:%s", prefixTrade, sec, ts, id))
}

func tradePrefix(sec orderbook.SecurityID) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixTrade, sec))
}

// keyUpperBound returns the exclusive upper bound for a prefix scan.
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
