package exchange

import (
	"errors"

	"github.com/guildex/guildex/pkg/app/core/ledger"
	"github.com/guildex/guildex/pkg/app/core/market"
	"github.com/guildex/guildex/pkg/app/core/orderbook"
)

// Errors returned by Engine operations. Every one except ErrInternal leaves the engine
// state exactly as it was before the call.
var (
	ErrTradingHalted = errors.New("trading halted")
	ErrInvalidOrder  = errors.New("invalid order")
	ErrUnauthorized  = errors.New("unauthorized")

	// ErrInternal marks a broken invariant. The engine rolls back to the last committed
	// state before returning it.
	ErrInternal = errors.New("internal fault")

	ErrInsufficientFunds    = ledger.ErrInsufficientFunds
	ErrInsufficientHoldings = ledger.ErrInsufficientHoldings
	ErrInvalidOrderID       = orderbook.ErrInvalidOrderID
	ErrTickerConflict       = market.ErrTickerConflict
	ErrTickerInvalid        = market.ErrTickerInvalid
	ErrUnknownSecurity      = market.ErrUnknownSecurity
	ErrAlreadyListed        = market.ErrAlreadyListed
)

// reason is the metrics label for a rejected operation.
func reason(err error) string {
	switch {
	case errors.Is(err, ErrTradingHalted):
		return "halted"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrInsufficientHoldings):
		return "insufficient_holdings"
	case errors.Is(err, ErrUnknownSecurity):
		return "unknown_security"
	case errors.Is(err, ErrInvalidOrder):
		return "invalid_order"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrInternal):
		return "internal"
	default:
		return "other"
	}
}
