package exchange

import (
	"fmt"

	"github.com/guildex/guildex/pkg/app/core/ledger"
	"github.com/guildex/guildex/pkg/app/core/market"
	"github.com/guildex/guildex/pkg/app/core/orderbook"
)

func (e *Engine) authorize(by orderbook.UserID, action string) error {
	if !e.IsAdmin(by) {
		return fmt.Errorf("%w: %s may not %s", ErrUnauthorized, by, action)
	}
	return nil
}

// Halt stops trading for everyone but the exchange itself.
func (e *Engine) Halt(by orderbook.UserID) error {
	return e.setHalted(by, true)
}

// Resume re-enables trading.
func (e *Engine) Resume(by orderbook.UserID) error {
	return e.setHalted(by, false)
}

func (e *Engine) setHalted(by orderbook.UserID, halted bool) error {
	action := "resume trading"
	if halted {
		action = "halt trading"
	}
	return e.run(action, func(out *outbox) error {
		if err := e.authorize(by, action); err != nil {
			return err
		}
		if e.halted == halted {
			return nil
		}
		e.halted = halted
		e.Metrics.SetHalted(halted)
		out.journal = fmt.Sprintf("halted=%t by=%s", halted, by)
		if e.Logger != nil {
			e.Logger.Infow("trading_state_changed", "halted", halted, "by", by)
		}
		return nil
	})
}

// Deposit grants coins to user.
func (e *Engine) Deposit(by, user orderbook.UserID, amount int64) error {
	return e.run("deposit", func(out *outbox) error {
		if err := e.authorize(by, "grant coins"); err != nil {
			return err
		}
		if user == "" || user == orderbook.SystemID {
			return fmt.Errorf("%w: cannot grant coins to %q", ErrInvalidOrder, user)
		}
		if err := e.ledger.Deposit(user, amount); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidOrder, err)
		}
		out.journal = fmt.Sprintf("deposit user=%s amount=%d by=%s", user, amount, by)
		if e.Logger != nil {
			e.Logger.Infow("coins_granted", "user", user, "amount", amount, "by", by)
		}
		return nil
	})
}

// Seed offers volume new shares of sec at price from the exchange's own account. Seed
// liquidity is accepted while trading is halted.
func (e *Engine) Seed(by orderbook.UserID, sec orderbook.SecurityID, volume, price int64) (*Result, error) {
	if err := e.authorize(by, "seed liquidity"); err != nil {
		e.Metrics.ObserveReject(reason(err))
		return nil, err
	}
	return e.Submit(seedOrder(sec, volume, price))
}

func seedOrder(sec orderbook.SecurityID, volume, price int64) orderbook.Order {
	return orderbook.Order{
		Side:     orderbook.Sell,
		Kind:     orderbook.Seed,
		Owner:    orderbook.SystemID,
		Security: sec,
		Volume:   volume,
		Price:    price,
	}
}

// RegisterSecurity lists a guild under ticker at listPrice and, when IPO shares are
// configured, seeds that many shares at the listing price.
func (e *Engine) RegisterSecurity(id orderbook.SecurityID, ticker string, listPrice int64) (SecurityInfo, error) {
	var info SecurityInfo
	err := e.run("register", func(out *outbox) error {
		if id == "" {
			return fmt.Errorf("%w: empty security id", ErrInvalidOrder)
		}
		if listPrice <= 0 {
			return fmt.Errorf("%w: listing price must be positive", ErrInvalidOrder)
		}
		if _, ok := ledger.Cost(e.cfg.IPOShares, listPrice); !ok {
			return fmt.Errorf("%w: ipo of %d shares at %d overflows", ErrInvalidOrder, e.cfg.IPOShares, listPrice)
		}
		sec := market.NewSecurity(id, ticker, listPrice)
		if err := e.registry.Register(sec); err != nil {
			return err
		}

		if e.cfg.IPOShares > 0 {
			if _, err := e.submitLocked(seedOrder(id, e.cfg.IPOShares, listPrice), out); err != nil {
				return fmt.Errorf("%w: ipo seed: %v", ErrInternal, err)
			}
		}
		info = infoOf(sec)
		out.journal = fmt.Sprintf("register sec=%s ticker=%s price=%d ipo=%d", id, sec.Ticker, listPrice, e.cfg.IPOShares)
		if e.Logger != nil {
			e.Logger.Infow("security_registered", "security", id, "ticker", sec.Ticker, "list_price", listPrice, "ipo_shares", e.cfg.IPOShares)
		}
		return nil
	})
	return info, err
}

// SetTicker renames a listed security.
func (e *Engine) SetTicker(by orderbook.UserID, id orderbook.SecurityID, ticker string) error {
	return e.run("set_ticker", func(out *outbox) error {
		if err := e.authorize(by, "rename "+string(id)); err != nil {
			return err
		}
		sec, err := e.registry.Get(id)
		if err != nil {
			return err
		}
		old := sec.Ticker
		if err := e.registry.SetTicker(id, ticker); err != nil {
			return err
		}
		if old == sec.Ticker {
			return nil
		}
		out.journal = fmt.Sprintf("ticker sec=%s from=%s to=%s by=%s", id, old, sec.Ticker, by)
		if e.Logger != nil {
			e.Logger.Infow("ticker_changed", "security", id, "from", old, "to", sec.Ticker, "by", by)
		}
		return nil
	})
}
