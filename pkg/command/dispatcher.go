package command

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/guildex/guildex/pkg/app/core/orderbook"
	"github.com/guildex/guildex/pkg/app/exchange"
	"github.com/guildex/guildex/pkg/util"
)

// errUsage marks a malformed command line.
var errUsage = errors.New("usage")

const helpText = `Commands:
  balance                          your coins
  portfolio                        coins, holdings and open orders
  buy|sell <TICKER> <volume> [@price]   market order unless a price is given
  cancel <order id>
  orders                           your open orders
  price <TICKER>
  book <TICKER>
  list                             every listed guild
  register <guild id> <TICKER> <price>
  ticker <guild id> <TICKER>                       admins only
  halt | resume | grant <user id> <coins> | seed <TICKER> <volume> <price>   admins only`

// Dispatcher turns chat command lines into engine calls and renders plain-text replies.
type Dispatcher struct {
	Engine *exchange.Engine
	Logger *zap.SugaredLogger
}

func NewDispatcher(engine *exchange.Engine, logger *zap.SugaredLogger) *Dispatcher {
	return &Dispatcher{Engine: engine, Logger: logger}
}

// Handle runs one command for user. The reply is always set. A non-nil error means the
// command failed for a reason other than user input and should be logged by the caller.
func (d *Dispatcher) Handle(ctx context.Context, user orderbook.UserID, line string) (string, error) {
	if err := ctx.Err(); err != nil {
		return Message(err), err
	}
	args := strings.Fields(line)
	if len(args) == 0 {
		return helpText, nil
	}
	name := strings.TrimPrefix(strings.ToLower(args[0]), "/")
	args = args[1:]

	reply, err := d.dispatch(user, name, args)
	if err == nil {
		return reply, nil
	}
	if expected(err) {
		return Message(err), nil
	}
	if d.Logger != nil {
		d.Logger.Errorw("command_failed", "user", user, "command", name, "err", err)
	}
	return Message(err), err
}

func (d *Dispatcher) dispatch(user orderbook.UserID, name string, args []string) (string, error) {
	switch name {
	case "help":
		return helpText, nil
	case "balance":
		return fmt.Sprintf("You have %d coins.", d.Engine.Balance(user)), nil
	case "portfolio":
		return renderPortfolio(d.Engine.Portfolio(user)), nil
	case "orders":
		return renderOrders(d.Engine, d.Engine.ListPending(user)), nil
	case "buy", "sell":
		return d.trade(user, name, args)
	case "cancel":
		return d.cancel(user, args)
	case "price":
		return d.price(args)
	case "book":
		return d.book(args)
	case "list":
		return renderList(d.Engine.Securities()), nil
	case "register":
		return d.register(args)
	case "ticker":
		return d.ticker(user, args)
	case "halt":
		if err := d.Engine.Halt(user); err != nil {
			return "", err
		}
		return "Trading halted.", nil
	case "resume":
		if err := d.Engine.Resume(user); err != nil {
			return "", err
		}
		return "Trading resumed.", nil
	case "grant":
		return d.grant(user, args)
	case "seed":
		return d.seed(user, args)
	default:
		return "", fmt.Errorf("%w: unknown command %q, try help", errUsage, name)
	}
}

func (d *Dispatcher) trade(user orderbook.UserID, verb string, args []string) (string, error) {
	if len(args) < 2 || len(args) > 3 {
		return "", fmt.Errorf("%w: %s <TICKER> <volume> [@price]", errUsage, verb)
	}
	sec, err := d.Engine.Lookup(args[0])
	if err != nil {
		return "", err
	}
	volume, err := positive("volume", args[1])
	if err != nil {
		return "", err
	}
	side, _ := orderbook.ParseSide(verb)
	o := orderbook.Order{Owner: user, Side: side, Kind: orderbook.Market, Security: sec.ID, Volume: volume}
	if len(args) == 3 {
		if o.Price, err = positive("price", strings.TrimPrefix(args[2], "@")); err != nil {
			return "", err
		}
		o.Kind = orderbook.Limit
	}

	res, err := d.Engine.Submit(o)
	if err != nil {
		return "", err
	}
	return renderResult(sec.Ticker, o, res), nil
}

func (d *Dispatcher) cancel(user orderbook.UserID, args []string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("%w: cancel <order id>", errUsage)
	}
	id, err := strconv.ParseUint(strings.TrimPrefix(args[0], "#"), 10, 64)
	if err != nil {
		return "", fmt.Errorf("%w: %q is not an order id", exchange.ErrInvalidOrderID, args[0])
	}
	o, err := d.Engine.Cancel(user, orderbook.OrderID(id))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Cancelled order #%d (%s %d %s).", o.ID, o.Side, o.Volume, tickerOf(d.Engine, o.Security)), nil
}

func (d *Dispatcher) price(args []string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("%w: price <TICKER>", errUsage)
	}
	sec, err := d.Engine.Lookup(args[0])
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s: last %d, true %d, listed at %d.", sec.Ticker, sec.Price, sec.TruePrice, sec.ListPrice), nil
}

func (d *Dispatcher) book(args []string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("%w: book <TICKER>", errUsage)
	}
	sec, err := d.Engine.Lookup(args[0])
	if err != nil {
		return "", err
	}
	view, err := d.Engine.Book(sec.ID)
	if err != nil {
		return "", err
	}
	return renderBook(view), nil
}

func (d *Dispatcher) register(args []string) (string, error) {
	if len(args) != 3 {
		return "", fmt.Errorf("%w: register <guild id> <TICKER> <price>", errUsage)
	}
	if !util.ValidSnowflake(args[0]) {
		return "", fmt.Errorf("%w: %q is not a guild id", exchange.ErrInvalidOrder, args[0])
	}
	price, err := positive("price", args[2])
	if err != nil {
		return "", err
	}
	info, err := d.Engine.RegisterSecurity(orderbook.SecurityID(args[0]), args[1], price)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Listed %s at %d.", info.Ticker, info.ListPrice), nil
}

func (d *Dispatcher) ticker(by orderbook.UserID, args []string) (string, error) {
	if len(args) != 2 {
		return "", fmt.Errorf("%w: ticker <guild id> <TICKER>", errUsage)
	}
	if err := d.Engine.SetTicker(by, orderbook.SecurityID(args[0]), args[1]); err != nil {
		return "", err
	}
	return fmt.Sprintf("Ticker is now %s.", strings.ToUpper(args[1])), nil
}

func (d *Dispatcher) grant(by orderbook.UserID, args []string) (string, error) {
	if len(args) != 2 {
		return "", fmt.Errorf("%w: grant <user id> <coins>", errUsage)
	}
	target := strings.Trim(args[0], "<@!>")
	if !util.ValidSnowflake(target) {
		return "", fmt.Errorf("%w: %q is not a user id", exchange.ErrInvalidOrder, args[0])
	}
	amount, err := positive("coins", args[1])
	if err != nil {
		return "", err
	}
	if err := d.Engine.Deposit(by, orderbook.UserID(target), amount); err != nil {
		return "", err
	}
	return fmt.Sprintf("Granted %d coins to %s.", amount, target), nil
}

func (d *Dispatcher) seed(by orderbook.UserID, args []string) (string, error) {
	if len(args) != 3 {
		return "", fmt.Errorf("%w: seed <TICKER> <volume> <price>", errUsage)
	}
	sec, err := d.Engine.Lookup(args[0])
	if err != nil {
		return "", err
	}
	volume, err := positive("volume", args[1])
	if err != nil {
		return "", err
	}
	price, err := positive("price", args[2])
	if err != nil {
		return "", err
	}
	res, err := d.Engine.Seed(by, sec.ID, volume, price)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Seeded %d %s at %d (%d filled).", volume, sec.Ticker, price, res.Filled), nil
}

func positive(field, s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive whole number", exchange.ErrInvalidOrder, field)
	}
	return n, nil
}

// expected reports whether err is a user-facing rejection rather than a fault.
func expected(err error) bool {
	for _, target := range []error{
		errUsage,
		exchange.ErrTradingHalted,
		exchange.ErrInsufficientFunds,
		exchange.ErrInsufficientHoldings,
		exchange.ErrInvalidOrderID,
		exchange.ErrTickerConflict,
		exchange.ErrTickerInvalid,
		exchange.ErrUnknownSecurity,
		exchange.ErrAlreadyListed,
		exchange.ErrInvalidOrder,
		exchange.ErrUnauthorized,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Message maps an error to the fixed reply shown to the user.
func Message(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, errUsage):
		return "Usage" + strings.TrimPrefix(err.Error(), errUsage.Error())
	case errors.Is(err, exchange.ErrTradingHalted):
		return "Trading is halted."
	case errors.Is(err, exchange.ErrInsufficientFunds):
		return "You don't have enough coins for that order."
	case errors.Is(err, exchange.ErrInsufficientHoldings):
		return "You don't hold enough shares for that order."
	case errors.Is(err, exchange.ErrInvalidOrderID):
		return "You have no open order with that id."
	case errors.Is(err, exchange.ErrTickerConflict):
		return "That ticker is already taken."
	case errors.Is(err, exchange.ErrTickerInvalid):
		return "Tickers are 1-8 letters or digits."
	case errors.Is(err, exchange.ErrUnknownSecurity):
		return "No guild is listed under that ticker."
	case errors.Is(err, exchange.ErrAlreadyListed):
		return "That guild is already listed."
	case errors.Is(err, exchange.ErrInvalidOrder):
		return "Invalid order" + strings.TrimPrefix(err.Error(), exchange.ErrInvalidOrder.Error()) + "."
	case errors.Is(err, exchange.ErrUnauthorized):
		return "Only exchange admins can do that."
	default:
		return "Something went wrong, please try again later."
	}
}
