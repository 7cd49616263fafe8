package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/guildex/guildex/pkg/app/core/orderbook"
	"github.com/guildex/guildex/pkg/app/exchange"
	"github.com/guildex/guildex/pkg/util"
)

const (
	admin orderbook.UserID = "1"
	alice orderbook.UserID = "100"
	bob   orderbook.UserID = "200"
)

func newDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	cfg := exchange.DefaultConfig()
	cfg.IPOShares = 100
	cfg.Admins = []orderbook.UserID{admin}
	e := exchange.NewEngine(cfg)
	e.Logger = zaptest.NewLogger(t).Sugar()
	e.Clock = util.NewManualClock(time.Unix(1700000000, 0))
	return NewDispatcher(e, e.Logger)
}

func TestDispatcherSession(t *testing.T) {
	d := newDispatcher(t)
	ctx := context.Background()

	steps := []struct {
		user orderbook.UserID
		line string
		want string
	}{
		{alice, "register 555 cats 3", "Listed CATS at 3."},
		{alice, "register 555 dogs 3", "That guild is already listed."},
		{alice, "register guild DOGS 3", "Invalid order: \"guild\" is not a guild id."},
		{alice, "buy CATS 10", "Bought 10 CATS for 30 coins."},
		{alice, "balance", "You have 970 coins."},
		{alice, "sell cats 4 @9", "Order #2 queued: sell 4 CATS @9."},
		{bob, "buy CATS 2 9", "Bought 2 CATS for 18 coins."},
		{alice, "orders", "#2 sell 2 CATS @9"},
		{bob, "sell CATS 5", "You don't hold enough shares for that order."},
		{bob, "cancel 2", "You have no open order with that id."},
		{alice, "cancel #2", "Cancelled order #2 (sell 2 CATS)."},
		{alice, "orders", "You have no open orders."},
		{alice, "price CATS", "CATS: last 9, true 3, listed at 3."},
		{alice, "book cats", "90 x 3 (1 orders)"},
		{alice, "list", "CATS"},
		{alice, "register 777 BIG 4611686018427387904", "overflows"},
		{alice, "price BIG", "No guild is listed under that ticker."},
		{alice, "ticker 555 MEOW", "Only exchange admins can do that."},
		{admin, "ticker 555 MEOW", "Ticker is now MEOW."},
		{alice, "price CATS", "No guild is listed under that ticker."},
		{admin, "ticker 555 way2longtick", "Tickers are 1-8 letters or digits."},
		{alice, "buy MEOW 0", "Invalid order: volume must be a positive whole number."},
		{alice, "buy MEOW", "Usage: buy <TICKER> <volume> [@price]"},
		{alice, "dance", "Usage: unknown command \"dance\", try help"},
		{bob, "halt", "Only exchange admins can do that."},
		{admin, "halt", "Trading halted."},
		{alice, "buy MEOW 1", "Trading is halted."},
		{admin, "seed MEOW 5 4", "Seeded 5 MEOW at 4 (0 filled)."},
		{admin, "resume", "Trading resumed."},
		{admin, "grant <@200> 50", "Granted 50 coins to 200."},
		{bob, "balance", "You have 1032 coins."},
		{bob, "buy MEOW 2000 @1", "You don't have enough coins for that order."},
		{bob, "portfolio", "MEOW: 2 shares @9 = 18"},
	}
	for i, s := range steps {
		reply, err := d.Handle(ctx, s.user, s.line)
		if err != nil {
			t.Fatalf("step %d %q: unexpected error %v", i, s.line, err)
		}
		if !strings.Contains(reply, s.want) {
			t.Errorf("step %d %q:\n got %q\nwant %q", i, s.line, reply, s.want)
		}
	}
}

func TestDispatcherEmptyLineShowsHelp(t *testing.T) {
	d := newDispatcher(t)
	for _, line := range []string{"", "   ", "help", "/help"} {
		reply, err := d.Handle(context.Background(), alice, line)
		if err != nil || !strings.HasPrefix(reply, "Commands:") {
			t.Errorf("%q -> %q, %v", line, reply, err)
		}
	}
}

func TestDispatcherCancelledContext(t *testing.T) {
	d := newDispatcher(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := d.Handle(ctx, alice, "balance"); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{exchange.ErrTradingHalted, "Trading is halted."},
		{fmt.Errorf("%w: 100 needs 30", exchange.ErrInsufficientFunds), "You don't have enough coins for that order."},
		{exchange.ErrInsufficientHoldings, "You don't hold enough shares for that order."},
		{exchange.ErrTickerConflict, "That ticker is already taken."},
		{fmt.Errorf("%w: price must be positive", exchange.ErrInvalidOrder), "Invalid order: price must be positive."},
		{exchange.ErrInternal, "Something went wrong, please try again later."},
		{errors.New("disk on fire"), "Something went wrong, please try again later."},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.err), func(t *testing.T) {
			if got := Message(tt.err); got != tt.want {
				t.Errorf("Message(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}
