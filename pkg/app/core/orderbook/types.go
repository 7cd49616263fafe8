package orderbook

import (
	"errors"
	"strings"
)

// ErrInvalidOrderID is returned when an order id is not resting in the book.
var ErrInvalidOrderID = errors.New("invalid order id")

type Side int8

const (
	Buy  Side = 1
	Sell Side = -1
)

// Opposite returns the side an order of this side trades against.
func (s Side) Opposite() Side { return -s }

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "unknown"
	}
}

// ParseSide accepts "buy"/"sell" in any case.
func ParseSide(s string) (Side, bool) {
	switch strings.ToLower(s) {
	case "buy":
		return Buy, true
	case "sell":
		return Sell, true
	}
	return 0, false
}

// Kind is the execution style of an order.
type Kind int8

const (
	Limit  Kind = iota // rests at Price
	Market             // unpriced, takes whatever the book offers
	Seed               // system-issued inventory at Price (IPO liquidity)
)

func (k Kind) String() string {
	switch k {
	case Limit:
		return "limit"
	case Market:
		return "market"
	case Seed:
		return "seed"
	default:
		return "unknown"
	}
}

// Priced reports whether orders of this kind carry a meaningful Price.
func (k Kind) Priced() bool { return k == Limit || k == Seed }

type (
	OrderID    uint64
	UserID     string // chat user id (snowflake) or SystemID
	SecurityID string // guild id
)

// SystemID owns seed inventory. It has unbounded coins and shares.
const SystemID UserID = "system"

// Order is a request to trade. ID is zero until the order rests on a book.
type Order struct {
	ID        OrderID    `json:"id"`
	Side      Side       `json:"side"`
	Kind      Kind       `json:"kind"`
	Owner     UserID     `json:"owner"`
	Security  SecurityID `json:"security"`
	Volume    int64      `json:"volume"` // remaining shares
	Price     int64      `json:"price"`  // coins per share, limit/seed only
	CreatedAt int64      `json:"created_at"`
}

// PriceLevel aggregates the resting volume at one limit price.
type PriceLevel struct {
	Price  int64 `json:"price"`
	Volume int64 `json:"volume"`
	Orders int   `json:"orders"`
}
