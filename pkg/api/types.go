package api

import (
	"github.com/guildex/guildex/pkg/app/core/orderbook"
	"github.com/guildex/guildex/pkg/app/exchange"
)

// API request and response types for REST endpoints and WebSocket messages

// ==============================
// REST Request Types
// ==============================

// SubmitOrderRequest places an order on behalf of a chat user.
type SubmitOrderRequest struct {
	User   string `json:"user"`
	Ticker string `json:"ticker"`
	Side   string `json:"side"`           // "buy" or "sell"
	Kind   string `json:"kind,omitempty"` // "limit" or "market"; inferred from price when empty
	Volume int64  `json:"volume"`
	Price  int64  `json:"price,omitempty"`
}

type CancelOrderRequest struct {
	User    string            `json:"user"`
	OrderID orderbook.OrderID `json:"orderId"`
}

// CommandRequest carries one raw chat command line from the gateway.
type CommandRequest struct {
	User string `json:"user"`
	Text string `json:"text"`
}

type MessageActivityRequest struct {
	Guild  string `json:"guild"`
	Author string `json:"author"`
}

type MembersRequest struct {
	Guild   string `json:"guild"`
	Members int64  `json:"members"`
}

// AdminRequest identifies the user asking for an exchange-wide action.
type AdminRequest struct {
	User string `json:"user"`
}

// ==============================
// REST Response Types
// ==============================

// OrderResponse reports what happened to a submitted order.
type OrderResponse struct {
	Status  string           `json:"status"` // "filled", "resting", "partial" or "dropped"
	Order   orderbook.Order  `json:"order"`
	Resting *orderbook.Order `json:"resting,omitempty"`
	Trades  []exchange.Trade `json:"trades"`
	Filled  int64            `json:"filled"`
	Dropped int64            `json:"dropped,omitempty"`
}

type CommandResponse struct {
	Reply string `json:"reply"`
}

type ExchangeStatus struct {
	Halted     bool `json:"halted"`
	Securities int  `json:"securities"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// ==============================
// WebSocket Message Types
// ==============================

// WSSubscribeRequest is sent by clients to manage channel subscriptions.
// Channels are "trades", "prices", "trades:<TICKER>" and "prices:<TICKER>".
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}

func orderResponse(res *exchange.Result) OrderResponse {
	out := OrderResponse{
		Order:   res.Order,
		Resting: res.Resting,
		Trades:  res.Trades,
		Filled:  res.Filled,
		Dropped: res.Dropped,
	}
	if out.Trades == nil {
		out.Trades = []exchange.Trade{}
	}
	switch {
	case res.Dropped > 0:
		out.Status = "dropped"
	case res.Resting != nil && res.Filled > 0:
		out.Status = "partial"
	case res.Resting != nil:
		out.Status = "resting"
	default:
		out.Status = "filled"
	}
	return out
}
