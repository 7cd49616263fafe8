package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap/zaptest"

	"github.com/guildex/guildex/pkg/activity"
	"github.com/guildex/guildex/pkg/app/core/orderbook"
	"github.com/guildex/guildex/pkg/app/exchange"
	"github.com/guildex/guildex/pkg/events"
	"github.com/guildex/guildex/pkg/metrics"
	"github.com/guildex/guildex/pkg/storage"
	"github.com/guildex/guildex/pkg/util"
)

type fixture struct {
	engine  *exchange.Engine
	tracker *activity.Tracker
	server  *Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t).Sugar()
	reg := prometheus.NewRegistry()

	cfg := exchange.DefaultConfig()
	cfg.IPOShares = 100
	cfg.Admins = []orderbook.UserID{"1"}
	e := exchange.NewEngine(cfg)
	e.Logger = logger
	e.Clock = util.NewManualClock(time.Unix(1700000000, 0))
	e.Metrics = metrics.New(reg)
	store := storage.NewMemStore()
	e.Store = store
	if _, err := e.RegisterSecurity("555", "CATS", 3); err != nil {
		t.Fatal(err)
	}

	tracker := activity.NewTracker()
	s := NewServer(Deps{
		Engine:   e,
		Tracker:  tracker,
		Trades:   store,
		Gatherer: reg,
		Logger:   logger,
	})
	e.Publisher = s.Hub()
	return &fixture{engine: e, tracker: tracker, server: s}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Origin", "http://dashboard.example")
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestSecurityRoutes(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		path   string
		status int
	}{
		{"/api/v1/securities", http.StatusOK},
		{"/api/v1/securities/cats", http.StatusOK},
		{"/api/v1/securities/CATS/book", http.StatusOK},
		{"/api/v1/securities/CATS/history", http.StatusOK},
		{"/api/v1/securities/CATS/trades", http.StatusOK},
		{"/api/v1/securities/DOGS", http.StatusNotFound},
		{"/api/v1/securities/CATS/trades?limit=-1", http.StatusBadRequest},
		{"/api/v1/securities/bad!ticker", http.StatusBadRequest},
		{"/health", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := f.do(t, http.MethodGet, tt.path, nil)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tt.status, rec.Body)
			}
			if rec.Header().Get("Access-Control-Allow-Origin") == "" {
				t.Errorf("missing CORS header")
			}
		})
	}

	book := decode[exchange.BookView](t, f.do(t, http.MethodGet, "/api/v1/securities/cats/book", nil))
	if len(book.Asks) != 1 || book.Asks[0].Price != 3 || book.Asks[0].Volume != 100 {
		t.Errorf("asks = %+v, want the IPO seed", book.Asks)
	}
}

func TestOrderLifecycle(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/orders", SubmitOrderRequest{User: "100", Ticker: "cats", Side: "buy", Volume: 10})
	if rec.Code != http.StatusOK {
		t.Fatalf("market buy: %d %s", rec.Code, rec.Body)
	}
	if res := decode[OrderResponse](t, rec); res.Status != "filled" || res.Filled != 10 || len(res.Trades) != 1 {
		t.Fatalf("market buy = %+v", res)
	}

	rec = f.do(t, http.MethodPost, "/api/v1/orders", SubmitOrderRequest{User: "100", Ticker: "CATS", Side: "sell", Volume: 4, Price: 9})
	res := decode[OrderResponse](t, rec)
	if res.Status != "resting" || res.Resting == nil {
		t.Fatalf("limit sell = %+v", res)
	}
	id := res.Resting.ID

	orders := decode[[]orderbook.Order](t, f.do(t, http.MethodGet, "/api/v1/users/100/orders", nil))
	if len(orders) != 1 || orders[0].ID != id {
		t.Fatalf("orders = %+v", orders)
	}
	pf := decode[exchange.Portfolio](t, f.do(t, http.MethodGet, "/api/v1/users/100", nil))
	if pf.Coins != 970 || len(pf.Positions) != 1 || pf.Positions[0].Shares != 10 {
		t.Errorf("portfolio = %+v", pf)
	}

	if rec := f.do(t, http.MethodPost, "/api/v1/orders/cancel", CancelOrderRequest{User: "200", OrderID: id}); rec.Code != http.StatusNotFound {
		t.Errorf("foreign cancel = %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/api/v1/orders/cancel", CancelOrderRequest{User: "100", OrderID: id}); rec.Code != http.StatusOK {
		t.Errorf("cancel = %d %s", rec.Code, rec.Body)
	}
	if rec := f.do(t, http.MethodPost, "/api/v1/orders/cancel", CancelOrderRequest{User: "100", OrderID: id}); rec.Code != http.StatusNotFound {
		t.Errorf("second cancel = %d", rec.Code)
	}

	trades := decode[[]exchange.Trade](t, f.do(t, http.MethodGet, "/api/v1/securities/CATS/trades", nil))
	if len(trades) != 1 || trades[0].Buyer != "100" || trades[0].Seller != orderbook.SystemID {
		t.Errorf("trades = %+v", trades)
	}
}

func TestOrderRejections(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		req    SubmitOrderRequest
		status int
	}{
		{"bad user", SubmitOrderRequest{User: "alice", Ticker: "CATS", Side: "buy", Volume: 1}, http.StatusBadRequest},
		{"bad side", SubmitOrderRequest{User: "100", Ticker: "CATS", Side: "hold", Volume: 1}, http.StatusBadRequest},
		{"bad kind", SubmitOrderRequest{User: "100", Ticker: "CATS", Side: "buy", Kind: "seed", Volume: 1, Price: 1}, http.StatusBadRequest},
		{"unknown ticker", SubmitOrderRequest{User: "100", Ticker: "DOGS", Side: "buy", Volume: 1}, http.StatusNotFound},
		{"no coins", SubmitOrderRequest{User: "100", Ticker: "CATS", Side: "buy", Volume: 1000, Price: 2}, http.StatusUnprocessableEntity},
		{"no shares", SubmitOrderRequest{User: "100", Ticker: "CATS", Side: "sell", Volume: 1, Price: 2}, http.StatusUnprocessableEntity},
		{"limit without price", SubmitOrderRequest{User: "100", Ticker: "CATS", Side: "buy", Kind: "limit", Volume: 1}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/v1/orders", tt.req)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.status, rec.Body)
			}
			if decode[ErrorResponse](t, rec).Error == "" {
				t.Errorf("empty error body")
			}
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body = %d", rec.Code)
	}
}

func TestHaltAndResume(t *testing.T) {
	f := newFixture(t)

	if rec := f.do(t, http.MethodPost, "/api/v1/exchange/halt", AdminRequest{User: "200"}); rec.Code != http.StatusForbidden {
		t.Fatalf("non-admin halt = %d", rec.Code)
	}
	rec := f.do(t, http.MethodPost, "/api/v1/exchange/halt", AdminRequest{User: "1"})
	if st := decode[ExchangeStatus](t, rec); !st.Halted || st.Securities != 1 {
		t.Fatalf("status after halt = %+v", st)
	}

	rec = f.do(t, http.MethodPost, "/api/v1/orders", SubmitOrderRequest{User: "100", Ticker: "CATS", Side: "buy", Volume: 1})
	if rec.Code != http.StatusConflict {
		t.Fatalf("order while halted = %d", rec.Code)
	}
	if got := decode[ErrorResponse](t, rec).Error; got != "Trading is halted." {
		t.Errorf("error = %q", got)
	}

	f.do(t, http.MethodPost, "/api/v1/exchange/resume", AdminRequest{User: "1"})
	if st := decode[ExchangeStatus](t, f.do(t, http.MethodGet, "/api/v1/exchange", nil)); st.Halted {
		t.Errorf("still halted")
	}
}

func TestCommandEndpoint(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/commands", CommandRequest{User: "100", Text: "buy CATS 2"})
	if got := decode[CommandResponse](t, rec).Reply; got != "Bought 2 CATS for 6 coins." {
		t.Errorf("reply = %q", got)
	}
	rec = f.do(t, http.MethodPost, "/api/v1/commands", CommandRequest{User: "100", Text: "halt"})
	if got := decode[CommandResponse](t, rec).Reply; got != "Only exchange admins can do that." {
		t.Errorf("reply = %q", got)
	}
}

func TestActivityEndpoints(t *testing.T) {
	f := newFixture(t)

	for _, author := range []string{"100", "100", "200"} {
		if rec := f.do(t, http.MethodPost, "/api/v1/activity/messages", MessageActivityRequest{Guild: "555", Author: author}); rec.Code != http.StatusNoContent {
			t.Fatalf("message = %d", rec.Code)
		}
	}
	if rec := f.do(t, http.MethodPost, "/api/v1/activity/members", MembersRequest{Guild: "555", Members: 42}); rec.Code != http.StatusNoContent {
		t.Fatalf("members = %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/api/v1/activity/messages", MessageActivityRequest{Guild: "x", Author: "100"}); rec.Code != http.StatusBadRequest {
		t.Errorf("bad guild = %d", rec.Code)
	}

	got := f.tracker.Drain()["555"]
	if got.Messages != 3 || got.Authors != 2 || got.Members != 42 {
		t.Errorf("activity = %+v", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/api/v1/orders", SubmitOrderRequest{User: "100", Ticker: "CATS", Side: "buy", Volume: 1})

	rec := f.do(t, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics = %d", rec.Code)
	}
	for _, name := range []string{"guildex_orders_submitted_total", "guildex_trades_total"} {
		if !strings.Contains(rec.Body.String(), name) {
			t.Errorf("metrics output lacks %s", name)
		}
	}
}

func TestWebSocketStreamsTrades(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.server.Hub().Run(ctx)

	ts := httptest.NewServer(f.server.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	if err := conn.WriteJSON(WSSubscribeRequest{Op: "subscribe", Channels: []string{"trades:CATS"}}); err != nil {
		t.Fatal(err)
	}
	var ack map[string]any
	if err := conn.ReadJSON(&ack); err != nil || ack["type"] != "ack" {
		t.Fatalf("ack = %v, %v", ack, err)
	}

	if _, err := f.engine.Submit(orderbook.Order{Owner: "100", Side: orderbook.Buy, Kind: orderbook.Market, Security: "555", Volume: 3}); err != nil {
		t.Fatal(err)
	}
	var ev events.TradeEvent
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read trade: %v", err)
	}
	if ev.Type != "trade" || ev.Ticker != "CATS" || ev.Volume != 3 || ev.Price != 3 {
		t.Errorf("event = %+v", ev)
	}
}
