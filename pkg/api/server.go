package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/guildex/guildex/pkg/activity"
	"github.com/guildex/guildex/pkg/app/core/orderbook"
	"github.com/guildex/guildex/pkg/app/exchange"
	"github.com/guildex/guildex/pkg/command"
	"github.com/guildex/guildex/pkg/util"
)

const (
	defaultTradeLimit = 50
	maxTradeLimit     = 500
	maxBodyBytes      = 1 << 16
)

// TradeSource serves the persisted trade log.
type TradeSource interface {
	LoadRecentTrades(sec orderbook.SecurityID, limit int) ([]exchange.Trade, error)
}

// Deps wires the server to the rest of the bot. Engine is required; the rest may be nil.
type Deps struct {
	Engine      *exchange.Engine
	Dispatcher  *command.Dispatcher
	Tracker     *activity.Tracker
	Trades      TradeSource
	Hub         *Hub
	Gatherer    prometheus.Gatherer
	CORSOrigins []string
	Logger      *zap.SugaredLogger
}

// Server handles REST API and WebSocket connections
type Server struct {
	engine     *exchange.Engine
	dispatcher *command.Dispatcher
	tracker    *activity.Tracker
	trades     TradeSource
	hub        *Hub
	router     *mux.Router
	handler    http.Handler
	logger     *zap.SugaredLogger
}

func NewServer(d Deps) *Server {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	hub := d.Hub
	if hub == nil {
		hub = NewHub(logger)
	}
	dispatcher := d.Dispatcher
	if dispatcher == nil {
		dispatcher = command.NewDispatcher(d.Engine, logger)
	}
	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	origins := d.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	s := &Server{
		engine:     d.Engine,
		dispatcher: dispatcher,
		tracker:    d.Tracker,
		trades:     d.Trades,
		hub:        hub,
		router:     mux.NewRouter(),
		logger:     logger,
	}
	s.setupRoutes(gatherer)

	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	s.handler = c.Handler(s.router)
	return s
}

func (s *Server) setupRoutes(gatherer prometheus.Gatherer) {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Securities
	api.HandleFunc("/securities", s.handleListSecurities).Methods("GET")
	api.HandleFunc("/securities/{ticker}", s.handleGetSecurity).Methods("GET")
	api.HandleFunc("/securities/{ticker}/book", s.handleGetBook).Methods("GET")
	api.HandleFunc("/securities/{ticker}/history", s.handleGetHistory).Methods("GET")
	api.HandleFunc("/securities/{ticker}/trades", s.handleGetTrades).Methods("GET")

	// Users
	api.HandleFunc("/users/{id}", s.handleGetUser).Methods("GET")
	api.HandleFunc("/users/{id}/orders", s.handleGetUserOrders).Methods("GET")

	// Orders
	api.HandleFunc("/orders", s.handleSubmitOrder).Methods("POST")
	api.HandleFunc("/orders/cancel", s.handleCancelOrder).Methods("POST")

	// Chat gateway
	api.HandleFunc("/commands", s.handleCommand).Methods("POST")
	api.HandleFunc("/activity/messages", s.handleMessageActivity).Methods("POST")
	api.HandleFunc("/activity/members", s.handleMembers).Methods("POST")

	// Exchange administration
	api.HandleFunc("/exchange", s.handleExchangeStatus).Methods("GET")
	api.HandleFunc("/exchange/halt", s.handleHalt).Methods("POST")
	api.HandleFunc("/exchange/resume", s.handleResume).Methods("POST")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods("GET")
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the CORS-wrapped router.
func (s *Server) Handler() http.Handler { return s.handler }

// Hub returns the websocket hub; it doubles as an events.Publisher for the engine.
func (s *Server) Hub() *Hub { return s.hub }

// Start runs the websocket hub and serves HTTP on addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	go s.hub.Run(ctx)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Infow("api_server_starting", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		s.logger.Infow("api_server_stopped", "err", err)
		return err
	}
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleListSecurities(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, s.engine.Securities())
}

func (s *Server) handleGetSecurity(w http.ResponseWriter, r *http.Request) {
	info, err := s.engine.Lookup(mux.Vars(r)["ticker"])
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, info)
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	info, err := s.engine.Lookup(mux.Vars(r)["ticker"])
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	view, err := s.engine.Book(info.ID)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, view)
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	info, err := s.engine.Lookup(mux.Vars(r)["ticker"])
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	hist, err := s.engine.History(info.ID)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	n, ok := queryLimit(r, len(hist), len(hist))
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid limit", "")
		return
	}
	hist = hist[len(hist)-n:]
	respondJSON(w, hist)
}

func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	info, err := s.engine.Lookup(mux.Vars(r)["ticker"])
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	if s.trades == nil {
		respondJSON(w, []exchange.Trade{})
		return
	}
	limit, ok := queryLimit(r, defaultTradeLimit, maxTradeLimit)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid limit", "")
		return
	}
	trades, err := s.trades.LoadRecentTrades(info.ID, limit)
	if err != nil {
		s.logger.Errorw("trade_log_read_failed", "security", info.ID, "err", err)
		respondError(w, http.StatusInternalServerError, "failed to read trades", "")
		return
	}
	if trades == nil {
		trades = []exchange.Trade{}
	}
	respondJSON(w, trades)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, ok := userParam(w, mux.Vars(r)["id"])
	if !ok {
		return
	}
	respondJSON(w, s.engine.Portfolio(user))
}

func (s *Server) handleGetUserOrders(w http.ResponseWriter, r *http.Request) {
	user, ok := userParam(w, mux.Vars(r)["id"])
	if !ok {
		return
	}
	orders := s.engine.ListPending(user)
	if orders == nil {
		orders = []orderbook.Order{}
	}
	respondJSON(w, orders)
}

func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req SubmitOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	user, ok := userParam(w, req.User)
	if !ok {
		return
	}
	side, ok := orderbook.ParseSide(req.Side)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid side", "expected buy or sell")
		return
	}
	var kind orderbook.Kind
	switch strings.ToLower(req.Kind) {
	case "":
		kind = orderbook.Market
		if req.Price > 0 {
			kind = orderbook.Limit
		}
	case "limit":
		kind = orderbook.Limit
	case "market":
		kind = orderbook.Market
	default:
		respondError(w, http.StatusBadRequest, "invalid kind", "expected limit or market")
		return
	}
	info, err := s.engine.Lookup(req.Ticker)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}

	res, err := s.engine.Submit(orderbook.Order{
		Owner:    user,
		Side:     side,
		Kind:     kind,
		Security: info.ID,
		Volume:   req.Volume,
		Price:    req.Price,
	})
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, orderResponse(res))
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	var req CancelOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	user, ok := userParam(w, req.User)
	if !ok {
		return
	}
	if req.OrderID == 0 {
		respondError(w, http.StatusBadRequest, "missing orderId", "")
		return
	}
	o, err := s.engine.Cancel(user, req.OrderID)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, o)
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req CommandRequest
	if !decodeBody(w, r, &req) {
		return
	}
	user, ok := userParam(w, req.User)
	if !ok {
		return
	}
	// the reply is meant for the chat user even when the command failed
	reply, _ := s.dispatcher.Handle(r.Context(), user, req.Text)
	respondJSON(w, CommandResponse{Reply: reply})
}

func (s *Server) handleMessageActivity(w http.ResponseWriter, r *http.Request) {
	var req MessageActivityRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if s.tracker == nil {
		respondError(w, http.StatusServiceUnavailable, "activity tracking disabled", "")
		return
	}
	if !util.ValidSnowflake(req.Guild) || !util.ValidSnowflake(req.Author) {
		respondError(w, http.StatusBadRequest, "invalid guild or author id", "")
		return
	}
	s.tracker.RecordMessage(orderbook.SecurityID(req.Guild), orderbook.UserID(req.Author))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMembers(w http.ResponseWriter, r *http.Request) {
	var req MembersRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if s.tracker == nil {
		respondError(w, http.StatusServiceUnavailable, "activity tracking disabled", "")
		return
	}
	if !util.ValidSnowflake(req.Guild) || req.Members < 0 {
		respondError(w, http.StatusBadRequest, "invalid guild id or member count", "")
		return
	}
	s.tracker.SetMembers(orderbook.SecurityID(req.Guild), req.Members)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExchangeStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, ExchangeStatus{
		Halted:     s.engine.Halted(),
		Securities: len(s.engine.Securities()),
	})
}

func (s *Server) handleHalt(w http.ResponseWriter, r *http.Request) {
	s.setHalted(w, r, s.engine.Halt)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.setHalted(w, r, s.engine.Resume)
}

func (s *Server) setHalted(w http.ResponseWriter, r *http.Request, fn func(orderbook.UserID) error) {
	var req AdminRequest
	if !decodeBody(w, r, &req) {
		return
	}
	user, ok := userParam(w, req.User)
	if !ok {
		return
	}
	if err := fn(user); err != nil {
		s.respondEngineError(w, err)
		return
	}
	s.handleExchangeStatus(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]any{
		"status":  "ok",
		"halted":  s.engine.Halted(),
		"clients": s.hub.Clients(),
	})
}

// ==============================
// Helper Functions
// ==============================

func respondJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, reason string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   reason,
		Message: message,
	})
}

// respondEngineError maps an engine error kind to a status code. The error field holds
// the same text the chat dispatcher would reply with.
func (s *Server) respondEngineError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Errorw("api_request_failed", "err", err)
	}
	respondError(w, status, command.Message(err), err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, exchange.ErrUnknownSecurity), errors.Is(err, exchange.ErrInvalidOrderID):
		return http.StatusNotFound
	case errors.Is(err, exchange.ErrInvalidOrder), errors.Is(err, exchange.ErrTickerInvalid):
		return http.StatusBadRequest
	case errors.Is(err, exchange.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, exchange.ErrTradingHalted), errors.Is(err, exchange.ErrTickerConflict), errors.Is(err, exchange.ErrAlreadyListed):
		return http.StatusConflict
	case errors.Is(err, exchange.ErrInsufficientFunds), errors.Is(err, exchange.ErrInsufficientHoldings):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return false
	}
	return true
}

func userParam(w http.ResponseWriter, id string) (orderbook.UserID, bool) {
	if !util.ValidSnowflake(id) {
		respondError(w, http.StatusBadRequest, "invalid user id", id)
		return "", false
	}
	return orderbook.UserID(id), true
}

// queryLimit parses ?limit=, returning def when absent and capping at ceiling.
func queryLimit(r *http.Request, def, ceiling int) (int, bool) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return min(n, ceiling), true
}
