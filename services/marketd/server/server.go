package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"

	coreerrors "nhbmarket/core/errors"
	"nhbmarket/core/types"
	"nhbmarket/native/market"
	"nhbmarket/observability"
	"nhbmarket/observability/metrics"
	telemetry "nhbmarket/observability/otel"
	"nhbmarket/services/marketd/storage"
)

const rpcModule = "market"

// Ledger is the value and asset ledger the daemon settles against. Deposits
// for buy and placeBid are taken from it, and dev methods seed it.
type Ledger interface {
	Transfer(ctx context.Context, from, to [20]byte, amount *big.Int) error
	RegisterAsset(key types.AssetKey, owner [20]byte) error
	Credit(addr [20]byte, amount *big.Int) error
	Balance(addr [20]byte) (*big.Int, error)
	Owner(key types.AssetKey) ([20]byte, bool, error)
}

// EventLog serves market_listEvents.
type EventLog interface {
	ListEvents(ctx context.Context, filter storage.Filter) ([]storage.EventRecord, error)
}

// Config defines HTTP server parameters.
type Config struct {
	ListenAddress   string
	BearerToken     string
	DevMode         bool
	RateLimit       RateLimit
	ShutdownTimeout time.Duration
	// Now supplies the default command time. Defaults to time.Now.
	Now func() time.Time
}

type handlerFunc func(ctx context.Context, req *RPCRequest) (interface{}, error)

type method struct {
	handler  handlerFunc
	mutating bool
}

// Server exposes the marketplace engine over JSON-RPC.
type Server struct {
	cfg     Config
	engine  *market.Engine
	ledger  Ledger
	events  EventLog
	hub     *Hub
	logger  *slog.Logger
	auth    *Authenticator
	limiter *rateLimiter
	now     func() time.Time
	methods map[string]method
	router  http.Handler
}

// New constructs a server. events and hub may be nil.
func New(cfg Config, engine *market.Engine, ledger Ledger, events EventLog, hub *Hub, logger *slog.Logger) (*Server, error) {
	if engine == nil {
		return nil, fmt.Errorf("market engine required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("ledger required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	srv := &Server{
		cfg:     cfg,
		engine:  engine,
		ledger:  ledger,
		events:  events,
		hub:     hub,
		logger:  logger,
		auth:    NewAuthenticator(cfg.BearerToken),
		limiter: newRateLimiter(cfg.RateLimit, now),
		now:     now,
	}
	srv.methods = srv.buildMethods()
	srv.router = srv.buildRouter()
	return srv, nil
}

func (s *Server) buildMethods() map[string]method {
	methods := map[string]method{
		"market_list":                 {handler: s.handleList, mutating: true},
		"market_buy":                  {handler: s.handleBuy, mutating: true},
		"market_releaseEscrow":        {handler: s.handleReleaseEscrow, mutating: true},
		"market_changePrice":          {handler: s.handleChangePrice, mutating: true},
		"market_unlist":               {handler: s.handleUnlist, mutating: true},
		"market_startAuction":         {handler: s.handleStartAuction, mutating: true},
		"market_placeBid":             {handler: s.handlePlaceBid, mutating: true},
		"market_endAuction":           {handler: s.handleEndAuction, mutating: true},
		"market_releaseEscrowTimeout": {handler: s.handleReleaseEscrowTimeout, mutating: true},
		"market_setFeePercentage":     {handler: s.handleSetFeePercentage, mutating: true},
		"market_getListing":           {handler: s.handleGetListing},
		"market_getAuction":           {handler: s.handleGetAuction},
		"market_getEscrow":            {handler: s.handleGetEscrow},
		"market_getFee":               {handler: s.handleGetFee},
		"market_listEvents":           {handler: s.handleListEvents},
	}
	if s.cfg.DevMode {
		methods["dev_registerAsset"] = method{handler: s.handleDevRegisterAsset, mutating: true}
		methods["dev_credit"] = method{handler: s.handleDevCredit, mutating: true}
		methods["dev_balance"] = method{handler: s.handleDevBalance}
		methods["dev_owner"] = method{handler: s.handleDevOwner}
	}
	return methods
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/rpc", s.handleRPC)
	r.Get("/ws/events", s.handleEventsWS)
	return otelhttp.NewHandler(r, "marketd")
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run starts the HTTP server and blocks until context cancellation.
func (s *Server) Run(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("server not configured")
	}
	srv := &http.Server{Addr: s.cfg.ListenAddress, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("http server listening", "address", s.cfg.ListenAddress, "devMode", s.cfg.DevMode)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen and serve: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	start := time.Now()

	req, status, rpcErr := readRequest(w, r)
	if rpcErr != nil {
		var id json.RawMessage
		if req != nil {
			id = req.ID
		}
		writeError(w, status, id, rpcErr)
		return
	}
	if !s.limiter.allow(clientID(r)) {
		observability.ModuleMetrics().RecordThrottle(rpcModule, "rate_limit")
		writeError(w, http.StatusTooManyRequests, req.ID, &RPCError{Code: codeRateLimited, Message: "rate limit exceeded"})
		return
	}
	m, found := s.methods[req.Method]
	if !found {
		writeError(w, http.StatusNotFound, req.ID, &RPCError{Code: codeMethodNotFound, Message: "method not found", Data: req.Method})
		return
	}
	if m.mutating {
		if authErr := s.auth.Check(r); authErr != nil {
			s.observe(req.Method, authErr, time.Since(start))
			writeError(w, http.StatusUnauthorized, req.ID, authErr)
			return
		}
	}

	ctx, span := telemetry.StartCommand(r.Context(), req.Method, attribute.Bool("market.mutating", m.mutating))
	result, err := m.handler(ctx, req)
	telemetry.EndCommand(span, err)

	if err != nil {
		mapped := marketError(err)
		s.observe(req.Method, mapped, time.Since(start))
		if m.mutating {
			metrics.Market().ObserveCommand(req.Method, coreerrors.KindOf(err).String())
		}
		s.logger.Warn("rpc command rejected",
			"method", req.Method,
			"code", mapped.Code,
			"kind", coreerrors.KindOf(err).String(),
			"error", err.Error(),
			"duration", time.Since(start))
		writeError(w, httpStatus(mapped), req.ID, mapped)
		return
	}
	s.observe(req.Method, nil, time.Since(start))
	if m.mutating {
		metrics.Market().ObserveCommand(req.Method, "")
		s.logger.Info("rpc command applied", "method", req.Method, "duration", time.Since(start))
	}
	writeResult(w, req.ID, result)
}

func (s *Server) observe(method string, rpcErr *RPCError, duration time.Duration) {
	code := 0
	if rpcErr != nil {
		code = rpcErr.Code
	}
	observability.ModuleMetrics().Observe(rpcModule, method, code, duration)
}
