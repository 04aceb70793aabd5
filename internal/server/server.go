package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/zetatrigger/internal/crypto"
	"github.com/alanyoungcy/zetatrigger/internal/domain"
	"github.com/alanyoungcy/zetatrigger/internal/server/handler"
	"github.com/alanyoungcy/zetatrigger/internal/server/middleware"
	"github.com/alanyoungcy/zetatrigger/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
	RateLimit   int    // requests per RateWindow per client IP; 0 disables
	RateWindow  time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health   *handler.HealthHandler
	Accounts *handler.AccountHandler
	Orders   *handler.OrderHandler
	Prices   *handler.PriceHandler
	Engine   *handler.EngineHandler
	Tickets  *handler.TicketHandler
	Gateway  *handler.GatewayHandler
}

// Deps are the optional collaborators of the middleware chain.
type Deps struct {
	Hub     *ws.Hub
	Limiter domain.RateLimiter
	Webhook *crypto.WebhookAuth
}

// Server is the HTTP + WebSocket API.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// NewServer registers every route and wraps the mux in
// rate limit, auth, logging and CORS, innermost first.
func NewServer(cfg Config, h Handlers, deps Deps, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "server"))
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", h.Health.HealthCheck)

	mux.HandleFunc("GET /api/accounts/{address}/balances", h.Accounts.Balances)
	mux.HandleFunc("POST /api/accounts/{address}/deposit", h.Accounts.Deposit)
	mux.HandleFunc("POST /api/accounts/{address}/withdraw", h.Accounts.Withdraw)
	mux.HandleFunc("GET /api/accounts/{address}/active-order", h.Orders.ActiveOrder)
	mux.HandleFunc("GET /api/accounts/{address}/orders", h.Orders.ListOrders)

	mux.HandleFunc("POST /api/orders", h.Orders.CreateOrder)
	mux.HandleFunc("GET /api/orders/{id}", h.Orders.GetOrder)
	mux.HandleFunc("DELETE /api/orders/{id}", h.Orders.CancelOrder)

	mux.HandleFunc("GET /api/price", h.Prices.GetPrice)
	mux.HandleFunc("POST /api/engine/trigger", h.Engine.Trigger)
	mux.HandleFunc("GET /api/tickets", h.Tickets.ListTickets)

	if h.Gateway != nil {
		mux.Handle("POST /api/gateway/receive", middleware.Webhook(deps.Webhook)(http.HandlerFunc(h.Gateway.Receive)))
	}
	if deps.Hub != nil {
		mux.HandleFunc("GET /ws", deps.Hub.HandleWS)
	}

	var root http.Handler = mux
	if deps.Limiter != nil && cfg.RateLimit > 0 {
		root = middleware.RateLimit(deps.Limiter, cfg.RateLimit, cfg.RateWindow, logger)(root)
	}
	// Health and the relayer webhook carry their own access rules.
	root = middleware.Auth(cfg.APIKey, "/api/health", "/api/gateway/receive")(root)
	root = middleware.Logging(logger)(root)
	root = middleware.CORS(cfg.CORSOrigins)(root)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           root,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		handler: root,
		logger:  logger,
	}
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start blocks serving requests until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("listening", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
