// Package server exposes the market engine over HTTP and WebSocket.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/verdictlabs/casemarket/internal/server/handler"
	"github.com/verdictlabs/casemarket/internal/server/middleware"
	"github.com/verdictlabs/casemarket/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKeys     []string // if empty, authentication is disabled
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health    *handler.HealthHandler
	Markets   *handler.MarketHandler
	Bets      *handler.BetHandler
	Liquidity *handler.LiquidityHandler
	Accounts  *handler.AccountHandler
	Audit     *handler.AuditHandler
	Events    *handler.EventsHandler
}

// Server is the HTTP + WebSocket API server for the market engine.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS, auth) and attaches the WebSocket hub.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// --- Register routes ---

	// Health check.
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Market lifecycle.
	mux.HandleFunc("GET /api/markets", handlers.Markets.ListMarkets)
	mux.HandleFunc("POST /api/markets", handlers.Markets.CreateMarket)
	mux.HandleFunc("GET /api/markets/{id}", handlers.Markets.GetMarket)
	mux.HandleFunc("GET /api/markets/{id}/prices", handlers.Markets.GetPrices)
	mux.HandleFunc("POST /api/markets/{id}/close", handlers.Markets.CloseMarket)
	mux.HandleFunc("POST /api/markets/{id}/settle", handlers.Markets.SettleMarket)

	// Bets.
	mux.HandleFunc("GET /api/markets/{id}/bets", handlers.Bets.ListMarketBets)
	mux.HandleFunc("POST /api/markets/{id}/bets", handlers.Bets.PlaceBet)
	mux.HandleFunc("GET /api/markets/{id}/bets/{seq}", handlers.Bets.GetBet)
	mux.HandleFunc("POST /api/markets/{id}/bets/{seq}/claim", handlers.Bets.ClaimBet)
	mux.HandleFunc("GET /api/users/{user}/bets", handlers.Bets.ListUserBets)

	// Custody accounts.
	mux.HandleFunc("POST /api/users/{user}/deposit", handlers.Accounts.Deposit)
	mux.HandleFunc("GET /api/users/{user}/balance", handlers.Accounts.Balance)

	// Liquidity.
	mux.HandleFunc("POST /api/markets/{id}/liquidity", handlers.Liquidity.AddLiquidity)
	mux.HandleFunc("POST /api/markets/{id}/liquidity/withdraw", handlers.Liquidity.RemoveLiquidity)

	// Audit log and event stream replay.
	mux.HandleFunc("GET /api/audit", handlers.Audit.ListAudit)
	mux.HandleFunc("GET /api/streams/{stream}", handlers.Events.ReadStream)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain.
	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKeys)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
