// internal/api/server.go
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/newthinker/brokerhub/internal/api/handler"
	"github.com/newthinker/brokerhub/internal/api/middleware"
	"github.com/newthinker/brokerhub/internal/api/response"
	"github.com/newthinker/brokerhub/internal/connection"
	"github.com/newthinker/brokerhub/internal/metrics"
	"github.com/newthinker/brokerhub/internal/portfolio"
	"github.com/newthinker/brokerhub/internal/trading"
)

// Server is the HTTP server exposing the brokerage aggregation API.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
}

// Config holds server configuration.
type Config struct {
	Host   string
	Port   int
	APIKey string
	// MetricsPath serves the Prometheus endpoint when non-empty.
	MetricsPath string
}

// Deps carries the services the handlers depend on.
type Deps struct {
	Manager    *connection.Manager
	Aggregator *portfolio.Aggregator
	Trading    *trading.Service
	Metrics    *metrics.Registry
}

// NewServer creates the HTTP server and mounts all routes.
func NewServer(cfg Config, deps Deps, logger *zap.Logger) *Server {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(metrics.LoggingMiddleware(logger))
	if deps.Metrics != nil {
		r.Use(metrics.HTTPMiddleware(deps.Metrics))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-API-Key", "X-User-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		response.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if deps.Metrics != nil && cfg.MetricsPath != "" {
		r.Handle(cfg.MetricsPath, promhttp.HandlerFor(deps.Metrics.Registry, promhttp.HandlerOpts{}))
	}

	connections := handler.NewConnectionsHandler(deps.Manager)
	portfolios := handler.NewPortfolioHandler(deps.Aggregator)
	orders := handler.NewTradingHandler(deps.Trading)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(cfg.APIKey))
		r.Use(middleware.UserID())

		r.Route("/connections", func(r chi.Router) {
			r.Post("/", connections.Initiate)
			r.Post("/complete", connections.Complete)
			r.Get("/", connections.List)
			r.Get("/{connectionID}", connections.Get)
			r.Post("/{connectionID}/refresh", connections.Refresh)
			r.Delete("/{connectionID}", connections.Disconnect)
		})

		r.Get("/accounts", connections.ListAccounts)

		r.Route("/portfolio", func(r chi.Router) {
			r.Get("/summary", portfolios.Summary)
			r.Get("/positions", portfolios.Positions)
			r.Get("/positions/{symbol}", portfolios.PositionBySymbol)
			r.Get("/balances", portfolios.Balances)
		})

		r.Get("/quotes", portfolios.Quotes)

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", orders.List)
			r.Post("/", orders.Place)
			r.Post("/preview", orders.Preview)
			r.Delete("/{brokerID}/{accountID}/{orderID}", orders.Cancel)
		})
	})

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:      r,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
