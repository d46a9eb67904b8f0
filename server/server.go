package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"basketfund/history"
	"basketfund/native/fund"
	"basketfund/native/token"
	"basketfund/observability"
)

// Config captures the server runtime settings.
type Config struct {
	ListenAddress string
}

// Server exposes the fund workflows over HTTP.
type Server struct {
	cfg     Config
	engine  *fund.Engine
	ledger  *token.Ledger
	store   *history.Store
	auth    *Authenticator
	logger  *slog.Logger
	metrics *observability.FundMetrics
}

// New wires the HTTP surface. The history store may be nil, in which
// case the audit routes respond 404.
func New(cfg Config, engine *fund.Engine, ledger *token.Ledger, store *history.Store, auth *Authenticator, logger *slog.Logger) (*Server, error) {
	if engine == nil {
		return nil, errors.New("server: engine required")
	}
	if ledger == nil {
		return nil, errors.New("server: ledger required")
	}
	if auth == nil {
		return nil, errors.New("server: authenticator required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":7085"
	}
	return &Server{
		cfg:     cfg,
		engine:  engine,
		ledger:  ledger,
		store:   store,
		auth:    auth,
		logger:  logger,
		metrics: observability.Fund(),
	}, nil
}

// Handler assembles the route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1/fund", func(fr chi.Router) {
		fr.Get("/price", s.handlePrice)
		fr.Get("/snapshot", s.handleSnapshot)

		fr.Group(func(tr chi.Router) {
			tr.Use(s.auth.Middleware(ScopeTrade))
			tr.Post("/buy", s.handleBuy)
			tr.Post("/sell", s.handleSell)
		})
		fr.Group(func(ar chi.Router) {
			ar.Use(s.auth.Middleware(ScopeAdmin))
			ar.Post("/initialize", s.handleInitialize)
			ar.Post("/register-venue", s.handleRegisterVenue)
			ar.Post("/rebalance", s.handleRebalance)
			ar.Post("/refresh", s.handleRefresh)
		})
	})

	r.Route("/v1/token", func(tr chi.Router) {
		tr.Get("/supply", s.handleSupply)
		tr.Get("/metadata", s.handleMetadata)
		tr.Get("/balance/{account}", s.handleBalance)
		tr.Group(func(ar chi.Router) {
			ar.Use(s.auth.Middleware(ScopeTrade))
			ar.Post("/transfer", s.handleTransfer)
		})
	})

	r.Route("/v1/history", func(hr chi.Router) {
		hr.Use(s.auth.Middleware(ScopeAdmin))
		hr.Get("/workflows", s.handleWorkflows)
		hr.Get("/export", s.handleExport)
	})

	return r
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddress,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Info("fund API listening", "addr", s.cfg.ListenAddress)
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// observe records a workflow run in the metrics registry.
func (s *Server) observe(kind string, start time.Time, err error) {
	outcome := "completed"
	if err != nil {
		outcome = "failed"
	}
	s.metrics.ObserveWorkflow(kind, outcome, time.Since(start))
}
