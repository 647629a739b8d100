package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"sovereign/native/governance"
	"sovereign/native/sovereign"
	"sovereign/observability"
	"sovereign/services/sovereignd/journal"
)

// Config defines HTTP server parameters.
type Config struct {
	ListenAddress      string
	AllowedOrigins     []string
	StreamWriteTimeout time.Duration
	ShutdownTimeout    time.Duration
}

// Journal persists receipts of committed intents.
type Journal interface {
	Record(ctx context.Context, receipt *sovereign.Receipt) (*journal.Entry, error)
	Get(ctx context.Context, id uuid.UUID) (*journal.Entry, error)
	List(ctx context.Context, filter journal.Filter) ([]journal.Entry, error)
}

// Deps are the collaborators the server dispatches to.
type Deps struct {
	Sovereigns *sovereign.Engine
	Governance *governance.Engine
	Journal    Journal
	Hub        *Hub
	Auth       *AdminAuth
	Limiter    *RateLimiter
	Pauses     *PauseSet
	Metrics    *observability.SovereignMetrics
	Logger     *slog.Logger
}

// Server exposes the settlement engine over HTTP and websocket.
type Server struct {
	cfg        Config
	sovereigns *sovereign.Engine
	governance *governance.Engine
	journal    Journal
	hub        *Hub
	auth       *AdminAuth
	limiter    *RateLimiter
	pauses     *PauseSet
	metrics    *observability.SovereignMetrics
	logger     *slog.Logger
}

// New constructs the server.
func New(cfg Config, deps Deps) (*Server, error) {
	if deps.Sovereigns == nil {
		return nil, errors.New("sovereign engine required")
	}
	if deps.Governance == nil {
		return nil, errors.New("governance engine required")
	}
	if deps.Auth == nil {
		return nil, errors.New("admin authenticator required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Hub == nil {
		deps.Hub = NewHub(0, deps.Metrics, deps.Logger)
	}
	if deps.Pauses == nil {
		deps.Pauses = NewPauseSet()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	return &Server{
		cfg:        cfg,
		sovereigns: deps.Sovereigns,
		governance: deps.Governance,
		journal:    deps.Journal,
		hub:        deps.Hub,
		auth:       deps.Auth,
		limiter:    deps.Limiter,
		pauses:     deps.Pauses,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
	}, nil
}

// Handler builds the routed and instrumented HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/stream", s.handleStream)
		r.Get("/accounts/{address}", s.handleAccount)
		r.Get("/receipts", s.handleReceipts)
		r.Get("/receipts/{receiptID}", s.handleReceipt)

		r.Route("/sovereigns", func(r chi.Router) {
			r.Get("/", s.handleList)
			r.With(s.limiter.Middleware("intents")).Post("/", s.intent("createSovereign", moduleSovereign, s.createSovereign))

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleView)
				r.Get("/quote/buy", s.handleQuoteBuy)
				r.Get("/quote/sell", s.handleQuoteSell)
				r.Get("/holders/{address}", s.handleHolder)
				r.Get("/proposals", s.handleProposals)
				r.Get("/proposals/{pid}", s.handleProposal)
				r.Get("/proposals/{pid}/votes", s.handleVotes)

				r.Group(func(r chi.Router) {
					r.Use(s.limiter.Middleware("intents"))
					for _, route := range s.sovereignIntents() {
						r.Post("/"+route.path, s.intent(route.name, moduleSovereign, route.fn))
					}
					r.Post("/proposals", s.intent("proposeUnwind", moduleGovernance, s.proposeUnwind))
					r.Post("/proposals/{pid}/vote", s.intent("castVote", moduleGovernance, s.castVote))
					r.Post("/proposals/{pid}/finalize", s.intent("finalizeVote", moduleGovernance, s.finalizeVote))
					r.Post("/proposals/{pid}/execute", s.intent("executeUnwind", moduleGovernance, s.executeUnwind))
					r.Post("/proposals/{pid}/cancel", s.intent("cancelProposal", moduleGovernance, s.cancelProposal))
				})
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.auth.Middleware)
			r.Post("/sovereigns/{id}/halt", s.intent("halt", moduleAdmin, s.halt))
			r.Post("/sovereigns/{id}/resume", s.intent("resume", moduleAdmin, s.resume))
			r.Post("/sovereigns/{id}/retire", s.intent("retire", moduleAdmin, s.retire))
			r.Post("/accounts/{address}/fund", s.handleFund)
			r.Get("/modules", s.handleModules)
			r.Post("/modules/{module}/pause", s.handleModulePause(true))
			r.Post("/modules/{module}/resume", s.handleModulePause(false))
		})
	})
	return otelhttp.NewHandler(r, "sovereignd")
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddress,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("http server listening", "address", s.cfg.ListenAddress)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen and serve: %w", err)
	}
	return nil
}
