package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"swapmarket/native/fa2"
	"swapmarket/native/marketplace"
	"swapmarket/observability"
	"swapmarket/observability/logging"
	"swapmarket/state/bank"
)

// Config defines HTTP server parameters.
type Config struct {
	ListenAddress string
	RateLimit     RateLimit
}

// Server exposes the marketplace operations over HTTP. Mutating calls run one
// at a time.
type Server struct {
	cfg     Config
	engine  *marketplace.Engine
	bank    *bank.Ledger
	tokens  *fa2.Registry
	auth    *Authenticator
	limiter *RateLimiter
	logger  *slog.Logger

	// mu serialises every state-changing call; views hold the read side so they
	// only observe state between calls.
	mu     sync.RWMutex
	router http.Handler
}

// New constructs a server over the marketplace runtime.
func New(cfg Config, engine *marketplace.Engine, ledger *bank.Ledger, tokens *fa2.Registry, auth *Authenticator, logger *slog.Logger) (*Server, error) {
	if engine == nil || ledger == nil || tokens == nil {
		return nil, fmt.Errorf("marketplace runtime required")
	}
	if auth == nil {
		return nil, fmt.Errorf("authenticator required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:     cfg,
		engine:  engine,
		bank:    ledger,
		tokens:  tokens,
		auth:    auth,
		limiter: NewRateLimiter(cfg.RateLimit),
		logger:  logger,
	}
	if current, err := engine.Config(); err == nil {
		observability.Marketplace().SetPaused(current.Paused)
	}
	s.router = s.buildRouter()
	return s, nil
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(requestID)
	r.Use(chimw.Recoverer)
	r.Use(s.observe)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(api chi.Router) {
		api.Group(func(public chi.Router) {
			public.Use(s.limiter.Middleware)
			public.Get("/config", s.handleConfig)
			public.Get("/offers", s.handleListOffers)
			public.Get("/offers/{id}", s.handleGetOffer)
			public.Get("/fa2/{contract}", s.handleAllowed)
			public.Get("/accounts/{address}/balance", s.handleAccountBalance)
			public.Get("/tokens/{contract}/{tokenID}/balances/{owner}", s.handleTokenBalance)
		})
		api.Group(func(protected chi.Router) {
			protected.Use(s.auth.Middleware)
			protected.Use(s.limiter.Middleware)
			protected.Post("/offers", s.handleCreateOffer)
			protected.Post("/offers/{id}/collect", s.handleCollect)
			protected.Post("/offers/{id}/cancel", s.handleCancel)
			protected.Post("/tokens/{contract}/{tokenID}/operators", s.handleOperator)
			protected.Route("/admin", func(admin chi.Router) {
				admin.Post("/fee", s.handleUpdateFee)
				admin.Post("/fee-recipient", s.handleUpdateFeeRecipient)
				admin.Post("/manager", s.handleUpdateManager)
				admin.Post("/fa2/add", s.handleAddFA2)
				admin.Post("/fa2/remove", s.handleRemoveFA2)
				admin.Post("/pause", s.handleSetPause)
			})
		})
	})
	return otelhttp.NewHandler(r, "marketd")
}

// Run starts the HTTP server and blocks until context cancellation.
func (s *Server) Run(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("server not configured")
	}
	srv := &http.Server{
		Addr:              s.cfg.ListenAddress,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("http server listening", slog.String("listen", s.cfg.ListenAddress))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen and serve: %w", err)
	}
	return nil
}

type requestIDKey struct{}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// observe records request metrics under the matched route pattern.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		observability.HTTP().Observe(route, r.Method, recorder.status, time.Since(start))
		id, _ := r.Context().Value(requestIDKey{}).(string)
		s.logger.Debug("request served",
			slog.String("route", route),
			slog.Int("status", recorder.status),
			slog.String("requestId", id),
			logging.MaskField("remote", r.RemoteAddr))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	paused := s.engine.IsPaused(marketplace.ModuleName)
	s.mu.RUnlock()
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "paused": paused})
}
