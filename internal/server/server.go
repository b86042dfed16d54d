// Package server wires the trackcache components together and runs the
// HTTP listener.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/piwi3910/trackcache/internal/api"
	apimiddleware "github.com/piwi3910/trackcache/internal/api/middleware"
	"github.com/piwi3910/trackcache/internal/cache"
	"github.com/piwi3910/trackcache/internal/config"
	"github.com/piwi3910/trackcache/internal/content"
	"github.com/piwi3910/trackcache/internal/health"
	"github.com/piwi3910/trackcache/internal/httputil"
	"github.com/piwi3910/trackcache/internal/jobs"
	"github.com/piwi3910/trackcache/internal/metrics"
	"github.com/piwi3910/trackcache/internal/priming"
	"github.com/piwi3910/trackcache/internal/provider/genius"
	"github.com/piwi3910/trackcache/internal/provider/spotify"
	"github.com/piwi3910/trackcache/internal/provider/translate"
	"github.com/piwi3910/trackcache/internal/provider/youtube"
	"github.com/piwi3910/trackcache/internal/storage/backend"
	"github.com/piwi3910/trackcache/internal/storage/badger"
	"github.com/piwi3910/trackcache/internal/storage/compression"
	"github.com/piwi3910/trackcache/internal/storage/memory"
	"github.com/piwi3910/trackcache/internal/storage/redis"
)

// shutdownTimeout bounds the HTTP drain and the job queue drain together.
const shutdownTimeout = 30 * time.Second

// Server is the trackcache server
type Server struct {
	cfg *config.Config

	// Core services
	store      backend.Backend
	closer     io.Closer
	cache      *cache.Coordinator
	dispatcher *jobs.Dispatcher
	content    *content.Orchestrator
	priming    *priming.Tracker

	// Health checker
	healthChecker *health.Checker

	httpServer *http.Server
}

// New creates a new server from cfg
func New(cfg *config.Config) (*Server, error) {
	srv := &Server{cfg: cfg}

	store, closer, err := openBackend(cfg)
	if err != nil {
		return nil, err
	}
	srv.store, srv.closer = store, closer

	codec, err := compression.NewCodec(cfg.Storage.Compression)
	if err != nil {
		_ = closer.Close()
		return nil, fmt.Errorf("failed to create entry codec: %w", err)
	}

	srv.cache = cache.New(store, codec, cfg.CacheSettings())
	srv.dispatcher = jobs.NewDispatcher(cfg.JobsSettings())

	httpClient := httputil.NewClientWithTimeout(cfg.HTTPTimeout())

	translator, err := translate.New(cfg.Providers.Translate, httpClient)
	if err != nil {
		_ = closer.Close()
		return nil, fmt.Errorf("failed to create translator: %w", err)
	}

	srv.content = content.New(srv.cache, srv.dispatcher, content.Providers{
		Lyrics:     genius.New(cfg.Providers.Genius, httpClient),
		Video:      youtube.New(cfg.Providers.YouTube, httpClient),
		Translator: translator,
	}, cfg.ContentSettings())

	srv.priming = priming.NewTracker(store, srv.content, srv.dispatcher, cfg.PrimingSettings())
	srv.healthChecker = health.NewChecker(store, srv.dispatcher)

	handler := api.NewHandler(srv.cache, srv.content, srv.priming, spotify.New(cfg.Providers.Spotify, httpClient))

	srv.httpServer = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      srv.router(handler),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	log.Info().
		Str("backend", cfg.Storage.Backend).
		Int("max_entries", cfg.Cache.MaxEntries).
		Str("compression", string(cfg.Storage.Compression.Algorithm)).
		Msg("Server initialized")

	return srv, nil
}

// openBackend opens the configured storage backend.
func openBackend(cfg *config.Config) (backend.Backend, io.Closer, error) {
	switch cfg.Storage.Backend {
	case config.BackendRedis:
		s := redis.New(cfg.Redis)
		return s, s, nil
	case config.BackendBadger:
		s, err := badger.Open(badger.Config{Dir: cfg.Storage.BadgerDir})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open badger backend: %w", err)
		}
		return s, s, nil
	case config.BackendMemory:
		s := memory.New()
		return s, s, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func (s *Server) router(handler *api.Handler) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apimiddleware.MetricsMiddleware)
	r.Use(apimiddleware.Logger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health endpoints
	healthHandler := health.NewHandler(s.healthChecker)
	r.Get("/health", healthHandler.HealthHandler)
	r.Get("/health/live", healthHandler.LivenessHandler)
	r.Get("/health/ready", healthHandler.ReadinessHandler)
	r.Get("/health/detailed", healthHandler.DetailedHandler)

	// Prometheus metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", handler.RegisterRoutes)

	return r
}

// Handler returns the HTTP handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start runs the server until ctx is cancelled, then drains the listener
// and the job queue and closes the backend.
func (s *Server) Start(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		log.Warn().Err(err).Msg("Storage backend not reachable at startup, serving degraded")
	}

	metrics.Init()
	s.dispatcher.Start()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", s.cfg.ListenAddr).Msg("Starting API server")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("API server error: %w", err)
		}
		return nil
	})

	// Wait for shutdown signal
	g.Go(func() error {
		<-ctx.Done()
		return s.shutdown()
	})

	return g.Wait()
}

func (s *Server) shutdown() error {
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error shutting down API server")
	}

	if err := s.dispatcher.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Job queue did not drain before shutdown")
	}

	if err := s.closer.Close(); err != nil {
		log.Error().Err(err).Msg("Error closing storage backend")
		return err
	}

	log.Info().Msg("Server stopped")
	return nil
}
