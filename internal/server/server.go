// Package server hosts the HTTP API over the statement store and the
// background processing pool.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/cors"

	"github.com/MeherajUlMahmmud/bank-statement-parser/internal/api"
	"github.com/MeherajUlMahmmud/bank-statement-parser/internal/confidence"
	"github.com/MeherajUlMahmmud/bank-statement-parser/internal/config"
	"github.com/MeherajUlMahmmud/bank-statement-parser/internal/jobs"
	"github.com/MeherajUlMahmmud/bank-statement-parser/internal/normalize"
	"github.com/MeherajUlMahmmud/bank-statement-parser/internal/pdf"
	"github.com/MeherajUlMahmmud/bank-statement-parser/internal/pipeline"
	"github.com/MeherajUlMahmmud/bank-statement-parser/internal/providers"
	"github.com/MeherajUlMahmmud/bank-statement-parser/internal/server/endpoints"
	"github.com/MeherajUlMahmmud/bank-statement-parser/internal/storage"
	"github.com/MeherajUlMahmmud/bank-statement-parser/internal/store"
	"github.com/MeherajUlMahmmud/bank-statement-parser/internal/svcctx"
)

// Server is the bankparse HTTP server. It owns the SQLite store, the
// blob store, and the job controller, opening them on Start and
// closing them on shutdown.
type Server struct {
	httpServer    *http.Server
	store         *store.Store
	blobs         *storage.BlobStore
	jobController *jobs.Controller
	configMgr     *config.Manager
	logger        *slog.Logger

	// services holds all core services for context enrichment
	services *svcctx.Services

	// endpoints registry for HTTP routes
	endpointRegistry *api.Registry

	mu      sync.RWMutex
	running bool
}

// Config holds server configuration.
type Config struct {
	// ConfigManager provides configuration with hot-reload support.
	ConfigManager *config.Manager
	// Logger is the structured logger to use.
	Logger *slog.Logger
}

// New creates a new Server with the given configuration. Stores and
// providers are opened in Start; until then init-gated endpoints
// return 503.
func New(cfg Config) (*Server, error) {
	if cfg.ConfigManager == nil {
		return nil, errors.New("config manager is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	c := cfg.ConfigManager.Get()

	s := &Server{
		configMgr: cfg.ConfigManager,
		logger:    cfg.Logger,
	}

	s.endpointRegistry = api.NewRegistry()
	for _, ep := range endpoints.All() {
		s.endpointRegistry.Register(ep)
	}

	mux := http.NewServeMux()
	s.endpointRegistry.RegisterRoutes(mux, s.requireInit)

	corsMiddleware := cors.Handler(cors.Options{
		AllowedOrigins:   c.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	})

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(c.Server.Host, c.Server.Port),
		Handler:      corsMiddleware(s.withServices(mux)),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Start opens the stores, wires the processing pipeline, launches the
// job workers, and serves HTTP. It blocks until the context is
// cancelled or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	c := s.configMgr.Get()

	st, err := store.Open(c.Database.Driver, c.Database.DSN, s.logger)
	if err != nil {
		s.setNotRunning()
		return fmt.Errorf("failed to open store: %w", err)
	}
	s.store = st

	blobs, err := storage.NewBlobStore(c.Storage.UploadDir, s.logger)
	if err != nil {
		s.setNotRunning()
		s.store.Close()
		return fmt.Errorf("failed to open blob store: %w", err)
	}
	s.blobs = blobs

	completer := providers.NewOpenAICompleter(providers.OpenAIConfig{
		BaseURL:     c.LLM.BaseURL,
		APIKey:      c.ResolveAPIKey(),
		Model:       c.LLM.Model,
		Temperature: c.LLM.Temperature,
		MaxTokens:   c.LLM.MaxTokens,
		Timeout:     c.LLM.Timeout,
		MaxRetries:  c.LLM.MaxRetries,
		RetryDelay:  c.LLM.RetryDelay,
	})
	ocr := providers.NewOlmOCRClient(providers.OlmOCRConfig{
		BaseURL:    c.OCR.BaseURL,
		Timeout:    c.OCR.Timeout,
		MaxRetries: c.OCR.MaxRetries,
		RetryDelay: c.OCR.RetryDelay,
		Logger:     s.logger,
	})

	rasterizer := pdf.NewRasterizer(c.PDF.DPI, c.PDF.MaxRenderers, s.logger)
	normalizer := normalize.NewNormalizer(c.PII.Mask, c.PII.MaskChar, c.PII.ShowLast, s.logger)
	scorer := confidence.NewScorer(
		c.Confidence.HeuristicWeight, c.Confidence.ModelWeight, c.Confidence.Threshold, s.logger)

	pipe := pipeline.New(rasterizer, ocr, completer, normalizer, scorer, c.PDF.CleanupTemp, s.logger)

	s.jobController = jobs.NewController(s.store, s.blobs, pipe, rasterizer, jobs.Config{
		Workers:           c.Jobs.Workers,
		QueueSize:         c.Jobs.QueueSize,
		MaxUploadSize:     c.Storage.MaxUploadSize,
		AllowedExtensions: c.Storage.AllowedExtensions,
		StaleAfter:        c.Jobs.StaleAfter,
	}, s.logger)

	s.mu.Lock()
	s.services = &svcctx.Services{
		Store:     s.store,
		Blobs:     s.blobs,
		Jobs:      s.jobController,
		OCR:       ocr,
		Completer: completer,
		ConfigMgr: s.configMgr,
		Logger:    s.logger,
	}
	s.mu.Unlock()

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	go s.jobController.Start(workerCtx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			stopWorkers()
			_ = s.shutdown()
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	stopWorkers()
	return s.shutdown()
}

// shutdown drains the HTTP server and closes the store.
func (s *Server) shutdown() error {
	s.logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Error("store close error", "error", err)
		}
	}

	s.setNotRunning()
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) setNotRunning() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Store returns the statement store. Nil until Start.
func (s *Server) Store() *store.Store {
	return s.store
}

// JobController returns the job controller. Nil until Start.
func (s *Server) JobController() *jobs.Controller {
	return s.jobController
}

// withServices wraps a handler to enrich the request context with services.
func (s *Server) withServices(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svcs := s.currentServices(); svcs != nil {
			ctx = svcctx.WithServices(ctx, svcs)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) currentServices() *svcctx.Services {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.services
}

// requireInit is middleware that ensures the server is fully
// initialized. Returns 503 Service Unavailable before Start has wired
// the store and job controller.
func (s *Server) requireInit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.currentServices() == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"server not fully initialized"}`))
			return
		}
		next(w, r)
	}
}
