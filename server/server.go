// Package server assembles the HTTP surface of plainmed: the API routes,
// the middleware stack, metrics, and the static client fallback.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/plainmed/plainmed/config"
	"github.com/plainmed/plainmed/server/compose"
	"github.com/plainmed/plainmed/server/handlers"
	"github.com/plainmed/plainmed/server/metrics"
	"github.com/plainmed/plainmed/server/middleware"
	"github.com/plainmed/plainmed/server/simplify"
	"github.com/teilomillet/gollm"
	"go.uber.org/zap"
)

// Version is reported by the health endpoint.
const Version = "v0.1.0"

// NewLLM creates the text-generation client from configuration.
func NewLLM(cfg config.LLMConfig) (gollm.LLM, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("no API key in config or OPENAI_API_KEY environment variable")
	}

	llm, err := gollm.NewLLM(
		gollm.SetProvider(cfg.Provider),
		gollm.SetModel(cfg.Model),
		gollm.SetAPIKey(apiKey),
		gollm.SetTemperature(cfg.Temperature),
		gollm.SetMaxTokens(cfg.MaxOutputTokens),
	)
	if err != nil {
		return nil, fmt.Errorf("create LLM client: %w", err)
	}
	return llm, nil
}

// NewRouter builds the full route tree: the /api group behind rate limiting
// and a per-request timeout, the operational endpoints, and the static
// client with its entry-page fallback.
func NewRouter(cfg *config.Config, llm gollm.LLM, m *metrics.Metrics, limiter *middleware.RateLimiter, logger *zap.Logger) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTimer)
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CORS)
	r.Use(middleware.Logging(logger))
	r.Use(middleware.PrometheusMetrics(m))

	simplifier := simplify.NewSimplifier(llm, cfg, m, logger)
	composer := compose.NewComposer(cfg.Cards.ImageHintTemplate)

	upload := handlers.NewUploadHandler(cfg.Limits, m, logger)
	simplifyHandler := handlers.NewSimplifyHandler(simplifier, composer, cfg.Limits, logger)

	r.Route("/api", func(api chi.Router) {
		api.Use(limiter.Middleware)
		api.Use(middleware.Timeout(cfg.Server.RequestTimeout))
		api.Post("/upload", upload.ServeHTTP)
		api.Post("/simplify", simplifyHandler.ServeHTTP)
	})

	r.Get("/health", handlers.Health(Version))
	r.Get("/metrics", m.Handler().ServeHTTP)

	// Everything else belongs to the client application.
	r.NotFound(NewSPAHandler(cfg.Static, logger).ServeHTTP)

	return r
}

// Server is the plainmed HTTP server. It owns the listener lifecycle and
// keeps the rate limiter in sync with configuration reloads.
type Server struct {
	httpServer *http.Server
	watcher    config.Watcher
	limiter    *middleware.RateLimiter
	logger     *zap.Logger
}

// NewServer creates a server from a config watcher and an LLM client. The
// watcher may be a file-backed watcher or a static one; route and limiter
// wiring happens against its current snapshot, and later updates adjust the
// rate limiter in place.
func NewServer(watcher config.Watcher, llm gollm.LLM, logger *zap.Logger) *Server {
	cfg := watcher.GetCurrentConfig()

	m := metrics.NewMetrics()
	limiter := middleware.NewRateLimiter(cfg.RateLimit, m)
	router := NewRouter(cfg, llm, m, limiter, logger)

	return &Server{
		httpServer: &http.Server{
			Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:        router,
			ReadTimeout:    cfg.Server.ReadTimeout,
			WriteTimeout:   cfg.Server.WriteTimeout,
			MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
		},
		watcher: watcher,
		limiter: limiter,
		logger:  logger,
	}
}

// Start runs the server until ctx is cancelled, then shuts down gracefully
// within the configured shutdown timeout.
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)

	go s.watchConfig(ctx)

	go func() {
		s.logger.Info("server started",
			zap.String("address", s.httpServer.Addr),
			zap.String("version", Version),
		)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(),
			s.watcher.GetCurrentConfig().Server.ShutdownTimeout)
		defer cancel()

		s.logger.Info("shutting down server")
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil

	case err := <-errChan:
		return err
	}
}

// watchConfig applies configuration reloads to the parts that can change at
// runtime. Route structure and listener settings are fixed at startup.
func (s *Server) watchConfig(ctx context.Context) {
	updates := s.watcher.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-updates:
			if !ok {
				return
			}
			s.limiter.Update(cfg.RateLimit)
			s.logger.Info("applied configuration reload",
				zap.Bool("rate_limit_enabled", cfg.RateLimit.Enabled),
				zap.Int("rate_limit_requests", cfg.RateLimit.Requests),
			)
		}
	}
}
