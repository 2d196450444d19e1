// Package server exposes the cutout generator over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"time"

	sentryhttp "github.com/getsentry/sentry-go/http"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/hannes/gridfinity-cutout/config"
	"github.com/hannes/gridfinity-cutout/dimensions"
	"github.com/hannes/gridfinity-cutout/files"
	"github.com/hannes/gridfinity-cutout/identify"
	"github.com/hannes/gridfinity-cutout/storage"
)

// DimensionFetcher looks up item dimensions.
type DimensionFetcher interface {
	Fetch(ctx context.Context, q dimensions.Query) (*dimensions.Result, string, error)
}

// Deps are the components the handlers call into. Log may be nil.
type Deps struct {
	Identifier identify.Identifier
	Dimensions DimensionFetcher
	Files      *files.Store
	Log        storage.ActivityLog
	Logger     *zap.Logger
}

// Server represents the HTTP server
type Server struct {
	cfg        *config.Config
	identifier identify.Identifier
	dims       DimensionFetcher
	files      *files.Store
	activity   storage.ActivityLog
	logger     *zap.Logger

	metrics *metrics
	limiter *ipLimiter
	builds  *semaphore.Weighted
	handler http.Handler
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, deps Deps) (*Server, error) {
	if deps.Identifier == nil || deps.Dimensions == nil || deps.Files == nil {
		return nil, errors.New("identifier, dimensions and files are required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	s := &Server{
		cfg:        cfg,
		identifier: deps.Identifier,
		dims:       deps.Dimensions,
		files:      deps.Files,
		activity:   deps.Log,
		logger:     deps.Logger.Named("server"),
		metrics:    newMetrics(),
		limiter:    newIPLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst),
		builds:     semaphore.NewWeighted(int64(max(1, runtime.NumCPU()))),
	}
	s.handler = s.routes()
	return s, nil
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.healthCheck)
	mux.HandleFunc("POST /identify", s.identifyText)
	mux.HandleFunc("POST /identify-image", s.identifyImage)
	mux.HandleFunc("GET /dimensions", s.dimensions)
	mux.HandleFunc("POST /proposals", s.proposals)
	mux.HandleFunc("POST /stl", s.rateLimited(s.stl))
	mux.HandleFunc("GET /generate", s.rateLimited(s.generate))
	mux.HandleFunc("GET /download/{token}", s.download)
	mux.HandleFunc("GET /logs", s.logsHandler)
	mux.Handle("GET /metrics", s.metrics.handler())
	mux.Handle("GET /files/stl/", http.StripPrefix("/files/stl/", noDirListing(http.FileServer(http.Dir(s.files.NamedPath())))))
	if s.cfg.Server.UIPath != "" {
		mux.Handle("GET /", http.FileServer(http.Dir(s.cfg.Server.UIPath)))
	}

	sentryHandler := sentryhttp.New(sentryhttp.Options{Repanic: true})
	return s.recoverPanics(s.cors(sentryHandler.Handle(s.observe(mux))))
}

// Handler returns the complete middleware chain.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Server.Port,
		Handler:      s.handler,
		ReadTimeout:  s.cfg.Server.ReadTimeout(),
		WriteTimeout: s.cfg.Server.WriteTimeout(),
		IdleTimeout:  s.cfg.Server.IdleTimeout(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting gridfinity cutout service",
			zap.String("addr", srv.Addr),
			zap.String("identifier", s.identifier.GetName()),
			zap.String("data_dir", s.files.Root()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// recordEvent appends to the activity log; failures are only logged.
func (s *Server) recordEvent(ctx context.Context, kind, status, detail string) {
	if s.activity == nil {
		return
	}
	if err := s.activity.InsertEvent(ctx, kind, status, detail); err != nil {
		s.logger.Warn("failed to record event", zap.String("kind", kind), zap.Error(err))
	}
}

func noDirListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || r.URL.Path[len(r.URL.Path)-1] == '/' {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}
