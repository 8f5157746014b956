// File: internal/server/server.go
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/xkilldash9x/barrier-cli/api/schemas"
	"github.com/xkilldash9x/barrier-cli/internal/config"
)

// API is the surface of the orchestrator exposed over HTTP.
type API interface {
	CreateScan(ctx context.Context, in schemas.CreateScanInput) (*schemas.ScanRequest, error)
	RunScans(ctx context.Context, ids []string, urls []string, device string) ([]schemas.RunOutcome, error)
	ScheduleScans(ctx context.Context, ids []string, runAt string) ([]schemas.ScheduleOutcome, error)
	Sweep(ctx context.Context) (schemas.SweepReport, error)
	EditScan(ctx context.Context, in schemas.EditScanInput) error
	DeleteScans(ctx context.Context, ids []string) (int64, error)
	ListScans(ctx context.Context, filter schemas.ScanFilter) ([]schemas.ScanRequest, error)
	GetScan(ctx context.Context, id string) (*schemas.ScanRequest, error)
	URLs(ctx context.Context, id string) ([]string, error)
	Score(ctx context.Context, id string) (float64, error)
	Report(ctx context.Context, id string) (*schemas.ScanReport, error)
	Devices(ctx context.Context) ([]schemas.DeviceProfile, error)
	Guidance(ctx context.Context) ([]string, error)
}

// Server owns the HTTP listener for the scan API.
type Server struct {
	cfg    config.ServerConfig
	http   *http.Server
	logger *zap.Logger
}

// NewRouter builds the chi router with middleware and all API routes mounted.
func NewRouter(cfg config.ServerConfig, api API, logger *zap.Logger) chi.Router {
	h := &handler{api: api, logger: logger.Named("api"), defaultUser: cfg.DefaultUsername}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger(h.logger))
	r.Use(recoverer(h.logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", userHeader},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", h.health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/scans", func(r chi.Router) {
			r.Get("/", h.listScans)
			r.Post("/", h.createScan)
			r.Delete("/", h.deleteScans)
			r.Post("/run", h.runScans)
			r.Post("/schedule", h.scheduleScans)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.getScan)
				r.Put("/", h.editScan)
				r.Delete("/", h.deleteScan)
				r.Get("/urls", h.urls)
				r.Get("/score", h.score)
				r.Get("/results", h.report)
			})
		})
		r.Post("/sweep", h.sweep)
		r.Get("/devices", h.devices)
		r.Get("/guidance", h.guidance)
	})

	return r
}

// New creates a Server bound to cfg.Addr. The listener is not opened until Run.
func New(cfg config.ServerConfig, api API, logger *zap.Logger) (*Server, error) {
	if api == nil {
		return nil, errors.New("server requires a non-nil API")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("server")
	return &Server{
		cfg: cfg,
		http: &http.Server{
			Addr:              cfg.Addr,
			Handler:           NewRouter(cfg, api, logger),
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      cfg.WriteTimeout,
			ErrorLog:          zap.NewStdLog(logger),
		},
		logger: logger,
	}, nil
}

// Run serves until ctx is canceled, then drains in-flight requests within ShutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.http.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.http.BaseContext = func(net.Listener) context.Context { return context.WithoutCancel(ctx) }

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API server listening", zap.String("addr", ln.Addr().String()))
		errCh <- s.http.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api server failed: %w", err)
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	s.logger.Info("Shutting down API server", zap.Duration("timeout", timeout))
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server failed: %w", err)
	}
	return nil
}
