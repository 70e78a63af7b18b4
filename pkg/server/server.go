package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"mercator-hq/broker/pkg/config"
	"mercator-hq/broker/pkg/directory"
	"mercator-hq/broker/pkg/proxy/handlers"
	"mercator-hq/broker/pkg/proxy/middleware"
	"mercator-hq/broker/pkg/requestlog"
	brokertls "mercator-hq/broker/pkg/security/tls"
	"mercator-hq/broker/pkg/telemetry"
	"mercator-hq/broker/pkg/telemetry/metrics"
	"mercator-hq/broker/pkg/telemetry/tracing"
)

// Dispatcher runs admitted requests and drains async work on Close.
type Dispatcher interface {
	handlers.Dispatcher
	Close(ctx context.Context) error
}

// Deps are the components the server routes requests to.
type Deps struct {
	Directory  directory.Catalog
	Admitter   handlers.Admitter
	Dispatcher Dispatcher
	Requests   requestlog.Storage
	Telemetry  *telemetry.Telemetry
}

// Server is the broker's HTTP server.
type Server struct {
	config       config.ServerConfig
	deps         Deps
	httpServer   *http.Server
	logger       *slog.Logger
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
	addr         net.Addr
}

// NewServer creates a server.
func NewServer(cfg config.ServerConfig, deps Deps) *Server {
	return &Server{
		config: cfg,
		deps:   deps,
		logger: slog.Default().With("component", "server"),
	}
}

// Start listens and serves until ctx is cancelled, SIGINT or SIGTERM is
// received, or the listener fails, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.mu.Unlock()

	ln, err := s.listen(ctx)
	if err != nil {
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
		return err
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting broker server",
			"address", ln.Addr().String(),
			"tls_enabled", s.config.TLS.Enabled,
		)

		var err error
		if s.config.TLS.Enabled {
			// Certificates come from TLSConfig.GetCertificate.
			err = s.httpServer.ServeTLS(ln, "", "")
		} else {
			err = s.httpServer.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		return s.Shutdown(context.Background())
	case err := <-errChan:
		_ = s.Shutdown(context.Background())
		return err
	}
}

// listen builds the http.Server and binds its listener.
func (s *Server) listen(ctx context.Context) (net.Listener, error) {
	s.httpServer = &http.Server{
		Addr:           s.config.ListenAddress,
		Handler:        s.Handler(),
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		IdleTimeout:    s.config.IdleTimeout,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
	}

	if s.config.TLS.Enabled {
		reloader := brokertls.NewCertificateReloader(s.config.TLS.CertFile, s.config.TLS.KeyFile, s.config.TLS.ReloadInterval)
		if err := reloader.Start(ctx); err != nil {
			return nil, fmt.Errorf("failed to load TLS certificate: %w", err)
		}
		tlsConfig, err := brokertls.NewServerConfig(s.config.TLS, reloader)
		if err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
		s.httpServer.TLSConfig = tlsConfig
	}

	ln, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", s.config.ListenAddress, err)
	}
	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()
	return ln, nil
}

// Shutdown marks the broker as draining, stops accepting connections, waits
// for in-flight requests and then for async work, all within the configured
// shutdown timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.RLock()
		running := s.isRunning
		s.mu.RUnlock()
		if !running {
			return
		}

		s.logger.Info("initiating graceful shutdown", "timeout", s.config.ShutdownTimeout.String())
		if t := s.deps.Telemetry; t != nil && t.Health != nil {
			t.Health.SetDraining(true)
		}

		shutdownCtx := ctx
		if s.config.ShutdownTimeout > 0 {
			var cancel context.CancelFunc
			shutdownCtx, cancel = context.WithTimeout(ctx, s.config.ShutdownTimeout)
			defer cancel()
		}

		var errs []error
		if s.httpServer != nil {
			if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("http shutdown: %w", err))
			}
		}
		if s.deps.Dispatcher != nil {
			if err := s.deps.Dispatcher.Close(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("dispatcher drain: %w", err))
			}
		}
		shutdownErr = errors.Join(errs...)
		if shutdownErr != nil {
			s.logger.Error("error during shutdown", "error", shutdownErr)
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		s.logger.Info("broker server stopped")
	})

	return shutdownErr
}

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	var tracer *tracing.Tracer
	tel := s.deps.Telemetry
	if tel != nil {
		tracer = tel.Tracer
	}

	gate := handlers.NewGate(s.deps.Directory, s.deps.Admitter)
	broker := handlers.NewBrokerHandler(gate, s.deps.Dispatcher, handlers.BrokerOptions{
		Metrics:      metricsOf(tel),
		Tracer:       tracer,
		MaxBodyBytes: s.config.MaxBodyBytes,
	})
	discovery := handlers.NewDiscoveryHandler(gate, s.deps.Directory, tracer, s.config.MaxBodyBytes)
	lookup := handlers.NewRequestLookupHandler(gate, s.deps.Requests, tracer)

	s.route(mux, "POST /broker/{service}", broker)
	s.route(mux, "POST /discovery/services", discovery.Services())
	s.route(mux, "POST /discovery/endpoints", discovery.Endpoints())
	s.route(mux, "GET /requests/{requestId}", lookup)

	if tel != nil {
		tel.Mount(mux)
	}

	return middleware.Chain(mux,
		middleware.RecoveryMiddleware,
		middleware.RequestIDMiddleware,
		middleware.ClientIPMiddleware(s.config.TrustProxyHeaders),
		middleware.LoggingMiddleware,
		tracing.HTTPMiddleware,
		middleware.BodyLimitMiddleware(s.config.MaxBodyBytes),
	)
}

// route registers h under pattern with per-route HTTP metrics.
func (s *Server) route(mux *http.ServeMux, pattern string, h http.Handler) {
	mux.Handle(pattern, metricsOf(s.deps.Telemetry).InstrumentRoute(pattern, h))
}

func metricsOf(t *telemetry.Telemetry) *metrics.Collector {
	if t == nil {
		return nil
	}
	return t.Metrics
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Addr returns the bound listener address once Start is listening.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}
