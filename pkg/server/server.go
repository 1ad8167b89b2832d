package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	//nolint:gosec // only exposed if pprofAddr config is set
	_ "net/http/pprof"

	"github.com/ethpandaops/footprint/pkg/observability"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Runner is the main component kept alive by the server
type Runner func(ctx context.Context) error

// HealthCheck reports whether dependencies are reachable
type HealthCheck func(ctx context.Context) error

// Server runs a main component next to metrics, health and pprof servers
type Server struct {
	log    logrus.FieldLogger
	config *Config
	health HealthCheck

	mu           sync.Mutex
	pprofServer  *http.Server
	healthServer *http.Server
}

// NewServer creates a new server instance. health may be nil.
func NewServer(log logrus.FieldLogger, config *Config, health HealthCheck) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Server{
		log:    log.WithField("component", "server"),
		config: config,
		health: health,
	}, nil
}

// Start runs main and the side servers until a signal arrives, ctx is canceled or
// one of them fails
func (s *Server) Start(ctx context.Context, main Runner) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer func() {
			if recovered := recover(); recovered != nil {
				s.log.WithField("panic", recovered).Error("Panic in metrics server goroutine")
			}
		}()

		observability.StartMetricsServer(ctx, s.config.MetricsAddr)
		<-ctx.Done()

		return nil
	})

	if s.config.PProfAddr != nil {
		g.Go(func() error {
			if err := s.serve(&s.pprofServer, *s.config.PProfAddr, nil); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}

			return nil
		})
	}

	if s.config.HealthCheckAddr != nil {
		g.Go(func() error {
			if err := s.serve(&s.healthServer, *s.config.HealthCheckAddr, s.healthHandler()); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}

			return nil
		})
	}

	g.Go(func() error {
		return main(ctx)
	})

	g.Go(func() error {
		<-ctx.Done()

		return s.stop(context.Background())
	})

	return g.Wait()
}

func (s *Server) stop(ctx context.Context) error {
	cleanupCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	s.log.Info("Starting graceful shutdown...")

	s.mu.Lock()
	servers := map[string]*http.Server{"pprof": s.pprofServer, "health": s.healthServer}
	s.mu.Unlock()

	for name, srv := range servers {
		if srv == nil {
			continue
		}

		if err := srv.Shutdown(cleanupCtx); err != nil {
			s.log.WithError(err).Errorf("failed to shutdown %s server", name)
		}
	}

	if err := observability.StopMetricsServer(cleanupCtx); err != nil {
		s.log.WithError(err).Error("failed to stop metrics server")
	}

	s.log.Info("Stopped gracefully")

	return nil
}

func (s *Server) serve(slot **http.Server, addr string, handler http.Handler) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 120 * time.Second,
	}

	s.mu.Lock()
	*slot = srv
	s.mu.Unlock()

	s.log.WithField("addr", lis.Addr().String()).Info("Listening")

	return srv.Serve(lis)
}

func (s *Server) healthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.health != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()

			if err := s.health(ctx); err != nil {
				s.log.WithError(err).Warn("Health check failed")
				http.Error(w, err.Error(), http.StatusServiceUnavailable)

				return
			}
		}

		w.WriteHeader(http.StatusOK)
	})
}
