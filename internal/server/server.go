// Package server provides the shared service lifecycle runner.
// The cmd/ binaries delegate to server.Run for signal handling, config
// loading, observability init, health checks, and graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/aelexs/kernel-ipc/internal/config"
	"github.com/aelexs/kernel-ipc/internal/domain"
	"github.com/aelexs/kernel-ipc/internal/observability"
)

// Version is reported to telemetry backends. Overridden at link time.
var Version = "0.1.0"

// Params configures a service's lifecycle runner.
type Params struct {
	// Name identifies the service (e.g. "ipcd").
	Name string

	// PortFromConfig extracts the HTTP port for this service from config.
	PortFromConfig func(cfg *config.Config) int

	// GRPCPortFromConfig extracts the gRPC port. Nil disables the gRPC server.
	GRPCPortFromConfig func(cfg *config.Config) int

	// Setup registers the service's handlers before the servers start. The
	// returned cleanup runs during shutdown, before the servers drain.
	Setup func(ctx context.Context, deps SetupDeps) (cleanup func(context.Context) error, err error)
}

// SetupDeps is what Run hands to Params.Setup.
type SetupDeps struct {
	Config     *config.Config
	Logger     *slog.Logger
	InstanceID domain.InstanceID
	HTTPMux    *http.ServeMux
	GRPCServer *grpc.Server // nil when the gRPC server is disabled
}

// Listeners injects pre-bound listeners (port-0 testing). A nil field makes
// Run bind from config.
type Listeners struct {
	HTTP net.Listener
	GRPC net.Listener
}

// Run executes the full service lifecycle and returns once shutdown has
// completed. Startup order: tracer, metrics, Setup, gRPC, HTTP. Shutdown
// runs in reverse.
func Run(ctx context.Context, p Params, ls Listeners) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		closeListeners(ls)
		return fmt.Errorf("load config: %w", err)
	}

	serviceName := p.Name
	if cfg.OTEL.ServiceName != "" {
		serviceName = cfg.OTEL.ServiceName
	}
	instanceID := domain.GenerateInstanceID()
	service := observability.ServiceInfo{
		Name:        serviceName,
		Version:     Version,
		Environment: cfg.Environment,
		InstanceID:  instanceID.String(),
	}

	logger := observability.InitLogger(observability.LogConfig{
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		Service: service,
	})

	tracerProvider, err := observability.InitTracer(ctx, service, cfg.OTEL.Endpoint)
	if err != nil {
		closeListeners(ls)
		return fmt.Errorf("initialize tracer: %w", err)
	}

	metricsProvider, err := observability.InitMetrics(ctx, service, cfg.OTEL.Endpoint, cfg.OTEL.MetricInterval)
	if err != nil {
		closeListeners(ls)
		_ = tracerProvider.Shutdown(context.Background())
		return fmt.Errorf("initialize metrics: %w", err)
	}

	flushOTEL := func() {
		otelCtx, otelCancel := context.WithTimeout(context.Background(), domain.ShutdownOTELTimeout)
		defer otelCancel()
		if shutdownErr := metricsProvider.Shutdown(otelCtx); shutdownErr != nil {
			logger.Error("failed to shutdown metrics", slog.String("error", shutdownErr.Error()))
		}
		if shutdownErr := tracerProvider.Shutdown(otelCtx); shutdownErr != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", shutdownErr.Error()))
		}
	}

	var shuttingDown atomic.Bool

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		status := "healthy"
		code := http.StatusOK
		if shuttingDown.Load() {
			status = "shutting_down"
			code = http.StatusServiceUnavailable
		}
		w.WriteHeader(code)
		fmt.Fprintf(w, `{"status":%q,"service":%q,"instance_id":%q}`, status, p.Name, instanceID.String())
	})

	var (
		grpcServer   *grpc.Server
		healthServer *health.Server
	)
	if p.GRPCPortFromConfig != nil {
		grpcServer = grpc.NewServer()
		healthServer = health.NewServer()
		healthpb.RegisterHealthServer(grpcServer, healthServer)
	}

	cleanup := func(context.Context) error { return nil }
	if p.Setup != nil {
		c, setupErr := p.Setup(ctx, SetupDeps{
			Config:     cfg,
			Logger:     logger,
			InstanceID: instanceID,
			HTTPMux:    mux,
			GRPCServer: grpcServer,
		})
		if setupErr != nil {
			closeListeners(ls)
			flushOTEL()
			return fmt.Errorf("setup %s: %w", p.Name, setupErr)
		}
		if c != nil {
			cleanup = c
		}
	}

	runCleanup := func() {
		cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), domain.ShutdownCleanupTimeout)
		defer cleanupCancel()
		if cleanupErr := cleanup(cleanupCtx); cleanupErr != nil {
			logger.Error("service cleanup error", slog.String("error", cleanupErr.Error()))
		}
	}

	httpLn, grpcLn, err := bind(ctx, p, cfg, ls)
	if err != nil {
		runCleanup()
		flushOTEL()
		return err
	}

	server := &http.Server{
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
		// Blocking receives hold a response open for up to ipcd.receive_timeout.
		WriteTimeout: cfg.IPCD.ReceiveTimeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	if grpcServer != nil {
		healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		g.Go(func() error {
			logger.Info("starting gRPC server", slog.String("addr", grpcLn.Addr().String()))
			if serveErr := grpcServer.Serve(grpcLn); serveErr != nil && !errors.Is(serveErr, grpc.ErrServerStopped) {
				return fmt.Errorf("serve gRPC: %w", serveErr)
			}
			return nil
		})
	}

	g.Go(func() error {
		logger.Info("starting HTTP server",
			slog.String("addr", httpLn.Addr().String()),
			slog.String("environment", cfg.Environment),
		)
		if serveErr := server.Serve(httpLn); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			return fmt.Errorf("serve HTTP: %w", serveErr)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("received shutdown signal, starting graceful shutdown")

		// 1. Health checks report not serving.
		shuttingDown.Store(true)
		if healthServer != nil {
			healthServer.Shutdown()
		}

		// 2. Drain delay.
		time.Sleep(domain.ShutdownDrainDelay)

		// 3. Service cleanup. Releases requests parked in blocking calls so
		// the servers can drain.
		runCleanup()

		// 4. Servers, last started first.
		httpCtx, httpCancel := context.WithTimeout(context.Background(), domain.ShutdownHTTPTimeout)
		defer httpCancel()
		if shutdownErr := server.Shutdown(httpCtx); shutdownErr != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", shutdownErr.Error()))
		}
		if grpcServer != nil {
			stopGRPC(grpcServer, domain.ShutdownGRPCTimeout)
		}

		// 5. Flush OTEL.
		flushOTEL()

		logger.Info("shutdown complete")
		return nil
	})

	return g.Wait()
}

func bind(ctx context.Context, p Params, cfg *config.Config, ls Listeners) (httpLn, grpcLn net.Listener, err error) {
	lc := &net.ListenConfig{}

	httpLn = ls.HTTP
	if httpLn == nil {
		addr := net.JoinHostPort(cfg.IPCD.BindAddr, strconv.Itoa(p.PortFromConfig(cfg)))
		if httpLn, err = lc.Listen(ctx, "tcp", addr); err != nil {
			if ls.GRPC != nil {
				_ = ls.GRPC.Close()
			}
			return nil, nil, fmt.Errorf("listen HTTP: %w", err)
		}
	}

	if p.GRPCPortFromConfig == nil {
		if ls.GRPC != nil {
			_ = ls.GRPC.Close()
		}
		return httpLn, nil, nil
	}

	grpcLn = ls.GRPC
	if grpcLn == nil {
		addr := net.JoinHostPort(cfg.IPCD.BindAddr, strconv.Itoa(p.GRPCPortFromConfig(cfg)))
		if grpcLn, err = lc.Listen(ctx, "tcp", addr); err != nil {
			_ = httpLn.Close()
			return nil, nil, fmt.Errorf("listen gRPC: %w", err)
		}
	}

	return httpLn, grpcLn, nil
}

// stopGRPC waits for in-flight RPCs up to timeout, then forces the rest closed.
func stopGRPC(s *grpc.Server, timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		s.Stop()
		<-done
	}
}

func closeListeners(ls Listeners) {
	if ls.HTTP != nil {
		_ = ls.HTTP.Close()
	}
	if ls.GRPC != nil {
		_ = ls.GRPC.Close()
	}
}
