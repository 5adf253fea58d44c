package main

import (
	"context"
	"log/slog"
	"net/http"
	"runtime"

	apiv1 "github.com/aelexs/kernel-ipc/api/v1"
	"github.com/aelexs/kernel-ipc/internal/domain"
	"github.com/aelexs/kernel-ipc/internal/ipc"
	"github.com/aelexs/kernel-ipc/internal/ipc/port"
	"github.com/aelexs/kernel-ipc/internal/server"
)

// setup is the ipcd composition root. It builds the registry, applies the
// platform table and registers both control surfaces.
func setup(ctx context.Context, deps server.SetupDeps) (func(context.Context) error, error) {
	cfg := deps.Config
	logger := deps.Logger

	// 1. Platform table. smp_cores is the only entry that changes behavior.
	if cfg.Platform.SMPCores > 0 {
		runtime.GOMAXPROCS(cfg.Platform.SMPCores)
	}
	logger.InfoContext(ctx, "platform",
		slog.String("arch", cfg.Platform.Arch),
		slog.Int("page_size", cfg.Platform.PageSize),
		slog.Int("smp_cores", cfg.Platform.SMPCores),
		slog.Int("gomaxprocs", runtime.GOMAXPROCS(0)),
	)

	// 2. Registry.
	reg := ipc.NewRegistry(
		ipc.WithScheduler(ipc.GoScheduler{}),
		ipc.WithClock(domain.RealClock{}),
		ipc.WithLogger(logger.With(slog.String("component", "ipc"))),
	)

	// 3. Control surfaces share one thread ID source.
	portCfg := port.Config{
		Logger:         logger.With(slog.String("component", "port")),
		ReceiveTimeout: cfg.IPCD.ReceiveTimeout,
		Threads:        &port.Threads{},
	}
	port.NewHTTPHandler(reg, portCfg).Register(deps.HTTPMux)
	deps.HTTPMux.HandleFunc("GET /v1/openapi.json", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(apiv1.Spec)
	})
	if deps.GRPCServer != nil {
		port.RegisterKernelServer(deps.GRPCServer, port.NewGRPCHandler(reg, portCfg))
	}

	logger.InfoContext(ctx, "ipc registry initialized",
		slog.String("instance_id", deps.InstanceID.String()),
		slog.Duration("receive_timeout", cfg.IPCD.ReceiveTimeout),
	)

	// Closing every endpoint fails parked receivers with ErrEndpointClosed,
	// which lets in-flight blocking requests finish before the servers drain.
	cleanup := func(ctx context.Context) error {
		live := reg.Len()
		reg.CloseAll()
		logger.InfoContext(ctx, "ipc registry closed", slog.Int("endpoints", live))
		return nil
	}

	return cleanup, nil
}
