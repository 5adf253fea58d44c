// Package main is the entrypoint for the kernel IPC service.
// ipcd owns the endpoint registry and exposes it over the local admin
// HTTP API and the ipc.v1.Kernel gRPC service.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aelexs/kernel-ipc/internal/config"
	"github.com/aelexs/kernel-ipc/internal/server"
)

func main() {
	ctx := context.Background()
	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	return server.Run(ctx, server.Params{
		Name:               "ipcd",
		PortFromConfig:     func(cfg *config.Config) int { return cfg.IPCD.HTTPPort },
		GRPCPortFromConfig: func(cfg *config.Config) int { return cfg.IPCD.GRPCPort },
		Setup:              setup,
	}, server.Listeners{})
}
