// Package main is a load driver for the IPC core. It runs concurrent
// senders against a set of endpoints, drains them with blocking receivers
// and checks that every sender's messages arrived in order.
//
// By default it drives an in-process registry; with -addr it drives a
// running ipcd over gRPC.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/aelexs/kernel-ipc/internal/ipc"
	"github.com/aelexs/kernel-ipc/internal/ipc/port"
	"github.com/aelexs/kernel-ipc/internal/observability"
)

func main() {
	opts := loadOptions{}
	flag.IntVar(&opts.Endpoints, "endpoints", 4, "number of endpoints")
	flag.IntVar(&opts.Senders, "senders", 8, "concurrent senders per endpoint")
	flag.IntVar(&opts.Messages, "messages", 1000, "messages per sender")
	flag.IntVar(&opts.Burst, "burst", 64, "messages sent between scheduler yields")
	addr := flag.String("addr", "", "ipcd gRPC address; empty runs in-process")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()

	logger := observability.InitLogger(observability.LogConfig{
		Level:   *logLevel,
		Format:  "text",
		Service: observability.ServiceInfo{Name: "ipcload"},
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *addr, opts); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, addr string, opts loadOptions) error {
	var k kernel
	if addr == "" {
		k = localKernel{reg: ipc.NewRegistry(ipc.WithLogger(logger))}
	} else {
		conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return fmt.Errorf("dial %s: %w", addr, err)
		}
		defer conn.Close()
		k = port.NewClient(conn)
	}

	start := time.Now()
	report, err := drive(ctx, k, ipc.GoScheduler{}, opts)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	logger.InfoContext(ctx, "load complete",
		slog.Int("endpoints", opts.Endpoints),
		slog.Int("senders", opts.Senders),
		slog.Int("delivered", report.Delivered),
		slog.Int("out_of_order", report.OutOfOrder),
		slog.Duration("elapsed", elapsed),
		slog.Float64("msgs_per_sec", float64(report.Delivered)/elapsed.Seconds()),
	)
	if report.OutOfOrder > 0 {
		return fmt.Errorf("%d messages arrived out of order", report.OutOfOrder)
	}
	return nil
}
