// Package port exposes an ipc.Registry to local callers: an HTTP admin API
// and the ipc.v1.Kernel gRPC control service. Both surfaces translate wire
// requests into registry calls and map domain errors through errmap.
package port

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/aelexs/kernel-ipc/internal/domain"
	"github.com/aelexs/kernel-ipc/internal/ipc"
)

var tracer = otel.Tracer("kernel-ipc/port")

// kernel is the narrow view of *ipc.Registry the handlers require.
type kernel interface {
	Create(name string) (domain.PortID, error)
	Close(port domain.PortID)
	Resolve(name string) (domain.PortID, bool)
	Send(sender, recipient domain.PortID, payload []byte) error
	Receive(port domain.PortID) (ipc.Message, bool)
	ReceiveBlocking(ctx context.Context, thread domain.ThreadID, port domain.PortID) (ipc.Message, error)
	Stat(port domain.PortID) (ipc.EndpointInfo, bool)
	List() []ipc.EndpointInfo
}

// Config holds what both surfaces share.
type Config struct {
	Logger *slog.Logger

	// ReceiveTimeout bounds one blocking receive. When it elapses the
	// request completes with no message.
	ReceiveTimeout time.Duration

	// Threads issues thread IDs for callers that do not supply one. Share a
	// single Threads between surfaces of one registry.
	Threads *Threads
}

func (c Config) withDefaults() Config {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.ReceiveTimeout <= 0 {
		c.ReceiveTimeout = domain.DefaultReceiveTimeout
	}
	if c.Threads == nil {
		c.Threads = &Threads{}
	}
	return c
}

// Threads hands out thread IDs to remote callers that did not name one.
type Threads struct {
	last atomic.Uint64
}

// Next returns a fresh thread ID; the first is 1.
func (t *Threads) Next() domain.ThreadID {
	return domain.ThreadID(t.last.Add(1))
}

// receive pops a message for port. Without wait an empty queue reports
// false. With wait the caller is parked for at most timeout; expiry also
// reports false.
func receive(ctx context.Context, k kernel, timeout time.Duration, thread domain.ThreadID, port domain.PortID, wait bool) (ipc.Message, bool, error) {
	if !wait {
		if msg, ok := k.Receive(port); ok {
			return msg, true, nil
		}
		if _, exists := k.Stat(port); !exists {
			return ipc.Message{}, false, fmt.Errorf("receive on port %d: %w", port, domain.ErrEndpointNotFound)
		}
		return ipc.Message{}, false, nil
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	msg, err := k.ReceiveBlocking(ctx, thread, port)
	switch {
	case err == nil:
		return msg, true, nil
	case errors.Is(err, context.DeadlineExceeded):
		return ipc.Message{}, false, nil
	case errors.Is(err, context.Canceled):
		return ipc.Message{}, false, fmt.Errorf("%w: %w", domain.ErrUnavailable, err)
	default:
		return ipc.Message{}, false, err
	}
}

func validatePayload(data []byte) error {
	if len(data) > domain.MaxPayloadBytes {
		return fmt.Errorf("%w: payload of %d bytes exceeds %d", domain.ErrInvalidInput, len(data), domain.MaxPayloadBytes)
	}
	return nil
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
