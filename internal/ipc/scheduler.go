package ipc

import (
	"context"
	"runtime"
)

// Scheduler suspends threads blocked in Registry.ReceiveBlocking.
type Scheduler interface {
	// Park suspends the calling thread until wake fires or ctx is done.
	// It returns nil after a wake and ctx.Err() otherwise. Implementations
	// may return nil early; the registry then parks the thread again.
	Park(ctx context.Context, wake <-chan struct{}) error

	// Yield gives up the rest of the calling thread's quantum.
	Yield()
}

// GoScheduler runs threads as goroutines and leaves suspension to the Go runtime.
type GoScheduler struct{}

// Park blocks on the wake channel.
func (GoScheduler) Park(ctx context.Context, wake <-chan struct{}) error {
	select {
	case <-wake:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Yield calls runtime.Gosched.
func (GoScheduler) Yield() {
	runtime.Gosched()
}

var _ Scheduler = GoScheduler{}
