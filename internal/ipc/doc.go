// Package ipc implements the kernel's message-passing core: a registry of
// endpoints addressed by never-reused port identifiers, an optional name
// binding per endpoint, and send/receive operations that move copied byte
// messages through each endpoint's FIFO queue.
//
// A single Registry owns all endpoint state. Callers only ever hold
// domain.PortID values. Blocking receives suspend through a Scheduler and are
// woken by the Send that delivers to them, or by Close of their endpoint;
// there is no polling.
//
// Usage:
//
//	reg := ipc.NewRegistry(ipc.WithLogger(logger))
//	port, err := reg.Create("svc")
//	...
//	err = reg.Send(self, port, []byte("hello"))
//	msg, err := reg.ReceiveBlocking(ctx, thread, port)
package ipc
