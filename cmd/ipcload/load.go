package main

import (
	"context"
	"encoding/binary"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/aelexs/kernel-ipc/internal/domain"
	"github.com/aelexs/kernel-ipc/internal/ipc"
)

// kernel is the surface the driver needs. *port.Client satisfies it
// directly; localKernel adapts an in-process registry.
type kernel interface {
	Create(ctx context.Context, name string) (domain.PortID, error)
	Close(ctx context.Context, port domain.PortID) error
	Send(ctx context.Context, sender, recipient domain.PortID, payload []byte) error
	Receive(ctx context.Context, thread domain.ThreadID, port domain.PortID, wait bool) (ipc.Message, bool, error)
}

type localKernel struct {
	reg *ipc.Registry
}

func (l localKernel) Create(_ context.Context, name string) (domain.PortID, error) {
	return l.reg.Create(name)
}

func (l localKernel) Close(_ context.Context, port domain.PortID) error {
	l.reg.Close(port)
	return nil
}

func (l localKernel) Send(_ context.Context, sender, recipient domain.PortID, payload []byte) error {
	return l.reg.Send(sender, recipient, payload)
}

func (l localKernel) Receive(ctx context.Context, thread domain.ThreadID, port domain.PortID, wait bool) (ipc.Message, bool, error) {
	if !wait {
		msg, ok := l.reg.Receive(port)
		return msg, ok, nil
	}
	msg, err := l.reg.ReceiveBlocking(ctx, thread, port)
	if err != nil {
		return ipc.Message{}, false, err
	}
	return msg, true, nil
}

type loadOptions struct {
	Endpoints int
	Senders   int
	Messages  int
	Burst     int
}

type loadReport struct {
	Delivered  int
	OutOfOrder int
}

// drive creates the endpoints, runs one receiver per endpoint and
// opts.Senders senders per endpoint, then closes the endpoints.
// Each payload is the sender's index followed by its sequence number.
func drive(ctx context.Context, k kernel, sched ipc.Scheduler, opts loadOptions) (loadReport, error) {
	if opts.Endpoints < 1 || opts.Senders < 1 || opts.Messages < 1 {
		return loadReport{}, fmt.Errorf("%w: endpoints, senders and messages must be positive", domain.ErrInvalidInput)
	}
	if opts.Burst < 1 {
		opts.Burst = 1
	}

	ports := make([]domain.PortID, opts.Endpoints)
	for i := range ports {
		p, err := k.Create(ctx, fmt.Sprintf("ipcload.%d", i))
		if err != nil {
			return loadReport{}, fmt.Errorf("create endpoint %d: %w", i, err)
		}
		ports[i] = p
	}
	defer func() {
		for _, p := range ports {
			_ = k.Close(context.WithoutCancel(ctx), p)
		}
	}()

	reports := make([]loadReport, len(ports))
	g, gctx := errgroup.WithContext(ctx)

	for i, p := range ports {
		thread := domain.ThreadID(i + 1)
		g.Go(func() error {
			r, err := drain(gctx, k, thread, p, opts)
			reports[i] = r
			return err
		})

		for s := range opts.Senders {
			g.Go(func() error {
				return produce(gctx, k, sched, p, s, opts)
			})
		}
	}

	if err := g.Wait(); err != nil {
		return loadReport{}, err
	}

	var total loadReport
	for _, r := range reports {
		total.Delivered += r.Delivered
		total.OutOfOrder += r.OutOfOrder
	}
	return total, nil
}

func produce(ctx context.Context, k kernel, sched ipc.Scheduler, p domain.PortID, sender int, opts loadOptions) error {
	payload := make([]byte, 8)
	for seq := range opts.Messages {
		binary.BigEndian.PutUint32(payload[0:4], uint32(sender))
		binary.BigEndian.PutUint32(payload[4:8], uint32(seq))
		if err := k.Send(ctx, domain.NoPort, p, payload); err != nil {
			return fmt.Errorf("sender %d: %w", sender, err)
		}
		if (seq+1)%opts.Burst == 0 {
			sched.Yield()
		}
	}
	return nil
}

// drain receives until every sender's messages for p have arrived,
// counting messages whose sequence is not the next expected one.
func drain(ctx context.Context, k kernel, thread domain.ThreadID, p domain.PortID, opts loadOptions) (loadReport, error) {
	next := make([]uint32, opts.Senders)
	want := opts.Senders * opts.Messages

	var r loadReport
	for r.Delivered < want {
		msg, ok, err := k.Receive(ctx, thread, p, true)
		if err != nil {
			return r, fmt.Errorf("receiver on port %d: %w", p, err)
		}
		if !ok {
			continue
		}
		if len(msg.Data) != 8 {
			return r, fmt.Errorf("receiver on port %d: malformed payload of %d bytes", p, len(msg.Data))
		}
		sender := binary.BigEndian.Uint32(msg.Data[0:4])
		seq := binary.BigEndian.Uint32(msg.Data[4:8])
		if int(sender) >= len(next) {
			return r, fmt.Errorf("receiver on port %d: unknown sender %d", p, sender)
		}
		if seq != next[sender] {
			r.OutOfOrder++
		}
		next[sender] = seq + 1
		r.Delivered++
	}
	return r, nil
}
