package ipc

import (
	"context"
	"fmt"

	"github.com/aelexs/kernel-ipc/internal/domain"
)

// Send copies payload into a Message from sender and delivers it to
// recipient. If a thread is blocked on the recipient, the oldest one gets the
// message directly; otherwise it is appended to the queue. Send never blocks.
func (r *Registry) Send(sender, recipient domain.PortID, payload []byte) error {
	msg := newMessage(sender, payload)

	r.mu.Lock()
	ep, ok := r.lookup(recipient)
	if !ok {
		r.mu.Unlock()
		sendFailuresTotal.Add(context.Background(), 1)
		return fmt.Errorf("send to port %d: %w", recipient, domain.ErrEndpointNotFound)
	}
	handedOff := false
	if w, waiting := ep.nextWaiter(); waiting {
		w.deliver(msg)
		handedOff = true
	} else {
		ep.push(msg)
	}
	r.mu.Unlock()

	ctx := context.Background()
	messagesSentTotal.Add(ctx, 1)
	if handedOff {
		messagesReceivedTotal.Add(ctx, 1)
	}
	return nil
}

// Receive pops the oldest queued message for port. It reports false both when
// the queue is empty and when the port does not exist: either way nothing is
// available now.
func (r *Registry) Receive(port domain.PortID) (Message, bool) {
	r.mu.Lock()
	ep, ok := r.lookup(port)
	if !ok {
		r.mu.Unlock()
		return Message{}, false
	}
	msg, ok := ep.pop()
	r.mu.Unlock()

	if ok {
		messagesReceivedTotal.Add(context.Background(), 1)
	}
	return msg, ok
}

// ReceiveBlocking returns the oldest message for port, suspending the calling
// thread through the Scheduler until one arrives. Blocked threads are served
// in the order they started waiting.
//
// It fails with domain.ErrEndpointNotFound if port does not exist and with
// domain.ErrEndpointClosed if the endpoint is closed while the thread waits.
// Cancelling ctx withdraws the thread and returns ctx.Err(); a message that
// was already handed over is returned instead.
func (r *Registry) ReceiveBlocking(ctx context.Context, thread domain.ThreadID, port domain.PortID) (Message, error) {
	r.mu.Lock()
	ep, ok := r.lookup(port)
	if !ok {
		r.mu.Unlock()
		return Message{}, fmt.Errorf("receive on port %d: %w", port, domain.ErrEndpointNotFound)
	}
	if msg, queued := ep.pop(); queued {
		r.mu.Unlock()
		messagesReceivedTotal.Add(ctx, 1)
		return msg, nil
	}
	w := newWaiter(thread)
	ep.addWaiter(w)
	r.mu.Unlock()

	blockedReceiversCurrent.Add(ctx, 1)
	defer blockedReceiversCurrent.Add(context.WithoutCancel(ctx), -1)

	for {
		parkErr := r.sched.Park(ctx, w.wake)

		r.mu.Lock()
		if w.done {
			r.mu.Unlock()
			if w.err != nil {
				return Message{}, fmt.Errorf("receive on port %d: %w", port, w.err)
			}
			return w.msg, nil
		}
		if parkErr != nil {
			ep.removeWaiter(w)
			r.mu.Unlock()
			return Message{}, fmt.Errorf("receive on port %d: %w", port, parkErr)
		}
		r.mu.Unlock()
	}
}
