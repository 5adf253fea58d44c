package ipc

import (
	"time"

	"github.com/aelexs/kernel-ipc/internal/domain"
)

// waiter is a thread suspended in ReceiveBlocking. Every field except wake
// is guarded by the registry lock.
type waiter struct {
	thread domain.ThreadID
	wake   chan struct{} // buffered: the single wake-up never blocks the waker

	done bool // set once, by the Send that hands over msg or by Close
	msg  Message
	err  error
}

func newWaiter(thread domain.ThreadID) *waiter {
	return &waiter{thread: thread, wake: make(chan struct{}, 1)}
}

func (w *waiter) deliver(msg Message) {
	w.msg = msg
	w.done = true
	w.wake <- struct{}{}
}

func (w *waiter) fail(err error) {
	w.err = err
	w.done = true
	w.wake <- struct{}{}
}

// endpoint is the registry's record for one live port.
//
// An endpoint never holds queued messages and waiters at the same time:
// a thread only waits on an empty queue, and a Send to an endpoint with
// waiters hands its message straight to the oldest one.
type endpoint struct {
	port    domain.PortID
	name    string
	created time.Time

	messages []Message
	waiters  []*waiter
}

func (e *endpoint) push(msg Message) {
	e.messages = append(e.messages, msg)
}

func (e *endpoint) pop() (Message, bool) {
	if len(e.messages) == 0 {
		return Message{}, false
	}
	msg := e.messages[0]
	e.messages[0] = Message{}
	e.messages = e.messages[1:]
	if len(e.messages) == 0 {
		e.messages = nil
	}
	return msg, true
}

func (e *endpoint) addWaiter(w *waiter) {
	e.waiters = append(e.waiters, w)
}

// nextWaiter dequeues the longest-waiting thread.
func (e *endpoint) nextWaiter() (*waiter, bool) {
	if len(e.waiters) == 0 {
		return nil, false
	}
	w := e.waiters[0]
	e.waiters[0] = nil
	e.waiters = e.waiters[1:]
	return w, true
}

func (e *endpoint) removeWaiter(target *waiter) {
	for i, w := range e.waiters {
		if w == target {
			e.waiters = append(e.waiters[:i], e.waiters[i+1:]...)
			return
		}
	}
}

func (e *endpoint) waitingThreads() []domain.ThreadID {
	if len(e.waiters) == 0 {
		return nil
	}
	threads := make([]domain.ThreadID, len(e.waiters))
	for i, w := range e.waiters {
		threads[i] = w.thread
	}
	return threads
}

func (e *endpoint) info() EndpointInfo {
	return EndpointInfo{
		Port:      e.port,
		Name:      e.name,
		Pending:   len(e.messages),
		Waiting:   e.waitingThreads(),
		CreatedAt: e.created,
	}
}
