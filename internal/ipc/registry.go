package ipc

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aelexs/kernel-ipc/internal/domain"
)

// EndpointInfo is a point-in-time snapshot of one endpoint.
type EndpointInfo struct {
	Port      domain.PortID
	Name      string // empty for anonymous endpoints
	Pending   int
	Waiting   []domain.ThreadID // in wake-up order
	CreatedAt time.Time
}

// Registry owns every live endpoint and the name bindings that point at them.
//
// One mutex guards both tables and all per-endpoint state. It is held for a
// single logical operation and never across a suspension.
type Registry struct {
	ids    Allocator
	sched  Scheduler
	clock  domain.Clock
	logger *slog.Logger

	mu        sync.Mutex
	endpoints map[domain.PortID]*endpoint
	names     map[string]domain.PortID
}

// Option configures a Registry.
type Option func(*Registry)

// WithScheduler sets the scheduler blocking receives park on.
func WithScheduler(s Scheduler) Option {
	return func(r *Registry) { r.sched = s }
}

// WithClock sets the clock used to stamp endpoint creation.
func WithClock(c domain.Clock) Option {
	return func(r *Registry) { r.clock = c }
}

// WithLogger sets the logger for lifecycle events.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// NewRegistry creates an empty registry. Without options it parks on
// goroutines, uses the system clock and logs to slog.Default().
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		sched:     GoScheduler{},
		clock:     domain.RealClock{},
		endpoints: make(map[domain.PortID]*endpoint),
		names:     make(map[string]domain.PortID),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Create allocates a port and an empty endpoint for it. A non-empty name is
// bound to the new port in the same step; binding a name that is already in
// use fails with domain.ErrNameAlreadyBound and leaves the existing binding
// untouched.
func (r *Registry) Create(name string) (domain.PortID, error) {
	if name != "" {
		if err := domain.ValidateName(name); err != nil {
			return domain.NoPort, fmt.Errorf("create endpoint: %w", err)
		}
	}

	r.mu.Lock()
	if name != "" {
		if owner, bound := r.names[name]; bound {
			r.mu.Unlock()
			return domain.NoPort, fmt.Errorf("create endpoint %q (bound to port %d): %w", name, owner, domain.ErrNameAlreadyBound)
		}
	}

	// Allocating under the lock keeps issuance order equal to insertion order.
	port := r.ids.Next()
	r.endpoints[port] = &endpoint{port: port, name: name, created: r.clock.Now()}
	if name != "" {
		r.names[name] = port
	}
	r.mu.Unlock()

	endpointsCreatedTotal.Add(context.Background(), 1)
	r.logger.Debug("endpoint created",
		slog.Uint64("port", port.Uint64()),
		slog.String("name", name),
	)
	return port, nil
}

// Resolve returns the port currently bound to name.
func (r *Registry) Resolve(name string) (domain.PortID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	port, ok := r.names[name]
	return port, ok
}

// Close destroys the endpoint for port and its name binding. Queued messages
// are discarded and every thread blocked on the endpoint is woken with
// domain.ErrEndpointClosed. Closing an unknown port is a no-op.
func (r *Registry) Close(port domain.PortID) {
	r.mu.Lock()
	ep, ok := r.remove(port)
	if ok {
		r.shutdown(ep)
	}
	r.mu.Unlock()

	if ok {
		r.logClosed(ep)
	}
}

// CloseAll closes every live endpoint. The kernel calls it on shutdown so no
// receiver stays suspended.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	closed := make([]*endpoint, 0, len(r.endpoints))
	for port := range r.endpoints {
		ep, _ := r.remove(port)
		r.shutdown(ep)
		closed = append(closed, ep)
	}
	r.mu.Unlock()

	for _, ep := range closed {
		r.logClosed(ep)
	}
}

// Stat returns a snapshot of the endpoint for port.
func (r *Registry) Stat(port domain.PortID) (EndpointInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ep, ok := r.lookup(port)
	if !ok {
		return EndpointInfo{}, false
	}
	return ep.info(), true
}

// List returns snapshots of all live endpoints ordered by port.
func (r *Registry) List() []EndpointInfo {
	r.mu.Lock()
	infos := make([]EndpointInfo, 0, len(r.endpoints))
	for _, ep := range r.endpoints {
		infos = append(infos, ep.info())
	}
	r.mu.Unlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].Port < infos[j].Port })
	return infos
}

// Len returns the number of live endpoints.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.endpoints)
}

// lookup must be called with r.mu held.
func (r *Registry) lookup(port domain.PortID) (*endpoint, bool) {
	ep, ok := r.endpoints[port]
	return ep, ok
}

// remove unlinks the endpoint and its name binding. Must be called with r.mu held.
func (r *Registry) remove(port domain.PortID) (*endpoint, bool) {
	ep, ok := r.endpoints[port]
	if !ok {
		return nil, false
	}
	delete(r.endpoints, port)
	if ep.name != "" && r.names[ep.name] == port {
		delete(r.names, ep.name)
	}
	return ep, true
}

// shutdown fails all waiters of a removed endpoint. Must be called with r.mu held.
// The waiter list is left in place so logClosed can report it.
func (r *Registry) shutdown(ep *endpoint) {
	for _, w := range ep.waiters {
		w.fail(domain.ErrEndpointClosed)
	}
}

func (r *Registry) logClosed(ep *endpoint) {
	ctx := context.Background()
	endpointsClosedTotal.Add(ctx, 1)
	if n := len(ep.messages); n > 0 {
		messagesDiscardedTotal.Add(ctx, int64(n))
	}

	attrs := []any{
		slog.Uint64("port", ep.port.Uint64()),
		slog.String("name", ep.name),
		slog.Int("discarded", len(ep.messages)),
	}
	if len(ep.waiters) > 0 {
		r.logger.Info("endpoint closed with blocked receivers",
			append(attrs, slog.Int("woken", len(ep.waiters)))...)
		return
	}
	r.logger.Debug("endpoint closed", attrs...)
}
