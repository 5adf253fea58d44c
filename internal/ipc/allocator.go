package ipc

import (
	"sync/atomic"

	"github.com/aelexs/kernel-ipc/internal/domain"
)

// Allocator issues port identifiers. The zero value is ready to use and
// hands out 1 first; domain.NoPort is never returned.
//
// Next is safe for any number of concurrent callers and never repeats a
// value. Exhausting the 64-bit space is not handled.
type Allocator struct {
	last atomic.Uint64
}

// Next returns a fresh identifier, strictly greater than every identifier
// returned before it.
func (a *Allocator) Next() domain.PortID {
	return domain.PortID(a.last.Add(1))
}
