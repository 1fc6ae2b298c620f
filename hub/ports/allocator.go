package ports

import "sync"

// Allocator hands out backend ports in strictly increasing order starting
// at a fixed base. Ports are never reused within one process lifetime and
// no upper bound is enforced; the hub does not probe OS-level availability
// because allocation only happens during the sequential startup phase,
// before any backend is listening.
type Allocator struct {
	mu   sync.Mutex
	next int
}

// NewAllocator creates an Allocator whose first Next call returns base.
func NewAllocator(base int) *Allocator {
	return &Allocator{next: base}
}

// Next returns the next unused port.
func (a *Allocator) Next() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	port := a.next
	a.next++
	return port
}
