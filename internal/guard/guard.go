// Package guard tracks which orders, and whether the whole collection, are
// currently being processed.
package guard

import (
	"sync"

	"go.uber.org/fx"
)

// Module provides the processing guard and key locker to Fx.
var Module = fx.Provide(New, NewKeyLocker)

// Guard enforces at-most-one concurrent processing per order id and at most
// one bulk run. Check-and-set happens under a single mutex.
type Guard struct {
	mu     sync.Mutex
	active map[int64]uint64
	bulk   uint64
	next   uint64
}

// New returns an idle guard.
func New() *Guard {
	return &Guard{active: make(map[int64]uint64)}
}

// TryStartOrder marks id as in flight. It returns false when id is already
// active.
func (g *Guard) TryStartOrder(id int64) bool {
	_, ok := g.startOrder(id)
	return ok
}

// FinishOrder clears id. Calling it for an idle id is a no-op.
func (g *Guard) FinishOrder(id int64) {
	g.mu.Lock()
	delete(g.active, id)
	g.mu.Unlock()
}

// TryStartBulk marks a bulk run as in flight. It returns false when one is
// already running.
func (g *Guard) TryStartBulk() bool {
	_, ok := g.startBulk()
	return ok
}

// FinishBulk clears the bulk flag.
func (g *Guard) FinishBulk() {
	g.mu.Lock()
	g.bulk = 0
	g.mu.Unlock()
}

// IsActive reports whether id is in flight.
func (g *Guard) IsActive(id int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.active[id]
	return ok
}

// BulkInProgress reports whether a bulk run holds the guard.
func (g *Guard) BulkInProgress() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.bulk != 0
}

// ActiveCount returns the number of orders in flight.
func (g *Guard) ActiveCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.active)
}

// AcquireOrder is the scoped form of TryStartOrder. The returned lease must be
// released on every exit path; releasing it never clears a later acquisition
// of the same id.
func (g *Guard) AcquireOrder(id int64) (*Lease, bool) {
	token, ok := g.startOrder(id)
	if !ok {
		return nil, false
	}
	return &Lease{release: func() {
		g.mu.Lock()
		if g.active[id] == token {
			delete(g.active, id)
		}
		g.mu.Unlock()
	}}, true
}

// AcquireBulk is the scoped form of TryStartBulk.
func (g *Guard) AcquireBulk() (*Lease, bool) {
	token, ok := g.startBulk()
	if !ok {
		return nil, false
	}
	return &Lease{release: func() {
		g.mu.Lock()
		if g.bulk == token {
			g.bulk = 0
		}
		g.mu.Unlock()
	}}, true
}

func (g *Guard) startOrder(id int64) (uint64, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, busy := g.active[id]; busy {
		return 0, false
	}
	g.next++
	g.active[id] = g.next
	return g.next, true
}

func (g *Guard) startBulk() (uint64, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.bulk != 0 {
		return 0, false
	}
	g.next++
	g.bulk = g.next
	return g.next, true
}

// Lease is a held guard slot.
type Lease struct {
	once    sync.Once
	release func()
}

// Release frees the slot. Only the first call has an effect.
func (l *Lease) Release() {
	if l == nil {
		return
	}
	l.once.Do(l.release)
}
