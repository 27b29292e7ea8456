package order

import (
	"errors"
	"sync"
	"time"

	"github.com/Additional-Code/orderdesk/internal/entity"
)

var (
	// ErrNotFound is returned when an order is missing.
	ErrNotFound = errors.New("order not found")
	// ErrSelfLink is returned when an order is linked to itself.
	ErrSelfLink = errors.New("order cannot be linked to itself")
	// ErrLinkCycle is returned when a link would close a cycle of related orders.
	ErrLinkCycle = errors.New("order link would form a cycle")
)

// Filter narrows List results. Empty fields match everything.
type Filter struct {
	CustomerID string
	Status     string
}

func (f Filter) matches(o *entity.Order) bool {
	if f.CustomerID != "" && o.CustomerID != f.CustomerID {
		return false
	}
	if f.Status != "" && o.Status != f.Status {
		return false
	}
	return true
}

// Option customises a Registry.
type Option func(*Registry)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// Registry is the in-memory authoritative set of orders. Every method is safe
// for concurrent use and hands out copies, never pointers into its state.
//
// Each change bumps a version counter and marks the id as unsaved until a
// snapshot at or past that version is acknowledged with MarkSaved.
type Registry struct {
	mu      sync.RWMutex
	orders  map[int64]*entity.Order
	seq     []int64
	lastID  int64
	version uint64
	unsaved map[int64]uint64
	now     func() time.Time
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		orders:  make(map[int64]*entity.Order),
		unsaved: make(map[int64]uint64),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load replaces the registry contents with persisted orders. The id sequence
// never moves backwards, so ids handed out earlier stay retired.
func (r *Registry) Load(orders []entity.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.orders = make(map[int64]*entity.Order, len(orders))
	r.unsaved = make(map[int64]uint64)
	r.seq = r.seq[:0]
	for i := range orders {
		if orders[i].ID <= 0 {
			continue
		}
		r.putLocked(orders[i].Clone())
	}
}

// Create assigns the next id and stores a pending order.
func (r *Registry) Create(items []entity.Item, customerID string) (entity.Order, error) {
	if err := entity.ValidateItems(items); err != nil {
		return entity.Order{}, err
	}
	if customerID == "" {
		return entity.Order{}, entity.ErrCustomerRequired
	}

	lines := make([]entity.Item, len(items))
	copy(lines, items)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastID++
	order := entity.Order{
		ID:          r.lastID,
		Items:       lines,
		CustomerID:  customerID,
		TotalAmount: entity.SumPrices(lines),
		Status:      entity.StatusPending,
		CreatedAt:   r.now(),
	}
	r.putLocked(order)
	r.touchLocked(order.ID)
	return order.Clone(), nil
}

// Get looks an order up by id.
func (r *Registry) Get(id int64) (entity.Order, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders[id]
	if !ok {
		return entity.Order{}, false
	}
	return o.Clone(), true
}

// List returns orders matching every set filter field, in insertion order.
func (r *Registry) List(f Filter) []entity.Order {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]entity.Order, 0, len(r.seq))
	for _, id := range r.seq {
		o := r.orders[id]
		if f.matches(o) {
			result = append(result, o.Clone())
		}
	}
	return result
}

// Update merges the patch into an existing order.
func (r *Registry) Update(id int64, patch entity.Patch) (entity.Order, error) {
	if err := patch.Validate(); err != nil {
		return entity.Order{}, err
	}
	return r.Mutate(id, func(o *entity.Order, now time.Time) error {
		patch.Apply(o, now)
		return nil
	})
}

// Mutate applies fn to a copy of the order and commits it only when fn
// succeeds.
func (r *Registry) Mutate(id int64, fn func(o *entity.Order, now time.Time) error) (entity.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.orders[id]
	if !ok {
		return entity.Order{}, ErrNotFound
	}

	next := current.Clone()
	if err := fn(&next, r.now()); err != nil {
		return entity.Order{}, err
	}
	next.ID = id
	r.orders[id] = &next
	r.touchLocked(id)
	return next.Clone(), nil
}

// Link records relatedID as the related order of id.
func (r *Registry) Link(id, relatedID int64) (entity.Order, error) {
	if id == relatedID {
		return entity.Order{}, ErrSelfLink
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.orders[id]
	if !ok {
		return entity.Order{}, ErrNotFound
	}
	if _, ok := r.orders[relatedID]; !ok {
		return entity.Order{}, ErrNotFound
	}

	// Walk the chain starting at relatedID; reaching id means a cycle.
	cursor := relatedID
	for steps := 0; steps <= len(r.orders); steps++ {
		next, ok := r.orders[cursor]
		if !ok || next.RelatedOrderID == nil {
			break
		}
		if *next.RelatedOrderID == id {
			return entity.Order{}, ErrLinkCycle
		}
		cursor = *next.RelatedOrderID
	}

	updated := current.Clone()
	now := r.now()
	updated.RelatedOrderID = &relatedID
	updated.UpdatedAt = &now
	r.orders[id] = &updated
	r.touchLocked(id)
	return updated.Clone(), nil
}

// MergeAndMarkProcessed folds a fresh copy of the persisted collection into
// the registry and flags every order as processed. Persisted records win for
// ids present in both, except ids whose latest change was never saved: those
// keep the in-memory copy and are returned in kept.
func (r *Registry) MergeAndMarkProcessed(loaded []entity.Order, now time.Time) (processed int, kept []int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range loaded {
		id := loaded[i].ID
		if id <= 0 {
			continue
		}
		if _, pending := r.unsaved[id]; pending {
			if _, exists := r.orders[id]; exists {
				kept = append(kept, id)
				continue
			}
		}
		r.putLocked(loaded[i].Clone())
	}

	for _, id := range r.seq {
		o := r.orders[id]
		o.Processed = true
		ts := now
		o.ProcessedAt = &ts
		r.touchLocked(id)
	}
	return len(r.seq), kept
}

// SnapshotForSave returns the full collection together with the version it
// reflects. Pass the version to MarkSaved once the snapshot is durable.
func (r *Registry) SnapshotForSave() ([]entity.Order, uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]entity.Order, 0, len(r.seq))
	for _, id := range r.seq {
		result = append(result, r.orders[id].Clone())
	}
	return result, r.version
}

// MarkSaved clears the unsaved mark of every change at or below version.
// Changes made after the snapshot stay unsaved.
func (r *Registry) MarkSaved(version uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, v := range r.unsaved {
		if v <= version {
			delete(r.unsaved, id)
		}
	}
}

// Unsaved reports whether id carries a change no successful save has covered.
func (r *Registry) Unsaved(id int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.unsaved[id]
	return ok
}

// Len reports the number of orders held.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.seq)
}

// LastID returns the highest id assigned or loaded so far.
func (r *Registry) LastID() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastID
}

func (r *Registry) touchLocked(id int64) {
	r.version++
	r.unsaved[id] = r.version
}

func (r *Registry) putLocked(o entity.Order) {
	if _, exists := r.orders[o.ID]; !exists {
		r.seq = append(r.seq, o.ID)
	}
	stored := o
	r.orders[o.ID] = &stored
	if o.ID > r.lastID {
		r.lastID = o.ID
	}
}
