package dedup

import (
	"sync"

	"github.com/SteelMorgan/cwtail/internal/domain"
)

// DefaultMaxSize is the number of identifiers kept before the set is reset
const DefaultMaxSize = 100000

// Deduplicator remembers identifiers of events already emitted.
// Memory is bounded by dropping the whole set once it grows past MaxSize;
// events still inside the lookback window may be emitted again after that.
// Safe for concurrent use.
type Deduplicator struct {
	mu      sync.Mutex
	maxSize int
	seen    map[string]struct{}
	resets  int
}

// New creates a Deduplicator. Non-positive maxSize selects DefaultMaxSize.
func New(maxSize int) *Deduplicator {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Deduplicator{
		maxSize: maxSize,
		seen:    make(map[string]struct{}),
	}
}

// Accept reports whether the event is novel and records its identifier.
// Events without an identifier are always novel and never recorded.
func (d *Deduplicator) Accept(event domain.LogEvent) bool {
	if !event.HasID() {
		return true
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[event.EventID]; ok {
		return false
	}
	d.seen[event.EventID] = struct{}{}
	return true
}

// Size returns the number of recorded identifiers
func (d *Deduplicator) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// MaxSize returns the reset threshold
func (d *Deduplicator) MaxSize() int {
	return d.maxSize
}

// Resets returns how many times the set has been cleared
func (d *Deduplicator) Resets() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.resets
}

// ResetIfFull replaces the set with an empty one when it holds more than
// MaxSize identifiers. Returns true if a reset happened; the caller is
// expected to pause before fetching again.
func (d *Deduplicator) ResetIfFull() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.seen) <= d.maxSize {
		return false
	}
	d.seen = make(map[string]struct{})
	d.resets++
	return true
}
