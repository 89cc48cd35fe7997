package registry

import "sync/atomic"

// RefCount is the liveness count carried by every registry entry.
//
// The count moves by +1 on each successful GetOrCreate and by -1 on each
// Release, and never goes below zero: releasing an entry whose count is
// already zero is a programmer error and panics.
//
// The zero value is an unreferenced, indexed (not removed) count.
type RefCount struct {
	n         atomic.Int64
	removed   atomic.Bool
	reclaimed atomic.Bool
}

// Load returns the current count.
func (r *RefCount) Load() int64 {
	return r.n.Load()
}

// Removed reports whether the owning entry has been unlinked from its
// registry. A removed entry can no longer be found by key.
func (r *RefCount) Removed() bool {
	return r.removed.Load()
}

func (r *RefCount) acquire() {
	r.n.Add(1)
}

func (r *RefCount) store(v int64) {
	r.n.Store(v)
}

// release decrements the count and returns the new value. ok is false if
// the count was already zero, in which case nothing is changed.
func (r *RefCount) release() (n int64, ok bool) {
	for {
		cur := r.n.Load()
		if cur <= 0 {
			return cur, false
		}
		if r.n.CompareAndSwap(cur, cur-1) {
			return cur - 1, true
		}
	}
}

func (r *RefCount) markRemoved() {
	r.removed.Store(true)
}

// claimReclaim returns true for exactly one caller, the one allowed to run
// the reclaim hook.
func (r *RefCount) claimReclaim() bool {
	return r.reclaimed.CompareAndSwap(false, true)
}

// Entry is implemented by every record stored in a Registry.
type Entry interface {
	// Ref returns the record's reference count. It must always return the
	// same pointer for a given record.
	Ref() *RefCount
}
