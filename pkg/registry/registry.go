package registry

import (
	"fmt"

	"github.com/emirpasic/gods/utils"
	"github.com/marmos91/dittoreg/internal/logger"
	"github.com/marmos91/dittoreg/pkg/metrics"
)

// KeyCodec maps a registry key onto the ordered index.
type KeyCodec[K any] struct {
	// Encode turns a key into the value stored in the index. It must be
	// consistent with Compare and must not retain mutable caller memory.
	Encode func(K) any

	// Compare is the total order over encoded keys.
	Compare utils.Comparator

	// Describe renders an encoded key for logs and panics.
	Describe func(any) string
}

// Option configures a Registry.
type Option[E Entry] func(*options[E])

type options[E Entry] struct {
	initialize func(E)
	reclaim    func(E)
	metrics    metrics.RegistryMetrics
}

// WithInitializer sets a hook run once on the entry that wins the insert
// race, under the exclusive lock, before its handle is handed out. Use it
// for secondary state that only the canonical entry should carry.
func WithInitializer[E Entry](fn func(E)) Option[E] {
	return func(o *options[E]) { o.initialize = fn }
}

// WithReclaimer sets a hook run exactly once for a removed entry, as soon
// as it is both removed and unreferenced. The hook runs without the
// registry lock held.
func WithReclaimer[E Entry](fn func(E)) Option[E] {
	return func(o *options[E]) { o.reclaim = fn }
}

// WithMetrics attaches a metrics observer. Nil means no-op.
func WithMetrics[E Entry](m metrics.RegistryMetrics) Option[E] {
	return func(o *options[E]) { o.metrics = m }
}

// Registry is an indexed, reference-counted set of entries keyed by K.
//
// Lookups take the lock shared; inserts and removals take it exclusively and
// only for the index operation itself. Reference counts are atomic and
// lock-free.
type Registry[K any, E Entry] struct {
	name  string
	codec KeyCodec[K]
	alloc func(K) (E, error)

	lock  rwLock
	index *index[E]

	// entries mirrors the index size for metrics; written under the
	// exclusive lock.
	entries int

	initialize func(E)
	reclaim    func(E)
	metrics    metrics.RegistryMetrics
}

// New creates an empty registry.
//
// Parameters:
//   - name: short identifier used in logs and metric labels ("export", "client")
//   - codec: key encoding and ordering for the index
//   - alloc: builds a new, unreferenced record for a key; an error means the
//     record could not be allocated and GetOrCreate reports not found
//
// The registry is ready for concurrent use as soon as New returns.
func New[K any, E Entry](name string, codec KeyCodec[K], alloc func(K) (E, error), opts ...Option[E]) *Registry[K, E] {
	if alloc == nil {
		panic("registry: allocator cannot be nil")
	}
	if codec.Encode == nil || codec.Compare == nil {
		panic("registry: key codec must provide Encode and Compare")
	}
	if codec.Describe == nil {
		codec.Describe = func(k any) string { return fmt.Sprint(k) }
	}

	var o options[E]
	for _, opt := range opts {
		opt(&o)
	}
	if o.metrics == nil {
		o.metrics = metrics.NewNoopRegistryMetrics()
	}

	r := &Registry[K, E]{
		name:       name,
		codec:      codec,
		alloc:      alloc,
		index:      newIndex[E](name, codec.Compare, codec.Describe),
		initialize: o.initialize,
		reclaim:    o.reclaim,
		metrics:    o.metrics,
	}
	r.lock.name = name
	r.lock.metrics = o.metrics
	r.metrics.SetEntries(name, 0)
	return r
}

// Name returns the registry's identifier.
func (r *Registry[K, E]) Name() string {
	return r.name
}

// GetOrCreate returns a referenced handle to the entry for key.
//
// If the key is absent and lookupOnly is true, it returns false and leaves
// the registry unchanged. Otherwise a new entry is allocated outside any lock
// and inserted under the exclusive lock; if another caller inserted the same
// key first, the allocation is discarded and the winner is referenced
// instead. Every true return must be paired with exactly one Release.
//
// Returns false without side effects if the allocator fails.
func (r *Registry[K, E]) GetOrCreate(key K, lookupOnly bool) (E, bool) {
	k := r.codec.Encode(key)

	unlock := r.lock.lockShared()
	if e, ok := r.index.lookup(k); ok {
		e.Ref().acquire()
		unlock()
		r.metrics.RecordLookup(r.name, metrics.LookupHit)
		return e, true
	}
	unlock()

	var zero E
	if lookupOnly {
		r.metrics.RecordLookup(r.name, metrics.LookupMiss)
		return zero, false
	}

	fresh, err := r.alloc(key)
	if err != nil {
		logger.Warn("registry %s: allocation for %s failed: %v", r.name, r.codec.Describe(k), err)
		r.metrics.RecordLookup(r.name, metrics.LookupAllocFailed)
		return zero, false
	}
	fresh.Ref().store(0)

	unlock = r.lock.lockExclusive()
	canonical, inserted := r.index.insert(k, fresh)
	if inserted {
		if r.initialize != nil {
			r.initialize(canonical)
		}
		canonical.Ref().store(1)
		r.entries++
		r.metrics.SetEntries(r.name, r.entries)
	} else {
		canonical.Ref().acquire()
	}
	unlock()

	if inserted {
		logger.Debug("registry %s: created entry %s", r.name, r.codec.Describe(k))
		r.metrics.RecordLookup(r.name, metrics.LookupCreated)
	} else {
		r.metrics.RecordLookup(r.name, metrics.LookupRaced)
	}
	return canonical, true
}

// Lookup is GetOrCreate in lookup-only mode.
func (r *Registry[K, E]) Lookup(key K) (E, bool) {
	return r.GetOrCreate(key, true)
}

// Release drops a reference obtained from GetOrCreate.
//
// Releasing an entry whose count is already zero means a handle was
// released twice or never acquired; that corruption cannot be recovered
// from and Release panics. Reaching zero never unlinks the entry; if the
// entry was already removed, the reclaim hook runs.
func (r *Registry[K, E]) Release(e E) {
	ref := e.Ref()
	n, ok := ref.release()
	if !ok {
		logger.Error("registry %s: release of unreferenced entry %p (refcount %d)", r.name, ref, n)
		panic(fmt.Sprintf("registry %s: refcount underflow on release", r.name))
	}
	r.metrics.RecordRelease(r.name)

	if n == 0 && ref.Removed() {
		r.reclaimEntry(e)
	}
}

// Remove unlinks the entry for key and reports whether it was present.
//
// Remove does not wait for outstanding handles: they remain usable, their
// entry reports Removed, and the reclaim hook runs when the last of them is
// released (immediately if there are none).
func (r *Registry[K, E]) Remove(key K) bool {
	k := r.codec.Encode(key)

	unlock := r.lock.lockExclusive()
	e, ok := r.index.remove(k)
	if ok {
		e.Ref().markRemoved()
		r.entries--
		r.metrics.SetEntries(r.name, r.entries)
	}
	unlock()

	r.metrics.RecordRemove(r.name, ok)
	if !ok {
		return false
	}

	logger.Debug("registry %s: removed entry %s", r.name, r.codec.Describe(k))
	if e.Ref().Load() == 0 {
		r.reclaimEntry(e)
	}
	return true
}

func (r *Registry[K, E]) reclaimEntry(e E) {
	if !e.Ref().claimReclaim() {
		return
	}
	r.metrics.RecordReclaim(r.name)
	if r.reclaim != nil {
		r.reclaim(e)
	}
}

// ForEach calls fn for each entry in ascending key order while holding the
// shared lock, stopping early when fn returns false. It returns the number
// of entries for which fn returned true.
//
// fn must not call back into this registry: the lock is not re-entrant, and
// even a nested lookup can deadlock behind a waiting writer. fn gets no
// reference of its own, so it should copy out what it needs; to keep an
// entry past ForEach, look it up again afterwards.
func (r *Registry[K, E]) ForEach(fn func(E) bool) int {
	count := 0

	defer r.lock.lockShared()()
	r.index.ascend(func(e E) bool {
		if !fn(e) {
			return false
		}
		count++
		return true
	})
	return count
}

// Len returns the number of indexed entries.
func (r *Registry[K, E]) Len() int {
	defer r.lock.lockShared()()
	return r.index.len()
}
