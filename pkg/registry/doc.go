// Package registry implements the live-object registries of the server:
// an indexed, reference-counted set of entries protected by a two-tier
// locking scheme.
//
// A Registry pairs an ordered index (a red-black tree from
// github.com/emirpasic/gods) with a reader/writer lock. Structural changes
// (insert, remove) take the lock exclusively; lookups and traversals take it
// shared; reference counts are plain atomics and take no lock at all.
//
// Two instantiations are provided:
//
//   - ExportRegistry, keyed by the numeric export id assigned by configuration.
//   - ClientRegistry, keyed by the client's network address.
//
// Both are generic over the record actually stored, so that the statistics
// layer can own the allocation of a larger record that carries an Export or
// Client as a named field. The registry only ever touches the key and the
// reference count of that record.
//
// Lifecycle of an entry:
//
//	h, ok := clients.GetOrCreate(addr, false) // refcount +1, creating if absent
//	...                                       // use h while the request runs
//	clients.Release(h)                        // refcount -1, never below zero
//
// Entries are never evicted because their count reaches zero. Remove unlinks
// an entry explicitly; outstanding handles stay usable, Removed reports the
// staleness, and the reclaim hook runs once the last handle is released.
//
// Thread safety:
// All Registry methods are safe for concurrent use. A ForEach callback runs
// under the shared lock and must not call back into the same registry.
package registry
