package metrics

import "time"

// Lock modes reported to ObserveLockWait.
const (
	LockShared    = "shared"
	LockExclusive = "exclusive"
)

// Lookup outcomes reported to RecordLookup.
const (
	// LookupHit: the key was already indexed and its refcount was taken.
	LookupHit = "hit"
	// LookupMiss: lookup-only request for an absent key.
	LookupMiss = "miss"
	// LookupCreated: this caller inserted the canonical entry.
	LookupCreated = "created"
	// LookupRaced: another caller inserted first; the allocation was discarded.
	LookupRaced = "raced"
	// LookupAllocFailed: the allocator returned an error.
	LookupAllocFailed = "alloc_failed"
)

// RegistryMetrics observes a live-state registry (exports, clients).
//
// The registry label identifies the instance ("export", "client").
// Implementations must be safe for concurrent use; they are called from the
// request path, sometimes while a registry lock is held, and must never
// call back into a registry.
type RegistryMetrics interface {
	// ObserveLockWait records how long a caller waited to acquire the
	// registry lock in the given mode.
	ObserveLockWait(registry string, mode string, wait time.Duration)

	// RecordLookup counts a GetOrCreate outcome (see Lookup* constants).
	RecordLookup(registry string, result string)

	// RecordRelease counts a released handle.
	RecordRelease(registry string)

	// RecordRemove counts a Remove call and whether the key was present.
	RecordRemove(registry string, found bool)

	// RecordReclaim counts an entry reclaimed after removal.
	RecordReclaim(registry string)

	// SetEntries publishes the number of indexed entries.
	SetEntries(registry string, count int)
}

// NewNoopRegistryMetrics returns a RegistryMetrics that discards everything.
func NewNoopRegistryMetrics() RegistryMetrics {
	return noopRegistryMetrics{}
}

type noopRegistryMetrics struct{}

func (noopRegistryMetrics) ObserveLockWait(registry string, mode string, wait time.Duration) {}
func (noopRegistryMetrics) RecordLookup(registry string, result string)                      {}
func (noopRegistryMetrics) RecordRelease(registry string)                                    {}
func (noopRegistryMetrics) RecordRemove(registry string, found bool)                         {}
func (noopRegistryMetrics) RecordReclaim(registry string)                                    {}
func (noopRegistryMetrics) SetEntries(registry string, count int)                            {}
