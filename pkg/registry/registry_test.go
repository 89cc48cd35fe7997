package registry

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/marmos91/dittoreg/pkg/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExports(opts ...Option[*Export]) *ExportRegistry[*Export] {
	return NewExportRegistry(func() (*Export, error) { return &Export{}, nil }, opts...)
}

func collectIDs(reg *ExportRegistry[*Export]) []ExportID {
	var ids []ExportID
	reg.ForEach(func(e *Export) bool {
		ids = append(ids, e.ID)
		return true
	})
	return ids
}

// recordingMetrics counts registry observations for assertions.
type recordingMetrics struct {
	mu       sync.Mutex
	lookups  map[string]int
	releases int
	removes  map[bool]int
	reclaims int
	entries  int
	waits    map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		lookups: make(map[string]int),
		removes: make(map[bool]int),
		waits:   make(map[string]int),
	}
}

func (m *recordingMetrics) ObserveLockWait(registry string, mode string, wait time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.waits[mode]++
}

func (m *recordingMetrics) RecordLookup(registry string, result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups[result]++
}

func (m *recordingMetrics) RecordRelease(registry string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releases++
}

func (m *recordingMetrics) RecordRemove(registry string, found bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removes[found]++
}

func (m *recordingMetrics) RecordReclaim(registry string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reclaims++
}

func (m *recordingMetrics) SetEntries(registry string, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = count
}

func TestGetOrCreate_CreatesReferencedEntry(t *testing.T) {
	reg := newTestExports()

	exp, ok := reg.GetOrCreate(7, false)
	require.True(t, ok)
	assert.Equal(t, ExportID(7), exp.ID)
	assert.Equal(t, int64(1), exp.Refs())
	assert.Equal(t, 1, reg.Len())

	again, ok := reg.GetOrCreate(7, false)
	require.True(t, ok)
	assert.Same(t, exp, again)
	assert.Equal(t, int64(2), exp.Refs())

	reg.Release(exp)
	reg.Release(again)
	assert.Equal(t, int64(0), exp.Refs())
	assert.Equal(t, 1, reg.Len(), "reaching zero must not evict")
}

func TestGetOrCreate_LookupOnlyDoesNotMutate(t *testing.T) {
	reg := newTestExports()

	_, ok := reg.GetOrCreate(1, false)
	require.True(t, ok)
	before := reg.ForEach(func(*Export) bool { return true })

	_, ok = reg.GetOrCreate(42, true)
	assert.False(t, ok)
	_, ok = reg.Lookup(42)
	assert.False(t, ok)

	after := reg.ForEach(func(*Export) bool { return true })
	assert.Equal(t, before, after)
	assert.Equal(t, []ExportID{1}, collectIDs(reg))
}

func TestGetOrCreate_LookupOnlyHitTakesReference(t *testing.T) {
	reg := newTestExports()

	exp, _ := reg.GetOrCreate(3, false)
	hit, ok := reg.Lookup(3)
	require.True(t, ok)
	assert.Same(t, exp, hit)
	assert.Equal(t, int64(2), exp.Refs())
}

func TestGetOrCreate_LostRaceDiscardsAllocation(t *testing.T) {
	m := newRecordingMetrics()
	started := make(chan struct{})
	proceed := make(chan struct{})
	discarded := &Export{}

	var calls, initialized atomic.Int32
	reg := NewExportRegistry(func() (*Export, error) {
		if calls.Add(1) == 1 {
			close(started)
			<-proceed
			return discarded, nil
		}
		return &Export{}, nil
	},
		WithMetrics[*Export](m),
		WithInitializer(func(*Export) { initialized.Add(1) }),
	)

	slow := make(chan *Export, 1)
	go func() {
		e, ok := reg.GetOrCreate(5, false)
		assert.True(t, ok)
		slow <- e
	}()

	<-started
	winner, ok := reg.GetOrCreate(5, false)
	require.True(t, ok)
	require.NotSame(t, discarded, winner)
	close(proceed)

	loser := <-slow
	assert.Same(t, winner, loser, "the late creator must get the inserted entry")
	assert.NotSame(t, discarded, loser)
	assert.Equal(t, int64(2), winner.Refs())
	assert.Equal(t, 1, reg.Len())
	assert.Equal(t, int32(1), initialized.Load(), "only the inserted entry is initialized")

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.Equal(t, 1, m.lookups[metrics.LookupRaced])
	assert.Equal(t, 1, m.lookups[metrics.LookupCreated])
	assert.Equal(t, 1, m.entries)
}

func TestGetOrCreate_UniqueUnderContention(t *testing.T) {
	const workers = 64

	var allocs atomic.Int32
	var inits atomic.Int32
	reg := NewExportRegistry(func() (*Export, error) {
		allocs.Add(1)
		return &Export{}, nil
	}, WithInitializer(func(*Export) { inits.Add(1) }))

	handles := make([]*Export, workers)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			h, ok := reg.GetOrCreate(9, false)
			if ok {
				handles[i] = h
			}
		}(i)
	}
	close(start)
	wg.Wait()

	for i := 1; i < workers; i++ {
		require.NotNil(t, handles[i])
		assert.Same(t, handles[0], handles[i], "worker %d got a different entry", i)
	}
	assert.Equal(t, int64(workers), handles[0].Refs())
	assert.Equal(t, 1, reg.Len())
	assert.Equal(t, int32(1), inits.Load(), "only the canonical entry is initialized")
	assert.GreaterOrEqual(t, allocs.Load(), int32(1))
}

func TestGetOrCreate_AllocationFailureLeavesNoState(t *testing.T) {
	m := newRecordingMetrics()
	reg := NewExportRegistry(func() (*Export, error) {
		return nil, errors.New("out of memory")
	}, WithMetrics[*Export](m))

	exp, ok := reg.GetOrCreate(5, false)
	assert.False(t, ok)
	assert.Nil(t, exp)
	assert.Equal(t, 0, reg.Len())
	assert.Equal(t, 1, m.lookups[metrics.LookupAllocFailed])
	assert.Zero(t, m.waits[metrics.LockExclusive], "failed allocation must not reach the insert step")
}

func TestRelease_UnderflowPanics(t *testing.T) {
	reg := newTestExports()

	exp, _ := reg.GetOrCreate(1, false)
	reg.Release(exp)

	assert.Panics(t, func() { reg.Release(exp) })
	assert.Equal(t, int64(0), exp.Refs(), "a failed release must not change the count")
}

func TestRelease_NeverNegativeUnderInterleaving(t *testing.T) {
	reg := newTestExports()
	exp, _ := reg.GetOrCreate(1, false)

	stop := make(chan struct{})
	var negative atomic.Bool
	var observer sync.WaitGroup
	observer.Add(1)
	go func() {
		defer observer.Done()
		for {
			select {
			case <-stop:
				return
			default:
				if exp.Refs() < 0 {
					negative.Store(true)
				}
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				h, ok := reg.GetOrCreate(1, false)
				if !ok {
					continue
				}
				reg.Release(h)
			}
		}()
	}
	wg.Wait()
	close(stop)
	observer.Wait()

	assert.False(t, negative.Load())
	assert.Equal(t, int64(1), exp.Refs())
	reg.Release(exp)
}

func TestForEach_AscendingOrder(t *testing.T) {
	reg := newTestExports()

	var handles []*Export
	for _, id := range []ExportID{3, 1, 4, 1, 5} {
		h, ok := reg.GetOrCreate(id, false)
		require.True(t, ok)
		handles = append(handles, h)
	}

	assert.Equal(t, []ExportID{1, 3, 4, 5}, collectIDs(reg))
	assert.Same(t, handles[1], handles[3], "duplicate key must resolve to one entry")
	assert.Equal(t, int64(2), handles[1].Refs())
}

func TestForEach_StopsEarly(t *testing.T) {
	reg := newTestExports()
	for id := ExportID(1); id <= 5; id++ {
		reg.GetOrCreate(id, false)
	}

	var seen []ExportID
	n := reg.ForEach(func(e *Export) bool {
		seen = append(seen, e.ID)
		return e.ID < 3
	})

	assert.Equal(t, []ExportID{1, 2, 3}, seen)
	assert.Equal(t, 2, n)
}

func TestForEach_EmptyRegistry(t *testing.T) {
	reg := newTestExports()
	called := false
	n := reg.ForEach(func(*Export) bool {
		called = true
		return true
	})
	assert.Zero(t, n)
	assert.False(t, called)
}

func TestForEach_ConcurrentWithCreates(t *testing.T) {
	reg := newTestExports()

	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(id ExportID) {
			defer wg.Done()
			<-start
			_, ok := reg.GetOrCreate(id, false)
			assert.True(t, ok)
		}(ExportID(i))
	}

	var during int
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-start
		during = reg.ForEach(func(*Export) bool { return true })
	}()

	close(start)
	wg.Wait()

	assert.LessOrEqual(t, during, 8)
	assert.Equal(t, 8, reg.ForEach(func(*Export) bool { return true }))
	assert.Equal(t, []ExportID{0, 1, 2, 3, 4, 5, 6, 7}, collectIDs(reg))
}

func TestRemove_ThenLookup(t *testing.T) {
	reg := newTestExports()
	reg.GetOrCreate(2, false)

	assert.True(t, reg.Remove(2))
	_, ok := reg.GetOrCreate(2, true)
	assert.False(t, ok)
	assert.False(t, reg.Remove(2))
	assert.Equal(t, 0, reg.Len())
}

func TestRemove_ReclaimsAfterLastRelease(t *testing.T) {
	var reclaimed []ExportID
	reg := newTestExports(WithReclaimer(func(e *Export) {
		reclaimed = append(reclaimed, e.ID)
	}))

	a, _ := reg.GetOrCreate(4, false)
	b, _ := reg.GetOrCreate(4, false)

	require.True(t, reg.Remove(4))
	assert.True(t, a.Removed())
	assert.Empty(t, reclaimed, "entry still referenced")

	reg.Release(a)
	assert.Empty(t, reclaimed)
	reg.Release(b)
	assert.Equal(t, []ExportID{4}, reclaimed)

	// A new entry for the same key is a different object.
	c, ok := reg.GetOrCreate(4, false)
	require.True(t, ok)
	assert.NotSame(t, a, c)
	assert.False(t, c.Removed())
}

func TestRemove_ReclaimsImmediatelyWhenUnreferenced(t *testing.T) {
	m := newRecordingMetrics()
	var reclaims atomic.Int32
	reg := newTestExports(
		WithReclaimer(func(*Export) { reclaims.Add(1) }),
		WithMetrics[*Export](m),
	)

	exp, _ := reg.GetOrCreate(6, false)
	reg.Release(exp)

	require.True(t, reg.Remove(6))
	assert.Equal(t, int32(1), reclaims.Load())
	assert.Equal(t, 1, m.reclaims)
	assert.Equal(t, 1, m.removes[true])
}

func TestRemove_ReclaimExactlyOnceUnderRace(t *testing.T) {
	for round := 0; round < 200; round++ {
		var reclaims atomic.Int32
		reg := newTestExports(WithReclaimer(func(*Export) { reclaims.Add(1) }))
		exp, _ := reg.GetOrCreate(1, false)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			reg.Release(exp)
		}()
		go func() {
			defer wg.Done()
			reg.Remove(1)
		}()
		wg.Wait()

		require.Equal(t, int32(1), reclaims.Load(), "round %d", round)
	}
}

func TestMetrics_LookupOutcomes(t *testing.T) {
	m := newRecordingMetrics()
	reg := newTestExports(WithMetrics[*Export](m))

	a, _ := reg.GetOrCreate(1, false)
	b, _ := reg.GetOrCreate(1, false)
	reg.GetOrCreate(2, true)
	reg.Release(a)
	reg.Release(b)
	reg.Remove(9)

	assert.Equal(t, 1, m.lookups[metrics.LookupCreated])
	assert.Equal(t, 1, m.lookups[metrics.LookupHit])
	assert.Equal(t, 1, m.lookups[metrics.LookupMiss])
	assert.Equal(t, 2, m.releases)
	assert.Equal(t, 1, m.removes[false])
	assert.Equal(t, 1, m.entries)
	assert.Positive(t, m.waits[metrics.LockShared])
}

func TestNew_PanicsOnMissingAllocator(t *testing.T) {
	assert.Panics(t, func() {
		NewExportRegistry[*Export](nil)
	})
	assert.Panics(t, func() {
		New[int, *Export]("broken", KeyCodec[int]{}, func(int) (*Export, error) { return &Export{}, nil })
	})
}
