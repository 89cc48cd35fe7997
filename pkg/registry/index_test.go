package registry

import (
	"testing"

	"github.com/emirpasic/gods/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIndex() *index[*Export] {
	return newIndex[*Export]("test", utils.UInt64Comparator, exportCodec.Describe)
}

func TestIndex_InsertKeepsFirst(t *testing.T) {
	x := newTestIndex()
	first := &Export{ID: 1}
	second := &Export{ID: 1}

	got, inserted := x.insert(uint64(1), first)
	assert.True(t, inserted)
	assert.Same(t, first, got)

	got, inserted = x.insert(uint64(1), second)
	assert.False(t, inserted)
	assert.Same(t, first, got)
	assert.Equal(t, 1, x.len())
}

func TestIndex_RemoveAndLookup(t *testing.T) {
	x := newTestIndex()
	e := &Export{ID: 2}
	x.insert(uint64(2), e)

	got, ok := x.remove(uint64(2))
	require.True(t, ok)
	assert.Same(t, e, got)

	_, ok = x.lookup(uint64(2))
	assert.False(t, ok)
	_, ok = x.remove(uint64(2))
	assert.False(t, ok)
	assert.Zero(t, x.len())
}

func TestIndex_AscendStops(t *testing.T) {
	x := newTestIndex()
	for _, id := range []uint64{30, 10, 20} {
		x.insert(id, &Export{ID: ExportID(id)})
	}

	var ids []ExportID
	x.ascend(func(e *Export) bool {
		ids = append(ids, e.ID)
		return len(ids) < 2
	})
	assert.Equal(t, []ExportID{10, 20}, ids)
}

func TestIndex_KeyTypeMismatchPanics(t *testing.T) {
	x := newTestIndex()
	x.insert(uint64(1), &Export{ID: 1})

	var msg any
	func() {
		defer func() { msg = recover() }()
		x.lookup("not a uint64")
	}()
	require.NotNil(t, msg)
	assert.Contains(t, msg, "registry test: index lookup(")
}

func TestIndex_EmptyLookup(t *testing.T) {
	x := newTestIndex()
	_, ok := x.lookup(uint64(1))
	assert.False(t, ok)

	calls := 0
	x.ascend(func(*Export) bool { calls++; return true })
	assert.Zero(t, calls)
}

func TestExportCodec_Describe(t *testing.T) {
	assert.Equal(t, "export 7", exportCodec.Describe(exportCodec.Encode(7)))
}
