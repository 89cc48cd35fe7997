package registry

import (
	"fmt"
	"sync"

	"github.com/emirpasic/gods/utils"
)

// ExportID identifies an export. Ids are assigned by configuration and
// carried in file handles.
type ExportID uint16

// Export is the registry-managed part of a per-export record: the id and
// the reference count. The per-entry mutex is available to collaborators
// that need to serialize writes to their own fields.
type Export struct {
	ID ExportID

	ref RefCount
	mu  sync.Mutex
}

// Ref implements Entry.
func (e *Export) Ref() *RefCount { return &e.ref }

// ExportEntry implements ExportRecord for a bare Export.
func (e *Export) ExportEntry() *Export { return e }

// Refs returns the current reference count.
func (e *Export) Refs() int64 { return e.ref.Load() }

// Removed reports whether the export was unlinked from its registry.
func (e *Export) Removed() bool { return e.ref.Removed() }

// Lock acquires the per-export mutex guarding collaborator-owned fields of
// the enclosing record. The registry never takes it.
func (e *Export) Lock() { e.mu.Lock() }

// Unlock releases the per-export mutex.
func (e *Export) Unlock() { e.mu.Unlock() }

// ExportRecord is a record that owns an Export as a named field. Ref must
// return the Export's own count.
type ExportRecord interface {
	Entry
	ExportEntry() *Export
}

// ExportRegistry indexes export records by ExportID.
type ExportRegistry[R ExportRecord] struct {
	*Registry[ExportID, R]
}

var exportCodec = KeyCodec[ExportID]{
	Encode:  func(id ExportID) any { return uint64(id) },
	Compare: utils.UInt64Comparator,
	Describe: func(k any) string {
		return fmt.Sprintf("export %d", k)
	},
}

// NewExportRegistry creates an empty export registry.
//
// alloc builds a zeroed record; it is responsible for the whole record,
// the registry fills in only the id and the reference count of its Export.
//
// Example:
//
//	exports := NewExportRegistry(func() (*Export, error) { return &Export{}, nil })
//	exp, _ := exports.GetOrCreate(1, false)
//	defer exports.Release(exp)
func NewExportRegistry[R ExportRecord](alloc func() (R, error), opts ...Option[R]) *ExportRegistry[R] {
	if alloc == nil {
		panic("registry: export allocator cannot be nil")
	}
	return &ExportRegistry[R]{
		Registry: New("export", exportCodec, func(id ExportID) (R, error) {
			rec, err := alloc()
			if err != nil {
				return rec, err
			}
			rec.ExportEntry().ID = id
			return rec, nil
		}, opts...),
	}
}
