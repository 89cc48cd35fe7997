package registry

import (
	"fmt"

	"github.com/emirpasic/gods/trees/redblacktree"
	"github.com/emirpasic/gods/utils"
)

// index is the ordered index under a Registry: a red-black tree mapping an
// encoded key to the stored record.
//
// index is not synchronized; the owning Registry serializes access with its
// rwLock. The tree's comparators panic on a key of the wrong type, which is
// a programmer error; the panic is re-raised naming the registry and key.
type index[E any] struct {
	name     string
	tree     *redblacktree.Tree
	describe func(any) string
}

func newIndex[E any](name string, compare utils.Comparator, describe func(any) string) *index[E] {
	return &index[E]{
		name:     name,
		tree:     redblacktree.NewWith(compare),
		describe: describe,
	}
}

// guard converts a comparator panic into one that names the operation.
// Deferred by every operation that compares keys.
func (x *index[E]) guard(op string, key any) {
	if r := recover(); r != nil {
		panic(fmt.Sprintf("registry %s: index %s(%s) failed: %v", x.name, op, x.describe(key), r))
	}
}

// lookup returns the record stored under key.
func (x *index[E]) lookup(key any) (e E, ok bool) {
	defer x.guard("lookup", key)

	v, found := x.tree.Get(key)
	if !found {
		return e, false
	}
	return v.(E), true
}

// insert stores e under key unless the key is already present. It returns
// the canonical record for key and whether it is e.
func (x *index[E]) insert(key any, e E) (canonical E, inserted bool) {
	if existing, ok := x.lookup(key); ok {
		return existing, false
	}

	defer x.guard("insert", key)
	x.tree.Put(key, e)
	return e, true
}

// remove unlinks key and returns the record it held.
func (x *index[E]) remove(key any) (e E, ok bool) {
	e, ok = x.lookup(key)
	if !ok {
		return e, false
	}

	defer x.guard("remove", key)
	x.tree.Remove(key)
	return e, true
}

// ascend calls fn for each record in ascending key order until fn returns
// false.
func (x *index[E]) ascend(fn func(E) bool) {
	it := x.tree.Iterator()
	for it.Next() {
		if !fn(it.Value().(E)) {
			return
		}
	}
}

func (x *index[E]) len() int {
	return x.tree.Size()
}
