package memory

import (
	"github.com/google/uuid"
	"github.com/stakehouse/platform/internal/repository"
)

// table is a committed collection of versioned rows. It is guarded by the
// owning Store's mutex.
type table[T any] struct {
	rows    map[uuid.UUID]T
	version func(*T) *int64
}

func newTable[T any](version func(*T) *int64) *table[T] {
	return &table[T]{rows: make(map[uuid.UUID]T), version: version}
}

// slot is a transaction's view of one row: the committed version it first
// observed (0 when absent) and its current working copy (nil when absent or
// deleted).
type slot[T any] struct {
	base  int64
	val   *T
	dirty bool
}

// txTable buffers reads and writes of one table for a transaction.
type txTable[T any] struct {
	store *Store
	t     *table[T]
	slots map[uuid.UUID]*slot[T]
}

func newTxTable[T any](s *Store, t *table[T]) *txTable[T] {
	return &txTable[T]{store: s, t: t, slots: make(map[uuid.UUID]*slot[T])}
}

func (tt *txTable[T]) load(id uuid.UUID) *slot[T] {
	if sl, ok := tt.slots[id]; ok {
		return sl
	}
	tt.store.mu.RLock()
	row, ok := tt.t.rows[id]
	tt.store.mu.RUnlock()

	sl := &slot[T]{}
	if ok {
		cp := row
		sl.base = *tt.t.version(&cp)
		sl.val = &cp
	}
	tt.slots[id] = sl
	return sl
}

func (tt *txTable[T]) get(id uuid.UUID) *T {
	sl := tt.load(id)
	if sl.val == nil {
		return nil
	}
	cp := *sl.val
	return &cp
}

func (tt *txTable[T]) create(id uuid.UUID, v *T) error {
	sl := tt.load(id)
	if sl.val != nil {
		return repository.ErrConflict
	}
	*tt.t.version(v) = 1
	cp := *v
	sl.val = &cp
	sl.dirty = true
	return nil
}

func (tt *txTable[T]) update(id uuid.UUID, v *T) error {
	sl := tt.load(id)
	if sl.val == nil || *tt.t.version(sl.val) != *tt.t.version(v) {
		return repository.ErrConflict
	}
	*tt.t.version(v)++
	cp := *v
	sl.val = &cp
	sl.dirty = true
	return nil
}

func (tt *txTable[T]) remove(id uuid.UUID, v *T) error {
	sl := tt.load(id)
	if sl.val == nil || *tt.t.version(sl.val) != *tt.t.version(v) {
		return repository.ErrConflict
	}
	sl.val = nil
	sl.dirty = true
	return nil
}

// validate checks every observed row still has the version first read.
// Callers hold the store's write lock.
func (tt *txTable[T]) validate() error {
	for id, sl := range tt.slots {
		var current int64
		if row, ok := tt.t.rows[id]; ok {
			current = *tt.t.version(&row)
		}
		if current != sl.base {
			return repository.ErrConflict
		}
	}
	return nil
}

// apply publishes dirty rows. Callers hold the store's write lock.
func (tt *txTable[T]) apply() {
	for id, sl := range tt.slots {
		if !sl.dirty {
			continue
		}
		if sl.val == nil {
			delete(tt.t.rows, id)
			continue
		}
		tt.t.rows[id] = *sl.val
	}
}

// snapshot copies the committed rows matching keep.
func (tt *txTable[T]) snapshot(keep func(*T) bool) []T {
	tt.store.mu.RLock()
	defer tt.store.mu.RUnlock()
	var out []T
	for _, row := range tt.t.rows {
		r := row
		if keep(&r) {
			out = append(out, r)
		}
	}
	return out
}
