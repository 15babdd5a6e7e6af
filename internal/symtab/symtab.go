// Package symtab provides the keyed, insertion-ordered symbol tables the
// analyzer uses for every scope it pushes (locals, procedure args, cursor
// fields, globals) and for the global registries in package registry.
// Insertion order is preserved so that emitters produce deterministic
// output regardless of Go's randomized map iteration (spec §5 "Ordering
// guarantees").
package symtab

// Table is a generic keyed mapping with insertion order preserved. It is
// not safe for concurrent use; the compiler is single-threaded (spec §5).
type Table[V any] struct {
	index map[string]int
	keys  []string
	vals  []V
}

// New returns an empty table.
func New[V any]() *Table[V] {
	return &Table[V]{index: make(map[string]int)}
}

// AddIfAbsent inserts key -> val if key is not already present, and reports
// whether the insertion happened. On a duplicate key it leaves the existing
// value untouched and returns false, matching the "first declaration wins"
// discipline schema registries use for global names.
func (t *Table[V]) AddIfAbsent(key string, val V) bool {
	if _, ok := t.index[key]; ok {
		return false
	}
	t.index[key] = len(t.keys)
	t.keys = append(t.keys, key)
	t.vals = append(t.vals, val)
	return true
}

// Set inserts or overwrites key -> val, preserving key's original insertion
// position if it already existed.
func (t *Table[V]) Set(key string, val V) {
	if i, ok := t.index[key]; ok {
		t.vals[i] = val
		return
	}
	t.index[key] = len(t.keys)
	t.keys = append(t.keys, key)
	t.vals = append(t.vals, val)
}

// Find looks up key and reports whether it was present.
func (t *Table[V]) Find(key string) (V, bool) {
	if i, ok := t.index[key]; ok {
		return t.vals[i], true
	}
	var zero V
	return zero, false
}

// Has reports whether key is present.
func (t *Table[V]) Has(key string) bool {
	_, ok := t.index[key]
	return ok
}

// Delete removes key if present. Deletion compacts the slice so that
// subsequent iteration still reflects insertion order of the remaining
// keys; it is O(n) and is expected to be rare (schema objects marked
// `deleted` are usually kept with a flag rather than physically removed,
// per spec §3.2's `deleted` flag).
func (t *Table[V]) Delete(key string) bool {
	i, ok := t.index[key]
	if !ok {
		return false
	}
	t.keys = append(t.keys[:i], t.keys[i+1:]...)
	t.vals = append(t.vals[:i], t.vals[i+1:]...)
	delete(t.index, key)
	for k, idx := range t.index {
		if idx > i {
			t.index[k] = idx - 1
		}
	}
	return true
}

// Len reports the number of entries.
func (t *Table[V]) Len() int { return len(t.keys) }

// Keys returns the keys in insertion order. The returned slice must not be
// mutated by the caller.
func (t *Table[V]) Keys() []string { return t.keys }

// Values returns the values in insertion order. The returned slice must not
// be mutated by the caller.
func (t *Table[V]) Values() []V { return t.vals }

// Each calls fn for every entry in insertion order.
func (t *Table[V]) Each(fn func(key string, val V)) {
	for i, k := range t.keys {
		fn(k, t.vals[i])
	}
}

// SortedCopy returns the table's (key, value) pairs sorted by key, using
// less as the comparator. Registries use this only where the spec
// explicitly calls for a sort order distinct from declaration order (spec
// §5: "an explicit case-sensitive lexicographic comparator is applied" for
// ad-hoc recreate actions); everything else iterates via Each/Keys/Values
// to preserve source order.
func (t *Table[V]) SortedCopy(less func(ka, kb string) bool) []Entry[V] {
	entries := make([]Entry[V], len(t.keys))
	for i, k := range t.keys {
		entries[i] = Entry[V]{Key: k, Value: t.vals[i]}
	}
	insertionSort(entries, less)
	return entries
}

// Entry is one (key, value) pair returned by SortedCopy.
type Entry[V any] struct {
	Key   string
	Value V
}

// insertionSort avoids pulling in sort.Slice's reflection-based comparator
// for what are, in practice, small registries (tens to low hundreds of
// schema objects per translation unit).
func insertionSort[V any](entries []Entry[V], less func(ka, kb string) bool) {
	for i := 1; i < len(entries); i++ {
		j := i
		for j > 0 && less(entries[j].Key, entries[j-1].Key) {
			entries[j], entries[j-1] = entries[j-1], entries[j]
			j--
		}
	}
}

// CharBufTable tracks, for each key added via Ensure, an accumulating text
// buffer. It backs the table-usage inverted index (spec §4.2:
// "symtab_ensure_charbuf"): the first time a table name is referenced from
// some context, Ensure auto-allocates its buffer, and later references
// append to it without the caller needing a separate existence check.
type CharBufTable struct {
	bufs *Table[*buf]
}

type buf struct {
	lines []string
}

// NewCharBufTable returns an empty table of accumulating buffers.
func NewCharBufTable() *CharBufTable {
	return &CharBufTable{bufs: New[*buf]()}
}

// Ensure appends line to the buffer for key, allocating it on first use.
func (c *CharBufTable) Ensure(key, line string) {
	b, ok := c.bufs.Find(key)
	if !ok {
		b = &buf{}
		c.bufs.Set(key, b)
	}
	b.lines = append(b.lines, line)
}

// Lines returns the accumulated lines for key in append order.
func (c *CharBufTable) Lines(key string) []string {
	b, ok := c.bufs.Find(key)
	if !ok {
		return nil
	}
	return b.lines
}

// Keys returns every key that has had at least one line ensured, in first-
// use order.
func (c *CharBufTable) Keys() []string { return c.bufs.Keys() }
