// Package memtable implements the in-memory mutable table that absorbs
// writes before they are flushed to an SSTable.
package memtable

import "github.com/arasdb/cairn/internal/record"

// Memtable is an ordered, in-memory map from key to optional value. It is
// the authoritative source for any key it holds, whether the stored value
// is present or a tombstone.
type Memtable struct {
	sl *skipList
}

// New creates an empty Memtable.
func New() *Memtable {
	return &Memtable{sl: newSkipList()}
}

// Put inserts or overwrites key with value.
func (m *Memtable) Put(key, value string) {
	m.sl.put(record.PutEntry(key, value))
}

// Delete marks key as deleted (a tombstone), superseding any prior value.
func (m *Memtable) Delete(key string) {
	m.sl.put(record.DelEntry(key))
}

// Get returns the entry stored for key and whether it was found at all
// (present or tombstoned). The caller must check Entry.IsTombstone.
func (m *Memtable) Get(key string) (record.Entry, bool) {
	return m.sl.get(key)
}

// Entries returns every entry currently held, in ascending key order.
func (m *Memtable) Entries() []record.Entry {
	return m.sl.entries()
}

// Len returns the number of distinct keys held (puts and tombstones alike).
func (m *Memtable) Len() int {
	return m.sl.Len()
}

// Size returns the approximate size in bytes of all keys and present values.
func (m *Memtable) Size() int {
	return m.sl.Size()
}

// Clear empties the memtable.
func (m *Memtable) Clear() {
	m.sl.clear()
}
