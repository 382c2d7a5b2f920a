// Package sstable implements the immutable, sorted, on-disk segment that
// flushed memtables (and compactions) are written into.
package sstable

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/arasdb/cairn/internal/record"
)

// Reader is a handle onto an immutable SSTable: its sparse index lives in
// memory, its data file is opened only for the duration of a scan.
type Reader struct {
	dataPath   string
	generation int64
	index      []indexEntry // sorted by Key
}

// Open loads an SSTable's sparse index into memory. The data file itself
// is not kept open between calls.
func Open(dataPath string) (*Reader, error) {
	gen, err := Generation(dataPath)
	if err != nil {
		return nil, err
	}

	idx, err := readIndex(IndexFileName(dataPath))
	if err != nil {
		return nil, fmt.Errorf("sstable: load index for %s: %w", dataPath, err)
	}

	return &Reader{dataPath: dataPath, generation: gen, index: idx}, nil
}

func readIndex(path string) ([]indexEntry, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	var m map[string]int64
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: %v", record.ErrCorrupt, err)
	}

	entries := make([]indexEntry, 0, len(m))
	for k, off := range m {
		entries = append(entries, indexEntry{Key: k, Offset: off})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, nil
}

// Path returns the SSTable's data file path.
func (r *Reader) Path() string {
	return r.dataPath
}

// Generation returns the SSTable's creation-timestamp generation. The
// engine orders its SSTable list ascending by this value.
func (r *Reader) Generation() int64 {
	return r.generation
}

// errStopScan halts Get's forward scan once the answer is known; it
// never escapes Get.
var errStopScan = errors.New("sstable: scan stopped")

// Get looks up key. The returned Entry is the stored record (present
// value or tombstone, distinguishable via Entry.IsTombstone); found is
// false only when the SSTable has no record for key at all.
func (r *Reader) Get(key string) (record.Entry, bool, error) {
	f, err := os.Open(r.dataPath)
	if err != nil {
		return record.Entry{}, false, fmt.Errorf("sstable: open data file: %w", err)
	}
	defer f.Close()

	// Find the largest sampled key <= target; with no such candidate,
	// scan from the beginning of the file instead of reporting "not
	// found" early — the match may still fall before the first sample.
	start := int64(0)
	pos := sort.Search(len(r.index), func(i int) bool { return r.index[i].Key > key }) - 1
	if pos >= 0 {
		start = r.index[pos].Offset
	}

	if _, err := f.Seek(start, 0); err != nil {
		return record.Entry{}, false, fmt.Errorf("sstable: seek: %w", err)
	}

	var found record.Entry
	var hit bool
	scanErr := record.ReadLines(f, func(e record.Entry) error {
		if e.Key == key {
			found, hit = e, true
			return errStopScan
		}
		if e.Key > key {
			return errStopScan
		}
		return nil
	}, false)
	if scanErr != nil && !errors.Is(scanErr, errStopScan) {
		return record.Entry{}, false, fmt.Errorf("sstable: scan: %w", scanErr)
	}
	return found, hit, nil
}

// Iterator provides sequential, ascending-key access to every record in
// the SSTable, tombstones included.
type Iterator struct {
	file    *os.File
	scanner *bufio.Scanner
	current record.Entry
	err     error
}

// Scan opens the data file for sequential iteration. The caller must
// call Close when done.
func (r *Reader) Scan() (*Iterator, error) {
	f, err := os.Open(r.dataPath)
	if err != nil {
		return nil, fmt.Errorf("sstable: open for scan: %w", err)
	}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &Iterator{file: f, scanner: scanner}, nil
}

// Next advances to the next record, returning false at EOF or on error.
func (it *Iterator) Next() bool {
	for it.scanner.Scan() {
		line := it.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e record.Entry
		if err := json.Unmarshal(line, &e); err != nil {
			it.err = fmt.Errorf("%w: %v", record.ErrCorrupt, err)
			return false
		}
		it.current = e
		return true
	}
	it.err = it.scanner.Err()
	return false
}

// Entry returns the record at the iterator's current position.
func (it *Iterator) Entry() record.Entry {
	return it.current
}

// Err returns any error encountered during iteration.
func (it *Iterator) Err() error {
	return it.err
}

// Close releases the iterator's file handle.
func (it *Iterator) Close() error {
	return it.file.Close()
}
