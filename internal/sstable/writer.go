package sstable

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/arasdb/cairn/internal/record"
)

// Write writes entries (already sorted by ascending key) to a new data
// file at dataPath and its sparse index sidecar. interval controls the
// sampling stride: every interval-th entry is indexed; interval <= 0
// disables the index entirely (lookups fall back to a full scan). Both
// files are durably flushed before Write returns, so the caller may
// safely announce the SSTable to the engine once it returns.
func Write(dataPath string, interval int, entries []record.Entry) error {
	dataFile, err := os.OpenFile(dataPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("sstable: create data file: %w", err)
	}
	defer dataFile.Close()

	var index []indexEntry
	var offset int64
	for i, e := range entries {
		line, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("sstable: marshal entry: %w", err)
		}
		line = append(line, '\n')

		if interval > 0 && i%interval == 0 {
			index = append(index, indexEntry{Key: e.Key, Offset: offset})
		}

		n, err := dataFile.Write(line)
		if err != nil {
			return fmt.Errorf("sstable: write entry: %w", err)
		}
		offset += int64(n)
	}

	if err := dataFile.Sync(); err != nil {
		return fmt.Errorf("sstable: sync data file: %w", err)
	}
	if err := dataFile.Close(); err != nil {
		return fmt.Errorf("sstable: close data file: %w", err)
	}

	return writeIndex(IndexFileName(dataPath), index)
}

func writeIndex(path string, index []indexEntry) error {
	m := make(map[string]int64, len(index))
	for _, e := range index {
		m[e.Key] = e.Offset
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("sstable: create index file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("sstable: write index: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sstable: sync index file: %w", err)
	}
	return f.Close()
}
