// Package sstable implements the immutable, sorted, on-disk segment that
// flushed memtables (and compactions) are written into: a data file of
// JSON-lines records plus a sparse index sidecar mapping sampled keys to
// byte offsets.
package sstable

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

const dataSuffix = ".jsonl"
const indexSuffix = ".idx"
const compactedMarker = "_compacted"

// indexEntry is one sampled key in the sparse index, kept sorted by Key.
type indexEntry struct {
	Key    string `json:"key"`
	Offset int64  `json:"offset"`
}

// DataFileName builds the data-file path for a generation timestamp
// (milliseconds since epoch) inside dir, e.g. "sst_1700000000000.jsonl".
func DataFileName(dir string, generation int64) string {
	return filepath.Join(dir, fmt.Sprintf("sst_%d%s", generation, dataSuffix))
}

// CompactedFileName builds the data-file path for a compaction product.
func CompactedFileName(dir string, generation int64) string {
	return filepath.Join(dir, fmt.Sprintf("sst_%d%s%s", generation, compactedMarker, dataSuffix))
}

// IndexFileName returns the sidecar index path for a given data file path.
func IndexFileName(dataPath string) string {
	return dataPath + indexSuffix
}

// Generation parses the generation timestamp out of an SSTable data file
// name. SSTables are ordered oldest-to-newest by this value.
func Generation(dataPath string) (int64, error) {
	base := filepath.Base(dataPath)
	base = strings.TrimSuffix(base, dataSuffix)
	base = strings.TrimPrefix(base, "sst_")
	base = strings.TrimSuffix(base, compactedMarker)
	gen, err := strconv.ParseInt(base, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("sstable: cannot parse generation from %q: %w", dataPath, err)
	}
	return gen, nil
}

// IsDataFile reports whether name (a base file name, not a path) looks
// like an SSTable data file.
func IsDataFile(name string) bool {
	return strings.HasPrefix(name, "sst_") && strings.HasSuffix(name, dataSuffix)
}
