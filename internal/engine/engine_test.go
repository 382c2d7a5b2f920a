package engine_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/arasdb/cairn/internal/config"
	"github.com/arasdb/cairn/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openEngine(t *testing.T, cfg *config.Config) (*engine.Engine, string) {
	t.Helper()
	dir := t.TempDir()
	e, err := engine.Open(dir, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e, dir
}

func TestEngine_BasicPutGetDelete(t *testing.T) {
	e, _ := openEngine(t, nil)

	require.NoError(t, e.Put("foo", "bar"))
	require.NoError(t, e.Put("baz", "qux"))

	entry, found := e.Get("foo")
	require.True(t, found)
	assert.Equal(t, "bar", *entry.Value)

	require.NoError(t, e.Delete("foo"))

	entry, found = e.Get("foo")
	require.True(t, found, "a tombstone is still a hit")
	assert.True(t, entry.IsTombstone())

	_, found = e.Get("nonexistent")
	assert.False(t, found)
}

func TestEngine_WALReplay(t *testing.T) {
	dir := t.TempDir()

	e, err := engine.Open(dir, nil)
	require.NoError(t, err)
	require.NoError(t, e.Put("a", "1"))
	require.NoError(t, e.Put("b", "2"))
	require.NoError(t, e.Delete("a"))
	require.NoError(t, e.Close())

	e2, err := engine.Open(dir, nil)
	require.NoError(t, err)
	defer e2.Close()

	entry, found := e2.Get("a")
	require.True(t, found)
	assert.True(t, entry.IsTombstone())

	entry, found = e2.Get("b")
	require.True(t, found)
	assert.Equal(t, "2", *entry.Value)
}

func TestEngine_ReplayWithoutClose(t *testing.T) {
	dir := t.TempDir()

	e, err := engine.Open(dir, nil)
	require.NoError(t, err)
	require.NoError(t, e.Put("a", "1"))
	require.NoError(t, e.Put("b", "2"))

	// Simulate a crash: no Close, no explicit flush. Replay must recover
	// everything from the still-live WAL.
	e2, err := engine.Open(dir, nil)
	require.NoError(t, err)
	defer e2.Close()

	entry, found := e2.Get("a")
	require.True(t, found)
	assert.Equal(t, "1", *entry.Value)
}

func TestEngine_FlushOnThreshold(t *testing.T) {
	cfg := &config.Config{MemtableThreshold: 2, SSTableIndexInterval: 1}
	e, dir := openEngine(t, cfg)

	require.NoError(t, e.Put("a", "1"))
	assert.Empty(t, e.SSTables(), "flush should not trigger below threshold")

	require.NoError(t, e.Put("b", "2"))
	assert.Len(t, e.SSTables(), 1, "flush should trigger exactly once at threshold")
	assert.Equal(t, 0, e.Memtable().Len())

	entry, found := e.Get("a")
	require.True(t, found)
	assert.Equal(t, "1", *entry.Value)

	walPath := filepath.Join(dir, "wal.log")
	info, err := os.Stat(walPath)
	require.NoError(t, err)
	assert.Zero(t, info.Size(), "wal should be retired after a successful flush")
}

func TestEngine_FlushEmptyMemtableIsNoOp(t *testing.T) {
	e, _ := openEngine(t, nil)
	require.NoError(t, e.Flush())
	assert.Empty(t, e.SSTables())
}

func TestEngine_GetPrefersMemtableOverSSTable(t *testing.T) {
	cfg := &config.Config{MemtableThreshold: 1000, SSTableIndexInterval: 1}
	e, _ := openEngine(t, cfg)

	require.NoError(t, e.Put("k", "flushed"))
	require.NoError(t, e.Flush())
	require.NoError(t, e.Put("k", "live"))

	entry, found := e.Get("k")
	require.True(t, found)
	assert.Equal(t, "live", *entry.Value)
}

func TestEngine_GetSearchesSSTablesNewestFirst(t *testing.T) {
	cfg := &config.Config{MemtableThreshold: 1, SSTableIndexInterval: 1}
	e, _ := openEngine(t, cfg)

	require.NoError(t, e.Put("k", "v1")) // flushes: sstable 1
	require.NoError(t, e.Put("k", "v2")) // flushes: sstable 2
	require.Len(t, e.SSTables(), 2)

	entry, found := e.Get("k")
	require.True(t, found)
	assert.Equal(t, "v2", *entry.Value)
}

func TestEngine_CompactNoOpWithZeroSSTables(t *testing.T) {
	cfg := &config.Config{MemtableThreshold: 1, SSTableIndexInterval: 1}
	e, _ := openEngine(t, cfg)

	require.Len(t, e.SSTables(), 0)
	require.NoError(t, e.Compact())
	assert.Len(t, e.SSTables(), 0)
}

func TestEngine_CompactDropsTombstoneFromSingleSSTable(t *testing.T) {
	cfg := &config.Config{MemtableThreshold: 2, SSTableIndexInterval: 1}
	e, _ := openEngine(t, cfg)

	require.NoError(t, e.Put("a", "keep"))
	require.NoError(t, e.Delete("b"))
	require.Len(t, e.SSTables(), 1)

	require.NoError(t, e.Compact())
	require.Len(t, e.SSTables(), 1, "compaction still merges a lone sstable through itself")

	_, found := e.Get("b")
	assert.False(t, found, "a tombstone must not survive compaction even with a single input sstable")

	entry, found := e.Get("a")
	require.True(t, found)
	assert.Equal(t, "keep", *entry.Value)
}

func TestEngine_CompactMergesAndDropsTombstones(t *testing.T) {
	cfg := &config.Config{MemtableThreshold: 1, SSTableIndexInterval: 1}
	e, dir := openEngine(t, cfg)

	require.NoError(t, e.Put("a", "old"))
	require.NoError(t, e.Put("a", "new"))
	require.NoError(t, e.Put("b", "keep"))
	require.NoError(t, e.Delete("b"))
	require.Len(t, e.SSTables(), 4)

	require.NoError(t, e.Compact())
	assert.Len(t, e.SSTables(), 1)

	entry, found := e.Get("a")
	require.True(t, found)
	assert.Equal(t, "new", *entry.Value)

	_, found = e.Get("b")
	assert.False(t, found, "a tombstone resolved during compaction must disappear entirely")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	dataFiles := 0
	for _, de := range entries {
		if filepath.Ext(de.Name()) == ".jsonl" {
			dataFiles++
		}
	}
	assert.Equal(t, 1, dataFiles, "old input sstables must be removed from disk after compaction")
}

func TestEngine_ReopenAfterCompaction(t *testing.T) {
	cfg := &config.Config{MemtableThreshold: 1, SSTableIndexInterval: 1}
	dir := t.TempDir()

	e, err := engine.Open(dir, cfg)
	require.NoError(t, err)
	for i := range 3 {
		require.NoError(t, e.Put(fmt.Sprintf("k%d", i), fmt.Sprintf("v%d", i)))
	}
	require.NoError(t, e.Compact())
	require.NoError(t, e.Close())

	e2, err := engine.Open(dir, cfg)
	require.NoError(t, err)
	defer e2.Close()

	require.Len(t, e2.SSTables(), 1)
	for i := range 3 {
		entry, found := e2.Get(fmt.Sprintf("k%d", i))
		require.True(t, found)
		assert.Equal(t, fmt.Sprintf("v%d", i), *entry.Value)
	}
}

func TestEngine_RecoverFromOrphanedCompactionArtifact(t *testing.T) {
	cfg := &config.Config{MemtableThreshold: 1, SSTableIndexInterval: 1}
	dir := t.TempDir()

	e, err := engine.Open(dir, cfg)
	require.NoError(t, err)
	require.NoError(t, e.Put("a", "1"))
	require.NoError(t, e.Put("b", "2"))
	require.NoError(t, e.Close())

	// Simulate a crash mid-compaction: a half-built compacted file lands
	// on disk but the originals were never removed. Its generation is
	// newer than the originals', as a real compaction of them would be.
	orphan := filepath.Join(dir, "sst_9999999999999_compacted.jsonl")
	require.NoError(t, os.WriteFile(orphan, []byte(`{"key":"a","value":"1"}`+"\n"), 0644))

	e2, err := engine.Open(dir, cfg)
	require.NoError(t, err)
	defer e2.Close()

	assert.Len(t, e2.SSTables(), 2, "orphaned compaction artifact must be discarded in favor of the originals")
	_, err = os.Stat(orphan)
	assert.True(t, os.IsNotExist(err), "orphaned compaction artifact should have been removed")
}

func TestEngine_CloseFlushesPendingMemtable(t *testing.T) {
	cfg := &config.Config{MemtableThreshold: 1000, SSTableIndexInterval: 1}
	dir := t.TempDir()

	e, err := engine.Open(dir, cfg)
	require.NoError(t, err)
	require.NoError(t, e.Put("a", "1"))
	require.NoError(t, e.Close())

	e2, err := engine.Open(dir, cfg)
	require.NoError(t, err)
	defer e2.Close()

	require.Len(t, e2.SSTables(), 1)
	entry, found := e2.Get("a")
	require.True(t, found)
	assert.Equal(t, "1", *entry.Value)
}
