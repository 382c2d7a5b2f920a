package wal_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/arasdb/cairn/internal/record"
	"github.com/arasdb/cairn/internal/wal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "wal.log")
}

func TestWAL_BasicOperations(t *testing.T) {
	path := setup(t)

	w, err := wal.Open(path)
	require.NoError(t, err)

	require.NoError(t, w.AppendPut("key1", "value1"))
	require.NoError(t, w.AppendPut("key2", "value2"))
	require.NoError(t, w.AppendDel("key3"))
	require.NoError(t, w.Close())

	assert.FileExists(t, path)
}

func TestWAL_Replay(t *testing.T) {
	path := setup(t)

	w, err := wal.Open(path)
	require.NoError(t, err)

	require.NoError(t, w.AppendPut("key1", "value1"))
	require.NoError(t, w.AppendPut("key2", "value2"))
	require.NoError(t, w.AppendDel("key1"))
	require.NoError(t, w.AppendPut("key3", "value3"))

	lines, err := w.Replay()
	require.NoError(t, err)
	require.Len(t, lines, 4)

	assert.Equal(t, record.OpPut, lines[0].Op)
	assert.Equal(t, "key1", lines[0].Key)
	assert.Equal(t, "value1", *lines[0].Value)

	assert.Equal(t, record.OpDel, lines[2].Op)
	assert.Equal(t, "key1", lines[2].Key)
	assert.Nil(t, lines[2].Value)

	require.NoError(t, w.Close())
}

func TestWAL_ReplayAfterReopen(t *testing.T) {
	path := setup(t)

	w1, err := wal.Open(path)
	require.NoError(t, err)
	require.NoError(t, w1.AppendPut("alpha", "1"))
	require.NoError(t, w1.AppendDel("alpha"))
	require.NoError(t, w1.Close())

	w2, err := wal.Open(path)
	require.NoError(t, err)
	lines, err := w2.Replay()
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, record.OpDel, lines[1].Op)
}

func TestWAL_ReplayToleratesTornTail(t *testing.T) {
	path := setup(t)

	w, err := wal.Open(path)
	require.NoError(t, err)
	require.NoError(t, w.AppendPut("good1", "1"))
	require.NoError(t, w.AppendPut("good2", "2"))
	require.NoError(t, w.Close())

	// Simulate a crash mid-write: append a truncated, unparseable line.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"op":"put","key":"trunc`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	w2, err := wal.Open(path)
	require.NoError(t, err)
	lines, err := w2.Replay()
	require.NoError(t, err)
	require.Len(t, lines, 2, "the torn trailing record must be dropped, not fail replay")
	assert.Equal(t, "good1", lines[0].Key)
	assert.Equal(t, "good2", lines[1].Key)
}

func TestWAL_Reset(t *testing.T) {
	path := setup(t)

	w, err := wal.Open(path)
	require.NoError(t, err)
	require.NoError(t, w.AppendPut("a", "1"))

	require.NoError(t, w.Reset())

	lines, err := w.Replay()
	require.NoError(t, err)
	assert.Empty(t, lines, "a fresh log after reset must be empty")

	require.NoError(t, w.AppendPut("b", "2"))
	require.NoError(t, w.Close())

	entries, err := filepath.Glob(path + ".*")
	require.NoError(t, err)
	assert.Len(t, entries, 1, "expected exactly one archived WAL file")
}
