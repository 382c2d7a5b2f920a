// Package wal implements the write-ahead log that gives cairn its
// crash-recovery guarantees: every put/del returned to the caller is
// already durable on disk before the call returns.
package wal

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/arasdb/cairn/internal/record"
)

// WAL is an append-only, fsync-on-every-write log of put/del operations.
type WAL struct {
	dir  string
	path string
	file *os.File
}

// Open opens (or creates) the WAL file at path. A failure here is fatal
// to the caller constructing the engine.
func Open(path string) (*WAL, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("wal: open %s: %w", path, err)
	}
	return &WAL{
		dir:  filepath.Dir(path),
		path: path,
		file: file,
	}, nil
}

// AppendPut durably appends a put record. The call does not return until
// the record is flushed to stable storage.
func (w *WAL) AppendPut(key, value string) error {
	return w.append(record.PutLine(key, value))
}

// AppendDel durably appends a delete record.
func (w *WAL) AppendDel(key string) error {
	return w.append(record.DelLine(key))
}

func (w *WAL) append(line record.Line) error {
	if err := record.WriteLine(w.file, line); err != nil {
		return fmt.Errorf("wal: append: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("wal: sync: %w", err)
	}
	return nil
}

// Replay reads the log from the beginning and returns every line that
// parsed cleanly. A malformed trailing line (a torn write from a crash
// mid-append) is tolerated: replay stops there and everything read so
// far is returned, rather than failing the open.
func (w *WAL) Replay() ([]record.Line, error) {
	if _, err := w.file.Seek(0, 0); err != nil {
		return nil, fmt.Errorf("wal: seek: %w", err)
	}
	var lines []record.Line
	err := record.ReadLines(w.file, func(l record.Line) error {
		lines = append(lines, l)
		return nil
	}, true)
	if err != nil {
		return nil, fmt.Errorf("wal: replay: %w", err)
	}
	if _, err := w.file.Seek(0, 2); err != nil {
		return nil, fmt.Errorf("wal: seek end: %w", err)
	}
	return lines, nil
}

// Reset retires the current log file under a timestamped archival name
// and opens a fresh, empty log in its place. The caller must only call
// Reset after the corresponding SSTable has already been made durable;
// otherwise a crash between the flush and the reset could lose data.
func (w *WAL) Reset() error {
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("wal: close before reset: %w", err)
	}

	archivePath := fmt.Sprintf("%s.%d", w.path, time.Now().UnixMilli())
	if err := os.Rename(w.path, archivePath); err != nil {
		return fmt.Errorf("wal: archive rename: %w", err)
	}

	file, err := os.OpenFile(w.path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("wal: reopen after reset: %w", err)
	}
	w.file = file
	return nil
}

// Close flushes and closes the WAL file handle.
func (w *WAL) Close() error {
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("wal: sync on close: %w", err)
	}
	return w.file.Close()
}
