// Package engine coordinates the write-ahead log, the memtable, and the
// ordered SSTable list: the LSM core that the document layer is built on.
package engine

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/arasdb/cairn/internal/config"
	"github.com/arasdb/cairn/internal/memtable"
	"github.com/arasdb/cairn/internal/record"
	"github.com/arasdb/cairn/internal/sstable"
	"github.com/arasdb/cairn/internal/wal"
)

// Engine owns every piece of mutable storage state: the WAL handle, the
// memtable, and the SSTable list (ordered oldest to newest). All public
// methods assume single-threaded cooperative callers per the storage
// model's concurrency contract; the mutex below exists so that this
// engine is also safe to use from a preemptively-scheduled Go program,
// exactly as the storage model's guidance for threaded runtimes asks.
type Engine struct {
	mu sync.RWMutex

	dataDir  string
	cfg      *config.Config
	wal      *wal.WAL
	memtable *memtable.Memtable
	sstables []*sstable.Reader // oldest -> newest
	lastGen  int64
}

// Open creates the data directory if needed, opens (or creates) the WAL,
// replays it into a fresh memtable, and enumerates any SSTables already
// present on disk.
func Open(dataDir string, cfg *config.Config) (*Engine, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	} else {
		cfg.FillDefaults()
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("engine: create data dir: %w", err)
	}

	w, err := wal.Open(filepath.Join(dataDir, walFileName))
	if err != nil {
		return nil, fmt.Errorf("engine: open wal: %w", err)
	}

	mt := memtable.New()
	lines, err := w.Replay()
	if err != nil {
		return nil, fmt.Errorf("engine: replay wal: %w", err)
	}
	for _, l := range lines {
		if l.IsTombstone() {
			mt.Delete(l.Key)
		} else {
			mt.Put(l.Key, *l.Value)
		}
	}

	e := &Engine{
		dataDir:  dataDir,
		cfg:      cfg,
		wal:      w,
		memtable: mt,
	}

	if err := e.loadSSTables(); err != nil {
		return nil, fmt.Errorf("engine: load sstables: %w", err)
	}

	return e, nil
}

// loadSSTables enumerates the data directory's SSTable data files and
// opens a Reader for each, oldest generation first. A compaction product
// found beside plain SSTables older than it (its not yet deleted inputs,
// left by a crash mid-compaction) is treated as a half-built artifact:
// the inputs are trusted and the compaction product is discarded. A
// compaction product whose only plain neighbours are newer (flushed after
// the compaction completed) is kept.
func (e *Engine) loadSSTables() error {
	dirEntries, err := os.ReadDir(e.dataDir)
	if err != nil {
		return err
	}

	var plainPaths, compactedPaths []string
	for _, de := range dirEntries {
		if de.IsDir() || !sstable.IsDataFile(de.Name()) {
			continue
		}
		path := filepath.Join(e.dataDir, de.Name())
		if isCompactedName(de.Name()) {
			compactedPaths = append(compactedPaths, path)
		} else {
			plainPaths = append(plainPaths, path)
		}
	}

	paths := plainPaths
	for _, cp := range compactedPaths {
		cgen, _ := sstable.Generation(cp)
		orphan := false
		for _, pp := range plainPaths {
			if pgen, _ := sstable.Generation(pp); pgen < cgen {
				orphan = true
				break
			}
		}
		if orphan {
			discardOrphan(cp)
		} else {
			paths = append(paths, cp)
		}
	}

	sort.Slice(paths, func(i, j int) bool {
		gi, _ := sstable.Generation(paths[i])
		gj, _ := sstable.Generation(paths[j])
		return gi < gj
	})

	for _, p := range paths {
		r, err := sstable.Open(p)
		if err != nil {
			log.Printf("engine: skipping unreadable sstable %s: %v", p, err)
			continue
		}
		e.sstables = append(e.sstables, r)
		if r.Generation() > e.lastGen {
			e.lastGen = r.Generation()
		}
	}
	return nil
}

func isCompactedName(name string) bool {
	return strings.Contains(name, "_compacted")
}

func discardOrphan(dataPath string) {
	_ = os.Remove(dataPath)
	_ = os.Remove(sstable.IndexFileName(dataPath))
}

// nextGeneration returns a timestamp-derived generation guaranteed to be
// strictly greater than every generation issued so far by this engine.
func (e *Engine) nextGeneration() int64 {
	gen := time.Now().UnixMilli()
	if gen <= e.lastGen {
		gen = e.lastGen + 1
	}
	e.lastGen = gen
	return gen
}

// Put appends key/value to the WAL, then applies it to the memtable.
// Triggers a flush if the memtable has reached its configured threshold.
func (e *Engine) Put(key, value string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.wal.AppendPut(key, value); err != nil {
		return fmt.Errorf("engine: put: %w", err)
	}
	e.memtable.Put(key, value)
	return e.maybeFlushLocked()
}

// Delete appends a tombstone to the WAL, then applies it to the memtable.
func (e *Engine) Delete(key string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.wal.AppendDel(key); err != nil {
		return fmt.Errorf("engine: delete: %w", err)
	}
	e.memtable.Delete(key)
	return e.maybeFlushLocked()
}

func (e *Engine) maybeFlushLocked() error {
	if e.memtable.Len() < e.cfg.MemtableThreshold {
		return nil
	}
	return e.flushLocked()
}

// Get consults the memtable first, then the SSTable list newest to
// oldest, returning the first hit — present value or tombstone. found is
// false only when no memtable entry and no SSTable contains the key.
func (e *Engine) Get(key string) (record.Entry, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.getLocked(key)
}

func (e *Engine) getLocked(key string) (record.Entry, bool) {
	if entry, ok := e.memtable.Get(key); ok {
		return entry, true
	}
	for i := len(e.sstables) - 1; i >= 0; i-- {
		entry, found, err := e.sstables[i].Get(key)
		if err != nil {
			log.Printf("engine: sstable get error for key %q: %v", key, err)
			continue
		}
		if found {
			return entry, true
		}
	}
	return record.Entry{}, false
}

// Flush writes the memtable to a new SSTable and retires the WAL. A
// flush on an empty memtable is a no-op. The SSTable is made durable
// before the WAL is reset, so a crash between the two steps cannot lose
// data: recovery would simply replay the not-yet-retired WAL again.
func (e *Engine) Flush() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.flushLocked()
}

func (e *Engine) flushLocked() error {
	if e.memtable.Len() == 0 {
		return nil
	}

	entries := e.memtable.Entries()
	gen := e.nextGeneration()
	path := sstable.DataFileName(e.dataDir, gen)

	if err := sstable.Write(path, e.cfg.SSTableIndexInterval, entries); err != nil {
		return fmt.Errorf("engine: flush write sstable: %w", err)
	}

	reader, err := sstable.Open(path)
	if err != nil {
		return fmt.Errorf("engine: flush open sstable: %w", err)
	}
	e.sstables = append(e.sstables, reader)

	if err := e.wal.Reset(); err != nil {
		return fmt.Errorf("engine: flush reset wal: %w", err)
	}
	e.memtable.Clear()
	return nil
}

// Compact merges every current SSTable into one, newest-wins per key,
// dropping tombstones from the result. A single SSTable is still merged
// through itself so its own tombstones get dropped; only zero SSTables
// is a true no-op. The old SSTables remain usable until the merged table
// is durable and the swap is performed, so a crash mid-compaction leaves
// the store consistent either way.
func (e *Engine) Compact() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.sstables) == 0 {
		return nil
	}

	inputs := append([]*sstable.Reader(nil), e.sstables...)
	gen := e.nextGeneration()
	outPath := sstable.CompactedFileName(e.dataDir, gen)

	if err := sstable.Merge(inputs, outPath, e.cfg.SSTableIndexInterval); err != nil {
		return fmt.Errorf("engine: compact merge: %w", err)
	}

	reader, err := sstable.Open(outPath)
	if err != nil {
		return fmt.Errorf("engine: compact open merged sstable: %w", err)
	}

	for _, in := range inputs {
		if err := os.Remove(in.Path()); err != nil {
			log.Printf("engine: compact: failed to remove old sstable %s: %v", in.Path(), err)
		}
		if err := os.Remove(sstable.IndexFileName(in.Path())); err != nil {
			log.Printf("engine: compact: failed to remove old index %s: %v", in.Path(), err)
		}
	}

	e.sstables = []*sstable.Reader{reader}
	return nil
}

// SSTables returns the current SSTable list, oldest to newest. Used by
// the collection layer's scan path.
func (e *Engine) SSTables() []*sstable.Reader {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]*sstable.Reader(nil), e.sstables...)
}

// Memtable returns the live memtable for the collection layer's scan
// path. The returned pointer is only safe to read while holding no
// concurrent writer, matching the engine's single-writer concurrency
// model.
func (e *Engine) Memtable() *memtable.Memtable {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.memtable
}

// Close flushes any remaining memtable data and closes the WAL.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.flushLocked(); err != nil {
		return fmt.Errorf("engine: close flush: %w", err)
	}
	if err := e.wal.Close(); err != nil {
		return fmt.Errorf("engine: close wal: %w", err)
	}
	return nil
}
