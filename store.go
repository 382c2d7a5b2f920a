// Package cairn is an embedded document database: named collections of
// schema-validated documents persisted on an LSM storage engine (WAL,
// memtable, SSTables, compaction).
package cairn

import (
	"fmt"
	"sync"

	"github.com/arasdb/cairn/internal/config"
	"github.com/arasdb/cairn/internal/engine"
)

// Config carries the storage engine's tunables.
type Config = config.Config

// DefaultConfig returns a Config populated with default values.
var DefaultConfig = config.DefaultConfig

// Store owns the storage engine and the collection registry keyed by
// name.
type Store struct {
	mu          sync.Mutex
	engine      *engine.Engine
	collections map[string]*Collection
}

// Open opens or creates a store at dir. A nil cfg falls back to
// DefaultConfig.
func Open(dir string, cfg *Config) (*Store, error) {
	e, err := engine.Open(dir, cfg)
	if err != nil {
		return nil, fmt.Errorf("cairn: open: %w", err)
	}
	return &Store{engine: e, collections: make(map[string]*Collection)}, nil
}

// Collection returns the named collection, constructing it with sch (nil
// permitted: no validation) on first use. The schema supplied on later
// calls for an already-constructed collection is ignored.
func (s *Store) Collection(name string, sch *Schema) *Collection {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.collections[name]; ok {
		return c
	}
	c := &Collection{name: name, engine: s.engine, schema: sch}
	s.collections[name] = c
	return c
}

// Compact merges the engine's SSTables into one, dropping tombstones.
func (s *Store) Compact() error {
	if err := s.engine.Compact(); err != nil {
		return wrapStorage("compact", err)
	}
	return nil
}

// Close flushes any pending writes and releases the engine's file
// handles.
func (s *Store) Close() error {
	if err := s.engine.Close(); err != nil {
		return wrapStorage("close", err)
	}
	return nil
}
