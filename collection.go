package cairn

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/arasdb/cairn/internal/engine"
	"github.com/arasdb/cairn/internal/record"
	"github.com/arasdb/cairn/internal/schema"
	"github.com/arasdb/cairn/internal/sstable"
)

// Collection is a named, key-prefixed namespace over a shared engine.
// Documents live under the engine key "<name>:<id>"; the colon is
// reserved, so collection names must not contain one.
type Collection struct {
	name   string
	engine *engine.Engine
	schema *Schema
}

func (c *Collection) prefix() string { return c.name + ":" }

func (c *Collection) key(id string) string { return c.prefix() + id }

// Insert validates doc (generating id if empty) and writes it. collections
// supplies the lookup used to resolve any ref rules in the schema; pass
// nil if the schema has none. Returns the document's identifier.
func (c *Collection) Insert(doc map[string]any, id string, collections map[string]*Collection) (string, error) {
	if id == "" {
		id = uuid.NewString()
	}

	if c.schema != nil {
		if err := c.ensureUniquePrimed(); err != nil {
			return "", err
		}
		if err := c.schema.Validate(doc, id, c.refLookup(collections)); err != nil {
			return "", err
		}
	}

	if err := c.write(id, doc); err != nil {
		return "", err
	}

	if c.schema != nil {
		c.schema.Register(doc, id)
	}
	return id, nil
}

// Get fetches the document stored under id. found is false for an
// unknown id or one whose most recent write was a delete.
func (c *Collection) Get(id string) (Document, bool, error) {
	entry, found := c.engine.Get(c.key(id))
	if !found || entry.IsTombstone() {
		return Document{}, false, nil
	}
	payload, err := decodePayload(*entry.Value)
	if err != nil {
		return Document{}, false, err
	}
	return Document{ID: id, Payload: payload}, true, nil
}

// Delete removes the document stored under id.
func (c *Collection) Delete(id string) error {
	if err := c.engine.Delete(c.key(id)); err != nil {
		return wrapStorage("delete", err)
	}
	return nil
}

// Update fetches the current document, overlays patch onto it, validates
// the merged result with the document's own prior unique-field values
// excluded from the uniqueness check, and writes it back.
func (c *Collection) Update(id string, patch map[string]any, collections map[string]*Collection) error {
	current, found, err := c.Get(id)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}

	merged := make(map[string]any, len(current.Payload)+len(patch))
	for k, v := range current.Payload {
		merged[k] = v
	}
	for k, v := range patch {
		merged[k] = v
	}

	if c.schema != nil {
		if err := c.ensureUniquePrimed(); err != nil {
			return err
		}
		c.schema.Unregister(current.Payload, id)
		if err := c.schema.Validate(merged, id, c.refLookup(collections)); err != nil {
			c.schema.Register(current.Payload, id)
			return err
		}
	}

	if err := c.write(id, merged); err != nil {
		if c.schema != nil {
			c.schema.Register(current.Payload, id)
		}
		return err
	}

	if c.schema != nil {
		c.schema.Register(merged, id)
	}
	return nil
}

// Find returns every document matching filter (nil matches everything),
// scanning memtable then SSTables newest-to-oldest with the standard
// shadowing rules. limit, when positive, stops the scan once that many
// matches have been collected.
func (c *Collection) Find(filter Filter, limit int) ([]Document, error) {
	it := c.scan()
	var out []Document
	for it.Next() {
		d := it.Document()
		if filter != nil && !matchesFilter(d.Payload, filter) {
			continue
		}
		out = append(out, d)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	if it.Err() != nil {
		return nil, wrapStorage("find", it.Err())
	}
	return out, nil
}

// FindOne returns the first document matching filter, if any.
func (c *Collection) FindOne(filter Filter) (Document, bool, error) {
	docs, err := c.Find(filter, 1)
	if err != nil {
		return Document{}, false, err
	}
	if len(docs) == 0 {
		return Document{}, false, nil
	}
	return docs[0], true, nil
}

// FindAll returns every live document in the collection, up to limit.
func (c *Collection) FindAll(limit int) ([]Document, error) {
	return c.Find(nil, limit)
}

func (c *Collection) write(id string, doc map[string]any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("cairn: encode document %q: %w", id, err)
	}
	if err := c.engine.Put(c.key(id), string(data)); err != nil {
		return wrapStorage("insert", err)
	}
	return nil
}

func (c *Collection) refLookup(collections map[string]*Collection) func(string, string) (bool, error) {
	return func(collection, id string) (bool, error) {
		target, ok := collections[collection]
		if !ok {
			return false, fmt.Errorf("cairn: reference to unregistered collection %q", collection)
		}
		_, found, err := target.Get(id)
		if err != nil {
			return false, err
		}
		return found, nil
	}
}

// ensureUniquePrimed rebuilds the uniqueness registry for any unique
// field that hasn't been touched yet, via a single full scan shared
// across all such fields (Open Question (a): rebuild lazily on first
// touch rather than eagerly at construction).
func (c *Collection) ensureUniquePrimed() error {
	var unprimed []string
	for _, f := range c.schema.UniqueFields() {
		if !c.schema.IsPrimed(f) {
			unprimed = append(unprimed, f)
		}
	}
	if len(unprimed) == 0 {
		return nil
	}

	values := make(map[string]map[string]string, len(unprimed))
	for _, f := range unprimed {
		values[f] = make(map[string]string)
	}

	docs, err := c.FindAll(0)
	if err != nil {
		return err
	}
	for _, d := range docs {
		for _, f := range unprimed {
			val, ok := d.Payload[f]
			if !ok {
				continue
			}
			key, ok := schema.UniqueKey(val)
			if !ok {
				continue
			}
			values[f][key] = d.ID
		}
	}

	for _, f := range unprimed {
		c.schema.Prime(f, values[f])
	}
	return nil
}

func decodePayload(raw string) (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("cairn: decode document: %w", ErrCorruptRecord)
	}
	return m, nil
}

// docIterator pulls documents from the memtable then each SSTable
// newest-to-oldest, carrying the "seen" set as internal state so a key
// already resolved by a newer source is never yielded twice — the
// document-layer counterpart to the engine's own newest-wins read path.
type docIterator struct {
	coll *Collection

	seen       map[string]struct{}
	memEntries []record.Entry
	memPos     int

	sstables []*sstable.Reader
	sstPos   int
	current  *sstable.Iterator

	doc Document
	err error
}

func (c *Collection) scan() *docIterator {
	sstables := c.engine.SSTables()
	reversed := make([]*sstable.Reader, len(sstables))
	for i, r := range sstables {
		reversed[len(sstables)-1-i] = r
	}
	return &docIterator{
		coll:       c,
		seen:       make(map[string]struct{}),
		memEntries: c.engine.Memtable().Entries(),
		sstables:   reversed,
	}
}

func (it *docIterator) Next() bool {
	prefix := it.coll.prefix()

	for it.memPos < len(it.memEntries) {
		e := it.memEntries[it.memPos]
		it.memPos++
		if !strings.HasPrefix(e.Key, prefix) {
			continue
		}
		id := strings.TrimPrefix(e.Key, prefix)
		it.seen[id] = struct{}{}
		if e.IsTombstone() {
			continue
		}
		payload, err := decodePayload(*e.Value)
		if err != nil {
			it.err = err
			return false
		}
		it.doc = Document{ID: id, Payload: payload}
		return true
	}

	for {
		if it.current == nil {
			if it.sstPos >= len(it.sstables) {
				return false
			}
			scan, err := it.sstables[it.sstPos].Scan()
			if err != nil {
				it.err = err
				return false
			}
			it.current = scan
		}

		for it.current.Next() {
			e := it.current.Entry()
			if !strings.HasPrefix(e.Key, prefix) {
				continue
			}
			id := strings.TrimPrefix(e.Key, prefix)
			if _, dup := it.seen[id]; dup {
				continue
			}
			it.seen[id] = struct{}{}
			if e.IsTombstone() {
				continue
			}
			payload, err := decodePayload(*e.Value)
			if err != nil {
				it.err = err
				_ = it.current.Close()
				return false
			}
			it.doc = Document{ID: id, Payload: payload}
			return true
		}

		if err := it.current.Err(); err != nil {
			it.err = err
			_ = it.current.Close()
			return false
		}
		_ = it.current.Close()
		it.current = nil
		it.sstPos++
	}
}

func (it *docIterator) Document() Document { return it.doc }
func (it *docIterator) Err() error         { return it.err }
