package sstable

import (
	"container/heap"
	"fmt"

	"github.com/arasdb/cairn/internal/record"
)

// Merge combines readers (ordered oldest-to-newest, same convention as
// the engine's SSTable list) into a single new SSTable at dataPath,
// newest-wins per key, dropping any key whose final resolved value is a
// tombstone. The result is durably flushed before Merge returns.
func Merge(readers []*Reader, dataPath string, interval int) error {
	merged, err := mergeEntries(readers)
	if err != nil {
		return err
	}
	return Write(dataPath, interval, merged)
}

// mergeSource tracks one input SSTable's iterator and its recency rank
// (higher priority = newer = wins ties on the same key).
type mergeSource struct {
	it       *Iterator
	priority int
}

func mergeEntries(readers []*Reader) ([]record.Entry, error) {
	sources := make([]*mergeSource, 0, len(readers))
	defer func() {
		for _, s := range sources {
			_ = s.it.Close()
		}
	}()

	h := &mergeHeap{}
	heap.Init(h)

	for i, r := range readers {
		it, err := r.Scan()
		if err != nil {
			return nil, fmt.Errorf("sstable: merge open source: %w", err)
		}
		src := &mergeSource{it: it, priority: i}
		sources = append(sources, src)
		if it.Next() {
			heap.Push(h, &mergeItem{entry: it.Entry(), src: src})
		} else if it.Err() != nil {
			return nil, fmt.Errorf("sstable: merge scan: %w", it.Err())
		}
	}

	var out []record.Entry
	var lastKey string
	haveLastKey := false

	for h.Len() > 0 {
		item := heap.Pop(h).(*mergeItem)

		isDup := haveLastKey && item.entry.Key == lastKey
		if !isDup {
			if !item.entry.IsTombstone() {
				out = append(out, item.entry)
			}
			lastKey = item.entry.Key
			haveLastKey = true
		}

		if item.src.it.Next() {
			heap.Push(h, &mergeItem{entry: item.src.it.Entry(), src: item.src})
		} else if item.src.it.Err() != nil {
			return nil, fmt.Errorf("sstable: merge scan: %w", item.src.it.Err())
		}
	}

	return out, nil
}

type mergeItem struct {
	entry record.Entry
	src   *mergeSource
}

// mergeHeap orders by key ascending; on a tie the entry from the newer
// source (higher priority) is popped first, so it is written and the
// older duplicate is discarded when popped next.
type mergeHeap []*mergeItem

func (h mergeHeap) Len() int { return len(h) }

func (h mergeHeap) Less(i, j int) bool {
	if h[i].entry.Key != h[j].entry.Key {
		return h[i].entry.Key < h[j].entry.Key
	}
	return h[i].src.priority > h[j].src.priority
}

func (h mergeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *mergeHeap) Push(x any) { *h = append(*h, x.(*mergeItem)) }

func (h *mergeHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
