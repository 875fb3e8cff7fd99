package datatree

import (
	"container/list"
	"log"
	"sync"
)

// HandleCache keeps recently opened trees alive up to a fixed count,
// closing the least recently used one on overflow. Lookups and
// insertions are safe for concurrent use.
type HandleCache struct {
	mu      sync.Mutex
	maxSize int
	order   *list.List
	entries map[string]*list.Element
}

type handleEntry struct {
	key  string
	tree *DataTree
}

func NewHandleCache(maxSize int) *HandleCache {
	if maxSize < 1 {
		maxSize = 1
	}
	return &HandleCache{
		maxSize: maxSize,
		order:   list.New(),
		entries: make(map[string]*list.Element),
	}
}

// Get returns the cached tree for a key, marking it most recently
// used.
func (hc *HandleCache) Get(key string) (*DataTree, bool) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	el, ok := hc.entries[key]
	if !ok {
		return nil, false
	}
	hc.order.MoveToFront(el)
	return el.Value.(*handleEntry).tree, true
}

// Put inserts a tree, evicting the least recently used entry when
// full. An existing entry for the key is closed and replaced.
func (hc *HandleCache) Put(key string, tree *DataTree) {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	if el, ok := hc.entries[key]; ok {
		old := el.Value.(*handleEntry)
		if old.tree != tree {
			closeTree(key, old.tree)
			old.tree = tree
		}
		hc.order.MoveToFront(el)
		return
	}

	hc.entries[key] = hc.order.PushFront(&handleEntry{key: key, tree: tree})
	for hc.order.Len() > hc.maxSize {
		el := hc.order.Back()
		entry := el.Value.(*handleEntry)
		hc.order.Remove(el)
		delete(hc.entries, entry.key)
		closeTree(entry.key, entry.tree)
	}
}

// OpenFile returns the tree for a consolidated metadata file, keyed by
// path, opening and caching it on first use.
func (hc *HandleCache) OpenFile(path string, verbose bool) (*DataTree, error) {
	if tree, ok := hc.Get(path); ok {
		return tree, nil
	}
	store, err := ParseConsolidatedFile(path)
	if err != nil {
		return nil, err
	}
	tree, err := Open(store, verbose)
	if err != nil {
		return nil, err
	}
	hc.Put(path, tree)
	return tree, nil
}

// Len reports the number of live handles.
func (hc *HandleCache) Len() int {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	return hc.order.Len()
}

// Clear closes and drops every handle.
func (hc *HandleCache) Clear() {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	for key, el := range hc.entries {
		closeTree(key, el.Value.(*handleEntry).tree)
		delete(hc.entries, key)
	}
	hc.order.Init()
}

func closeTree(key string, tree *DataTree) {
	if err := tree.Close(); err != nil {
		log.Printf("datatree: closing %s: %v", key, err)
	}
}
