package fieldfilter

import (
	"container/list"
	"sync"

	"github.com/r9s-ai/fieldproxy/pkg/selector"
)

// TreeCache memoizes selector.Parse by selection string with LRU eviction.
// A nil *TreeCache parses on every call.
type TreeCache struct {
	mu    sync.Mutex
	size  int
	order *list.List
	items map[string]*list.Element
}

type cacheEntry struct {
	key  string
	tree *selector.Tree
}

// NewTreeCache returns a cache holding up to size trees, or nil when size
// is not positive.
func NewTreeCache(size int) *TreeCache {
	if size <= 0 {
		return nil
	}
	return &TreeCache{
		size:  size,
		order: list.New(),
		items: make(map[string]*list.Element, size),
	}
}

// Parse returns the cached tree for sel, parsing it on a miss.
func (c *TreeCache) Parse(sel string) *selector.Tree {
	if c == nil {
		return selector.Parse(sel)
	}
	c.mu.Lock()
	if el, ok := c.items[sel]; ok {
		c.order.MoveToFront(el)
		tree := el.Value.(*cacheEntry).tree
		c.mu.Unlock()
		return tree
	}
	c.mu.Unlock()

	tree := selector.Parse(sel)

	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[sel]; ok {
		c.order.MoveToFront(el)
		return el.Value.(*cacheEntry).tree
	}
	c.items[sel] = c.order.PushFront(&cacheEntry{key: sel, tree: tree})
	for c.order.Len() > c.size {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*cacheEntry).key)
	}
	return tree
}

// Len returns the number of cached trees.
func (c *TreeCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
