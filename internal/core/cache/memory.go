package cache

import (
	"container/list"
	"sync"
	"time"

	"scrapengine/internal/core/compress"
)

// entry is one memory-tier record. Value bytes may be compressed; the
// algorithm tag says how to get them back.
type entry struct {
	key       string
	data      []byte
	algo      compress.Algorithm
	createdAt time.Time
	ttl       time.Duration
	hits      int64
}

func (e *entry) expired(now time.Time) bool {
	return e.ttl > 0 && now.After(e.createdAt.Add(e.ttl))
}

func (e *entry) size() int64 { return int64(len(e.data) + len(e.key)) }

// memoryTier is the fast in-process tier: an LRU bounded by both a byte and
// an entry budget. TTL expiry is checked lazily on read and opportunistically
// by the manager's periodic sweep.
type memoryTier struct {
	mu         sync.Mutex
	items      map[string]*list.Element
	lru        *list.List // front = most recently used
	curBytes   int64
	maxBytes   int64
	maxEntries int
}

func newMemoryTier(maxBytes int64, maxEntries int) *memoryTier {
	return &memoryTier{
		items:      make(map[string]*list.Element),
		lru:        list.New(),
		maxBytes:   maxBytes,
		maxEntries: maxEntries,
	}
}

func (t *memoryTier) get(key string, now time.Time) (*entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	el, ok := t.items[key]
	if !ok {
		return nil, false
	}
	e := el.Value.(*entry)
	if e.expired(now) {
		t.removeLocked(el)
		return nil, false
	}
	t.lru.MoveToFront(el)
	e.hits++
	return e, true
}

func (t *memoryTier) set(e *entry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if el, ok := t.items[e.key]; ok {
		old := el.Value.(*entry)
		t.curBytes += e.size() - old.size()
		el.Value = e
		t.lru.MoveToFront(el)
	} else {
		t.items[e.key] = t.lru.PushFront(e)
		t.curBytes += e.size()
	}

	// evict least-recently-used until both budgets hold
	for (t.maxBytes > 0 && t.curBytes > t.maxBytes) ||
		(t.maxEntries > 0 && t.lru.Len() > t.maxEntries) {
		back := t.lru.Back()
		if back == nil || back.Value.(*entry) == e && t.lru.Len() == 1 {
			break
		}
		t.removeLocked(back)
	}
}

func (t *memoryTier) delete(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if el, ok := t.items[key]; ok {
		t.removeLocked(el)
	}
}

func (t *memoryTier) clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items = make(map[string]*list.Element)
	t.lru.Init()
	t.curBytes = 0
}

// sweep drops every expired entry. Called periodically by the manager.
func (t *memoryTier) sweep(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	removed := 0
	for el := t.lru.Back(); el != nil; {
		prev := el.Prev()
		if el.Value.(*entry).expired(now) {
			t.removeLocked(el)
			removed++
		}
		el = prev
	}
	return removed
}

func (t *memoryTier) stats() (count int, bytes int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lru.Len(), t.curBytes
}

func (t *memoryTier) removeLocked(el *list.Element) {
	e := el.Value.(*entry)
	t.lru.Remove(el)
	delete(t.items, e.key)
	t.curBytes -= e.size()
}
