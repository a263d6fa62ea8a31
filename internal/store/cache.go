package store

import (
	"container/list"
	"slices"
	"sync"
	"time"

	"telefeed/internal/domain"
)

// listCache is a bounded read-through cache for subscription lists. Entries
// expire after a fixed TTL and the least recently used entry is evicted
// when the size limit is hit. Time is passed in explicitly so expiry is
// testable without a wall clock.
type listCache struct {
	mu         sync.Mutex
	entries    map[int64]*list.Element
	order      *list.List
	maxEntries int
}

type listCacheEntry struct {
	subscriberID int64
	subs         []domain.Subscription
	expiresAt    time.Time
}

func newListCache(maxEntries int) *listCache {
	if maxEntries <= 0 {
		return nil
	}

	return &listCache{
		entries:    make(map[int64]*list.Element, maxEntries),
		order:      list.New(),
		maxEntries: maxEntries,
	}
}

func (c *listCache) get(subscriberID int64, now time.Time) ([]domain.Subscription, bool) {
	if c == nil {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[subscriberID]
	if !ok {
		return nil, false
	}

	entry, ok := elem.Value.(*listCacheEntry)
	if !ok {
		return nil, false
	}

	if now.After(entry.expiresAt) {
		c.removeElement(elem)

		return nil, false
	}

	c.order.MoveToFront(elem)

	return slices.Clone(entry.subs), true
}

func (c *listCache) set(
	subscriberID int64,
	subs []domain.Subscription,
	expiresAt time.Time,
	now time.Time,
) {
	if c == nil || !expiresAt.After(now) {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	subs = slices.Clone(subs)

	if elem, ok := c.entries[subscriberID]; ok {
		entry, castOk := elem.Value.(*listCacheEntry)
		if !castOk {
			return
		}

		entry.subs = subs
		entry.expiresAt = expiresAt
		c.order.MoveToFront(elem)

		return
	}

	elem := c.order.PushFront(&listCacheEntry{
		subscriberID: subscriberID,
		subs:         subs,
		expiresAt:    expiresAt,
	})
	c.entries[subscriberID] = elem

	for len(c.entries) > c.maxEntries {
		oldest := c.order.Back()
		if oldest == nil {
			return
		}
		c.removeElement(oldest)
	}
}

func (c *listCache) invalidate(subscriberID int64) {
	if c == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[subscriberID]; ok {
		c.removeElement(elem)
	}
}

func (c *listCache) removeElement(elem *list.Element) {
	entry, ok := elem.Value.(*listCacheEntry)
	if !ok {
		return
	}

	delete(c.entries, entry.subscriberID)
	c.order.Remove(elem)
}
