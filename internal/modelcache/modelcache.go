// Package modelcache holds the bounded in-memory cache of hot trained models,
// one entry per organization, with least-recently-used eviction.
package modelcache

import (
	"container/list"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sreevalsan/mltrainer/pkg/models"
)

// Entry is one cached model. LoadedAt is set on insert; LastAccessedAt is
// refreshed by Get but never by Contains.
type Entry struct {
	OrgID          uuid.UUID          `json:"org_id"`
	Handle         models.ModelHandle `json:"handle"`
	LoadedAt       time.Time          `json:"loaded_at"`
	LastAccessedAt time.Time          `json:"last_accessed_at"`
	SizeWeight     int64              `json:"size_weight"`
}

// Stats is a point-in-time view of cache occupancy.
type Stats struct {
	Size          int         `json:"size"`
	MaxSize       int         `json:"max_size"`
	Organizations []uuid.UUID `json:"organizations"`
}

// Cache is a fixed-capacity LRU keyed by organization ID. Safe for concurrent
// use: orchestrator completions write while dashboard reads race against them.
type Cache struct {
	mu      sync.Mutex
	maxSize int
	order   *list.List // front = most recently used; each element holds *Entry
	entries map[uuid.UUID]*list.Element
}

// New creates a Cache holding at most maxSize entries. maxSize below 1 is
// clamped to 1.
func New(maxSize int) *Cache {
	if maxSize < 1 {
		maxSize = 1
	}
	return &Cache{
		maxSize: maxSize,
		order:   list.New(),
		entries: make(map[uuid.UUID]*list.Element),
	}
}

// Get returns the cached model for an organization, refreshing its recency.
func (c *Cache) Get(orgID uuid.UUID) (models.ModelHandle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[orgID]
	if !ok {
		return models.ModelHandle{}, false
	}
	entry := el.Value.(*Entry)
	entry.LastAccessedAt = time.Now().UTC()
	c.order.MoveToFront(el)
	return entry.Handle, true
}

// Contains reports whether an organization's model is cached. Pure query: it
// does not touch recency.
func (c *Cache) Contains(orgID uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[orgID]
	return ok
}

// Put inserts or replaces the model for an organization, then evicts from the
// least-recently-used end until the cache is within capacity. The entry being
// inserted is moved to the front first, so it always survives its own Put.
// List position encodes the eviction order: entries with equal access times
// sit in insertion order, so ties fall to the oldest LoadedAt.
func (c *Cache) Put(orgID uuid.UUID, handle models.ModelHandle, sizeWeight int64) {
	now := time.Now().UTC()

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[orgID]; ok {
		entry := el.Value.(*Entry)
		entry.Handle = handle
		entry.SizeWeight = sizeWeight
		entry.LoadedAt = now
		entry.LastAccessedAt = now
		c.order.MoveToFront(el)
	} else {
		el := c.order.PushFront(&Entry{
			OrgID:          orgID,
			Handle:         handle,
			LoadedAt:       now,
			LastAccessedAt: now,
			SizeWeight:     sizeWeight,
		})
		c.entries[orgID] = el
	}

	for c.order.Len() > c.maxSize {
		back := c.order.Back()
		evicted := back.Value.(*Entry)
		c.order.Remove(back)
		delete(c.entries, evicted.OrgID)
		slog.Info("model evicted from cache",
			"org_id", evicted.OrgID,
			"loaded_at", evicted.LoadedAt,
			"last_accessed_at", evicted.LastAccessedAt,
		)
	}
}

// Remove drops an organization's entry if present.
func (c *Cache) Remove(orgID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[orgID]; ok {
		c.order.Remove(el)
		delete(c.entries, orgID)
	}
}

// Stats returns current occupancy. Organizations are listed from most to
// least recently used.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	orgs := make([]uuid.UUID, 0, c.order.Len())
	for el := c.order.Front(); el != nil; el = el.Next() {
		orgs = append(orgs, el.Value.(*Entry).OrgID)
	}
	return Stats{
		Size:          len(c.entries),
		MaxSize:       c.maxSize,
		Organizations: orgs,
	}
}
