package engine

import (
	"sync"
	"time"

	"github.com/calder-io/flume/internal/flume"
)

// SchemaCache memoizes design-time schema introspection results. Entries
// expire after a TTL and the cache holds at most maxEntries; graph edits
// invalidate the whole workflow's entries.
type SchemaCache struct {
	mu         sync.RWMutex
	entries    map[string]schemaCacheEntry
	ttl        time.Duration
	maxEntries int
}

type schemaCacheEntry struct {
	schema     *flume.DataSchema
	workflowID string
	expires    time.Time
}

func NewSchemaCache(ttl time.Duration, maxEntries int) *SchemaCache {
	return &SchemaCache{
		entries:    make(map[string]schemaCacheEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
	}
}

func cacheKey(workflowID, nodeID string) string { return workflowID + ":" + nodeID }

func (c *SchemaCache) get(workflowID, nodeID string) (*flume.DataSchema, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[cacheKey(workflowID, nodeID)]
	if !ok || time.Now().After(e.expires) {
		return nil, false
	}
	return e.schema, true
}

func (c *SchemaCache) set(workflowID, nodeID string, s *flume.DataSchema) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= c.maxEntries {
		c.evictLocked()
	}
	c.entries[cacheKey(workflowID, nodeID)] = schemaCacheEntry{
		schema:     s,
		workflowID: workflowID,
		expires:    time.Now().Add(c.ttl),
	}
}

// InvalidateWorkflow drops every cached schema for the workflow. Called on
// graph save so stale shapes never leak into the editor.
func (c *SchemaCache) InvalidateWorkflow(workflowID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, e := range c.entries {
		if e.workflowID == workflowID {
			delete(c.entries, key)
		}
	}
}

// evictLocked removes expired entries, then the soonest-to-expire entry if
// the cache is still full.
func (c *SchemaCache) evictLocked() {
	now := time.Now()
	for key, e := range c.entries {
		if now.After(e.expires) {
			delete(c.entries, key)
		}
	}
	if len(c.entries) < c.maxEntries {
		return
	}
	var oldestKey string
	var oldest time.Time
	for key, e := range c.entries {
		if oldestKey == "" || e.expires.Before(oldest) {
			oldestKey = key
			oldest = e.expires
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}
