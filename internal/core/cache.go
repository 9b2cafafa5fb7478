package core

import (
	"sync"
	"time"

	"github.com/JonMunkholm/datacompile/internal/xlsx"
)

// DefaultCacheTTL is how long a loaded table is served from memory.
const DefaultCacheTTL = 5 * time.Minute

// TableCache holds loaded project tables. An entry is served while it is
// younger than the TTL and the snapshot on disk has not changed since it
// was loaded. Derived results (column roles, column stats) live on the entry
// and go away with it.
//
// Cached tables are shared: callers must not modify them.
type TableCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	entries map[string]*cacheEntry
}

type cacheEntry struct {
	table    *xlsx.Sheet
	loadedAt time.Time
	mtime    time.Time
	size     int64

	columns *ColumnInfo
	stats   *ColumnStatsResult
}

// CacheStats summarizes cache usage.
type CacheStats struct {
	Items int
	Bytes int64
}

// NewTableCache returns an empty cache. A non-positive ttl selects DefaultCacheTTL.
func NewTableCache(ttl time.Duration) *TableCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &TableCache{ttl: ttl, now: time.Now, entries: make(map[string]*cacheEntry)}
}

func (c *TableCache) fresh(e *cacheEntry, mtime time.Time) bool {
	return c.now().Sub(e.loadedAt) < c.ttl && !mtime.After(e.mtime)
}

// Get returns the cached table for project if it is still valid for a
// snapshot last modified at mtime.
func (c *TableCache) Get(project string, mtime time.Time) (*xlsx.Sheet, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[project]
	if !ok || !c.fresh(e, mtime) {
		return nil, false
	}
	return e.table, true
}

// Put stores a freshly loaded table.
func (c *TableCache) Put(project string, table *xlsx.Sheet, mtime time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[project] = &cacheEntry{
		table:    table,
		loadedAt: c.now(),
		mtime:    mtime,
		size:     approxSize(table),
	}
}

// Columns returns cached column roles for the table loaded at mtime.
func (c *TableCache) Columns(project string, mtime time.Time) (*ColumnInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[project]
	if !ok || e.columns == nil || !c.fresh(e, mtime) {
		return nil, false
	}
	return e.columns, true
}

// SetColumns attaches column roles to the project's entry, if any.
func (c *TableCache) SetColumns(project string, info *ColumnInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[project]; ok {
		e.columns = info
	}
}

// ColumnStats returns cached column statistics for the table loaded at mtime.
func (c *TableCache) ColumnStats(project string, mtime time.Time) (*ColumnStatsResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[project]
	if !ok || e.stats == nil || !c.fresh(e, mtime) {
		return nil, false
	}
	return e.stats, true
}

// SetColumnStats attaches column statistics to the project's entry, if any.
func (c *TableCache) SetColumnStats(project string, stats *ColumnStatsResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[project]; ok {
		e.stats = stats
	}
}

// Invalidate drops the project's entry.
func (c *TableCache) Invalidate(project string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, project)
}

// Clear drops every entry.
func (c *TableCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}

// Sweep drops expired entries and returns how many were removed.
func (c *TableCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	n := 0
	for k, e := range c.entries {
		if now.Sub(e.loadedAt) >= c.ttl {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Stats reports the entry count and approximate table memory.
func (c *TableCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st := CacheStats{Items: len(c.entries)}
	for _, e := range c.entries {
		st.Bytes += e.size
	}
	return st
}

// approxSize estimates the memory held by a table's values.
func approxSize(s *xlsx.Sheet) int64 {
	var n int64
	for _, c := range s.Columns {
		n += int64(len(c.Name))
		if c.Kind == xlsx.KindNumeric {
			n += int64(len(c.Numbers)) * 8
			continue
		}
		for _, v := range c.Texts {
			n += int64(len(v)) + 16
		}
	}
	return n
}
