// Package dispatch maps inbound realtime events onto mutations of the
// externally owned structured cache.
package dispatch

import (
	"sort"
	"sync"

	"github.com/user/choresync/internal/types"
)

// ChoreCache is the structured cache the dispatcher mutates: a chore list
// keyed by id plus invalidation marks for the detail and recent-activity
// views. The UI owns the cache; the dispatcher only issues commands.
type ChoreCache interface {
	// UpsertChore writes the entity into the id-keyed entry and the list.
	UpsertChore(chore types.Chore)
	// RemoveChore deletes the entity from the list. A no-op when absent.
	RemoveChore(id int64)
	// InvalidateDetail marks the chore's detail view for refetch.
	InvalidateDetail(id int64)
	// InvalidateHistory marks the recent-activity view for refetch.
	InvalidateHistory()
}

// MemoryCache is an in-process ChoreCache for consumers without their own
// query cache, and for tests.
type MemoryCache struct {
	mu           sync.RWMutex
	chores       map[int64]types.Chore
	staleDetails map[int64]bool
	historyStale bool
}

// NewMemoryCache creates an empty cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		chores:       make(map[int64]types.Chore),
		staleDetails: make(map[int64]bool),
	}
}

func (c *MemoryCache) UpsertChore(chore types.Chore) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chores[chore.ID] = chore
}

func (c *MemoryCache) RemoveChore(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.chores, id)
}

func (c *MemoryCache) InvalidateDetail(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.staleDetails[id] = true
}

func (c *MemoryCache) InvalidateHistory() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.historyStale = true
}

// GetChore returns the cached entity and whether it exists.
func (c *MemoryCache) GetChore(id int64) (types.Chore, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	chore, ok := c.chores[id]
	return chore, ok
}

// ListChores returns the cached list ordered by id.
func (c *MemoryCache) ListChores() []types.Chore {
	c.mu.RLock()
	defer c.mu.RUnlock()
	chores := make([]types.Chore, 0, len(c.chores))
	for _, chore := range c.chores {
		chores = append(chores, chore)
	}
	sort.Slice(chores, func(i, j int) bool { return chores[i].ID < chores[j].ID })
	return chores
}

// DetailStale reports and clears the detail invalidation mark, the way a
// consumer would before refetching.
func (c *MemoryCache) DetailStale(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	stale := c.staleDetails[id]
	delete(c.staleDetails, id)
	return stale
}

// HistoryStale reports and clears the recent-activity invalidation mark.
func (c *MemoryCache) HistoryStale() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	stale := c.historyStale
	c.historyStale = false
	return stale
}
