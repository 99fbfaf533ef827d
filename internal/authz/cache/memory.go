package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/frahmantamala/coursehub/internal/authz"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// MemoryCache keeps resolutions in a process-local expiring LRU. Only suitable for a single
// instance: invalidations are not seen by other processes. Per-user generations are tracked for at
// most maxEntries users; past that the cache moves to a new epoch.
type MemoryCache struct {
	entries *lru.LRU[string, authz.CacheEntry]

	mu             sync.Mutex
	epoch          uint64
	generations    map[int64]uint64
	maxGenerations int
}

func NewMemoryCache(maxEntries int, ttl time.Duration) *MemoryCache {
	if maxEntries < 10 {
		maxEntries = 10
	}
	return &MemoryCache{
		entries:        lru.NewLRU[string, authz.CacheEntry](maxEntries, nil, ttl),
		generations:    make(map[int64]uint64),
		maxGenerations: maxEntries,
	}
}

func (c *MemoryCache) Stamp(_ context.Context, userID int64) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return stamp(c.epoch, c.generations[userID]), nil
}

func (c *MemoryCache) Get(_ context.Context, userID int64, stamp string) (*authz.CacheEntry, bool, error) {
	entry, ok := c.entries.Get(entryKey(userID, stamp))
	if !ok {
		return nil, false, nil
	}
	entry.Permissions = append([]string(nil), entry.Permissions...)
	return &entry, true, nil
}

func (c *MemoryCache) Set(_ context.Context, userID int64, stamp string, entry authz.CacheEntry) error {
	entry.Permissions = append([]string(nil), entry.Permissions...)
	c.entries.Add(entryKey(userID, stamp), entry)
	return nil
}

func (c *MemoryCache) Invalidate(_ context.Context, userID int64) error {
	c.mu.Lock()
	_, tracked := c.generations[userID]
	rollover := !tracked && len(c.generations) >= c.maxGenerations
	if rollover {
		c.nextEpochLocked()
	}
	c.generations[userID]++
	c.mu.Unlock()

	if rollover {
		c.entries.Purge()
	}
	return nil
}

// InvalidateAll moves to a new epoch.
func (c *MemoryCache) InvalidateAll(_ context.Context) error {
	c.mu.Lock()
	c.nextEpochLocked()
	c.mu.Unlock()
	c.entries.Purge()
	return nil
}

// Generations restart at zero, which cannot collide with an earlier stamp because the epoch part
// differs.
func (c *MemoryCache) nextEpochLocked() {
	c.epoch++
	c.generations = make(map[int64]uint64)
}

func stamp(epoch, generation uint64) string {
	return fmt.Sprintf("%d.%d", epoch, generation)
}

func entryKey(userID int64, stamp string) string {
	return fmt.Sprintf("%d:%s", userID, stamp)
}

var _ authz.PermissionCache = (*MemoryCache)(nil)
