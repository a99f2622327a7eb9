// Package sigcache implements the bounded, LRU, content-addressed
// signature cache of spec §4.2, backed by go-generics-cache's LRU policy
// instead of a hand-rolled doubly-linked list.
package sigcache

import (
	"os"
	"sync"
	"syscall"
	"time"

	cache "github.com/Code-Hex/go-generics-cache"
	"github.com/Code-Hex/go-generics-cache/policy/lru"

	"github.com/bobbyrathoree/macscope/internal/domain"
)

// TTL is the freshness window for a cached signature (spec §4.2).
const TTL = 24 * time.Hour

// Capacity is the bounded cache size (spec §3: "Signature-cache size ≤
// 500 entries; eviction is strict LRU").
const Capacity = 500

// Cache is an absolute-path -> SignatureCacheEntry mapping. The engine's
// signature lookup reads and fills it from several enrichment goroutines
// at once; the mutex here serializes those calls.
type Cache struct {
	mu    sync.Mutex
	inner *cache.Cache[string, domain.SignatureCacheEntry]
	now   func() time.Time
	stat  func(path string) (os.FileInfo, error)
}

// New returns an empty signature cache.
func New() *Cache {
	return &Cache{
		inner: cache.New[string, domain.SignatureCacheEntry](
			cache.AsLRU[string, domain.SignatureCacheEntry](lru.WithCapacity(Capacity)),
		),
		now:  time.Now,
		stat: os.Stat,
	}
}

// Lookup stats path; if the entry is stale (TTL expired or mtime/inode
// mismatch) it is evicted and a miss is reported. A hit is never older
// than TTL and never mismatched against the file's current metadata
// (spec §8).
func (c *Cache) Lookup(path string) (*domain.Signature, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.inner.Get(path)
	if !ok {
		return nil, false
	}

	info, err := c.stat(path)
	if err != nil {
		c.inner.Delete(path)
		return nil, false
	}

	mtime := info.ModTime()
	inode := inodeOf(info)

	if c.now().Sub(entry.CachedAt) > TTL || !mtime.Equal(entry.ModTime) || inode != entry.Inode {
		c.inner.Delete(path)
		return nil, false
	}

	return entry.Result, true
}

// Insert stores sig for path, keyed by the file's current mtime and inode.
// Error results are intentionally never cached (spec §4.2: "often
// transient"); callers should not call Insert for a failed lookup.
func (c *Cache) Insert(path string, sig *domain.Signature) {
	info, err := c.stat(path)
	if err != nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.inner.Set(path, domain.SignatureCacheEntry{
		Result:   sig,
		ModTime:  info.ModTime(),
		Inode:    inodeOf(info),
		CachedAt: c.now(),
	})
}

// Len reports the current entry count, for tests and /api/stats.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inner.Len()
}

// inodeOf extracts the inode from a FileInfo on platforms that expose a
// syscall.Stat_t-shaped Sys(); elsewhere it returns 0, degrading freshness
// checks to mtime-only.
func inodeOf(info os.FileInfo) uint64 {
	if sys, ok := info.Sys().(*syscall.Stat_t); ok {
		return uint64(sys.Ino)
	}
	return 0
}
