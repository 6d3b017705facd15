package rbac

import (
	"sync"
	"time"
)

type cacheEntry struct {
	keys      []string
	found     bool
	expiresAt time.Time
}

// PermissionCache holds granted keys per role name for a short TTL so authorization
// does not hit the database on every request. Role and permission mutations must
// call Invalidate or InvalidateAll.
//
// Every invalidation bumps a generation. A lookup that started before an
// invalidation must not store its result, so loaders snapshot Generation first
// and store through SetIfCurrent.
type PermissionCache struct {
	entries sync.Map
	ttl     time.Duration
	now     func() time.Time

	mu  sync.Mutex // serializes generation bumps against conditional stores
	gen uint64
}

func NewPermissionCache(ttl time.Duration) *PermissionCache {
	return &PermissionCache{ttl: ttl, now: time.Now}
}

func (c *PermissionCache) Get(role string) ([]string, bool, bool) {
	if c.ttl <= 0 {
		return nil, false, false
	}
	v, ok := c.entries.Load(role)
	if !ok {
		return nil, false, false
	}
	e := v.(cacheEntry)
	if !c.now().Before(e.expiresAt) {
		c.entries.Delete(role)
		return nil, false, false
	}
	return e.keys, e.found, true
}

func (c *PermissionCache) Set(role string, keys []string, found bool) {
	if c.ttl <= 0 {
		return
	}
	c.entries.Store(role, cacheEntry{keys: keys, found: found, expiresAt: c.now().Add(c.ttl)})
}

func (c *PermissionCache) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// SetIfCurrent stores the entry only if no invalidation happened since gen was read.
func (c *PermissionCache) SetIfCurrent(gen uint64, role string, keys []string, found bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return false
	}
	c.Set(role, keys, found)
	return true
}

func (c *PermissionCache) Invalidate(role string) {
	c.mu.Lock()
	c.gen++
	c.entries.Delete(role)
	c.mu.Unlock()
}

func (c *PermissionCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.entries.Range(func(key, _ any) bool {
		c.entries.Delete(key)
		return true
	})
}
