package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xavierca1/ligue-crm/internal/entity"
)

// LeadLister is the read side of the lead store used to (re)load the cache.
type LeadLister interface {
	List(ctx context.Context, criteria entity.ListCriteria) ([]*entity.Lead, error)
}

type pendingWrite struct {
	version uint64
	status  entity.Status
	// committedAt is the load sequence at which the store confirmed the
	// write, 0 while it is still in flight.
	committedAt uint64
}

// Cache is the shared in-memory copy of the lead collection.
//
// Full reloads go through Replace/Refresh. Individual status writes are
// unexported and only the Coordinator performs them. Each write bumps a
// per-lead version so a late failure can tell whether its optimistic value
// is still the current one.
type Cache struct {
	mu       sync.RWMutex
	leads    []*entity.Lead
	index    map[string]int
	versions map[string]uint64
	pending  map[string]pendingWrite
	seq      uint64
	loadedAt time.Time
}

func NewCache() *Cache {
	return &Cache{
		index:    make(map[string]int),
		versions: make(map[string]uint64),
		pending:  make(map[string]pendingWrite),
	}
}

// Replace swaps the whole collection with data read just now. Optimistic
// writes still in flight are re-applied on top of it.
func (c *Cache) Replace(leads []*entity.Lead) {
	c.replace(leads, c.beginLoad())
}

// Refresh reloads every lead from the store. Writes committed after the
// read started survive the reload.
func (c *Cache) Refresh(ctx context.Context, store LeadLister) error {
	since := c.beginLoad()
	leads, err := store.List(ctx, entity.ListCriteria{})
	if err != nil {
		return fmt.Errorf("refresh lead cache: %w", err)
	}
	c.replace(leads, since)
	return nil
}

func (c *Cache) beginLoad() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

// replace installs leads read from a load that began at sequence since.
// Committed writes older than the load are already in the data and are
// forgotten; newer ones and in-flight ones are re-applied.
func (c *Cache) replace(leads []*entity.Lead, since uint64) {
	next := make([]*entity.Lead, 0, len(leads))
	index := make(map[string]int, len(leads))
	for _, l := range leads {
		if l == nil {
			continue
		}
		cp := l.Clone()
		cp.Status = entity.NormalizeStatus(string(cp.Status))
		if _, dup := index[cp.ID]; !dup {
			index[cp.ID] = len(next)
		}
		next = append(next, cp)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for id, w := range c.pending {
		i, ok := index[id]
		if !ok || (w.committedAt != 0 && w.committedAt < since) {
			delete(c.pending, id)
			continue
		}
		next[i].Status = w.status
	}
	c.leads = next
	c.index = index
	c.loadedAt = time.Now()
}

// Snapshot returns copies of the cached leads in load order.
func (c *Cache) Snapshot() []*entity.Lead {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*entity.Lead, len(c.leads))
	for i, l := range c.leads {
		out[i] = l.Clone()
	}
	return out
}

func (c *Cache) Get(id string) (*entity.Lead, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	i, ok := c.index[id]
	if !ok {
		return nil, false
	}
	return c.leads[i].Clone(), true
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.leads)
}

func (c *Cache) LoadedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loadedAt
}

// setStatus writes status for id and returns the previous status together
// with the version token identifying this write. It refuses unknown leads
// and writes that would not change the status.
func (c *Cache) setStatus(id string, status entity.Status) (prev entity.Status, version uint64, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i, found := c.index[id]
	if !found {
		return "", 0, false
	}
	prev = c.leads[i].Status
	if prev == status {
		return prev, 0, false
	}

	lead := c.leads[i].Clone()
	lead.Status = status
	c.leads[i] = lead

	c.versions[id]++
	version = c.versions[id]
	c.pending[id] = pendingWrite{version: version, status: status}
	return prev, version, true
}

// isCurrent reports whether the write identified by version is the latest
// optimistic write for id.
func (c *Cache) isCurrent(id string, version uint64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.versions[id] == version
}

// settle marks the write identified by version as committed. It stays
// pending until a reload that started after the commit has seen it.
func (c *Cache) settle(id string, version uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if w, ok := c.pending[id]; ok && w.version == version {
		c.seq++
		w.committedAt = c.seq
		c.pending[id] = w
		return true
	}
	return false
}

// discard forgets a failed write so no reload re-applies it.
func (c *Cache) discard(id string, version uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if w, ok := c.pending[id]; ok && w.version == version {
		delete(c.pending, id)
		return true
	}
	return false
}

// restoreStatus puts prev back for id, but only if no newer write happened.
func (c *Cache) restoreStatus(id string, version uint64, prev entity.Status) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.versions[id] != version {
		return false
	}
	i, ok := c.index[id]
	if !ok {
		return false
	}
	lead := c.leads[i].Clone()
	lead.Status = prev
	c.leads[i] = lead
	return true
}
