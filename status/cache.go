// Package status provides a fast-path read cache mirroring a subset of
// request fields. Status queries hit the cache instead of locking full
// records, trading a bounded staleness window for read concurrency.
package status

import (
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/warrennet/warren/request"
)

// Compile-time interface check.
var _ request.StatusCache = (*Cache)(nil)

// Entry is the cached status projection of one request. Entries are
// replaced wholesale on update; readers never see a torn write.
type Entry struct {
	Identifier    string
	Kind          request.Kind
	Target        string
	PriorityClass request.PriorityClass
	Realtime      bool
	Started       bool
	Finished      bool
	Succeeded     bool
	FailureReason string
	LastActivity  time.Time

	// SuccessFraction is the engine-reported progress in [0,1].
	SuccessFraction float64
}

// Cache mirrors request status per client queue.
type Cache struct {
	entries *xsync.MapOf[string, Entry]
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{entries: xsync.NewMapOf[string, Entry]()}
}

// AddRequest seeds the cache entry for a new or resumed request.
func (c *Cache) AddRequest(e Entry) {
	c.entries.Store(e.Identifier, e)
}

// SetPriority implements request.StatusCache.
func (c *Cache) SetPriority(identifier string, p request.PriorityClass) {
	c.update(identifier, func(e Entry) Entry {
		e.PriorityClass = p
		return e
	})
}

// UpdateStarted implements request.StatusCache.
func (c *Cache) UpdateStarted(identifier string, started bool) {
	c.update(identifier, func(e Entry) Entry {
		e.Started = started
		return e
	})
}

// UpdateProgress implements request.StatusCache.
func (c *Cache) UpdateProgress(identifier string, successFraction float64) {
	c.update(identifier, func(e Entry) Entry {
		e.SuccessFraction = successFraction
		return e
	})
}

// MarkFinished records a terminal outcome.
func (c *Cache) MarkFinished(identifier string, succeeded bool, failureReason string) {
	c.update(identifier, func(e Entry) Entry {
		e.Finished = true
		e.Succeeded = succeeded
		e.FailureReason = failureReason
		return e
	})
}

// Remove drops the entry for an acknowledged or evicted request.
func (c *Cache) Remove(identifier string) {
	c.entries.Delete(identifier)
}

// Get returns the cached entry for identifier.
func (c *Cache) Get(identifier string) (Entry, bool) {
	return c.entries.Load(identifier)
}

// Snapshot returns all cached entries in unspecified order.
func (c *Cache) Snapshot() []Entry {
	out := make([]Entry, 0, c.entries.Size())
	c.entries.Range(func(_ string, e Entry) bool {
		out = append(out, e)
		return true
	})
	return out
}

// Len returns the number of cached entries.
func (c *Cache) Len() int { return c.entries.Size() }

func (c *Cache) update(identifier string, f func(Entry) Entry) {
	c.entries.Compute(identifier, func(old Entry, loaded bool) (Entry, bool) {
		if !loaded {
			// Unknown identifier: nothing to mirror.
			return old, true
		}
		e := f(old)
		e.LastActivity = time.Now()
		return e, false
	})
}
