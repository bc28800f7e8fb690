package client

import (
	"sync"

	"github.com/google/uuid"

	"github.com/warrennet/warren"
	"github.com/warrennet/warren/engine"
	"github.com/warrennet/warren/request"
	"github.com/warrennet/warren/status"
)

// Compile-time interface check.
var _ request.Owner = (*Client)(nil)

// NotificationSink receives status-change notifications for one
// subscribed session handler. Implementations must not block; slow
// consumers should buffer internally.
type NotificationSink interface {
	Notify(n request.Notification)
}

// binding is the engine scheduling identity for one (client, band)
// pair.
type binding struct {
	persistent bool
	realtime   bool
}

func (b binding) Persistent() bool { return b.persistent }
func (b binding) Realtime() bool   { return b.realtime }

// Client owns the set of requests belonging to one logical end-user
// client, or to the implicit shared queue. Every record it owns shares
// its durability tier; that is enforced at record construction.
type Client struct {
	name   string
	shared bool
	tier   request.Tier

	bulk     binding
	realtime binding
	cache    *status.Cache

	mu          sync.Mutex
	records     map[string]*request.Record
	subscribers map[uuid.UUID]NotificationSink
}

func newClient(shared bool, name string, tier request.Tier) *Client {
	persistent := tier == request.TierForever
	return &Client{
		name:        name,
		shared:      shared,
		tier:        tier,
		bulk:        binding{persistent: persistent, realtime: false},
		realtime:    binding{persistent: persistent, realtime: true},
		cache:       status.New(),
		records:     make(map[string]*request.Record),
		subscribers: make(map[uuid.UUID]NotificationSink),
	}
}

// Name implements request.Owner. Empty for the shared queue.
func (c *Client) Name() string { return c.name }

// Shared implements request.Owner.
func (c *Client) Shared() bool { return c.shared }

// Tier implements request.Owner.
func (c *Client) Tier() request.Tier { return c.tier }

// Binding implements request.Owner.
func (c *Client) Binding(realtime bool) engine.Binding {
	if realtime {
		return c.realtime
	}
	return c.bulk
}

// StatusCache implements request.Owner.
func (c *Client) StatusCache() request.StatusCache {
	if c.cache == nil {
		return nil
	}
	return c.cache
}

// Cache returns the client's concrete status cache for status queries.
func (c *Client) Cache() *status.Cache { return c.cache }

// Register adds a record to the client's queue and seeds its status
// cache entry. The identifier must be free.
func (c *Client) Register(r *request.Record) error {
	identifier := r.Identifier()

	c.mu.Lock()
	if _, exists := c.records[identifier]; exists {
		c.mu.Unlock()
		return warren.ErrIdentifierCollision
	}
	c.records[identifier] = r
	c.mu.Unlock()

	c.cache.AddRequest(status.Entry{
		Identifier:    identifier,
		Kind:          r.Kind(),
		Target:        r.Target(),
		PriorityClass: r.Priority(),
		Realtime:      r.Realtime(),
		Started:       r.Started(),
		Finished:      r.HasFinished(),
		Succeeded:     r.HasSucceeded(),
		LastActivity:  r.LastActivity(),
	})
	return nil
}

// Get returns the record with the given identifier.
func (c *Client) Get(identifier string) (*request.Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.records[identifier]
	return r, ok
}

// Remove drops an acknowledged or evicted record from the queue, clears
// its cache entry, and notifies subscribers. The caller is responsible
// for the durable-storage side effect on the crash-persistent tier.
func (c *Client) Remove(identifier string) (*request.Record, error) {
	c.mu.Lock()
	r, ok := c.records[identifier]
	if !ok {
		c.mu.Unlock()
		return nil, warren.ErrRequestNotFound
	}
	delete(c.records, identifier)
	c.mu.Unlock()

	c.cache.Remove(identifier)

	n := request.Notification{Event: request.EventRemoved}
	n.Identity, _ = r.Identity()
	c.QueueNotification(n)
	return r, nil
}

// FinishedRequest implements request.Owner: a record's engine reported
// a terminal outcome. The record stays queued until the client
// acknowledges it; this mirrors the outcome into the status cache and
// notifies subscribers.
func (c *Client) FinishedRequest(r *request.Record) {
	c.cache.MarkFinished(r.Identifier(), r.HasSucceeded(), r.FailureReason())

	n := request.Notification{
		Event:         request.EventFinished,
		Succeeded:     r.HasSucceeded(),
		FailureReason: r.FailureReason(),
	}
	n.Identity, _ = r.Identity()
	c.QueueNotification(n)
}

// QueueNotification implements request.Owner: fan a notification out to
// every subscribed session handler.
func (c *Client) QueueNotification(n request.Notification) {
	c.mu.Lock()
	sinks := make([]NotificationSink, 0, len(c.subscribers))
	for _, s := range c.subscribers {
		sinks = append(sinks, s)
	}
	c.mu.Unlock()

	for _, s := range sinks {
		s.Notify(n)
	}
}

// Subscribe registers a session handler for notifications and returns
// its subscription ID.
func (c *Client) Subscribe(s NotificationSink) uuid.UUID {
	id := uuid.New()
	c.mu.Lock()
	c.subscribers[id] = s
	c.mu.Unlock()
	return id
}

// Unsubscribe removes a subscription.
func (c *Client) Unsubscribe(id uuid.UUID) {
	c.mu.Lock()
	delete(c.subscribers, id)
	c.mu.Unlock()
}

// Records returns a snapshot of the client's records.
func (c *Client) Records() []*request.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*request.Record, 0, len(c.records))
	for _, r := range c.records {
		out = append(out, r)
	}
	return out
}

// Len returns the number of queued records.
func (c *Client) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}
