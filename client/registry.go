package client

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/warrennet/warren"
	"github.com/warrennet/warren/request"
)

// Compile-time interface check.
var _ request.Root = (*Registry)(nil)

type clientKey struct {
	shared bool
	name   string
	tier   request.Tier
}

// Registry maps (shared, clientName, tier) to client entries. The same
// logical client may hold separate reboot- and crash-persistent queues,
// matching the durability classes of the requests it submits.
type Registry struct {
	logger *slog.Logger

	mu      sync.Mutex
	clients map[clientKey]*Client
}

// NewRegistry returns an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger:  logger,
		clients: make(map[clientKey]*Client),
	}
}

// LookupOrCreate resolves a client entry, creating it if needed. The
// shared queue uses an empty name.
func (reg *Registry) LookupOrCreate(shared bool, name string, tier request.Tier) *Client {
	if shared {
		name = ""
	}
	key := clientKey{shared: shared, name: name, tier: tier}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	if c, ok := reg.clients[key]; ok {
		return c
	}
	c := newClient(shared, name, tier)
	reg.clients[key] = c
	return c
}

// Lookup returns an existing client entry.
func (reg *Registry) Lookup(shared bool, name string, tier request.Tier) (*Client, bool) {
	if shared {
		name = ""
	}
	reg.mu.Lock()
	defer reg.mu.Unlock()
	c, ok := reg.clients[clientKey{shared: shared, name: name, tier: tier}]
	return c, ok
}

// MakeClient implements request.Root: resolve the crash-persistent
// entry for (shared, name). It works at any time after a restart,
// independent of record resumption order.
func (reg *Registry) MakeClient(shared bool, name string) request.Owner {
	return reg.LookupOrCreate(shared, name, request.TierForever)
}

// Resume implements request.Root: register a freshly deserialized
// record with its owning client so future checkpoints include it.
func (reg *Registry) Resume(r *request.Record) error {
	id, ok := r.Identity()
	if !ok {
		return fmt.Errorf("client: record %q has no queue identity: %w",
			r.Identifier(), warren.ErrIllegalTransition)
	}
	c := reg.LookupOrCreate(id.Shared, id.ClientName, request.TierForever)
	return c.Register(r)
}

// ForEachForever visits every crash-persistent record; the checkpoint
// path uses it to enumerate what must be serialized.
func (reg *Registry) ForEachForever(f func(*request.Record)) {
	for _, c := range reg.snapshot() {
		if c.Tier() != request.TierForever {
			continue
		}
		for _, r := range c.Records() {
			f(r)
		}
	}
}

// ForEachRecord visits every record on every queue, e.g. for the
// shutdown flush pass.
func (reg *Registry) ForEachRecord(f func(*request.Record)) {
	for _, c := range reg.snapshot() {
		for _, r := range c.Records() {
			f(r)
		}
	}
}

// Clients returns a snapshot of all client entries.
func (reg *Registry) Clients() []*Client { return reg.snapshot() }

func (reg *Registry) snapshot() []*Client {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	out := make([]*Client, 0, len(reg.clients))
	for _, c := range reg.clients {
		out = append(out, c)
	}
	return out
}
