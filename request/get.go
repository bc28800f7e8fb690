package request

import (
	"context"
	"fmt"
	"sync"

	"github.com/warrennet/warren/engine"
)

// getVariant is the fetch-specific half of a record: the filter bypass
// flag and the returned payload buffer held until acknowledgement.
type getVariant struct {
	disableFilterData bool

	mu      sync.Mutex
	payload Buffer
}

func (g *getVariant) kind() Kind { return KindGet }

func (g *getVariant) attachPayload(b Buffer) {
	g.mu.Lock()
	old := g.payload
	g.payload = b
	g.mu.Unlock()
	if old != nil {
		old.Free()
	}
}

func (g *getVariant) freeData() {
	g.mu.Lock()
	b := g.payload
	g.payload = nil
	g.mu.Unlock()
	if b != nil {
		b.Free()
	}
}

func (g *getVariant) encodeDetail(e *encoder, r *Record) {
	e.writeString(r.target)
	e.writeBool(g.disableFilterData)
}

func (g *getVariant) reattach(ctx context.Context, env ResumeEnv, r *Record) (engine.Engine, error) {
	return env.Engines.New(ctx, engine.Spec{
		Op:                engine.OpFetch,
		Target:            r.target,
		Priority:          int(r.Priority()),
		Realtime:          r.realtime,
		DisableFilterData: g.disableFilterData,
	}, r.binding, r)
}

// NewGet creates a fresh fetch record and binds its engine instance.
func NewGet(ctx context.Context, engines engine.Factory, p Params, disableFilterData bool) (*Record, error) {
	v := &getVariant{disableFilterData: disableFilterData}
	r, err := newRecord(v, p)
	if err != nil {
		return nil, err
	}
	eng, err := engines.New(ctx, engine.Spec{
		Op:                engine.OpFetch,
		Target:            p.Target,
		Priority:          int(p.Priority),
		Realtime:          p.Realtime,
		DisableFilterData: disableFilterData,
	}, r.binding, r)
	if err != nil {
		return nil, fmt.Errorf("request: bind fetch engine for %q: %w", p.Identifier, err)
	}
	r.attachEngine(eng)
	return r, nil
}

// resumeGet reconstructs a fetch record from the kind-specific detail
// following the common header.
func resumeGet(d *decoder, h Header, env ResumeEnv) (*Record, error) {
	target, err := d.readString()
	if err != nil {
		return nil, err
	}
	disableFilter, err := d.readBool()
	if err != nil {
		return nil, err
	}
	v := &getVariant{disableFilterData: disableFilter}
	return resumeCommon(v, h, env, target), nil
}
