package request

import (
	"context"
	"fmt"
	"sync"

	"github.com/warrennet/warren/engine"
)

// putVariant is the insert-specific half of a record. The source data
// buffer lives with the engine's own storage across restarts and is
// never serialized here.
type putVariant struct {
	mu      sync.Mutex
	payload Buffer
}

func (p *putVariant) kind() Kind { return KindPut }

func (p *putVariant) attachPayload(b Buffer) {
	p.mu.Lock()
	old := p.payload
	p.payload = b
	p.mu.Unlock()
	if old != nil {
		old.Free()
	}
}

func (p *putVariant) freeData() {
	p.mu.Lock()
	b := p.payload
	p.payload = nil
	p.mu.Unlock()
	if b != nil {
		b.Free()
	}
}

func (p *putVariant) encodeDetail(e *encoder, r *Record) {
	e.writeString(r.target)
}

func (p *putVariant) reattach(ctx context.Context, env ResumeEnv, r *Record) (engine.Engine, error) {
	return env.Engines.New(ctx, engine.Spec{
		Op:       engine.OpInsert,
		Target:   r.target,
		Priority: int(r.Priority()),
		Realtime: r.realtime,
	}, r.binding, r)
}

// NewPut creates a fresh insert record and binds its engine instance.
// data is the source payload buffer, or nil when the engine sources the
// data itself; the record frees it on cancel or drop.
func NewPut(ctx context.Context, engines engine.Factory, p Params, data Buffer) (*Record, error) {
	v := &putVariant{payload: data}
	r, err := newRecord(v, p)
	if err != nil {
		return nil, err
	}
	eng, err := engines.New(ctx, engine.Spec{
		Op:       engine.OpInsert,
		Target:   p.Target,
		Priority: int(p.Priority),
		Realtime: p.Realtime,
	}, r.binding, r)
	if err != nil {
		return nil, fmt.Errorf("request: bind insert engine for %q: %w", p.Identifier, err)
	}
	r.attachEngine(eng)
	return r, nil
}

// resumePut reconstructs an insert record from the kind-specific detail
// following the common header.
func resumePut(d *decoder, h Header, env ResumeEnv) (*Record, error) {
	target, err := d.readString()
	if err != nil {
		return nil, err
	}
	return resumeCommon(&putVariant{}, h, env, target), nil
}

// NewForTesting builds a record of the given kind around a
// caller-supplied engine handle, bypassing the engine factory. For
// tests of collaborating layers only.
func NewForTesting(kind Kind, p Params, eng engine.Engine) (*Record, error) {
	var v variant
	switch kind {
	case KindGet:
		v = &getVariant{}
	case KindPut:
		v = &putVariant{}
	default:
		return nil, fmt.Errorf("request: unknown kind %d", kind)
	}
	r, err := newRecord(v, p)
	if err != nil {
		return nil, err
	}
	r.attachEngine(eng)
	return r, nil
}
