package stext

import (
	"reflect"
	"sync/atomic"

	"github.com/cockroachdb/errors"
)

// identitySeq is the process-wide identity source for participating
// instances. Identities are never reused within the process lifetime, so a
// freshly deserialized instance can never collide with a live one.
var identitySeq atomic.Uint64

// Pool maps in-flight object identities to their instances for the duration
// of one batch. It is an explicit context object: every Encoder/Decoder
// carries exactly one, and dropping the pool is what ends a batch. A Pool
// has no internal locking; a batch is single-threaded by design.
type Pool struct {
	entries map[uint64]any
}

// NewPool creates an empty identity pool.
func NewPool() *Pool {
	return &Pool{entries: make(map[uint64]any)}
}

func (p *Pool) register(id uint64, v any) { p.entries[id] = v }

func (p *Pool) lookup(id uint64) (any, bool) {
	v, ok := p.entries[id]
	return v, ok
}

func (p *Pool) seen(id uint64) bool {
	_, ok := p.entries[id]
	return ok
}

// Len returns the number of live identities.
func (p *Pool) Len() int { return len(p.entries) }

// Reset drops every entry. Stale entries surviving into a later batch
// satisfy identity lookups they should not, so every independent batch must
// start and end from an empty pool.
func (p *Pool) Reset() { clear(p.entries) }

// Referable gives an embedding struct automatic shared-reference and cycle
// support. The first serialization of an instance within a batch writes it
// in full and registers its identity; every later occurrence collapses into
// a lightweight reference node that resolves back to the same instance on
// read.
//
//	type Actor struct {
//		stext.Referable
//		Target *Actor
//	}
//
// The identity is assigned on first use and never serialized as a field; it
// travels in the before-fields block.
type Referable struct {
	id uint64
}

var typeReferable = reflect.TypeOf(Referable{})

// Identity returns the instance's identity, assigning it on first use so
// both organically constructed and freshly deserialized instances get a
// fresh, non-colliding one.
func (r *Referable) Identity() uint64 {
	if r.id == 0 {
		r.id = identitySeq.Add(1)
	}
	return r.id
}

// SerializeAs substitutes the reference marker for the second and later
// occurrences of the instance within a batch.
func (r *Referable) SerializeAs(p *Pool) reflect.Type {
	if p.seen(r.Identity()) {
		return typeReference
	}
	return nil
}

// SerializeBefore registers the instance in the pool and records its
// identity on the wire.
func (r *Referable) SerializeBefore(b *Block) error {
	id := r.Identity()
	b.Pool().register(id, b.Owner())
	return b.SetValue(refIDName, id)
}

// DeserializeBefore registers the freshly constructed instance under the
// identity it was serialized with. This runs before any field is read, so a
// field referring back to this instance resolves to it instead of a
// duplicate. The wire identity is only a pool key; the instance keeps its
// own fresh identity.
func (r *Referable) DeserializeBefore(b *Block) error {
	var id uint64
	if err := b.Value(refIDName, &id); err != nil {
		return err
	}
	b.Pool().register(id, b.Owner())
	return nil
}

// reference is the lightweight marker written in place of an already
// serialized participating instance. On read it resolves to the pooled
// instance carrying the same identity.
type reference struct {
	id uint64
}

var typeReference = reflect.TypeOf(reference{})

func (m *reference) DeserializeBefore(b *Block) error {
	return b.Value(refIDName, &m.id)
}

// RealObject resolves the marker to the pooled instance. An identity that
// was never registered in the current batch is a hard error, never a nil or
// default instance.
func (m *reference) RealObject(p *Pool) (any, error) {
	v, ok := p.lookup(m.id)
	if !ok {
		return nil, errors.Wrapf(ErrDanglingRef, "identity %d", m.id)
	}
	return v, nil
}
