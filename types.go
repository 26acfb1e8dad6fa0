package stext

import (
	"reflect"

	"github.com/cockroachdb/errors"
)

// Char is a single character, serialized as its numeric code point. Go's
// rune is an alias of int32, so a distinct type is needed to pick the char
// tag over the int tag.
type Char rune

// Point is a small 2D integer value, serialized inline as "x,y".
type Point struct {
	X, Y int32
}

// Vector is a small 2D float value, serialized inline as "x,y".
type Vector struct {
	X, Y float32
}

// Reserved node names. Block and structure nodes carry a leading '@' so they
// can never collide with a struct field name.
const (
	tagNull    = "null"
	tagRef     = "ref"
	nodeProxy  = "@proxy"
	nodeBefore = "@before"
	nodeFields = "@fields"
	nodeAfter  = "@after"
	nodeDims   = "@dims"
	refIDName  = "id"
)

// TypeSelector lets a value substitute an alternate type to serialize as.
// Returning nil means no substitution. When the returned type differs from
// the runtime type, only the proxy flag and the custom blocks are written;
// no field data follows.
type TypeSelector interface {
	SerializeAs(p *Pool) reflect.Type
}

// BeforeFieldsWriter writes named values into the out-of-band block emitted
// before the structural fields.
type BeforeFieldsWriter interface {
	SerializeBefore(b *Block) error
}

// AfterFieldsWriter writes named values into the out-of-band block emitted
// after the structural fields.
type AfterFieldsWriter interface {
	SerializeAfter(b *Block) error
}

// BeforeFieldsReader reads the before-fields block. It runs before any field
// of the instance is populated, so an instance can make itself resolvable to
// fields that refer back to it.
type BeforeFieldsReader interface {
	DeserializeBefore(b *Block) error
}

// AfterFieldsReader reads the after-fields block.
type AfterFieldsReader interface {
	DeserializeAfter(b *Block) error
}

// ProxyObject marks a deserialized instance as a pure indirection: after its
// blocks are read, RealObject is invoked and its result is returned to the
// caller instead of the instance itself.
type ProxyObject interface {
	RealObject(p *Pool) (any, error)
}

// Block is the named-value namespace handed to the custom serialization
// hooks. On the write side values are appended in call order; on the read
// side they must be requested in the same order they were written.
type Block struct {
	enc   *Encoder
	dec   *Decoder
	owner any
	empty bool // read side: no wire block is present
}

// Owner returns the instance the block belongs to. During deserialization
// this is the freshly constructed instance, before its fields are read.
func (b *Block) Owner() any { return b.owner }

// Pool returns the identity pool of the running batch.
func (b *Block) Pool() *Pool {
	if b.enc != nil {
		return b.enc.pool
	}
	return b.dec.pool
}

// SetValue writes one named value. Only valid on the write side.
func (b *Block) SetValue(name string, v any) error {
	if b.enc == nil {
		return errors.Wrap(ErrUnexpected, "SetValue on a read-side block")
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		b.enc.w.Element(name, "")
		return b.enc.w.Err()
	}
	return b.enc.encodeNamed(name, rv)
}

// Value reads one named value into target, which must be a non-nil pointer.
// Only valid on the read side. Requesting a value that was never written is
// an error; a block absent from the wire holds no values at all.
func (b *Block) Value(name string, target any) error {
	if b.dec == nil {
		return errors.Wrap(ErrUnexpected, "Value on a write-side block")
	}
	if b.empty {
		return errors.Wrapf(ErrUnexpected, "named value %q absent from custom block", name)
	}
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return errors.Wrapf(ErrUnexpected, "Value target for %q must be a non-nil pointer", name)
	}
	return b.dec.decodeNamed(name, rv.Elem())
}
