package stext

import (
	"io"
	"reflect"
	"strings"

	"github.com/cockroachdb/errors"
)

// Encoder walks an object graph and emits it through a Writer. The pool and
// registry are explicit collaborators: serializers that must resolve shared
// references across several Encode calls hand every Encoder the same pool.
type Encoder struct {
	w    *Writer
	pool *Pool
	reg  *Registry
}

// NewEncoder creates an Encoder emitting to w. A nil pool gets a fresh one
// (single-value batches need no sharing); a nil registry uses the default.
func NewEncoder(w io.Writer, pool *Pool, reg *Registry) (*Encoder, error) {
	nw, err := NewWriter(w)
	if err != nil {
		return nil, err
	}
	if pool == nil {
		pool = NewPool()
	}
	if reg == nil {
		reg = defaultRegistry
	}
	return &Encoder{w: nw, pool: pool, reg: reg}, nil
}

// Encode serializes one root value, nil included, and flushes the output.
func (e *Encoder) Encode(v any) error {
	if err := e.encodeValue(reflect.ValueOf(v)); err != nil {
		return err
	}
	return e.w.Flush()
}

// encodeValue writes one tagged node for v. Dispatch order: nil, simple
// scalar, array/slice, map, object.
func (e *Encoder) encodeValue(v reflect.Value) error {
	for v.IsValid() && (v.Kind() == reflect.Interface || v.Kind() == reflect.Pointer) {
		if v.IsNil() {
			v = reflect.Value{}
			break
		}
		v = v.Elem()
	}
	if !v.IsValid() {
		e.w.Element(tagNull, "")
		return e.w.Err()
	}

	t := v.Type()
	if k := classify(t); k != kindNone {
		tag, err := e.reg.tagFor(t)
		if err != nil {
			return err
		}
		text, err := encodeScalar(v, k)
		if err != nil {
			return err
		}
		e.w.Element(tag, text)
		return e.w.Err()
	}

	switch t.Kind() {
	case reflect.Array, reflect.Slice:
		return e.encodeArray(v)
	case reflect.Map:
		return e.encodeMap(v)
	case reflect.Struct:
		return e.encodeObject(v)
	default:
		return errors.Wrapf(ErrUnsupportedType, "%s", t)
	}
}

// encodeArray writes a complex array node: the dimensions descriptor child,
// then every element in row-major order. Nested fixed-size arrays are the
// multi-dimensional case; slices always contribute exactly one rank, so a
// slice of slices stays jagged.
func (e *Encoder) encodeArray(v reflect.Value) error {
	t := v.Type()
	tag, err := e.reg.tagFor(t)
	if err != nil {
		return err
	}
	dims := arrayDims(t, v)
	e.w.Begin(tag)
	e.w.Element(nodeDims, joinDims(dims))
	if err := e.encodeElements(v, len(dims)-1); err != nil {
		return err
	}
	e.w.End()
	return e.w.Err()
}

func arrayDims(t reflect.Type, v reflect.Value) []int {
	if t.Kind() == reflect.Slice {
		return []int{v.Len()}
	}
	dims := []int{t.Len()}
	for et := t.Elem(); et.Kind() == reflect.Array; et = et.Elem() {
		dims = append(dims, et.Len())
	}
	return dims
}

func joinDims(dims []int) string {
	parts := make([]string, len(dims))
	for i, d := range dims {
		parts[i] = itoa(d)
	}
	return strings.Join(parts, ",")
}

func (e *Encoder) encodeElements(v reflect.Value, ranks int) error {
	if ranks == 0 {
		for i := 0; i < v.Len(); i++ {
			if err := e.encodeValue(v.Index(i)); err != nil {
				return err
			}
		}
		return nil
	}
	for i := 0; i < v.Len(); i++ {
		if err := e.encodeElements(v.Index(i), ranks-1); err != nil {
			return err
		}
	}
	return nil
}

// encodeMap writes a map node as alternating key/value children.
func (e *Encoder) encodeMap(v reflect.Value) error {
	tag, err := e.reg.tagFor(v.Type())
	if err != nil {
		return err
	}
	e.w.Begin(tag)
	iter := v.MapRange()
	for iter.Next() {
		if err := e.encodeValue(iter.Key()); err != nil {
			return err
		}
		if err := e.encodeValue(iter.Value()); err != nil {
			return err
		}
	}
	e.w.End()
	return e.w.Err()
}

// encodeObject writes a plain object node: tag, proxy flag when the type
// substituted itself, before-fields block, structural fields, after-fields
// block. Proxies carry no field data; their real object is reconstructed
// through reference resolution on the reading side.
func (e *Encoder) encodeObject(v reflect.Value) error {
	v, err := addressable(v)
	if err != nil {
		return err
	}
	t := v.Type()
	inst := v.Addr().Interface()

	actual := t
	if ts, ok := inst.(TypeSelector); ok {
		if sub := ts.SerializeAs(e.pool); sub != nil {
			actual = sub
		}
	}
	tag, err := e.reg.tagFor(actual)
	if err != nil {
		return err
	}

	e.w.Begin(tag)
	proxy := actual != t
	if proxy {
		e.w.Element(nodeProxy, "true")
	}
	if bw, ok := inst.(BeforeFieldsWriter); ok {
		e.w.Begin(nodeBefore)
		if err := bw.SerializeBefore(&Block{enc: e, owner: inst}); err != nil {
			return err
		}
		e.w.End()
	}
	if !proxy {
		layout, err := layoutOf(t)
		if err != nil {
			return err
		}
		e.w.Begin(nodeFields)
		for i := range layout.fields {
			d := &layout.fields[i]
			if err := e.encodeField(d, fieldValue(v, d)); err != nil {
				return errors.Wrapf(err, "field %s.%s", t, d.name)
			}
		}
		e.w.End()
	}
	if aw, ok := inst.(AfterFieldsWriter); ok {
		e.w.Begin(nodeAfter)
		if err := aw.SerializeAfter(&Block{enc: e, owner: inst}); err != nil {
			return err
		}
		e.w.End()
	}
	e.w.End()
	return e.w.Err()
}

// encodeField writes one field child. A field with a simple static type
// holds its text inline; anything else nests a tagged node, which also
// covers polymorphic interface fields.
func (e *Encoder) encodeField(d *fieldDesc, fv reflect.Value) error {
	if d.simple {
		text, err := encodeScalar(fv, d.kind)
		if err != nil {
			return err
		}
		e.w.Element(d.name, text)
		return e.w.Err()
	}
	e.w.Begin(d.name)
	if err := e.encodeValue(fv); err != nil {
		return err
	}
	e.w.End()
	return e.w.Err()
}

// encodeNamed writes one named value of a custom block, with the same
// inline-or-nested shape as a field.
func (e *Encoder) encodeNamed(name string, rv reflect.Value) error {
	if k := classify(rv.Type()); k != kindNone {
		text, err := encodeScalar(rv, k)
		if err != nil {
			return err
		}
		e.w.Element(name, text)
		return e.w.Err()
	}
	e.w.Begin(name)
	if err := e.encodeValue(rv); err != nil {
		return err
	}
	e.w.End()
	return e.w.Err()
}
