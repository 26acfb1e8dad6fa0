package stext

import (
	"io"
	"reflect"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// Decoder reconstructs an object graph from a Lexer. Like the Encoder it
// carries an explicit pool and registry.
type Decoder struct {
	l    *Lexer
	pool *Pool
	reg  *Registry
}

// NewDecoder creates a Decoder reading from r. A nil pool gets a fresh one;
// a nil registry uses the default.
func NewDecoder(r io.Reader, pool *Pool, reg *Registry) (*Decoder, error) {
	l, err := NewLexer(r)
	if err != nil {
		return nil, err
	}
	if pool == nil {
		pool = NewPool()
	}
	if reg == nil {
		reg = defaultRegistry
	}
	return &Decoder{l: l, pool: pool, reg: reg}, nil
}

// Decode reads one root value. Object roots come back as pointers to their
// concrete type; a null node comes back as nil.
func (d *Decoder) Decode() (any, error) {
	v, err := d.decodeValue(nil)
	if err != nil {
		return nil, err
	}
	if !v.IsValid() {
		return nil, nil
	}
	return v.Interface(), nil
}

// decodeValue reads one tagged node. target is the static type of the slot
// the value is headed for, or nil when unknown; it narrows scalar and array
// reconstruction but never overrides the wire tag's say on object types.
// The returned value is invalid for null.
func (d *Decoder) decodeValue(target reflect.Type) (reflect.Value, error) {
	tag, err := d.l.Begin()
	if err != nil {
		return reflect.Value{}, err
	}
	if tag == tagNull {
		return reflect.Value{}, d.l.End()
	}

	wireT, err := d.reg.typeFor(tag)
	if err != nil {
		return reflect.Value{}, err
	}
	for target != nil && target.Kind() == reflect.Pointer {
		target = target.Elem()
	}

	if k := classify(wireT); k != kindNone {
		text, err := d.l.ContentOrEmpty()
		if err != nil {
			return reflect.Value{}, err
		}
		pt := wireT
		if target != nil && target.Kind() != reflect.Interface && classify(target) == k {
			pt = target
		}
		v, err := parseScalar(text, pt)
		if err != nil {
			return reflect.Value{}, err
		}
		return v, d.l.End()
	}

	t := wireT
	switch wireT.Kind() {
	case reflect.Slice, reflect.Array:
		if target != nil && target.Kind() != reflect.Interface {
			t = target
		}
		return d.decodeArray(t)
	case reflect.Map:
		if target != nil && target.Kind() == reflect.Map {
			t = target
		}
		return d.decodeMap(t)
	case reflect.Struct:
		return d.decodeObject(wireT)
	default:
		return reflect.Value{}, errors.Wrapf(ErrUnsupportedType, "%s", wireT)
	}
}

// decodeArray reads the dimensions descriptor and fills a fresh value of
// type t with the row-major element stream.
func (d *Decoder) decodeArray(t reflect.Type) (reflect.Value, error) {
	text, err := d.l.Element(nodeDims)
	if err != nil {
		return reflect.Value{}, err
	}
	dims, err := parseDims(text)
	if err != nil {
		return reflect.Value{}, err
	}
	out := reflect.New(t).Elem()
	if err := d.fillElements(out, dims); err != nil {
		return reflect.Value{}, err
	}
	return out, d.l.End()
}

func parseDims(text string) ([]int, error) {
	parts := strings.Split(text, ",")
	dims := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return nil, errors.Wrapf(ErrBadScalar, "dimensions descriptor %q", text)
		}
		dims[i] = n
	}
	return dims, nil
}

func (d *Decoder) fillElements(v reflect.Value, dims []int) error {
	if len(dims) == 0 {
		ev, err := d.decodeValue(v.Type())
		if err != nil {
			return err
		}
		return assignValue(v, ev)
	}
	n := dims[0]
	switch v.Kind() {
	case reflect.Slice:
		v.Set(reflect.MakeSlice(v.Type(), n, n))
	case reflect.Array:
		if v.Len() != n {
			return errors.Wrapf(ErrUnexpected, "rank extent %d does not fit %s", n, v.Type())
		}
	default:
		return errors.Wrapf(ErrUnexpected, "%d-rank element stream for %s", len(dims), v.Type())
	}
	for i := 0; i < n; i++ {
		if err := d.fillElements(v.Index(i), dims[1:]); err != nil {
			return err
		}
	}
	return nil
}

// decodeMap reads alternating key/value children until the node closes.
func (d *Decoder) decodeMap(t reflect.Type) (reflect.Value, error) {
	out := reflect.MakeMap(t)
	for {
		p, err := d.l.Peek()
		if err != nil {
			return reflect.Value{}, err
		}
		if p.Kind == KindEnd {
			_, err := d.l.Next()
			return out, err
		}
		key := reflect.New(t.Key()).Elem()
		kv, err := d.decodeValue(t.Key())
		if err != nil {
			return reflect.Value{}, err
		}
		if err := assignValue(key, kv); err != nil {
			return reflect.Value{}, err
		}
		val := reflect.New(t.Elem()).Elem()
		vv, err := d.decodeValue(t.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		if err := assignValue(val, vv); err != nil {
			return reflect.Value{}, err
		}
		out.SetMapIndex(key, val)
	}
}

// decodeObject constructs an instance of t, visits its proxy flag, custom
// blocks and fields, and returns either the instance (as a pointer) or, for
// indirection markers, the real object it resolves to.
//
// The before-fields block is always visited before the fields block, and an
// absent wire block still invokes the matching hook with an empty Block, so
// write and read call sequences stay symmetric.
func (d *Decoder) decodeObject(t reflect.Type) (reflect.Value, error) {
	pv, err := d.construct(t)
	if err != nil {
		return reflect.Value{}, err
	}
	inst := pv.Interface()
	elem := pv.Elem()

	var beforeDone, afterDone bool
	callBefore := func(empty bool) error {
		if beforeDone {
			return nil
		}
		beforeDone = true
		return d.visitBlock(inst, empty, false)
	}

	for {
		p, err := d.l.Peek()
		if err != nil {
			return reflect.Value{}, err
		}
		if p.Kind == KindEnd {
			if _, err := d.l.Next(); err != nil {
				return reflect.Value{}, err
			}
			break
		}
		if p.Kind != KindBegin {
			// Stray content inside an object node carries no meaning.
			if _, err := d.l.Next(); err != nil {
				return reflect.Value{}, err
			}
			continue
		}
		switch p.Text {
		case nodeProxy:
			if _, err := d.l.Element(nodeProxy); err != nil {
				return reflect.Value{}, err
			}
		case nodeBefore:
			if err := d.l.BeginNamed(nodeBefore); err != nil {
				return reflect.Value{}, err
			}
			if err := callBefore(false); err != nil {
				return reflect.Value{}, err
			}
			if err := d.drainBlock(); err != nil {
				return reflect.Value{}, err
			}
		case nodeFields:
			// An instance registers itself before its fields are read, so
			// fields that refer back to it resolve to it, not a duplicate.
			if err := callBefore(true); err != nil {
				return reflect.Value{}, err
			}
			if err := d.l.BeginNamed(nodeFields); err != nil {
				return reflect.Value{}, err
			}
			if err := d.decodeFields(elem); err != nil {
				return reflect.Value{}, err
			}
		case nodeAfter:
			if err := d.l.BeginNamed(nodeAfter); err != nil {
				return reflect.Value{}, err
			}
			afterDone = true
			if err := d.visitBlock(inst, false, true); err != nil {
				return reflect.Value{}, err
			}
			if err := d.drainBlock(); err != nil {
				return reflect.Value{}, err
			}
		default:
			// Unknown child: tolerate and move on.
			if err := d.l.Skip(); err != nil {
				return reflect.Value{}, err
			}
		}
	}

	if err := callBefore(true); err != nil {
		return reflect.Value{}, err
	}
	if !afterDone {
		if err := d.visitBlock(inst, true, true); err != nil {
			return reflect.Value{}, err
		}
	}

	if po, ok := inst.(ProxyObject); ok {
		real, err := po.RealObject(d.pool)
		if err != nil {
			return reflect.Value{}, err
		}
		if real == nil {
			return reflect.Value{}, nil
		}
		return reflect.ValueOf(real), nil
	}
	return pv, nil
}

// construct builds a fresh *t: a registered factory first, else zero-value
// construction. Types reflect cannot instantiate have no construction path.
func (d *Decoder) construct(t reflect.Type) (reflect.Value, error) {
	if fn, ok := d.reg.factoryFor(t); ok {
		pv := reflect.ValueOf(fn())
		if !pv.IsValid() || pv.Kind() != reflect.Pointer || pv.IsNil() || pv.Type().Elem() != t {
			return reflect.Value{}, errors.Wrapf(ErrNoConstructor, "factory for %s returned the wrong shape", t)
		}
		return pv, nil
	}
	if t.Kind() == reflect.Interface {
		return reflect.Value{}, errors.Wrapf(ErrNoConstructor, "%s", t)
	}
	return reflect.New(t), nil
}

// visitBlock invokes the instance's before/after read hook, if it has one.
func (d *Decoder) visitBlock(inst any, empty, after bool) error {
	b := &Block{dec: d, owner: inst, empty: empty}
	if after {
		if ar, ok := inst.(AfterFieldsReader); ok {
			return ar.DeserializeAfter(b)
		}
		return nil
	}
	if br, ok := inst.(BeforeFieldsReader); ok {
		return br.DeserializeBefore(b)
	}
	return nil
}

// drainBlock skips any named values the read hook left unconsumed and
// closes the block node.
func (d *Decoder) drainBlock() error {
	for {
		p, err := d.l.Peek()
		if err != nil {
			return err
		}
		if p.Kind == KindEnd {
			_, err := d.l.Next()
			return err
		}
		if err := d.l.Skip(); err != nil {
			return err
		}
	}
}

// decodeFields reads the fields block into elem. Wire fields with no
// matching layout entry are skipped whole, so extra or unknown fields do
// not abort the object.
func (d *Decoder) decodeFields(elem reflect.Value) error {
	layout, err := layoutOf(elem.Type())
	if err != nil {
		return err
	}
	for {
		p, err := d.l.Peek()
		if err != nil {
			return err
		}
		if p.Kind == KindEnd {
			_, err := d.l.Next()
			return err
		}
		if p.Kind != KindBegin {
			if _, err := d.l.Next(); err != nil {
				return err
			}
			continue
		}
		desc := layout.byName[p.Text]
		if desc == nil {
			if err := d.l.Skip(); err != nil {
				return err
			}
			continue
		}
		if _, err := d.l.Next(); err != nil {
			return err
		}
		fv := fieldValue(elem, desc)
		if err := d.decodeField(desc, fv); err != nil {
			return errors.Wrapf(err, "field %s.%s", elem.Type(), desc.name)
		}
	}
}

func (d *Decoder) decodeField(desc *fieldDesc, fv reflect.Value) error {
	if desc.simple {
		text, err := d.l.ContentOrEmpty()
		if err != nil {
			return err
		}
		sv, err := parseScalar(text, desc.typ)
		if err != nil {
			return err
		}
		fv.Set(sv)
		return d.l.End()
	}
	p, err := d.l.Peek()
	if err != nil {
		return err
	}
	if p.Kind == KindEnd {
		// No value node: the field keeps its zero value.
		_, err := d.l.Next()
		return err
	}
	ev, err := d.decodeValue(desc.typ)
	if err != nil {
		return err
	}
	if err := assignValue(fv, ev); err != nil {
		return err
	}
	return d.l.End()
}

// decodeNamed reads one named value of a custom block into target, matching
// the inline-or-nested shape encodeNamed produces.
func (d *Decoder) decodeNamed(name string, target reflect.Value) error {
	p, err := d.l.Peek()
	if err != nil {
		return err
	}
	if p.Kind != KindBegin || p.Text != name {
		return errors.Wrapf(ErrUnexpected, "want named value %q, got %s %q at line %d col %d",
			name, p.Kind, p.Text, p.Line, p.Col)
	}
	if _, err := d.l.Next(); err != nil {
		return err
	}
	if k := classify(target.Type()); k != kindNone {
		text, err := d.l.ContentOrEmpty()
		if err != nil {
			return err
		}
		sv, err := parseScalar(text, target.Type())
		if err != nil {
			return err
		}
		target.Set(sv)
		return d.l.End()
	}
	p, err = d.l.Peek()
	if err != nil {
		return err
	}
	if p.Kind == KindEnd {
		_, err := d.l.Next()
		return err
	}
	ev, err := d.decodeValue(target.Type())
	if err != nil {
		return err
	}
	if err := assignValue(target, ev); err != nil {
		return err
	}
	return d.l.End()
}

// assignValue stores src into dst, bridging pointer/value shape and
// convertible named types. An invalid src is a decoded null and leaves dst
// at its zero value.
func assignValue(dst, src reflect.Value) error {
	if !src.IsValid() {
		dst.SetZero()
		return nil
	}
	st, dt := src.Type(), dst.Type()
	switch {
	case st.AssignableTo(dt):
		dst.Set(src)
	case st.Kind() == reflect.Pointer && st.Elem().AssignableTo(dt):
		dst.Set(src.Elem())
	case dt.Kind() == reflect.Pointer && st.AssignableTo(dt.Elem()):
		p := reflect.New(dt.Elem())
		p.Elem().Set(src)
		dst.Set(p)
	case st.ConvertibleTo(dt) && st.Kind() == dt.Kind():
		dst.Set(src.Convert(dt))
	case st.Kind() == reflect.Pointer && st.Elem().ConvertibleTo(dt) && st.Elem().Kind() == dt.Kind():
		dst.Set(src.Elem().Convert(dt))
	default:
		return errors.Wrapf(ErrUnexpected, "cannot store %s into %s", st, dt)
	}
	return nil
}
