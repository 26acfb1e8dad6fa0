package stext

import (
	"reflect"
	"strconv"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/puzpuzpuz/xsync/v4"
)

// fieldDesc describes one structural field of an object.
type fieldDesc struct {
	name   string // wire name, after collision disambiguation
	index  []int  // reflect index path from the struct root
	typ    reflect.Type
	kind   scalarKind
	simple bool
}

// structLayout is the walk plan for one struct type: every structural field
// in serialization order, with its wire name.
type structLayout struct {
	fields []fieldDesc
	byName map[string]*fieldDesc
}

// layoutCache holds one structLayout per struct type. Building a layout is
// reflection-heavy, so it happens once per type per process.
var layoutCache = xsync.NewMap[reflect.Type, *structLayout]()

// layoutOf returns the walk plan for t, building and caching it on first use.
//
// Embedded (anonymous) struct fields are the type-hierarchy levels of the
// format: their fields are flattened into the object's field namespace at
// the embedding site, in declaration order. A name already taken within the
// object's full namespace gets a numeric suffix starting at 2; the decode
// side builds the identical layout, so names line up.
func layoutOf(t reflect.Type) (*structLayout, error) {
	if l, ok := layoutCache.Load(t); ok {
		return l, nil
	}
	l := &structLayout{byName: make(map[string]*fieldDesc)}
	taken := make(map[string]bool)
	if err := collectFields(t, nil, taken, l); err != nil {
		return nil, err
	}
	for i := range l.fields {
		l.byName[l.fields[i].name] = &l.fields[i]
	}
	layoutCache.Store(t, l)
	return l, nil
}

func collectFields(t reflect.Type, prefix []int, taken map[string]bool, l *structLayout) error {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		index := append(append([]int(nil), prefix...), i)

		if f.Anonymous && f.Type == typeReferable {
			continue // identity machinery, carried in the before-fields block
		}
		if f.Anonymous && f.Type.Kind() == reflect.Struct && classify(f.Type) == kindNone {
			if err := collectFields(f.Type, index, taken, l); err != nil {
				return err
			}
			continue
		}

		tag := f.Tag.Get("stext")
		if tag == "-" {
			continue
		}
		switch f.Type.Kind() {
		case reflect.Func, reflect.Chan, reflect.UnsafePointer:
			continue // never structural data
		}

		name := f.Name
		if tag != "" {
			name = tag
		}
		if taken[name] {
			for n := 2; ; n++ {
				c := name + strconv.Itoa(n)
				if !taken[c] {
					name = c
					break
				}
			}
		}
		taken[name] = true

		k := classify(f.Type)
		l.fields = append(l.fields, fieldDesc{
			name:   name,
			index:  index,
			typ:    f.Type,
			kind:   k,
			simple: k != kindNone,
		})
	}
	return nil
}

// fieldValue returns the field described by d within v, readable and
// settable even when the field is unexported. v must be addressable.
func fieldValue(v reflect.Value, d *fieldDesc) reflect.Value {
	f := v.FieldByIndex(d.index)
	if !f.CanInterface() {
		f = reflect.NewAt(f.Type(), unsafe.Pointer(f.UnsafeAddr())).Elem()
	}
	return f
}

// addressable returns v itself when addressable, else an addressable copy.
// Hooks have pointer receivers and unexported field access needs an address,
// so the walker normalizes every struct it visits.
func addressable(v reflect.Value) (reflect.Value, error) {
	if v.CanAddr() {
		return v, nil
	}
	tmp := reflect.New(v.Type()).Elem()
	if !v.CanInterface() {
		return v, errors.Wrapf(ErrUnsupportedType, "cannot take address of %s value", v.Type())
	}
	tmp.Set(v)
	return tmp, nil
}
