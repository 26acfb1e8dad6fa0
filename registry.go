package stext

import (
	"reflect"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/shopspring/decimal"
)

// scalarKind classifies the types that encode inline as a single text token.
type scalarKind uint8

const (
	kindNone scalarKind = iota
	kindBool
	kindSByte
	kindShort
	kindInt
	kindLong
	kindByte
	kindUShort
	kindUInt
	kindULong
	kindFloat
	kindDouble
	kindChar
	kindString
	kindDecimal
	kindDateTime
	kindPoint
	kindVector
	kindSimpleArray
)

var kindTags = map[scalarKind]string{
	kindBool:     "bool",
	kindSByte:    "sbyte",
	kindShort:    "short",
	kindInt:      "int",
	kindLong:     "long",
	kindByte:     "byte",
	kindUShort:   "ushort",
	kindUInt:     "uint",
	kindULong:    "ulong",
	kindFloat:    "float",
	kindDouble:   "double",
	kindChar:     "char",
	kindString:   "string",
	kindDecimal:  "decimal",
	kindDateTime: "dateTime",
	kindPoint:    "point",
	kindVector:   "vector",
}

var (
	typeTime    = reflect.TypeOf(time.Time{})
	typeDecimal = reflect.TypeOf(decimal.Decimal{})
	typeChar    = reflect.TypeOf(Char(0))
	typePoint   = reflect.TypeOf(Point{})
	typeVector  = reflect.TypeOf(Vector{})
)

// scalarTypes is the canonical Go type for each scalar tag, used when the
// decode target is an interface.
var scalarTypes = map[string]reflect.Type{
	"bool":     reflect.TypeOf(false),
	"sbyte":    reflect.TypeOf(int8(0)),
	"short":    reflect.TypeOf(int16(0)),
	"int":      reflect.TypeOf(int32(0)),
	"long":     reflect.TypeOf(int64(0)),
	"byte":     reflect.TypeOf(uint8(0)),
	"ushort":   reflect.TypeOf(uint16(0)),
	"uint":     reflect.TypeOf(uint32(0)),
	"ulong":    reflect.TypeOf(uint64(0)),
	"float":    reflect.TypeOf(float32(0)),
	"double":   reflect.TypeOf(float64(0)),
	"char":     typeChar,
	"string":   reflect.TypeOf(""),
	"decimal":  typeDecimal,
	"dateTime": typeTime,
	"point":    typePoint,
	"vector":   typeVector,
}

// classify maps a type to its scalar kind, or kindNone for complex types.
// Named types with a scalar underlying kind (the Go enum idiom) classify by
// that kind. A one-dimensional slice or array of a simple, non-string,
// non-array element is itself simple: it encodes as one space-joined token.
// Strings are excluded from the joined form because they carry no space
// sentinel.
func classify(t reflect.Type) scalarKind {
	switch t {
	case typeTime:
		return kindDateTime
	case typeDecimal:
		return kindDecimal
	case typeChar:
		return kindChar
	case typePoint:
		return kindPoint
	case typeVector:
		return kindVector
	}
	switch t.Kind() {
	case reflect.Bool:
		return kindBool
	case reflect.Int8:
		return kindSByte
	case reflect.Int16:
		return kindShort
	case reflect.Int32:
		return kindInt
	case reflect.Int, reflect.Int64:
		return kindLong
	case reflect.Uint8:
		return kindByte
	case reflect.Uint16:
		return kindUShort
	case reflect.Uint32:
		return kindUInt
	case reflect.Uint, reflect.Uint64:
		return kindULong
	case reflect.Float32:
		return kindFloat
	case reflect.Float64:
		return kindDouble
	case reflect.String:
		return kindString
	case reflect.Slice, reflect.Array:
		ek := classify(t.Elem())
		if ek != kindNone && ek != kindString && ek != kindSimpleArray {
			return kindSimpleArray
		}
	}
	return kindNone
}

// Registry maps type identities to wire tags and back. The fixed scalar tag
// table is consulted first in both directions; everything else goes through
// the registered-name lookup. Lookups are concurrent-safe; serializers built
// on the same registry share it freely.
type Registry struct {
	types     *xsync.Map[string, reflect.Type]
	factories *xsync.Map[reflect.Type, func() any]
}

// NewRegistry creates an empty registry. The reference marker type is
// pre-registered under its reserved tag.
func NewRegistry() *Registry {
	r := &Registry{
		types:     xsync.NewMap[string, reflect.Type](),
		factories: xsync.NewMap[reflect.Type, func() any](),
	}
	r.types.Store(tagRef, typeReference)
	return r
}

// defaultRegistry backs serializers that are not given their own.
var defaultRegistry = NewRegistry()

// Register records the fully-qualified names of the sample values' types so
// that decoding can resolve them from their wire tags. Pointer samples are
// registered as their element type.
func Register(samples ...any) { defaultRegistry.Register(samples...) }

// Register is the per-registry form of the package-level Register.
func (r *Registry) Register(samples ...any) {
	for _, s := range samples {
		t := reflect.TypeOf(s)
		for t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		r.types.Store(typeName(t), t)
	}
}

// RegisterFactory attaches a construction function to the sample's type. The
// factory must return a pointer to a new instance; it takes priority over
// plain zero-value construction during decoding.
func (r *Registry) RegisterFactory(sample any, fn func() any) {
	t := reflect.TypeOf(sample)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	r.Register(sample)
	r.factories.Store(t, fn)
}

func (r *Registry) factoryFor(t reflect.Type) (func() any, bool) {
	return r.factories.Load(t)
}

// typeName returns the fully-qualified name used as the wire tag for a
// non-scalar type.
func typeName(t reflect.Type) string {
	if t.Name() != "" && t.PkgPath() != "" {
		return t.PkgPath() + "." + t.Name()
	}
	return t.String()
}

// tagFor resolves a type to its wire tag. Complex types are recorded in the
// name table as a side effect, so tags written in this process always
// resolve back.
func (r *Registry) tagFor(t reflect.Type) (string, error) {
	if t == typeReference {
		return tagRef, nil
	}
	switch k := classify(t); k {
	case kindNone:
	case kindSimpleArray:
		elem, err := r.tagFor(t.Elem())
		if err != nil {
			return "", err
		}
		return elem + "[]", nil
	default:
		return kindTags[k], nil
	}
	switch t.Kind() {
	case reflect.Struct, reflect.Slice, reflect.Array, reflect.Map:
		name := typeName(t)
		r.types.Store(name, t)
		return name, nil
	}
	return "", errors.Wrapf(ErrUnsupportedType, "%s", t)
}

// typeFor resolves a wire tag to a type: the fixed scalar table first, then
// the simple-array suffix, then the registered-name lookup. An unresolvable
// tag is a hard error.
func (r *Registry) typeFor(tag string) (reflect.Type, error) {
	if t, ok := scalarTypes[tag]; ok {
		return t, nil
	}
	if elem, ok := strings.CutSuffix(tag, "[]"); ok {
		et, err := r.typeFor(elem)
		if err != nil {
			return nil, err
		}
		return reflect.SliceOf(et), nil
	}
	if t, ok := r.types.Load(tag); ok {
		return t, nil
	}
	return nil, errors.Wrapf(ErrUnknownTag, "%q", tag)
}
