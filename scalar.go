package stext

import (
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/exp/constraints"
)

// timeLayout is the date-time wire layout. The spaces it contains are
// swapped with timeSpace on the wire so an encoded date-time never contains
// a space and can sit inside a space-joined array without ambiguity.
const timeLayout = "2006-01-02 15:04:05.999999999 -0700"

const timeSpace = '@'

func itoa[T constraints.Signed](v T) string { return strconv.FormatInt(int64(v), 10) }

func utoa[T constraints.Unsigned](v T) string { return strconv.FormatUint(uint64(v), 10) }

// ftoa renders the shortest text that round-trips at the given precision.
func ftoa[T constraints.Float](v T, bits int) string {
	return strconv.FormatFloat(float64(v), 'g', -1, bits)
}

func encodeTime(t time.Time) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' {
			return timeSpace
		}
		return r
	}, t.Format(timeLayout))
}

func decodeTime(s string) (time.Time, error) {
	plain := strings.Map(func(r rune) rune {
		if r == timeSpace {
			return ' '
		}
		return r
	}, s)
	t, err := time.Parse(timeLayout, plain)
	if err != nil {
		return time.Time{}, errors.Wrapf(ErrBadScalar, "date-time %q", s)
	}
	return t, nil
}

// encodeScalar renders a simple value as its single-token text form. k must
// be the classification of v's type.
func encodeScalar(v reflect.Value, k scalarKind) (string, error) {
	switch k {
	case kindBool:
		return strconv.FormatBool(v.Bool()), nil
	case kindSByte, kindShort, kindInt, kindLong, kindChar:
		return itoa(v.Int()), nil
	case kindByte, kindUShort, kindUInt, kindULong:
		return utoa(v.Uint()), nil
	case kindFloat:
		return ftoa(v.Float(), 32), nil
	case kindDouble:
		return ftoa(v.Float(), 64), nil
	case kindString:
		return v.String(), nil
	case kindDecimal:
		return v.Interface().(decimal.Decimal).String(), nil
	case kindDateTime:
		return encodeTime(v.Interface().(time.Time)), nil
	case kindPoint:
		p := v.Interface().(Point)
		return itoa(p.X) + "," + itoa(p.Y), nil
	case kindVector:
		vec := v.Interface().(Vector)
		return ftoa(vec.X, 32) + "," + ftoa(vec.Y, 32), nil
	case kindSimpleArray:
		ek := classify(v.Type().Elem())
		parts := make([]string, v.Len())
		for i := range parts {
			s, err := encodeScalar(v.Index(i), ek)
			if err != nil {
				return "", err
			}
			parts[i] = s
		}
		return strings.Join(parts, " "), nil
	}
	return "", errors.Wrapf(ErrUnsupportedType, "%s is not a simple type", v.Type())
}

// parseScalar parses single-token text into a fresh value of type t, which
// must classify as simple.
func parseScalar(text string, t reflect.Type) (reflect.Value, error) {
	out := reflect.New(t).Elem()
	switch k := classify(t); k {
	case kindBool:
		b, err := strconv.ParseBool(text)
		if err != nil {
			return out, errors.Wrapf(ErrBadScalar, "boolean %q", text)
		}
		out.SetBool(b)
	case kindSByte, kindShort, kindInt, kindLong, kindChar:
		i, err := strconv.ParseInt(text, 10, intBits(k))
		if err != nil {
			return out, errors.Wrapf(ErrBadScalar, "integer %q for %s", text, t)
		}
		out.SetInt(i)
	case kindByte, kindUShort, kindUInt, kindULong:
		u, err := strconv.ParseUint(text, 10, intBits(k))
		if err != nil {
			return out, errors.Wrapf(ErrBadScalar, "integer %q for %s", text, t)
		}
		out.SetUint(u)
	case kindFloat, kindDouble:
		bits := 64
		if k == kindFloat {
			bits = 32
		}
		f, err := strconv.ParseFloat(text, bits)
		if err != nil {
			return out, errors.Wrapf(ErrBadScalar, "float %q", text)
		}
		out.SetFloat(f)
	case kindString:
		out.SetString(text)
	case kindDecimal:
		d, err := decimal.NewFromString(text)
		if err != nil {
			return out, errors.Wrapf(ErrBadScalar, "decimal %q", text)
		}
		out.Set(reflect.ValueOf(d))
	case kindDateTime:
		tm, err := decodeTime(text)
		if err != nil {
			return out, err
		}
		out.Set(reflect.ValueOf(tm))
	case kindPoint:
		x, y, err := parsePair(text, 10)
		if err != nil {
			return out, err
		}
		out.Set(reflect.ValueOf(Point{X: int32(x), Y: int32(y)}))
	case kindVector:
		x, y, err := parseFloatPair(text)
		if err != nil {
			return out, err
		}
		out.Set(reflect.ValueOf(Vector{X: x, Y: y}))
	case kindSimpleArray:
		elems := strings.Fields(text)
		if t.Kind() == reflect.Slice {
			out = reflect.MakeSlice(t, len(elems), len(elems))
		} else if t.Len() != len(elems) {
			return out, errors.Wrapf(ErrBadScalar, "%d element(s) for %s", len(elems), t)
		}
		for i, e := range elems {
			ev, err := parseScalar(e, t.Elem())
			if err != nil {
				return out, err
			}
			out.Index(i).Set(ev)
		}
	default:
		return out, errors.Wrapf(ErrUnsupportedType, "%s is not a simple type", t)
	}
	return out, nil
}

func intBits(k scalarKind) int {
	switch k {
	case kindSByte, kindByte:
		return 8
	case kindShort, kindUShort:
		return 16
	case kindInt, kindUInt, kindChar:
		return 32
	default:
		return 64
	}
}

func parsePair(text string, base int) (int64, int64, error) {
	xs, ys, ok := strings.Cut(text, ",")
	if !ok {
		return 0, 0, errors.Wrapf(ErrBadScalar, "pair %q", text)
	}
	x, err := strconv.ParseInt(xs, base, 32)
	if err != nil {
		return 0, 0, errors.Wrapf(ErrBadScalar, "pair %q", text)
	}
	y, err := strconv.ParseInt(ys, base, 32)
	if err != nil {
		return 0, 0, errors.Wrapf(ErrBadScalar, "pair %q", text)
	}
	return x, y, nil
}

func parseFloatPair(text string) (float32, float32, error) {
	xs, ys, ok := strings.Cut(text, ",")
	if !ok {
		return 0, 0, errors.Wrapf(ErrBadScalar, "pair %q", text)
	}
	x, err := strconv.ParseFloat(xs, 32)
	if err != nil {
		return 0, 0, errors.Wrapf(ErrBadScalar, "pair %q", text)
	}
	y, err := strconv.ParseFloat(ys, 32)
	if err != nil {
		return 0, 0, errors.Wrapf(ErrBadScalar, "pair %q", text)
	}
	return float32(x), float32(y), nil
}
