package stext

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gadget struct {
	Serial int64
	Label  string
}

func TestTagResolution(t *testing.T) {
	r := NewRegistry()

	t.Run("ScalarTagsAreFixed", func(t *testing.T) {
		for kind, tag := range kindTags {
			typ, err := r.typeFor(tag)
			require.NoError(t, err, tag)
			assert.Equal(t, kind, classify(typ), tag)

			back, err := r.tagFor(typ)
			require.NoError(t, err)
			assert.Equal(t, tag, back)
		}
	})

	t.Run("SimpleArraySuffix", func(t *testing.T) {
		tag, err := r.tagFor(reflect.TypeOf([]int32{}))
		require.NoError(t, err)
		assert.Equal(t, "int[]", tag)

		typ, err := r.typeFor("double[]")
		require.NoError(t, err)
		assert.Equal(t, reflect.TypeOf([]float64{}), typ)
	})

	t.Run("RegisteredTypeByName", func(t *testing.T) {
		r.Register(&gadget{})
		typ, err := r.typeFor("github.com/parchex/stext.gadget")
		require.NoError(t, err)
		assert.Equal(t, reflect.TypeOf(gadget{}), typ)
	})

	t.Run("TagForComplexSelfRegisters", func(t *testing.T) {
		r := NewRegistry()
		tag, err := r.tagFor(reflect.TypeOf(map[string]int64{}))
		require.NoError(t, err)
		typ, err := r.typeFor(tag)
		require.NoError(t, err)
		assert.Equal(t, reflect.TypeOf(map[string]int64{}), typ)
	})

	t.Run("UnknownTagIsHardError", func(t *testing.T) {
		_, err := r.typeFor("no.such.Type")
		require.ErrorIs(t, err, ErrUnknownTag)
		assert.Contains(t, err.Error(), "no.such.Type")
	})

	t.Run("ReferenceMarkerTag", func(t *testing.T) {
		typ, err := r.typeFor(tagRef)
		require.NoError(t, err)
		assert.Equal(t, typeReference, typ)

		tag, err := r.tagFor(typeReference)
		require.NoError(t, err)
		assert.Equal(t, tagRef, tag)
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		_, err := r.tagFor(reflect.TypeOf(func() {}))
		assert.ErrorIs(t, err, ErrUnsupportedType)
	})
}

func TestRegisterFactory(t *testing.T) {
	r := NewRegistry()
	built := 0
	r.RegisterFactory(&gadget{}, func() any {
		built++
		return &gadget{Label: "prebuilt"}
	})

	fn, ok := r.factoryFor(reflect.TypeOf(gadget{}))
	require.True(t, ok)
	g := fn().(*gadget)
	assert.Equal(t, "prebuilt", g.Label)
	assert.Equal(t, 1, built)
}

func TestFieldLayout(t *testing.T) {
	type inner struct {
		ID   int32
		note string
	}
	type payload struct {
		inner
		ID    int32 // collides with the embedded level's ID
		Skip  func()
		Drop  string `stext:"-"`
		Named string `stext:"alias"`
	}

	l, err := layoutOf(reflect.TypeOf(payload{}))
	require.NoError(t, err)

	names := make([]string, len(l.fields))
	for i, f := range l.fields {
		names[i] = f.name
	}
	// Embedded level first, collision suffixed with 2, transient and
	// func-typed fields dropped, tag override applied.
	assert.Equal(t, []string{"ID", "note", "ID2", "alias"}, names)
}

func TestLayoutSkipsReferable(t *testing.T) {
	type tracked struct {
		Referable
		Name string
	}
	l, err := layoutOf(reflect.TypeOf(tracked{}))
	require.NoError(t, err)
	require.Len(t, l.fields, 1)
	assert.Equal(t, "Name", l.fields[0].name)
}
