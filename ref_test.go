package stext

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type buddy struct {
	Referable
	Name  string
	Other *buddy
}

func TestCycleRoundTrip(t *testing.T) {
	s := NewSerializer()

	a := &buddy{Name: "a"}
	b := &buddy{Name: "b"}
	a.Other = b
	b.Other = a

	require.NoError(t, s.BeginBatch())
	text := mustSerialize(t, s, a)
	require.NoError(t, s.EndBatch())

	// The back edge collapses to a reference instead of recursing forever.
	assert.Equal(t, 1, strings.Count(text, "(ref "))

	require.NoError(t, s.BeginBatch())
	got, ok := mustDeserialize(t, s, text).(*buddy)
	require.NoError(t, s.EndBatch())
	require.True(t, ok)

	assert.Equal(t, "a", got.Name)
	require.NotNil(t, got.Other)
	assert.Equal(t, "b", got.Other.Name)
	assert.Same(t, got, got.Other.Other)
}

func TestSharedReferenceCollapse(t *testing.T) {
	s := NewSerializer()

	shared := &buddy{Name: "only"}
	in := []*buddy{shared, shared, shared}

	text := mustSerialize(t, s, in)
	assert.Equal(t, 1, strings.Count(text, "(github.com/parchex/stext.buddy "))
	assert.Equal(t, 2, strings.Count(text, "(ref "))

	out, ok := mustDeserialize(t, s, text).([]*buddy)
	require.True(t, ok)
	require.Len(t, out, 3)
	assert.Same(t, out[0], out[1])
	assert.Same(t, out[0], out[2])
	assert.Equal(t, "only", out[0].Name)
}

func TestBatchSeparatesDocuments(t *testing.T) {
	s := NewSerializer()
	a := &buddy{Name: "a"}

	require.NoError(t, s.BeginBatch())
	first := mustSerialize(t, s, a)
	second := mustSerialize(t, s, a)
	require.NoError(t, s.EndBatch())

	// Within one batch the second document is a bare reference.
	assert.NotContains(t, first, "(ref ")
	assert.True(t, strings.HasPrefix(second, "(ref "), "got %q", second)

	require.NoError(t, s.BeginBatch())
	third := mustSerialize(t, s, a)
	require.NoError(t, s.EndBatch())

	// A fresh batch starts with an empty pool, so the object is written in full.
	assert.NotContains(t, third, "(ref ")

	require.NoError(t, s.BeginBatch())
	x, ok := mustDeserialize(t, s, first).(*buddy)
	require.True(t, ok)
	y, ok := mustDeserialize(t, s, second).(*buddy)
	require.True(t, ok)
	require.NoError(t, s.EndBatch())
	assert.Same(t, x, y)
}

func TestBatchStateErrors(t *testing.T) {
	s := NewSerializer()

	require.NoError(t, s.BeginBatch())
	assert.ErrorIs(t, s.BeginBatch(), ErrBatchState)
	require.NoError(t, s.EndBatch())
	assert.ErrorIs(t, s.EndBatch(), ErrBatchState)
}

func TestDanglingReference(t *testing.T) {
	s := NewSerializer()
	_, err := s.Deserialize(strings.NewReader("(ref (@proxy true) (@before (id 424242)))"))
	require.ErrorIs(t, err, ErrDanglingRef)
}

func TestFreshIdentityOnDecode(t *testing.T) {
	s := NewSerializer()
	a := &buddy{Name: "a"}

	text := mustSerialize(t, s, a)
	got, ok := mustDeserialize(t, s, text).(*buddy)
	require.True(t, ok)

	assert.NotZero(t, got.Identity())
	assert.NotEqual(t, a.Identity(), got.Identity(), "wire ids are pool keys, not identities")
}

func TestIdentityIsStable(t *testing.T) {
	a := &buddy{}
	first := a.Identity()
	assert.NotZero(t, first)
	assert.Equal(t, first, a.Identity())

	b := &buddy{}
	assert.NotEqual(t, first, b.Identity())
}

func TestPoolReset(t *testing.T) {
	p := NewPool()
	a := &buddy{Name: "a"}
	p.register(a.Identity(), a)
	assert.Equal(t, 1, p.Len())
	assert.True(t, p.seen(a.Identity()))

	p.Reset()
	assert.Equal(t, 0, p.Len())
	assert.False(t, p.seen(a.Identity()))
}
