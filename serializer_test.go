package stext

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type equipment struct {
	Name       string
	Durability int32
	Tags       []string
}

type rarity int32

type character struct {
	Name    string
	Level   int32
	Grade   rarity
	hidden  int64
	Pos     Point
	Speed   Vector
	Born    time.Time
	Wealth  decimal.Decimal
	Initial Char
	Scores  []float64
	Gear    *equipment
	Spare   *equipment
	Extra   any
	Cache   map[string]int64
	Scratch int32 `stext:"-"`
}

func mustSerialize(t *testing.T, s *Serializer, v any) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, s.Serialize(v, &buf))
	return buf.String()
}

func mustDeserialize(t *testing.T, s *Serializer, text string) any {
	t.Helper()
	v, err := s.Deserialize(strings.NewReader(text))
	require.NoError(t, err)
	return v
}

func TestObjectRoundTrip(t *testing.T) {
	s := NewSerializer()
	in := &character{
		Name:    "Scout",
		Level:   12,
		Grade:   rarity(3),
		hidden:  -77,
		Pos:     Point{X: 3, Y: -1},
		Speed:   Vector{X: 0.5, Y: 2},
		Born:    time.Date(1999, 12, 31, 23, 59, 59, 0, time.UTC),
		Wealth:  decimal.RequireFromString("10.50"),
		Initial: Char('S'),
		Scores:  []float64{1.5, 2.25, -3},
		Gear:    &equipment{Name: "long (sharp) sword", Durability: 80, Tags: []string{"melee", "two handed"}},
		Extra:   &equipment{Name: "map", Durability: 1, Tags: []string{}},
		Cache:   map[string]int64{"gold": 320, "silver": 5},
		Scratch: 99,
	}

	text := mustSerialize(t, s, in)
	out, ok := mustDeserialize(t, s, text).(*character)
	require.True(t, ok, "got %T", out)

	assert.Equal(t, in.Name, out.Name)
	assert.Equal(t, in.Level, out.Level)
	assert.Equal(t, in.Grade, out.Grade)
	assert.Equal(t, in.hidden, out.hidden, "unexported fields are structural data")
	assert.Equal(t, in.Pos, out.Pos)
	assert.Equal(t, in.Speed, out.Speed)
	assert.True(t, in.Born.Equal(out.Born))
	assert.True(t, in.Wealth.Equal(out.Wealth))
	assert.Equal(t, in.Initial, out.Initial)
	assert.Equal(t, in.Scores, out.Scores)
	require.NotNil(t, out.Gear)
	assert.Equal(t, *in.Gear, *out.Gear)
	assert.Nil(t, out.Spare)
	extra, ok := out.Extra.(*equipment)
	require.True(t, ok, "interface field keeps its concrete type, got %T", out.Extra)
	assert.Equal(t, in.Extra.(*equipment).Name, extra.Name)
	assert.Equal(t, in.Cache, out.Cache)
	assert.Zero(t, out.Scratch, "transient fields stay out of the stream")
	assert.NotContains(t, text, "Scratch")
}

func TestNullRoundTrip(t *testing.T) {
	s := NewSerializer()
	text := mustSerialize(t, s, nil)
	assert.Equal(t, "(null)", text)
	assert.Nil(t, mustDeserialize(t, s, text))
}

func TestScalarRootRoundTrip(t *testing.T) {
	s := NewSerializer()
	cases := []any{int32(7), "two words", true, []int64{4, 5, 6}}
	for _, c := range cases {
		text := mustSerialize(t, s, c)
		assert.Equal(t, c, mustDeserialize(t, s, text), "%q", text)
	}
}

func TestMultiDimensionalArray(t *testing.T) {
	s := NewSerializer()
	in := [2][3]int32{{1, 2, 3}, {4, 5, 6}}

	text := mustSerialize(t, s, in)
	assert.Contains(t, text, "(@dims 2,3)")
	// Row-major element order, no per-element index annotation.
	assert.Contains(t, text, "(int 1) (int 2) (int 3) (int 4) (int 5) (int 6)")

	out, ok := mustDeserialize(t, s, text).([2][3]int32)
	require.True(t, ok)
	assert.Equal(t, in, out)
}

func TestJaggedSlices(t *testing.T) {
	s := NewSerializer()
	in := [][]int32{{1}, {2, 3}, {}}
	text := mustSerialize(t, s, in)
	out, ok := mustDeserialize(t, s, text).([][]int32)
	require.True(t, ok)
	require.Len(t, out, 3)
	assert.Equal(t, []int32{1}, out[0])
	assert.Equal(t, []int32{2, 3}, out[1])
	assert.Equal(t, 0, len(out[2]))
}

func TestUnknownFieldSkipped(t *testing.T) {
	Register(equipment{})
	s := NewSerializer()
	text := `(github.com/parchex/stext.equipment (@fields` +
		` (Name hatchet) (Bogus (@dims 1) (int 5)) (Durability 3)))`
	out, ok := mustDeserialize(t, s, text).(*equipment)
	require.True(t, ok)
	assert.Equal(t, "hatchet", out.Name)
	assert.Equal(t, int32(3), out.Durability)
}

func TestUnknownTagFails(t *testing.T) {
	s := NewSerializer()
	_, err := s.Deserialize(strings.NewReader("(ghost.pkg.Missing (@fields))"))
	require.ErrorIs(t, err, ErrUnknownTag)
}

func TestTruncatedDocumentFails(t *testing.T) {
	Register(equipment{})
	s := NewSerializer()
	_, err := s.Deserialize(strings.NewReader("(github.com/parchex/stext.equipment (@fields (Name axe)"))
	require.ErrorIs(t, err, ErrMalformed)
}

type audited struct {
	Public int32
	mark   int64  `stext:"-"`
	note   string `stext:"-"`
}

func (a *audited) SerializeBefore(b *Block) error { return b.SetValue("mark", int64(7)) }
func (a *audited) SerializeAfter(b *Block) error  { return b.SetValue("note", "post") }

func (a *audited) DeserializeBefore(b *Block) error { return b.Value("mark", &a.mark) }
func (a *audited) DeserializeAfter(b *Block) error  { return b.Value("note", &a.note) }

func TestCustomBlocks(t *testing.T) {
	s := NewSerializer()
	text := mustSerialize(t, s, &audited{Public: 5})
	assert.Contains(t, text, "(@before (mark 7))")
	assert.Contains(t, text, "(@after (note post))")

	out, ok := mustDeserialize(t, s, text).(*audited)
	require.True(t, ok)
	assert.Equal(t, int32(5), out.Public)
	assert.Equal(t, int64(7), out.mark)
	assert.Equal(t, "post", out.note)
}

type lenient struct {
	Val     int32
	visited int `stext:"-"`
}

func (l *lenient) DeserializeBefore(b *Block) error {
	l.visited++
	var v int64
	if err := b.Value("never written", &v); err == nil {
		return assert.AnError
	}
	return nil
}

func TestAbsentBlockStillVisited(t *testing.T) {
	s := NewSerializer()
	// lenient has no write hook, so the wire carries no @before block; the
	// read hook must still run, with an empty block.
	text := mustSerialize(t, s, &lenient{Val: 3})
	assert.NotContains(t, text, "@before")

	out, ok := mustDeserialize(t, s, text).(*lenient)
	require.True(t, ok)
	assert.Equal(t, int32(3), out.Val)
	assert.Equal(t, 1, out.visited)
}

func TestFactoryConstruction(t *testing.T) {
	r := NewRegistry()
	r.RegisterFactory(&equipment{}, func() any {
		return &equipment{Durability: -1} // sentinel overwritten by the stream
	})
	s := NewSerializer(WithRegistry(r))

	text := mustSerialize(t, s, &equipment{Name: "pick", Durability: 12})
	out, ok := mustDeserialize(t, s, text).(*equipment)
	require.True(t, ok)
	assert.Equal(t, "pick", out.Name)
	assert.Equal(t, int32(12), out.Durability)
}

func TestInterfaceRootNeedsConcreteTag(t *testing.T) {
	s := NewSerializer()
	text := mustSerialize(t, s, &equipment{Name: "rope"})
	assert.True(t, strings.HasPrefix(text, "(github.com/parchex/stext.equipment "))
}

func TestEmbeddedLevelsRoundTrip(t *testing.T) {
	type base struct {
		ID int32
	}
	type derived struct {
		base
		ID int32
	}
	s := NewSerializer()
	in := &derived{base: base{ID: 1}, ID: 2}
	text := mustSerialize(t, s, in)
	assert.Contains(t, text, "(ID 1)")
	assert.Contains(t, text, "(ID2 2)")

	out, ok := mustDeserialize(t, s, text).(*derived)
	require.True(t, ok)
	assert.Equal(t, int32(1), out.base.ID)
	assert.Equal(t, int32(2), out.ID)
}

func TestUnsupportedRoot(t *testing.T) {
	s := NewSerializer()
	err := s.Serialize(func() {}, &bytes.Buffer{})
	assert.ErrorIs(t, err, ErrUnsupportedType)
}
