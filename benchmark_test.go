package stext

import (
	"bytes"
	"strings"
	"testing"
)

func BenchmarkSerialize(b *testing.B) {
	s := NewSerializer()
	v := &character{
		Name:   "Scout",
		Level:  12,
		Pos:    Point{X: 3, Y: -1},
		Scores: []float64{1.5, 2.25, -3},
		Gear:   &equipment{Name: "sword", Durability: 80},
	}
	var buf bytes.Buffer
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		buf.Reset()
		if err := s.Serialize(v, &buf); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkDeserialize(b *testing.B) {
	s := NewSerializer()
	v := &character{
		Name:   "Scout",
		Level:  12,
		Pos:    Point{X: 3, Y: -1},
		Scores: []float64{1.5, 2.25, -3},
		Gear:   &equipment{Name: "sword", Durability: 80},
	}
	var buf bytes.Buffer
	if err := s.Serialize(v, &buf); err != nil {
		b.Fatal(err)
	}
	text := buf.String()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.Deserialize(strings.NewReader(text)); err != nil {
			b.Fatal(err)
		}
	}
}
