// Package stext serializes arbitrary object graphs to a textual,
// tree-structured wire format and reconstructs equivalent graphs from that
// text. The walk is reflection-driven: user-defined types need no per-type
// serialize code.
//
// # Wire Format
//
// A node is `(name content? child…)`. Names and content escape `(`, `)` and
// `\` with a backslash; names additionally escape whitespace, and content
// escapes its leading and trailing whitespace byte-by-byte so it
// round-trips exactly. Simple values (numbers, booleans, chars, strings,
// enums, date-times, decimals, small 2D points/vectors, and one-dimensional
// arrays thereof) sit inline as a single content token; everything else
// nests.
//
//	(pkgpath.Actor (@fields (Name Scout) (HP 40) (Pos 3,-1)))
//
// An object node may carry a proxy flag, custom before/after-fields blocks,
// and a fields block; block names start with '@' so they never collide with
// field names.
//
// # Shared References and Cycles
//
// Types that embed Referable participate in identity tracking: within one
// batch, the second serialization of an instance collapses into a reference
// node, and deserialization resolves it back to the one shared instance,
// cycles included. Bracket every independent sequence of calls with
// BeginBatch/EndBatch.
//
//	s := stext.NewSerializer()
//	s.BeginBatch()
//	err := s.Serialize(root, &buf)
//	s.EndBatch()
//
// Concrete types that appear behind interfaces, and any type decoded from a
// non-scalar tag, must be made resolvable with Register.
package stext
