package stext

import (
	"bufio"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
)

// Writer emits the textual tree format. It tracks the first error that
// occurs; after an error, all subsequent operations become no-ops and the
// error is reported by Err/Result.
//
// A Writer is single-pass and not safe for concurrent use.
type Writer struct {
	w     *bufio.Writer
	count int64
	depth int
	sep   bool // next token needs a separating space
	err   error
}

// NewWriter creates a Writer emitting to w.
func NewWriter(w io.Writer) (*Writer, error) {
	if w == nil {
		return nil, ErrNilIO
	}
	bw, ok := w.(*bufio.Writer)
	if !ok {
		bw = bufio.NewWriter(w)
	}
	return &Writer{w: bw}, nil
}

// Depth returns the number of currently open nodes.
func (w *Writer) Depth() int { return w.depth }

// Count returns the total bytes written so far.
func (w *Writer) Count() int64 { return w.count }

// Err returns the first error encountered, if any.
func (w *Writer) Err() error { return w.err }

// setError records the first non-nil error. This preserves the root cause of
// a failure chain instead of a later, less relevant error.
func (w *Writer) setError(err error) {
	if w.err == nil && err != nil {
		w.err = err
	}
}

func (w *Writer) writeByte(c byte) {
	if w.err != nil {
		return
	}
	if err := w.w.WriteByte(c); err != nil {
		w.setError(err)
		return
	}
	w.count++
}

func (w *Writer) writeString(s string) {
	if w.err != nil || s == "" {
		return
	}
	n, err := w.w.WriteString(s)
	w.count += int64(n)
	w.setError(err)
}

// Begin opens a node with the given name.
func (w *Writer) Begin(name string) {
	if w.err != nil {
		return
	}
	if name == "" {
		w.setError(errors.Wrap(ErrMalformed, "empty node name"))
		return
	}
	if w.sep {
		w.writeByte(' ')
	}
	w.writeByte('(')
	w.writeString(escapeName(name))
	w.depth++
	w.sep = true
}

// Content writes the content of the innermost open node. The name/content
// separator is inserted here, exactly once per token.
func (w *Writer) Content(s string) {
	if w.err != nil {
		return
	}
	if w.depth == 0 {
		w.setError(errors.Wrap(ErrMalformed, "content outside any open node"))
		return
	}
	w.writeByte(' ')
	w.writeString(escapeContent(s))
	w.sep = true
}

// End closes the innermost open node.
func (w *Writer) End() {
	if w.err != nil {
		return
	}
	if w.depth == 0 {
		w.setError(errors.Wrap(ErrMalformed, "end with no open node"))
		return
	}
	w.writeByte(')')
	w.depth--
	w.sep = true
}

// Element writes a whole leaf node: begin, content (omitted when empty), end.
func (w *Writer) Element(name, content string) {
	w.Begin(name)
	if content != "" {
		w.Content(content)
	}
	w.End()
}

// Flush writes any buffered output to the underlying io.Writer.
func (w *Writer) Flush() error {
	if w.err != nil {
		return w.err
	}
	w.setError(w.w.Flush())
	return w.err
}

// Result flushes and returns the final byte count and error state. An
// unbalanced node stack at this point is a structural error.
func (w *Writer) Result() (int64, error) {
	if w.err == nil && w.depth != 0 {
		w.setError(errors.Wrapf(ErrMalformed, "%d node(s) still open", w.depth))
	}
	w.Flush()
	return w.count, w.err
}

// escapeName escapes parentheses, backslashes and every whitespace byte.
func escapeName(s string) string {
	if !needsEscape(s, true) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 2)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '(' || c == ')' || c == '\\' || isSpace(c) {
			b.WriteByte('\\')
		}
		b.WriteByte(c)
	}
	return b.String()
}

// escapeContent escapes parentheses and backslashes anywhere, and whitespace
// only in the leading and trailing runs; interior whitespace is verbatim.
func escapeContent(s string) string {
	if !needsEscape(s, false) {
		return s
	}
	lead := 0
	for lead < len(s) && isSpace(s[lead]) {
		lead++
	}
	trail := len(s)
	for trail > lead && isSpace(s[trail-1]) {
		trail--
	}
	var b strings.Builder
	b.Grow(len(s) + 2)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '(' || c == ')' || c == '\\' || (isSpace(c) && (i < lead || i >= trail)) {
			b.WriteByte('\\')
		}
		b.WriteByte(c)
	}
	return b.String()
}

func needsEscape(s string, name bool) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '(' || c == ')' || c == '\\' {
			return true
		}
		if isSpace(c) && (name || i == 0 || i == len(s)-1) {
			return true
		}
	}
	return false
}
