package stext

import (
	"bytes"
	"io"
	"sync"

	"github.com/cockroachdb/errors"
)

// Kind identifies one event of the pull cursor.
type Kind uint8

const (
	KindEOF Kind = iota
	KindBegin
	KindContent
	KindEnd
)

func (k Kind) String() string {
	switch k {
	case KindBegin:
		return "begin"
	case KindContent:
		return "content"
	case KindEnd:
		return "end"
	default:
		return "eof"
	}
}

// Node is one begin/content/end unit of the textual tree format.
// Text holds the node name for KindBegin and the decoded text for
// KindContent.
type Node struct {
	Kind Kind
	Text string
	Line int
	Col  int
}

const lexerBufferSize = 4096

// tokenPool reuses scratch buffers for token assembly. Names and content are
// usually short, so a small capacity avoids most growth.
var tokenPool = sync.Pool{
	New: func() any {
		return bytes.NewBuffer(make([]byte, 0, 64))
	},
}

// Lexer is a pull-style cursor over the textual tree format. It buffers the
// underlying reader itself and tracks the first error; after an error every
// operation returns that same error.
//
// A Lexer is single-pass and not safe for concurrent use.
type Lexer struct {
	r      io.Reader
	buf    []byte
	pos    int
	n      int
	srcEOF bool

	line  int
	col   int
	stack []string
	peek  *Node
	err   error
}

// NewLexer creates a Lexer reading from r.
func NewLexer(r io.Reader) (*Lexer, error) {
	if r == nil {
		return nil, ErrNilIO
	}
	return &Lexer{
		r:    r,
		buf:  make([]byte, lexerBufferSize),
		line: 1,
		col:  1,
	}, nil
}

// Depth returns the current nesting depth.
func (l *Lexer) Depth() int { return len(l.stack) }

// Current returns the name of the innermost open node, or "" at top level.
func (l *Lexer) Current() string {
	if len(l.stack) == 0 {
		return ""
	}
	return l.stack[len(l.stack)-1]
}

// Err returns the first error encountered, if any.
func (l *Lexer) Err() error { return l.err }

func (l *Lexer) setError(err error) error {
	if l.err == nil && err != nil {
		l.err = err
	}
	return l.err
}

func (l *Lexer) fill() {
	if l.srcEOF || l.err != nil || l.pos < l.n {
		return
	}
	l.pos, l.n = 0, 0
	for {
		n, err := l.r.Read(l.buf)
		l.n = n
		if err == io.EOF {
			l.srcEOF = true
			return
		}
		if err != nil {
			l.setError(err)
			return
		}
		if n > 0 {
			return
		}
	}
}

// peekByte reports the next byte without consuming it.
func (l *Lexer) peekByte() (byte, bool) {
	l.fill()
	if l.err != nil || l.pos >= l.n {
		return 0, false
	}
	return l.buf[l.pos], true
}

// readByte consumes one byte and advances the line/column trackers.
func (l *Lexer) readByte() (byte, bool) {
	c, ok := l.peekByte()
	if !ok {
		return 0, false
	}
	l.pos++
	if c == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return c, true
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func (l *Lexer) skipSpace() {
	for {
		c, ok := l.peekByte()
		if !ok || !isSpace(c) {
			return
		}
		l.readByte()
	}
}

// Next consumes and returns the next node event.
func (l *Lexer) Next() (Node, error) {
	if l.err != nil {
		return Node{Kind: KindEOF, Line: l.line, Col: l.col}, l.err
	}
	if l.peek != nil {
		n := *l.peek
		l.peek = nil
		return n, nil
	}
	return l.scan()
}

// Peek returns the next node event without consuming it.
func (l *Lexer) Peek() (Node, error) {
	if l.err != nil {
		return Node{Kind: KindEOF, Line: l.line, Col: l.col}, l.err
	}
	if l.peek == nil {
		n, err := l.scan()
		if err != nil {
			return n, err
		}
		l.peek = &n
	}
	return *l.peek, nil
}

func (l *Lexer) scan() (Node, error) {
	l.skipSpace()
	line, col := l.line, l.col
	c, ok := l.peekByte()
	if !ok {
		if l.err != nil {
			return Node{Kind: KindEOF, Line: line, Col: col}, l.err
		}
		if len(l.stack) > 0 {
			err := errors.Wrapf(ErrMalformed,
				"end of stream with %d node(s) open (innermost %q) at line %d col %d",
				len(l.stack), l.stack[len(l.stack)-1], line, col)
			return Node{Kind: KindEOF, Line: line, Col: col}, l.setError(err)
		}
		return Node{Kind: KindEOF, Line: line, Col: col}, nil
	}

	switch c {
	case '(':
		l.readByte()
		name, err := l.scanName()
		if err != nil {
			return Node{Kind: KindEOF, Line: line, Col: col}, err
		}
		if name == "" {
			err := errors.Wrapf(ErrMalformed, "empty node name at line %d col %d", line, col)
			return Node{Kind: KindEOF, Line: line, Col: col}, l.setError(err)
		}
		l.stack = append(l.stack, name)
		return Node{Kind: KindBegin, Text: name, Line: line, Col: col}, nil

	case ')':
		if len(l.stack) == 0 {
			err := errors.Wrapf(ErrMalformed, "closing parenthesis with no open node at line %d col %d", line, col)
			return Node{Kind: KindEOF, Line: line, Col: col}, l.setError(err)
		}
		l.readByte()
		l.stack = l.stack[:len(l.stack)-1]
		return Node{Kind: KindEnd, Line: line, Col: col}, nil

	default:
		if len(l.stack) == 0 {
			err := errors.Wrapf(ErrMalformed, "content outside any open node at line %d col %d", line, col)
			return Node{Kind: KindEOF, Line: line, Col: col}, l.setError(err)
		}
		return l.scanContent(line, col)
	}
}

// scanName reads a node name: bytes up to an unescaped delimiter or
// whitespace, with backslash escaping any byte.
func (l *Lexer) scanName() (string, error) {
	b := tokenPool.Get().(*bytes.Buffer)
	b.Reset()
	defer tokenPool.Put(b)

	for {
		c, ok := l.peekByte()
		if !ok {
			break
		}
		if c == '\\' {
			l.readByte()
			e, ok := l.readByte()
			if !ok {
				err := errors.Wrapf(ErrMalformed, "dangling escape at line %d col %d", l.line, l.col)
				return "", l.setError(err)
			}
			b.WriteByte(e)
			continue
		}
		if c == '(' || c == ')' || isSpace(c) {
			break
		}
		l.readByte()
		b.WriteByte(c)
	}
	return b.String(), l.err
}

// scanContent reads a content token: bytes up to an unescaped parenthesis.
// Unescaped trailing whitespace belongs to the surrounding structure, not to
// the content, and is dropped; escaped whitespace is kept verbatim.
func (l *Lexer) scanContent(line, col int) (Node, error) {
	b := tokenPool.Get().(*bytes.Buffer)
	b.Reset()
	defer tokenPool.Put(b)

	hard := 0 // length of b up to the last escaped or non-whitespace byte
	for {
		c, ok := l.peekByte()
		if !ok || c == '(' || c == ')' {
			break
		}
		if c == '\\' {
			l.readByte()
			e, ok := l.readByte()
			if !ok {
				err := errors.Wrapf(ErrMalformed, "dangling escape at line %d col %d", l.line, l.col)
				return Node{Kind: KindEOF, Line: line, Col: col}, l.setError(err)
			}
			b.WriteByte(e)
			hard = b.Len()
			continue
		}
		l.readByte()
		b.WriteByte(c)
		if !isSpace(c) {
			hard = b.Len()
		}
	}
	if l.err != nil {
		return Node{Kind: KindEOF, Line: line, Col: col}, l.err
	}
	return Node{Kind: KindContent, Text: string(b.Bytes()[:hard]), Line: line, Col: col}, nil
}

// Begin consumes the next event, which must open a node, and returns its name.
func (l *Lexer) Begin() (string, error) {
	n, err := l.Next()
	if err != nil {
		return "", err
	}
	if n.Kind != KindBegin {
		return "", errors.Wrapf(ErrUnexpected, "want begin, got %s at line %d col %d", n.Kind, n.Line, n.Col)
	}
	return n.Text, nil
}

// BeginNamed consumes a begin event and asserts its name.
func (l *Lexer) BeginNamed(name string) error {
	got, err := l.Begin()
	if err != nil {
		return err
	}
	if got != name {
		return errors.Wrapf(ErrUnexpected, "want node %q, got %q", name, got)
	}
	return nil
}

// Content consumes the next event, which must be node content.
func (l *Lexer) Content() (string, error) {
	n, err := l.Next()
	if err != nil {
		return "", err
	}
	if n.Kind != KindContent {
		return "", errors.Wrapf(ErrUnexpected, "want content, got %s at line %d col %d", n.Kind, n.Line, n.Col)
	}
	return n.Text, nil
}

// ContentOrEmpty consumes a content event if one is next, else returns "".
func (l *Lexer) ContentOrEmpty() (string, error) {
	p, err := l.Peek()
	if err != nil {
		return "", err
	}
	if p.Kind != KindContent {
		return "", nil
	}
	n, err := l.Next()
	return n.Text, err
}

// End consumes the next event, which must close the innermost node.
func (l *Lexer) End() error {
	n, err := l.Next()
	if err != nil {
		return err
	}
	if n.Kind != KindEnd {
		return errors.Wrapf(ErrUnexpected, "want end, got %s at line %d col %d", n.Kind, n.Line, n.Col)
	}
	return nil
}

// Element reads a whole leaf node: begin, optional content, end. An empty
// name matches any node. The content is "" when the node carries none.
func (l *Lexer) Element(name string) (string, error) {
	if name == "" {
		if _, err := l.Begin(); err != nil {
			return "", err
		}
	} else if err := l.BeginNamed(name); err != nil {
		return "", err
	}
	text, err := l.ContentOrEmpty()
	if err != nil {
		return "", err
	}
	return text, l.End()
}

// Skip consumes the next node and all of its descendants without
// materializing them. Content events are dropped as-is.
func (l *Lexer) Skip() error {
	n, err := l.Next()
	if err != nil {
		return err
	}
	switch n.Kind {
	case KindContent:
		return nil
	case KindBegin:
	default:
		return errors.Wrapf(ErrUnexpected, "want a node to skip, got %s at line %d col %d", n.Kind, n.Line, n.Col)
	}
	depth := 1
	for depth > 0 {
		n, err := l.Next()
		if err != nil {
			return err
		}
		switch n.Kind {
		case KindBegin:
			depth++
		case KindEnd:
			depth--
		}
	}
	return nil
}
