package stext

import "github.com/cockroachdb/errors"

var (
	// ErrNilIO indicates that NewLexer/NewWriter was called with a nil
	// io.Reader/io.Writer.
	ErrNilIO = errors.New("stext: NewLexer/NewWriter called with a nil io.Reader/io.Writer")

	// ErrMalformed indicates a structural problem in the wire text: nodes
	// left open at end of stream, a closing parenthesis with no open node,
	// or content outside any open node.
	ErrMalformed = errors.New("stext: malformed document structure")

	// ErrUnexpected indicates an assertion read found a different node kind
	// or name than the caller demanded. This is a contract violation in the
	// reading code, not a property of the input.
	ErrUnexpected = errors.New("stext: unexpected node")

	// ErrUnknownTag indicates a wire tag that resolves to no scalar kind and
	// no registered type.
	ErrUnknownTag = errors.New("stext: unknown type tag")

	// ErrBadScalar indicates scalar text that does not parse under the
	// grammar of its kind.
	ErrBadScalar = errors.New("stext: malformed scalar text")

	// ErrUnsupportedType indicates a value or field type outside the
	// supported scalar/array/map/object classification.
	ErrUnsupportedType = errors.New("stext: unsupported type")

	// ErrNoConstructor indicates that no construction path exists for a
	// decode target, typically an interface node whose concrete type was
	// never registered.
	ErrNoConstructor = errors.New("stext: no construction path for type")

	// ErrBatchState indicates BeginBatch while a batch is open, or EndBatch
	// with no open batch.
	ErrBatchState = errors.New("stext: batch begin/end mismatch")

	// ErrDanglingRef indicates a reference node whose identity was never
	// registered in the current batch.
	ErrDanglingRef = errors.New("stext: reference to unregistered identity")
)
