package stext

import (
	"io"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// Serializer is the top-level serialize/deserialize surface. It owns one
// identity pool; any sequence of calls that shares or cycles references
// across values must be bracketed by BeginBatch/EndBatch so the pool starts
// and ends empty.
//
// A Serializer is not safe for concurrent use: the pool and the batch flag
// are shared, unguarded state.
type Serializer struct {
	reg  *Registry
	pool *Pool
	log  *zap.Logger
	open bool
}

// Option configures a Serializer.
type Option func(*Serializer)

// WithRegistry uses a dedicated registry instead of the package default.
func WithRegistry(r *Registry) Option {
	return func(s *Serializer) { s.reg = r }
}

// WithLogger installs a logger for batch boundaries and failure paths. The
// default is a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Serializer) { s.log = l }
}

// NewSerializer creates a Serializer with an empty pool.
func NewSerializer(opts ...Option) *Serializer {
	s := &Serializer{
		reg:  defaultRegistry,
		pool: NewPool(),
		log:  zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// BeginBatch opens a batch: the pool is cleared so identity resolution
// starts fresh. Batches do not nest.
func (s *Serializer) BeginBatch() error {
	if s.open {
		return errors.Wrap(ErrBatchState, "batch already open")
	}
	s.pool.Reset()
	s.open = true
	s.log.Debug("batch begin")
	return nil
}

// EndBatch closes the open batch and clears the pool. Ending without a
// matching BeginBatch is a contract violation.
func (s *Serializer) EndBatch() error {
	if !s.open {
		return errors.Wrap(ErrBatchState, "no open batch")
	}
	entries := s.pool.Len()
	s.pool.Reset()
	s.open = false
	s.log.Debug("batch end", zap.Int("identities", entries))
	return nil
}

// Serialize writes v, which may be nil, to w as one textual tree.
func (s *Serializer) Serialize(v any, w io.Writer) error {
	enc, err := NewEncoder(w, s.pool, s.reg)
	if err != nil {
		return err
	}
	if err := enc.Encode(v); err != nil {
		s.log.Debug("serialize failed", zap.Error(err))
		return err
	}
	return nil
}

// Deserialize reads one value from r. Object values come back as pointers
// to their concrete type; null comes back as nil.
func (s *Serializer) Deserialize(r io.Reader) (any, error) {
	dec, err := NewDecoder(r, s.pool, s.reg)
	if err != nil {
		return nil, err
	}
	v, err := dec.Decode()
	if err != nil {
		s.log.Debug("deserialize failed", zap.Error(err))
		return nil, err
	}
	return v, nil
}
