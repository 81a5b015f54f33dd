package runtime

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/bfbridge"
	"github.com/wippyai/bfbridge/errors"
)

// SessionOption configures NewSession.
type SessionOption func(*sessionOptions)

type sessionOptions struct {
	bufferSize int
}

// WithBufferSize sets the communication buffer capacity in bytes. It bounds
// the largest region OpenBytes can return.
func WithBufferSize(n int) SessionOption {
	return func(o *sessionOptions) { o.bufferSize = n }
}

// Session is one decoder instance bound to an attached thread. It holds at
// most one open file.
//
// Byte slices returned by a Session alias its communication buffer and are
// valid only until the next call on the Session. Copy them (bytes.Clone) to
// keep them longer.
type Session struct {
	noCopy   noCopy
	thread   *Thread
	buf      []byte
	instance bfbridge.Handle
	opened   bool
	closed   atomic.Bool
}

// NewSession creates a decoder instance on th. It must be called on th's
// thread.
func NewSession(th *Thread, opts ...SessionOption) (*Session, error) {
	if th == nil {
		return nil, errors.InvalidInput(errors.PhaseSession, "thread is nil")
	}
	if th.closed.Load() {
		return nil, errors.UseAfterClose(errors.PhaseSession, "thread")
	}
	if err := th.checkOwner(errors.PhaseSession, "thread"); err != nil {
		return nil, err
	}

	rt := th.rt
	o := sessionOptions{bufferSize: rt.cfg.bufferSize()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.bufferSize <= 0 {
		return nil, errors.New(errors.PhaseSession, errors.KindInvalidInput).
			Detail("buffer size must be positive, got %d", o.bufferSize).
			Build()
	}

	buf := rt.native.AllocBuffer(o.bufferSize)
	if len(buf) < o.bufferSize {
		rt.native.FreeBuffer(buf)
		return nil, errors.New(errors.PhaseSession, errors.KindNativeSession).
			Op("alloc_buffer").
			Detail("could not allocate %d byte communication buffer", o.bufferSize).
			Build()
	}

	inst, desc := rt.native.MakeInstance(th.native, buf)
	if err := translate(desc, errors.PhaseSession, errors.KindNativeSession, "make_instance"); err != nil {
		rt.native.FreeBuffer(buf)
		rt.log.Warn("session create failed", zap.Int("tid", th.ownerThread), zap.Error(err))
		return nil, err
	}

	th.sessions.Add(1)
	rt.hooks.SessionOpened()
	return &Session{
		thread:   th,
		buf:      buf,
		instance: inst,
	}, nil
}

// Close frees the decoder instance and its buffer. Any open file is
// released with it.
func (s *Session) Close() error {
	if err := s.thread.checkOwner(errors.PhaseSession, "session"); err != nil {
		return err
	}
	if s.closed.Load() {
		return errors.UseAfterClose(errors.PhaseSession, "session")
	}
	s.closed.Store(true)

	rt := s.thread.rt
	rt.native.FreeInstance(s.instance, s.thread.native)
	rt.native.FreeBuffer(s.buf)
	s.buf = nil
	s.opened = false

	s.thread.sessions.Add(-1)
	rt.hooks.SessionClosed()
	return nil
}

// Thread returns the attachment the session was created on.
func (s *Session) Thread() *Thread {
	return s.thread
}

// BufferSize returns the communication buffer capacity.
func (s *Session) BufferSize() int {
	return len(s.buf)
}

// IsOpen reports whether a file was opened through this session and not
// closed since.
func (s *Session) IsOpen() bool {
	return s.opened
}

// guard runs before every native call.
func (s *Session) guard(fn bfbridge.Func, needOpen bool) error {
	if err := s.thread.checkOwner(errors.PhaseDecode, "session"); err != nil {
		return err
	}
	if s.closed.Load() {
		return errors.New(errors.PhaseDecode, errors.KindMisuse).
			Op(fn.String()).
			Detail("session already closed").
			Build()
	}
	if needOpen && !s.opened {
		return errors.NotOpened(fn.String())
	}
	return nil
}
