package exchange

import (
	"io"
	"sync/atomic"
)

type flusher interface {
	Flush() error
}

// failure holds the first error a body wrapper completed with. Every later
// operation returns it without touching the delegate.
type failure struct {
	err atomic.Pointer[error]
}

func (f *failure) record(err error) {
	if err != nil {
		f.err.CompareAndSwap(nil, &err)
	}
}

func (f *failure) load() error {
	if p := f.err.Load(); p != nil {
		return *p
	}
	return nil
}

// requestBodySink counts the bytes written to the request body and checks
// them against the declared length.
type requestBodySink struct {
	e             *Exchange
	delegate      io.WriteCloser
	contentLength int64

	bytesReceived atomic.Int64
	closed        atomic.Bool
	completed     atomic.Bool
	failure
}

func newRequestBodySink(e *Exchange, delegate io.WriteCloser, contentLength int64) *requestBodySink {
	return &requestBodySink{e: e, delegate: delegate, contentLength: contentLength}
}

func (s *requestBodySink) Write(p []byte) (int, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	if err := s.load(); err != nil {
		return 0, err
	}
	received := s.bytesReceived.Load()
	if s.contentLength != -1 && received+int64(len(p)) > s.contentLength {
		return 0, s.complete(framingViolation(s.contentLength, received+int64(len(p))))
	}
	n, err := s.delegate.Write(p)
	s.bytesReceived.Add(int64(n))
	if err != nil {
		return n, s.complete(s.e.wrap("write request body", err))
	}
	return n, nil
}

func (s *requestBodySink) Flush() error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := s.load(); err != nil {
		return err
	}
	if f, ok := s.delegate.(flusher); ok {
		if err := f.Flush(); err != nil {
			return s.complete(s.e.wrap("flush request body", err))
		}
	}
	return nil
}

// Close reports completion. A body shorter than declared fails with
// [ErrPrematureClose], and a failed body keeps returning its failure; in
// both cases the delegate is left unterminated.
func (s *requestBodySink) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return s.load()
	}
	if err := s.load(); err != nil {
		return err
	}
	if received := s.bytesReceived.Load(); s.contentLength != -1 && received != s.contentLength {
		return s.complete(prematureClose(s.contentLength, received))
	}
	if err := s.delegate.Close(); err != nil {
		return s.complete(s.e.wrap("close request body", err))
	}
	return s.complete(nil)
}

func (s *requestBodySink) complete(err error) error {
	if s.completed.CompareAndSwap(false, true) {
		err = s.e.BodyComplete(s.bytesReceived.Load(), true, false, err)
	}
	s.record(err)
	return err
}

// responseBodySource counts the bytes read from the response body. The
// body start event is held back until a byte arrives or the body is closed
// unread.
type responseBodySource struct {
	e             *Exchange
	delegate      io.ReadCloser
	contentLength int64

	bytesReceived atomic.Int64
	startPending  atomic.Bool
	closed        atomic.Bool
	completed     atomic.Bool
	failure
}

func newResponseBodySource(e *Exchange, delegate io.ReadCloser, contentLength int64) *responseBodySource {
	s := &responseBodySource{e: e, delegate: delegate, contentLength: contentLength}
	s.startPending.Store(true)
	if contentLength == 0 {
		s.complete(nil)
	}
	return s
}

func (s *responseBodySource) Read(p []byte) (int, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	if err := s.load(); err != nil {
		return 0, err
	}
	n, err := s.delegate.Read(p)
	if (n > 0 || err == io.EOF) && s.startPending.CompareAndSwap(true, false) {
		s.e.listener.ResponseBodyStart(s.e.call)
	}
	if n > 0 {
		received := s.bytesReceived.Load() + int64(n)
		if s.contentLength != -1 && received > s.contentLength {
			return 0, s.complete(framingViolation(s.contentLength, received))
		}
		s.bytesReceived.Store(received)
	}
	switch {
	case err == io.EOF:
		if cerr := s.complete(nil); cerr != nil {
			return n, cerr
		}
		return n, io.EOF
	case err != nil:
		return n, s.complete(s.e.wrap("read response body", err))
	}
	if s.e.codec.IsResponseComplete() || s.bytesReceived.Load() == s.contentLength {
		if cerr := s.complete(nil); cerr != nil {
			return n, cerr
		}
	}
	return n, nil
}

// Close releases the delegate. A source that already failed reports
// nothing more.
func (s *responseBodySource) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if s.load() != nil {
		s.delegate.Close()
		return nil
	}
	if err := s.delegate.Close(); err != nil {
		return s.complete(s.e.wrap("close response body", err))
	}
	return s.complete(nil)
}

func (s *responseBodySource) complete(err error) error {
	if s.completed.CompareAndSwap(false, true) {
		if err == nil && s.startPending.CompareAndSwap(true, false) {
			s.e.listener.ResponseBodyStart(s.e.call)
		}
		err = s.e.BodyComplete(s.bytesReceived.Load(), false, true, err)
	}
	s.record(err)
	return err
}
