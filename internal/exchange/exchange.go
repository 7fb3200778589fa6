// package exchange carries a single request/response pair over a
// connection handed out by the pool.
//
// the exchange itself never starts goroutines: the owning call drives it
// through header write, body write, header read and body read, and the
// byte-counting body wrappers report back here when they finish. in duplex
// mode the request sink and the response source are used from different
// goroutines, so each of them guards its own completion.
package exchange

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/frankli0324/go-http/internal/model"
)

// Exchange is one attempt at one request over one connection.
type Exchange struct {
	call     Call
	listener Listener
	finder   Finder
	codec    Codec

	isDuplex   atomic.Bool
	hasFailure atomic.Bool
	canceled   atomic.Bool
}

func New(call Call, listener Listener, finder Finder, codec Codec) *Exchange {
	if listener == nil {
		listener = NopListener{}
	}
	return &Exchange{call: call, listener: listener, finder: finder, codec: codec}
}

func (e *Exchange) Connection() Carrier { return e.codec.Carrier() }
func (e *Exchange) IsDuplex() bool      { return e.isDuplex.Load() }

// HasFailure stays true once any I/O on the exchange failed.
func (e *Exchange) HasFailure() bool { return e.hasFailure.Load() }

// IsCoalescedConnection reports whether the connection was established
// for a different host than the one the call targets.
func (e *Exchange) IsCoalescedConnection() bool {
	if e.finder == nil {
		return false
	}
	return e.finder.Route().Host != e.codec.Carrier().Route().Host
}

func (e *Exchange) WriteRequestHeaders(req *model.PreparedRequest) error {
	e.listener.RequestHeadersStart(e.call)
	if err := e.codec.WriteRequestHeaders(req); err != nil {
		return e.requestFailed("write request headers", err)
	}
	e.listener.RequestHeadersEnd(e.call, req)
	return nil
}

// CreateRequestBody returns the sink the request body is written to. It
// enforces req.ContentLength, and reports to the call once closed.
func (e *Exchange) CreateRequestBody(req *model.PreparedRequest, duplex bool) (io.WriteCloser, error) {
	e.isDuplex.Store(duplex)
	e.listener.RequestBodyStart(e.call)
	raw, err := e.codec.CreateRequestBody(req, req.ContentLength)
	if err != nil {
		return nil, e.requestFailed("create request body", err)
	}
	return newRequestBodySink(e, raw, req.ContentLength), nil
}

func (e *Exchange) FlushRequest() error {
	if err := e.codec.FlushRequest(); err != nil {
		return e.requestFailed("flush request", err)
	}
	return nil
}

func (e *Exchange) FinishRequest() error {
	if err := e.codec.FinishRequest(); err != nil {
		return e.requestFailed("finish request", err)
	}
	return nil
}

func (e *Exchange) ResponseHeadersStart() {
	e.listener.ResponseHeadersStart(e.call)
}

// ReadResponseHeaders returns a builder bound to this exchange, or nil if
// expectContinue was set and the peer sent 100 Continue.
func (e *Exchange) ReadResponseHeaders(expectContinue bool) (*model.ResponseBuilder, error) {
	b, err := e.codec.ReadResponseHeaders(expectContinue)
	if err != nil {
		return nil, e.responseFailed("read response headers", err)
	}
	if b != nil {
		b.InitExchange(e)
	}
	return b, nil
}

func (e *Exchange) ResponseHeadersEnd(resp *model.Response) {
	e.listener.ResponseHeadersEnd(e.call, resp)
}

func (e *Exchange) OpenResponseBody(resp *model.Response) (*model.ResponseBody, error) {
	contentType := resp.HeaderValue("Content-Type")
	contentLength := e.codec.ReportedContentLength(resp)
	raw, err := e.codec.OpenResponseBodySource(resp)
	if err != nil {
		return nil, e.responseFailed("open response body", err)
	}
	source := newResponseBodySource(e, raw, contentLength)
	return model.NewResponseBody(source, contentType, contentLength), nil
}

func (e *Exchange) Trailers() (http.Header, error) {
	return e.codec.Trailers()
}

func (e *Exchange) PeekTrailers() http.Header {
	return e.codec.PeekTrailers()
}

// UpgradeToSocket repurposes the connection as a raw socket, for 101
// Switching Protocols and successful CONNECT responses. Call-scoped
// timeouts stop applying: the socket owns its own lifetime.
func (e *Exchange) UpgradeToSocket() *Socket {
	e.call.TimeoutEarlyExit()
	e.codec.Carrier().UseAsSocket()
	e.listener.RequestBodyStart(e.call)
	source, sink := e.codec.Socket()
	return &Socket{
		e:      e,
		sink:   newRequestBodySink(e, sink, -1),
		source: newResponseBodySource(e, source, -1),
	}
}

// UpgradeFailed releases an exchange whose upgrade was refused.
func (e *Exchange) UpgradeFailed() {
	e.BodyComplete(-1, true, true, nil)
}

func (e *Exchange) NoNewExchangesOnConnection() {
	e.codec.Carrier().NoNewExchanges()
}

// Cancel interrupts in-flight I/O. Blocked reads and writes fail promptly
// with an error wrapping [ErrCanceled].
func (e *Exchange) Cancel() {
	e.canceled.Store(true)
	e.codec.Cancel()
}

// DetachWithViolence cancels the codec and reports both directions done
// without error, so that a follow-up can start before this exchange
// drained.
func (e *Exchange) DetachWithViolence() {
	e.Cancel()
	e.call.MessageDone(e, true, true, nil)
}

// NoRequestBody completes the request direction of a bodyless request.
func (e *Exchange) NoRequestBody() error {
	return e.call.MessageDone(e, true, false, nil)
}

// BodyComplete reports the end of one or both directions to the listener
// and the call. The returned error is the one to surface, as the call may
// substitute it.
func (e *Exchange) BodyComplete(bytesRead int64, requestDone, responseDone bool, err error) error {
	if err != nil {
		e.trackFailure(err)
	}
	if requestDone {
		if err != nil {
			e.listener.RequestFailed(e.call, err)
		} else {
			e.listener.RequestBodyEnd(e.call, bytesRead)
		}
	}
	if responseDone {
		if err != nil {
			e.listener.ResponseFailed(e.call, err)
		} else {
			e.listener.ResponseBodyEnd(e.call, bytesRead)
		}
	}
	return e.call.MessageDone(e, requestDone, responseDone, err)
}

func (e *Exchange) requestFailed(op string, err error) error {
	err = e.wrap(op, err)
	e.listener.RequestFailed(e.call, err)
	e.trackFailure(err)
	return err
}

func (e *Exchange) responseFailed(op string, err error) error {
	err = e.wrap(op, err)
	e.listener.ResponseFailed(e.call, err)
	e.trackFailure(err)
	return err
}

func (e *Exchange) trackFailure(err error) {
	e.hasFailure.Store(true)
	e.codec.Carrier().TrackFailure(e.call, err)
}

// wrap turns a codec failure into the single error surfaced for a phase,
// keeping the transport error as its cause.
func (e *Exchange) wrap(op string, err error) error {
	var pe *ProtocolError
	switch {
	case errors.As(err, &pe),
		errors.Is(err, ErrFramingViolation),
		errors.Is(err, ErrPrematureClose),
		errors.Is(err, ErrCanceled):
		return err
	case e.canceled.Load():
		return fmt.Errorf("%w: %s: %w", ErrCanceled, op, err)
	}
	return &ProtocolError{Op: op, Err: err}
}
