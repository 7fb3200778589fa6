package model

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/frankli0324/go-http/internal/header"
)

// ErrInvalidResponse is wrapped by every error returned from
// [ResponseBuilder.Build].
var ErrInvalidResponse = errors.New("model: invalid response")

// TrailerSource is the exchange a response was read from. It is consulted
// for trailers once the body has been consumed.
type TrailerSource interface {
	Trailers() (http.Header, error)
	PeekTrailers() http.Header
}

// Socket is the raw bidirectional stream left behind by a protocol upgrade.
type Socket interface {
	io.ReadWriteCloser
	Cancel()
}

// Response is an immutable HTTP response. Only its body changes state,
// as it is read.
type Response struct {
	request   *PreparedRequest
	protocol  Protocol
	code      int
	message   string
	handshake *tls.ConnectionState
	header    http.Header
	body      *ResponseBody
	socket    Socket

	networkResponse *Response
	cacheResponse   *Response
	priorResponse   *Response

	sentRequestAt      time.Time
	receivedResponseAt time.Time

	exchange   TrailerSource
	trailersFn func() (http.Header, error)

	cacheControlOnce sync.Once
	cacheControl     header.CacheControl
}

func (r *Response) Request() *PreparedRequest          { return r.request }
func (r *Response) Protocol() Protocol                 { return r.protocol }
func (r *Response) Code() int                          { return r.code }
func (r *Response) Message() string                    { return r.message }
func (r *Response) Handshake() *tls.ConnectionState    { return r.handshake }
func (r *Response) Body() *ResponseBody                { return r.body }
func (r *Response) Socket() Socket                     { return r.socket }
func (r *Response) NetworkResponse() *Response         { return r.networkResponse }
func (r *Response) CacheResponse() *Response           { return r.cacheResponse }
func (r *Response) PriorResponse() *Response           { return r.priorResponse }
func (r *Response) SentRequestAt() time.Time           { return r.sentRequestAt }
func (r *Response) ReceivedResponseAt() time.Time      { return r.receivedResponseAt }
func (r *Response) HeaderValue(name string) string     { return r.header.Get(name) }
func (r *Response) HeaderValues(name string) []string  { return r.header.Values(name) }

// Header returns a copy of the response headers.
func (r *Response) Header() http.Header { return r.header.Clone() }

// IsSuccessful reports whether the code is in [200, 300).
func (r *Response) IsSuccessful() bool {
	return r.code >= 200 && r.code < 300
}

// IsRedirect reports whether the code asks the client to follow Location.
func (r *Response) IsRedirect() bool {
	switch r.code {
	case http.StatusMultipleChoices, http.StatusMovedPermanently, http.StatusFound,
		http.StatusSeeOther, http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

// Challenges returns the authentication challenges of a 401 or 407
// response, and nothing for any other code.
func (r *Response) Challenges() []header.Challenge {
	switch r.code {
	case http.StatusUnauthorized:
		return header.ParseChallenges(r.header, "WWW-Authenticate")
	case http.StatusProxyAuthRequired:
		return header.ParseChallenges(r.header, "Proxy-Authenticate")
	}
	return nil
}

// CacheControl is parsed from the headers on first use.
func (r *Response) CacheControl() header.CacheControl {
	r.cacheControlOnce.Do(func() {
		r.cacheControl = header.ParseCacheControl(r.header)
	})
	return r.cacheControl
}

// Trailers blocks until the trailers are known, discarding any unread
// body bytes first.
func (r *Response) Trailers() (http.Header, error) {
	if err := r.body.drain(); err != nil {
		return nil, err
	}
	return r.trailersFn()
}

// PeekTrailers returns the trailers if they already arrived, nil otherwise.
func (r *Response) PeekTrailers() http.Header {
	if r.exchange == nil {
		return nil
	}
	return r.exchange.PeekTrailers()
}

// PeekBody returns up to byteCount bytes of the body as a separate body,
// leaving the real one unconsumed.
func (r *Response) PeekBody(byteCount int64) (*ResponseBody, error) {
	data, err := r.body.Peek(byteCount)
	if err != nil {
		return nil, err
	}
	return BytesBody(data, r.body.contentType), nil
}

// Close closes the body only.
func (r *Response) Close() error {
	return r.body.Close()
}

// StripBody returns a copy whose body can be closed but not read. This is
// how a response is kept as another response's network, cache or prior
// response.
func (r *Response) StripBody() *Response {
	b := r.NewBuilder()
	b.body = strippedBody(r.body)
	stripped, _ := b.Build() // r was already valid
	return stripped
}

func (r *Response) NewBuilder() *ResponseBuilder {
	return &ResponseBuilder{
		request:            r.request,
		protocol:           r.protocol,
		code:               r.code,
		message:            r.message,
		hasMessage:         true,
		handshake:          r.handshake,
		header:             r.header.Clone(),
		body:               r.body,
		socket:             r.socket,
		networkResponse:    r.networkResponse,
		cacheResponse:      r.cacheResponse,
		priorResponse:      r.priorResponse,
		sentRequestAt:      r.sentRequestAt,
		receivedResponseAt: r.receivedResponseAt,
		exchange:           r.exchange,
		trailersFn:         r.trailersFn,
	}
}

func (r *Response) String() string {
	var url string
	if r.request != nil && r.request.U != nil {
		url = r.request.U.String()
	}
	return fmt.Sprintf("Response{protocol=%s, code=%d, message=%s, url=%s}", r.protocol, r.code, r.message, url)
}

// ResponseBuilder assembles a [Response]. Setter misuse is reported by
// Build.
type ResponseBuilder struct {
	request    *PreparedRequest
	protocol   Protocol
	code       int
	message    string
	hasMessage bool
	handshake  *tls.ConnectionState
	header     http.Header
	body       *ResponseBody
	socket     Socket

	networkResponse *Response
	cacheResponse   *Response
	priorResponse   *Response

	sentRequestAt      time.Time
	receivedResponseAt time.Time

	exchange   TrailerSource
	trailersFn func() (http.Header, error)

	err error
}

func NewResponseBuilder() *ResponseBuilder {
	return &ResponseBuilder{code: -1, header: http.Header{}}
}

func (b *ResponseBuilder) Request(req *PreparedRequest) *ResponseBuilder {
	b.request = req
	return b
}

func (b *ResponseBuilder) Protocol(p Protocol) *ResponseBuilder {
	b.protocol = p
	return b
}

func (b *ResponseBuilder) Code(code int) *ResponseBuilder {
	b.code = code
	return b
}

// CodeValue returns the code set so far, -1 if none.
func (b *ResponseBuilder) CodeValue() int {
	return b.code
}

func (b *ResponseBuilder) Message(msg string) *ResponseBuilder {
	b.message, b.hasMessage = msg, true
	return b
}

func (b *ResponseBuilder) Handshake(hs *tls.ConnectionState) *ResponseBuilder {
	b.handshake = hs
	return b
}

// Headers replaces all headers with a copy of h.
func (b *ResponseBuilder) Headers(h http.Header) *ResponseBuilder {
	b.header = h.Clone()
	if b.header == nil {
		b.header = http.Header{}
	}
	return b
}

func (b *ResponseBuilder) SetHeader(name, value string) *ResponseBuilder {
	b.header.Set(name, value)
	return b
}

func (b *ResponseBuilder) AddHeader(name, value string) *ResponseBuilder {
	b.header.Add(name, value)
	return b
}

func (b *ResponseBuilder) RemoveHeader(name string) *ResponseBuilder {
	b.header.Del(name)
	return b
}

func (b *ResponseBuilder) Body(body *ResponseBody) *ResponseBuilder {
	b.body = body
	return b
}

func (b *ResponseBuilder) Socket(s Socket) *ResponseBuilder {
	b.socket = s
	return b
}

func (b *ResponseBuilder) NetworkResponse(resp *Response) *ResponseBuilder {
	b.checkSupportResponse("networkResponse", resp)
	b.networkResponse = resp
	return b
}

func (b *ResponseBuilder) CacheResponse(resp *Response) *ResponseBuilder {
	b.checkSupportResponse("cacheResponse", resp)
	b.cacheResponse = resp
	return b
}

func (b *ResponseBuilder) PriorResponse(resp *Response) *ResponseBuilder {
	b.checkSupportResponse("priorResponse", resp)
	b.priorResponse = resp
	return b
}

func (b *ResponseBuilder) SentRequestAt(t time.Time) *ResponseBuilder {
	b.sentRequestAt = t
	return b
}

func (b *ResponseBuilder) ReceivedResponseAt(t time.Time) *ResponseBuilder {
	b.receivedResponseAt = t
	return b
}

// Trailers sets how trailers are obtained once the body is consumed.
func (b *ResponseBuilder) Trailers(fn func() (http.Header, error)) *ResponseBuilder {
	b.trailersFn = fn
	return b
}

// InitExchange binds the response to the exchange it is read from.
func (b *ResponseBuilder) InitExchange(src TrailerSource) *ResponseBuilder {
	b.exchange = src
	b.trailersFn = src.Trailers
	return b
}

// checkSupportResponse keeps response chains one hop deep.
func (b *ResponseBuilder) checkSupportResponse(name string, resp *Response) {
	if resp == nil || b.err != nil {
		return
	}
	switch {
	case resp.networkResponse != nil:
		b.err = fmt.Errorf("%w: %s.networkResponse != nil", ErrInvalidResponse, name)
	case resp.cacheResponse != nil:
		b.err = fmt.Errorf("%w: %s.cacheResponse != nil", ErrInvalidResponse, name)
	case resp.priorResponse != nil:
		b.err = fmt.Errorf("%w: %s.priorResponse != nil", ErrInvalidResponse, name)
	}
}

func (b *ResponseBuilder) Build() (*Response, error) {
	switch {
	case b.err != nil:
		return nil, b.err
	case b.code < 0:
		return nil, fmt.Errorf("%w: code < 0: %d", ErrInvalidResponse, b.code)
	case b.request == nil:
		return nil, fmt.Errorf("%w: request == nil", ErrInvalidResponse)
	case b.protocol == "":
		return nil, fmt.Errorf("%w: protocol == nil", ErrInvalidResponse)
	case !b.hasMessage:
		return nil, fmt.Errorf("%w: message == nil", ErrInvalidResponse)
	}
	body := b.body
	if body == nil {
		body = emptyBody()
	}
	trailersFn := b.trailersFn
	if trailersFn == nil {
		trailersFn = func() (http.Header, error) { return http.Header{}, nil }
	}
	return &Response{
		request:            b.request,
		protocol:           b.protocol,
		code:               b.code,
		message:            b.message,
		handshake:          b.handshake,
		header:             b.header.Clone(),
		body:               body,
		socket:             b.socket,
		networkResponse:    b.networkResponse,
		cacheResponse:      b.cacheResponse,
		priorResponse:      b.priorResponse,
		sentRequestAt:      b.sentRequestAt,
		receivedResponseAt: b.receivedResponseAt,
		exchange:           b.exchange,
		trailersFn:         trailersFn,
	}, nil
}
