package transport

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/net/http/httpguts"

	"github.com/frankli0324/go-http/internal/exchange"
	"github.com/frankli0324/go-http/internal/model"
	"github.com/frankli0324/go-http/internal/transport/chunked"
)

// request side states
const (
	writeIdle = iota
	writeOpenRequestBody
	writeWritingRequestBody
	writeDone
)

// response side states
const (
	readResponseHeaders = iota
	readOpenResponseBody
	readReadingResponseBody
	readClosed
	readUpgraded
)

var errBodyClosed = errors.New("transport: body closed")

// HTTP1 is an [exchange.Codec] speaking HTTP/1.1. The two directions keep
// separate state so that a duplex body may be written while the response
// is read.
type HTTP1 struct {
	conn Conn
	br   *bufio.Reader
	bw   *bufio.Writer
	tp   *textproto.Reader

	writeState int
	readState  atomic.Int32

	mu       sync.Mutex
	trailers http.Header
}

func NewHTTP1(conn Conn) *HTTP1 {
	var br *bufio.Reader
	var bw *bufio.Writer
	if b, ok := conn.(buffered); ok {
		br, bw = b.Buffers()
	} else {
		br, bw = bufio.NewReader(conn), bufio.NewWriter(conn)
	}
	return &HTTP1{conn: conn, br: br, bw: bw, tp: textproto.NewReader(br)}
}

func (t *HTTP1) Carrier() exchange.Carrier { return t.conn }

// WriteRequestHeaders writes the request line and header part of an HTTP
// 1.1 request to the buffer, e.g.:
//
//	GET / HTTP/1.1\r\n
//	Host: www.google.com\r\n
//	X-Xx-Yy: cccccc\r\n
//	\r\n
//
// nothing reaches the wire before FlushRequest or FinishRequest.
func (t *HTTP1) WriteRequestHeaders(r *model.PreparedRequest) error {
	if t.writeState != writeIdle {
		return fmt.Errorf("transport: unexpected write state %d", t.writeState)
	}
	target := r.U.RequestURI()
	if r.Method == http.MethodConnect {
		target = r.HeaderHost
	}
	header := t.bw
	header.WriteString(r.Method)
	header.WriteByte(' ')
	header.WriteString(target)
	header.WriteString(" HTTP/1.1\r\n")

	header.WriteString("Host: ")
	header.WriteString(r.HeaderHost)
	header.WriteString("\r\n")
	if r.ContentLength != -1 {
		header.WriteString("Content-Length: ")
		header.WriteString(strconv.FormatInt(r.ContentLength, 10))
		header.WriteString("\r\n")
	} else if r.HasBody() {
		header.WriteString("Transfer-Encoding: chunked\r\n")
	}
	for k, v := range r.Header {
		if !httpguts.ValidHeaderFieldName(k) {
			return fmt.Errorf("transport: invalid header field name %q", k)
		}
		for _, v := range v {
			if !httpguts.ValidHeaderFieldValue(v) {
				return fmt.Errorf("transport: invalid header field value for %q", k)
			}
			header.WriteString(k)
			header.WriteString(": ")
			header.WriteString(v)
			header.WriteString("\r\n")
		}
	}
	if _, err := header.WriteString("\r\n"); err != nil {
		return err
	}
	t.writeState = writeOpenRequestBody
	return nil
}

func (t *HTTP1) CreateRequestBody(r *model.PreparedRequest, contentLength int64) (io.WriteCloser, error) {
	if t.writeState != writeOpenRequestBody {
		return nil, fmt.Errorf("transport: unexpected write state %d", t.writeState)
	}
	t.writeState = writeWritingRequestBody
	if contentLength == -1 {
		cw := chunked.NewChunkedWriter(t.bw)
		return writeCloser{Writer: cw, flush: t.bw.Flush, close: func() error {
			t.writeState = writeDone
			return cw.Close()
		}}, nil
	}
	return writeCloser{Writer: t.bw, flush: t.bw.Flush, close: func() error {
		t.writeState = writeDone
		return nil
	}}, nil
}

func (t *HTTP1) FlushRequest() error {
	return t.bw.Flush()
}

func (t *HTTP1) FinishRequest() error {
	if t.writeState == writeOpenRequestBody {
		t.writeState = writeDone
	}
	return t.bw.Flush()
}

func (t *HTTP1) ReadResponseHeaders(expectContinue bool) (*model.ResponseBuilder, error) {
	if s := t.readState.Load(); s != readResponseHeaders {
		return nil, fmt.Errorf("transport: unexpected read state %d", s)
	}
	line, err := t.tp.ReadLine()
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	proto, status, ok := strings.Cut(line, " ")
	if !ok {
		return nil, errors.New("transport: malformed HTTP response " + strconv.Quote(line))
	}
	protocol, err := model.ParseProtocol(proto)
	if err != nil {
		return nil, err
	}
	status = strings.TrimLeft(status, " ")
	statusCode, message, _ := strings.Cut(status, " ")
	if len(statusCode) != 3 {
		return nil, errors.New("transport: malformed HTTP status code " + statusCode)
	}
	code, err := strconv.Atoi(statusCode)
	if err != nil || code < 0 {
		return nil, errors.New("transport: malformed HTTP status code " + statusCode)
	}

	mimeHeader, err := t.tp.ReadMIMEHeader()
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}

	b := model.NewResponseBuilder().
		Protocol(protocol).
		Code(code).
		Message(message).
		Headers(http.Header(mimeHeader))
	switch {
	case expectContinue && code == http.StatusContinue:
		return nil, nil
	case code == http.StatusContinue, code >= 102 && code < 200:
		// interim response, the final one is still to come
		return b, nil
	}
	t.readState.Store(readOpenResponseBody)
	return b, nil
}

func (t *HTTP1) ReportedContentLength(resp *model.Response) int64 {
	if !promisesBody(resp) {
		return 0
	}
	if isChunked(resp) {
		return -1
	}
	cl, err := contentLength(resp)
	if err != nil {
		return -1
	}
	return cl
}

func (t *HTTP1) OpenResponseBodySource(resp *model.Response) (io.ReadCloser, error) {
	if !t.readState.CompareAndSwap(readOpenResponseBody, readReadingResponseBody) {
		return nil, fmt.Errorf("transport: unexpected read state %d", t.readState.Load())
	}
	if !promisesBody(resp) {
		return t.newFixedLengthSource(0), nil
	}
	if isChunked(resp) {
		return &chunkedSource{t: t, r: chunked.NewChunkedReader(t.br)}, nil
	}
	cl, err := contentLength(resp)
	if err != nil {
		return nil, err
	}
	if cl != -1 {
		return t.newFixedLengthSource(cl), nil
	}
	// delimited by the end of the connection
	t.conn.NoNewExchanges()
	return &unknownLengthSource{t: t}, nil
}

func (t *HTTP1) IsResponseComplete() bool {
	return t.readState.Load() == readClosed
}

func (t *HTTP1) Trailers() (http.Header, error) {
	if t.readState.Load() != readClosed {
		return nil, errors.New("transport: too early; can't read the trailers yet")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.trailers == nil {
		return http.Header{}, nil
	}
	return t.trailers, nil
}

func (t *HTTP1) PeekTrailers() http.Header {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.trailers
}

// Socket gives up on HTTP framing for good: whatever is left in the read
// buffer belongs to the upgraded protocol.
func (t *HTTP1) Socket() (io.ReadCloser, io.WriteCloser) {
	t.readState.Store(readUpgraded)
	t.writeState = writeDone
	var halves atomic.Int32
	closeHalf := func() error {
		if halves.Add(1) == 2 {
			return t.conn.Close()
		}
		return nil
	}
	source := bodyCloser{Reader: t.br, close: closeHalf}
	sink := writeCloser{Writer: flushWriter{t.bw}, flush: t.bw.Flush, close: func() error {
		if cw, ok := t.conn.(interface{ CloseWrite() error }); ok {
			cw.CloseWrite()
		}
		return closeHalf()
	}}
	return source, sink
}

func (t *HTTP1) Cancel() {
	t.conn.Cancel()
}

func (t *HTTP1) responseBodyComplete(trailers http.Header) {
	t.mu.Lock()
	if trailers == nil {
		trailers = http.Header{}
	}
	t.trailers = trailers
	t.mu.Unlock()
	t.readState.Store(readClosed)
}

// promisesBody reports whether the response may carry a body at all.
func promisesBody(resp *model.Response) bool {
	if req := resp.Request(); req != nil && req.Method == http.MethodHead {
		return false
	}
	code := resp.Code()
	if (code < 100 || code >= 200) && code != http.StatusNoContent && code != http.StatusNotModified {
		return true
	}
	// the headers may still insist
	cl, _ := contentLength(resp)
	return cl != -1 || isChunked(resp)
}

func isChunked(resp *model.Response) bool {
	return strings.EqualFold(resp.HeaderValue("Transfer-Encoding"), "chunked")
}

// contentLength is -1 when absent or unparsable.
func contentLength(resp *model.Response) (int64, error) {
	contentLens := resp.HeaderValues("Content-Length")

	// Hardening against HTTP request smuggling, taken from standard library
	if len(contentLens) > 1 {
		// Per RFC 7230 Section 3.3.2
		first := textproto.TrimString(contentLens[0])
		for _, ct := range contentLens[1:] {
			if first != textproto.TrimString(ct) {
				return -1, fmt.Errorf("transport: message cannot contain multiple Content-Length headers; got %q", contentLens)
			}
		}
	}
	if len(contentLens) > 0 {
		if n, err := strconv.ParseUint(textproto.TrimString(contentLens[0]), 10, 63); err == nil {
			return int64(n), nil
		}
	}
	return -1, nil
}

type flushWriter struct {
	w *bufio.Writer
}

func (f flushWriter) Write(p []byte) (int, error) {
	n, err := f.w.Write(p)
	if err != nil {
		return n, err
	}
	return n, f.w.Flush()
}

type fixedLengthSource struct {
	t         *HTTP1
	remaining int64
	closed    bool
}

func (t *HTTP1) newFixedLengthSource(n int64) *fixedLengthSource {
	s := &fixedLengthSource{t: t, remaining: n}
	if n == 0 {
		t.responseBodyComplete(nil)
	}
	return s
}

func (s *fixedLengthSource) Read(p []byte) (int, error) {
	if s.closed {
		return 0, errBodyClosed
	}
	if s.remaining == 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > s.remaining {
		p = p[:s.remaining]
	}
	n, err := s.t.br.Read(p)
	s.remaining -= int64(n)
	if err != nil {
		s.t.conn.NoNewExchanges()
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return n, err
	}
	if s.remaining == 0 {
		s.t.responseBodyComplete(nil)
	}
	return n, nil
}

func (s *fixedLengthSource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.remaining != 0 {
		// unread bytes are still on the wire
		s.t.conn.NoNewExchanges()
		s.t.readState.Store(readClosed)
	}
	return nil
}

type trailerReader interface {
	io.Reader
	Trailer() http.Header
}

type chunkedSource struct {
	t      *HTTP1
	r      trailerReader
	done   bool
	closed bool
}

func (s *chunkedSource) Read(p []byte) (int, error) {
	if s.closed {
		return 0, errBodyClosed
	}
	if s.done {
		return 0, io.EOF
	}
	n, err := s.r.Read(p)
	switch {
	case err == io.EOF:
		s.done = true
		s.t.responseBodyComplete(s.r.Trailer())
	case err != nil:
		s.t.conn.NoNewExchanges()
	}
	return n, err
}

func (s *chunkedSource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if !s.done {
		s.t.conn.NoNewExchanges()
		s.t.readState.Store(readClosed)
	}
	return nil
}

type unknownLengthSource struct {
	t      *HTTP1
	done   bool
	closed bool
}

func (s *unknownLengthSource) Read(p []byte) (int, error) {
	if s.closed {
		return 0, errBodyClosed
	}
	if s.done {
		return 0, io.EOF
	}
	n, err := s.t.br.Read(p)
	if err == io.EOF {
		s.done = true
		s.t.responseBodyComplete(nil)
	}
	return n, err
}

func (s *unknownLengthSource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if !s.done {
		s.t.readState.Store(readClosed)
	}
	return nil
}
