package transport

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frankli0324/go-http/internal/exchange"
	"github.com/frankli0324/go-http/internal/model"
)

type testConn struct {
	in  io.Reader
	out bytes.Buffer

	noNew, socket, canceled, closed bool
	failures                        []error
}

func (c *testConn) Read(p []byte) (int, error)  { return c.in.Read(p) }
func (c *testConn) Write(p []byte) (int, error) { return c.out.Write(p) }
func (c *testConn) Close() error                { c.closed = true; return nil }

func (c *testConn) Route() exchange.Route {
	return exchange.Route{Scheme: "http", Host: "example.com", Port: "80"}
}
func (c *testConn) TrackFailure(_ exchange.Call, err error) { c.failures = append(c.failures, err) }
func (c *testConn) NoNewExchanges()                         { c.noNew = true }
func (c *testConn) UseAsSocket()                            { c.socket = true }
func (c *testConn) Cancel()                                 { c.canceled = true }

func newTestCodec(response string) (*HTTP1, *testConn) {
	conn := &testConn{in: strings.NewReader(response)}
	return NewHTTP1(conn), conn
}

func prepare(t *testing.T, r *model.Request) *model.PreparedRequest {
	t.Helper()
	pr, err := r.Prepare()
	require.NoError(t, err)
	return pr
}

func response(t *testing.T, codec *HTTP1, req *model.PreparedRequest) *model.Response {
	t.Helper()
	b, err := codec.ReadResponseHeaders(false)
	require.NoError(t, err)
	resp, err := b.Request(req).Build()
	require.NoError(t, err)
	return resp
}

func TestWriteRequest(t *testing.T) {
	codec, conn := newTestCodec("")
	req := prepare(t, &model.Request{Method: "PUT", URL: "http://example.com/a?b=c", Body: "data"})

	require.NoError(t, codec.WriteRequestHeaders(req))
	assert.Zero(t, conn.out.Len(), "headers stay buffered")
	sink, err := codec.CreateRequestBody(req, req.ContentLength)
	require.NoError(t, err)
	_, err = sink.Write([]byte("data"))
	require.NoError(t, err)
	require.NoError(t, sink.Close())
	require.NoError(t, codec.FinishRequest())

	assert.Equal(t, "PUT /a?b=c HTTP/1.1\r\nHost: example.com\r\nContent-Length: 4\r\n\r\ndata", conn.out.String())
}

func TestWriteRequestConnect(t *testing.T) {
	codec, conn := newTestCodec("")
	req := prepare(t, &model.Request{Method: "CONNECT", URL: "http://proxy.example.com:8080", Header: http.Header{"Host": {"target.example.com:443"}}})
	require.NoError(t, codec.WriteRequestHeaders(req))
	require.NoError(t, codec.FinishRequest())
	assert.Equal(t, "CONNECT target.example.com:443 HTTP/1.1\r\nHost: target.example.com:443\r\n\r\n", conn.out.String())
}

func TestWriteRequestRejectsInvalidHeaders(t *testing.T) {
	codec, _ := newTestCodec("")
	req := prepare(t, &model.Request{Method: "GET", URL: "http://example.com/", Header: http.Header{"Bad Name": {"1"}}})
	assert.Error(t, codec.WriteRequestHeaders(req))

	codec, _ = newTestCodec("")
	req = prepare(t, &model.Request{Method: "GET", URL: "http://example.com/", Header: http.Header{"X": {"a\r\nInjected: 1"}}})
	assert.Error(t, codec.WriteRequestHeaders(req))
}

func TestWriteStateOrder(t *testing.T) {
	codec, _ := newTestCodec("")
	req := prepare(t, &model.Request{Method: "POST", URL: "http://example.com/", Body: "x"})
	_, err := codec.CreateRequestBody(req, 1)
	assert.Error(t, err, "body before headers")
	require.NoError(t, codec.WriteRequestHeaders(req))
	assert.Error(t, codec.WriteRequestHeaders(req), "headers twice")
}

func TestReadResponseHeaders(t *testing.T) {
	codec, _ := newTestCodec("HTTP/1.0 404 Not Found\r\nX-A: 1\r\nx-a: 2\r\n\r\n")
	b, err := codec.ReadResponseHeaders(false)
	require.NoError(t, err)
	resp, err := b.Request(prepare(t, &model.Request{Method: "GET", URL: "http://example.com/"})).Build()
	require.NoError(t, err)
	assert.Equal(t, model.HTTP10, resp.Protocol())
	assert.Equal(t, 404, resp.Code())
	assert.Equal(t, "Not Found", resp.Message())
	assert.Equal(t, []string{"1", "2"}, resp.HeaderValues("X-A"))

	_, err = codec.ReadResponseHeaders(false)
	assert.Error(t, err, "headers already read")
}

func TestReadResponseHeadersEmptyMessage(t *testing.T) {
	codec, _ := newTestCodec("HTTP/1.1 200\r\n\r\n")
	b, err := codec.ReadResponseHeaders(false)
	require.NoError(t, err)
	resp, err := b.Request(prepare(t, &model.Request{Method: "GET", URL: "http://example.com/"})).Build()
	require.NoError(t, err)
	assert.Equal(t, "", resp.Message())
}

func TestReadResponseHeadersMalformed(t *testing.T) {
	for name, in := range map[string]string{
		"NoStatus":    "HTTP/1.1\r\n\r\n",
		"BadProtocol": "SPDY/3 200 OK\r\n\r\n",
		"BadCode":     "HTTP/1.1 2x0 OK\r\n\r\n",
		"ShortCode":   "HTTP/1.1 20 OK\r\n\r\n",
		"Truncated":   "HTTP/1.1 200 OK\r\nX-A: 1\r\n",
		"Empty":       "",
	} {
		t.Run(name, func(t *testing.T) {
			codec, _ := newTestCodec(in)
			_, err := codec.ReadResponseHeaders(false)
			assert.Error(t, err)
		})
	}
}

func TestReadResponseHeadersContinue(t *testing.T) {
	codec, _ := newTestCodec("HTTP/1.1 100 Continue\r\n\r\nHTTP/1.1 103 Early Hints\r\n\r\nHTTP/1.1 200 OK\r\n\r\n")
	b, err := codec.ReadResponseHeaders(true)
	require.NoError(t, err)
	assert.Nil(t, b)

	b, err = codec.ReadResponseHeaders(false)
	require.NoError(t, err)
	assert.Equal(t, 103, b.CodeValue())

	b, err = codec.ReadResponseHeaders(false)
	require.NoError(t, err)
	assert.Equal(t, 200, b.CodeValue())
}

func TestFixedLengthBody(t *testing.T) {
	codec, conn := newTestCodec("HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\nhelloHTTP/1.1")
	req := prepare(t, &model.Request{Method: "GET", URL: "http://example.com/"})
	resp := response(t, codec, req)
	assert.EqualValues(t, 5, codec.ReportedContentLength(resp))

	src, err := codec.OpenResponseBodySource(resp)
	require.NoError(t, err)
	_, err = codec.Trailers()
	assert.Error(t, err, "too early")
	assert.False(t, codec.IsResponseComplete())

	buf := make([]byte, 64)
	n, err := src.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))
	assert.True(t, codec.IsResponseComplete())
	_, err = src.Read(buf)
	assert.Equal(t, io.EOF, err)
	require.NoError(t, src.Close())

	trailers, err := codec.Trailers()
	require.NoError(t, err)
	assert.Empty(t, trailers)
	assert.False(t, conn.noNew)

	rest, _ := io.ReadAll(codec.br)
	assert.Equal(t, "HTTP/1.1", string(rest), "the next response is left in the buffer")
}

func TestFixedLengthBodyClosedEarly(t *testing.T) {
	codec, conn := newTestCodec("HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\nhel")
	req := prepare(t, &model.Request{Method: "GET", URL: "http://example.com/"})
	src, err := codec.OpenResponseBodySource(response(t, codec, req))
	require.NoError(t, err)
	require.NoError(t, src.Close())
	assert.True(t, conn.noNew)

	_, err = src.Read(make([]byte, 1))
	assert.Error(t, err)
}

func TestFixedLengthBodyTruncated(t *testing.T) {
	codec, conn := newTestCodec("HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\nhel")
	req := prepare(t, &model.Request{Method: "GET", URL: "http://example.com/"})
	src, err := codec.OpenResponseBodySource(response(t, codec, req))
	require.NoError(t, err)
	_, err = io.ReadAll(src)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.True(t, conn.noNew)
}

func TestChunkedBodyTrailers(t *testing.T) {
	codec, _ := newTestCodec("HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"3\r\nabc\r\n0\r\nChecksum: 1\r\n\r\n")
	req := prepare(t, &model.Request{Method: "GET", URL: "http://example.com/"})
	resp := response(t, codec, req)
	assert.EqualValues(t, -1, codec.ReportedContentLength(resp))

	src, err := codec.OpenResponseBodySource(resp)
	require.NoError(t, err)
	assert.Nil(t, codec.PeekTrailers())
	got, err := io.ReadAll(src)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
	assert.True(t, codec.IsResponseComplete())

	trailers, err := codec.Trailers()
	require.NoError(t, err)
	assert.Equal(t, "1", trailers.Get("Checksum"))
	assert.Equal(t, "1", codec.PeekTrailers().Get("Checksum"))
}

func TestUnknownLengthBody(t *testing.T) {
	codec, conn := newTestCodec("HTTP/1.1 200 OK\r\n\r\nuntil the end")
	req := prepare(t, &model.Request{Method: "GET", URL: "http://example.com/"})
	resp := response(t, codec, req)
	assert.EqualValues(t, -1, codec.ReportedContentLength(resp))

	src, err := codec.OpenResponseBodySource(resp)
	require.NoError(t, err)
	assert.True(t, conn.noNew, "connection cannot be reused")
	got, err := io.ReadAll(src)
	require.NoError(t, err)
	assert.Equal(t, "until the end", string(got))
	assert.True(t, codec.IsResponseComplete())
}

func TestNoBodyResponses(t *testing.T) {
	for name, tc := range map[string]struct {
		method, response string
	}{
		"Head":        {"HEAD", "HTTP/1.1 200 OK\r\nContent-Length: 42\r\n\r\n"},
		"NoContent":   {"GET", "HTTP/1.1 204 No Content\r\n\r\n"},
		"NotModified": {"GET", "HTTP/1.1 304 Not Modified\r\n\r\n"},
	} {
		t.Run(name, func(t *testing.T) {
			codec, _ := newTestCodec(tc.response)
			req := prepare(t, &model.Request{Method: tc.method, URL: "http://example.com/"})
			resp := response(t, codec, req)
			assert.EqualValues(t, 0, codec.ReportedContentLength(resp))
			src, err := codec.OpenResponseBodySource(resp)
			require.NoError(t, err)
			assert.True(t, codec.IsResponseComplete())
			_, err = src.Read(make([]byte, 1))
			assert.Equal(t, io.EOF, err)
		})
	}
}

func TestConflictingContentLength(t *testing.T) {
	codec, _ := newTestCodec("HTTP/1.1 200 OK\r\nContent-Length: 5\r\nContent-Length: 6\r\n\r\nhello")
	req := prepare(t, &model.Request{Method: "GET", URL: "http://example.com/"})
	_, err := codec.OpenResponseBodySource(response(t, codec, req))
	assert.Error(t, err)
}

func TestSocket(t *testing.T) {
	codec, conn := newTestCodec("HTTP/1.1 101 Switching Protocols\r\nUpgrade: x\r\n\r\nraw bytes")
	req := prepare(t, &model.Request{Method: "GET", URL: "http://example.com/"})
	response(t, codec, req)

	source, sink := codec.Socket()
	assert.False(t, codec.IsResponseComplete())
	got, err := io.ReadAll(source)
	require.NoError(t, err)
	assert.Equal(t, "raw bytes", string(got))

	_, err = sink.Write([]byte("ping"))
	require.NoError(t, err)
	assert.Equal(t, "ping", conn.out.String(), "socket writes are not buffered")

	require.NoError(t, source.Close())
	assert.False(t, conn.closed)
	require.NoError(t, sink.Close())
	assert.True(t, conn.closed)
}

func TestCancel(t *testing.T) {
	codec, conn := newTestCodec("")
	codec.Cancel()
	assert.True(t, conn.canceled)
	assert.Same(t, conn, codec.Carrier())
}
