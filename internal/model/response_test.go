package model

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func prepared(t *testing.T) *PreparedRequest {
	t.Helper()
	pr, err := (&Request{Method: "GET", URL: "https://example.com/path"}).Prepare()
	require.NoError(t, err)
	return pr
}

func validBuilder(t *testing.T) *ResponseBuilder {
	return NewResponseBuilder().Request(prepared(t)).Protocol(HTTP11).Code(200).Message("OK")
}

func TestBuildRequiresFields(t *testing.T) {
	for name, b := range map[string]*ResponseBuilder{
		"NoCode":     NewResponseBuilder().Request(prepared(t)).Protocol(HTTP11).Message("OK"),
		"NegCode":    validBuilder(t).Code(-1),
		"NoRequest":  NewResponseBuilder().Protocol(HTTP11).Code(200).Message("OK"),
		"NoProtocol": NewResponseBuilder().Request(prepared(t)).Code(200).Message("OK"),
		"NoMessage":  NewResponseBuilder().Request(prepared(t)).Protocol(HTTP11).Code(200),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := b.Build()
			assert.ErrorIs(t, err, ErrInvalidResponse)
		})
	}
}

func TestBuildDefaults(t *testing.T) {
	resp, err := validBuilder(t).Message("").Build()
	require.NoError(t, err)
	assert.Equal(t, "", resp.Message())
	assert.EqualValues(t, 0, resp.Body().ContentLength())
	got, err := resp.Body().String()
	require.NoError(t, err)
	assert.Empty(t, got)

	trailers, err := resp.Trailers()
	require.NoError(t, err)
	assert.Empty(t, trailers)
	assert.Nil(t, resp.PeekTrailers())
	assert.Nil(t, resp.Socket())
	assert.Equal(t, "Response{protocol=HTTP/1.1, code=200, message=, url=https://example.com/path}", resp.String())
}

func TestIsSuccessful(t *testing.T) {
	for code, want := range map[int]bool{199: false, 200: true, 204: true, 299: true, 300: false, 404: false} {
		resp, err := validBuilder(t).Code(code).Build()
		require.NoError(t, err)
		assert.Equal(t, want, resp.IsSuccessful(), code)
	}
}

func TestIsRedirect(t *testing.T) {
	redirects := map[int]bool{300: true, 301: true, 302: true, 303: true, 307: true, 308: true}
	for code := 100; code < 600; code++ {
		resp, err := validBuilder(t).Code(code).Build()
		require.NoError(t, err)
		assert.Equal(t, redirects[code], resp.IsRedirect(), code)
	}
}

func TestHeaders(t *testing.T) {
	resp, err := validBuilder(t).
		Headers(http.Header{"Set-Cookie": {"a=1"}}).
		AddHeader("set-cookie", "b=2").
		SetHeader("X-Trace", "1").
		SetHeader("X-Gone", "1").
		RemoveHeader("x-gone").
		Build()
	require.NoError(t, err)
	assert.Equal(t, []string{"a=1", "b=2"}, resp.HeaderValues("Set-Cookie"))
	assert.Equal(t, "a=1", resp.HeaderValue("set-cookie"))
	assert.Equal(t, "1", resp.HeaderValue("X-Trace"))
	assert.Empty(t, resp.HeaderValue("X-Gone"))

	h := resp.Header()
	h.Set("X-Trace", "changed")
	assert.Equal(t, "1", resp.HeaderValue("X-Trace"), "responses are immutable")
}

func TestChallenges(t *testing.T) {
	h := http.Header{
		"Www-Authenticate":   {`Basic realm="x"`},
		"Proxy-Authenticate": {`Basic realm="proxy"`},
	}
	resp, err := validBuilder(t).Code(401).Headers(h).Build()
	require.NoError(t, err)
	require.Len(t, resp.Challenges(), 1)
	assert.Equal(t, "Basic", resp.Challenges()[0].Scheme)
	assert.Equal(t, "x", resp.Challenges()[0].Realm())

	resp, err = validBuilder(t).Code(407).Headers(h).Build()
	require.NoError(t, err)
	require.Len(t, resp.Challenges(), 1)
	assert.Equal(t, "proxy", resp.Challenges()[0].Realm())

	resp, err = validBuilder(t).Code(200).Headers(h).Build()
	require.NoError(t, err)
	assert.Empty(t, resp.Challenges())
}

func TestCacheControlMemoized(t *testing.T) {
	resp, err := validBuilder(t).SetHeader("Cache-Control", "max-age=60").Build()
	require.NoError(t, err)
	assert.Equal(t, 60, resp.CacheControl().MaxAgeSeconds)
	assert.Equal(t, resp.CacheControl(), resp.CacheControl())
}

func TestSupportResponsesStayOneHop(t *testing.T) {
	plain, err := validBuilder(t).Build()
	require.NoError(t, err)
	chained, err := validBuilder(t).PriorResponse(plain).Build()
	require.NoError(t, err)
	assert.Same(t, plain, chained.PriorResponse())

	_, err = validBuilder(t).NetworkResponse(chained).Build()
	assert.ErrorIs(t, err, ErrInvalidResponse)
	assert.Contains(t, err.Error(), "networkResponse.priorResponse != nil")

	_, err = validBuilder(t).CacheResponse(chained).Build()
	assert.ErrorIs(t, err, ErrInvalidResponse)

	_, err = validBuilder(t).PriorResponse(chained).Build()
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestNewBuilderCopies(t *testing.T) {
	resp, err := validBuilder(t).SetHeader("A", "1").Build()
	require.NoError(t, err)
	other, err := resp.NewBuilder().Code(404).SetHeader("A", "2").Build()
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Code())
	assert.Equal(t, "1", resp.HeaderValue("A"))
	assert.Equal(t, 404, other.Code())
	assert.Equal(t, "2", other.HeaderValue("A"))
	assert.Same(t, resp.Request(), other.Request())
}

func TestPeekBody(t *testing.T) {
	body := NewResponseBody(io.NopCloser(strings.NewReader("hello world")), "text/plain", 11)
	resp, err := validBuilder(t).Body(body).Build()
	require.NoError(t, err)

	peeked, err := resp.PeekBody(5)
	require.NoError(t, err)
	assert.Equal(t, "text/plain", peeked.ContentType())
	got, err := peeked.String()
	require.NoError(t, err)
	assert.Equal(t, "hello", got)

	peeked, err = resp.PeekBody(100)
	require.NoError(t, err)
	got, _ = peeked.String()
	assert.Equal(t, "hello world", got)

	got, err = resp.Body().String()
	require.NoError(t, err)
	assert.Equal(t, "hello world", got, "peeking does not consume")

	_, err = resp.PeekBody(1)
	assert.ErrorIs(t, err, http.ErrBodyReadAfterClose)
}

func TestPeekConsumedBody(t *testing.T) {
	body := NewResponseBody(io.NopCloser(strings.NewReader("abc")), "", 3)
	_, err := io.ReadAll(body)
	require.NoError(t, err)
	_, err = body.Peek(1)
	assert.ErrorIs(t, err, ErrBodyConsumed)
}

func TestPeekNegativeCount(t *testing.T) {
	body := NewResponseBody(io.NopCloser(strings.NewReader("abc")), "", 3)
	resp, err := validBuilder(t).Body(body).Build()
	require.NoError(t, err)

	_, err = resp.PeekBody(-1)
	assert.ErrorIs(t, err, ErrNegativePeek)

	got, err := resp.Body().String()
	require.NoError(t, err)
	assert.Equal(t, "abc", got)
}

type trailerSource struct {
	trailers http.Header
}

func (s *trailerSource) Trailers() (http.Header, error) {
	if s.trailers == nil {
		return nil, errors.New("too early")
	}
	return s.trailers, nil
}
func (s *trailerSource) PeekTrailers() http.Header { return s.trailers }

// drainingSource publishes trailers once it hits the end.
type drainingSource struct {
	r   io.Reader
	src *trailerSource
}

func (d *drainingSource) Read(p []byte) (int, error) {
	n, err := d.r.Read(p)
	if err == io.EOF {
		d.src.trailers = http.Header{"Checksum": {"abc"}}
	}
	return n, err
}
func (d *drainingSource) Close() error { return nil }

func TestTrailersDrainBody(t *testing.T) {
	src := &trailerSource{}
	body := NewResponseBody(&drainingSource{r: strings.NewReader("unread body"), src: src}, "", -1)
	resp, err := validBuilder(t).InitExchange(src).Body(body).Build()
	require.NoError(t, err)
	assert.Nil(t, resp.PeekTrailers())

	trailers, err := resp.Trailers()
	require.NoError(t, err)
	assert.Equal(t, "abc", trailers.Get("Checksum"))
	assert.Equal(t, "abc", resp.PeekTrailers().Get("Checksum"))
}

func TestCustomTrailers(t *testing.T) {
	resp, err := validBuilder(t).Trailers(func() (http.Header, error) {
		return http.Header{"X": {"1"}}, nil
	}).Build()
	require.NoError(t, err)
	trailers, err := resp.Trailers()
	require.NoError(t, err)
	assert.Equal(t, "1", trailers.Get("X"))
}

func TestStripBody(t *testing.T) {
	body := NewResponseBody(io.NopCloser(strings.NewReader("secret")), "text/plain", 6)
	resp, err := validBuilder(t).Body(body).Build()
	require.NoError(t, err)

	stripped := resp.StripBody()
	assert.Equal(t, 200, stripped.Code())
	assert.Equal(t, "text/plain", stripped.Body().ContentType())
	assert.EqualValues(t, 6, stripped.Body().ContentLength())
	_, err = stripped.Body().Read(make([]byte, 1))
	assert.ErrorIs(t, err, ErrBodyUnreadable)
	assert.NoError(t, stripped.Close())

	got, err := resp.Body().String()
	require.NoError(t, err)
	assert.Equal(t, "secret", got)
}

func TestBodyCloseIdempotent(t *testing.T) {
	body := BytesBody([]byte("x"), "")
	require.NoError(t, body.Close())
	require.NoError(t, body.Close())
	_, err := body.Read(make([]byte, 1))
	assert.ErrorIs(t, err, http.ErrBodyReadAfterClose)
}
