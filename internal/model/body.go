package model

import (
	"bytes"
	"errors"
	"io"
	"net/http"
)

var (
	// ErrBodyConsumed is returned when peeking a body that was already
	// read to its end.
	ErrBodyConsumed = errors.New("model: response body already consumed")
	// ErrBodyUnreadable is returned when streaming the body of a response
	// that was stored as a network, cache or prior response snapshot.
	ErrBodyUnreadable = errors.New("model: body of a stripped response cannot be read")
	// ErrNegativePeek is returned by Peek for a negative byte count.
	ErrNegativePeek = errors.New("model: negative peek byte count")
)

// ResponseBody is the one-shot body of a response. Bytes pulled ahead by
// Peek are replayed to subsequent reads.
type ResponseBody struct {
	contentType   string
	contentLength int64
	source        io.ReadCloser

	peeked    []byte
	sourceEOF bool
	exhausted bool
	closed    bool
}

// NewResponseBody wraps source. contentLength is -1 when unknown.
func NewResponseBody(source io.ReadCloser, contentType string, contentLength int64) *ResponseBody {
	return &ResponseBody{contentType: contentType, contentLength: contentLength, source: source}
}

// BytesBody returns a fully buffered body.
func BytesBody(b []byte, contentType string) *ResponseBody {
	return NewResponseBody(io.NopCloser(bytes.NewReader(b)), contentType, int64(len(b)))
}

func emptyBody() *ResponseBody {
	return NewResponseBody(http.NoBody, "", 0)
}

func (b *ResponseBody) ContentType() string  { return b.contentType }
func (b *ResponseBody) ContentLength() int64 { return b.contentLength }

func (b *ResponseBody) Read(p []byte) (int, error) {
	if b.closed {
		return 0, http.ErrBodyReadAfterClose
	}
	if len(b.peeked) > 0 {
		n := copy(p, b.peeked)
		b.peeked = b.peeked[n:]
		return n, nil
	}
	if b.sourceEOF {
		b.exhausted = true
		return 0, io.EOF
	}
	n, err := b.source.Read(p)
	if err == io.EOF {
		b.sourceEOF, b.exhausted = true, true
	}
	return n, err
}

// Close is idempotent.
func (b *ResponseBody) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	b.peeked = nil
	return b.source.Close()
}

// Bytes reads the remaining body and closes it.
func (b *ResponseBody) Bytes() ([]byte, error) {
	defer b.Close()
	return io.ReadAll(b)
}

func (b *ResponseBody) String() (string, error) {
	data, err := b.Bytes()
	return string(data), err
}

// Peek returns up to n upcoming bytes without consuming them. Fewer bytes
// are returned only when the body ends first.
func (b *ResponseBody) Peek(n int64) ([]byte, error) {
	if n < 0 {
		return nil, ErrNegativePeek
	}
	if b.closed {
		return nil, http.ErrBodyReadAfterClose
	}
	if b.exhausted {
		return nil, ErrBodyConsumed
	}
	for int64(len(b.peeked)) < n && !b.sourceEOF {
		chunk := n - int64(len(b.peeked))
		if chunk > 32<<10 {
			chunk = 32 << 10
		}
		buf := make([]byte, chunk)
		m, err := b.source.Read(buf)
		b.peeked = append(b.peeked, buf[:m]...)
		if err == io.EOF {
			b.sourceEOF = true
		} else if err != nil {
			return nil, err
		}
	}
	if int64(len(b.peeked)) < n {
		n = int64(len(b.peeked))
	}
	return append([]byte(nil), b.peeked[:n]...), nil
}

// drain discards the rest of the body. Closed or exhausted bodies are
// left as they are.
func (b *ResponseBody) drain() error {
	if b.closed || b.exhausted {
		return nil
	}
	_, err := io.Copy(io.Discard, b)
	return err
}

type unreadable struct{}

func (unreadable) Read([]byte) (int, error) { return 0, ErrBodyUnreadable }
func (unreadable) Close() error             { return nil }

func strippedBody(b *ResponseBody) *ResponseBody {
	var contentType string
	contentLength := int64(-1)
	if b != nil {
		contentType, contentLength = b.contentType, b.contentLength
	}
	return NewResponseBody(unreadable{}, contentType, contentLength)
}
