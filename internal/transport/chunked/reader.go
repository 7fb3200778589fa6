package chunked

import (
	"bufio"
	"errors"
	"io"
	"net/http"
	"net/textproto"
)

// NewChunkedReader decodes a chunked body. Once it returns [io.EOF], the
// trailer section has been consumed and is available from Trailer.
func NewChunkedReader(r io.Reader) *chunkedReader {
	var br *bufio.Reader
	if v, ok := r.(*bufio.Reader); ok {
		br = v
	} else {
		br = bufio.NewReader(r)
	}
	return &chunkedReader{br: br}
}

type chunkedReader struct {
	br                             *bufio.Reader
	currentChunk                   io.Reader
	currentCount, currentChunkSize int64

	trailer http.Header
	done    bool
}

// Trailer returns nil until the terminating chunk was read.
func (c *chunkedReader) Trailer() http.Header {
	return c.trailer
}

func (c *chunkedReader) readChunkHeader() (size uint64, err error) {
	cnt := 0
	isPref := true
	for isPref {
		var line []byte
		line, isPref, err = c.br.ReadLine()
		if err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return 0, err
		}
		if i := indexByte(line, ';'); i != -1 {
			line = line[:i] // chunk extensions are ignored
		}
		line = trimSpace(line)
		if len(line) == 0 {
			return 0, errors.New("empty chunk length")
		}
		for _, b := range line {
			cnt++
			switch {
			case '0' <= b && b <= '9':
				b = b - '0'
			case 'a' <= b && b <= 'f':
				b = b - 'a' + 10
			case 'A' <= b && b <= 'F':
				b = b - 'A' + 10
			default:
				return 0, errors.New("invalid byte in chunk length")
			}
			size <<= 4
			size |= uint64(b)
		}
		if cnt >= 16 {
			return 0, errors.New("http chunk length too large")
		}
	}
	return
}

func (c *chunkedReader) Read(p []byte) (n int, err error) {
	if c.done {
		return 0, io.EOF
	}
	if c.currentChunk == nil {
		l, err := c.readChunkHeader()
		if err != nil {
			return n, err
		}
		if l == 0 {
			return 0, c.readTrailer()
		}
		c.currentChunk = io.LimitReader(c.br, int64(l))
		c.currentChunkSize = int64(l)
	}
	n, err = c.currentChunk.Read(p)
	c.currentCount += int64(n)
	switch {
	case err == io.EOF && c.currentCount != c.currentChunkSize:
		return n, io.ErrUnexpectedEOF
	case err != nil && err != io.EOF:
		return n, err
	}
	if c.currentCount == c.currentChunkSize {
		dr, _ := c.br.ReadByte()
		dn, err := c.br.ReadByte()
		if err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return n, err
		}
		if dr != '\r' || dn != '\n' {
			return n, errors.New("malformed chunked encoding")
		}
		c.currentChunk = nil
		c.currentCount = 0
	}
	return n, nil
}

func (c *chunkedReader) readTrailer() error {
	h, err := textproto.NewReader(c.br).ReadMIMEHeader()
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return err
	}
	c.trailer, c.done = http.Header(h), true
	if c.trailer == nil {
		c.trailer = http.Header{}
	}
	return io.EOF
}

func indexByte(b []byte, c byte) int {
	for i := range b {
		if b[i] == c {
			return i
		}
	}
	return -1
}

func trimSpace(b []byte) []byte {
	for len(b) > 0 && (b[0] == ' ' || b[0] == '\t') {
		b = b[1:]
	}
	for len(b) > 0 && (b[len(b)-1] == ' ' || b[len(b)-1] == '\t') {
		b = b[:len(b)-1]
	}
	return b
}
