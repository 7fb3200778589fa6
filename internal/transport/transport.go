package transport

import (
	"bufio"
	"io"

	"github.com/frankli0324/go-http/internal/exchange"
)

// Conn is the connection a codec runs on.
type Conn interface {
	exchange.Carrier
	io.ReadWriteCloser
}

// buffered is implemented by connections that keep their buffers across
// exchanges, so that read-ahead is not lost between responses.
type buffered interface {
	Buffers() (*bufio.Reader, *bufio.Writer)
}

var (
	_ exchange.Codec = (*HTTP1)(nil)
)
