package transport

import (
	"io"
)

type bodyCloser struct {
	io.Reader
	close func() error
}

func (b bodyCloser) Close() error {
	return b.close()
}

type writeCloser struct {
	io.Writer
	flush func() error
	close func() error
}

func (w writeCloser) Flush() error { return w.flush() }
func (w writeCloser) Close() error { return w.close() }
