package model

import (
	"fmt"
	"net/http"
)

type Request struct {
	Method string
	URL    string
	Body   interface{}
	Header http.Header

	// Duplex lets the request body be written while the response is read.
	// Only meaningful for bodies of unknown length backed by an io.Reader.
	Duplex bool
}

type Protocol string

const (
	HTTP10 Protocol = "HTTP/1.0"
	HTTP11 Protocol = "HTTP/1.1"
	HTTP2  Protocol = "h2"
)

// ParseProtocol accepts the protocol token of an HTTP/1.x status line or
// an ALPN identifier.
func ParseProtocol(s string) (Protocol, error) {
	switch s {
	case "HTTP/1.0", "http/1.0":
		return HTTP10, nil
	case "HTTP/1.1", "http/1.1":
		return HTTP11, nil
	case "h2", "HTTP/2.0":
		return HTTP2, nil
	}
	return "", fmt.Errorf("unexpected protocol: %q", s)
}

func (p Protocol) String() string { return string(p) }
