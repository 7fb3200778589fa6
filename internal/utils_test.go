package internal_test

import (
	"bytes"
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/frankli0324/go-http/internal"
	"github.com/frankli0324/go-http/internal/dialer"
	"github.com/frankli0324/go-http/internal/exchange"
	"github.com/frankli0324/go-http/internal/model"
)

type fakeAddr struct{}

func (fakeAddr) Network() string { return "fake" }
func (fakeAddr) String() string  { return "fake" }

// recordConn answers with a canned response and records what is written.
type recordConn struct {
	mu       sync.Mutex
	response *strings.Reader
	written  bytes.Buffer
	closed   bool
}

func (c *recordConn) Read(p []byte) (int, error) { return c.response.Read(p) }

func (c *recordConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.written.Write(p)
}

func (c *recordConn) Written() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return bytes.Clone(c.written.Bytes())
}

func (c *recordConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *recordConn) LocalAddr() net.Addr                { return fakeAddr{} }
func (c *recordConn) RemoteAddr() net.Addr               { return fakeAddr{} }
func (c *recordConn) SetDeadline(t time.Time) error      { return nil }
func (c *recordConn) SetReadDeadline(t time.Time) error  { return nil }
func (c *recordConn) SetWriteDeadline(t time.Time) error { return nil }

type TestDialer struct {
	net.Conn
}

// Dial implements dialer.Dialer.
func (t *TestDialer) Dial(ctx context.Context, r exchange.Route) (net.Conn, error) {
	return t.Conn, nil
}

// SendSingleRequest runs req against a connection answering with an empty
// 200 and returns the bytes the client wrote.
func SendSingleRequest(t *testing.T, req *model.Request) []byte {
	conn := &recordConn{response: strings.NewReader("HTTP/1.1 200 OK\r\nContent-Length: 0\r\nConnection: close\r\n\r\n")}
	c := &internal.Client{}
	c.UseDialer(func(dialer.Dialer) dialer.Dialer {
		return &TestDialer{conn}
	})
	resp, err := c.CtxDo(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Close()
	return conn.Written()
}
