package netpool

import (
	"bufio"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/http2"

	"github.com/frankli0324/go-http/internal/exchange"
	"github.com/frankli0324/go-http/internal/nettools"
)

// Conn is a pooled connection. It is the carrier of the exchanges run on
// it and tracks their failures to decide whether it may be reused.
type Conn struct {
	conn        net.Conn
	route       exchange.Route
	pool        *Pool
	logger      *zap.Logger
	multiplexed bool

	bufOnce sync.Once
	br      *bufio.Reader
	bw      *bufio.Writer

	IsClosed atomic.Bool
	LastIdle time.Time

	mu                 sync.Mutex
	noNewExchanges     bool
	routeFailureCount  int
	successCount       int
	refusedStreamCount int
}

func newConn(p *Pool, raw net.Conn) *Conn {
	c := &Conn{conn: raw, route: p.route, pool: p, logger: p.logger}
	if tc, ok := raw.(*tls.Conn); ok {
		c.multiplexed = tc.ConnectionState().NegotiatedProtocol == http2.NextProtoTLS
	}
	return c
}

func (c *Conn) Write(p []byte) (n int, err error) {
	n, err = c.conn.Write(p)
	if err != nil {
		c.logger.Debug("netpool: error on write", zap.Stringer("route", c.route), zap.Error(err))
		c.NoNewExchanges()
	}
	return
}

func (c *Conn) Read(p []byte) (n int, err error) {
	n, err = c.conn.Read(p)
	if err != nil {
		if err != io.EOF {
			c.logger.Debug("netpool: error on read", zap.Stringer("route", c.route), zap.Error(err))
		}
		c.NoNewExchanges()
	}
	return
}

func (c *Conn) Close() error {
	if !c.IsClosed.CompareAndSwap(false, true) {
		return nil
	}
	return c.conn.Close()
}

func (c *Conn) CloseWrite() error {
	if cw, ok := c.conn.(interface{ CloseWrite() error }); ok {
		return cw.CloseWrite()
	}
	return nil
}

func (c *Conn) Raw() net.Conn {
	return c.conn
}

// Buffers are created once and shared by every exchange on the connection.
func (c *Conn) Buffers() (*bufio.Reader, *bufio.Writer) {
	c.bufOnce.Do(func() {
		c.br, c.bw = bufio.NewReader(c), bufio.NewWriter(c)
	})
	return c.br, c.bw
}

// Handshake returns nil for plaintext connections.
func (c *Conn) Handshake() *tls.ConnectionState {
	if tc, ok := c.conn.(*tls.Conn); ok {
		cs := tc.ConnectionState()
		return &cs
	}
	return nil
}

func (c *Conn) Route() exchange.Route { return c.route }

func (c *Conn) NoNewExchanges() {
	c.mu.Lock()
	c.noNewExchanges = true
	c.mu.Unlock()
}

func (c *Conn) UseAsSocket() {
	c.NoNewExchanges()
	c.conn.SetDeadline(time.Time{})
}

// Cancel closes the socket, failing any blocked read or write.
func (c *Conn) Cancel() {
	c.Close()
}

// TrackFailure records a failed exchange. Refused streams are tolerated
// once; cancellations of canceled calls are not the connection's fault.
func (c *Conn) TrackFailure(call exchange.Call, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var streamErr http2.StreamError
	var goAway http2.GoAwayError
	switch {
	case errors.As(err, &streamErr):
		switch {
		case streamErr.Code == http2.ErrCodeRefusedStream:
			c.refusedStreamCount++
			if c.refusedStreamCount > 1 {
				c.noNewExchanges = true
				c.routeFailureCount++
			}
		case streamErr.Code == http2.ErrCodeCancel && isCanceled(call):
		default:
			c.noNewExchanges = true
			c.routeFailureCount++
		}
	case !c.multiplexed || errors.As(err, &goAway):
		c.noNewExchanges = true
		if c.successCount == 0 {
			c.routeFailureCount++
		}
	}
	c.logger.Debug("netpool: exchange failed",
		zap.Stringer("route", c.route),
		zap.Bool("noNewExchanges", c.noNewExchanges),
		zap.Int("routeFailures", c.routeFailureCount),
		zap.Error(err))
}

func isCanceled(call exchange.Call) bool {
	if c, ok := call.(interface{ IsCanceled() bool }); ok {
		return c.IsCanceled()
	}
	return false
}

func (c *Conn) RouteFailureCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.routeFailureCount
}

// Reusable reports whether the connection may still be offered for new
// exchanges.
func (c *Conn) Reusable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.noNewExchanges && !c.IsClosed.Load()
}

// IsHealthy probes an idle connection: data or EOF arriving while nothing
// was asked for means the peer is gone or out of sync.
func (c *Conn) IsHealthy() bool {
	if !c.Reusable() {
		return false
	}
	if c.br != nil && c.br.Buffered() > 0 {
		return false
	}
	readable, err := nettools.IsReadable(c.conn)
	return err == nil && !readable
}

// Release hands the connection back to its pool once its exchange is over.
func (c *Conn) Release(err error) {
	if err == nil {
		c.mu.Lock()
		c.successCount++
		c.mu.Unlock()
	}
	if c.pool != nil {
		c.pool.Release(c)
	} else {
		c.Close()
	}
}
