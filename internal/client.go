package internal

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/http/httpguts"

	"github.com/frankli0324/go-http/internal/dialer"
	"github.com/frankli0324/go-http/internal/exchange"
	"github.com/frankli0324/go-http/internal/model"
	"github.com/frankli0324/go-http/internal/netpool"
	"github.com/frankli0324/go-http/internal/transport"
)

type PreparedRequest = model.PreparedRequest

type Handler = func(ctx context.Context, req *PreparedRequest) (*model.Response, error)
type Middleware func(next Handler) Handler

const (
	DefaultMaxConnsPerHost = 64
	DefaultMaxIdlePerHost  = 4
)

type Client struct {
	// Timeout bounds a call from dialing until its response body is done.
	// Sockets obtained through an upgrade are not bound by it.
	Timeout  time.Duration
	Listener exchange.Listener
	Logger   *zap.Logger

	middlewares []Middleware

	mu     sync.Mutex
	dialer dialer.Dialer
	pool   *netpool.PoolGroup
}

// Use appends mw to the end of the chain. The last "Use"d mw executes first
func (c *Client) Use(mws ...Middleware) {
	c.middlewares = append(c.middlewares, mws...)
}

// UseDialer replaces the dialer with the one returned by wrap, which is
// given the current one.
func (c *Client) UseDialer(wrap func(dialer.Dialer) dialer.Dialer) {
	d := wrap(c.getDialer())
	c.mu.Lock()
	c.dialer = d
	c.mu.Unlock()
}

// UsePool makes the client share g with others. Connections pooled so far
// are left to the previous group.
func (c *Client) UsePool(g *netpool.PoolGroup) {
	c.mu.Lock()
	c.pool = g
	c.mu.Unlock()
}

func (c *Client) getDialer() dialer.Dialer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dialer == nil {
		c.dialer = &dialer.CoreDialer{}
	}
	return c.dialer
}

func (c *Client) getPool() *netpool.PoolGroup {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pool == nil {
		c.pool = netpool.NewGroup(DefaultMaxConnsPerHost, DefaultMaxIdlePerHost)
		c.pool.Logger = c.logger()
	}
	return c.pool
}

func (c *Client) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

// Clone returns a client with the same configuration and middlewares that
// does not share pooled connections with c.
func (c *Client) Clone() *Client {
	n := &Client{
		Timeout:     c.Timeout,
		Listener:    c.Listener,
		Logger:      c.Logger,
		middlewares: append([]Middleware(nil), c.middlewares...),
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if cd, ok := c.dialer.(*dialer.CoreDialer); ok {
		n.dialer = cd.Clone()
	} else {
		n.dialer = c.dialer
	}
	if c.pool != nil {
		n.pool = c.pool.NewEmpty()
	}
	return n
}

func (c *Client) CtxDo(ctx context.Context, req *model.Request) (*model.Response, error) {
	pr, err := req.Prepare()
	if err != nil {
		return nil, err
	}
	next := c.roundTrip
	for i := 0; i < len(c.middlewares); i++ {
		next = c.middlewares[i](next)
	}
	return next(ctx, pr)
}

func (c *Client) Do(req *model.Request) (*model.Response, error) {
	return c.CtxDo(context.Background(), req)
}

func (c *Client) roundTrip(ctx context.Context, req *PreparedRequest) (*model.Response, error) {
	route := dialer.RouteOf(req.U)
	d := c.getDialer()
	group := c.getPool()
	conn, err := group.Connect(ctx, netpool.ConnRequest{
		Route: route,
		Dial: func(ctx context.Context) (net.Conn, error) {
			return d.Dial(ctx, route)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", route, err)
	}
	cl := &call{ctx: ctx, req: req, conn: conn, logger: c.logger()}
	cl.exchange = exchange.New(cl, c.Listener, group.Pool(route), transport.NewHTTP1(conn))
	cl.start(c.Timeout)
	return cl.execute()
}

// call owns the single exchange of one request. It releases the connection
// once both directions reported completion.
type call struct {
	ctx      context.Context
	req      *PreparedRequest
	conn     *netpool.Conn
	exchange *exchange.Exchange
	logger   *zap.Logger

	mu           sync.Mutex
	requestOpen  bool
	responseOpen bool
	requestErr   error
	responseErr  error
	released     bool
	canceled     bool
	stopCtx      func() bool
	timer        *time.Timer
}

func (c *call) start(timeout time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requestOpen, c.responseOpen = true, true
	c.stopCtx = context.AfterFunc(c.ctx, c.cancel)
	if timeout > 0 {
		c.timer = time.AfterFunc(timeout, c.cancel)
	}
}

func (c *call) cancel() {
	c.mu.Lock()
	c.canceled = true
	c.mu.Unlock()
	c.exchange.Cancel()
}

func (c *call) IsCanceled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canceled
}

func (c *call) Request() *PreparedRequest { return c.req }

func (c *call) TimeoutEarlyExit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
	}
}

// reopen hands both directions to an upgraded socket, which reports them
// done once each of its halves is closed.
func (c *call) reopen() {
	c.mu.Lock()
	c.requestOpen, c.responseOpen = true, true
	c.requestErr, c.responseErr = nil, nil
	c.mu.Unlock()
}

// MessageDone records the completion of either direction. When a duplex
// request body fails after the response already failed, the response
// failure is surfaced instead.
func (c *call) MessageDone(e *exchange.Exchange, requestDone, responseDone bool, err error) error {
	if e != c.exchange {
		return err
	}
	c.mu.Lock()
	changed := false
	if requestDone && c.requestOpen {
		c.requestOpen, c.requestErr, changed = false, err, true
	}
	if responseDone && c.responseOpen {
		c.responseOpen, c.responseErr, changed = false, err, true
	}
	if err != nil && requestDone && !responseDone && c.responseErr != nil && e.IsDuplex() {
		err = c.responseErr
	}
	release := changed && !c.requestOpen && !c.responseOpen && !c.released
	if release {
		c.released = true
	}
	final := c.responseErr
	if final == nil {
		final = c.requestErr
	}
	c.mu.Unlock()

	if release {
		c.release(final)
	}
	return err
}

func (c *call) release(err error) {
	c.mu.Lock()
	if c.stopCtx != nil {
		c.stopCtx()
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	c.mu.Unlock()
	if err != nil {
		c.logger.Debug("call failed", zap.String("method", c.req.Method), zap.Stringer("url", c.req.U), zap.Error(err))
	}
	c.conn.Release(err)
}

// abort ends whatever direction is still open with err and releases the
// connection.
func (c *call) abort(err error) error {
	return c.MessageDone(c.exchange, true, true, err)
}

func (c *call) execute() (*model.Response, error) {
	e, req := c.exchange, c.req
	sentAt := time.Now()
	if err := e.WriteRequestHeaders(req); err != nil {
		return nil, c.abort(err)
	}

	var b *model.ResponseBuilder
	invokeStartEvent := true
	duplex := false
	if req.HasBody() {
		if req.ExpectsContinue() {
			if err := e.FlushRequest(); err != nil {
				return nil, c.abort(err)
			}
			e.ResponseHeadersStart()
			invokeStartEvent = false
			var err error
			if b, err = e.ReadResponseHeaders(true); err != nil {
				return nil, c.abort(err)
			}
		}
		switch {
		case b != nil:
			// refused before the body was sent, the connection is left
			// in an unknown state
			if err := e.NoRequestBody(); err != nil {
				return nil, c.abort(err)
			}
			e.NoNewExchangesOnConnection()
		case req.IsDuplex():
			duplex = true
			if err := e.FlushRequest(); err != nil {
				return nil, c.abort(err)
			}
			sink, err := e.CreateRequestBody(req, true)
			if err != nil {
				return nil, c.abort(err)
			}
			go func() {
				if err := c.writeBody(sink, true); err != nil {
					c.logger.Debug("duplex request body failed", zap.Error(err))
				}
			}()
		default:
			sink, err := e.CreateRequestBody(req, false)
			if err != nil {
				return nil, c.abort(err)
			}
			if err := c.writeBody(sink, false); err != nil {
				return nil, c.abort(err)
			}
		}
	} else if err := e.NoRequestBody(); err != nil {
		return nil, c.abort(err)
	}
	if !duplex {
		if err := e.FinishRequest(); err != nil {
			return nil, c.abort(err)
		}
	}

	if b == nil {
		if invokeStartEvent {
			e.ResponseHeadersStart()
		}
		var err error
		if b, err = e.ReadResponseHeaders(false); err != nil {
			return nil, c.abort(err)
		}
	}
	resp, err := c.build(b, sentAt)
	if err != nil {
		return nil, c.abort(err)
	}
	for isInterim(resp.Code()) {
		// the real response follows
		if b, err = e.ReadResponseHeaders(false); err != nil {
			return nil, c.abort(err)
		}
		if resp, err = c.build(b, sentAt); err != nil {
			return nil, c.abort(err)
		}
	}
	e.ResponseHeadersEnd(resp)

	code := resp.Code()
	if code == http.StatusSwitchingProtocols ||
		(req.Method == http.MethodConnect && resp.IsSuccessful()) {
		c.reopen()
		resp, err = resp.NewBuilder().Socket(e.UpgradeToSocket()).Build()
		if err != nil {
			return nil, c.abort(err)
		}
		return resp, nil
	}

	if connectionClose(req.Header.Values("Connection")) || connectionClose(resp.HeaderValues("Connection")) {
		e.NoNewExchangesOnConnection()
	}
	body, err := e.OpenResponseBody(resp)
	if err != nil {
		return nil, c.abort(err)
	}
	if resp, err = resp.NewBuilder().Body(body).Build(); err != nil {
		body.Close()
		return nil, err
	}
	if (code == http.StatusNoContent || code == http.StatusResetContent) && body.ContentLength() > 0 {
		body.Close()
		return nil, &exchange.ProtocolError{
			Op:  "read response body",
			Err: fmt.Errorf("HTTP %d had non-zero Content-Length: %d", code, body.ContentLength()),
		}
	}
	return resp, nil
}

func (c *call) build(b *model.ResponseBuilder, sentAt time.Time) (*model.Response, error) {
	return b.Request(c.req).
		Handshake(c.conn.Handshake()).
		SentRequestAt(sentAt).
		ReceivedResponseAt(time.Now()).
		Build()
}

// writeBody copies the request body into sink. Duplex bodies are flushed
// after every chunk so the peer sees them while the response streams.
func (c *call) writeBody(sink io.WriteCloser, duplex bool) error {
	body, err := c.req.GetBody()
	if err != nil {
		return c.exchange.BodyComplete(0, true, false, fmt.Errorf("open request body: %w", err))
	}
	defer body.Close()

	buf := make([]byte, 32*1024)
	var written int64
	for {
		n, rerr := body.Read(buf)
		if n > 0 {
			// sink failures are reported by the sink itself
			if _, err := sink.Write(buf[:n]); err != nil {
				return err
			}
			written += int64(n)
			if f, ok := sink.(interface{ Flush() error }); ok && duplex {
				if err := f.Flush(); err != nil {
					return err
				}
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			e := c.exchange
			e.NoNewExchangesOnConnection()
			return e.BodyComplete(written, true, false, fmt.Errorf("read request body: %w", rerr))
		}
	}
	return sink.Close()
}

func isInterim(code int) bool {
	return code == http.StatusContinue || (code >= 102 && code < 200)
}

func connectionClose(values []string) bool {
	return httpguts.HeaderValuesContainsToken(values, "close")
}
