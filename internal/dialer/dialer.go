package dialer

import (
	"context"
	"crypto/tls"
	"net"
	"net/url"
	"time"

	"github.com/frankli0324/go-http/internal/exchange"
)

// Dialers open the raw connections the pool hands to exchanges. Unlike
// [net/http.Transport], a Dialer MUST NOT hold active connection states,
// which means a Dialer must be able to be swapped out from a Client
// without pain.
type Dialer interface {
	Dial(ctx context.Context, route exchange.Route) (net.Conn, error)
}

type CoreDialer struct {
	TLSConfig *tls.Config // the config to use
	Timeout   time.Duration
}

func (d *CoreDialer) Clone() *CoreDialer {
	return &CoreDialer{
		TLSConfig: d.TLSConfig.Clone(),
		Timeout:   d.Timeout,
	}
}

var schemes = map[string]string{
	"http": "80", "https": "443",
}

// RouteOf derives the route a request URL leads to.
func RouteOf(u *url.URL) exchange.Route {
	addr, port := u.Host, schemes[u.Scheme]
	if add, prt, err := net.SplitHostPort(addr); err == nil {
		addr, port = add, prt
	}
	return exchange.Route{Scheme: u.Scheme, Host: addr, Port: port}
}

var zeroDialer net.Dialer

func (d *CoreDialer) Dial(ctx context.Context, route exchange.Route) (net.Conn, error) {
	dialer := &zeroDialer
	if d.Timeout != 0 {
		dialer = &net.Dialer{Timeout: d.Timeout}
	}
	conn, err := dialer.DialContext(ctx, "tcp", route.Address())
	if err != nil {
		return nil, err
	}
	if route.Scheme != "https" {
		return conn, nil
	}
	config := d.TLSConfig.Clone()
	if config == nil {
		config = &tls.Config{}
	}
	if config.ServerName == "" {
		config.ServerName = route.Host
	}
	config.NextProtos = []string{"http/1.1"}
	c := tls.Client(conn, config)
	if err := c.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}
