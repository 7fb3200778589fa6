package netpool

import (
	"context"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/frankli0324/go-http/internal/exchange"
)

type ConnRequest struct {
	Route exchange.Route
	Dial  func(ctx context.Context) (net.Conn, error)
}

type PoolGroup struct {
	sync.RWMutex
	pools map[exchange.Route]*Pool

	maxConnsPerHost, maxIdlePerHost uint
	MaxIdleDuration                 time.Duration
	Logger                          *zap.Logger
}

func NewGroup(maxConnsPerHost, maxIdlePerHost uint) *PoolGroup {
	return &PoolGroup{
		pools:           map[exchange.Route]*Pool{},
		maxConnsPerHost: maxConnsPerHost, maxIdlePerHost: maxIdlePerHost,
	}
}

// NewEmpty returns a group with the same limits and no connections.
func (g *PoolGroup) NewEmpty() *PoolGroup {
	n := NewGroup(g.maxConnsPerHost, g.maxIdlePerHost)
	n.MaxIdleDuration, n.Logger = g.MaxIdleDuration, g.Logger
	return n
}

// Pool returns the pool for route, creating it on first use.
func (g *PoolGroup) Pool(route exchange.Route) *Pool {
	g.RLock()
	p, ok := g.pools[route]
	g.RUnlock()
	if ok {
		return p
	}
	g.Lock()
	if p, ok = g.pools[route]; !ok {
		p = NewPool(route, g.maxIdlePerHost, g.maxConnsPerHost, g.Logger)
		p.maxIdleDuration = g.MaxIdleDuration
		g.pools[route] = p
	}
	g.Unlock()
	return p
}

func (g *PoolGroup) Connect(ctx context.Context, req ConnRequest) (*Conn, error) {
	return g.Pool(req.Route).Connect(ctx, req.Dial)
}
