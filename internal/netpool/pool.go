package netpool

import (
	"context"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/frankli0324/go-http/internal/exchange"
)

type Pool struct {
	sync.Mutex
	route                  exchange.Route
	connTicket, idleTicket chan struct{}
	idle                   []*Conn

	maxIdleDuration time.Duration
	logger          *zap.Logger
}

func NewPool(route exchange.Route, maxIdle, maxConn uint, logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		route:      route,
		connTicket: make(chan struct{}, maxConn),
		idleTicket: make(chan struct{}, maxIdle),
		logger:     logger,
	}
}

// Route is the address every connection of the pool leads to.
func (p *Pool) Route() exchange.Route { return p.route }

// Connect blocks until the pool has room for one more connection in use,
// then reuses a healthy idle connection or dials a new one.
func (p *Pool) Connect(ctx context.Context, dial func(ctx context.Context) (net.Conn, error)) (*Conn, error) {
	select {
	case p.connTicket <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	for {
		select {
		case <-p.idleTicket:
			p.Lock()
			c := p.idle[0]
			p.idle = p.idle[1:]
			p.Unlock()
			if p.maxIdleDuration != 0 && time.Since(c.LastIdle) > p.maxIdleDuration {
				c.Close()
			} else if c.IsHealthy() {
				return c, nil
			} else {
				p.logger.Debug("netpool: discarding unhealthy connection", zap.Stringer("route", p.route))
				c.Close()
			}
		default:
			raw, err := dial(ctx)
			if err != nil {
				<-p.connTicket
				return nil, err
			}
			return newConn(p, raw), nil
		}
	}
}

func (p *Pool) Release(c *Conn) {
	<-p.connTicket
	if !c.Reusable() {
		c.Close()
		return
	}
	select {
	case p.idleTicket <- struct{}{}:
		c.LastIdle = time.Now()
		p.Lock()
		p.idle = append(p.idle, c)
		p.Unlock()
	default:
		c.Close()
	}
}

// IdleCount is the number of connections waiting for reuse.
func (p *Pool) IdleCount() int {
	p.Lock()
	defer p.Unlock()
	return len(p.idle)
}
