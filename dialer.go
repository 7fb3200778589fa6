package http

import (
	"github.com/frankli0324/go-http/internal/dialer"
	"github.com/frankli0324/go-http/internal/event"
	"github.com/frankli0324/go-http/internal/netpool"
)

// Dialers are responsible for creating underlying streams that http requests could
// be written to and responses could be read from. for example, opening a raw TCP
// connection for HTTP/1.1 requests.
//
// Unlike [net/http.Transport], A Dialer MUST NOT hold active connection states,
// which means a Dialer must be able to be swapped out from a [Client] without
// pain. Like [net/http.Transport], it SHOULD hold the connection related configs
// like *[net/tls.Config].
type Dialer = dialer.Dialer

// CoreDialer is the default implementation of the [Dialer] interface. It would
// be used by a zero value [Client].
type CoreDialer = dialer.CoreDialer

// PoolGroup keeps idle connections per route. Clients may share one through
// [Client.UsePool].
type PoolGroup = netpool.PoolGroup

func NewPoolGroup(maxConnsPerHost, maxIdlePerHost uint) *PoolGroup {
	return netpool.NewGroup(maxConnsPerHost, maxIdlePerHost)
}

var (
	NewLoggingListener = event.NewLogger
	NewMetricsListener = event.NewMetrics
)

// MultiListener fans events out to every listener in order.
type MultiListener = event.Multi
