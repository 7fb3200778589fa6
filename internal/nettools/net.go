// package nettools inspects sockets below the net.Conn abstraction.
package nettools

import (
	"net"
	"syscall"
)

// IsReadable reports whether a read on c would return without blocking,
// without reading anything. Connections that do not expose a file
// descriptor are never reported readable.
func IsReadable(c net.Conn) (bool, error) {
	rc := connToFD(c)
	if rc == nil {
		return false, nil
	}
	return pollReadable(rc)
}

func connToFD(raw net.Conn) syscall.RawConn {
	if t, ok := raw.(interface{ NetConn() net.Conn }); ok {
		// is *tls.Conn or polyfilled TLS Connection
		raw = t.NetConn()
	}
	if c, ok := raw.(syscall.Conn); ok {
		if c, err := c.SyscallConn(); err == nil {
			return c
		}
	}
	return nil
}
