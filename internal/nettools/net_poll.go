//go:build darwin || linux

package nettools

import (
	"syscall"

	"golang.org/x/sys/unix"
)

func pollReadable(rc syscall.RawConn) (readable bool, err error) {
	// It's annoying that golang docs didn't specify whether the
	// control action will be executed if error occurrs
	// however according to the source code errors would only
	// happen before the control action
	cerr := rc.Control(func(fd uintptr) {
		fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
		var n int
		for {
			n, err = unix.Poll(fds, 0)
			if err != unix.EINTR {
				break
			}
		}
		readable = n > 0 && fds[0].Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0
	})
	if cerr != nil {
		return false, cerr
	}
	return readable, err
}
