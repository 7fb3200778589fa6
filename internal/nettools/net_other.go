//go:build !darwin && !linux

package nettools

import "syscall"

func pollReadable(syscall.RawConn) (bool, error) {
	return false, nil
}
