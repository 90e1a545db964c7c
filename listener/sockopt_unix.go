//go:build unix

package listener

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// socketControl sets SO_REUSEADDR, and SO_BROADCAST when asked, before bind.
func socketControl(broadcast bool) func(network, address string, c syscall.RawConn) error {
	return func(_, _ string, c syscall.RawConn) error {
		var opErr error
		err := c.Control(func(fd uintptr) {
			opErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			if opErr == nil && broadcast {
				opErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
			}
		})
		if err != nil {
			return err
		}
		return opErr
	}
}
