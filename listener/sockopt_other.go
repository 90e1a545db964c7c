//go:build !unix

package listener

import "syscall"

func socketControl(bool) func(network, address string, c syscall.RawConn) error {
	return nil
}
