//go:build linux

package netscheme

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// bindInterface pins sockets to the named device with SO_BINDTODEVICE.
func bindInterface(nd *net.Dialer, name string) {
	nd.Control = func(_, _ string, c syscall.RawConn) error {
		var bindErr error
		if err := c.Control(func(fd uintptr) {
			bindErr = unix.BindToDevice(int(fd), name)
		}); err != nil {
			return err
		}
		return bindErr
	}
}
