//go:build !linux

package netscheme

import (
	"fmt"
	"net"
	"syscall"
)

// bindInterface binds to the first address of the named device when no
// local address was chosen explicitly.
func bindInterface(nd *net.Dialer, name string) {
	if nd.LocalAddr != nil {
		return
	}
	ifi, err := net.InterfaceByName(name)
	if err != nil {
		nd.Control = failControl(err)
		return
	}
	addrs, err := ifi.Addrs()
	if err != nil {
		nd.Control = failControl(err)
		return
	}
	for _, a := range addrs {
		if ipnet, ok := a.(*net.IPNet); ok {
			nd.LocalAddr = &net.TCPAddr{IP: ipnet.IP}
			return
		}
	}
	nd.Control = failControl(fmt.Errorf("netscheme: interface %s has no address", name))
}

func failControl(err error) func(string, string, syscall.RawConn) error {
	return func(string, string, syscall.RawConn) error { return err }
}
