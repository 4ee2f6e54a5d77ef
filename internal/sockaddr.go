//go:build darwin || netbsd || freebsd || openbsd || dragonfly || linux

package internal

import (
	"net"

	"golang.org/x/sys/unix"
)

func ToSockaddr(addr *net.TCPAddr) unix.Sockaddr {
	if ip4 := addr.IP.To4(); ip4 != nil {
		sa := &unix.SockaddrInet4{Port: addr.Port}
		copy(sa.Addr[:], ip4)
		return sa
	}

	sa := &unix.SockaddrInet6{Port: addr.Port}
	copy(sa.Addr[:], addr.IP.To16())
	if addr.Zone != "" {
		if iff, err := net.InterfaceByName(addr.Zone); err == nil {
			sa.ZoneId = uint32(iff.Index)
		}
	}
	return sa
}

func FromSockaddr(sockAddr unix.Sockaddr) net.Addr {
	switch addr := sockAddr.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{
			IP:   append([]byte{}, addr.Addr[:]...),
			Port: addr.Port,
		}
	case *unix.SockaddrInet6:
		tcpAddr := &net.TCPAddr{
			IP:   append([]byte{}, addr.Addr[:]...),
			Port: addr.Port,
		}
		if addr.ZoneId != 0 {
			if iff, err := net.InterfaceByIndex(int(addr.ZoneId)); err == nil {
				tcpAddr.Zone = iff.Name
			}
		}
		return tcpAddr
	default:
		return nil
	}
}
