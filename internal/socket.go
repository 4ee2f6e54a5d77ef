//go:build darwin || netbsd || freebsd || openbsd || dragonfly || linux

package internal

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/talostrading/latency/latencyerrors"
	"github.com/talostrading/latency/latencyopts"
)

var errUnknownNetwork = errors.New("unknown network argument")

func CreateSocket(addr *net.TCPAddr) (int, error) {
	domain := unix.AF_INET
	if addr.IP.To4() == nil && len(addr.IP) == net.IPv6len {
		domain = unix.AF_INET6
	}

	fd, err := unix.Socket(domain, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, os.NewSyscallError("socket", err)
	}
	unix.CloseOnExec(fd)

	return fd, nil
}

// ConnectTCP opens a nonblocking TCP socket to addr. The connect itself is
// nonblocking; the call waits at most the connect timeout found in opts for
// the socket to become writable and then reads back the connect result.
func ConnectTCP(
	network, addr string,
	opts ...latencyopts.Option,
) (fd int, localAddr, remoteAddr net.Addr, err error) {
	switch network {
	case "tcp", "tcp4", "tcp6":
	default:
		return -1, nil, nil, errUnknownNetwork
	}

	tcpAddr, err := net.ResolveTCPAddr(network, addr)
	if err != nil {
		return -1, nil, nil, err
	}
	if tcpAddr.IP == nil {
		tcpAddr.IP = net.IPv4(127, 0, 0, 1)
	}
	remoteAddr = tcpAddr

	fd, err = CreateSocket(tcpAddr)
	if err != nil {
		return -1, nil, nil, err
	}

	opts = latencyopts.AddOption(
		latencyopts.Nonblocking(true),
		append([]latencyopts.Option(nil), opts...),
	)
	if err = ApplyOpts(fd, opts...); err != nil {
		unix.Close(fd)
		return -1, nil, nil, err
	}

	err = unix.Connect(fd, ToSockaddr(tcpAddr))
	if err != nil {
		// https://man7.org/linux/man-pages/man2/connect.2.html#EINPROGRESS
		if err != unix.EINPROGRESS && err != unix.EAGAIN && err != unix.EINTR {
			unix.Close(fd)
			return -1, nil, nil, connectError(err)
		}

		ready, err := Poll(fd, unix.POLLOUT, latencyopts.ConnectTimeoutFrom(opts))
		if err != nil {
			unix.Close(fd)
			return -1, nil, nil, os.NewSyscallError("poll", err)
		}
		if !ready {
			unix.Close(fd)
			return -1, nil, nil, latencyerrors.ErrTimeout
		}

		errno, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
		if err != nil {
			unix.Close(fd)
			return -1, nil, nil, os.NewSyscallError("getsockopt", err)
		}
		if errno != 0 {
			unix.Close(fd)
			return -1, nil, nil, connectError(unix.Errno(errno))
		}
	}

	localAddr, err = SocketAddress(fd)
	if err != nil {
		unix.Close(fd)
		return -1, nil, nil, err
	}

	return fd, localAddr, remoteAddr, nil
}

func connectError(err error) error {
	if err == unix.ECONNREFUSED {
		return latencyerrors.ErrConnRefused
	}
	return os.NewSyscallError("connect", err)
}

func ApplyOpts(fd int, opts ...latencyopts.Option) error {
	for _, opt := range opts {
		switch t := opt.Type(); t {
		case latencyopts.TypeNonblocking:
			v := opt.Value().(bool)
			if err := unix.SetNonblock(fd, v); err != nil {
				return os.NewSyscallError(fmt.Sprintf("set_nonblock(%v)", v), err)
			}
		case latencyopts.TypeNoDelay:
			v := opt.Value().(bool)
			iv := 0
			if v {
				iv = 1
			}

			if err := unix.SetsockoptInt(
				fd,
				unix.IPPROTO_TCP,
				unix.TCP_NODELAY,
				iv,
			); err != nil {
				return os.NewSyscallError(fmt.Sprintf("tcp_no_delay(%v)", v), err)
			}
		case latencyopts.TypeConnectTimeout:
			// consumed by ConnectTCP
		default:
			return fmt.Errorf("unsupported socket option %s", t)
		}
	}

	return nil
}

// Poll waits up to timeout for events on fd. It reports whether fd is ready.
// An interrupted wait is reported as not ready.
func Poll(fd int, events int16, timeout time.Duration) (bool, error) {
	fds := []unix.PollFd{{Fd: int32(fd), Events: events}}
	n, err := unix.Poll(fds, int(timeout.Milliseconds()))
	if err != nil {
		if err == unix.EINTR {
			return false, nil
		}
		return false, err
	}
	return n > 0, nil
}

// Read reads from a nonblocking fd. No data available maps to
// latencyerrors.ErrWouldBlock and an orderly shutdown by the peer to io.EOF.
func Read(fd int, b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}

	n, err := unix.Read(fd, b)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR {
			return 0, latencyerrors.ErrWouldBlock
		}
		return 0, os.NewSyscallError("read", err)
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// Write writes to a nonblocking fd and may write fewer than len(b) bytes.
// A full socket send buffer maps to latencyerrors.ErrWouldBlock.
func Write(fd int, b []byte) (int, error) {
	n, err := unix.Write(fd, b)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR {
			return 0, latencyerrors.ErrWouldBlock
		}
		return 0, os.NewSyscallError("write", err)
	}
	return n, nil
}

func SocketAddress(fd int) (net.Addr, error) {
	addr, err := unix.Getsockname(fd)
	if err != nil {
		return nil, os.NewSyscallError("getsockname", err)
	}
	return FromSockaddr(addr), nil
}

func IsNonblocking(fd int) (bool, error) {
	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFL, 0)
	if err != nil {
		return false, os.NewSyscallError("fcntl", err)
	}
	return flags&unix.O_NONBLOCK == unix.O_NONBLOCK, nil
}
