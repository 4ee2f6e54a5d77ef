package latency

import (
	"errors"
	"net"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/talostrading/latency/internal"
	"github.com/talostrading/latency/latencyerrors"
	"github.com/talostrading/latency/latencyopts"
)

// waitPollInterval bounds a single wait for readiness so that an abort is
// observed promptly.
const waitPollInterval = 10 * time.Millisecond

var errWouldBlock net.Error = wouldBlockError{}

// wouldBlockError is a temporary net.Error. crypto/tls keeps the partially
// read record and stays usable after such an error.
type wouldBlockError struct{}

func (wouldBlockError) Error() string   { return latencyerrors.ErrWouldBlock.Error() }
func (wouldBlockError) Timeout() bool   { return true }
func (wouldBlockError) Temporary() bool { return true }
func (wouldBlockError) Unwrap() error   { return latencyerrors.ErrWouldBlock }

var _ net.Conn = &fdConn{}

// fdConn is a net.Conn over a nonblocking socket. Reads and writes either
// return would-block or, in wait mode, poll the socket until they can make
// progress or the connection is aborted.
type fdConn struct {
	fd     int
	local  net.Addr
	remote net.Addr

	waitReads  atomic.Bool
	waitWrites atomic.Bool
	aborted    atomic.Bool
	closed     atomic.Bool

	// stop, if set, ends waits once it is stopped.
	stop *StopFlag
}

func dialFd(addr string, stop *StopFlag, opts []latencyopts.Option) (*fdConn, error) {
	opts = append([]latencyopts.Option{latencyopts.NoDelay(true)}, opts...)

	fd, local, remote, err := internal.ConnectTCP("tcp", addr, opts...)
	if err != nil {
		return nil, err
	}

	return &fdConn{
		fd:     fd,
		local:  local,
		remote: remote,
		stop:   stop,
	}, nil
}

func (c *fdConn) Read(b []byte) (int, error) {
	for {
		if c.aborted.Load() || c.closed.Load() {
			return 0, latencyerrors.ErrClosed
		}

		n, err := internal.Read(c.fd, b)
		if err == nil || !errors.Is(err, latencyerrors.ErrWouldBlock) {
			return n, err
		}
		if !c.waitReads.Load() {
			return 0, errWouldBlock
		}
		if err := c.wait(unix.POLLIN); err != nil {
			return 0, err
		}
	}
}

// Write returns would-block together with the number of bytes written when
// the socket buffer fills up, unless writes are in wait mode. A wait ends
// with latencyerrors.ErrCancelled once the connection's StopFlag is stopped.
func (c *fdConn) Write(b []byte) (n int, err error) {
	for n < len(b) {
		if c.aborted.Load() || c.closed.Load() {
			return n, latencyerrors.ErrClosed
		}

		m, err := internal.Write(c.fd, b[n:])
		n += m
		if err == nil {
			continue
		}
		if !errors.Is(err, latencyerrors.ErrWouldBlock) {
			return n, err
		}
		if !c.waitWrites.Load() {
			return n, errWouldBlock
		}
		if err := c.wait(unix.POLLOUT); err != nil {
			return n, err
		}
	}
	return n, nil
}

func (c *fdConn) wait(events int16) error {
	if c.stop != nil && c.stop.Stopped() {
		return latencyerrors.ErrCancelled
	}
	if _, err := internal.Poll(c.fd, events, waitPollInterval); err != nil {
		return os.NewSyscallError("poll", err)
	}
	return nil
}

// abort makes pending and future waits return. The socket stays open.
func (c *fdConn) abort() {
	c.aborted.Store(true)
}

func (c *fdConn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := unix.Close(c.fd); err != nil {
		return os.NewSyscallError("close", err)
	}
	return nil
}

func (c *fdConn) RawFd() int {
	return c.fd
}

func (c *fdConn) LocalAddr() net.Addr {
	return c.local
}

func (c *fdConn) RemoteAddr() net.Addr {
	return c.remote
}

// Deadlines do not apply: the engine never blocks on the socket.

func (c *fdConn) SetDeadline(time.Time) error      { return nil }
func (c *fdConn) SetReadDeadline(time.Time) error  { return nil }
func (c *fdConn) SetWriteDeadline(time.Time) error { return nil }
