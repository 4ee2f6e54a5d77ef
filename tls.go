package latency

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"os"

	pkgerrors "github.com/pkg/errors"

	"github.com/talostrading/latency/latencyerrors"
	"github.com/talostrading/latency/latencyopts"
	"github.com/talostrading/latency/wire"
)

// NewTLSConfig returns the client configuration of a TLS engine targeting
// addr. serverName defaults to the host part of addr. caFile, if set, replaces
// the system roots.
func NewTLSConfig(addr, serverName, caFile string, insecureSkipVerify bool) (*tls.Config, error) {
	if serverName == "" {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, pkgerrors.Wrapf(err, "invalid TLS target %s", addr)
		}
		serverName = host
	}

	cfg := &tls.Config{
		ServerName:         serverName,
		InsecureSkipVerify: insecureSkipVerify,
		MinVersion:         tls.VersionTLS12,
	}

	if caFile != "" {
		b, err := os.ReadFile(caFile)
		if err != nil {
			return nil, pkgerrors.Wrapf(err, "could not read CA file %s", caFile)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(b) {
			return nil, pkgerrors.Errorf("no certificates found in CA file %s", caFile)
		}
		cfg.RootCAs = pool
	}

	return cfg, nil
}

// TLSDialer opens TLS connections over nonblocking TCP sockets. The
// handshake is left to the engine.
type TLSDialer struct {
	Addr   string
	Config *tls.Config
	Opts   []latencyopts.Option
	// Stop, if set, cancels the handshake and write waits of the connections
	// it opens.
	Stop *StopFlag
}

func (d *TLSDialer) Dial() (Transport, error) {
	conn, err := dialFd(d.Addr, d.Stop, d.Opts)
	if err != nil {
		return nil, err
	}
	conn.waitWrites.Store(true)

	return &tlsTransport{
		raw:  conn,
		conn: tls.Client(conn, d.Config),
	}, nil
}

// NewTLSEngine returns an engine sending requests over TLS to addr.
func NewTLSEngine(addr string, cfg *tls.Config, stop *StopFlag, opts ...EngineOption) *Engine {
	opts = append([]EngineOption{
		WithClientCode(wire.CodeRawTLS),
		WithHost(addr),
	}, opts...)
	o := buildEngineOptions(opts)

	return newEngine(&TLSDialer{Addr: addr, Config: cfg, Opts: o.socketOpts, Stop: stop}, stop, o)
}

var (
	_ Transport  = &tlsTransport{}
	_ Handshaker = &tlsTransport{}
)

// tlsTransport runs the blocking crypto/tls handshake on a helper goroutine
// with its socket in wait mode and reports would-block until it completes.
// Afterwards reads are nonblocking and writes wait for the socket.
type tlsTransport struct {
	raw  *fdConn
	conn *tls.Conn

	started   bool
	completed bool
	done      chan struct{}
	err       error
}

func (t *tlsTransport) Handshake() error {
	if t.completed {
		return nil
	}

	if !t.started {
		t.started = true
		t.done = make(chan struct{})
		t.raw.waitReads.Store(true)

		go func() {
			defer close(t.done)
			t.err = t.conn.Handshake()
		}()
	}

	select {
	case <-t.done:
	default:
		return latencyerrors.ErrWouldBlock
	}

	if t.err != nil {
		return t.err
	}

	t.raw.waitReads.Store(false)
	t.completed = true
	return nil
}

func (t *tlsTransport) Read(b []byte) (int, error) {
	if !t.completed {
		return 0, latencyerrors.ErrWouldBlock
	}

	n, err := t.conn.Read(b)
	if err != nil && errors.Is(err, latencyerrors.ErrWouldBlock) {
		return n, latencyerrors.ErrWouldBlock
	}
	return n, err
}

func (t *tlsTransport) Write(b []byte) (int, error) {
	if !t.completed {
		return 0, latencyerrors.ErrWouldBlock
	}
	return t.conn.Write(b)
}

// Close interrupts a handshake in progress and waits for its goroutine
// before closing the socket.
func (t *tlsTransport) Close() error {
	if t.completed {
		return t.conn.Close()
	}
	if t.started {
		t.raw.abort()
		<-t.done
	}
	return t.raw.Close()
}

func (t *tlsTransport) ConnectionState() tls.ConnectionState {
	return t.conn.ConnectionState()
}
