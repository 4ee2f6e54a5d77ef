package latency

import (
	"github.com/talostrading/latency/latencyopts"
	"github.com/talostrading/latency/wire"
)

// TCPDialer opens plain nonblocking TCP connections.
type TCPDialer struct {
	Addr string
	Opts []latencyopts.Option
	// Stop, if set, cancels waits on the connections it opens.
	Stop *StopFlag
}

func (d *TCPDialer) Dial() (Transport, error) {
	conn, err := dialFd(d.Addr, d.Stop, d.Opts)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// NewTCPEngine returns an engine sending raw TCP requests to addr.
func NewTCPEngine(addr string, stop *StopFlag, opts ...EngineOption) *Engine {
	opts = append([]EngineOption{
		WithClientCode(wire.CodeRawTCP),
		WithHost(addr),
	}, opts...)
	o := buildEngineOptions(opts)

	return newEngine(&TCPDialer{Addr: addr, Opts: o.socketOpts, Stop: stop}, stop, o)
}
