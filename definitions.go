package latency

import (
	"io"
	"time"

	"github.com/talostrading/latency/wire"
)

const (
	// BufferSize is the size of an engine's send and receive buffers.
	BufferSize = wire.BufferSize

	// HeartbeatEvery is the number of completed requests between two
	// heartbeat logs of an engine.
	HeartbeatEvery = 1000

	// DefaultReconnectBackoff is the pause after a failed connect or
	// handshake.
	DefaultReconnectBackoff = time.Second
)

// Transport is a connection driven by an engine without blocking.
//
// Read and Write return latencyerrors.ErrWouldBlock when no progress can be
// made right now; the engine retries them. Write may write fewer than len(b)
// bytes. Read returns io.EOF once the peer closed the connection.
type Transport interface {
	io.ReadWriteCloser
}

// Handshaker is implemented by transports that must complete a handshake
// before carrying requests. Handshake returns latencyerrors.ErrWouldBlock
// while the handshake is in progress and nil once it completed.
type Handshaker interface {
	Handshake() error
}

// Dialer opens a new Transport to the engine's target.
type Dialer interface {
	Dial() (Transport, error)
}

type State uint8

const (
	StateConnecting State = iota
	StateHandshaking
	StateSending
	StateReceiving
	StateDone
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateSending:
		return "sending"
	case StateReceiving:
		return "receiving"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}
