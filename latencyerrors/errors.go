package latencyerrors

import "errors"

var (
	ErrWouldBlock  = errors.New("operation would block")
	ErrCancelled   = errors.New("operation cancelled")
	ErrTimeout     = errors.New("operation timed out")
	ErrClosed      = errors.New("use of closed resource")
	ErrConnRefused = errors.New("connection refused") // a connect() on a stream socket found no one listening on the remote address
	ErrBufferFull  = errors.New("receive buffer full before response terminator")

	// Request decoding. None of these are ever reported to the peer.
	ErrMissingBody       = errors.New("missing request body")
	ErrMalformedBody     = errors.New("malformed body: no separator between client code and timestamp")
	ErrParse             = errors.New("could not parse integer")
	ErrUnknownClientType = errors.New("unknown client type code")
)
