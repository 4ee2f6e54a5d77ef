package wire

import (
	"bytes"
	"strconv"

	"github.com/pkg/errors"

	"github.com/talostrading/latency/latencyerrors"
)

// Body returns everything after the first header terminator in request.
func Body(request []byte) ([]byte, error) {
	i := bytes.Index(request, []byte(HeaderTerminator))
	if i < 0 {
		return nil, latencyerrors.ErrMissingBody
	}
	body := request[i+len(HeaderTerminator):]
	if len(body) == 0 {
		return nil, latencyerrors.ErrMissingBody
	}
	return body, nil
}

// DecodeTimestamp splits a body of the form "<code> <nanos>".
func DecodeTimestamp(body []byte) (code int, nanos int64, err error) {
	i := bytes.IndexByte(body, ' ')
	if i < 0 {
		return 0, 0, latencyerrors.ErrMalformedBody
	}

	c, err := strconv.ParseUint(string(body[:i]), 10, 16)
	if err != nil {
		return 0, 0, errors.Wrapf(latencyerrors.ErrParse, "client code %q", body[:i])
	}

	nanos, err = strconv.ParseInt(string(body[i+1:]), 10, 64)
	if err != nil {
		return 0, 0, errors.Wrapf(latencyerrors.ErrParse, "timestamp %q", body[i+1:])
	}

	return int(c), nanos, nil
}

// Complete reports whether the header terminator appears anywhere in the
// bytes received so far.
func Complete(received []byte) bool {
	return bytes.Contains(received, []byte(HeaderTerminator))
}

// KeepAlive reports whether the literal keep-alive token appears anywhere in
// received. This is a substring heuristic and not header parsing: a body
// containing the token is taken as a keep-alive response as well.
func KeepAlive(received []byte) bool {
	return bytes.Contains(received, []byte(KeepAliveToken))
}
