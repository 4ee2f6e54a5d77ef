package wire

import (
	"fmt"
	"strconv"
)

// Request builds the fixed-shape POST sent by the client engines. The header
// prefix up to the Content-Length value is assembled once; Encode rewrites
// only what follows it. A Request is not safe for concurrent use.
type Request struct {
	code   int
	buf    [BufferSize]byte
	prefix int
	body   [64]byte
}

func NewRequest(code int, host string) *Request {
	r := &Request{code: code}

	prefix := fmt.Sprintf(
		"%s %s %s%sHost: %s%sUser-Agent: %s%sConnection: %s%sContent-Length: ",
		MethodPost, RequestPath, ProtoHttp11, CLRF,
		host, CLRF,
		UserAgent, CLRF,
		KeepAliveToken, CLRF,
	)
	if len(prefix) > BufferSize-len(HeaderTerminator)-2*len(r.body) {
		panic(fmt.Errorf("request header for host %q does not fit in %d bytes", host, BufferSize))
	}
	r.prefix = copy(r.buf[:], prefix)

	return r
}

// Encode returns the request carrying nanos as its send timestamp. The
// returned slice aliases the Request's buffer and is valid until the next
// call to Encode.
func (r *Request) Encode(nanos int64) []byte {
	body := AppendBody(r.body[:0], r.code, nanos)

	b := r.buf[:r.prefix]
	b = strconv.AppendInt(b, int64(len(body)), 10)
	b = append(b, HeaderTerminator...)
	b = append(b, body...)
	return b
}

func (r *Request) Code() int {
	return r.code
}

// AppendBody appends "<code> <nanos>" to b.
func AppendBody(b []byte, code int, nanos int64) []byte {
	b = strconv.AppendInt(b, int64(code), 10)
	b = append(b, ' ')
	b = strconv.AppendInt(b, nanos, 10)
	return b
}

// Encode is the allocating form of (*Request).Encode with the loopback host.
func Encode(code int, nanos int64) []byte {
	b := NewRequest(code, "localhost").Encode(nanos)
	return append([]byte(nil), b...)
}
