package wire

const (
	ProtoHttp11 = "HTTP/1.1"
	MethodPost  = "POST"

	// RequestPath is the path every generated request is sent to. The
	// recorder accepts bodies on any path.
	RequestPath = "/latency/"

	CLRF = "\r\n"

	// HeaderTerminator ends the header block of requests and responses. It
	// is the decode boundary for the body and the completion marker for
	// responses.
	HeaderTerminator = CLRF + CLRF

	// KeepAliveToken is searched for in responses to decide whether the
	// connection can carry the next request.
	KeepAliveToken = "keep-alive"

	// BufferSize is the size of the send and receive buffers of an engine.
	BufferSize = 512
)

// Version is reported in the User-Agent of generated requests.
const Version = "0.1.0"

const UserAgent = "latency-client/v" + Version
