package wire

import "sort"

const (
	CodeTest   = 0
	CodeRawTCP = 11
	CodeRawTLS = 12

	// MasterTag is the tag of the log every client-type log is cloned from.
	MasterTag = "master"
)

var clientTags = map[int]string{
	0:  "test",
	1:  "loop-rw",
	2:  "hyper-tls",
	3:  "chttp-openssl-none",
	4:  "chttp-wolfssl-none",
	5:  "chttp-wolfssl-DES-CBC3-SHA",
	6:  "chttp-wolfssl-AES128-SHA",
	7:  "chttp-wolfssl-AES256-SHA",
	8:  "chttp-wolfssl-ECDHE-RSA-AES128-SHA",
	9:  "chttp-wolfssl-ECDHE-RSA-AES256-SHA",
	10: "hyper-http-via-stunnel",
	11: "raw-tcp",
	12: "raw-tcp+tls",
}

// ClientTag returns the histogram tag of a client-type code.
func ClientTag(code int) (string, bool) {
	tag, ok := clientTags[code]
	return tag, ok
}

// ClientCodes returns the registered codes in ascending order.
func ClientCodes() []int {
	codes := make([]int, 0, len(clientTags))
	for code := range clientTags {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	return codes
}
