package latencyopts

import "time"

type optionConnectTimeout struct {
	v time.Duration
}

// ConnectTimeout bounds how long a nonblocking connect may wait for the
// socket to become writable. It is not applied to the socket itself.
func ConnectTimeout(v time.Duration) Option {
	return &optionConnectTimeout{
		v: v,
	}
}

func (o *optionConnectTimeout) Type() OptionType {
	return TypeConnectTimeout
}

func (o *optionConnectTimeout) Value() interface{} {
	return o.v
}
