package latencyopts

import (
	"fmt"
	"time"
)

type OptionType uint8

type Option interface {
	Type() OptionType
	Value() interface{}
}

const (
	TypeNonblocking OptionType = iota
	TypeNoDelay
	TypeConnectTimeout
	MaxOption
)

func (t OptionType) String() string {
	switch t {
	case TypeNonblocking:
		return "nonblocking"
	case TypeNoDelay:
		return "no_delay"
	case TypeConnectTimeout:
		return "connect_timeout"
	default:
		panic(fmt.Errorf("invalid option %d", t))
	}
}

// AddOption replaces the option of the same type in opts, or appends add.
func AddOption(add Option, opts []Option) []Option {
	for i, cur := range opts {
		if cur.Type() == add.Type() {
			opts[i] = add
			return opts
		}
	}
	opts = append(opts, add)
	return opts
}

// DefaultConnectTimeout bounds the wait for a nonblocking connect to resolve.
const DefaultConnectTimeout = time.Second

// ConnectTimeoutFrom returns the last connect timeout in opts, or the default.
func ConnectTimeoutFrom(opts []Option) time.Duration {
	timeout := DefaultConnectTimeout
	for _, opt := range opts {
		if opt.Type() == TypeConnectTimeout {
			timeout = opt.Value().(time.Duration)
		}
	}
	return timeout
}
