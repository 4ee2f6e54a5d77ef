package latency

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/talostrading/latency/latencyopts"
	"github.com/talostrading/latency/wire"
)

type EngineOption func(*engineOptions)

type engineOptions struct {
	code       int
	host       string
	throttle   time.Duration
	backoff    time.Duration
	now        func() time.Time
	logger     *log.Entry
	label      string
	cpus       []int
	socketOpts []latencyopts.Option
}

func defaultEngineOptions() engineOptions {
	return engineOptions{
		code:    wire.CodeTest,
		host:    "localhost",
		backoff: DefaultReconnectBackoff,
		now:     time.Now,
	}
}

func buildEngineOptions(opts []EngineOption) engineOptions {
	o := defaultEngineOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithClientCode sets the client-type code carried by every request.
func WithClientCode(code int) EngineOption {
	return func(o *engineOptions) {
		o.code = code
	}
}

// WithHost sets the Host header of every request.
func WithHost(host string) EngineOption {
	return func(o *engineOptions) {
		o.host = host
	}
}

// WithThrottle pauses the engine for d after each completed request.
func WithThrottle(d time.Duration) EngineOption {
	return func(o *engineOptions) {
		o.throttle = d
	}
}

func WithReconnectBackoff(d time.Duration) EngineOption {
	return func(o *engineOptions) {
		o.backoff = d
	}
}

// WithClock replaces time.Now as the source of send timestamps.
func WithClock(now func() time.Time) EngineOption {
	return func(o *engineOptions) {
		o.now = now
	}
}

func WithLogger(logger *log.Entry) EngineOption {
	return func(o *engineOptions) {
		o.logger = logger
	}
}

// WithLabel names the engine in logs and metrics. It defaults to the tag of
// the client code.
func WithLabel(label string) EngineOption {
	return func(o *engineOptions) {
		o.label = label
	}
}

// WithCPUs pins the engine's thread to cpus.
func WithCPUs(cpus ...int) EngineOption {
	return func(o *engineOptions) {
		o.cpus = cpus
	}
}

// WithSocketOptions adds options applied to every socket the engine opens.
func WithSocketOptions(opts ...latencyopts.Option) EngineOption {
	return func(o *engineOptions) {
		o.socketOpts = append(o.socketOpts, opts...)
	}
}
