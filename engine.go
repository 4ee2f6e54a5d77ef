package latency

import (
	"errors"
	"runtime"
	"strconv"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/talostrading/latency/latencyerrors"
	"github.com/talostrading/latency/metrics"
	"github.com/talostrading/latency/util"
	"github.com/talostrading/latency/wire"
)

// Engine drives one sender against one target: it connects, sends a
// timestamped request, waits for the response and either reuses the
// connection or connects again, until its StopFlag is set.
//
// An Engine is driven by a single goroutine through Step or Run.
type Engine struct {
	dialer Dialer
	stop   *StopFlag
	opts   engineOptions

	state     State
	transport Transport

	request *wire.Request
	pending []byte

	recv  [BufferSize]byte
	nrecv int

	sent       atomic.Uint64
	reconnects atomic.Uint64
	burst      uint64

	metrics *metrics.Client
	log     *log.Entry
}

func NewEngine(dialer Dialer, stop *StopFlag, opts ...EngineOption) *Engine {
	return newEngine(dialer, stop, buildEngineOptions(opts))
}

func newEngine(dialer Dialer, stop *StopFlag, o engineOptions) *Engine {
	if o.label == "" {
		if tag, ok := wire.ClientTag(o.code); ok {
			o.label = tag
		} else {
			o.label = strconv.Itoa(o.code)
		}
	}
	if o.logger == nil {
		o.logger = log.WithField("thread", "engine-"+o.label)
	}

	return &Engine{
		dialer:  dialer,
		stop:    stop,
		opts:    o,
		state:   StateConnecting,
		request: wire.NewRequest(o.code, o.host),
		metrics: metrics.NewClient(o.label),
		log:     o.logger.WithFields(log.Fields{"addr": o.host, "code": o.code}),
	}
}

// Step performs one unit of work and returns the resulting state. A set
// StopFlag moves the engine to StateDone at the next step.
func (e *Engine) Step() State {
	if e.state == StateDone {
		return e.state
	}
	if e.stop.Stopped() {
		e.finish()
		return e.state
	}

	switch e.state {
	case StateConnecting:
		e.connect()
	case StateHandshaking:
		e.handshake()
	case StateSending:
		e.send()
	case StateReceiving:
		e.receive()
	}

	return e.state
}

func (e *Engine) connect() {
	t, err := e.dialer.Dial()
	if err != nil {
		e.metrics.RecordConnectError()
		e.log.WithError(err).Warn("could not connect")
		e.backoff()
		return
	}

	e.log.Debug("connected")

	e.transport = t
	e.burst = 0
	e.pending = nil
	e.nrecv = 0

	if _, ok := t.(Handshaker); ok {
		e.state = StateHandshaking
	} else {
		e.state = StateSending
	}
}

func (e *Engine) handshake() {
	err := e.transport.(Handshaker).Handshake()
	switch {
	case err == nil:
		e.log.Debug("handshake completed")
		e.state = StateSending
	case errors.Is(err, latencyerrors.ErrWouldBlock):
		runtime.Gosched()
	case errors.Is(err, latencyerrors.ErrCancelled):
		e.finish()
	default:
		e.metrics.RecordConnectError()
		e.log.WithError(err).Warn("handshake failed")
		e.closeTransport()
		e.state = StateConnecting
		e.backoff()
	}
}

func (e *Engine) send() {
	if e.pending == nil {
		e.pending = e.request.Encode(e.opts.now().UnixNano())
	}

	n, err := e.transport.Write(e.pending)
	e.pending = e.pending[n:]
	if err != nil && !errors.Is(err, latencyerrors.ErrWouldBlock) {
		e.drop(err, "could not write request")
		return
	}

	if len(e.pending) == 0 {
		e.pending = nil
		e.nrecv = 0
		e.state = StateReceiving
	}
}

func (e *Engine) receive() {
	n, err := e.transport.Read(e.recv[e.nrecv:])
	e.nrecv += n
	if err != nil && !errors.Is(err, latencyerrors.ErrWouldBlock) {
		e.drop(err, "could not read response")
		return
	}
	if n == 0 {
		return
	}

	received := e.recv[:e.nrecv]
	if !wire.Complete(received) {
		if e.nrecv == len(e.recv) {
			e.drop(latencyerrors.ErrBufferFull, "could not read response")
		}
		return
	}
	keepAlive := wire.KeepAlive(received)
	e.nrecv = 0

	sent := e.sent.Add(1)
	e.burst++
	e.metrics.RecordRequest()

	if sent%HeartbeatEvery == 0 {
		e.log.WithFields(log.Fields{
			"n_sent": util.FormatCount(sent),
			"burst":  e.burst,
		}).Info("heartbeat")
	}

	if e.opts.throttle > 0 && !e.stop.Sleep(e.opts.throttle) {
		e.finish()
		return
	}

	if keepAlive {
		e.state = StateSending
		return
	}

	e.log.WithField("burst", e.burst).Debug("connection not kept alive")
	e.reconnect()
}

// drop abandons the current connection after a read or write error. The
// engine connects again without backing off, unless the error is a
// cancelled wait.
func (e *Engine) drop(err error, msg string) {
	if errors.Is(err, latencyerrors.ErrCancelled) {
		e.finish()
		return
	}
	e.log.WithError(err).WithField("burst", e.burst).Info(msg)
	e.reconnect()
}

func (e *Engine) reconnect() {
	e.closeTransport()
	e.reconnects.Add(1)
	e.metrics.RecordReconnect()
	e.state = StateConnecting
}

func (e *Engine) backoff() {
	if !e.stop.Sleep(e.opts.backoff) {
		e.finish()
	}
}

func (e *Engine) closeTransport() {
	if e.transport == nil {
		return
	}
	if err := e.transport.Close(); err != nil {
		e.log.WithError(err).Debug("could not close connection")
	}
	e.transport = nil
	e.pending = nil
	e.nrecv = 0
}

func (e *Engine) finish() {
	e.closeTransport()
	e.state = StateDone
}

// Run steps the engine on the calling goroutine until it is done and returns
// the number of requests that completed a round trip.
func (e *Engine) Run() uint64 {
	runtime.LockOSThread()

	pinned := false
	if len(e.opts.cpus) > 0 {
		if err := util.PinTo(e.opts.cpus...); err != nil {
			e.log.WithError(err).Warn("could not pin engine thread")
		} else {
			pinned = true
			e.log.WithField("cpus", e.opts.cpus).Info("pinned engine thread")
		}
	}
	// A pinned thread exits with the goroutine instead of returning to the
	// scheduler with its affinity.
	if !pinned {
		defer runtime.UnlockOSThread()
	}

	e.log.Info("engine started")

	for e.Step() != StateDone {
	}

	n := e.Sent()
	e.log.WithFields(log.Fields{
		"n_sent":     util.FormatCount(n),
		"reconnects": e.Reconnects(),
	}).Info("engine stopped")

	return n
}

// Start runs the engine on its own goroutine. The returned channel yields
// the result of Run.
func (e *Engine) Start() <-chan uint64 {
	done := make(chan uint64, 1)
	go func() {
		done <- e.Run()
	}()
	return done
}

// State is only meaningful on the goroutine driving the engine.
func (e *Engine) State() State {
	return e.state
}

func (e *Engine) Sent() uint64 {
	return e.sent.Load()
}

func (e *Engine) Reconnects() uint64 {
	return e.reconnects.Load()
}

func (e *Engine) Label() string {
	return e.opts.label
}
