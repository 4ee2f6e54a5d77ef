package recorder

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/talostrading/latency/histlog"
	"github.com/talostrading/latency/latencyerrors"
	"github.com/talostrading/latency/metrics"
	"github.com/talostrading/latency/wire"
)

// Reasons a request is not recorded, as reported in metrics.
const (
	ReasonMissingBody = "missing_body"
	ReasonMalformed   = "malformed_body"
	ReasonParse       = "parse_error"
	ReasonUnknownCode = "unknown_client"
	ReasonClosed      = "closed"
)

type Option func(*Recorder)

func WithLogger(logger *log.Entry) Option {
	return func(r *Recorder) {
		r.log = logger
	}
}

// Recorder turns request bodies into latency samples, one histogram log per
// client type, all cloned from a master log.
type Recorder struct {
	mu     sync.Mutex
	byTag  map[string]*histlog.Log
	closed bool

	log *log.Entry
}

func New(master *histlog.Log, opts ...Option) *Recorder {
	r := &Recorder{
		byTag: map[string]*histlog.Log{wire.MasterTag: master},
		log:   log.WithField("thread", "recorder"),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.WithField("series", master.Series())
	return r
}

// Handle records the request in its raw form, headers included.
func (r *Recorder) Handle(request []byte, arrival time.Time) error {
	body, err := wire.Body(request)
	if err != nil {
		return r.reject(err, ReasonMissingBody, request)
	}
	return r.Record(body, arrival)
}

// Record decodes body and records the time elapsed between its send
// timestamp and arrival. Requests that cannot be decoded are logged and
// counted; the returned error is for diagnostics only.
func (r *Recorder) Record(body []byte, arrival time.Time) error {
	if len(body) == 0 {
		return r.reject(latencyerrors.ErrMissingBody, ReasonMissingBody, body)
	}

	code, sent, err := wire.DecodeTimestamp(body)
	if err != nil {
		reason := ReasonParse
		if errors.Is(err, latencyerrors.ErrMalformedBody) {
			reason = ReasonMalformed
		}
		return r.reject(err, reason, body)
	}

	tag, ok := wire.ClientTag(code)
	if !ok {
		return r.reject(
			errors.Wrapf(latencyerrors.ErrUnknownClientType, "code %d", code),
			ReasonUnknownCode,
			body,
		)
	}

	elapsed := elapsedNanos(arrival.UnixNano(), sent)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return r.reject(latencyerrors.ErrClosed, ReasonClosed, body)
	}

	hist, ok := r.byTag[tag]
	if !ok {
		r.log.WithFields(log.Fields{"tag": tag, "code": code}).Info("inserting new tag")
		hist = r.byTag[wire.MasterTag].Clone(tag)
		r.byTag[tag] = hist
	}
	hist.Record(elapsed)
	hist.CheckSend(arrival)
	r.mu.Unlock()

	metrics.RecordSample(tag)
	if r.log.Logger.IsLevelEnabled(log.TraceLevel) {
		r.log.WithFields(log.Fields{"sent": sent, "nanos": elapsed}).Trace("recorded request")
	}

	return nil
}

// elapsedNanos returns arrival - sent, clamped to zero when sent is later
// than arrival and saturated at math.MaxInt64 when the difference overflows.
func elapsedNanos(arrival, sent int64) int64 {
	if sent < 0 && arrival > math.MaxInt64+sent {
		return math.MaxInt64
	}
	if sent > 0 && arrival < math.MinInt64+sent {
		return 0
	}
	if elapsed := arrival - sent; elapsed > 0 {
		return elapsed
	}
	return 0
}

func (r *Recorder) reject(err error, reason string, slice []byte) error {
	metrics.RecordRejected(reason)
	r.log.WithError(err).WithField("slice", string(slice)).Error("could not record request")
	return err
}

// Tags returns the tags with a histogram log, master included, sorted.
func (r *Recorder) Tags() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	tags := make([]string, 0, len(r.byTag))
	for tag := range r.byTag {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Count returns the samples not yet flushed for tag.
func (r *Recorder) Count(tag string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if hist, ok := r.byTag[tag]; ok {
		return hist.TotalCount()
	}
	return 0
}

// Close flushes and closes every log, the master last. Records after Close
// are rejected.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	var first error
	for tag, hist := range r.byTag {
		if tag == wire.MasterTag {
			continue
		}
		if err := hist.Close(); err != nil && first == nil {
			first = err
		}
	}
	if err := r.byTag[wire.MasterTag].Close(); err != nil && first == nil {
		first = err
	}

	r.log.WithField("tags", len(r.byTag)).Info("recorder closed")

	return first
}
