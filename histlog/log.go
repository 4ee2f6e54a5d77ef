package histlog

import (
	"os"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/talostrading/latency/metrics"
)

const (
	LowestTrackableValue  = 1
	HighestTrackableValue = int64(time.Hour)
	SignificantFigures    = 3

	DefaultFlushInterval = time.Second
)

func newHistogram() *hdrhistogram.Histogram {
	return hdrhistogram.New(LowestTrackableValue, HighestTrackableValue, SignificantFigures)
}

// Log records latencies for one tag of a series and periodically hands its
// histogram to the series' interval log writer. A Log is not safe for
// concurrent use.
type Log struct {
	series string
	tag    string
	freq   time.Duration

	hist *hdrhistogram.Histogram
	last time.Time

	writer *writer
	now    func() time.Time
	closed bool

	log *log.Entry
}

// New creates dir if needed, opens the interval log of series in it and
// returns the first Log of the series.
func New(dir, series, tag string, freq time.Duration, opts ...Option) (*Log, error) {
	if freq <= 0 {
		return nil, errors.Errorf("invalid flush interval %s", freq)
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "could not create histogram directory %s", dir)
	}

	w, err := newWriter(dir, series, o)
	if err != nil {
		return nil, err
	}

	return &Log{
		series: series,
		tag:    tag,
		freq:   freq,
		hist:   newHistogram(),
		last:   o.now(),
		writer: w,
		now:    o.now,
		log:    w.log.WithField("tag", tag),
	}, nil
}

// Clone returns a Log for tag sharing the series and writer of l.
func (l *Log) Clone(tag string) *Log {
	return l.CloneWithFreq(tag, l.freq)
}

// CloneWithFreq is Clone with a different flush interval. It must not be
// called on a closed Log.
func (l *Log) CloneWithFreq(tag string, freq time.Duration) *Log {
	if l.closed {
		panic("histlog: clone of closed log " + l.series + "/" + l.tag)
	}

	l.writer.acquire()

	return &Log{
		series: l.series,
		tag:    tag,
		freq:   freq,
		hist:   newHistogram(),
		last:   l.now(),
		writer: l.writer,
		now:    l.now,
		log:    l.writer.log.WithField("tag", tag),
	}
}

// Record adds v nanoseconds to the active histogram. Negative values count as
// zero and values beyond the trackable range as the highest trackable value.
func (l *Log) Record(v int64) {
	if v < 0 {
		v = 0
	} else if v > HighestTrackableValue {
		v = HighestTrackableValue
	}
	if err := l.hist.RecordValue(v); err != nil {
		l.log.WithError(err).WithField("value", v).Warn("could not record value")
	}
}

// CheckSend flushes the active histogram if at least the flush interval has
// passed since the last flush. It reports whether it flushed.
func (l *Log) CheckSend(now time.Time) bool {
	if !now.After(l.last) || now.Sub(l.last) < l.freq {
		return false
	}
	l.flush(now)
	return true
}

func (l *Log) flush(now time.Time) {
	retired := l.hist
	l.hist = newHistogram()

	retired.SetTag(l.tag)
	retired.SetStartTimeMs(l.last.UnixMilli())
	retired.SetEndTimeMs(now.UnixMilli())

	e := Entry{
		Tag:   l.tag,
		Start: l.last,
		End:   now,
		Hist:  retired,
	}
	l.last = now

	if !l.writer.send(e) {
		l.log.Warn("interval log writer is closed, dropping histogram")
		return
	}

	metrics.RecordFlush(l.series, l.tag)
	l.log.WithField("count", retired.TotalCount()).Debug("flushed histogram")
}

// Reset discards the samples of the active histogram and restarts the flush
// interval.
func (l *Log) Reset() {
	l.hist.Reset()
	l.last = l.now()
}

// Close flushes any unsent samples and releases the writer. Closing the last
// Log of a series waits for the writer to finish the file.
func (l *Log) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true

	if l.hist.TotalCount() > 0 {
		l.flush(l.now())
	}

	return l.writer.release()
}

func (l *Log) Series() string {
	return l.series
}

func (l *Log) Tag() string {
	return l.tag
}

func (l *Log) Freq() time.Duration {
	return l.freq
}

// Path returns the interval log file the Log writes to.
func (l *Log) Path() string {
	return l.writer.path
}

// TotalCount returns the number of samples in the active histogram.
func (l *Log) TotalCount() int64 {
	return l.hist.TotalCount()
}
