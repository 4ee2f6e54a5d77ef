package histlog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/valyala/bytebufferpool"

	"github.com/talostrading/latency/metrics"
)

// FileSuffix is the extension of compressed interval log files.
const FileSuffix = ".v2z"

// baseTimeComment fixes the base time of every log to the Unix epoch, so
// record start offsets are absolute.
const baseTimeComment = "[BaseTime: 0.000 (seconds since epoch)]"

var tagReplacer = strings.NewReplacer(",", "_", " ", "_", "\r", "_", "\n", "_")

// FileName returns the interval log file name of a series.
func FileName(series string, processStart time.Time) string {
	return fmt.Sprintf("%s-interval-log-%d%s", series, processStart.Unix(), FileSuffix)
}

// writer serializes the entries of one series to its interval log file on a
// dedicated goroutine. It is shared by every Log of the series and stops once
// the last of them is closed.
type writer struct {
	series string
	path   string
	file   *os.File
	start  time.Time

	mailbox *mailbox
	done    chan struct{}
	err     error

	mu   sync.Mutex
	refs int

	log *log.Entry
}

func newWriter(dir, series string, o options) (*writer, error) {
	path := filepath.Join(dir, FileName(series, o.processStart))

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "could not create interval log %s", path)
	}

	w := &writer{
		series:  series,
		path:    path,
		file:    file,
		start:   o.now(),
		mailbox: newMailbox(),
		done:    make(chan struct{}),
		refs:    1,
		log:     o.logger.WithFields(log.Fields{"thread": "histlog-" + series, "series": series}),
	}

	if err := w.writeHeader(); err != nil {
		file.Close()
		return nil, errors.Wrapf(err, "could not write header of interval log %s", path)
	}

	go w.run()

	w.log.WithField("path", path).Info("interval log writer started")

	return w, nil
}

func (w *writer) writeHeader() error {
	lw := hdrhistogram.NewHistogramLogWriter(w.file)
	if err := lw.OutputLogFormatVersion(); err != nil {
		return err
	}
	if err := lw.OutputStartTime(w.start.UnixMilli()); err != nil {
		return err
	}
	if err := lw.OutputComment(baseTimeComment); err != nil {
		return err
	}
	return lw.OutputLegend()
}

func (w *writer) run() {
	defer close(w.done)

	var (
		batch  []Entry
		closed bool
	)
	for !closed {
		<-w.mailbox.wake

		batch, closed = w.mailbox.drain(batch)
		for i := range batch {
			w.write(batch[i])
			batch[i] = Entry{}
		}
	}

	if err := w.file.Sync(); err != nil {
		w.err = errors.Wrapf(err, "could not sync interval log %s", w.path)
	}
	if err := w.file.Close(); err != nil && w.err == nil {
		w.err = errors.Wrapf(err, "could not close interval log %s", w.path)
	}

	w.log.Info("interval log writer stopped")
}

func (w *writer) write(e Entry) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	if err := appendRecord(buf, e); err != nil {
		w.log.WithError(err).WithField("tag", e.Tag).Error("could not encode histogram")
		metrics.RecordWriteError(w.series)
		return
	}

	if _, err := w.file.Write(buf.B); err != nil {
		w.log.WithError(err).WithField("tag", e.Tag).Error("could not write interval log record")
		metrics.RecordWriteError(w.series)
		return
	}

	w.log.WithFields(log.Fields{
		"tag":   e.Tag,
		"count": e.Hist.TotalCount(),
	}).Trace("wrote interval log record")
}

// appendRecord formats e as one interval log line: tag, start offset from the
// epoch and interval length in seconds, max in milliseconds and the V2
// compressed histogram.
func appendRecord(buf *bytebufferpool.ByteBuffer, e Entry) error {
	payload, err := e.Hist.Encode(hdrhistogram.V2CompressedEncodingCookieBase)
	if err != nil {
		return err
	}

	fmt.Fprintf(
		buf,
		"Tag=%s,%.3f,%.3f,%.3f,",
		tagReplacer.Replace(e.Tag),
		float64(e.Start.UnixNano())/1e9,
		e.Duration().Seconds(),
		float64(e.Hist.Max())/hdrhistogram.MsToNsRatio,
	)
	buf.Write(payload)
	buf.WriteByte('\n')

	return nil
}

func (w *writer) send(e Entry) bool {
	return w.mailbox.push(e)
}

func (w *writer) acquire() {
	w.mu.Lock()
	w.refs++
	w.mu.Unlock()
}

// release drops one reference. The last one closes the mailbox and waits for
// the goroutine to drain it.
func (w *writer) release() error {
	w.mu.Lock()
	w.refs--
	last := w.refs == 0
	w.mu.Unlock()

	if !last {
		return nil
	}

	w.mailbox.close()
	<-w.done
	return w.err
}
