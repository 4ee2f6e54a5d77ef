package histlog

import (
	"time"

	log "github.com/sirupsen/logrus"
)

// ProcessStart names the interval log files of this process.
var ProcessStart = time.Now()

type Option func(*options)

type options struct {
	processStart time.Time
	now          func() time.Time
	logger       *log.Entry
}

func defaultOptions() options {
	return options{
		processStart: ProcessStart,
		now:          time.Now,
		logger:       log.NewEntry(log.StandardLogger()),
	}
}

// WithProcessStart overrides the time used to name the log file.
func WithProcessStart(t time.Time) Option {
	return func(o *options) {
		o.processStart = t
	}
}

// WithClock replaces time.Now as the source of flush and start times.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func WithLogger(logger *log.Entry) Option {
	return func(o *options) {
		o.logger = logger
	}
}
