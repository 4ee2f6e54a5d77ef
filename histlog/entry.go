package histlog

import (
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Entry is a retired histogram on its way to the interval log. It is built
// by a flush and must not be modified once handed to the writer.
type Entry struct {
	Tag   string
	Start time.Time
	End   time.Time
	Hist  *hdrhistogram.Histogram
}

func (e Entry) Duration() time.Duration {
	return e.End.Sub(e.Start)
}
