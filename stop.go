package latency

import (
	"sync"
	"sync/atomic"
	"time"
)

// StopFlag is set once by the controller of a run and observed by every
// engine of that run. It is never reset.
type StopFlag struct {
	stopped atomic.Bool
	once    sync.Once
	done    chan struct{}
}

func NewStopFlag() *StopFlag {
	return &StopFlag{done: make(chan struct{})}
}

func (f *StopFlag) Stop() {
	f.once.Do(func() {
		f.stopped.Store(true)
		close(f.done)
	})
}

func (f *StopFlag) Stopped() bool {
	return f.stopped.Load()
}

// Done is closed once the flag is set.
func (f *StopFlag) Done() <-chan struct{} {
	return f.done
}

// Sleep pauses for d or until the flag is set. It returns false if the flag
// is set.
func (f *StopFlag) Sleep(d time.Duration) bool {
	if f.Stopped() {
		return false
	}
	if d <= 0 {
		return true
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return !f.Stopped()
	case <-f.done:
		return false
	}
}
