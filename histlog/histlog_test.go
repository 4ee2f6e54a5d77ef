package histlog

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/bytebufferpool"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

func newTestLog(t *testing.T, clock *fakeClock) (*Log, string) {
	dir := filepath.Join(t.TempDir(), "hist")
	l, err := New(
		dir,
		"test_series",
		"master",
		time.Second,
		WithClock(clock.Now),
		WithProcessStart(time.Unix(1_600_000_000, 0)),
	)
	require.NoError(t, err)
	return l, dir
}

func readLog(t *testing.T, path string) []*hdrhistogram.Histogram {
	b, err := os.ReadFile(path)
	require.NoError(t, err)

	r := hdrhistogram.NewHistogramLogReader(bytes.NewReader(b))

	var hists []*hdrhistogram.Histogram
	for {
		h, err := r.NextIntervalHistogram()
		require.NoError(t, err)
		if h == nil {
			return hists
		}
		hists = append(hists, h)
	}
}

func TestNewCreatesFile(t *testing.T) {
	l, dir := newTestLog(t, newFakeClock())

	path := filepath.Join(dir, "test_series-interval-log-1600000000.v2z")
	assert.Equal(t, path, l.Path())
	assert.Equal(t, "test_series", l.Series())
	assert.Equal(t, "master", l.Tag())
	assert.Equal(t, time.Second, l.Freq())

	require.NoError(t, l.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "#[Histogram log format version"))
	assert.True(t, strings.HasPrefix(lines[1], "#[StartTime: 1700000000 "))
	assert.Equal(t, "#"+baseTimeComment, lines[2])
	assert.True(t, strings.HasPrefix(lines[3], `"StartTimestamp"`))
}

func TestNewInvalid(t *testing.T) {
	_, err := New(t.TempDir(), "s", "master", 0)
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = New(filepath.Join(file, "sub"), "s", "master", time.Second)
	assert.Error(t, err)
}

func TestRecordSaturates(t *testing.T) {
	l, _ := newTestLog(t, newFakeClock())
	defer l.Close()

	l.Record(-10)
	l.Record(HighestTrackableValue * 2)
	l.Record(1_000)

	assert.Equal(t, int64(3), l.TotalCount())
	assert.Equal(t, int64(0), l.hist.Min())
	assert.True(t, l.hist.ValuesAreEquivalent(HighestTrackableValue, l.hist.Max()))
}

func TestCheckSend(t *testing.T) {
	clock := newFakeClock()
	l, _ := newTestLog(t, clock)

	l.Record(100)

	assert.False(t, l.CheckSend(clock.Now()))
	assert.False(t, l.CheckSend(clock.Now().Add(-time.Second)))
	assert.False(t, l.CheckSend(clock.Advance(999*time.Millisecond)))
	assert.Equal(t, int64(1), l.TotalCount())

	assert.True(t, l.CheckSend(clock.Advance(time.Millisecond)))
	assert.Zero(t, l.TotalCount())

	// The flush clock restarts at the last flush.
	assert.False(t, l.CheckSend(clock.Advance(500*time.Millisecond)))
	assert.True(t, l.CheckSend(clock.Advance(2*time.Second)))

	require.NoError(t, l.Close())

	hists := readLog(t, l.Path())
	require.Len(t, hists, 2)

	assert.Equal(t, "master", hists[0].Tag())
	assert.Equal(t, int64(1), hists[0].TotalCount())
	assert.Equal(t, int64(1_700_000_000_000), hists[0].StartTimeMs())
	assert.Equal(t, int64(1_700_000_001_000), hists[0].EndTimeMs())

	assert.Zero(t, hists[1].TotalCount())
	assert.Equal(t, int64(1_700_000_001_000), hists[1].StartTimeMs())
	assert.Equal(t, int64(1_700_000_003_500), hists[1].EndTimeMs())
}

func TestCloneSharesWriter(t *testing.T) {
	clock := newFakeClock()
	master, _ := newTestLog(t, clock)

	tcp := master.Clone("raw-tcp")
	tls := master.CloneWithFreq("raw-tcp+tls", 10*time.Second)

	assert.Equal(t, master.Path(), tcp.Path())
	assert.Equal(t, "raw-tcp", tcp.Tag())
	assert.Equal(t, time.Second, tcp.Freq())
	assert.Equal(t, 10*time.Second, tls.Freq())

	for i := 0; i < 10; i++ {
		tcp.Record(int64(i+1) * 1_000)
	}
	tls.Record(5_000_000)

	clock.Advance(2 * time.Second)
	assert.True(t, tcp.CheckSend(clock.Now()))
	assert.False(t, tls.CheckSend(clock.Now()))

	// Closing the master first must not stop the writer for its clones.
	require.NoError(t, master.Close())
	tcp.Record(42)
	require.NoError(t, tcp.Close())
	require.NoError(t, tls.Close())

	counts := make(map[string]int64)
	for _, h := range readLog(t, master.Path()) {
		counts[h.Tag()] += h.TotalCount()
	}
	assert.Equal(t, map[string]int64{"raw-tcp": 11, "raw-tcp+tls": 1}, counts)
}

func TestCloneOfClosedLogPanics(t *testing.T) {
	l, _ := newTestLog(t, newFakeClock())
	require.NoError(t, l.Close())

	assert.Panics(t, func() { l.Clone("x") })
}

func TestCloseIdempotent(t *testing.T) {
	l, _ := newTestLog(t, newFakeClock())
	l.Record(1)

	require.NoError(t, l.Close())
	require.NoError(t, l.Close())

	assert.Len(t, readLog(t, l.Path()), 1)
}

func TestCloseWithoutSamplesDoesNotFlush(t *testing.T) {
	l, _ := newTestLog(t, newFakeClock())
	require.NoError(t, l.Close())

	assert.Empty(t, readLog(t, l.Path()))
}

func TestReset(t *testing.T) {
	clock := newFakeClock()
	l, _ := newTestLog(t, clock)
	defer l.Close()

	l.Record(1)
	clock.Advance(900 * time.Millisecond)
	l.Reset()

	assert.Zero(t, l.TotalCount())
	assert.False(t, l.CheckSend(clock.Advance(500*time.Millisecond)))
	assert.True(t, l.CheckSend(clock.Advance(500*time.Millisecond)))
}

func TestAppendRecord(t *testing.T) {
	h := newHistogram()
	require.NoError(t, h.RecordValue(int64(2*time.Millisecond)))

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	start := time.Unix(1_700_000_000, 250_000_000)
	require.NoError(t, appendRecord(buf, Entry{
		Tag:   "a tag,with separators",
		Start: start,
		End:   start.Add(1500 * time.Millisecond),
		Hist:  h,
	}))

	line := buf.String()
	assert.True(t, strings.HasPrefix(line, "Tag=a_tag_with_separators,1700000000.250,1.500,2.001,HIST"), line)
	assert.True(t, strings.HasSuffix(line, "\n"))
}

func TestMailbox(t *testing.T) {
	m := newMailbox()

	assert.True(t, m.push(Entry{Tag: "a"}))
	assert.True(t, m.push(Entry{Tag: "b"}))

	batch, closed := m.drain(nil)
	assert.False(t, closed)
	require.Len(t, batch, 2)
	assert.Equal(t, "a", batch[0].Tag)
	assert.Equal(t, "b", batch[1].Tag)

	assert.True(t, m.push(Entry{Tag: "c"}))
	m.close()
	assert.False(t, m.push(Entry{Tag: "d"}))

	batch, closed = m.drain(batch)
	assert.True(t, closed)
	require.Len(t, batch, 1)
	assert.Equal(t, "c", batch[0].Tag)

	select {
	case <-m.wake:
	default:
		t.Fatal("mailbox did not wake its consumer")
	}
}
