package recorder

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	log "github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talostrading/latency/histlog"
	"github.com/talostrading/latency/latencyerrors"
	"github.com/talostrading/latency/wire"
)

func newRecorder(t *testing.T, freq time.Duration) (*Recorder, string) {
	master, err := histlog.New(t.TempDir(), "test_server", wire.MasterTag, freq)
	require.NoError(t, err)
	return New(master), master.Path()
}

func body(code int, nanos int64) []byte {
	return []byte(fmt.Sprintf("%d %d", code, nanos))
}

func readCounts(t *testing.T, path string) map[string]int64 {
	b, err := os.ReadFile(path)
	require.NoError(t, err)

	r := hdrhistogram.NewHistogramLogReader(bytes.NewReader(b))
	counts := make(map[string]int64)
	for {
		h, err := r.NextIntervalHistogram()
		require.NoError(t, err)
		if h == nil {
			return counts
		}
		counts[h.Tag()] += h.TotalCount()
	}
}

func TestRecord(t *testing.T) {
	rec, path := newRecorder(t, time.Hour)

	arrival := time.Unix(1_700_000_000, 0)
	sent := arrival.Add(-250 * time.Microsecond).UnixNano()

	require.NoError(t, rec.Record(body(wire.CodeRawTCP, sent), arrival))
	require.NoError(t, rec.Record(body(wire.CodeRawTCP, sent), arrival))
	require.NoError(t, rec.Record(body(wire.CodeRawTLS, sent), arrival))

	assert.Equal(t, []string{"master", "raw-tcp", "raw-tcp+tls"}, rec.Tags())
	assert.Equal(t, int64(2), rec.Count("raw-tcp"))
	assert.Equal(t, int64(1), rec.Count("raw-tcp+tls"))
	assert.Zero(t, rec.Count(wire.MasterTag))
	assert.Zero(t, rec.Count("unknown"))

	require.NoError(t, rec.Close())

	assert.Equal(t, map[string]int64{"raw-tcp": 2, "raw-tcp+tls": 1}, readCounts(t, path))
}

func TestRecordClampsClockSkew(t *testing.T) {
	rec, path := newRecorder(t, time.Hour)

	arrival := time.Unix(1_700_000_000, 0)
	require.NoError(t, rec.Record(body(wire.CodeTest, arrival.Add(time.Second).UnixNano()), arrival))
	require.NoError(t, rec.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	h, err := hdrhistogram.NewHistogramLogReader(bytes.NewReader(b)).NextIntervalHistogram()
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, int64(1), h.TotalCount())
	assert.Equal(t, int64(0), h.Max())
}

func TestRecordSaturatesOverflow(t *testing.T) {
	rec, path := newRecorder(t, time.Hour)

	arrival := time.Unix(1_700_000_000, 0)
	require.NoError(t, rec.Record([]byte(fmt.Sprintf("%d %d", wire.CodeRawTCP, int64(math.MinInt64))), arrival))
	require.NoError(t, rec.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	h, err := hdrhistogram.NewHistogramLogReader(bytes.NewReader(b)).NextIntervalHistogram()
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, int64(1), h.TotalCount())
	assert.True(t, h.ValuesAreEquivalent(histlog.HighestTrackableValue, h.Max()))
}

func TestElapsedNanos(t *testing.T) {
	assert.Equal(t, int64(5_000_000), elapsedNanos(1_005_000_000, 1_000_000_000))
	assert.Equal(t, int64(0), elapsedNanos(1_000_000_000, 1_005_000_000))
	assert.Equal(t, int64(0), elapsedNanos(math.MinInt64, math.MaxInt64))
	assert.Equal(t, int64(math.MaxInt64), elapsedNanos(1, math.MinInt64))
	assert.Equal(t, int64(math.MaxInt64), elapsedNanos(math.MaxInt64, -1))
	assert.Equal(t, int64(math.MaxInt64), elapsedNanos(math.MaxInt64-1, -1))
}

func TestRecordRejects(t *testing.T) {
	rec, _ := newRecorder(t, time.Hour)
	defer rec.Close()

	arrival := time.Now()

	assert.ErrorIs(t, rec.Record(nil, arrival), latencyerrors.ErrMissingBody)
	assert.ErrorIs(t, rec.Record([]byte("1234"), arrival), latencyerrors.ErrMalformedBody)
	assert.ErrorIs(t, rec.Record([]byte("abc 1234"), arrival), latencyerrors.ErrParse)
	assert.ErrorIs(t, rec.Record([]byte("11 abc"), arrival), latencyerrors.ErrParse)
	assert.ErrorIs(t, rec.Record([]byte("99 1234"), arrival), latencyerrors.ErrUnknownClientType)

	assert.Equal(t, []string{"master"}, rec.Tags())
}

func TestHandle(t *testing.T) {
	rec, _ := newRecorder(t, time.Hour)
	defer rec.Close()

	arrival := time.Now()

	require.NoError(t, rec.Handle(wire.Encode(wire.CodeRawTLS, arrival.UnixNano()), arrival))
	assert.Equal(t, int64(1), rec.Count("raw-tcp+tls"))

	err := rec.Handle([]byte("POST /latency/ HTTP/1.1\r\nContent-Length: 0\r\n\r\n"), arrival)
	assert.ErrorIs(t, err, latencyerrors.ErrMissingBody)
}

func TestRecordFlushesOnInterval(t *testing.T) {
	rec, path := newRecorder(t, 100*time.Millisecond)

	start := time.Now()
	require.NoError(t, rec.Record(body(wire.CodeRawTCP, start.UnixNano()), start))
	assert.Equal(t, int64(1), rec.Count("raw-tcp"))

	later := start.Add(time.Second)
	require.NoError(t, rec.Record(body(wire.CodeRawTCP, later.UnixNano()), later))

	// The second sample is recorded before the flush check, so both leave
	// with the same histogram.
	assert.Zero(t, rec.Count("raw-tcp"))

	require.NoError(t, rec.Close())
	assert.Equal(t, map[string]int64{"raw-tcp": 2}, readCounts(t, path))
}

func TestCloseRejectsLaterRecords(t *testing.T) {
	rec, _ := newRecorder(t, time.Hour)

	require.NoError(t, rec.Close())
	require.NoError(t, rec.Close())

	now := time.Now()
	assert.ErrorIs(t, rec.Record(body(wire.CodeRawTCP, now.UnixNano()), now), latencyerrors.ErrClosed)
}

func TestRecordConcurrent(t *testing.T) {
	rec, path := newRecorder(t, 10*time.Millisecond)

	var wg sync.WaitGroup
	for _, code := range []int{wire.CodeRawTCP, wire.CodeRawTLS, 1, 2} {
		wg.Add(1)
		go func(code int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				now := time.Now()
				assert.NoError(t, rec.Record(body(code, now.Add(-time.Microsecond).UnixNano()), now))
			}
		}(code)
	}
	wg.Wait()

	require.NoError(t, rec.Close())

	counts := readCounts(t, path)
	assert.Equal(t, map[string]int64{
		"raw-tcp":     500,
		"raw-tcp+tls": 500,
		"loop-rw":     500,
		"hyper-tls":   500,
	}, counts)
}

func TestRecordElapsed(t *testing.T) {
	rec, path := newRecorder(t, time.Hour)

	sent := time.Unix(1_700_000_000, 0)
	arrival := sent.Add(5 * time.Millisecond)
	require.NoError(t, rec.Record(body(wire.CodeRawTCP, sent.UnixNano()), arrival))
	require.NoError(t, rec.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)

	h, err := hdrhistogram.NewHistogramLogReader(bytes.NewReader(b)).NextIntervalHistogram()
	require.NoError(t, err)
	require.NotNil(t, h)

	assert.Equal(t, "raw-tcp", h.Tag())
	assert.Equal(t, int64(1), h.TotalCount())
	assert.True(t, h.ValuesAreEquivalent(5_000_000, h.ValueAtQuantile(50)))
}

func TestRecordTraceLogging(t *testing.T) {
	master, err := histlog.New(t.TempDir(), "test_server", wire.MasterTag, time.Hour)
	require.NoError(t, err)

	logger, hook := logtest.NewNullLogger()
	rec := New(master, WithLogger(log.NewEntry(logger)))
	defer rec.Close()

	arrival := time.Now()

	logger.SetLevel(log.InfoLevel)
	require.NoError(t, rec.Record(body(wire.CodeRawTCP, arrival.UnixNano()), arrival))
	for _, entry := range hook.AllEntries() {
		assert.NotEqual(t, "recorded request", entry.Message)
	}

	logger.SetLevel(log.TraceLevel)
	hook.Reset()
	require.NoError(t, rec.Record(body(wire.CodeRawTCP, arrival.UnixNano()), arrival))
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "recorded request", hook.LastEntry().Message)
	assert.Equal(t, log.TraceLevel, hook.LastEntry().Level)
}
