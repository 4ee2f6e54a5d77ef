package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestClient(t *testing.T) {
	c := NewClient("test-client")

	c.RecordRequest()
	c.RecordRequest()
	c.RecordReconnect()
	c.RecordConnectError()

	assert.Equal(t, 2.0, testutil.ToFloat64(clientRequests.WithLabelValues("test-client")))
	assert.Equal(t, 1.0, testutil.ToFloat64(clientReconnects.WithLabelValues("test-client")))
	assert.Equal(t, 1.0, testutil.ToFloat64(clientConnectErrors.WithLabelValues("test-client")))
}

func TestRecorder(t *testing.T) {
	RecordSample("test-tag")
	RecordRejected("test-reason")
	RecordFlush("test-series", "test-tag")
	RecordWriteError("test-series")

	assert.Equal(t, 1.0, testutil.ToFloat64(recorderSamples.WithLabelValues("test-tag")))
	assert.Equal(t, 1.0, testutil.ToFloat64(recorderRejected.WithLabelValues("test-reason")))
	assert.Equal(t, 1.0, testutil.ToFloat64(histlogFlushes.WithLabelValues("test-series", "test-tag")))
	assert.Equal(t, 1.0, testutil.ToFloat64(histlogWriteErrors.WithLabelValues("test-series")))
}
