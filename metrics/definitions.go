package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const MetricsPrefix = "latency_"

var (
	clientRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricsPrefix + "client_requests_total",
			Help: "Number of requests fully round-tripped by a client engine",
		},
		[]string{"client"},
	)

	clientReconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricsPrefix + "client_reconnects_total",
			Help: "Number of connections a client engine dropped to connect again",
		},
		[]string{"client"},
	)

	clientConnectErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricsPrefix + "client_connect_errors_total",
			Help: "Number of failed connect or handshake attempts",
		},
		[]string{"client"},
	)

	recorderSamples = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricsPrefix + "recorder_samples_total",
			Help: "Number of latency samples recorded",
		},
		[]string{"tag"},
	)

	recorderRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricsPrefix + "recorder_rejected_total",
			Help: "Number of requests that could not be recorded",
		},
		[]string{"reason"},
	)

	histlogFlushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricsPrefix + "histlog_flushes_total",
			Help: "Number of histograms handed to an interval log writer",
		},
		[]string{"series", "tag"},
	)

	histlogWriteErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricsPrefix + "histlog_write_errors_total",
			Help: "Number of interval log records that could not be written",
		},
		[]string{"series"},
	)
)

// Client holds the counters of one engine, resolved once so the request
// path does not look up labels.
type Client struct {
	requests      prometheus.Counter
	reconnects    prometheus.Counter
	connectErrors prometheus.Counter
}

func NewClient(label string) *Client {
	return &Client{
		requests:      clientRequests.WithLabelValues(label),
		reconnects:    clientReconnects.WithLabelValues(label),
		connectErrors: clientConnectErrors.WithLabelValues(label),
	}
}

func (c *Client) RecordRequest() {
	c.requests.Inc()
}

func (c *Client) RecordReconnect() {
	c.reconnects.Inc()
}

func (c *Client) RecordConnectError() {
	c.connectErrors.Inc()
}

func RecordSample(tag string) {
	recorderSamples.WithLabelValues(tag).Inc()
}

func RecordRejected(reason string) {
	recorderRejected.WithLabelValues(reason).Inc()
}

func RecordFlush(series, tag string) {
	histlogFlushes.WithLabelValues(series, tag).Inc()
}

func RecordWriteError(series string) {
	histlogWriteErrors.WithLabelValues(series).Inc()
}
