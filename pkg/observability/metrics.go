package observability

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// maxDatumsPerPut is the PutMetricData batch ceiling
const maxDatumsPerPut = 500

// CloudWatchAPI is the slice of the CloudWatch client the metrics flusher uses
type CloudWatchAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Metrics records feed and API metrics into a Prometheus registry and,
// when a CloudWatch client is configured, buffers the same observations
// for periodic PutMetricData flushes.
type Metrics struct {
	registry *prometheus.Registry

	FeedRequests   *prometheus.CounterVec
	FeedDuration   *prometheus.HistogramVec
	FeedItems      prometheus.Histogram
	SignalFailures *prometheus.CounterVec
	AuditDrops     *prometheus.CounterVec
	QueryDuration  *prometheus.HistogramVec
	HTTPRequests   *prometheus.CounterVec
	HTTPDuration   *prometheus.HistogramVec

	namespace  string
	cloudwatch CloudWatchAPI
	logger     *zap.Logger

	mu      sync.Mutex
	pending []types.MetricDatum
	now     func() time.Time
}

// NewMetrics creates a metrics instance with its own registry.
// cw may be nil, in which case only Prometheus is fed.
func NewMetrics(namespace string, cw CloudWatchAPI, logger *zap.Logger) *Metrics {
	registry := prometheus.NewRegistry()

	feedRequests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "feedrank",
			Name:      "feed_requests_total",
			Help:      "Total number of generated feeds",
		},
		[]string{"algorithm", "fallback"},
	)

	feedDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "feedrank",
			Name:      "feed_duration_seconds",
			Help:      "Feed generation duration in seconds",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2, 5},
		},
		[]string{"algorithm"},
	)

	feedItems := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "feedrank",
			Name:      "feed_items",
			Help:      "Number of posts returned per feed",
			Buckets:   []float64{0, 1, 5, 10, 20, 50, 100},
		},
	)

	signalFailures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "feedrank",
			Name:      "signal_failures_total",
			Help:      "Signal lookups that degraded to their neutral value",
		},
		[]string{"signal"},
	)

	auditDrops := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "feedrank",
			Name:      "audit_dropped_total",
			Help:      "Signal audit rows discarded",
		},
		[]string{"reason"},
	)

	queryDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "feedrank",
			Name:      "query_duration_seconds",
			Help:      "Query bus handler duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"query", "status"},
	)

	httpRequests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "feedrank",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "feedrank",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	registry.MustRegister(
		feedRequests,
		feedDuration,
		feedItems,
		signalFailures,
		auditDrops,
		queryDuration,
		httpRequests,
		httpDuration,
	)

	if logger == nil {
		logger = zap.NewNop()
	}

	return &Metrics{
		registry:       registry,
		FeedRequests:   feedRequests,
		FeedDuration:   feedDuration,
		FeedItems:      feedItems,
		SignalFailures: signalFailures,
		AuditDrops:     auditDrops,
		QueryDuration:  queryDuration,
		HTTPRequests:   httpRequests,
		HTTPDuration:   httpDuration,
		namespace:      namespace,
		cloudwatch:     cw,
		logger:         logger,
		now:            time.Now,
	}
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// FeedGenerated records one completed feed request
func (m *Metrics) FeedGenerated(algorithm string, fallback bool, duration time.Duration, items int) {
	m.FeedRequests.WithLabelValues(algorithm, strconv.FormatBool(fallback)).Inc()
	m.FeedDuration.WithLabelValues(algorithm).Observe(duration.Seconds())
	m.FeedItems.Observe(float64(items))

	dims := []types.Dimension{dimension("Algorithm", algorithm)}
	m.buffer(
		datum("FeedLatency", float64(duration.Milliseconds()), types.StandardUnitMilliseconds, dims),
		datum("FeedCount", 1, types.StandardUnitCount, dims),
	)
	if fallback {
		m.buffer(datum("FeedFallback", 1, types.StandardUnitCount, nil))
	}
}

// SignalFailed records a signal lookup that degraded to its neutral value
func (m *Metrics) SignalFailed(signal string) {
	m.SignalFailures.WithLabelValues(signal).Inc()
	m.buffer(datum("SignalFailure", 1, types.StandardUnitCount, []types.Dimension{dimension("Signal", signal)}))
}

// AuditDropped records discarded audit rows
func (m *Metrics) AuditDropped(reason string, n int) {
	m.AuditDrops.WithLabelValues(reason).Add(float64(n))
	m.buffer(datum("AuditDropped", float64(n), types.StandardUnitCount, []types.Dimension{dimension("Reason", reason)}))
}

// ObserveQuery records a query bus dispatch
func (m *Metrics) ObserveQuery(queryType string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.QueryDuration.WithLabelValues(queryType, status).Observe(duration.Seconds())
}

// RecordHTTPRequest records a served HTTP request
func (m *Metrics) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func (m *Metrics) buffer(data ...types.MetricDatum) {
	if m.cloudwatch == nil {
		return
	}
	ts := aws.Time(m.now())
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range data {
		data[i].Timestamp = ts
		m.pending = append(m.pending, data[i])
	}
}

// Pending returns the number of buffered CloudWatch datums
func (m *Metrics) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Flush sends buffered datums to CloudWatch. Datums from a failed batch are dropped.
func (m *Metrics) Flush(ctx context.Context) error {
	if m.cloudwatch == nil {
		return nil
	}

	m.mu.Lock()
	pending := m.pending
	m.pending = nil
	m.mu.Unlock()

	var failed int
	for start := 0; start < len(pending); start += maxDatumsPerPut {
		end := start + maxDatumsPerPut
		if end > len(pending) {
			end = len(pending)
		}
		_, err := m.cloudwatch.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(m.namespace),
			MetricData: pending[start:end],
		})
		if err != nil {
			failed += end - start
			m.logger.Warn("Failed to send metrics",
				zap.String("namespace", m.namespace),
				zap.Int("datums", end-start),
				zap.Error(err),
			)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d metric datums not sent", failed)
	}
	return nil
}

// RunFlusher flushes on every tick until ctx is done, then flushes once more
func (m *Metrics) RunFlusher(ctx context.Context, interval time.Duration) {
	if m.cloudwatch == nil {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = m.Flush(ctx)
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = m.Flush(flushCtx)
			cancel()
			return
		}
	}
}

func dimension(name, value string) types.Dimension {
	return types.Dimension{Name: aws.String(name), Value: aws.String(value)}
}

func datum(name string, value float64, unit types.StandardUnit, dims []types.Dimension) types.MetricDatum {
	return types.MetricDatum{
		MetricName: aws.String(name),
		Dimensions: dims,
		Value:      aws.Float64(value),
		Unit:       unit,
	}
}
