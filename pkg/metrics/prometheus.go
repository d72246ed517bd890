// Package metrics provides Prometheus metrics for the grade ETL pipeline.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

const (
	defaultPushTimeout = 10 * time.Second
)

// Manager owns every pipeline metric.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	pushTimeout      time.Duration
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Run outcome
	runsTotal       *prometheus.CounterVec
	runDuration     prometheus.Histogram
	stageDuration   *prometheus.HistogramVec
	lastRunRecords  prometheus.Gauge
	lastRunUnixTime prometheus.Gauge

	// Files
	filesListed    prometheus.Counter
	filesSkipped   prometheus.Counter
	filesProcessed prometheus.Counter
	filesFailed    *prometheus.CounterVec
	bytesFetched   prometheus.Counter

	// Rows
	rowsParsed       prometheus.Counter
	rowsAccepted     prometheus.Counter
	rowsRejected     *prometheus.CounterVec
	duplicateRecords prometheus.Counter

	// Sinks
	recordsLoaded *prometheus.CounterVec
	sinkErrors    *prometheus.CounterVec
	sinkLatency   *prometheus.HistogramVec

	// Queue / workers
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueueErrors prometheus.Counter
	workerActiveCount  prometheus.Gauge
	workerLatency      prometheus.Histogram
	workerErrors       prometheus.Counter
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // avoids default Go collectors

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "gradeetl",
		subsystem:        "pipeline",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		pushTimeout:      defaultPushTimeout,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) initializeMetrics() {
	m.runsTotal = m.counterVec("runs_total", "Pipeline runs by terminal state", "state")
	m.runDuration = m.histogram("run_duration_milliseconds", "End-to-end run duration in milliseconds")
	m.stageDuration = m.histogramVec("stage_duration_milliseconds", "Time spent per pipeline state in milliseconds", "stage")
	m.lastRunRecords = m.gauge("last_run_records", "Records in the Record Set of the last successful run")
	m.lastRunUnixTime = m.gauge("last_run_timestamp_seconds", "Unix time of the last finished run")

	m.filesListed = m.counter("files_listed_total", "Files returned by the source listing")
	m.filesSkipped = m.counter("files_skipped_total", "Files skipped as already processed or excluded by pattern")
	m.filesProcessed = m.counter("files_processed_total", "Files fetched and transformed successfully")
	m.filesFailed = m.counterVec("files_failed_total", "Files that failed to fetch or parse", "reason")
	m.bytesFetched = m.counter("bytes_fetched_total", "Bytes fetched from the source store")

	m.rowsParsed = m.counter("rows_parsed_total", "Raw rows decoded from source files")
	m.rowsAccepted = m.counter("rows_accepted_total", "Rows that passed every field rule")
	m.rowsRejected = m.counterVec("rows_rejected_total", "Rows dropped by the row filter", "field")
	m.duplicateRecords = m.counter("duplicate_records_total", "Records dropped because their id was already seen")

	m.recordsLoaded = m.counterVec("records_loaded_total", "Records written to a sink", "sink")
	m.sinkErrors = m.counterVec("sink_errors_total", "Sink replace failures", "sink", "kind")
	m.sinkLatency = m.histogramVec("sink_latency_milliseconds", "Table replace latency per sink in milliseconds", "sink")

	m.queueSize = m.gauge("queue_size", "Pending file jobs")
	m.queueCapacity = m.gauge("queue_capacity", "Capacity of the file job queue")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "File jobs rejected by the queue")
	m.workerActiveCount = m.gauge("worker_active_count", "Workers currently running")
	m.workerLatency = m.histogram("worker_processing_latency_milliseconds", "Per-file fetch+transform latency in milliseconds")
	m.workerErrors = m.counter("worker_errors_total", "Errors returned by file workers")
}

// Run metrics.

// RecordRun counts a finished run and its duration.
func RecordRun(state string, duration time.Duration) {
	globalManager.runsTotal.WithLabelValues(state).Inc()
	globalManager.runDuration.Observe(float64(duration.Milliseconds()))
	globalManager.lastRunUnixTime.SetToCurrentTime()
}

// RecordStageDuration observes time spent in one pipeline state.
func RecordStageDuration(stage string, duration time.Duration) {
	globalManager.stageDuration.WithLabelValues(stage).Observe(float64(duration.Milliseconds()))
}

// UpdateLastRunRecords sets the size of the last loaded Record Set.
func UpdateLastRunRecords(count int) {
	globalManager.lastRunRecords.Set(float64(count))
}

// File metrics.

// RecordFilesListed adds n listed files.
func RecordFilesListed(n int) {
	globalManager.filesListed.Add(float64(n))
}

// RecordFileSkipped counts a file excluded before fetching.
func RecordFileSkipped() {
	globalManager.filesSkipped.Inc()
}

// RecordFileProcessed counts a successfully transformed file.
func RecordFileProcessed(bytes int) {
	globalManager.filesProcessed.Inc()
	globalManager.bytesFetched.Add(float64(bytes))
}

// RecordFileFailed counts a file that failed to fetch or parse.
func RecordFileFailed(reason string) {
	globalManager.filesFailed.WithLabelValues(reason).Inc()
}

// Row metrics.

// RecordRowsParsed adds n decoded raw rows.
func RecordRowsParsed(n int) {
	globalManager.rowsParsed.Add(float64(n))
}

// RecordRowsAccepted adds n canonical records.
func RecordRowsAccepted(n int) {
	globalManager.rowsAccepted.Add(float64(n))
}

// RecordRowRejected counts a dropped row by the first failing field.
func RecordRowRejected(field string) {
	globalManager.rowsRejected.WithLabelValues(field).Inc()
}

// RecordDuplicates adds n records removed by deduplication.
func RecordDuplicates(n int) {
	globalManager.duplicateRecords.Add(float64(n))
}

// Sink metrics.

// RecordRecordsLoaded adds n records written to sink.
func RecordRecordsLoaded(sink string, n int) {
	globalManager.recordsLoaded.WithLabelValues(sink).Add(float64(n))
}

// RecordSinkError counts a failed table replace.
func RecordSinkError(sink, kind string) {
	globalManager.sinkErrors.WithLabelValues(sink, kind).Inc()
}

// RecordSinkLatency observes the replace latency of one sink.
func RecordSinkLatency(sink string, duration time.Duration) {
	globalManager.sinkLatency.WithLabelValues(sink).Observe(float64(duration.Milliseconds()))
}

// Queue / worker metrics.

// UpdateQueueSize sets the number of pending jobs.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the job queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueueError counts a rejected job.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// UpdateWorkerActiveCount sets the number of running workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// RecordWorkerProcessingLatency observes per-file processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerLatency.Observe(latencyMs)
}

// RecordWorkerError counts a worker error.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// Push sends the custom registry to a Pushgateway under job. Batch runs are
// too short-lived to be scraped.
func Push(ctx context.Context, url, job string) error {
	if !globalManager.enabled || url == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, globalManager.pushTimeout)
	defer cancel()

	if err := push.New(url, job).Gatherer(GetRegistry()).PushContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrPushFailed, err)
	}
	return nil
}
