package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	openConnections  prometheus.Gauge
	reconnectsTotal  *prometheus.CounterVec
	framesTotal      *prometheus.CounterVec
	flushBatchSize   prometheus.Histogram
	signalsDelivered *prometheus.CounterVec
	signalsDropped   *prometheus.CounterVec
	errorsTotal      *prometheus.CounterVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		openConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "fourex_ws_open_connections",
				Help: "Number of WebSocket connections currently open in the pool",
			},
		),
		reconnectsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fourex_ws_reconnects_total",
				Help: "Total number of reconnect attempts",
			},
			[]string{"connection"},
		),
		framesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fourex_ws_frames_total",
				Help: "Total number of WebSocket frames by direction",
			},
			[]string{"direction"},
		),
		flushBatchSize: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "fourex_ws_flush_batch_size",
				Help:    "Messages delivered per throttle flush",
				Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250},
			},
		),
		signalsDelivered: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fourex_signals_delivered_total",
				Help: "Signals delivered to notification handlers",
			},
			[]string{"channel"},
		),
		signalsDropped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fourex_signals_dropped_total",
				Help: "Signals rejected by the filter, by stage",
			},
			[]string{"reason"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fourex_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
	}
}

// SetOpenConnections records the current pool size.
func (r *Recorder) SetOpenConnections(n int) {
	r.openConnections.Set(float64(n))
}

// RecordReconnect records a reconnect attempt for a connection.
func (r *Recorder) RecordReconnect(connectionID string) {
	r.reconnectsTotal.WithLabelValues(connectionID).Inc()
}

// RecordFrame records one frame in the given direction ("in" or "out").
func (r *Recorder) RecordFrame(direction string) {
	r.framesTotal.WithLabelValues(direction).Inc()
}

// RecordFlush records the size of one throttle flush.
func (r *Recorder) RecordFlush(batchSize int) {
	r.flushBatchSize.Observe(float64(batchSize))
}

// RecordSignalDelivered records a signal handed to handlers.
func (r *Recorder) RecordSignalDelivered(channel string) {
	r.signalsDelivered.WithLabelValues(channel).Inc()
}

// RecordSignalDropped records a signal rejected by a filter stage.
func (r *Recorder) RecordSignalDropped(reason string) {
	r.signalsDropped.WithLabelValues(reason).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}
