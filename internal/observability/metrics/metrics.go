// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "classlive_platform"

// Metrics holds all Prometheus metrics for the platform.
type Metrics struct {
	// Relay connection metrics
	RelayConnects    prometheus.Counter
	RelayReconnects  *prometheus.CounterVec // kind: proactive|recovery
	RelayFailures    prometheus.Counter
	ChunksSent       prometheus.Counter
	ChunksQueued     prometheus.Counter
	ChunksDiscarded  prometheus.Counter
	AudioBytesSent   prometheus.Counter
	TranscriptsFinal prometheus.Counter

	// Question pipeline metrics
	QuestionsSent      *prometheus.CounterVec // origin: auto|voice|manual|batch
	QuestionsSkipped   *prometheus.CounterVec // reason code
	GenerationDuration prometheus.Histogram
	GenerationErrors   prometheus.Counter
	DeliveryTotal      *prometheus.CounterVec // status: ok|error

	// Session metrics
	ConnectedStudents prometheus.Gauge
	PausePointBatches prometheus.Counter
}

// Default is the global metrics instance.
var Default = New()

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		RelayConnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_connects_total",
			Help:      "Total relay connections established",
		}),
		RelayReconnects: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_reconnects_total",
			Help:      "Total relay reconnections",
		}, []string{"kind"}),
		RelayFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_failures_total",
			Help:      "Total relay sessions ending in failure",
		}),
		ChunksSent: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_chunks_sent_total",
			Help:      "Total audio chunks transmitted to the relay",
		}),
		ChunksQueued: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_chunks_queued_total",
			Help:      "Total audio chunks buffered while not streaming",
		}),
		ChunksDiscarded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_chunks_discarded_total",
			Help:      "Total audio chunks discarded below the silence threshold",
		}),
		AudioBytesSent: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_sent_total",
			Help:      "Total audio bytes transmitted to the relay",
		}),
		TranscriptsFinal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_final_total",
			Help:      "Total final transcript events accumulated",
		}),

		QuestionsSent: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "questions_sent_total",
			Help:      "Total questions generated and delivered",
		}, []string{"origin"}),
		QuestionsSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "questions_skipped_total",
			Help:      "Total auto-question ticks skipped",
		}, []string{"reason"}),
		GenerationDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Latency of question generation calls",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30},
		}),
		GenerationErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_errors_total",
			Help:      "Total failed question generation calls",
		}),
		DeliveryTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "question_delivery_total",
			Help:      "Total question delivery attempts",
		}, []string{"status"}),

		ConnectedStudents: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected_students",
			Help:      "Students currently connected over websocket",
		}),
		PausePointBatches: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pause_point_batches_total",
			Help:      "Total batch placement analyses completed",
		}),
	}
}

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
