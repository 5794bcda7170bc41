package audit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Traffic: принятые события
	EventsIngested prometheus.Counter

	// Saturation: заполненность буфера аккумулятора
	BufferFill prometheus.Gauge

	// Исходы батчей: confirmed / failed
	BatchesTotal *prometheus.CounterVec

	// Errors: классификация отказов якорения
	AnchorErrors *prometheus.CounterVec

	// События, оставшиеся unlinked после исчерпания ретраев
	ReconcileFailures prometheus.Counter

	// Latency полного прогона батча (merkle + anchor + reconcile)
	BatchDuration prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern — без регистратора метрики живут в локальном
	// реестре и никуда не экспортируются (удобно в тестах)
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		EventsIngested: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "audit_events_ingested_total",
			Help: "Total number of audit events accepted for batching.",
		}),

		BufferFill: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "audit_buffer_fill",
			Help: "Current number of events in the accumulator buffer.",
		}),

		BatchesTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "audit_batches_total",
			Help: "Total number of sealed batches by anchoring outcome.",
		}, []string{"status"}),

		AnchorErrors: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "audit_anchor_errors_total",
			Help: "Total number of failed anchoring attempts by kind.",
		}, []string{"kind"}), // kind: unavailable, rejected

		ReconcileFailures: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "audit_reconcile_failures_total",
			Help: "Events left unlinked after reconciliation retries were exhausted.",
		}),

		BatchDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "audit_batch_duration_seconds",
			Help:    "Histogram of full batch run latencies.",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
	}
}
