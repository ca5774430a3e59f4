// Package metrics - метрики Prometheus для мутаций дерева
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"storagetree/internal/domain"
)

var (
	mutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storagetree_mutations_total",
			Help: "Total tree mutations by operation and result code",
		},
		[]string{"op", "result"},
	)

	mutationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storagetree_mutation_duration_seconds",
			Help:    "Tree mutation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	compensationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storagetree_compensations_total",
			Help: "Compensating actions after a failed metadata commit",
		},
		[]string{"op", "result"},
	)

	uploadedBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storagetree_uploaded_bytes_total",
			Help: "Total bytes accepted by uploads",
		},
	)
)

func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveMutation записывает результат операции; result - код ошибки или "ok"
func ObserveMutation(op string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = string(domain.CodeOf(err))
	}
	mutationsTotal.WithLabelValues(op, result).Inc()
	mutationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func RecordCompensation(op string, success bool) {
	result := "success"
	if !success {
		result = "error"
	}
	compensationsTotal.WithLabelValues(op, result).Inc()
}

func RecordUpload(bytes int64) {
	uploadedBytes.Add(float64(bytes))
}
