package catalogue

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus-метрики операций каталога.
var (
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tc_catalogue_operations_total",
			Help: "Общее количество операций каталога.",
		},
		[]string{"operation", "result"},
	)

	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tc_catalogue_operation_duration_seconds",
			Help:    "Длительность операций каталога в секундах.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	recycledTapeFilesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tc_recycled_tape_files_total",
			Help: "Количество копий, перенесённых в журнал удалённых копий.",
		},
		[]string{"reason"},
	)

	mountPolicyCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tc_mount_policy_cache_hits_total",
		Help: "Общее количество попаданий в кэш политик монтирования.",
	})
	mountPolicyCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tc_mount_policy_cache_misses_total",
		Help: "Общее количество промахов кэша политик монтирования.",
	})
)

// operationResult классифицирует результат операции для метрик.
func operationResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsUserError(err):
		return "user_error"
	default:
		return "internal_error"
	}
}

// observe записывает метрики операции. Вызывается через defer:
//
//	defer observe("CreateTape", time.Now(), &err)
func observe(op string, start time.Time, errp *error) {
	var err error
	if errp != nil {
		err = *errp
	}
	operationsTotal.WithLabelValues(op, operationResult(err)).Inc()
	operationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
