package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// BuildsTotal — завершённые сборки по статусу.
	BuildsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forge_builds_total",
		Help: "Builds finished by the build worker, by final status",
	}, []string{"status"})

	// BuildDuration — длительность сборок в секундах.
	BuildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "forge_build_duration_seconds",
		Help:    "Wall time of builds from processing to final status",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 900},
	})

	// ExecutionsTotal — завершённые выполнения по триггеру и статусу.
	ExecutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forge_executions_total",
		Help: "Function executions by trigger and final status",
	}, []string{"trigger", "status"})

	// ExecutionDuration — длительность выполнений в секундах.
	ExecutionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "forge_execution_duration_seconds",
		Help:    "Duration of function executions",
		Buckets: prometheus.DefBuckets,
	}, []string{"trigger"})

	// HTTPRequestsTotal — HTTP запросы API.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forge_api_http_requests_total",
		Help: "Total HTTP requests handled by forge-api",
	}, []string{"method", "status"})
)

// OpsMux возвращает mux со служебными endpoints /healthz и /metrics.
func OpsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}
