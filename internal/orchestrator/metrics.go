package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Latency: планирование и исполнение каждого агента
	PlanDuration  *prometheus.HistogramVec
	AgentDuration *prometheus.HistogramVec

	// Traffic: запросы по типу задачи оркестратора
	TotalRequests *prometheus.CounterVec

	// Errors: plan_failed, agent_failed, unknown_agent, digest_fallback
	ErrorTotal *prometheus.CounterVec

	// Saturation: состояние Circuit Breaker сервиса рассуждений (0 - ок, 0.5 - проба, 1 - выбило)
	CompletionBreakerState prometheus.Gauge

	// Audit: заполненность буфера (backpressure)
	AuditBufferFill prometheus.Gauge

	// HTTP слой
	HTTPDuration *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	buckets := []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60}

	return &Metrics{
		PlanDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agentmesh_plan_duration_seconds",
			Help:    "Histogram of plan creation latencies.",
			Buckets: buckets,
		}, []string{"status"}),

		AgentDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agentmesh_agent_execution_duration_seconds",
			Help:    "Histogram of per-agent execution latencies.",
			Buckets: buckets,
		}, []string{"agent_id", "status"}),

		TotalRequests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "agentmesh_requests_total",
			Help: "Total number of orchestrator tasks by type.",
		}, []string{"task_type"}),

		ErrorTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "agentmesh_errors_total",
			Help: "Total number of errors by type.",
		}, []string{"type"}),

		CompletionBreakerState: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "agentmesh_completion_circuit_breaker_state",
			Help: "Current state of the completion service circuit breaker (0=closed, 0.5=half-open, 1=open).",
		}),

		AuditBufferFill: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "agentmesh_audit_buffer_utilization",
			Help: "Current number of events in audit buffer.",
		}),

		HTTPDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agentmesh_http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies.",
			Buckets: buckets,
		}, []string{"method", "route", "status"}),
	}
}
