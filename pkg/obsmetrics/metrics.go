// Package obsmetrics exposes the orchestrator's quorum counters and
// replica health gauge as Prometheus metrics.
package obsmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"net/http"
)

// OrchestratorMetrics holds the counters and gauges the orchestrator
// updates as it fans quorum operations out to replicas.
type OrchestratorMetrics struct {
	QuorumWritesTotal   *prometheus.CounterVec
	QuorumWriteFailures *prometheus.CounterVec
	ActiveReplicas      prometheus.Gauge
	SelfHealReplications prometheus.Counter
}

// NewOrchestratorMetrics registers the orchestrator's metrics against reg.
func NewOrchestratorMetrics(reg prometheus.Registerer) *OrchestratorMetrics {
	m := &OrchestratorMetrics{
		QuorumWritesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledgerfabric_orchestrator_quorum_writes_total",
			Help: "Quorum writes attempted by the orchestrator, labeled by action.",
		}, []string{"action"}),
		QuorumWriteFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledgerfabric_orchestrator_quorum_write_failures_total",
			Help: "Quorum writes that failed to reach min_consensus, labeled by action.",
		}, []string{"action"}),
		ActiveReplicas: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ledgerfabric_orchestrator_active_replicas",
			Help: "Number of replicas that responded healthy on the most recent refresh.",
		}),
		SelfHealReplications: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledgerfabric_orchestrator_self_heal_replications_total",
			Help: "Assets re-registered onto additional replicas by self-healing.",
		}),
	}
	reg.MustRegister(m.QuorumWritesTotal, m.QuorumWriteFailures, m.ActiveReplicas, m.SelfHealReplications)
	return m
}

// Handler returns the HTTP handler to mount at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
