package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels successful remediation executions.
	OutcomeSuccess = "success"
	// OutcomeFailure labels failed or timed-out executions.
	OutcomeFailure = "failure"
)

var (
	decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "remedy",
			Name:      "decisions_total",
			Help:      "Total automation decisions, partitioned by selected level.",
		},
		[]string{"level"},
	)

	remediationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "remedy",
			Name:      "remediations_total",
			Help:      "Total remediation executions, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	remediationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "remedy",
			Name:      "remediation_seconds",
			Help:      "Remediation execution latency in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		},
	)

	policyReloadsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "remedy",
			Name:      "policy_reloads_total",
			Help:      "Total policy pack hot reloads applied.",
		},
	)

	knowledgeNodes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "remedy",
			Name:      "knowledge_nodes",
			Help:      "Current number of persisted knowledge graph nodes.",
		},
	)
)

// Register attaches remedy-engine collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		decisionsTotal,
		remediationsTotal,
		remediationSeconds,
		policyReloadsTotal,
		knowledgeNodes,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveDecision records one automation decision at the given level tag.
func ObserveDecision(level string) {
	decisionsTotal.WithLabelValues(level).Inc()
}

// ObserveRemediation records an execution duration and outcome label.
func ObserveRemediation(duration time.Duration, outcome string) {
	label := outcome
	if label != OutcomeFailure {
		label = OutcomeSuccess
	}
	remediationsTotal.WithLabelValues(label).Inc()
	if duration < 0 {
		duration = 0
	}
	remediationSeconds.Observe(duration.Seconds())
}

// ObservePolicyReload counts one applied policy pack reload.
func ObservePolicyReload() {
	policyReloadsTotal.Inc()
}

// SetKnowledgeNodes updates the persisted node count gauge.
func SetKnowledgeNodes(n int) {
	knowledgeNodes.Set(float64(n))
}
