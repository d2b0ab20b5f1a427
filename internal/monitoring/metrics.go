package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	IngestsTotal     *prometheus.CounterVec
	StageErrorsTotal *prometheus.CounterVec
}

// NewMetrics registers the application metrics with the given registerer.
// Pass prometheus.DefaultRegisterer in main; tests use a fresh registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		IngestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "recipescan_ingests_total",
			Help: "The total number of ingestion requests by outcome",
		}, []string{"outcome"}), // 'succeeded', 'failed', 'rejected', 'duplicate'
		StageErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "recipescan_stage_errors_total",
			Help: "The total number of extraction failures by pipeline stage",
		}, []string{"stage"}),
	}
}

func (m *Metrics) IncIngests(outcome string) {
	m.IngestsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncStageError(stage string) {
	m.StageErrorsTotal.WithLabelValues(stage).Inc()
}
