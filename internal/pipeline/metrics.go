// internal/pipeline/metrics.go
package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stageTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stairway_pipeline_stage_total",
		Help: "Pipeline stage executions by stage and outcome.",
	}, []string{"stage", "outcome"})

	uploadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stairway_pipeline_upload_seconds",
		Help:    "Duration of individual media uploads.",
		Buckets: prometheus.DefBuckets,
	})
)

func observeStage(stage string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	stageTotal.WithLabelValues(stage, outcome).Inc()
}
