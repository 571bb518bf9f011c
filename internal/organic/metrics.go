// internal/organic/metrics.go
package organic

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	containerTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stairway_organic_containers_total",
		Help: "Media containers created, by kind and outcome.",
	}, []string{"kind", "outcome"})

	publishTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stairway_organic_publishes_total",
		Help: "Publish attempts, by outcome.",
	}, []string{"outcome"})

	pagePublishTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stairway_organic_page_publishes_total",
		Help: "Facebook page publish attempts, by kind and outcome.",
	}, []string{"kind", "outcome"})
)

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
