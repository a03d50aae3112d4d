package services

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Pipeline counters. Registered once; duplicate registration during tests is
// folded back to the existing collector.
var (
	feedbackProcessedTotal = newCounterVec(prometheus.CounterOpts{
		Name: "feedback_processed_total",
		Help: "Outfit feedback submissions processed, by outcome",
	}, []string{"outcome"})

	recommendationsTotal = newCounterVec(prometheus.CounterOpts{
		Name: "recommendations_generated_total",
		Help: "Outfit recommendations generated, by outcome",
	}, []string{"outcome"})

	profileRecomputesTotal = newCounterVec(prometheus.CounterOpts{
		Name: "profile_recomputes_total",
		Help: "Learning profile recomputations, by trigger",
	}, []string{"trigger"})
)

func newCounterVec(opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	vec := prometheus.NewCounterVec(opts, labels)
	if err := prometheus.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector.(*prometheus.CounterVec)
		}
	}
	return vec
}

// ObserveFeedback records one feedback submission outcome.
func ObserveFeedback(outcome string) {
	feedbackProcessedTotal.WithLabelValues(outcome).Inc()
}

// ObserveRecommendation records one recommendation outcome.
func ObserveRecommendation(outcome string) {
	recommendationsTotal.WithLabelValues(outcome).Inc()
}

// ObserveProfileRecompute records what triggered a recompute.
func ObserveProfileRecompute(trigger string) {
	profileRecomputesTotal.WithLabelValues(trigger).Inc()
}
