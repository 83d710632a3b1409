package conversation

import "github.com/prometheus/client_golang/prometheus"

var generationLatency = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "lunara",
		Subsystem: "conversation",
		Name:      "generation_latency_seconds",
		Help:      "Latency of reply generation by service",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 8, 10, 15, 30},
	},
	[]string{"service", "stage", "status"},
)

var llmTokensTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "lunara",
		Subsystem: "conversation",
		Name:      "llm_tokens_total",
		Help:      "Tokens used by the generative backend",
	},
	[]string{"model", "type"}, // type: input, output, total
)

var fallbackTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "lunara",
		Subsystem: "conversation",
		Name:      "fallback_total",
		Help:      "Replies served from the local fallback templates after an AI failure",
	},
	[]string{"stage", "reason"},
)

var messagesPersistedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "lunara",
		Subsystem: "conversation",
		Name:      "messages_persisted_total",
		Help:      "Messages written through the conversation store",
	},
	[]string{"role"},
)

func init() {
	prometheus.MustRegister(generationLatency)
	prometheus.MustRegister(llmTokensTotal)
	prometheus.MustRegister(fallbackTotal)
	prometheus.MustRegister(messagesPersistedTotal)
}

// RegisterMetrics registers conversation metrics with a custom registry.
// Use this when exposing a non-default registry.
func RegisterMetrics(reg prometheus.Registerer) {
	if reg == nil || reg == prometheus.DefaultRegisterer {
		return
	}
	reg.MustRegister(generationLatency, llmTokensTotal, fallbackTotal, messagesPersistedTotal)
}
