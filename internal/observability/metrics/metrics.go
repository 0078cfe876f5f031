package metrics

import "github.com/prometheus/client_golang/prometheus"

// NegotiationMetrics exposes counters/histograms for extraction, negotiation
// transitions and booking commits.
type NegotiationMetrics struct {
	extractionTotal *prometheus.CounterVec
	fallbackTotal   *prometheus.CounterVec
	llmLatency      *prometheus.HistogramVec
	commitTotal     *prometheus.CounterVec
	transitionTotal *prometheus.CounterVec
}

func NewNegotiationMetrics(reg prometheus.Registerer) *NegotiationMetrics {
	m := &NegotiationMetrics{
		extractionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dentbot",
			Subsystem: "extraction",
			Name:      "total",
			Help:      "Extractions by requested strategy, effective strategy and intent",
		}, []string{"requested", "effective", "intent"}),
		fallbackTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dentbot",
			Subsystem: "extraction",
			Name:      "fallback_total",
			Help:      "Generative extractions that fell back to the deterministic parser",
		}, []string{"reason"}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dentbot",
			Subsystem: "extraction",
			Name:      "llm_latency_seconds",
			Help:      "Latency of generative backend calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		commitTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dentbot",
			Subsystem: "bookings",
			Name:      "commit_total",
			Help:      "Booking commit attempts by outcome",
		}, []string{"outcome"}),
		transitionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dentbot",
			Subsystem: "negotiation",
			Name:      "transition_total",
			Help:      "Negotiation state transitions",
		}, []string{"from", "to", "outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.extractionTotal, m.fallbackTotal, m.llmLatency, m.commitTotal, m.transitionTotal)
	return m
}

func (m *NegotiationMetrics) ObserveExtraction(requested, effective, intent string) {
	if m == nil {
		return
	}
	m.extractionTotal.WithLabelValues(requested, effective, intent).Inc()
}

func (m *NegotiationMetrics) ObserveFallback(reason string) {
	if m == nil {
		return
	}
	m.fallbackTotal.WithLabelValues(reason).Inc()
}

func (m *NegotiationMetrics) ObserveLLMLatency(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.llmLatency.WithLabelValues(outcome).Observe(seconds)
}

func (m *NegotiationMetrics) ObserveCommit(outcome string) {
	if m == nil {
		return
	}
	m.commitTotal.WithLabelValues(outcome).Inc()
}

func (m *NegotiationMetrics) ObserveTransition(from, to, outcome string) {
	if m == nil {
		return
	}
	m.transitionTotal.WithLabelValues(from, to, outcome).Inc()
}
