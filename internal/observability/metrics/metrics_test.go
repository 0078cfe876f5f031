package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if labelsMatch(metric, labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	matched := 0
	for _, lp := range metric.GetLabel() {
		if want, ok := labels[lp.GetName()]; ok {
			if want != lp.GetValue() {
				return false
			}
			matched++
		}
	}
	return matched == len(labels)
}

func TestNegotiationMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewNegotiationMetrics(reg)
	m.ObserveExtraction("generative", "deterministic", "propose")
	m.ObserveFallback("timeout")
	m.ObserveFallback("timeout")
	m.ObserveLLMLatency("ok", 0.25)
	m.ObserveCommit("conflict")
	m.ObserveTransition("proposed", "idle", "confirmed")

	if got := counterValue(t, reg, "dentbot_extraction_fallback_total", map[string]string{"reason": "timeout"}); got != 2 {
		t.Fatalf("expected 2 timeout fallbacks, got %v", got)
	}
	if got := counterValue(t, reg, "dentbot_bookings_commit_total", map[string]string{"outcome": "conflict"}); got != 1 {
		t.Fatalf("expected 1 conflict, got %v", got)
	}
	if got := counterValue(t, reg, "dentbot_extraction_total", map[string]string{"requested": "generative", "effective": "deterministic"}); got != 1 {
		t.Fatalf("expected 1 extraction, got %v", got)
	}
}

func TestNegotiationMetricsDefaultRegistry(t *testing.T) {
	// Registering twice against the default registry would panic, so only once.
	m := NewNegotiationMetrics(nil)
	m.ObserveCommit("confirmed")
}

func TestNegotiationMetricsNilSafe(t *testing.T) {
	var m *NegotiationMetrics
	m.ObserveExtraction("deterministic", "deterministic", "chat")
	m.ObserveFallback("unavailable")
	m.ObserveLLMLatency("error", 0.1)
	m.ObserveCommit("error")
	m.ObserveTransition("idle", "proposed", "proposed")
}
