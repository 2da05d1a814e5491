package engine

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestMetricsRegistered(t *testing.T) {
	executionsTotal.WithLabelValues("completed").Add(0)
	stepsTotal.WithLabelValues("delay", "completed").Add(0)
	stepDuration.WithLabelValues("delay").Observe(0)
	stepRetriesTotal.WithLabelValues("delay").Add(0)

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	expected := []string{
		"relay_executions_total",
		"relay_active_executions",
		"relay_steps_total",
		"relay_step_duration_seconds",
		"relay_step_retries_total",
	}

	found := make(map[string]bool)
	for _, fam := range families {
		found[fam.GetName()] = true
	}
	for _, name := range expected {
		if !found[name] {
			t.Errorf("metric %q not registered", name)
		}
	}
}

func TestActiveExecutionsGauge(t *testing.T) {
	activeExecutions.Set(0)
	activeExecutions.Inc()
	activeExecutions.Inc()
	activeExecutions.Dec()

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var fam *dto.MetricFamily
	for _, f := range families {
		if f.GetName() == "relay_active_executions" {
			fam = f
			break
		}
	}
	if fam == nil || len(fam.GetMetric()) == 0 {
		t.Fatal("relay_active_executions not found")
	}
	if got := fam.GetMetric()[0].GetGauge().GetValue(); got != 1 {
		t.Errorf("active executions = %f, want 1", got)
	}
	activeExecutions.Set(0)
}
