package otel

import (
	"context"
	"testing"
)

func TestNewMetrics_AllInstrumentsCreated(t *testing.T) {
	p, err := Init(context.Background(), Config{
		Enabled:  true,
		Exporter: "none",
	})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer p.Shutdown(context.Background())

	m, err := NewMetrics(p.Meter)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	checks := map[string]any{
		"DispatchDuration":   m.DispatchDuration,
		"AccessDenials":      m.AccessDenials,
		"ProcessLaunches":    m.ProcessLaunches,
		"LaunchErrors":       m.LaunchErrors,
		"ProcessStops":       m.ProcessStops,
		"TrackedProcesses":   m.TrackedProcesses,
		"ReconcileRemovals":  m.ReconcileRemovals,
		"InfoSampleDuration": m.InfoSampleDuration,
	}
	for name, inst := range checks {
		if inst == nil {
			t.Errorf("%s is nil", name)
		}
	}
}

func TestNewMetrics_NoopMeter(t *testing.T) {
	p, err := Init(context.Background(), Config{Enabled: false})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer p.Shutdown(context.Background())

	m, err := NewMetrics(p.Meter)
	if err != nil {
		t.Fatalf("NewMetrics with noop: %v", err)
	}
	if m == nil {
		t.Fatal("expected non-nil Metrics")
	}
}

func TestNoopMetrics_Recordable(t *testing.T) {
	m := NoopMetrics()
	if m == nil {
		t.Fatal("expected non-nil Metrics")
	}
	m.ProcessLaunches.Add(context.Background(), 1)
	m.TrackedProcesses.Add(context.Background(), -1)
	m.DispatchDuration.Record(context.Background(), 0.01)
}
