package otel

import (
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Metrics holds all scriptbot metric instruments.
type Metrics struct {
	DispatchDuration   metric.Float64Histogram
	AccessDenials      metric.Int64Counter
	ProcessLaunches    metric.Int64Counter
	LaunchErrors       metric.Int64Counter
	ProcessStops       metric.Int64Counter
	TrackedProcesses   metric.Int64UpDownCounter
	ReconcileRemovals  metric.Int64Counter
	InfoSampleDuration metric.Float64Histogram
}

// NewMetrics creates all metric instruments from the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.DispatchDuration, err = meter.Float64Histogram("scriptbot.dispatch.duration",
		metric.WithDescription("Operator action dispatch duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.AccessDenials, err = meter.Int64Counter("scriptbot.access.denials",
		metric.WithDescription("Actions rejected because the operator is not allowlisted"),
	)
	if err != nil {
		return nil, err
	}

	m.ProcessLaunches, err = meter.Int64Counter("scriptbot.process.launches",
		metric.WithDescription("Scripts launched successfully"),
	)
	if err != nil {
		return nil, err
	}

	m.LaunchErrors, err = meter.Int64Counter("scriptbot.process.launch_errors",
		metric.WithDescription("Script launches that failed to spawn"),
	)
	if err != nil {
		return nil, err
	}

	m.ProcessStops, err = meter.Int64Counter("scriptbot.process.stops",
		metric.WithDescription("Tracked scripts terminated on request"),
	)
	if err != nil {
		return nil, err
	}

	m.TrackedProcesses, err = meter.Int64UpDownCounter("scriptbot.process.tracked",
		metric.WithDescription("Entries currently held by the process registry"),
	)
	if err != nil {
		return nil, err
	}

	m.ReconcileRemovals, err = meter.Int64Counter("scriptbot.process.reconciled",
		metric.WithDescription("Stale registry entries removed by reconciliation"),
	)
	if err != nil {
		return nil, err
	}

	m.InfoSampleDuration, err = meter.Float64Histogram("scriptbot.sysinfo.duration",
		metric.WithDescription("System info collection duration in seconds, including the CPU sample window"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// NoopMetrics returns instruments that record nothing. Components fall back
// to it when no Metrics are injected.
func NoopMetrics() *Metrics {
	m, _ := NewMetrics(noop.NewMeterProvider().Meter(MeterName))
	return m
}
