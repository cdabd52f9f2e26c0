package telemetry

import (
	"context"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Metrics bundles the instruments the orchestrator and graph store adapter
// record against. It is safe for concurrent use.
type Metrics struct {
	DBOperations      metric.Int64Counter
	PhaseDuration      metric.Float64Histogram
	CircuitBreakerOpen metric.Int64ObservableGauge

	breakerState int64
	dbOpCount    atomic.Int64
	mu           sync.Mutex
}

var (
	globalMetrics     *Metrics
	globalMetricsOnce sync.Once
)

// NewMetrics creates the instrument set on the global MeterProvider under
// the "layout-engine" meter name. If instrument creation fails (e.g. the
// MeterProvider rejects a name), the zero-valued fields are used, which are
// safe no-ops.
func NewMetrics() *Metrics {
	meter := otel.Meter("layout-engine")

	m := &Metrics{}

	m.DBOperations, _ = meter.Int64Counter(
		"layout_engine.db_operations",
		metric.WithDescription("count of graph store operations executed"),
	)
	m.PhaseDuration, _ = meter.Float64Histogram(
		"layout_engine.phase_duration_ms",
		metric.WithDescription("duration of each orchestrator phase in milliseconds"),
		metric.WithUnit("ms"),
	)
	m.CircuitBreakerOpen, _ = meter.Int64ObservableGauge(
		"layout_engine.circuit_breaker_open",
		metric.WithDescription("1 if the circuit breaker is open, 0 otherwise"),
	)

	if m.CircuitBreakerOpen != nil {
		_, _ = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
			m.mu.Lock()
			state := m.breakerState
			m.mu.Unlock()
			o.ObserveInt64(m.CircuitBreakerOpen, state)
			return nil
		}, m.CircuitBreakerOpen)
	}

	return m
}

// GlobalMetrics returns the process-wide Metrics instance, creating it on
// first use.
func GlobalMetrics() *Metrics {
	globalMetricsOnce.Do(func() {
		globalMetrics = NewMetrics()
	})
	return globalMetrics
}

// RecordDBOperation increments the database operation counter.
func (m *Metrics) RecordDBOperation(ctx context.Context, op string) {
	m.dbOpCount.Add(1)
	if m.DBOperations == nil {
		return
	}
	m.DBOperations.Add(ctx, 1, metric.WithAttributes())
	_ = op
}

// DBOperationCount returns the cumulative number of operations recorded via
// RecordDBOperation, independent of whether the OTel instrument itself was
// constructed successfully.
func (m *Metrics) DBOperationCount() int64 {
	return m.dbOpCount.Load()
}

// RecordPhaseDuration records a phase's wall-clock duration in milliseconds.
func (m *Metrics) RecordPhaseDuration(ctx context.Context, phase string, durationMS float64) {
	if m.PhaseDuration == nil {
		return
	}
	m.PhaseDuration.Record(ctx, durationMS)
	_ = phase
}

// SetCircuitBreakerOpen updates the observable gauge's backing state.
func (m *Metrics) SetCircuitBreakerOpen(open bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if open {
		m.breakerState = 1
	} else {
		m.breakerState = 0
	}
}
