package telemetry

import (
	"context"
	"testing"
)

func TestMetrics_RecordDBOperationIncrementsCount(t *testing.T) {
	m := NewMetrics()

	if got := m.DBOperationCount(); got != 0 {
		t.Fatalf("expected initial count 0, got %d", got)
	}

	m.RecordDBOperation(context.Background(), "query")
	m.RecordDBOperation(context.Background(), "query")

	if got := m.DBOperationCount(); got != 2 {
		t.Errorf("expected count 2, got %d", got)
	}
}

func TestMetrics_SetCircuitBreakerOpenUpdatesBreakerState(t *testing.T) {
	m := NewMetrics()

	if m.breakerState != 0 {
		t.Fatalf("expected breaker state to start closed (0), got %d", m.breakerState)
	}

	m.SetCircuitBreakerOpen(true)
	if m.breakerState != 1 {
		t.Errorf("expected breaker state 1 after opening, got %d", m.breakerState)
	}

	m.SetCircuitBreakerOpen(false)
	if m.breakerState != 0 {
		t.Errorf("expected breaker state 0 after closing, got %d", m.breakerState)
	}
}
