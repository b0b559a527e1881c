package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSetupAndRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Setup(reg); err != nil {
		t.Fatalf("setup: %v", err)
	}
	// second call is a no-op
	if err := Setup(reg); err != nil {
		t.Fatalf("second setup: %v", err)
	}

	RecordDegraded(DegradedExpense)
	RecordDegraded(DegradedExpense)
	RecordWrite("register", nil)
	RecordWrite("register", errors.New("boom"))
	RecordSettlement("confirmed")
	RecordPriceCache(true)
	RecordSnapshot(nil)

	if got := testutil.ToFloat64(degradedRecords.WithLabelValues(DegradedExpense)); got != 2 {
		t.Fatalf("expected 2 degraded expenses, got %v", got)
	}
	if got := testutil.ToFloat64(writesTotal.WithLabelValues("register", "error")); got != 1 {
		t.Fatalf("expected 1 failed write, got %v", got)
	}
	if got := testutil.ToFloat64(settlementsTotal.WithLabelValues("confirmed")); got != 1 {
		t.Fatalf("expected 1 settlement, got %v", got)
	}
}
