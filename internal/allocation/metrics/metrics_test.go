package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewWithRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg)

	m.JobsTotal.WithLabelValues("succeeded").Inc()
	m.DiagnosticsTotal.WithLabelValues("missing_association").Add(3)
	m.UnallocatedFuel.Set(250)

	if got := testutil.ToFloat64(m.DiagnosticsTotal.WithLabelValues("missing_association")); got != 3 {
		t.Fatalf("expected 3, got %v", got)
	}
	expected := `
# HELP netgen_allocation_unallocated_fuel_mmbtu Boiler fuel left out of allocation by the last run
# TYPE netgen_allocation_unallocated_fuel_mmbtu gauge
netgen_allocation_unallocated_fuel_mmbtu 250
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "netgen_allocation_unallocated_fuel_mmbtu"); err != nil {
		t.Fatalf("unexpected metrics: %v", err)
	}
	if n := testutil.CollectAndCount(m.JobsTotal); n != 1 {
		t.Fatalf("expected one job series, got %d", n)
	}
}

func TestNewWithRegistryRejectsDuplicates(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewWithRegistry(reg)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected duplicate registration to panic")
		}
	}()
	NewWithRegistry(reg)
}
