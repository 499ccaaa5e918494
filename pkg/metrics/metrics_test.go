package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetricsRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.PagesCreated.Inc()
	m.PagesUpdated.Add(3)
	m.PublishErrors.WithLabelValues("update").Inc()

	if got := testutil.ToFloat64(m.PagesUpdated); got != 3 {
		t.Errorf("Expected 3 updated pages, got %v", got)
	}

	expected := `
# HELP docfx_pages_created_total Total number of placeholder pages created in Confluence
# TYPE docfx_pages_created_total counter
docfx_pages_created_total 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "docfx_pages_created_total"); err != nil {
		t.Error(err)
	}
}

func TestNewMetricsTwiceOnSeparateRegistries(t *testing.T) {
	NewMetrics(prometheus.NewRegistry())
	NewMetrics(prometheus.NewRegistry())
}

func TestDiscard(t *testing.T) {
	m := Discard()
	m.PagesCreated.Inc()
	m.RequestDuration.WithLabelValues("GET", "200").Observe(0.1)
}
