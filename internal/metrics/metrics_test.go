package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNewMetrics(t *testing.T) {
	m := NewMetrics()
	if m == nil {
		t.Fatal("NewMetrics() returned nil")
	}

	if got := len(m.Collectors()); got != 9 {
		t.Errorf("expected 9 collectors, got %d", got)
	}
}

func TestMetrics_Register(t *testing.T) {
	t.Run("successful registration", func(t *testing.T) {
		m := NewMetrics()
		reg := prometheus.NewRegistry()

		if err := m.Register(reg); err != nil {
			t.Fatalf("Register() returned error: %v", err)
		}

		m.ObserveUnit(StageClip, StatusCreated, 0.2)
		m.IncConflicts(StageClip)
		m.IncFailures(StageRender, "unknown_style")
		m.ObserveRun(StatusSucceeded, 3)
		m.IncEventsDropped()
		m.ObserveHTTPRequest("GET", "/api/v1/aois", "200", 0.01)

		families, err := reg.Gather()
		if err != nil {
			t.Fatalf("Gather() returned error: %v", err)
		}

		expected := map[string]bool{
			MetricUnitsTotal:     false,
			MetricUnitDuration:   false,
			MetricConflictsTotal: false,
			MetricFailuresTotal:  false,
			MetricRunsTotal:      false,
			MetricRunDuration:    false,
			MetricEventsDropped:  false,
			MetricHTTPRequests:   false,
			MetricHTTPDuration:   false,
		}
		for _, family := range families {
			if _, ok := expected[family.GetName()]; ok {
				expected[family.GetName()] = true
			}
		}
		for name, found := range expected {
			if !found {
				t.Errorf("metric %s not found in gathered metrics", name)
			}
		}
	})

	t.Run("duplicate registration fails", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		if err := NewMetrics().Register(reg); err != nil {
			t.Fatalf("first Register() returned error: %v", err)
		}
		if err := NewMetrics().Register(reg); err == nil {
			t.Error("second Register() should have returned an error")
		}
	})
}

func TestMetrics_ObserveUnit(t *testing.T) {
	m := NewMetrics()

	m.ObserveUnit(StageClip, StatusCreated, 0.1)
	m.ObserveUnit(StageClip, StatusCreated, 0.3)
	m.ObserveUnit(StageClip, StatusSkipped, 0.01)

	if got := counterValue(m.unitsTotal, StageClip, StatusCreated); got != 2 {
		t.Errorf("expected 2 created clips, got %v", got)
	}
	if got := counterValue(m.unitsTotal, StageClip, StatusSkipped); got != 1 {
		t.Errorf("expected 1 skipped clip, got %v", got)
	}

	var out dto.Metric
	h, err := m.unitDuration.GetMetricWithLabelValues(StageClip)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues failed: %v", err)
	}
	if err := h.(prometheus.Metric).Write(&out); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if got := out.GetHistogram().GetSampleCount(); got != 3 {
		t.Errorf("expected 3 duration samples, got %d", got)
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics

	m.ObserveUnit(StageClip, StatusFailed, 1)
	m.IncConflicts(StageRender)
	m.IncFailures(StageClip, "x")
	m.ObserveRun(StatusFailed, 1)
	m.IncEventsDropped()
	m.ObserveHTTPRequest("GET", "/", "200", 1)
}

func counterValue(vec *prometheus.CounterVec, labels ...string) float64 {
	c, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		return -1
	}
	var out dto.Metric
	if err := c.Write(&out); err != nil {
		return -1
	}
	return out.GetCounter().GetValue()
}
