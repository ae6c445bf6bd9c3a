package metrics

import (
	"strings"
	"testing"
)

func TestRenderIncludesCoreMetrics(t *testing.T) {
	c := NewCollector()
	c.IncJobsProcessed()
	c.IncActiveJobs()
	c.SetHealthStatus(2)

	out, err := c.Render()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, want := range []string{"jobs_processed_total", "jobs_errors_total", "active_jobs", "health_status"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected render output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestRenderIsMonotonicCounter(t *testing.T) {
	c := NewCollector()

	c.IncJobsProcessed()
	first, err := c.Render()
	if err != nil {
		t.Fatal(err)
	}

	c.IncJobsProcessed()
	second, err := c.Render()
	if err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(first, "jobs_processed_total 1") {
		t.Fatalf("expected counter at 1 after one increment, got:\n%s", first)
	}
	if !strings.Contains(second, "jobs_processed_total 2") {
		t.Fatalf("expected counter at 2 after two increments, got:\n%s", second)
	}
}

func TestCustomGaugeRegistration(t *testing.T) {
	c := NewCollector()

	gauge := c.RegisterGauge("queue_depth", "Depth of the pending queue.")
	gauge.Set(42)

	// Registering again by the same name must return the existing metric,
	// not panic on a duplicate registration.
	again := c.RegisterGauge("queue_depth", "Depth of the pending queue.")
	again.Set(7)

	out, err := c.Render()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "queue_depth 7") {
		t.Fatalf("expected queue_depth to reflect the latest set value, got:\n%s", out)
	}
}
