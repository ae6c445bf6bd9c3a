package health

import "testing"

func TestEmptyRegistryAggregatesGreen(t *testing.T) {
	r := NewRegistry()

	_, aggregate := r.Snapshot()
	if aggregate != GREEN {
		t.Fatalf("expected GREEN for empty registry, got %v", aggregate)
	}
}

func TestRegisterIsIdempotent(t *testing.T) {
	r := NewRegistry()

	r.Register("job_queue")
	if err := r.Update("job_queue", RED, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r.Register("job_queue")

	checks, _ := r.Snapshot()
	if checks["job_queue"].Status != RED {
		t.Fatalf("expected re-Register to be a no-op, status = %v", checks["job_queue"].Status)
	}
}

func TestUpdateUnregisteredFails(t *testing.T) {
	r := NewRegistry()

	if err := r.Update("nope", GREEN, nil); err == nil {
		t.Fatal("expected error updating unregistered check")
	}
}

func TestAggregateIsMinimum(t *testing.T) {
	r := NewRegistry()

	r.Register("job_queue")
	r.Register("payment_api")

	if err := r.Update("job_queue", GREEN, nil); err != nil {
		t.Fatal(err)
	}
	if err := r.Update("payment_api", YELLOW, nil); err != nil {
		t.Fatal(err)
	}

	_, aggregate := r.Snapshot()
	if aggregate != YELLOW {
		t.Fatalf("expected aggregate YELLOW, got %v", aggregate)
	}

	if err := r.Update("job_queue", RED, map[string]any{"detail": "connection refused"}); err != nil {
		t.Fatal(err)
	}

	_, aggregate = r.Snapshot()
	if aggregate != RED {
		t.Fatalf("expected aggregate RED, got %v", aggregate)
	}
}
