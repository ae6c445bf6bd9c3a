package registry

import (
	"testing"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/mcintyjp/microservice-worker/internal/health"
)

func TestChecksToBSONIncludesStatusAndDetails(t *testing.T) {
	checks := map[string]health.Check{
		"job_queue": {Status: health.GREEN, Details: map[string]any{"last_poll": "ok"}},
	}

	out := checksToBSON(checks)

	entry, ok := out["job_queue"].(bson.M)
	if !ok {
		t.Fatalf("expected map entry, got %T", out["job_queue"])
	}
	if entry["status"] != "GREEN" {
		t.Fatalf("expected GREEN, got %v", entry["status"])
	}
}
