package builtin

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mcintyjp/microservice-worker/internal/actions"
	"github.com/mcintyjp/microservice-worker/internal/apperrors"
	"github.com/mcintyjp/microservice-worker/internal/container"
	"github.com/mcintyjp/microservice-worker/internal/health"
	"github.com/mcintyjp/microservice-worker/internal/observability"
)

func testContainer(t *testing.T) *container.Container {
	t.Helper()
	c := container.NewContainer(health.NewRegistry(), observability.NewLogger("test"))
	if err := c.Build(); err != nil {
		t.Fatal(err)
	}
	if err := c.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	return c
}

func TestGreetReturnsMessage(t *testing.T) {
	reg := actions.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatal(err)
	}

	result, err := reg.Dispatch(context.Background(), json.RawMessage(`{"action":"greet","name":"World"}`), testContainer(t))
	if err != nil {
		t.Fatal(err)
	}
	msg, ok := result.(map[string]string)
	if !ok || msg["message"] != "Hello, World!" {
		t.Fatalf("unexpected result: %v", result)
	}
}

func TestGreetRejectsMissingName(t *testing.T) {
	reg := actions.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatal(err)
	}

	_, err := reg.Dispatch(context.Background(), json.RawMessage(`{"action":"greet"}`), testContainer(t))
	if !apperrors.Is(err, apperrors.ValidationError) {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
}

func TestEchoRequiresNoDependencies(t *testing.T) {
	reg := actions.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatal(err)
	}

	result, err := reg.Dispatch(context.Background(), json.RawMessage(`{"action":"echo"}`), testContainer(t))
	if err != nil {
		t.Fatal(err)
	}
	if result.(map[string]any)["echo"] != true {
		t.Fatalf("unexpected result: %v", result)
	}
}
