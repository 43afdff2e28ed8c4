package syncq

import (
	"testing"
)

func TestLoadMissingQueueIsEmpty(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	queue, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(queue) != 0 {
		t.Fatalf("fresh queue should be empty, got %d", len(queue))
	}
}

func TestPushPreservesOrder(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	first := Command{Method: "POST", Path: "/v1/actions/buy", Body: map[string]any{"quantity": float64(10)}, IdempotencyKey: "k1"}
	second := Command{Method: "POST", Path: "/v1/actions/intel", Body: map[string]any{"direction": "up"}, IdempotencyKey: "k2"}
	if err := Push(first); err != nil {
		t.Fatalf("push first: %v", err)
	}
	if err := Push(second); err != nil {
		t.Fatalf("push second: %v", err)
	}

	queue, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(queue) != 2 {
		t.Fatalf("queue length got %d want 2", len(queue))
	}
	if queue[0].IdempotencyKey != "k1" || queue[1].IdempotencyKey != "k2" {
		t.Fatalf("order not preserved: %+v", queue)
	}
	if queue[0].Path != "/v1/actions/buy" || queue[0].Body["quantity"] != float64(10) {
		t.Fatalf("first command mangled: %+v", queue[0])
	}
}

func TestSaveReplacesQueue(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	if err := Push(Command{Method: "POST", Path: "/v1/actions/loan", IdempotencyKey: "k1"}); err != nil {
		t.Fatalf("push: %v", err)
	}
	if err := Save([]Command{}); err != nil {
		t.Fatalf("save: %v", err)
	}
	queue, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(queue) != 0 {
		t.Fatalf("drained queue should be empty, got %d", len(queue))
	}
}
