package queue

import (
	"testing"
	"time"
)

func TestConvertRunTaskRoundTrip(t *testing.T) {
	payload := ConvertRunPayload{
		RunID:       "run-123",
		RequestedAt: time.Now().UTC(),
	}

	task, err := NewConvertRunTask(payload)
	if err != nil {
		t.Fatalf("NewConvertRunTask returned error: %v", err)
	}
	if task.Type() != TypeConvertRun {
		t.Fatalf("expected task type %s, got %s", TypeConvertRun, task.Type())
	}

	parsed, err := ParseConvertRunPayload(task)
	if err != nil {
		t.Fatalf("ParseConvertRunPayload returned error: %v", err)
	}
	if parsed.RunID != payload.RunID {
		t.Fatalf("expected run_id %q, got %q", payload.RunID, parsed.RunID)
	}
}
