package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
)

// Malformed tasks must be dropped, not retried forever.
func TestHandleSequenceStepDueSkipsRetryOnBadPayload(t *testing.T) {
	mr := miniredis.RunT(t)
	w, err := NewWorker(schedulerTestConfig{url: "redis://" + mr.Addr(), queue: "sequences"}, nil, nil)
	if err != nil {
		t.Fatalf("NewWorker: %v", err)
	}

	cases := []struct {
		name    string
		payload []byte
	}{
		{"not json", []byte("not json")},
		{"bad instance id", []byte(`{"instanceId":"nope","position":1}`)},
		{"zero position", []byte(`{"instanceId":"0c7ee0ab-94f4-4e1c-b756-1d6b6ae6a3c8","position":0}`)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			task := asynq.NewTask(TaskSequenceStepDue, tc.payload)
			err := w.handleSequenceStepDue(context.Background(), task)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, asynq.SkipRetry) {
				t.Fatalf("error %v is retryable, want SkipRetry", err)
			}
		})
	}
}

func TestNewWorkerRequiresRedisURL(t *testing.T) {
	if _, err := NewWorker(schedulerTestConfig{}, nil, nil); err == nil {
		t.Fatal("expected error for missing redis url")
	}
}
