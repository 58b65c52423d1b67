package events

import (
	"context"
	"errors"
	"testing"
	"time"
)

type testEvent struct {
	BaseEvent
	name string
}

func (e testEvent) EventName() string { return e.name }

type nopLogger struct{}

func (nopLogger) Error(msg string, args ...any) {}

func TestPublishSyncRunsHandlersInRegistrationOrder(t *testing.T) {
	bus := NewInMemoryBus(nopLogger{})

	var order []int
	bus.Subscribe("step.sent", HandlerFunc(func(ctx context.Context, e Event) error {
		order = append(order, 1)
		return nil
	}))
	bus.Subscribe("step.sent", HandlerFunc(func(ctx context.Context, e Event) error {
		order = append(order, 2)
		return nil
	}))

	if err := bus.PublishSync(context.Background(), testEvent{BaseEvent: NewBaseEvent(), name: "step.sent"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("expected handlers in registration order [1 2], got %v", order)
	}
}

func TestPublishSyncReturnsFirstErrorButRunsAllHandlers(t *testing.T) {
	bus := NewInMemoryBus(nopLogger{})

	wantErr := errors.New("journal unavailable")
	ran := 0
	bus.Subscribe("step.failed", HandlerFunc(func(ctx context.Context, e Event) error {
		ran++
		return wantErr
	}))
	bus.Subscribe("step.failed", HandlerFunc(func(ctx context.Context, e Event) error {
		ran++
		return errors.New("second error")
	}))

	err := bus.PublishSync(context.Background(), testEvent{BaseEvent: NewBaseEvent(), name: "step.failed"})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected first handler error, got %v", err)
	}
	if ran != 2 {
		t.Fatalf("expected both handlers to run, got %d", ran)
	}
}

func TestPublishDoesNotBlockAndReachesHandler(t *testing.T) {
	bus := NewInMemoryBus(nopLogger{})

	done := make(chan struct{})
	bus.Subscribe("trigger.accepted", HandlerFunc(func(ctx context.Context, e Event) error {
		close(done)
		return nil
	}))

	bus.Publish(context.Background(), testEvent{BaseEvent: NewBaseEvent(), name: "trigger.accepted"})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("handler was not invoked within 2s")
	}
}

func TestPanickingHandlerDoesNotStopOthers(t *testing.T) {
	bus := NewInMemoryBus(nopLogger{})

	bus.Subscribe("sequence.settled", HandlerFunc(func(ctx context.Context, e Event) error {
		panic("boom")
	}))
	survived := false
	bus.Subscribe("sequence.settled", HandlerFunc(func(ctx context.Context, e Event) error {
		survived = true
		return nil
	}))

	if err := bus.PublishSync(context.Background(), testEvent{BaseEvent: NewBaseEvent(), name: "sequence.settled"}); err != nil {
		t.Fatalf("unexpected error from panic recovery: %v", err)
	}
	if !survived {
		t.Fatalf("expected second handler to run after first panicked")
	}
}
