package tui

import (
	"context"
	"errors"
	"testing"
)

func TestShutdownManager_Order(t *testing.T) {
	var order []string
	sm := NewShutdownManager()
	sm.StopReceiver = func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			t.Error("receiver stop should get a deadline")
		}
		order = append(order, "receiver")
		return nil
	}
	sm.StopAPI = func(context.Context) error {
		order = append(order, "api")
		return nil
	}
	sm.CloseStore = func() error {
		order = append(order, "store")
		return nil
	}

	if err := sm.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	want := []string{"receiver", "api", "store"}
	if len(order) != len(want) {
		t.Fatalf("order: want %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order: want %v, got %v", want, order)
		}
	}
}

func TestShutdownManager_ContinuesAfterError(t *testing.T) {
	errRecv := errors.New("receiver stuck")
	errStore := errors.New("disk full")
	closed := false

	sm := NewShutdownManager()
	sm.StopReceiver = func(context.Context) error { return errRecv }
	sm.CloseStore = func() error {
		closed = true
		return errStore
	}

	err := sm.Shutdown()
	if !closed {
		t.Error("store should be closed even when the receiver fails to stop")
	}
	if !errors.Is(err, errRecv) || !errors.Is(err, errStore) {
		t.Errorf("want both errors joined, got %v", err)
	}
}

func TestShutdownManager_NothingConfigured(t *testing.T) {
	if err := NewShutdownManager().Shutdown(); err != nil {
		t.Errorf("empty manager: want nil, got %v", err)
	}
}
