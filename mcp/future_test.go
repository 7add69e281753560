package mcp

import (
	"testing"
	"time"
)

func TestFutureCompleteWins(t *testing.T) {
	future := NewFuture()
	future.Complete("value")
	future.Fail(NewMCPError(InternalError, "too late"))

	result, err := future.Wait(time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "value" {
		t.Errorf("result = %v", result)
	}
}

func TestFutureFailWins(t *testing.T) {
	future := NewFuture()
	future.Fail(NewMCPError(InvalidParams, "boom"))
	future.Complete("too late")

	result, err := future.Wait(time.Second)
	if err == nil || err.Code != InvalidParams {
		t.Fatalf("expected invalid-params error, got %v / %v", result, err)
	}
}

func TestFutureWaitTimeout(t *testing.T) {
	future := NewFuture()

	start := time.Now()
	_, err := future.Wait(20 * time.Millisecond)
	if err == nil || err.Code != RequestTimeout {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("wait did not respect timeout")
	}

	// A late completion after timeout is a harmless no-op.
	future.Complete("late")
	if !future.Resolved() {
		t.Error("future should be resolved after completion")
	}
}

func TestFutureAsyncCompletion(t *testing.T) {
	future := NewFuture()
	go func() {
		time.Sleep(10 * time.Millisecond)
		future.Complete(42)
	}()

	result, err := future.Wait(time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != 42 {
		t.Errorf("result = %v", result)
	}
}
