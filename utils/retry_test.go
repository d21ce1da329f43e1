package utils

import (
	"errors"
	"testing"
	"time"
)

func TestRetryEventualSuccess(t *testing.T) {
	r := &RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond}

	attempts := 0
	err := r.Do("flaky", func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts: got %d, want 3", attempts)
	}
}

func TestRetryBudgetExhausted(t *testing.T) {
	r := &RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond}

	attempts := 0
	err := r.Do("always-fails", func() error {
		attempts++
		return errors.New("transient")
	})

	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if attempts != 2 {
		t.Errorf("attempts: got %d, want 2", attempts)
	}
}

func TestRetryPermanentStopsImmediately(t *testing.T) {
	r := &RetryConfig{MaxAttempts: 5, BaseDelay: time.Millisecond}

	sentinel := errors.New("bad request")
	attempts := 0
	err := r.Do("permanent", func() error {
		attempts++
		return Permanent(sentinel)
	})

	if attempts != 1 {
		t.Errorf("attempts: got %d, want 1", attempts)
	}
	if !errors.Is(err, sentinel) {
		t.Errorf("expected unwrapped sentinel error, got %v", err)
	}
}

func TestIsPermanent(t *testing.T) {
	if !IsPermanent(Permanent(errors.New("x"))) {
		t.Error("Permanent-wrapped error should report permanent")
	}
	if IsPermanent(errors.New("x")) {
		t.Error("plain error should not report permanent")
	}
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}
}
