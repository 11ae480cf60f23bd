package utils

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWaitForReturnsOnContextCancel(t *testing.T) {
	originalSleep := sleep
	block := make(chan struct{})
	sleep = func(time.Duration) { <-block }
	defer func() {
		close(block)
		sleep = originalSleep
	}()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := WaitFor(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestWaitForSkipsNonPositiveDurations(t *testing.T) {
	originalSleep := sleep
	called := false
	sleep = func(time.Duration) { called = true }
	defer func() { sleep = originalSleep }()

	if err := WaitFor(context.Background(), 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called {
		t.Fatalf("sleep must not be called for zero duration")
	}
}

func TestCleanText(t *testing.T) {
	if got := CleanText("  Acme  Corp \n Inc "); got != "Acme Corp Inc" {
		t.Fatalf("unexpected cleaned text: %q", got)
	}
}
