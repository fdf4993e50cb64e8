package venue

import (
	"context"
	"testing"
	"time"
)

func TestNewTokenBucketStartsFull(t *testing.T) {
	t.Parallel()
	tb := NewTokenBucket(10, 1)
	if tb.tokens != 10 {
		t.Errorf("tokens = %v, want 10", tb.tokens)
	}
}

func TestTokenBucketWaitImmediate(t *testing.T) {
	t.Parallel()
	tb := NewTokenBucket(5, 1)

	for i := 0; i < 5; i++ {
		start := time.Now()
		if err := tb.Wait(context.Background()); err != nil {
			t.Fatalf("Wait() returned error: %v", err)
		}
		if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
			t.Errorf("Wait() took %v, expected immediate (token %d)", elapsed, i)
		}
	}
}

func TestTokenBucketWaitBlocks(t *testing.T) {
	t.Parallel()
	tb := NewTokenBucket(1, 10)

	if err := tb.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	if err := tb.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("Wait() returned too fast: %v", elapsed)
	}
}

func TestTokenBucketWaitContextCancelled(t *testing.T) {
	t.Parallel()
	tb := NewTokenBucket(1, 1)
	tb.Wait(context.Background()) // drain the single token

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := tb.Wait(ctx); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}
