package retry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestBackoff_Delay(t *testing.T) {
	b := &Backoff{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 3}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 100 * time.Millisecond},
		{2, 300 * time.Millisecond},
		{3, 900 * time.Millisecond},
		{4, time.Second},
		{50, time.Second},
	}
	for _, tt := range tests {
		if got := b.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}

	var zero Backoff
	if got := zero.Delay(2); got != 2*time.Second {
		t.Errorf("zero-value Delay(2) = %v, want 2s", got)
	}
}

func TestBackoff_SucceedsAfterTransientFailures(t *testing.T) {
	b := &Backoff{InitialDelay: time.Millisecond, MaxAttempts: 5}

	var seen []int
	err := b.Do(context.Background(), func(attempt int) error {
		seen = append(seen, attempt)
		if attempt < 3 {
			return errors.New("connection refused")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if fmt.Sprint(seen) != "[1 2 3]" {
		t.Errorf("attempts = %v", seen)
	}
}

func TestBackoff_Exhausted(t *testing.T) {
	inner := errors.New("connection refused")
	b := &Backoff{InitialDelay: time.Millisecond, MaxAttempts: 3}

	calls := 0
	err := b.Do(context.Background(), func(int) error {
		calls++
		return inner
	})
	if !errors.Is(err, inner) || !strings.Contains(err.Error(), "giving up after 3 attempts") {
		t.Fatalf("err = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestBackoff_SingleAttemptReturnsErrorAsIs(t *testing.T) {
	inner := errors.New("refused")
	b := &Backoff{MaxAttempts: 1}
	if err := b.Do(context.Background(), func(int) error { return inner }); err != inner {
		t.Errorf("got %v, want the bare error", err)
	}
}

func TestBackoff_PermanentStops(t *testing.T) {
	inner := errors.New("host key mismatch")
	b := &Backoff{InitialDelay: time.Millisecond, MaxAttempts: 5}

	calls := 0
	err := b.Do(context.Background(), func(int) error {
		calls++
		return Permanent(inner)
	})
	if err != inner {
		t.Errorf("err = %v, want the unwrapped error", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestBackoff_OnRetry(t *testing.T) {
	var attempts []int
	b := &Backoff{
		InitialDelay: time.Millisecond,
		MaxAttempts:  3,
		OnRetry: func(attempt int, err error, wait time.Duration) {
			attempts = append(attempts, attempt)
			if wait <= 0 {
				t.Errorf("wait = %v", wait)
			}
		},
	}
	b.Do(context.Background(), func(int) error { return errors.New("x") }) //nolint:errcheck

	// No retry follows the final attempt.
	if fmt.Sprint(attempts) != "[1 2]" {
		t.Errorf("OnRetry attempts = %v, want [1 2]", attempts)
	}
}

func TestBackoff_ContextCancelled(t *testing.T) {
	b := &Backoff{InitialDelay: 5 * time.Second}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := b.Do(ctx, func(int) error { return errors.New("fail") })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("Do kept waiting after the context ended")
	}
}

func TestIsPermanent(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"permanent", Permanent(errors.New("x")), true},
		{"wrapped", fmt.Errorf("dial: %w", Permanent(errors.New("x"))), true},
		{"plain", errors.New("x"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsPermanent(tt.err); got != tt.want {
				t.Errorf("IsPermanent() = %v, want %v", got, tt.want)
			}
		})
	}
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}
}

func TestJitter_Bounds(t *testing.T) {
	d := 100 * time.Millisecond
	for i := 0; i < 200; i++ {
		j := jitter(d)
		if j < 75*time.Millisecond || j > 125*time.Millisecond {
			t.Fatalf("jitter(%v) = %v outside ±25%%", d, j)
		}
	}
	if got := jitter(0); got != time.Millisecond {
		t.Errorf("jitter(0) = %v, want 1ms floor", got)
	}
}
