package utils

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestFormatPrice(t *testing.T) {
	tests := []struct {
		price float64
		want  string
	}{
		{172.5, "$172.50"},
		{1210.5, "$1,210.50"},
		{1000000, "$1,000,000.00"},
	}
	for _, tt := range tests {
		if got := FormatPrice(tt.price); got != tt.want {
			t.Errorf("FormatPrice(%v) = %q, want %q", tt.price, got, tt.want)
		}
	}
}

func TestFormatPercent(t *testing.T) {
	if got := FormatPercent(0.0629); got != "+6.29%" {
		t.Errorf("FormatPercent(0.0629) = %q, want +6.29%%", got)
	}
	if got := FormatPercent(-0.05); !strings.HasPrefix(got, "-5.00") {
		t.Errorf("FormatPercent(-0.05) = %q, want -5.00%%", got)
	}
}

func TestPercentFrom(t *testing.T) {
	if got := PercentFrom(175, 186); got < 0.0628 || got > 0.0629 {
		t.Errorf("PercentFrom(175, 186) = %v", got)
	}
	if got := PercentFrom(0, 186); got != 0 {
		t.Errorf("PercentFrom with zero base = %v, want 0", got)
	}
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	attempts := 0
	cfg := RetryConfig{MaxAttempts: 5, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, BackoffFactor: 2}

	err := Retry(context.Background(), cfg, func() error {
		attempts++
		if attempts < 3 {
			return fmt.Errorf("attempt %d", attempts)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 1}

	attempts := 0
	err := Retry(context.Background(), cfg, func() error {
		attempts++
		return fmt.Errorf("always fails")
	})
	if err == nil {
		t.Fatal("expected the last error back")
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRetryStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := RetryConfig{MaxAttempts: 0, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 1}
	err := Retry(ctx, cfg, func() error { return fmt.Errorf("nope") })
	if err != context.Canceled {
		t.Errorf("got %v, want context.Canceled", err)
	}
}
