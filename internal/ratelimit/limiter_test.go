package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestKeyLimiter_AllowPerKey(t *testing.T) {
	kl := NewKeyLimiter(1, 2)
	now := time.Unix(1_700_000_000, 0)
	kl.now = func() time.Time { return now }

	if !kl.Allow("a") || !kl.Allow("a") {
		t.Fatal("expected burst of 2 to be allowed")
	}
	if kl.Allow("a") {
		t.Error("expected third request to be limited")
	}
	if !kl.Allow("b") {
		t.Error("expected independent bucket for b")
	}
	if d := kl.RetryAfter("a"); d <= 0 || d > time.Second {
		t.Errorf("expected retry-after within a second, got %v", d)
	}

	now = now.Add(time.Second)
	if !kl.Allow("a") {
		t.Error("expected token refilled after one second")
	}
}

func TestKeyLimiter_Disabled(t *testing.T) {
	kl := NewKeyLimiter(0, 0)
	for i := 0; i < 100; i++ {
		if !kl.Allow("a") {
			t.Fatal("expected unlimited limiter to allow")
		}
	}
	if err := kl.Wait(context.Background(), "a"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if kl.RetryAfter("a") != 0 {
		t.Error("expected zero retry-after")
	}
}

func TestKeyLimiter_WaitHonoursContext(t *testing.T) {
	kl := NewKeyLimiter(0.001, 1)
	if err := kl.Wait(context.Background(), "host"); err != nil {
		t.Fatalf("first wait should pass: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := kl.Wait(ctx, "host"); err == nil {
		t.Error("expected wait to fail once the bucket is empty")
	}
}

func TestKeyLimiter_Prune(t *testing.T) {
	kl := NewKeyLimiter(1, 1)
	now := time.Unix(1_700_000_000, 0)
	kl.now = func() time.Time { return now }

	kl.Allow("old")
	now = now.Add(10 * time.Minute)
	kl.Allow("new")

	if remaining := kl.Prune(5 * time.Minute); remaining != 1 {
		t.Errorf("expected 1 bucket left, got %d", remaining)
	}
}

func TestHostKey(t *testing.T) {
	tests := map[string]string{
		"https://www.linkedin.com/jobs/search": "www.linkedin.com",
		"http://localhost:3000/export/a/b/en":  "localhost:3000",
		"::bad":                                "",
	}
	for in, want := range tests {
		if got := HostKey(in); got != want {
			t.Errorf("HostKey(%q) = %q, want %q", in, got, want)
		}
	}
}
