package reqctx

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestWithRequestContext(t *testing.T) {
	ctx := WithRequestContext(context.Background(), "abc-123")
	if got := GetRequestContext(ctx).RequestID; got != "abc-123" {
		t.Errorf("expected caller id, got %q", got)
	}

	ctx = WithRequestContext(context.Background(), "")
	if got := GetRequestContext(ctx).RequestID; got == "" || got == "unknown" {
		t.Errorf("expected generated id, got %q", got)
	}

	ctx = WithRequestContext(context.Background(), strings.Repeat("x", 100))
	if got := GetRequestContext(ctx).RequestID; len(got) > 64 {
		t.Errorf("expected oversized id to be replaced, got %q", got)
	}
}

func TestGetRequestContext_Missing(t *testing.T) {
	if got := GetRequestContext(context.Background()).RequestID; got != "unknown" {
		t.Errorf("expected unknown, got %q", got)
	}
}

func TestNewRequestError(t *testing.T) {
	base := errors.New("boom")
	ctx := WithRequestContext(context.Background(), "req-1")

	err := NewRequestError(ctx, base)
	if !errors.Is(err, base) {
		t.Error("expected wrapped error")
	}
	if err.Error() != "[req-1] boom" {
		t.Errorf("unexpected message %q", err.Error())
	}
}
