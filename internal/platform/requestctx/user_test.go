package requestctx

import (
	"context"
	"testing"
)

func TestUserIDRoundTrip(t *testing.T) {
	ctx := WithUserID(context.Background(), "user-42")
	if got := UserIDFromContext(ctx); got != "user-42" {
		t.Fatalf("UserIDFromContext = %q, want %q", got, "user-42")
	}
}

func TestUserIDMissing(t *testing.T) {
	if got := UserIDFromContext(context.Background()); got != "" {
		t.Fatalf("UserIDFromContext = %q, want empty", got)
	}
	if got := UserIDFromContext(nil); got != "" {
		t.Fatalf("UserIDFromContext(nil) = %q, want empty", got)
	}
}

func TestWithUserIDNilContext(t *testing.T) {
	ctx := WithUserID(nil, "user-99")
	if ctx == nil {
		t.Fatalf("context is nil")
	}
	if got := UserIDFromContext(ctx); got != "user-99" {
		t.Fatalf("UserIDFromContext = %q, want %q", got, "user-99")
	}
}

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-7")
	if got := RequestIDFromContext(ctx); got != "req-7" {
		t.Fatalf("RequestIDFromContext = %q, want %q", got, "req-7")
	}
}

func TestRequestIDDoesNotLeakIntoUserID(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-7")
	if got := UserIDFromContext(ctx); got != "" {
		t.Fatalf("UserIDFromContext = %q, want empty", got)
	}
}
