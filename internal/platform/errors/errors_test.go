package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	err := New(CodeNotFound, "game missing")
	if !stderrors.Is(err, New(CodeNotFound, "other message")) {
		t.Fatal("expected errors with same code to match")
	}
	if stderrors.Is(err, New(CodeConflict, "game missing")) {
		t.Fatal("expected errors with different codes not to match")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := Wrap(CodeSaveFailed, "save failed", cause)
	if !stderrors.Is(err, cause) {
		t.Fatal("expected wrapped cause to be reachable via errors.Is")
	}
	if err.Error() != "save failed" {
		t.Fatalf("Error() = %q, want %q", err.Error(), "save failed")
	}
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"nil", nil, CodeUnknown},
		{"domain", New(CodeRateLimited, "busy"), CodeRateLimited},
		{"wrapped domain", fmt.Errorf("outer: %w", New(CodeTimeout, "slow")), CodeTimeout},
		{"foreign", fmt.Errorf("plain"), CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.want {
				t.Fatalf("CodeOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeInvalidArgument, http.StatusBadRequest},
		{CodeNotFound, http.StatusNotFound},
		{CodeConflict, http.StatusConflict},
		{CodeGameOver, http.StatusConflict},
		{CodeRateLimited, http.StatusTooManyRequests},
		{CodeTimeout, http.StatusGatewayTimeout},
		{CodeUpstream, http.StatusBadGateway},
		{CodeActionFailed, http.StatusUnprocessableEntity},
		{CodeInternal, http.StatusInternalServerError},
		{CodeUnknown, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := tt.code.HTTPStatus(); got != tt.want {
			t.Fatalf("%s.HTTPStatus() = %d, want %d", tt.code, got, tt.want)
		}
	}
}

func TestRetryable(t *testing.T) {
	retryable := []Code{CodeRateLimited, CodeTimeout, CodeUpstream}
	for _, c := range retryable {
		if !c.Retryable() {
			t.Fatalf("%s.Retryable() = false, want true", c)
		}
	}
	if CodeInvalidArgument.Retryable() {
		t.Fatal("INVALID_ARGUMENT must never be retryable")
	}
	if IsRetryable(New(CodeGameOver, "dead")) {
		t.Fatal("GAME_OVER must never be retryable")
	}
}
