package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"

	platformerrors "github.com/ravenmoor/deepspire/internal/platform/errors"
)

type fakeCompleter struct {
	responses []string
	errs      []error
	calls     int
	block     chan struct{}
}

func (f *fakeCompleter) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return openai.ChatCompletionResponse{}, ctx.Err()
		}
	}
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return openai.ChatCompletionResponse{}, f.errs[i]
	}
	content := ""
	if i < len(f.responses) {
		content = f.responses[i]
	} else if len(f.responses) > 0 {
		content = f.responses[len(f.responses)-1]
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: content}}},
	}, nil
}

func TestGenerateTextSanitizesResponse(t *testing.T) {
	fake := &fakeCompleter{responses: []string{"```\n黑暗的走廊在你面前延伸\n```"}}
	s := NewService(ServiceConfig{Client: fake, Model: "test-model"})

	got, err := s.GenerateText(context.Background(), "描述走廊", Options{})
	if err != nil {
		t.Fatalf("GenerateText() error = %v", err)
	}
	if got != "黑暗的走廊在你面前延伸" {
		t.Fatalf("got %q, want fences stripped", got)
	}
}

func TestGenerateTextRetriesTransientFailure(t *testing.T) {
	fake := &fakeCompleter{
		errs:      []error{errors.New("upstream hiccup")},
		responses: []string{"", "平安无事"},
	}
	s := NewService(ServiceConfig{Client: fake, Model: "test-model", MaxRetries: 2, RetryBackoff: time.Millisecond})

	got, err := s.GenerateText(context.Background(), "x", Options{})
	if err != nil {
		t.Fatalf("GenerateText() error = %v", err)
	}
	if got != "平安无事" {
		t.Fatalf("got %q", got)
	}
	if fake.calls != 2 {
		t.Fatalf("calls = %d, want 2", fake.calls)
	}
}

func TestGenerateTextExhaustedRetriesSurfacesUpstream(t *testing.T) {
	fake := &fakeCompleter{errs: []error{errors.New("down"), errors.New("down"), errors.New("down")}}
	s := NewService(ServiceConfig{Client: fake, Model: "test-model", MaxRetries: 2, RetryBackoff: time.Millisecond})

	_, err := s.GenerateText(context.Background(), "x", Options{})
	if err == nil {
		t.Fatalf("expected error after retries exhausted")
	}
	if platformerrors.CodeOf(err) != platformerrors.CodeUpstream {
		t.Fatalf("code = %s, want UPSTREAM", platformerrors.CodeOf(err))
	}
	if fake.calls != 3 {
		t.Fatalf("calls = %d, want 3", fake.calls)
	}
}

func TestGenerateJSONRecovery(t *testing.T) {
	fake := &fakeCompleter{responses: []string{"```json\n{'name': '幽暗回廊', 'description': '潮湿的石壁',}\n```"}}
	s := NewService(ServiceConfig{Client: fake, Model: "test-model"})

	obj, err := s.GenerateJSON(context.Background(), "命名这一层", map[string]any{"name": "string"}, Options{})
	if err != nil {
		t.Fatalf("GenerateJSON() error = %v", err)
	}
	if obj["name"] != "幽暗回廊" {
		t.Fatalf("obj = %v", obj)
	}
}

func TestContextLogInjectionAndRecording(t *testing.T) {
	fake := &fakeCompleter{responses: []string{"回应内容"}}
	s := NewService(ServiceConfig{Client: fake, Model: "test-model"})
	clog := NewContextLog(1000, nil)
	clog.Append("response", "先前的故事")

	if _, err := s.GenerateText(context.Background(), "继续", Options{Log: clog}); err != nil {
		t.Fatalf("GenerateText() error = %v", err)
	}
	// the original entry plus this exchange's prompt and response
	if clog.Len() != 3 {
		t.Fatalf("log entries = %d, want 3", clog.Len())
	}
}

func TestRecoverJSONTable(t *testing.T) {
	tests := []struct {
		name string
		in   string
		key  string
		want any
	}{
		{"plain", `{"a": 1}`, "a", float64(1)},
		{"bom", "\ufeff{\"a\": 1}", "a", float64(1)},
		{"fenced", "```json\n{\"a\": 1}\n```", "a", float64(1)},
		{"trailing comma", `{"a": 1,}`, "a", float64(1)},
		{"single quotes", `{'a': 'b'}`, "a", "b"},
		{"array wrapper", `[{"a": 1}]`, "a", float64(1)},
		{"prose around", "好的, 这是结果:\n{\"a\": 1}\n希望有帮助", "a", float64(1)},
	}
	for _, tt := range tests {
		obj, err := RecoverJSON(tt.in)
		if err != nil {
			t.Fatalf("%s: RecoverJSON() error = %v", tt.name, err)
		}
		if obj[tt.key] != tt.want {
			t.Fatalf("%s: obj[%q] = %v, want %v", tt.name, tt.key, obj[tt.key], tt.want)
		}
	}
}

func TestRecoverJSONRejectsGarbage(t *testing.T) {
	if _, err := RecoverJSON("这不是JSON"); err == nil {
		t.Fatalf("non-json input should error")
	}
}

func TestContextLogTrimsByBudget(t *testing.T) {
	clog := NewContextLog(10, nil)
	clog.Append("prompt", "aaaaaaaaaaaaaaaaaaaa")   // ~6 tokens
	clog.Append("response", "bbbbbbbbbbbbbbbbbbbb") // ~6 tokens, pushes out the first
	if clog.Len() != 1 {
		t.Fatalf("log entries = %d, want trimmed to 1", clog.Len())
	}
	if clog.Recent(1)[0].Role != "response" {
		t.Fatalf("oldest entry should be trimmed first")
	}
}
