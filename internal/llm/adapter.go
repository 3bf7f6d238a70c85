// Package llm adapts OpenAI-compatible chat providers into the uniform
// text/JSON generation surface the game consumes: bounded concurrency,
// retries with backoff, sanitization, context-log injection, and JSON
// recovery.
package llm

import (
	"context"
	"log"
	"sort"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/semaphore"

	"github.com/ravenmoor/deepspire/internal/llm/sanitize"
	platformerrors "github.com/ravenmoor/deepspire/internal/platform/errors"
	"github.com/ravenmoor/deepspire/internal/platform/timeouts"
)

// Defaults for call handling.
const (
	DefaultTimeout         = timeouts.LLMRequest
	DefaultMaxOutputTokens = 1024
	DefaultMaxRetries      = 2
	DefaultRetryBackoff    = 500 * time.Millisecond
	// semaphoreWait bounds how long a saturated call waits before failing
	// with RATE_LIMITED.
	semaphoreWait = timeouts.LLMSemaphoreWait
)

// Options tunes one generation call.
type Options struct {
	Timeout         time.Duration
	MaxOutputTokens int
	Temperature     float32
	TopP            float32
	// Log, when set, injects recent interactions into the prompt and
	// records this exchange.
	Log *ContextLog
}

// Adapter is the generation surface the game consumes. A fake implements it
// in tests.
type Adapter interface {
	GenerateText(ctx context.Context, prompt string, opts Options) (string, error)
	GenerateJSON(ctx context.Context, prompt string, schema map[string]any, opts Options) (map[string]any, error)
}

// Service is the production adapter over an OpenAI-compatible client.
type Service struct {
	client    ChatCompleter
	model     string
	sanitizer *sanitize.Sanitizer
	sem       *semaphore.Weighted
	retries   uint64
	backoff   time.Duration
	timeout   time.Duration
	maxTokens int
	debug     bool
}

// ServiceConfig wires a Service. Timeout and MaxOutputTokens set the
// defaults for calls whose Options leave them zero.
type ServiceConfig struct {
	Client          ChatCompleter
	Model           string
	MaxConcurrent   int64
	MaxRetries      int
	RetryBackoff    time.Duration
	Timeout         time.Duration
	MaxOutputTokens int
	ShowDebug       bool
}

// NewService builds the adapter. MaxConcurrent below 1 defaults to 4.
func NewService(cfg ServiceConfig) *Service {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 4
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = DefaultRetryBackoff
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = DefaultMaxOutputTokens
	}
	return &Service{
		client:    cfg.Client,
		model:     cfg.Model,
		sanitizer: sanitize.New(),
		sem:       semaphore.NewWeighted(cfg.MaxConcurrent),
		retries:   uint64(cfg.MaxRetries),
		backoff:   cfg.RetryBackoff,
		timeout:   cfg.Timeout,
		maxTokens: cfg.MaxOutputTokens,
		debug:     cfg.ShowDebug,
	}
}

// GenerateText produces sanitized narrative text.
func (s *Service) GenerateText(ctx context.Context, prompt string, opts Options) (string, error) {
	return s.complete(ctx, prompt, opts, false)
}

// GenerateJSON produces a JSON object, recovering from common formatting
// damage. The schema, when present, is appended to the prompt as an output
// contract.
func (s *Service) GenerateJSON(ctx context.Context, prompt string, schema map[string]any, opts Options) (map[string]any, error) {
	if schema != nil {
		prompt = prompt + "\n\n" + schemaInstruction(schema)
	}
	raw, err := s.complete(ctx, prompt, opts, true)
	if err != nil {
		return nil, err
	}
	obj, err := RecoverJSON(raw)
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.CodeUpstream, "model returned unparseable json", err)
	}
	return obj, nil
}

func (s *Service) complete(ctx context.Context, prompt string, opts Options, wantJSON bool) (string, error) {
	prompt = s.sanitizer.CleanPrompt(prompt)
	if opts.Log != nil {
		if history := opts.Log.Render(); history != "" {
			prompt = "此前的故事背景:\n" + history + "\n" + prompt
		}
	}

	if !s.sem.TryAcquire(1) {
		waitCtx, cancel := context.WithTimeout(ctx, semaphoreWait)
		err := s.sem.Acquire(waitCtx, 1)
		cancel()
		if err != nil {
			return "", platformerrors.New(platformerrors.CodeRateLimited, "llm concurrency limit reached")
		}
	}
	defer s.sem.Release(1)

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = s.timeout
	}
	maxTokens := opts.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = s.maxTokens
	}

	req := openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   maxTokens,
		Temperature: opts.Temperature,
		TopP:        opts.TopP,
	}
	if wantJSON {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	var content string
	backoff := retry.WithMaxRetries(s.retries, retry.NewFibonacci(s.backoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		resp, err := s.client.CreateChatCompletion(callCtx, req)
		if err != nil {
			if callCtx.Err() == context.DeadlineExceeded {
				return retry.RetryableError(platformerrors.Wrap(platformerrors.CodeTimeout, "llm call timed out", err))
			}
			return retry.RetryableError(platformerrors.Wrap(platformerrors.CodeUpstream, "llm call failed", err))
		}
		if len(resp.Choices) == 0 {
			return retry.RetryableError(platformerrors.New(platformerrors.CodeUpstream, "llm returned no choices"))
		}
		content = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		log.Printf("llm generate failed json=%t err=%v", wantJSON, err)
		return "", err
	}

	content = s.sanitizer.CleanResponse(content)
	if s.debug {
		log.Printf("llm exchange prompt_len=%d response_len=%d", len(prompt), len(content))
	}
	if opts.Log != nil {
		opts.Log.Append("prompt", prompt)
		opts.Log.Append("response", content)
	}
	return content, nil
}

// schemaInstruction renders a minimal output contract from a schema map.
func schemaInstruction(schema map[string]any) string {
	keys := make([]string, 0, len(schema))
	for k := range schema {
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return "只输出一个JSON对象, 不要包含任何其他文字。"
	}
	sort.Strings(keys)
	return "只输出一个JSON对象, 必须包含这些字段: " + strings.Join(keys, ", ") + "。不要包含任何其他文字。"
}
