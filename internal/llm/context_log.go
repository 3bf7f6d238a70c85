package llm

import (
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// DefaultTokenBudget bounds the rolling interaction log injected into
// prompts.
const DefaultTokenBudget = 4000

// ContextEntry is one recorded model interaction.
type ContextEntry struct {
	Role      string    `json:"role"` // "prompt" or "response"
	Content   string    `json:"content"`
	Tokens    int       `json:"tokens"`
	CreatedAt time.Time `json:"created_at"`
}

// ContextLog is a per-game rolling log of model interactions, trimmed by an
// approximate token budget. Single writer, any readers.
type ContextLog struct {
	mu      sync.Mutex
	budget  int
	now     func() time.Time
	entries []ContextEntry
	total   int
}

// NewContextLog builds a log with the given budget (DefaultTokenBudget when
// zero or negative) and clock.
func NewContextLog(budget int, now func() time.Time) *ContextLog {
	if budget <= 0 {
		budget = DefaultTokenBudget
	}
	if now == nil {
		now = time.Now
	}
	return &ContextLog{budget: budget, now: now}
}

// EstimateTokens approximates the token count of a string. Four characters
// per token is close enough for budget trimming.
func EstimateTokens(s string) int {
	n := utf8.RuneCountInString(s)
	return n/4 + 1
}

// Append records one interaction and trims the oldest entries past the
// budget.
func (l *ContextLog) Append(role, content string) {
	if content == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	entry := ContextEntry{Role: role, Content: content, Tokens: EstimateTokens(content), CreatedAt: l.now()}
	l.entries = append(l.entries, entry)
	l.total += entry.Tokens
	for l.total > l.budget && len(l.entries) > 1 {
		l.total -= l.entries[0].Tokens
		l.entries = l.entries[1:]
	}
}

// Recent returns up to n entries, newest last. n <= 0 returns everything.
func (l *ContextLog) Recent(n int) []ContextEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n <= 0 || n > len(l.entries) {
		n = len(l.entries)
	}
	out := make([]ContextEntry, n)
	copy(out, l.entries[len(l.entries)-n:])
	return out
}

// Render flattens the log into prompt-injectable history text.
func (l *ContextLog) Render() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == 0 {
		return ""
	}
	var b strings.Builder
	for _, e := range l.entries {
		b.WriteString(e.Role)
		b.WriteString(": ")
		b.WriteString(e.Content)
		b.WriteString("\n")
	}
	return b.String()
}

// Restore replaces the log content, re-trimming to the budget. Used when a
// save file is rehydrated.
func (l *ContextLog) Restore(entries []ContextEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
	l.total = 0
	for _, e := range entries {
		if e.Tokens == 0 {
			e.Tokens = EstimateTokens(e.Content)
		}
		l.entries = append(l.entries, e)
		l.total += e.Tokens
	}
	for l.total > l.budget && len(l.entries) > 1 {
		l.total -= l.entries[0].Tokens
		l.entries = l.entries[1:]
	}
}

// Len reports the number of live entries.
func (l *ContextLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
