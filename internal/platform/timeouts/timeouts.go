// Package timeouts defines shared timeout constants used across the server.
// Centralizing these values prevents drift between subsystem boundaries and
// makes the durations discoverable.
package timeouts

import "time"

// LLMRequest is the default cap for a single LLM generation call. Individual
// calls may override it through adapter options or LLM_TIMEOUT.
const LLMRequest = 30 * time.Second

// LLMSemaphoreWait caps how long a request waits for a free LLM slot before
// failing with a rate-limited error instead of queueing indefinitely.
const LLMSemaphoreWait = 2 * time.Second

// ReadHeader limits how long the HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long the HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second
