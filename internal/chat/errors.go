package chat

import "errors"

// Sentinel errors for the orchestration core.
// Use errors.Is() to classify failures in calling code.
var (
	// ErrUnreachable indicates an outbound adapter call could not reach
	// its service (connection refused, DNS failure, broken transport).
	ErrUnreachable = errors.New("service unreachable")

	// ErrTimeout indicates an adapter call exceeded its deadline.
	// Adapters never retry; retry policy belongs to the caller.
	ErrTimeout = errors.New("service timeout")

	// ErrModelNotFound indicates the inference service does not know the
	// requested model.
	ErrModelNotFound = errors.New("model not found")

	// ErrNotConfigured indicates the search service has no credential.
	// Terminal and non-retryable, distinct from transient network failures.
	ErrNotConfigured = errors.New("search not configured")

	// ErrRateLimited indicates the search service rejected the call for
	// quota reasons.
	ErrRateLimited = errors.New("search rate limited")

	// ErrNotFound indicates the referenced conversation or message does
	// not exist or does not belong to the requesting owner.
	ErrNotFound = errors.New("not found")

	// ErrAgentExhausted indicates the agent loop hit its iteration
	// ceiling and the final synthesis attempt also failed. A ceiling-reached
	// run that still produces an answer is a success, not this error.
	ErrAgentExhausted = errors.New("agent exhausted")

	// ErrInvalidRole indicates an operation targeted a message whose role
	// does not support it (e.g. regenerating a user message).
	ErrInvalidRole = errors.New("invalid role")

	// ErrEmptyMessage indicates a chat request with no content.
	ErrEmptyMessage = errors.New("empty message")
)
