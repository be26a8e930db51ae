package agent

import "errors"

// Failure taxonomy. Tool-level and upstream failures are recovered locally
// and turned into text the model can read; only persistence and validation
// failures propagate to the caller of a turn.
var (
	// ErrReasoningExhausted marks a turn that hit the cycle cap without the
	// model reaching a terminal decision. The turn still completes with a
	// fallback message; the error is logged and counted, never shown raw.
	ErrReasoningExhausted = errors.New("agent: reasoning cycle cap exhausted")

	// ErrUpstreamUnavailable wraps model/search/transcript backend failures
	// after the single allowed retry.
	ErrUpstreamUnavailable = errors.New("agent: upstream service unavailable")

	// ErrToolNotFound marks a model-requested capability missing from the
	// bound tool set. Logged and skipped, never fatal.
	ErrToolNotFound = errors.New("agent: tool not found")

	// ErrPersistence marks a checkpoint backend failure. Fatal for the turn
	// in durable deployments.
	ErrPersistence = errors.New("agent: checkpoint persistence failed")

	// ErrInvalidRequest marks a malformed turn submission.
	ErrInvalidRequest = errors.New("agent: invalid turn request")
)
