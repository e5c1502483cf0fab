package domain

import "context"

// Uniform finish-reason vocabulary across model backends.
const (
	FinishReasonStop    = "stop"
	FinishReasonLength  = "length"
	FinishReasonError   = "error"
	FinishReasonTimeout = "timeout"
)

// GenerateOptions carries sampling knobs forwarded verbatim to the backend.
type GenerateOptions struct {
	Temperature *float64
	TopP        *float64
	MaxTokens   int
	Stop        []string
}

// Completion is the full answer returned by a blocking model call.
type Completion struct {
	Content      string
	FinishReason string
}

// Fragment is one incremental unit of a streamed model response.
// FinishReason is set only on the terminal fragment (Done == true).
type Fragment struct {
	Content      string
	Done         bool
	FinishReason string
}

// ModelClient is the capability interface over one language-model backend.
// Stream delivers fragments on the first channel and at most one error on
// the second; both are closed when the call finishes. Cancellation of ctx
// aborts the underlying request.
type ModelClient interface {
	Complete(ctx context.Context, msgs []Message, opts GenerateOptions) (*Completion, error)
	Stream(ctx context.Context, msgs []Message, opts GenerateOptions) (<-chan Fragment, <-chan error, error)
	Name() string
}
