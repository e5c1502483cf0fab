package usecase

import (
	"context"
	"time"

	"chat-orchestrator/internal/domain"
)

// ChatInput encapsulates one accepted chat completion request. It is
// immutable once handed to the usecase.
type ChatInput struct {
	Model    string
	Messages []domain.Message
	Metadata RequestMetadata
	User     string

	Temperature *float64
	TopP        *float64
	MaxTokens   int
	Stop        []string

	// UseRetrieval overrides the configured default when set.
	UseRetrieval *bool
}

// RequestMetadata carries conversation context opaque to the pipeline
// beyond being forwarded to the conversation store.
type RequestMetadata struct {
	CompanyID         string
	ProjectID         string
	ConversationID    string
	SessionID         string
	ConversationTitle string
}

// ChatOutput is the finalized non-streaming result.
type ChatOutput struct {
	ID               string
	Model            string
	Created          int64
	Content          string
	FinishReason     string
	PromptTokens     int
	CompletionTokens int
}

// StreamChunkKind tags the variant of a streamed chunk.
type StreamChunkKind string

const (
	StreamChunkKindThinking StreamChunkKind = "thinking"
	StreamChunkKindDelta    StreamChunkKind = "delta"
	StreamChunkKindDone     StreamChunkKind = "done"
)

// StreamChunk is one incremental unit of a chat response stream.
// Within one stream, Done is emitted exactly once and is always last;
// Thinking chunks only appear before the first Delta; Delta contents
// concatenated in order reconstitute the full answer.
type StreamChunk struct {
	Kind         StreamChunkKind
	Text         string
	FinishReason string
}

// ChatUsecase coordinates retrieval, prompt assembly and model
// invocation into one ordered output stream per request.
type ChatUsecase interface {
	Execute(ctx context.Context, input ChatInput) (*ChatOutput, error)
	Stream(ctx context.Context, input ChatInput) (<-chan StreamChunk, error)
}

// ModelResolver selects the model client for a request's model id.
type ModelResolver interface {
	Resolve(model string) (domain.ModelClient, error)
}

// ChatConfig holds the tunables threaded into the orchestrator at
// construction time.
type ChatConfig struct {
	ShowThinking      bool
	PromptTokenBudget int
	CompletionReserve int
	RetrievalEnabled  bool
	RetrievalTopK     int
	RetrievalTimeout  time.Duration
	ModelTimeout      time.Duration
	CacheSize         int
	CacheTTL          time.Duration
}
