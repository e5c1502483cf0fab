package domain

import "context"

// ConversationRef identifies the conversation a finished turn belongs to.
// Metadata is opaque to the orchestrator and forwarded as-is.
type ConversationRef struct {
	ConversationID string
	Title          string
	CompanyID      string
	ProjectID      string
	UserID         string
	Model          string
}

// ConversationStore persists completed turns. Implementations may write
// asynchronously; failures must never surface to the chat client.
type ConversationStore interface {
	Save(ctx context.Context, ref ConversationRef, turns []Message) error
}
