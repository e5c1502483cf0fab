package chat_http

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/labstack/echo/v4"

	"chat-orchestrator/internal/domain"
	"chat-orchestrator/internal/usecase"
)

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type requestMetadata struct {
	CompanyID         string `json:"company_id"`
	ProjectID         string `json:"project_id"`
	ConversationID    string `json:"conversation_id"`
	SessionID         string `json:"session_id"`
	ConversationTitle string `json:"conversation_title"`
}

type chatCompletionRequest struct {
	Model        string          `json:"model"`
	Messages     []wireMessage   `json:"messages"`
	Stream       bool            `json:"stream"`
	Temperature  *float64        `json:"temperature"`
	TopP         *float64        `json:"top_p"`
	MaxTokens    int             `json:"max_tokens"`
	Stop         []string        `json:"stop"`
	User         string          `json:"user"`
	Metadata     requestMetadata `json:"metadata"`
	UseRetrieval *bool           `json:"use_retrieval"`
}

func (r *chatCompletionRequest) toInput() usecase.ChatInput {
	messages := make([]domain.Message, len(r.Messages))
	for i, m := range r.Messages {
		messages[i] = domain.Message{
			Role:    strings.TrimSpace(m.Role),
			Content: m.Content,
		}
	}
	return usecase.ChatInput{
		Model:    strings.TrimSpace(r.Model),
		Messages: messages,
		Metadata: usecase.RequestMetadata{
			CompanyID:         r.Metadata.CompanyID,
			ProjectID:         r.Metadata.ProjectID,
			ConversationID:    r.Metadata.ConversationID,
			SessionID:         r.Metadata.SessionID,
			ConversationTitle: r.Metadata.ConversationTitle,
		},
		User:         r.User,
		Temperature:  r.Temperature,
		TopP:         r.TopP,
		MaxTokens:    r.MaxTokens,
		Stop:         r.Stop,
		UseRetrieval: r.UseRetrieval,
	}
}

type completionUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type completionChoice struct {
	Index        int          `json:"index"`
	Message      *wireMessage `json:"message,omitempty"`
	FinishReason string       `json:"finish_reason"`
}

type chatCompletionResponse struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Model   string             `json:"model"`
	Choices []completionChoice `json:"choices"`
	Usage   *completionUsage   `json:"usage,omitempty"`
}

type chunkDelta struct {
	Role     string `json:"role,omitempty"`
	Content  string `json:"content,omitempty"`
	Thinking string `json:"thinking,omitempty"`
}

type chunkChoice struct {
	Index        int        `json:"index"`
	Delta        chunkDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason,omitempty"`
}

type chatCompletionChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []chunkChoice `json:"choices"`
}

type modelInfo struct {
	ID     string `json:"id"`
	Object string `json:"object"`
}

type modelList struct {
	Object string      `json:"object"`
	Data   []modelInfo `json:"data"`
}

type conversationResponse struct {
	ID       string        `json:"id"`
	Messages []wireMessage `json:"messages"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

type errorResponse struct {
	Error apiError `json:"error"`
}

func writeError(ctx echo.Context, status int, errType, message string) error {
	return ctx.JSON(status, errorResponse{Error: apiError{Message: message, Type: errType}})
}

func errorMessage(err error) string {
	return err.Error()
}

func writeSSE(resp *echo.Response, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(resp, "data: %s\n\n", data); err != nil {
		return err
	}
	resp.Flush()
	return nil
}
