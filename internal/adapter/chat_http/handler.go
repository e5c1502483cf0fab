package chat_http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"chat-orchestrator/internal/adapter/llm"
	"chat-orchestrator/internal/domain"
	"chat-orchestrator/internal/usecase"
)

const historyLimit = 100

type conversationReader interface {
	History(ctx context.Context, conversationID string, limit int) ([]domain.Message, error)
}

type Handler struct {
	chatUsecase usecase.ChatUsecase
	registry    *llm.Registry
	convRepo    conversationReader
	logger      *slog.Logger
}

func NewHandler(chatUsecase usecase.ChatUsecase, registry *llm.Registry, convRepo conversationReader, logger *slog.Logger) *Handler {
	return &Handler{
		chatUsecase: chatUsecase,
		registry:    registry,
		convRepo:    convRepo,
		logger:      logger,
	}
}

// RegisterRoutes mounts the chat API on the given echo instance.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/v1/chat/completions", h.ChatCompletions)
	e.GET("/v1/models", h.ListModels)
	e.GET("/v1/conversations/:id", h.GetConversation)
}

// ChatCompletions answers a chat request, streaming over SSE when the
// request asks for it.
// (POST /v1/chat/completions)
func (h *Handler) ChatCompletions(ctx echo.Context) error {
	var req chatCompletionRequest
	if err := ctx.Bind(&req); err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid_request_error", "invalid request body")
	}

	input := req.toInput()
	if req.Stream {
		return h.streamCompletion(ctx, input)
	}
	return h.completeOnce(ctx, input)
}

func (h *Handler) completeOnce(ctx echo.Context, input usecase.ChatInput) error {
	output, err := h.chatUsecase.Execute(ctx.Request().Context(), input)
	if err != nil {
		return h.writeUsecaseError(ctx, err)
	}

	return ctx.JSON(http.StatusOK, chatCompletionResponse{
		ID:      output.ID,
		Object:  "chat.completion",
		Created: output.Created,
		Model:   output.Model,
		Choices: []completionChoice{{
			Index:        0,
			Message:      &wireMessage{Role: domain.RoleAssistant, Content: output.Content},
			FinishReason: output.FinishReason,
		}},
		Usage: &completionUsage{
			PromptTokens:     output.PromptTokens,
			CompletionTokens: output.CompletionTokens,
			TotalTokens:      output.PromptTokens + output.CompletionTokens,
		},
	})
}

func (h *Handler) streamCompletion(ctx echo.Context, input usecase.ChatInput) error {
	chunks, err := h.chatUsecase.Stream(ctx.Request().Context(), input)
	if err != nil {
		return h.writeUsecaseError(ctx, err)
	}

	resp := ctx.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.Header().Set("X-Accel-Buffering", "no")
	resp.WriteHeader(http.StatusOK)

	streamID := fmt.Sprintf("chatcmpl-%d", time.Now().UnixNano())
	created := time.Now().Unix()
	first := true

	for chunk := range chunks {
		frame := chatCompletionChunk{
			ID:      streamID,
			Object:  "chat.completion.chunk",
			Created: created,
			Model:   input.Model,
			Choices: []chunkChoice{{Index: 0}},
		}
		choice := &frame.Choices[0]
		if first {
			choice.Delta.Role = domain.RoleAssistant
			first = false
		}

		switch chunk.Kind {
		case usecase.StreamChunkKindThinking:
			choice.Delta.Thinking = chunk.Text
		case usecase.StreamChunkKindDelta:
			choice.Delta.Content = chunk.Text
		case usecase.StreamChunkKindDone:
			reason := chunk.FinishReason
			choice.FinishReason = &reason
		}

		if err := writeSSE(resp, frame); err != nil {
			// Client went away; the usecase observes the request
			// context and stops on its own.
			h.logger.Debug("stream write failed", slog.String("error", err.Error()))
			return nil
		}
	}

	if _, err := fmt.Fprint(resp, "data: [DONE]\n\n"); err == nil {
		resp.Flush()
	}
	return nil
}

// ListModels reports the registered model names.
// (GET /v1/models)
func (h *Handler) ListModels(ctx echo.Context) error {
	names := h.registry.Models()
	models := make([]modelInfo, 0, len(names))
	for _, name := range names {
		models = append(models, modelInfo{ID: name, Object: "model"})
	}
	return ctx.JSON(http.StatusOK, modelList{Object: "list", Data: models})
}

// GetConversation returns the stored turns of a conversation.
// (GET /v1/conversations/:id)
func (h *Handler) GetConversation(ctx echo.Context) error {
	if h.convRepo == nil {
		return writeError(ctx, http.StatusNotFound, "not_found_error", "conversation storage disabled")
	}
	id := ctx.Param("id")
	if id == "" {
		return writeError(ctx, http.StatusBadRequest, "invalid_request_error", "missing conversation id")
	}

	turns, err := h.convRepo.History(ctx.Request().Context(), id, historyLimit)
	if err != nil {
		h.logger.Error("failed to load conversation", slog.String("error", err.Error()))
		return writeError(ctx, http.StatusInternalServerError, "internal_error", "failed to load conversation")
	}
	if len(turns) == 0 {
		return writeError(ctx, http.StatusNotFound, "not_found_error", "conversation not found")
	}

	messages := make([]wireMessage, len(turns))
	for i, turn := range turns {
		messages[i] = wireMessage{Role: turn.Role, Content: turn.Content}
	}
	return ctx.JSON(http.StatusOK, conversationResponse{ID: id, Messages: messages})
}

func (h *Handler) writeUsecaseError(ctx echo.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		return writeError(ctx, http.StatusBadRequest, "invalid_request_error", errorMessage(err))
	case errors.Is(err, domain.ErrProviderUnavailable):
		return writeError(ctx, http.StatusServiceUnavailable, "service_unavailable_error", "model backend unavailable")
	case ctx.Request().Context().Err() != nil:
		// Client cancelled; nothing left to write.
		return nil
	default:
		h.logger.Error("chat request failed", slog.String("error", err.Error()))
		return writeError(ctx, http.StatusInternalServerError, "internal_error", "internal error")
	}
}
