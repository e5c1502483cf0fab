package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"chat-orchestrator/internal/domain"
)

type openaiChatRequest struct {
	Model       string              `json:"model"`
	Messages    []ollamaChatMessage `json:"messages"`
	Stream      bool                `json:"stream"`
	Temperature *float64            `json:"temperature,omitempty"`
	TopP        *float64            `json:"top_p,omitempty"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
	Stop        []string            `json:"stop,omitempty"`
}

type openaiChoice struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Delta struct {
		Content string `json:"content"`
	} `json:"delta"`
	FinishReason *string `json:"finish_reason"`
}

type openaiChatResponse struct {
	Choices []openaiChoice `json:"choices"`
}

// OpenAIClient speaks the OpenAI chat completions API, covering any
// compatible backend behind a base URL.
type OpenAIClient struct {
	BaseURL string
	APIKey  string
	Model   string
	Client  *http.Client
	logger  *slog.Logger
}

func NewOpenAIClient(baseURL, apiKey, model string, client *http.Client, logger *slog.Logger) *OpenAIClient {
	return &OpenAIClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Model:   model,
		Client:  client,
		logger:  logger,
	}
}

func (c *OpenAIClient) Complete(ctx context.Context, msgs []domain.Message, opts domain.GenerateOptions) (*domain.Completion, error) {
	resp, err := c.post(ctx, msgs, opts, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var chatResp openaiChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", domain.ErrProviderError, err)
	}
	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("%w: response contained no choices", domain.ErrProviderError)
	}

	choice := chatResp.Choices[0]
	return &domain.Completion{
		Content:      choice.Message.Content,
		FinishReason: mapOpenAIFinish(choice.FinishReason),
	}, nil
}

func (c *OpenAIClient) Stream(ctx context.Context, msgs []domain.Message, opts domain.GenerateOptions) (<-chan domain.Fragment, <-chan error, error) {
	resp, err := c.post(ctx, msgs, opts, true)
	if err != nil {
		return nil, nil, err
	}

	fragments := make(chan domain.Fragment, 8)
	errs := make(chan error, 1)

	go func() {
		defer close(fragments)
		defer close(errs)
		defer resp.Body.Close()

		finish := ""
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			data := strings.TrimPrefix(line, "data: ")
			if data == "[DONE]" {
				break
			}
			var chunk openaiChatResponse
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				c.logger.Warn("skipping malformed stream event", slog.String("error", err.Error()))
				continue
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			choice := chunk.Choices[0]
			if choice.FinishReason != nil && *choice.FinishReason != "" {
				finish = *choice.FinishReason
			}
			if choice.Delta.Content == "" {
				continue
			}
			select {
			case <-ctx.Done():
				return
			case fragments <- domain.Fragment{Content: choice.Delta.Content}:
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			errs <- fmt.Errorf("%w: stream read failed: %v", domain.ErrProviderError, err)
			return
		}
		if ctx.Err() != nil {
			return
		}
		select {
		case <-ctx.Done():
		case fragments <- domain.Fragment{Done: true, FinishReason: mapOpenAIFinish(&finish)}:
		}
	}()

	return fragments, errs, nil
}

func (c *OpenAIClient) Name() string {
	return c.Model
}

func (c *OpenAIClient) post(ctx context.Context, msgs []domain.Message, opts domain.GenerateOptions, stream bool) (*http.Response, error) {
	messages := make([]ollamaChatMessage, len(msgs))
	for i, m := range msgs {
		messages[i] = ollamaChatMessage{Role: m.Role, Content: m.Content}
	}

	payload, err := json.Marshal(openaiChatRequest{
		Model:       c.Model,
		Messages:    messages,
		Stream:      stream,
		Temperature: opts.Temperature,
		TopP:        opts.TopP,
		MaxTokens:   opts.MaxTokens,
		Stop:        opts.Stop,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	url := fmt.Sprintf("%s/chat/completions", c.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode == http.StatusServiceUnavailable || resp.StatusCode == http.StatusBadGateway {
			return nil, fmt.Errorf("%w: upstream returned %d: %s", domain.ErrProviderUnavailable, resp.StatusCode, string(body))
		}
		return nil, fmt.Errorf("%w: upstream returned %d: %s", domain.ErrProviderError, resp.StatusCode, string(body))
	}
	return resp, nil
}

func mapOpenAIFinish(reason *string) string {
	if reason == nil {
		return domain.FinishReasonStop
	}
	switch *reason {
	case "length":
		return domain.FinishReasonLength
	case "", "stop":
		return domain.FinishReasonStop
	default:
		return domain.FinishReasonStop
	}
}

var _ domain.ModelClient = (*OpenAIClient)(nil)
