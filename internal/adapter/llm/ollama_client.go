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
	"time"

	"chat-orchestrator/internal/domain"
)

const (
	keepAliveSeconds = -1
	retryBackoff     = 500 * time.Millisecond
)

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model     string                 `json:"model"`
	Messages  []ollamaChatMessage    `json:"messages"`
	Stream    bool                   `json:"stream"`
	KeepAlive int                    `json:"keep_alive"`
	Options   map[string]interface{} `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done       bool   `json:"done"`
	DoneReason string `json:"done_reason"`
}

// OllamaClient drives Ollama's chat endpoint as a domain.ModelClient.
type OllamaClient struct {
	BaseURL string
	Model   string
	Client  *http.Client
	logger  *slog.Logger
}

// NewOllamaClient constructs a client for the given endpoint and model.
// The http.Client must not carry an overall timeout; deadlines are
// enforced through the request context so streams can outlive it.
func NewOllamaClient(baseURL, model string, client *http.Client, logger *slog.Logger) *OllamaClient {
	return &OllamaClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Model:   model,
		Client:  client,
		logger:  logger,
	}
}

// Complete sends the prompt and returns the full assistant message.
// Connection failures are retried once with backoff.
func (c *OllamaClient) Complete(ctx context.Context, msgs []domain.Message, opts domain.GenerateOptions) (*domain.Completion, error) {
	payload, err := c.marshalRequest(msgs, opts, false)
	if err != nil {
		return nil, err
	}

	resp, err := c.post(ctx, payload)
	if err != nil {
		// One retry on connect failure; the backend may be reloading
		// the model.
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
		case <-time.After(retryBackoff):
		}
		resp, err = c.post(ctx, payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: ollama returned %d: %s", domain.ErrProviderError, resp.StatusCode, string(body))
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", domain.ErrProviderError, err)
	}

	return &domain.Completion{
		Content:      chatResp.Message.Content,
		FinishReason: mapOllamaFinish(chatResp.DoneReason),
	}, nil
}

// Stream sends the prompt and delivers NDJSON fragments as they
// arrive. The fragment channel is closed after the terminal fragment.
func (c *OllamaClient) Stream(ctx context.Context, msgs []domain.Message, opts domain.GenerateOptions) (<-chan domain.Fragment, <-chan error, error) {
	payload, err := c.marshalRequest(msgs, opts, true)
	if err != nil {
		return nil, nil, err
	}

	resp, err := c.post(ctx, payload)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, nil, fmt.Errorf("%w: ollama returned %d: %s", domain.ErrProviderError, resp.StatusCode, string(body))
	}

	fragments := make(chan domain.Fragment, 8)
	errs := make(chan error, 1)

	go func() {
		defer close(fragments)
		defer close(errs)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			var chunk ollamaChatResponse
			if err := json.Unmarshal(line, &chunk); err != nil {
				c.logger.Warn("skipping malformed stream line", slog.String("error", err.Error()))
				continue
			}
			frag := domain.Fragment{Content: chunk.Message.Content}
			if chunk.Done {
				frag.Done = true
				frag.FinishReason = mapOllamaFinish(chunk.DoneReason)
			}
			select {
			case <-ctx.Done():
				return
			case fragments <- frag:
			}
			if chunk.Done {
				return
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			errs <- fmt.Errorf("%w: stream read failed: %v", domain.ErrProviderError, err)
		}
	}()

	return fragments, errs, nil
}

// Name returns the wrapped model name.
func (c *OllamaClient) Name() string {
	return c.Model
}

func (c *OllamaClient) marshalRequest(msgs []domain.Message, opts domain.GenerateOptions, stream bool) ([]byte, error) {
	messages := make([]ollamaChatMessage, len(msgs))
	for i, m := range msgs {
		messages[i] = ollamaChatMessage{Role: m.Role, Content: m.Content}
	}

	reqBody := ollamaChatRequest{
		Model:     c.Model,
		Messages:  messages,
		Stream:    stream,
		KeepAlive: keepAliveSeconds,
		Options:   map[string]interface{}{},
	}
	if opts.Temperature != nil {
		reqBody.Options["temperature"] = *opts.Temperature
	}
	if opts.TopP != nil {
		reqBody.Options["top_p"] = *opts.TopP
	}
	if opts.MaxTokens > 0 {
		reqBody.Options["num_predict"] = opts.MaxTokens
	}
	if len(opts.Stop) > 0 {
		reqBody.Options["stop"] = opts.Stop
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}
	return payload, nil
}

func (c *OllamaClient) post(ctx context.Context, payload []byte) (*http.Response, error) {
	url := fmt.Sprintf("%s/api/chat", c.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/x-ndjson")
	return c.Client.Do(req)
}

func mapOllamaFinish(reason string) string {
	switch reason {
	case "", "stop":
		return domain.FinishReasonStop
	case "length", "limit", "max_tokens":
		return domain.FinishReasonLength
	default:
		return domain.FinishReasonStop
	}
}

var _ domain.ModelClient = (*OllamaClient)(nil)
