package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"chat-orchestrator/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestOllamaClientComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}

		var req map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if stream, _ := req["stream"].(bool); stream {
			t.Fatal("expected stream=false for Complete")
		}
		if req["model"] != "test-model" {
			t.Fatalf("unexpected model: %v", req["model"])
		}

		_, _ = fmt.Fprintln(w, `{"message":{"content":"hello there"},"done":true,"done_reason":"stop"}`)
	}))
	defer server.Close()

	client := NewOllamaClient(server.URL, "test-model", server.Client(), discardLogger())
	resp, err := client.Complete(context.Background(), []domain.Message{
		{Role: domain.RoleUser, Content: "hi"},
	}, domain.GenerateOptions{})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if resp.Content != "hello there" {
		t.Fatalf("unexpected content: %q", resp.Content)
	}
	if resp.FinishReason != domain.FinishReasonStop {
		t.Fatalf("unexpected finish reason: %q", resp.FinishReason)
	}
}

func TestOllamaClientComplete_LengthReason(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintln(w, `{"message":{"content":"truncated"},"done":true,"done_reason":"length"}`)
	}))
	defer server.Close()

	client := NewOllamaClient(server.URL, "test-model", server.Client(), discardLogger())
	resp, err := client.Complete(context.Background(), []domain.Message{
		{Role: domain.RoleUser, Content: "hi"},
	}, domain.GenerateOptions{MaxTokens: 4})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if resp.FinishReason != domain.FinishReasonLength {
		t.Fatalf("expected length finish, got %q", resp.FinishReason)
	}
}

func TestOllamaClientComplete_BadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	client := NewOllamaClient(server.URL, "missing", server.Client(), discardLogger())
	_, err := client.Complete(context.Background(), []domain.Message{
		{Role: domain.RoleUser, Content: "hi"},
	}, domain.GenerateOptions{})
	if !errors.Is(err, domain.ErrProviderError) {
		t.Fatalf("expected ErrProviderError, got %v", err)
	}
}

func TestOllamaClientComplete_ConnectFailure(t *testing.T) {
	client := NewOllamaClient("http://127.0.0.1:1", "test-model", &http.Client{}, discardLogger())
	_, err := client.Complete(context.Background(), []domain.Message{
		{Role: domain.RoleUser, Content: "hi"},
	}, domain.GenerateOptions{})
	if !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestOllamaClientStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if stream, _ := req["stream"].(bool); !stream {
			t.Fatal("expected stream=true for Stream")
		}

		w.Header().Set("Content-Type", "application/x-ndjson")
		_, _ = fmt.Fprintln(w, `{"message":{"content":"The"},"done":false}`)
		_, _ = fmt.Fprintln(w, `{"message":{"content":" answer"},"done":false}`)
		_, _ = fmt.Fprintln(w, `{"message":{"content":""},"done":true,"done_reason":"stop"}`)
	}))
	defer server.Close()

	client := NewOllamaClient(server.URL, "test-model", server.Client(), discardLogger())
	fragments, errs, err := client.Stream(context.Background(), []domain.Message{
		{Role: domain.RoleUser, Content: "hi"},
	}, domain.GenerateOptions{})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}

	var content string
	var finish string
	for frag := range fragments {
		content += frag.Content
		if frag.Done {
			finish = frag.FinishReason
		}
	}
	if err := <-errs; err != nil {
		t.Fatalf("unexpected stream error: %v", err)
	}
	if content != "The answer" {
		t.Fatalf("unexpected aggregated content: %q", content)
	}
	if finish != domain.FinishReasonStop {
		t.Fatalf("unexpected finish reason: %q", finish)
	}
}

func TestOllamaClientStream_SkipsMalformedLines(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		_, _ = fmt.Fprintln(w, `{"message":{"content":"ok"},"done":false}`)
		_, _ = fmt.Fprintln(w, `not json`)
		_, _ = fmt.Fprintln(w, `{"message":{"content":""},"done":true,"done_reason":"stop"}`)
	}))
	defer server.Close()

	client := NewOllamaClient(server.URL, "test-model", server.Client(), discardLogger())
	fragments, errs, err := client.Stream(context.Background(), []domain.Message{
		{Role: domain.RoleUser, Content: "hi"},
	}, domain.GenerateOptions{})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}

	var content string
	for frag := range fragments {
		content += frag.Content
	}
	if err := <-errs; err != nil {
		t.Fatalf("unexpected stream error: %v", err)
	}
	if content != "ok" {
		t.Fatalf("unexpected content: %q", content)
	}
}
