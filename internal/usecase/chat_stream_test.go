package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"chat-orchestrator/internal/domain"
	"chat-orchestrator/internal/usecase"
)

// streamOf builds a client whose Stream emits the given fragments and
// then closes both channels.
func streamOf(fragments ...domain.Fragment) *fakeModelClient {
	return &fakeModelClient{
		streamFn: func(ctx context.Context) (<-chan domain.Fragment, <-chan error, error) {
			fragCh := make(chan domain.Fragment, len(fragments))
			errCh := make(chan error, 1)
			for _, f := range fragments {
				fragCh <- f
			}
			close(fragCh)
			close(errCh)
			return fragCh, errCh, nil
		},
	}
}

func collect(t *testing.T, chunks <-chan usecase.StreamChunk) []usecase.StreamChunk {
	t.Helper()
	var out []usecase.StreamChunk
	timeout := time.After(5 * time.Second)
	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				return out
			}
			out = append(out, chunk)
		case <-timeout:
			t.Fatal("stream did not terminate")
		}
	}
}

func deltas(chunks []usecase.StreamChunk) string {
	var s string
	for _, c := range chunks {
		if c.Kind == usecase.StreamChunkKindDelta {
			s += c.Text
		}
	}
	return s
}

func assertDoneOnceAndLast(t *testing.T, chunks []usecase.StreamChunk) {
	t.Helper()
	count := 0
	for _, c := range chunks {
		if c.Kind == usecase.StreamChunkKindDone {
			count++
		}
	}
	assert.Equal(t, 1, count, "expected exactly one Done chunk")
	assert.Equal(t, usecase.StreamChunkKindDone, chunks[len(chunks)-1].Kind, "Done must be last")
}

func TestStream_ThinkingDisabled(t *testing.T) {
	client := streamOf(
		domain.Fragment{Content: "4"},
		domain.Fragment{Done: true, FinishReason: domain.FinishReasonStop},
	)
	uc := newTestUsecase(client, nil, nil, testConfig())

	chunks, err := uc.Stream(context.Background(), userInput("What is 2+2?"))
	assert.NoError(t, err)

	got := collect(t, chunks)
	assert.Equal(t, []usecase.StreamChunk{
		{Kind: usecase.StreamChunkKindDelta, Text: "4"},
		{Kind: usecase.StreamChunkKindDone, FinishReason: domain.FinishReasonStop},
	}, got)
}

func TestStream_ThinkingEnabled(t *testing.T) {
	client := streamOf(
		domain.Fragment{Content: "4"},
		domain.Fragment{Done: true, FinishReason: domain.FinishReasonStop},
	)
	cfg := testConfig()
	cfg.ShowThinking = true
	uc := newTestUsecase(client, nil, nil, cfg)

	chunks, err := uc.Stream(context.Background(), userInput("What is 2+2?"))
	assert.NoError(t, err)

	got := collect(t, chunks)
	assert.Len(t, got, 5)
	for i := 0; i < 3; i++ {
		assert.Equal(t, usecase.StreamChunkKindThinking, got[i].Kind)
		assert.NotEmpty(t, got[i].Text)
	}
	assert.Equal(t, usecase.StreamChunkKindDelta, got[3].Kind)
	assertDoneOnceAndLast(t, got)

	// Thinking never appears after the first content delta.
	sawDelta := false
	for _, c := range got {
		if c.Kind == usecase.StreamChunkKindDelta {
			sawDelta = true
		}
		if c.Kind == usecase.StreamChunkKindThinking {
			assert.False(t, sawDelta, "thinking chunk after first delta")
		}
	}
}

func TestStream_EquivalenceWithExecute(t *testing.T) {
	full := "The answer is 4."
	client := &fakeModelClient{
		completion: &domain.Completion{Content: full, FinishReason: domain.FinishReasonStop},
		streamFn: func(ctx context.Context) (<-chan domain.Fragment, <-chan error, error) {
			fragCh := make(chan domain.Fragment, 8)
			errCh := make(chan error, 1)
			for _, piece := range []string{"The ", "answer ", "is ", "4."} {
				fragCh <- domain.Fragment{Content: piece}
			}
			fragCh <- domain.Fragment{Done: true, FinishReason: domain.FinishReasonStop}
			close(fragCh)
			close(errCh)
			return fragCh, errCh, nil
		},
	}
	uc := newTestUsecase(client, nil, nil, testConfig())

	out, err := uc.Execute(context.Background(), userInput("What is 2+2?"))
	assert.NoError(t, err)

	chunks, err := uc.Stream(context.Background(), userInput("What is 2+2?"))
	assert.NoError(t, err)
	got := collect(t, chunks)

	assert.Equal(t, out.Content, deltas(got))
	assert.Equal(t, out.FinishReason, got[len(got)-1].FinishReason)
	assertDoneOnceAndLast(t, got)
}

func TestStream_ValidationFailsBeforeAnyChunk(t *testing.T) {
	client := streamOf()
	uc := newTestUsecase(client, nil, nil, testConfig())

	chunks, err := uc.Stream(context.Background(), usecase.ChatInput{Model: "fake-model"})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	assert.Nil(t, chunks)
}

func TestStream_ProviderSetupFailure(t *testing.T) {
	client := &fakeModelClient{
		streamFn: func(ctx context.Context) (<-chan domain.Fragment, <-chan error, error) {
			return nil, nil, fmt.Errorf("%w: connection refused", domain.ErrProviderUnavailable)
		},
	}
	store := new(mockStore)
	uc := newTestUsecase(client, nil, store, testConfig())

	chunks, err := uc.Stream(context.Background(), userInput("hi"))
	assert.NoError(t, err)

	got := collect(t, chunks)
	assertDoneOnceAndLast(t, got)
	assert.Equal(t, domain.FinishReasonError, got[len(got)-1].FinishReason)
	store.AssertNotCalled(t, "Save", mock.Anything, mock.Anything, mock.Anything)
}

func TestStream_ProviderErrorMidStream(t *testing.T) {
	client := &fakeModelClient{
		streamFn: func(ctx context.Context) (<-chan domain.Fragment, <-chan error, error) {
			fragCh := make(chan domain.Fragment)
			errCh := make(chan error, 1)
			go func() {
				fragCh <- domain.Fragment{Content: "partial "}
				errCh <- errors.New("connection reset")
				close(fragCh)
				close(errCh)
			}()
			return fragCh, errCh, nil
		},
	}
	store := new(mockStore)
	uc := newTestUsecase(client, nil, store, testConfig())

	chunks, err := uc.Stream(context.Background(), userInput("hi"))
	assert.NoError(t, err)

	got := collect(t, chunks)
	assertDoneOnceAndLast(t, got)
	assert.Equal(t, domain.FinishReasonError, got[len(got)-1].FinishReason)
	store.AssertNotCalled(t, "Save", mock.Anything, mock.Anything, mock.Anything)
}

func TestStream_TimeoutAfterPartialContent(t *testing.T) {
	client := &fakeModelClient{
		streamFn: func(ctx context.Context) (<-chan domain.Fragment, <-chan error, error) {
			fragCh := make(chan domain.Fragment, 1)
			errCh := make(chan error, 1)
			fragCh <- domain.Fragment{Content: "partial answer"}
			// Never finishes; the model-call timeout has to fire.
			return fragCh, errCh, nil
		},
	}
	store := new(mockStore)
	saved := make(chan []domain.Message, 1)
	store.On("Save", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			saved <- args.Get(2).([]domain.Message)
		}).Return(nil)

	cfg := testConfig()
	cfg.ModelTimeout = 50 * time.Millisecond
	uc := newTestUsecase(client, nil, store, cfg)

	chunks, err := uc.Stream(context.Background(), userInput("hi"))
	assert.NoError(t, err)

	got := collect(t, chunks)
	assertDoneOnceAndLast(t, got)
	assert.Equal(t, domain.FinishReasonTimeout, got[len(got)-1].FinishReason)
	assert.Equal(t, "partial answer", deltas(got))

	select {
	case turns := <-saved:
		assert.Equal(t, "partial answer", turns[1].Content)
	case <-time.After(2 * time.Second):
		t.Fatal("partial content was not persisted")
	}
}

func TestStream_TimeoutBeforeAnyContent(t *testing.T) {
	client := &fakeModelClient{
		streamFn: func(ctx context.Context) (<-chan domain.Fragment, <-chan error, error) {
			return make(chan domain.Fragment), make(chan error), nil
		},
	}
	cfg := testConfig()
	cfg.ModelTimeout = 50 * time.Millisecond
	uc := newTestUsecase(client, nil, nil, cfg)

	chunks, err := uc.Stream(context.Background(), userInput("hi"))
	assert.NoError(t, err)

	got := collect(t, chunks)
	assertDoneOnceAndLast(t, got)
	assert.Equal(t, domain.FinishReasonError, got[len(got)-1].FinishReason)
}

func TestStream_CancellationStopsWithoutSave(t *testing.T) {
	client := &fakeModelClient{
		streamFn: func(ctx context.Context) (<-chan domain.Fragment, <-chan error, error) {
			fragCh := make(chan domain.Fragment)
			errCh := make(chan error)
			go func() {
				defer close(fragCh)
				for i := 0; ; i++ {
					select {
					case <-ctx.Done():
						return
					case fragCh <- domain.Fragment{Content: fmt.Sprintf("chunk%d ", i)}:
					}
				}
			}()
			return fragCh, errCh, nil
		},
	}
	store := new(mockStore)
	uc := newTestUsecase(client, nil, store, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	chunks, err := uc.Stream(ctx, userInput("hi"))
	assert.NoError(t, err)

	received := 0
	for range chunks {
		received++
		if received == 2 {
			cancel()
		}
	}
	assert.GreaterOrEqual(t, received, 2)
	store.AssertNotCalled(t, "Save", mock.Anything, mock.Anything, mock.Anything)
}

func TestStream_RetrievalDegradationStillAnswers(t *testing.T) {
	client := streamOf(
		domain.Fragment{Content: "no context needed"},
		domain.Fragment{Done: true, FinishReason: domain.FinishReasonStop},
	)
	retriever := new(mockRetriever)
	retriever.On("Search", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("timeout"))

	uc := newTestUsecase(client, retriever, nil, testConfig())
	chunks, err := uc.Stream(context.Background(), userInput("hi"))
	assert.NoError(t, err)

	got := collect(t, chunks)
	assert.Equal(t, "no context needed", deltas(got))
	assert.Equal(t, domain.FinishReasonStop, got[len(got)-1].FinishReason)
	assertDoneOnceAndLast(t, got)
}

func TestStream_LengthFinishPassesThrough(t *testing.T) {
	client := streamOf(
		domain.Fragment{Content: "truncat"},
		domain.Fragment{Done: true, FinishReason: domain.FinishReasonLength},
	)
	uc := newTestUsecase(client, nil, nil, testConfig())

	chunks, err := uc.Stream(context.Background(), userInput("hi"))
	assert.NoError(t, err)

	got := collect(t, chunks)
	assert.Equal(t, domain.FinishReasonLength, got[len(got)-1].FinishReason)
}
