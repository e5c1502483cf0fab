package usecase

import (
	"context"
	"log/slog"
	"strings"

	"chat-orchestrator/internal/domain"
)

// Stream runs the streaming chat pipeline. Validation failures are
// returned synchronously before any chunk is produced; afterwards all
// outcomes, including provider failures, are encoded as a terminal
// Done chunk so the client's stream parser terminates cleanly.
func (u *chatUsecase) Stream(ctx context.Context, input ChatInput) (<-chan StreamChunk, error) {
	client, err := u.validate(input)
	if err != nil {
		return nil, err
	}

	chunks := make(chan StreamChunk, 4)
	go func() {
		defer close(chunks)
		u.runStream(ctx, client, input, chunks)
	}()
	return chunks, nil
}

func (u *chatUsecase) runStream(ctx context.Context, client domain.ModelClient, input ChatInput, chunks chan<- StreamChunk) {
	if !u.sendThinking(ctx, chunks, StageReceived) {
		return
	}
	if !u.sendThinking(ctx, chunks, StageBuildingContext) {
		return
	}

	plan, err := u.prepare(ctx, client, input)
	if err != nil {
		u.logger.Error("failed to prepare prompt",
			slog.String("model", input.Model),
			slog.String("error", err.Error()))
		u.sendChunk(ctx, chunks, StreamChunk{Kind: StreamChunkKindDone, FinishReason: domain.FinishReasonError})
		return
	}

	if !u.sendThinking(ctx, chunks, StageGenerating) {
		return
	}

	mctx, cancel := context.WithTimeout(ctx, u.cfg.ModelTimeout)
	defer cancel()

	fragments, errs, err := client.Stream(mctx, plan.prompt, plan.opts)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		u.logger.Warn("model stream setup failed",
			slog.String("model", input.Model),
			slog.String("error", err.Error()))
		u.sendChunk(ctx, chunks, StreamChunk{Kind: StreamChunkKindDone, FinishReason: domain.FinishReasonError})
		return
	}

	var builder strings.Builder
	finish := ""
	fragCh, errCh := fragments, errs

	for fragCh != nil || errCh != nil {
		select {
		case <-ctx.Done():
			// Client gone: stop emitting, skip persistence.
			return

		case <-mctx.Done():
			if ctx.Err() != nil {
				return
			}
			// Model-call timeout. Partial content already sent to the
			// client is never retracted.
			if builder.Len() == 0 {
				u.sendChunk(ctx, chunks, StreamChunk{Kind: StreamChunkKindDone, FinishReason: domain.FinishReasonError})
				return
			}
			finish = domain.FinishReasonTimeout
			fragCh, errCh = nil, nil

		case frag, ok := <-fragCh:
			if !ok {
				fragCh = nil
				continue
			}
			if frag.Content != "" {
				builder.WriteString(frag.Content)
				if !u.sendChunk(ctx, chunks, StreamChunk{Kind: StreamChunkKindDelta, Text: frag.Content}) {
					return
				}
			}
			if frag.Done {
				finish = normalizeFinish(frag.FinishReason)
				fragCh, errCh = nil, nil
			}

		case streamErr, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if ctx.Err() != nil {
				return
			}
			u.logger.Warn("model stream failed",
				slog.String("model", input.Model),
				slog.String("error", streamErr.Error()))
			u.sendChunk(ctx, chunks, StreamChunk{Kind: StreamChunkKindDone, FinishReason: domain.FinishReasonError})
			return
		}
	}

	if finish == "" {
		finish = domain.FinishReasonStop
	}
	if !u.sendChunk(ctx, chunks, StreamChunk{Kind: StreamChunkKindDone, FinishReason: finish}) {
		return
	}

	u.persist(ctx, plan, builder.String())
}

func (u *chatUsecase) sendThinking(ctx context.Context, chunks chan<- StreamChunk, stage Stage) bool {
	text := u.announcer.Announce(stage)
	if text == "" {
		return ctx.Err() == nil
	}
	return u.sendChunk(ctx, chunks, StreamChunk{Kind: StreamChunkKindThinking, Text: text})
}

func (u *chatUsecase) sendChunk(ctx context.Context, chunks chan<- StreamChunk, chunk StreamChunk) bool {
	select {
	case <-ctx.Done():
		return false
	case chunks <- chunk:
		return true
	}
}
