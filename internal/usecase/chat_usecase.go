package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"chat-orchestrator/internal/domain"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const minPromptBudget = 512

type chatUsecase struct {
	models    ModelResolver
	retriever domain.Retriever
	assembler PromptAssembler
	announcer *StatusAnnouncer
	store     domain.ConversationStore
	cache     *expirable.LRU[string, *ChatOutput]
	cfg       ChatConfig
	logger    *slog.Logger
}

// NewChatUsecase wires together the components of the chat pipeline.
// retriever and store may be nil; the pipeline then runs without
// context augmentation or persistence.
func NewChatUsecase(
	models ModelResolver,
	retriever domain.Retriever,
	assembler PromptAssembler,
	announcer *StatusAnnouncer,
	store domain.ConversationStore,
	cfg ChatConfig,
	logger *slog.Logger,
) ChatUsecase {
	var cache *expirable.LRU[string, *ChatOutput]
	if cfg.CacheSize > 0 {
		cache = expirable.NewLRU[string, *ChatOutput](cfg.CacheSize, nil, cfg.CacheTTL)
	}
	return &chatUsecase{
		models:    models,
		retriever: retriever,
		assembler: assembler,
		announcer: announcer,
		store:     store,
		cache:     cache,
		cfg:       cfg,
		logger:    logger,
	}
}

func (u *chatUsecase) Execute(ctx context.Context, input ChatInput) (*ChatOutput, error) {
	client, err := u.validate(input)
	if err != nil {
		return nil, err
	}

	cacheKey := u.cacheKey(input)
	if u.cache != nil {
		if cached, ok := u.cache.Get(cacheKey); ok {
			u.logger.Info("serving cached completion", slog.String("model", input.Model))
			return cached, nil
		}
	}

	plan, err := u.prepare(ctx, client, input)
	if err != nil {
		return nil, err
	}

	mctx, cancel := context.WithTimeout(ctx, u.cfg.ModelTimeout)
	defer cancel()

	resp, err := client.Complete(mctx, plan.prompt, plan.opts)
	if err != nil {
		if mctx.Err() != nil && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: model call timed out: %v", domain.ErrProviderUnavailable, err)
		}
		return nil, err
	}

	out := &ChatOutput{
		ID:               uuid.NewString(),
		Model:            input.Model,
		Created:          time.Now().Unix(),
		Content:          resp.Content,
		FinishReason:     normalizeFinish(resp.FinishReason),
		PromptTokens:     EstimateTokens(plan.prompt),
		CompletionTokens: EstimateTextTokens(resp.Content),
	}

	if u.cache != nil {
		u.cache.Add(cacheKey, out)
	}

	u.persist(ctx, plan, out.Content)
	return out, nil
}

// validate rejects malformed input before any model call or stream is
// opened. It returns the resolved model client on success.
func (u *chatUsecase) validate(input ChatInput) (domain.ModelClient, error) {
	if input.Model == "" {
		return nil, fmt.Errorf("%w: model is required", domain.ErrInvalidRequest)
	}
	if len(input.Messages) == 0 {
		return nil, fmt.Errorf("%w: at least one message is required", domain.ErrInvalidRequest)
	}
	hasUser := false
	for i, m := range input.Messages {
		if !domain.ValidRole(m.Role) {
			return nil, fmt.Errorf("%w: unknown role %q at position %d", domain.ErrInvalidRequest, m.Role, i)
		}
		if strings.TrimSpace(m.Content) == "" {
			return nil, fmt.Errorf("%w: empty content at position %d", domain.ErrInvalidRequest, i)
		}
		if m.Role == domain.RoleUser {
			hasUser = true
		}
	}
	if !hasUser {
		return nil, fmt.Errorf("%w: at least one user message is required", domain.ErrInvalidRequest)
	}

	client, err := u.models.Resolve(input.Model)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown model %q", domain.ErrInvalidRequest, input.Model)
	}
	return client, nil
}

// promptPlan carries everything prepared ahead of the model call.
type promptPlan struct {
	client   domain.ModelClient
	ref      domain.ConversationRef
	userTurn domain.Message
	prompt   []domain.Message
	opts     domain.GenerateOptions
}

// prepare runs the blocking prerequisite stages: retrieval (degrading
// to no context on failure) and prompt assembly.
func (u *chatUsecase) prepare(ctx context.Context, client domain.ModelClient, input ChatInput) (*promptPlan, error) {
	userTurn, history := splitNewestUserTurn(input.Messages)

	var passages []domain.RetrievedPassage
	if u.retrievalEnabled(input) {
		rctx, cancel := context.WithTimeout(ctx, u.cfg.RetrievalTimeout)
		retrieved, err := u.retriever.Search(rctx, userTurn.Content, domain.PassageFilters{
			CompanyID: input.Metadata.CompanyID,
			ProjectID: input.Metadata.ProjectID,
		}, u.cfg.RetrievalTopK)
		cancel()
		if err != nil {
			// Availability over strictness: continue without context.
			u.logger.Warn("retrieval degraded, continuing without context",
				slog.String("model", input.Model),
				slog.String("reason", err.Error()))
		} else {
			passages = retrieved
		}
	}

	budget := u.cfg.PromptTokenBudget - u.cfg.CompletionReserve
	if budget < minPromptBudget {
		budget = minPromptBudget
	}

	prompt, err := u.assembler.Assemble(history, passages, userTurn, budget)
	if err != nil {
		return nil, fmt.Errorf("failed to assemble prompt: %w", err)
	}

	return &promptPlan{
		client:   client,
		ref:      u.conversationRef(input),
		userTurn: userTurn,
		prompt:   prompt,
		opts: domain.GenerateOptions{
			Temperature: input.Temperature,
			TopP:        input.TopP,
			MaxTokens:   input.MaxTokens,
			Stop:        input.Stop,
		},
	}, nil
}

func (u *chatUsecase) retrievalEnabled(input ChatInput) bool {
	if u.retriever == nil {
		return false
	}
	if input.UseRetrieval != nil {
		return *input.UseRetrieval
	}
	return u.cfg.RetrievalEnabled
}

// conversationRef resolves the conversation key the way the request
// surface allows it: explicit conversation id, then session id, then
// user, then a per-model default.
func (u *chatUsecase) conversationRef(input ChatInput) domain.ConversationRef {
	id := input.Metadata.ConversationID
	if id == "" {
		id = input.Metadata.SessionID
	}
	if id == "" {
		id = input.User
	}
	if id == "" {
		id = "default:" + input.Model
	}
	return domain.ConversationRef{
		ConversationID: id,
		Title:          input.Metadata.ConversationTitle,
		CompanyID:      input.Metadata.CompanyID,
		ProjectID:      input.Metadata.ProjectID,
		UserID:         input.User,
		Model:          input.Model,
	}
}

// persist hands the finished turn to the conversation store. Aborted
// requests are skipped; failures are logged, never surfaced, since the
// answer has already been delivered.
func (u *chatUsecase) persist(ctx context.Context, plan *promptPlan, content string) {
	if u.store == nil || content == "" {
		return
	}
	if ctx.Err() != nil {
		return
	}
	turns := []domain.Message{
		plan.userTurn,
		{Role: domain.RoleAssistant, Content: content},
	}
	if err := u.store.Save(context.WithoutCancel(ctx), plan.ref, turns); err != nil {
		u.logger.Warn("persistence failed, response already delivered",
			slog.String("conversation_id", plan.ref.ConversationID),
			slog.String("error", err.Error()))
	}
}

func (u *chatUsecase) cacheKey(input ChatInput) string {
	h := sha256.New()
	fmt.Fprintf(h, "model=%s\n", input.Model)
	for _, m := range input.Messages {
		fmt.Fprintf(h, "%s:%s\n", m.Role, m.Content)
	}
	if input.Temperature != nil {
		fmt.Fprintf(h, "temp=%g\n", *input.Temperature)
	}
	if input.TopP != nil {
		fmt.Fprintf(h, "top_p=%g\n", *input.TopP)
	}
	fmt.Fprintf(h, "max_tokens=%d\n", input.MaxTokens)
	return hex.EncodeToString(h.Sum(nil))
}

// splitNewestUserTurn separates the newest user message from the rest
// of the conversation, preserving order of the remainder.
func splitNewestUserTurn(msgs []domain.Message) (domain.Message, []domain.Message) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == domain.RoleUser {
			history := make([]domain.Message, 0, len(msgs)-1)
			history = append(history, msgs[:i]...)
			history = append(history, msgs[i+1:]...)
			return msgs[i], history
		}
	}
	// Validation guarantees a user turn exists.
	return domain.Message{}, msgs
}

func normalizeFinish(reason string) string {
	switch reason {
	case domain.FinishReasonStop, domain.FinishReasonLength, domain.FinishReasonError, domain.FinishReasonTimeout:
		return reason
	case "":
		return domain.FinishReasonStop
	default:
		return domain.FinishReasonStop
	}
}
