package di

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"chat-orchestrator/internal/adapter/chat_http"
	"chat-orchestrator/internal/adapter/llm"
	"chat-orchestrator/internal/adapter/repository"
	"chat-orchestrator/internal/domain"
	"chat-orchestrator/internal/infra/config"
	"chat-orchestrator/internal/infra/httpclient"
	"chat-orchestrator/internal/usecase"
	"chat-orchestrator/internal/worker"
)

// ApplicationComponents holds all wired dependencies for the application.
type ApplicationComponents struct {
	Registry      *llm.Registry
	ChatUsecase   usecase.ChatUsecase
	Handler       *chat_http.Handler
	PersistWorker *worker.PersistWorker
}

// NewApplicationComponents wires all dependencies from config and database pool.
// pool may be nil; retrieval and persistence are then disabled.
func NewApplicationComponents(cfg *config.Config, pool *pgxpool.Pool, log *slog.Logger) *ApplicationComponents {
	// Model clients share one streaming transport; deadlines come from
	// the request context, not the client.
	streamingHTTP := httpclient.NewStreamingClient()

	registry := llm.NewRegistry()
	registry.Register(llm.NewOllamaClient(cfg.OllamaURL, cfg.ChatModel, streamingHTTP, log))
	if cfg.OpenAIBaseURL != "" {
		registry.Register(llm.NewOpenAIClient(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIModel, streamingHTTP, log))
	}

	var retriever domain.Retriever
	var convRepo *repository.ConversationRepository
	var persistWorker *worker.PersistWorker
	var store domain.ConversationStore

	if pool != nil {
		embedderHTTP := httpclient.NewPooledClient(cfg.RetrievalTimeout)
		embedder := llm.NewOllamaEmbedder(cfg.OllamaURL, cfg.EmbeddingModel, embedderHTTP, log)
		passageRepo := repository.NewPassageRepository(pool)
		retriever = usecase.NewRetrieveContextUsecase(embedder, passageRepo, log)

		txManager := repository.NewPostgresTransactionManager(pool)
		convRepo = repository.NewConversationRepository(pool, txManager)
		persistWorker = worker.NewPersistWorker(convRepo, cfg.PersistQueueSize, cfg.PersistWorkers, log)
		store = persistWorker
	}

	chatUsecase := usecase.NewChatUsecase(
		registry,
		retriever,
		usecase.NewContextPromptAssembler(),
		usecase.NewStatusAnnouncer(cfg.StreamShowThinking),
		store,
		usecase.ChatConfig{
			ShowThinking:      cfg.StreamShowThinking,
			PromptTokenBudget: cfg.PromptTokenBudget,
			CompletionReserve: cfg.CompletionReserve,
			RetrievalEnabled:  cfg.RetrievalEnabled,
			RetrievalTopK:     cfg.RetrievalTopK,
			RetrievalTimeout:  cfg.RetrievalTimeout,
			ModelTimeout:      cfg.ModelTimeout,
			CacheSize:         cfg.CacheSize,
			CacheTTL:          cfg.CacheTTL,
		},
		log,
	)

	var handler *chat_http.Handler
	if convRepo != nil {
		handler = chat_http.NewHandler(chatUsecase, registry, convRepo, log)
	} else {
		handler = chat_http.NewHandler(chatUsecase, registry, nil, log)
	}

	return &ApplicationComponents{
		Registry:      registry,
		ChatUsecase:   chatUsecase,
		Handler:       handler,
		PersistWorker: persistWorker,
	}
}
