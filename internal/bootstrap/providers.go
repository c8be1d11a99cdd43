package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/kirillkom/support-assistant/internal/config"
	"github.com/kirillkom/support-assistant/internal/core/ports"
	"github.com/kirillkom/support-assistant/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/support-assistant/internal/infrastructure/llm/openai"
	"github.com/kirillkom/support-assistant/internal/infrastructure/resilience"
	sessionmemory "github.com/kirillkom/support-assistant/internal/infrastructure/session/memory"
	sessionredis "github.com/kirillkom/support-assistant/internal/infrastructure/session/redis"
	"github.com/kirillkom/support-assistant/internal/infrastructure/vector/milvus"
	"github.com/kirillkom/support-assistant/internal/infrastructure/vector/qdrant"
)

type closer func()

func newLanguageModels(cfg config.Config, genExec, embedExec *resilience.Executor) (ports.Embedder, ports.TextGenerator, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.LLMProvider)) {
	case "", "ollama":
		client := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel).WithExecutors(genExec, embedExec)
		return ollama.NewEmbedder(client), ollama.NewGenerator(client), nil
	case "openai":
		client, err := openai.New(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIChatModel, cfg.OpenAIEmbedModel)
		if err != nil {
			return nil, nil, fmt.Errorf("init openai client: %w", err)
		}
		client.WithExecutors(genExec, embedExec)
		return openai.NewEmbedder(client), openai.NewGenerator(client), nil
	default:
		return nil, nil, fmt.Errorf("unknown LLM_PROVIDER %q", cfg.LLMProvider)
	}
}

func newDenseIndex(ctx context.Context, cfg config.Config, exec *resilience.Executor) (ports.DenseIndex, closer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.DenseIndexBackend)) {
	case "", "qdrant":
		return qdrant.New(cfg.QdrantURL, cfg.QdrantCollection).WithExecutor(exec), func() {}, nil
	case "milvus":
		store, err := milvus.New(ctx, milvus.Config{
			Address:        cfg.MilvusAddress,
			CollectionName: cfg.MilvusCollection,
			Dimension:      cfg.MilvusDimension,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("init milvus: %w", err)
		}
		store.WithExecutor(exec)
		return store, func() { _ = store.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown DENSE_INDEX_BACKEND %q", cfg.DenseIndexBackend)
	}
}

func newSessionStore(cfg config.Config) (ports.SessionStore, closer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.SessionBackend)) {
	case "", "memory":
		return sessionmemory.New(cfg.SessionTTL), func() {}, nil
	case "redis":
		store, err := sessionredis.NewFromURL(cfg.RedisURL, cfg.SessionTTL)
		if err != nil {
			return nil, nil, fmt.Errorf("init redis sessions: %w", err)
		}
		return store, func() { _ = store.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown SESSION_BACKEND %q", cfg.SessionBackend)
	}
}
