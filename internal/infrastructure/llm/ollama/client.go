package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/support-assistant/internal/core/domain"
	"github.com/kirillkom/support-assistant/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	genModel   string
	embedModel string
	httpClient *http.Client

	genExec   *resilience.Executor
	embedExec *resilience.Executor
}

func New(baseURL, genModel, embedModel string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		genExec:    resilience.NewExecutor(resilience.GenerationConfig(60 * time.Second)),
		embedExec:  resilience.NewExecutor(resilience.RetrievalConfig(15 * time.Second)),
	}
}

// WithExecutors replaces the default generation and embedding policies.
func (c *Client) WithExecutors(gen, embed *resilience.Executor) *Client {
	if gen != nil {
		c.genExec = gen
	}
	if embed != nil {
		c.embedExec = embed
	}
	return c
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}

	vectors, err := resilience.Call(ctx, e.client.embedExec, "ollama.embed", func(attemptCtx context.Context) ([][]float32, error) {
		var response struct {
			Embeddings [][]float32 `json:"embeddings"`
		}
		if err := e.client.postJSON(attemptCtx, "/api/embed", request, &response, "embed"); err != nil {
			return nil, err
		}
		return response.Embeddings, nil
	}, classifyOllamaError)
	if err != nil {
		return nil, wrapTemporaryIfNeeded("ollama embed", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("ollama embed: expected %d vectors, got %d", len(texts), len(vectors))
	}
	return vectors, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

// Generator serves chat completions through /api/chat.
type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

func (g *Generator) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	reqBody := map[string]any{
		"model":    g.client.genModel,
		"messages": buildChatMessages(req),
		"stream":   false,
	}
	if req.JSON {
		reqBody["format"] = "json"
	}

	text, err := resilience.Call(ctx, g.client.genExec, "ollama.chat", func(attemptCtx context.Context) (string, error) {
		var response struct {
			Message chatMessage `json:"message"`
		}
		if err := g.client.postJSON(attemptCtx, "/api/chat", reqBody, &response, "chat"); err != nil {
			return "", err
		}
		return strings.TrimSpace(response.Message.Content), nil
	}, classifyOllamaError)
	if err != nil {
		return "", wrapTemporaryIfNeeded("ollama chat", err)
	}
	return text, nil
}
