// Package openai serves completions and embeddings from the OpenAI API or any
// endpoint that speaks its wire format.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/kirillkom/support-assistant/internal/core/domain"
	"github.com/kirillkom/support-assistant/internal/infrastructure/resilience"
)

var errMissingAPIKey = errors.New("missing api key")

type Client struct {
	api        sdk.Client
	chatModel  string
	embedModel string

	genExec   *resilience.Executor
	embedExec *resilience.Executor
}

func New(apiKey, baseURL, chatModel, embedModel string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "openai client", errMissingAPIKey)
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL = strings.TrimSpace(baseURL); baseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(baseURL, "/")+"/"))
	}
	return &Client{
		api:        sdk.NewClient(opts...),
		chatModel:  chatModel,
		embedModel: embedModel,
		genExec:    resilience.NewExecutor(resilience.GenerationConfig(60 * time.Second)),
		embedExec:  resilience.NewExecutor(resilience.RetrievalConfig(15 * time.Second)),
	}, nil
}

func (c *Client) WithExecutors(gen, embed *resilience.Executor) *Client {
	if gen != nil {
		c.genExec = gen
	}
	if embed != nil {
		c.embedExec = embed
	}
	return c
}

type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

func (g *Generator) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	params := sdk.ChatCompletionNewParams{
		Model:    shared.ChatModel(g.client.chatModel),
		Messages: buildMessages(req),
	}
	if req.JSON {
		params.ResponseFormat = sdk.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	text, err := resilience.Call(ctx, g.client.genExec, "openai.chat", func(attemptCtx context.Context) (string, error) {
		completion, err := g.client.api.Chat.Completions.New(attemptCtx, params)
		if err != nil {
			return "", err
		}
		if len(completion.Choices) == 0 {
			return "", fmt.Errorf("openai chat: no choices returned")
		}
		return strings.TrimSpace(completion.Choices[0].Message.Content), nil
	}, classifyAPIError)
	if err != nil {
		return "", wrapTemporaryIfNeeded("openai chat", err)
	}
	return text, nil
}

func buildMessages(req domain.CompletionRequest) []sdk.ChatCompletionMessageParamUnion {
	messages := make([]sdk.ChatCompletionMessageParamUnion, 0, len(req.History)+2)
	if req.System != "" {
		messages = append(messages, sdk.SystemMessage(req.System))
	}
	for _, turn := range req.History {
		if turn.Role == domain.RoleAssistant {
			messages = append(messages, sdk.AssistantMessage(turn.Text))
			continue
		}
		messages = append(messages, sdk.UserMessage(turn.Text))
	}
	return append(messages, sdk.UserMessage(req.User))
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

	vectors, err := resilience.Call(ctx, e.client.embedExec, "openai.embed", func(attemptCtx context.Context) ([][]float32, error) {
		resp, err := e.client.api.Embeddings.New(attemptCtx, sdk.EmbeddingNewParams{
			Input: sdk.EmbeddingNewParamsInputUnion{
				OfArrayOfStrings: texts,
			},
			Model:          e.client.embedModel,
			EncodingFormat: sdk.EmbeddingNewParamsEncodingFormatFloat,
		})
		if err != nil {
			return nil, err
		}
		out := make([][]float32, len(texts))
		for _, data := range resp.Data {
			idx := int(data.Index)
			if idx < 0 || idx >= len(out) {
				return nil, fmt.Errorf("openai embed: index %d out of range", idx)
			}
			vec := make([]float32, len(data.Embedding))
			for j, v := range data.Embedding {
				vec[j] = float32(v)
			}
			out[idx] = vec
		}
		return out, nil
	}, classifyAPIError)
	if err != nil {
		return nil, wrapTemporaryIfNeeded("openai embed", err)
	}
	for i, vec := range vectors {
		if len(vec) == 0 {
			return nil, fmt.Errorf("openai embed: missing vector for input %d", i)
		}
	}
	return vectors, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func classifyAPIError(err error) resilience.ErrorClassification {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		default:
			return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
		}
	}
	return resilience.ClassifyTransient(err)
}

func wrapTemporaryIfNeeded(operation string, err error) error {
	if classifyAPIError(err).Retryable || resilience.IsCircuitOpen(err) || errors.Is(err, context.DeadlineExceeded) {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}
