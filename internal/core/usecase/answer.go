package usecase

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/kirillkom/support-assistant/internal/core/domain"
	"github.com/kirillkom/support-assistant/internal/core/ports"
)

const (
	generationFallbackText = "I'm sorry, I couldn't put together an answer right now. Please try again in a moment."
	retrievalFallbackText  = "I'm sorry, I can't find that information right now. Please try again later."
	noContextText          = "Sorry, I could not find relevant information about that."
	defaultMaxContextRunes = 6000
)

// AnswerSynthesizer turns ranked passages into a grounded answer with a single
// generation attempt.
type AnswerSynthesizer struct {
	generator       ports.TextGenerator
	maxContextRunes int
}

func NewAnswerSynthesizer(generator ports.TextGenerator, maxContextRunes int) *AnswerSynthesizer {
	if maxContextRunes <= 0 {
		maxContextRunes = defaultMaxContextRunes
	}
	return &AnswerSynthesizer{
		generator:       generator,
		maxContextRunes: maxContextRunes,
	}
}

func (s *AnswerSynthesizer) Synthesize(ctx context.Context, query string, passages []domain.RetrievedPassage) domain.Reply {
	contextText, included := buildAnswerContext(passages, s.maxContextRunes)

	text, err := s.generator.Complete(ctx, domain.CompletionRequest{
		System: answerSystemPrompt,
		User:   buildAnswerUserPrompt(query, contextText),
	})
	if err == nil && strings.TrimSpace(text) == "" {
		err = errEmptyOutput
	}
	if err != nil {
		slog.Warn("answer_generation_failed",
			"error", domain.WrapError(domain.ErrGenerationFailure, "synthesize", err),
			"passages", len(included),
		)
		return domain.NewReply(generationFallbackText).
			With(domain.MetaFallback, domain.FallbackGeneration)
	}

	return domain.NewReply(strings.TrimSpace(text)).
		With(domain.MetaSources, joinSources(included)).
		With(domain.MetaPassages, strconv.Itoa(len(included)))
}

func joinSources(passages []domain.RetrievedPassage) string {
	seen := make(map[string]struct{}, len(passages))
	out := make([]string, 0, len(passages))
	for _, passage := range passages {
		src := passage.Chunk.SourceDocument
		if src == "" {
			continue
		}
		if _, ok := seen[src]; ok {
			continue
		}
		seen[src] = struct{}{}
		out = append(out, src)
	}
	return strings.Join(out, ",")
}

// RAGObserver receives per-question retrieval outcomes.
type RAGObserver interface {
	ObserveRAG(passages int, fallback string)
}

// KnowledgeAnswerer chains hybrid retrieval and synthesis and never fails the turn.
type KnowledgeAnswerer struct {
	retriever   *HybridRetriever
	synthesizer *AnswerSynthesizer
	observer    RAGObserver
}

func NewKnowledgeAnswerer(retriever *HybridRetriever, synthesizer *AnswerSynthesizer, observer RAGObserver) *KnowledgeAnswerer {
	return &KnowledgeAnswerer{
		retriever:   retriever,
		synthesizer: synthesizer,
		observer:    observer,
	}
}

func (a *KnowledgeAnswerer) Retrieve(ctx context.Context, query string, k int) ([]domain.RetrievedPassage, error) {
	return a.retriever.Retrieve(ctx, query, k)
}

func (a *KnowledgeAnswerer) Answer(ctx context.Context, question string) domain.Reply {
	passages, err := a.retriever.Retrieve(ctx, question, 0)
	if err != nil {
		slog.Warn("knowledge_retrieval_failed", "error", err)
		a.observe(0, domain.FallbackRetrieval)
		return domain.NewReply(retrievalFallbackText).
			With(domain.MetaFallback, domain.FallbackRetrieval)
	}
	if len(passages) == 0 {
		a.observe(0, domain.FallbackNoContext)
		return domain.NewReply(noContextText).
			With(domain.MetaFallback, domain.FallbackNoContext)
	}

	reply := a.synthesizer.Synthesize(ctx, question, passages)
	a.observe(len(passages), reply.Meta(domain.MetaFallback))
	return reply
}

func (a *KnowledgeAnswerer) observe(passages int, fallback string) {
	if a.observer == nil {
		return
	}
	a.observer.ObserveRAG(passages, fallback)
}
