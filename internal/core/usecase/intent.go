package usecase

import (
	"context"
	"log/slog"
	"strings"
	"unicode"

	"github.com/kirillkom/support-assistant/internal/core/domain"
	"github.com/kirillkom/support-assistant/internal/core/ports"
)

const defaultClassifierHistoryTurns = 8

// IntentClassifier labels a new-customer turn. Any failure or unexpected output
// falls back to IntentOnboardingFlow so the structured dialogue keeps moving.
type IntentClassifier struct {
	generator    ports.TextGenerator
	historyTurns int
}

func NewIntentClassifier(generator ports.TextGenerator, historyTurns int) *IntentClassifier {
	if historyTurns <= 0 {
		historyTurns = defaultClassifierHistoryTurns
	}
	return &IntentClassifier{
		generator:    generator,
		historyTurns: historyTurns,
	}
}

func (c *IntentClassifier) Classify(ctx context.Context, history []domain.ConversationTurn, input string) domain.Intent {
	if len(history) > c.historyTurns {
		history = history[len(history)-c.historyTurns:]
	}
	raw, err := c.generator.Complete(ctx, domain.CompletionRequest{
		System:  intentSystemPrompt,
		History: history,
		User:    input,
	})
	if err != nil {
		slog.Warn("intent_fallback", "reason", "generation_error", "error", err)
		return domain.IntentOnboardingFlow
	}

	intent, ok := parseIntent(raw)
	if !ok {
		slog.Warn("intent_fallback", "reason", "unparseable_label", "output", truncateRunes(raw, 120))
	}
	return intent
}

// parseIntent accepts a bare label with optional quotes or punctuation around it.
func parseIntent(raw string) (domain.Intent, bool) {
	label := strings.ToLower(strings.TrimSpace(raw))
	label = strings.TrimFunc(label, func(r rune) bool {
		return r != '_' && (unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r))
	})
	label = strings.TrimPrefix(label, "label:")
	label = strings.TrimSpace(label)

	switch domain.Intent(label) {
	case domain.IntentRAGQuery:
		return domain.IntentRAGQuery, true
	case domain.IntentOnboardingFlow:
		return domain.IntentOnboardingFlow, true
	}

	hasRAG := strings.Contains(label, string(domain.IntentRAGQuery))
	hasOnboarding := strings.Contains(label, string(domain.IntentOnboardingFlow))
	if hasRAG && !hasOnboarding {
		return domain.IntentRAGQuery, true
	}
	if hasOnboarding && !hasRAG {
		return domain.IntentOnboardingFlow, true
	}
	return domain.IntentOnboardingFlow, false
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
