package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/support-assistant/internal/core/domain"
)

func TestParseIntent(t *testing.T) {
	cases := []struct {
		raw    string
		want   domain.Intent
		wantOK bool
	}{
		{raw: "rag_query", want: domain.IntentRAGQuery, wantOK: true},
		{raw: "  RAG_QUERY\n", want: domain.IntentRAGQuery, wantOK: true},
		{raw: `"rag_query".`, want: domain.IntentRAGQuery, wantOK: true},
		{raw: "Label: rag_query", want: domain.IntentRAGQuery, wantOK: true},
		{raw: "onboarding_flow", want: domain.IntentOnboardingFlow, wantOK: true},
		{raw: "The answer is onboarding_flow", want: domain.IntentOnboardingFlow, wantOK: true},
		{raw: "rag_query or onboarding_flow", want: domain.IntentOnboardingFlow, wantOK: false},
		{raw: "I am not sure", want: domain.IntentOnboardingFlow, wantOK: false},
		{raw: "", want: domain.IntentOnboardingFlow, wantOK: false},
	}

	for _, tc := range cases {
		got, ok := parseIntent(tc.raw)
		if got != tc.want || ok != tc.wantOK {
			t.Fatalf("parseIntent(%q) = (%s, %v), want (%s, %v)", tc.raw, got, ok, tc.want, tc.wantOK)
		}
	}
}

func TestClassifyFallsBackToOnboardingOnGenerationError(t *testing.T) {
	gen := &generatorFake{respond: func(domain.CompletionRequest) (string, error) {
		return "", errors.New("timeout")
	}}
	c := NewIntentClassifier(gen, 0)

	if got := c.Classify(context.Background(), nil, "what does it cost?"); got != domain.IntentOnboardingFlow {
		t.Fatalf("expected onboarding fallback, got %s", got)
	}
}

func TestClassifyBoundsHistoryWindow(t *testing.T) {
	gen := &generatorFake{respond: func(domain.CompletionRequest) (string, error) {
		return "rag_query", nil
	}}
	c := NewIntentClassifier(gen, 2)

	history := domain.NewHistory()
	for i := 0; i < 5; i++ {
		history.AddUser("u")
		history.AddAssistant("a")
	}

	if got := c.Classify(context.Background(), history.Turns(), "how do locks pair?"); got != domain.IntentRAGQuery {
		t.Fatalf("expected rag_query, got %s", got)
	}
	req := gen.lastRequest()
	if len(req.History) != 2 {
		t.Fatalf("expected 2 history turns, got %d", len(req.History))
	}
	if req.User != "how do locks pair?" {
		t.Fatalf("expected latest input as user message, got %q", req.User)
	}
}
