package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/support-assistant/internal/core/domain"
	"github.com/kirillkom/support-assistant/internal/core/ports"
)

const (
	onboardingFallbackText   = "Sorry, I'm having trouble right now. Could you repeat that in a moment?"
	defaultOnboardingHistory = 12
)

// NewCustomerFlow runs the intent-driven onboarding dialogue. Progress lives in
// the onboarding slot set, which is refreshed from every generated response.
type NewCustomerFlow struct {
	classifier   *IntentClassifier
	knowledge    ports.KnowledgeService
	generator    ports.TextGenerator
	script       domain.DialogueScript
	affirmatives map[string]struct{}
	historyTurns int
}

func NewNewCustomerFlow(
	classifier *IntentClassifier,
	knowledge ports.KnowledgeService,
	generator ports.TextGenerator,
	script domain.DialogueScript,
	historyTurns int,
) *NewCustomerFlow {
	if historyTurns <= 0 {
		historyTurns = defaultOnboardingHistory
	}
	script = script.WithDefaults()
	return &NewCustomerFlow{
		classifier:   classifier,
		knowledge:    knowledge,
		generator:    generator,
		script:       script,
		affirmatives: wordSet(script.Affirmatives),
		historyTurns: historyTurns,
	}
}

func (f *NewCustomerFlow) Handle(ctx context.Context, session *domain.Session, input string) (domain.Reply, error) {
	history := session.History.Turns()
	intent := f.classifier.Classify(ctx, history, input)
	if intent == domain.IntentRAGQuery {
		return f.knowledge.Answer(ctx, input).With(domain.MetaIntent, string(intent)), nil
	}

	state := &session.Onboarding
	state.Turns++
	salesOffered := f.salesQualified(state.Slots)

	raw, err := f.generator.Complete(ctx, domain.CompletionRequest{
		System:  buildOnboardingSystemPrompt(f.script.OnboardingPolicy, state.Slots, f.nextStep(state.Slots)),
		History: session.History.Recent(f.historyTurns),
		User:    input,
		JSON:    true,
	})
	if err == nil && strings.TrimSpace(raw) == "" {
		err = errEmptyOutput
	}
	if err != nil {
		slog.Warn("onboarding_generation_failed", "error", domain.WrapError(domain.ErrGenerationFailure, "onboarding", err))
		return domain.NewReply(onboardingFallbackText).
			With(domain.MetaIntent, string(intent)).
			With(domain.MetaFallback, domain.FallbackGeneration), nil
	}

	text, update, ok := parseOnboardingResponse(raw)
	if ok {
		state.Slots.Merge(update)
	} else {
		slog.Warn("onboarding_slots_unparsed", "output", truncateRunes(raw, 120))
	}

	if salesOffered && !state.Slots.SalesLinkSent && f.isAffirmative(input) {
		if !strings.Contains(text, f.script.SalesLink) {
			text = strings.TrimSpace(text + "\n\nYou can book a time with our sales team here: " + f.script.SalesLink)
		}
	}
	if strings.Contains(text, f.script.SalesLink) {
		state.Slots.SalesLinkSent = true
	}

	return domain.NewReply(text).With(domain.MetaIntent, string(intent)), nil
}

// nextStep names the first onboarding question the customer has not answered yet.
func (f *NewCustomerFlow) nextStep(slots domain.OnboardingSlots) string {
	switch {
	case slots.HardwareOwned == nil:
		return "ask whether they already own any smart lock hardware."
	case *slots.HardwareOwned && slots.Brand == "":
		return "ask which smart lock brand they use."
	case !*slots.HardwareOwned && slots.BusinessType == "":
		return "ask what type of business they run."
	case slots.DoorCount == nil:
		return "ask how many doors they plan to manage."
	case f.salesQualified(slots) && !slots.SalesLinkSent:
		return fmt.Sprintf("recommend speaking with a sales rep; if they agree, share %s.", f.script.SalesLink)
	case slots.Name == "":
		return "ask for their name naturally."
	default:
		return "answer any remaining questions and offer further help."
	}
}

func (f *NewCustomerFlow) salesQualified(slots domain.OnboardingSlots) bool {
	return slots.DoorCount != nil && *slots.DoorCount >= f.script.SalesDoorThreshold
}

func (f *NewCustomerFlow) isAffirmative(input string) bool {
	normalized := normalizeInput(input)
	if _, ok := f.affirmatives[normalized]; ok {
		return true
	}
	for _, word := range strings.FieldsFunc(normalized, func(r rune) bool {
		return r == ' ' || r == ',' || r == '.' || r == '!'
	}) {
		if _, ok := f.affirmatives[word]; ok {
			return true
		}
	}
	return false
}

type onboardingResponse struct {
	Reply string `json:"reply"`
	Slots struct {
		HardwareOwned *bool  `json:"hardware_owned"`
		Brand         string `json:"brand"`
		BusinessType  string `json:"business_type"`
		DoorCount     *int   `json:"door_count"`
		Name          string `json:"name"`
	} `json:"slots"`
}

// parseOnboardingResponse extracts the reply text and slot values. Output that is
// not the expected JSON is returned verbatim as the reply with no slot update.
func parseOnboardingResponse(raw string) (string, domain.OnboardingSlots, bool) {
	var resp onboardingResponse
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &resp); err != nil || strings.TrimSpace(resp.Reply) == "" {
		return strings.TrimSpace(raw), domain.OnboardingSlots{}, false
	}
	return strings.TrimSpace(resp.Reply), domain.OnboardingSlots{
		HardwareOwned: resp.Slots.HardwareOwned,
		Brand:         strings.TrimSpace(resp.Slots.Brand),
		BusinessType:  strings.TrimSpace(resp.Slots.BusinessType),
		DoorCount:     resp.Slots.DoorCount,
		Name:          strings.TrimSpace(resp.Slots.Name),
	}, true
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
