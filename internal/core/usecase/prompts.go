package usecase

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kirillkom/support-assistant/internal/core/domain"
)

const answerSystemPrompt = `You are a customer support assistant.
Answer the user's question using only the context below.
If the question is not covered by the context, say so politely and offer to help with something related instead of refusing.
Keep the answer short and practical.`

const intentSystemPrompt = `Classify the latest user message into exactly one label:
- onboarding_flow: the user is answering or continuing the onboarding questions.
- rag_query: the user asks a general product question outside the onboarding script.
Output only the label.`

// buildAnswerContext concatenates passages in ranked order until maxRunes is spent.
// The first passage is truncated rather than dropped so a long top hit still grounds the answer.
func buildAnswerContext(passages []domain.RetrievedPassage, maxRunes int) (string, []domain.RetrievedPassage) {
	var b strings.Builder
	used := 0
	included := make([]domain.RetrievedPassage, 0, len(passages))
	for idx, passage := range passages {
		header := fmt.Sprintf("[%d] source=%s score=%.4f\n", idx+1, passage.Chunk.SourceDocument, passage.Score)
		text := strings.TrimSpace(passage.Chunk.Text)
		if text == "" {
			continue
		}
		block := []rune(header + text + "\n\n")
		remaining := maxRunes - used
		if maxRunes > 0 && len(block) > remaining {
			if len(included) > 0 || remaining <= len([]rune(header)) {
				break
			}
			block = block[:remaining]
		}
		b.WriteString(string(block))
		used += len(block)
		included = append(included, passage)
	}
	return strings.TrimSpace(b.String()), included
}

func buildAnswerUserPrompt(question, context string) string {
	return fmt.Sprintf("Context:\n%s\n\nQuestion: %s", context, question)
}

func buildOnboardingSystemPrompt(policy string, slots domain.OnboardingSlots, nextStep string) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(policy))
	b.WriteString("\n\nKnown facts about this customer (never ask for these again):\n")
	b.WriteString(describeSlots(slots))
	if nextStep != "" {
		b.WriteString("\nNext step: ")
		b.WriteString(nextStep)
	}
	b.WriteString(`

Respond with a JSON object only:
{"reply": "<your message to the customer>", "slots": {"hardware_owned": true|false|null, "brand": "", "business_type": "", "door_count": 0, "name": ""}}
Fill "slots" with anything the customer has told you so far; leave unknown values empty.`)
	return b.String()
}

func describeSlots(slots domain.OnboardingSlots) string {
	lines := make([]string, 0, 5)
	if slots.HardwareOwned != nil {
		owned := "no"
		if *slots.HardwareOwned {
			owned = "yes"
		}
		lines = append(lines, "- owns smart lock hardware: "+owned)
	}
	if slots.Brand != "" {
		lines = append(lines, "- lock brand: "+slots.Brand)
	}
	if slots.BusinessType != "" {
		lines = append(lines, "- business type: "+slots.BusinessType)
	}
	if slots.DoorCount != nil {
		lines = append(lines, "- doors to manage: "+strconv.Itoa(*slots.DoorCount))
	}
	if slots.Name != "" {
		lines = append(lines, "- name: "+slots.Name)
	}
	if len(lines) == 0 {
		return "- nothing yet\n"
	}
	return strings.Join(lines, "\n") + "\n"
}
