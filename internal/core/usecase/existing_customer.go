package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/support-assistant/internal/core/domain"
	"github.com/kirillkom/support-assistant/internal/core/ports"
)

const (
	askEmailText          = "Could you please provide your email so I can check your account?"
	invalidEmailText      = "That doesn't look like an email address. Please enter the email on your account."
	askCaseNumberText     = "Which case number would you like help with?"
	invalidCaseNumberText = "Invalid case number. Please enter a valid number."
	ticketNotCreatedText  = "Ticket not created."
	assistCaseClosingText = "Our support team will address this issue. Is there anything else I can help you with today?"
	anythingElseText      = "Is there anything else I can help you with today?"
)

// ExistingCustomerFlow triages support requests of known customers. Every turn is
// a pure function of the current stage and the normalized input, apart from the
// case store lookups.
type ExistingCustomerFlow struct {
	cases        ports.CaseStore
	events       ports.CaseEvents
	knowledge    ports.KnowledgeService
	categories   []string
	affirmatives map[string]struct{}
}

func NewExistingCustomerFlow(
	cases ports.CaseStore,
	events ports.CaseEvents,
	knowledge ports.KnowledgeService,
	script domain.DialogueScript,
) *ExistingCustomerFlow {
	script = script.WithDefaults()
	return &ExistingCustomerFlow{
		cases:        cases,
		events:       events,
		knowledge:    knowledge,
		categories:   script.Categories,
		affirmatives: wordSet(script.Affirmatives),
	}
}

// Handle advances session.Existing by one turn. A case store failure returns an
// ErrExternalStore error and leaves the state exactly as it was.
func (f *ExistingCustomerFlow) Handle(ctx context.Context, session *domain.Session, input string) (domain.Reply, error) {
	next := session.Existing
	reply, err := f.step(ctx, session.ID, &next, input)
	if err != nil {
		return domain.Reply{}, err
	}
	session.Existing = next
	return reply.With(domain.MetaStage, string(next.Stage)), nil
}

func (f *ExistingCustomerFlow) step(ctx context.Context, sessionID string, st *domain.ExistingCustomerState, raw string) (domain.Reply, error) {
	input := normalizeInput(raw)

	switch st.Stage {
	case domain.StageWaitEmail:
		return f.lookupCases(ctx, st, input)

	case domain.StageHelpExistingCase:
		if _, ok := f.affirmatives[input]; ok {
			st.Stage = domain.StageSelectCaseNumber
			return domain.NewReply(askCaseNumberText), nil
		}
		if _, err := strconv.Atoi(input); err == nil {
			st.Stage = domain.StageSelectCaseNumber
			return f.selectCase(ctx, st, input), nil
		}
		st.Stage = domain.StageChooseCategory
		return domain.NewReply("Please choose a category instead:\n" + f.categoryMenu()), nil

	case domain.StageSelectCaseNumber:
		return f.selectCase(ctx, st, input), nil

	case domain.StageChooseCategory:
		category, ok := f.matchCategory(input)
		if !ok {
			return domain.NewReply(fmt.Sprintf("Please choose a valid option (1-%d).", len(f.categories))), nil
		}
		st.Category = category
		st.Stage = domain.StageWaitIssueDesc
		return domain.NewReply(fmt.Sprintf("Please describe your issue with %s.", category)), nil

	case domain.StageWaitIssueDesc:
		st.IssueDescription = strings.TrimSpace(raw)
		answer := f.knowledge.Answer(ctx, st.IssueDescription)
		st.Stage = domain.StageConfirmTicket
		text := fmt.Sprintf("Suggested information from knowledge base:\n%s\n\nDo you want to create a ticket for this? (yes/no)", answer.Text)
		return domain.Reply{Text: text, Metadata: answer.Metadata}, nil

	case domain.StageConfirmTicket:
		if _, ok := f.affirmatives[input]; !ok {
			st.Stage = domain.StageDone
			return domain.NewReply(ticketNotCreatedText), nil
		}
		return f.createTicket(ctx, sessionID, st)

	case domain.StageAssistCase:
		*st = domain.NewExistingCustomerState()
		return domain.NewReply(assistCaseClosingText), nil

	case domain.StageDone:
		*st = domain.NewExistingCustomerState()
		return domain.NewReply(anythingElseText), nil

	default:
		*st = domain.NewExistingCustomerState()
		st.Stage = domain.StageWaitEmail
		return domain.NewReply(askEmailText), nil
	}
}

func (f *ExistingCustomerFlow) lookupCases(ctx context.Context, st *domain.ExistingCustomerState, email string) (domain.Reply, error) {
	if !looksLikeEmail(email) {
		slog.Debug("invalid_user_input", "stage", st.Stage, "error", domain.WrapError(domain.ErrInvalidInput, "email", errInvalidEmail))
		return domain.NewReply(invalidEmailText), nil
	}

	cases, err := f.cases.Find(ctx, email, domain.CaseStatusOpen)
	if err != nil {
		return domain.Reply{}, domain.WrapError(domain.ErrExternalStore, "find open cases", err)
	}

	st.Email = email
	st.OpenCases = cases
	st.SelectedCase = 0
	if len(cases) == 0 {
		st.Stage = domain.StageChooseCategory
		return domain.NewReply("No open cases found. Please choose a category:\n" + f.categoryMenu()), nil
	}

	lines := make([]string, 0, len(cases))
	for idx, c := range cases {
		title := c.Title
		if title == "" {
			title = "No Title"
		}
		lines = append(lines, fmt.Sprintf("%d. %s", idx+1, title))
	}
	st.Stage = domain.StageHelpExistingCase
	return domain.NewReply("I found these open cases:\n" + strings.Join(lines, "\n") + "\nWould you like help with one of these cases?"), nil
}

func (f *ExistingCustomerFlow) selectCase(ctx context.Context, st *domain.ExistingCustomerState, input string) domain.Reply {
	n, err := strconv.Atoi(input)
	if err != nil || n < 1 || n > len(st.OpenCases) {
		return domain.NewReply(invalidCaseNumberText)
	}

	chosen := st.OpenCases[n-1]
	description := chosen.Description
	if description == "" {
		description = "No Description"
	}
	answer := f.knowledge.Answer(ctx, description)
	st.SelectedCase = n
	st.Stage = domain.StageAssistCase

	text := fmt.Sprintf("Case Details:\n%s\n\nSuggested solution:\n%s", description, answer.Text)
	return domain.Reply{Text: text, Metadata: answer.Metadata}
}

func (f *ExistingCustomerFlow) createTicket(ctx context.Context, sessionID string, st *domain.ExistingCustomerState) (domain.Reply, error) {
	created, err := f.cases.Create(ctx, domain.CaseFields{
		Email:       st.Email,
		Category:    st.Category,
		Title:       fmt.Sprintf("New %s Issue", st.Category),
		Description: st.IssueDescription,
		Status:      domain.CaseStatusOpen,
	})
	if err != nil {
		return domain.Reply{}, domain.WrapError(domain.ErrExternalStore, "create case", err)
	}

	ticketID := domain.TicketID(created.ID)
	st.Stage = domain.StageDone
	f.publishCreated(ctx, sessionID, ticketID, *created)

	return domain.NewReply("Your ticket number is: " + ticketID).
		With(domain.MetaTicketID, ticketID), nil
}

func (f *ExistingCustomerFlow) publishCreated(ctx context.Context, sessionID, ticketID string, c domain.Case) {
	if f.events == nil {
		return
	}
	err := f.events.PublishCaseCreated(ctx, domain.CaseCreatedEvent{
		TicketID:   ticketID,
		SessionID:  sessionID,
		Case:       c,
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		slog.Warn("case_event_publish_failed", "ticket_id", ticketID, "error", err)
	}
}

func (f *ExistingCustomerFlow) categoryMenu() string {
	lines := make([]string, 0, len(f.categories))
	for idx, name := range f.categories {
		lines = append(lines, fmt.Sprintf("%d. %s", idx+1, name))
	}
	return strings.Join(lines, "\n")
}

// matchCategory accepts a 1-based menu number or the category name.
func (f *ExistingCustomerFlow) matchCategory(input string) (string, bool) {
	if n, err := strconv.Atoi(input); err == nil {
		if n >= 1 && n <= len(f.categories) {
			return f.categories[n-1], true
		}
		return "", false
	}
	for _, name := range f.categories {
		if strings.EqualFold(name, input) {
			return name, true
		}
	}
	return "", false
}

func normalizeInput(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func looksLikeEmail(s string) bool {
	at := strings.Index(s, "@")
	return at > 0 && at < len(s)-1 && !strings.ContainsAny(s, " \t\n")
}

func wordSet(words []string) map[string]struct{} {
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		w = normalizeInput(w)
		if w != "" {
			out[w] = struct{}{}
		}
	}
	return out
}
