package usecase

import (
	"context"
	"log/slog"
	"strings"

	"github.com/kirillkom/support-assistant/internal/core/domain"
	"github.com/kirillkom/support-assistant/internal/core/ports"
)

const (
	chooseFlowText     = "Are you an existing customer or a new customer? Or do you just need general information?"
	chooseFlowHintText = "Please type 'new', 'existing', or 'general information'."
	generalAskText     = "Sure! What would you like to know?"
	generalAnswerLead  = "Here's what I found:\n\n"
	storeRetryText     = "We're having trouble reaching our case system right now. Please try again later."
	unexpectedText     = "Sorry, something went wrong on our side. Please try again."
)

type flowController interface {
	Handle(ctx context.Context, session *domain.Session, input string) (domain.Reply, error)
}

// SessionRouter picks the flow that owns a turn and keeps the session history.
// It is the only writer of session.History.
type SessionRouter struct {
	existing   flowController
	onboarding flowController
	knowledge  ports.KnowledgeService
	resetWords []string
}

func NewSessionRouter(
	existing flowController,
	onboarding flowController,
	knowledge ports.KnowledgeService,
	script domain.DialogueScript,
) *SessionRouter {
	script = script.WithDefaults()
	resetWords := make([]string, 0, len(script.ResetWords))
	for _, w := range script.ResetWords {
		if w = normalizeInput(w); w != "" {
			resetWords = append(resetWords, w)
		}
	}
	return &SessionRouter{
		existing:   existing,
		onboarding: onboarding,
		knowledge:  knowledge,
		resetWords: resetWords,
	}
}

// Route handles one user turn and never fails: every error becomes a reply and
// the session stage is left where it was.
func (r *SessionRouter) Route(ctx context.Context, session *domain.Session, input string) domain.Reply {
	if session.History == nil {
		session.History = domain.NewHistory()
	}
	reply := r.dispatch(ctx, session, input)
	reply = reply.With(domain.MetaFlow, string(session.ActiveFlow))
	if reply.Meta(domain.MetaStage) == "" {
		reply = reply.With(domain.MetaStage, session.StageLabel())
	}

	session.History.AddUser(input)
	session.History.AddAssistant(reply.Text)
	return reply
}

func (r *SessionRouter) dispatch(ctx context.Context, session *domain.Session, input string) domain.Reply {
	if r.isReset(input) {
		session.ResetToIntro()
		return domain.NewReply(chooseFlowText)
	}

	switch session.ActiveFlow {
	case domain.FlowExistingCustomer:
		return r.delegate(ctx, r.existing, session, input)
	case domain.FlowNewCustomer:
		return r.delegate(ctx, r.onboarding, session, input)
	case domain.FlowGeneralInfo:
		return r.answerGeneral(ctx, session, input)
	}

	flow := matchFlow(input)
	if flow == domain.FlowNone {
		if session.RouterStage == domain.RouterStageIntro {
			session.RouterStage = domain.RouterStageChooseFlow
			return domain.NewReply(chooseFlowText)
		}
		return domain.NewReply(chooseFlowHintText)
	}

	switch flow {
	case domain.FlowExistingCustomer:
		session.ActiveFlow = flow
		session.Existing = domain.NewExistingCustomerState()
		return r.delegate(ctx, r.existing, session, input)
	case domain.FlowNewCustomer:
		session.ActiveFlow = flow
		return r.delegate(ctx, r.onboarding, session, input)
	default:
		if strings.Contains(input, "?") {
			return r.answerGeneral(ctx, session, input)
		}
		session.ActiveFlow = domain.FlowGeneralInfo
		return domain.NewReply(generalAskText)
	}
}

func (r *SessionRouter) delegate(ctx context.Context, controller flowController, session *domain.Session, input string) domain.Reply {
	reply, err := controller.Handle(ctx, session, input)
	if err == nil {
		return reply
	}
	if domain.IsKind(err, domain.ErrExternalStore) {
		slog.Error("case_store_failure", "session_id", session.ID, "stage", session.StageLabel(), "error", err)
		return domain.NewReply(storeRetryText).With(domain.MetaError, "external_store_failure")
	}
	slog.Error("flow_failure", "session_id", session.ID, "stage", session.StageLabel(), "error", err)
	return domain.NewReply(unexpectedText).With(domain.MetaError, "internal")
}

// answerGeneral is single-turn: it always hands the session back to intro.
func (r *SessionRouter) answerGeneral(ctx context.Context, session *domain.Session, input string) domain.Reply {
	answer := r.knowledge.Answer(ctx, input)
	session.ResetToIntro()
	return domain.Reply{Text: generalAnswerLead + answer.Text, Metadata: answer.Metadata}
}

func (r *SessionRouter) isReset(input string) bool {
	normalized := normalizeInput(input)
	for _, w := range r.resetWords {
		if normalized == w {
			return true
		}
	}
	return false
}

// matchFlow is a case-insensitive substring match; the first keyword found wins.
func matchFlow(input string) domain.Flow {
	normalized := normalizeInput(input)
	switch {
	case strings.Contains(normalized, "new"):
		return domain.FlowNewCustomer
	case strings.Contains(normalized, "exist"):
		return domain.FlowExistingCustomer
	case strings.Contains(normalized, "info"), strings.Contains(normalized, "general"):
		return domain.FlowGeneralInfo
	default:
		return domain.FlowNone
	}
}
