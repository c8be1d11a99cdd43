package usecase

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/support-assistant/internal/core/domain"
	"github.com/kirillkom/support-assistant/internal/core/ports"
)

// TurnObserver receives per-turn outcomes for metrics.
type TurnObserver interface {
	ObserveTurn(flow, stage, outcome string, duration time.Duration)
}

type ChatService struct {
	router      *SessionRouter
	sessions    ports.SessionStore
	transcripts ports.TranscriptStore
	observer    TurnObserver
	greeting    string

	locks sync.Map
}

func NewChatService(
	router *SessionRouter,
	sessions ports.SessionStore,
	transcripts ports.TranscriptStore,
	observer TurnObserver,
	script domain.DialogueScript,
) *ChatService {
	return &ChatService{
		router:      router,
		sessions:    sessions,
		transcripts: transcripts,
		observer:    observer,
		greeting:    script.WithDefaults().Greeting,
	}
}

func (s *ChatService) StartSession(ctx context.Context) (*domain.ChatResult, error) {
	session := domain.NewSession(uuid.NewString(), time.Now().UTC())
	turn := session.History.AddAssistant(s.greeting)

	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, "save session", err)
	}
	s.recordTranscript(ctx, session.ID, []domain.ConversationTurn{turn})

	return &domain.ChatResult{
		SessionID: session.ID,
		Reply:     domain.NewReply(s.greeting),
		Flow:      session.ActiveFlow,
		Stage:     session.StageLabel(),
	}, nil
}

// Send runs one turn. Turns of the same session are serialized in this
// process; across replicas the store rejects a save based on a stale load and
// the turn fails as temporary without touching the transcript.
func (s *ChatService) Send(ctx context.Context, sessionID, input string) (*domain.ChatResult, error) {
	if strings.TrimSpace(input) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "send", errEmptyInput)
	}
	start := time.Now()

	unlock := s.lock(sessionID)
	defer unlock()

	session, err := s.sessions.Load(ctx, sessionID)
	if err != nil {
		if domain.IsKind(err, domain.ErrSessionNotFound) {
			s.locks.Delete(sessionID)
		}
		return nil, err
	}
	before := session.History.Len()

	reply := s.router.Route(ctx, session, input)
	session.UpdatedAt = time.Now().UTC()

	if err := s.sessions.Save(ctx, session); err != nil {
		if domain.IsKind(err, domain.ErrTemporary) {
			slog.Warn("session_save_rejected", "session_id", sessionID, "error", err)
			return nil, err
		}
		return nil, domain.WrapError(domain.ErrTemporary, "save session", err)
	}
	s.recordTranscript(ctx, session.ID, session.History.Since(before))

	outcome := "ok"
	switch {
	case reply.Meta(domain.MetaError) != "":
		outcome = reply.Meta(domain.MetaError)
	case reply.Meta(domain.MetaFallback) != "":
		outcome = reply.Meta(domain.MetaFallback)
	}
	slog.Info("chat_turn",
		"session_id", session.ID,
		"flow", reply.Meta(domain.MetaFlow),
		"stage", reply.Meta(domain.MetaStage),
		"outcome", outcome,
		"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
	)
	if s.observer != nil {
		s.observer.ObserveTurn(reply.Meta(domain.MetaFlow), reply.Meta(domain.MetaStage), outcome, time.Since(start))
	}

	return &domain.ChatResult{
		SessionID: session.ID,
		Reply:     reply,
		Flow:      session.ActiveFlow,
		Stage:     session.StageLabel(),
	}, nil
}

func (s *ChatService) Transcript(ctx context.Context, sessionID string, limit int) ([]domain.ConversationTurn, error) {
	if s.transcripts == nil {
		session, err := s.sessions.Load(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		return session.History.Recent(limitOrAll(limit, session.History.Len())), nil
	}
	return s.transcripts.ListTurns(ctx, sessionID, limit)
}

func (s *ChatService) EndSession(ctx context.Context, sessionID string) error {
	unlock := s.lock(sessionID)
	defer unlock()
	defer s.locks.Delete(sessionID)
	return s.sessions.Delete(ctx, sessionID)
}

func (s *ChatService) lock(sessionID string) func() {
	value, _ := s.locks.LoadOrStore(sessionID, &sync.Mutex{})
	mu := value.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (s *ChatService) recordTranscript(ctx context.Context, sessionID string, turns []domain.ConversationTurn) {
	if s.transcripts == nil || len(turns) == 0 {
		return
	}
	if err := s.transcripts.AppendTurns(ctx, sessionID, turns); err != nil {
		slog.Warn("transcript_append_failed", "session_id", sessionID, "error", err)
	}
}

func limitOrAll(limit, total int) int {
	if limit <= 0 || limit > total {
		return total
	}
	return limit
}
