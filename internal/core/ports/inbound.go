package ports

import (
	"context"

	"github.com/kirillkom/support-assistant/internal/core/domain"
)

// ChatService is the inbound contract for chat surfaces.
type ChatService interface {
	StartSession(ctx context.Context) (*domain.ChatResult, error)
	Send(ctx context.Context, sessionID, input string) (*domain.ChatResult, error)
	Transcript(ctx context.Context, sessionID string, limit int) ([]domain.ConversationTurn, error)
	EndSession(ctx context.Context, sessionID string) error
}

// KnowledgeService answers free-form questions from the knowledge base.
type KnowledgeService interface {
	Answer(ctx context.Context, question string) domain.Reply
	Retrieve(ctx context.Context, query string, k int) ([]domain.RetrievedPassage, error)
}

// KnowledgeIngestor loads files into the dense and lexical indexes.
type KnowledgeIngestor interface {
	IngestPath(ctx context.Context, path string) (domain.IngestReport, error)
}
