package ports

import (
	"context"

	"github.com/kirillkom/support-assistant/internal/core/domain"
)

// CaseStore reads and creates support cases.
type CaseStore interface {
	Find(ctx context.Context, email string, status domain.CaseStatus) ([]domain.Case, error)
	Create(ctx context.Context, fields domain.CaseFields) (*domain.Case, error)
}

// CaseEvents publishes/consumes case lifecycle events.
type CaseEvents interface {
	PublishCaseCreated(ctx context.Context, event domain.CaseCreatedEvent) error
	SubscribeCaseCreated(ctx context.Context, handler func(context.Context, domain.CaseCreatedEvent) error) error
}

// Embedder builds vectors for chunks and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// DenseIndex stores chunk vectors and performs nearest-neighbour search.
type DenseIndex interface {
	IndexChunks(ctx context.Context, chunks []domain.TextChunk, vectors [][]float32) error
	// DeleteSource drops every vector of one source document.
	DeleteSource(ctx context.Context, source string) error
	Search(ctx context.Context, queryVector []float32, limit int) ([]domain.RetrievedPassage, error)
}

// LexicalIndex ranks chunks by keyword relevance.
type LexicalIndex interface {
	Search(ctx context.Context, query string, limit int) ([]domain.RetrievedPassage, error)
	Rebuild(chunks []domain.TextChunk)
}

// ChunkStore keeps the knowledge corpus the lexical index is built from.
type ChunkStore interface {
	// ReplaceSource swaps all chunks of one source document for chunks atomically.
	ReplaceSource(ctx context.Context, source string, chunks []domain.TextChunk) error
	ListChunks(ctx context.Context) ([]domain.TextChunk, error)
}

// TextGenerator completes a prompt made of system instructions, prior turns and the user message.
type TextGenerator interface {
	Complete(ctx context.Context, req domain.CompletionRequest) (string, error)
}

// SessionStore persists dialogue state between turns. Save succeeds only when
// session.Version matches the stored version, then bumps it; a stale save
// fails with domain.ErrTemporary.
type SessionStore interface {
	Load(ctx context.Context, id string) (*domain.Session, error)
	Save(ctx context.Context, session *domain.Session) error
	Delete(ctx context.Context, id string) error
}

// TranscriptStore keeps an audit copy of every conversation turn.
type TranscriptStore interface {
	AppendTurns(ctx context.Context, sessionID string, turns []domain.ConversationTurn) error
	ListTurns(ctx context.Context, sessionID string, limit int) ([]domain.ConversationTurn, error)
}

// TextExtractor extracts plain text from a knowledge file.
type TextExtractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// Chunker splits document text into overlapping chunks.
type Chunker interface {
	Split(sourceDocument, text string) []domain.TextChunk
}
