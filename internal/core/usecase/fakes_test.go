package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/support-assistant/internal/core/domain"
)

var testNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

type generatorFake struct {
	mu       sync.Mutex
	requests []domain.CompletionRequest
	respond  func(req domain.CompletionRequest) (string, error)
}

func (f *generatorFake) Complete(_ context.Context, req domain.CompletionRequest) (string, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.respond == nil {
		return "generated answer", nil
	}
	return f.respond(req)
}

func (f *generatorFake) lastRequest() domain.CompletionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return domain.CompletionRequest{}
	}
	return f.requests[len(f.requests)-1]
}

type embedderFake struct {
	err error
}

func (f embedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i), 0.5}
	}
	return out, nil
}

func (f embedderFake) EmbedQuery(context.Context, string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2}, nil
}

type denseIndexFake struct {
	results []domain.RetrievedPassage
	err     error
	indexed []domain.TextChunk
}

// IndexChunks upserts by chunk id like the real indexes.
func (f *denseIndexFake) IndexChunks(_ context.Context, chunks []domain.TextChunk, _ [][]float32) error {
	if f.err != nil {
		return f.err
	}
	for _, chunk := range chunks {
		replaced := false
		for i := range f.indexed {
			if f.indexed[i].ID == chunk.ID {
				f.indexed[i] = chunk
				replaced = true
			}
		}
		if !replaced {
			f.indexed = append(f.indexed, chunk)
		}
	}
	return nil
}

func (f *denseIndexFake) DeleteSource(_ context.Context, source string) error {
	if f.err != nil {
		return f.err
	}
	f.indexed = withoutSource(f.indexed, source)
	return nil
}

func withoutSource(chunks []domain.TextChunk, source string) []domain.TextChunk {
	kept := chunks[:0]
	for _, chunk := range chunks {
		if chunk.SourceDocument != source {
			kept = append(kept, chunk)
		}
	}
	return kept
}

func (f *denseIndexFake) Search(_ context.Context, _ []float32, limit int) ([]domain.RetrievedPassage, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.results) {
		return f.results[:limit], nil
	}
	return f.results, nil
}

type lexicalIndexFake struct {
	results []domain.RetrievedPassage
	err     error
	rebuilt []domain.TextChunk
}

func (f *lexicalIndexFake) Search(_ context.Context, _ string, limit int) ([]domain.RetrievedPassage, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.results) {
		return f.results[:limit], nil
	}
	return f.results, nil
}

func (f *lexicalIndexFake) Rebuild(chunks []domain.TextChunk) {
	f.rebuilt = chunks
}

type knowledgeFake struct {
	answer    string
	questions []string
}

func (f *knowledgeFake) Answer(_ context.Context, question string) domain.Reply {
	f.questions = append(f.questions, question)
	text := f.answer
	if text == "" {
		text = "Try restarting the hub."
	}
	return domain.NewReply(text).With(domain.MetaSources, "manual.pdf")
}

func (f *knowledgeFake) Retrieve(context.Context, string, int) ([]domain.RetrievedPassage, error) {
	return nil, nil
}

// caseStoreFake keeps cases in memory and filters them the way the Postgres
// repository does.
type caseStoreFake struct {
	mu        sync.Mutex
	cases     []domain.Case
	findErr   error
	createErr error
	seq       int
}

func (f *caseStoreFake) Find(_ context.Context, email string, status domain.CaseStatus) ([]domain.Case, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	var out []domain.Case
	for _, c := range f.cases {
		if strings.EqualFold(c.Email, email) && c.Status == status {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *caseStoreFake) Create(_ context.Context, fields domain.CaseFields) (*domain.Case, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.seq++
	c := domain.Case{
		ID:          fmt.Sprintf("rec%03d", f.seq),
		Email:       fields.Email,
		Category:    fields.Category,
		Title:       fields.Title,
		Description: fields.Description,
		Status:      fields.Status,
		CreatedAt:   time.Now().UTC(),
	}
	f.cases = append(f.cases, c)
	return &c, nil
}

type caseEventsFake struct {
	published []domain.CaseCreatedEvent
	err       error
}

func (f *caseEventsFake) PublishCaseCreated(_ context.Context, event domain.CaseCreatedEvent) error {
	f.published = append(f.published, event)
	return f.err
}

func (f *caseEventsFake) SubscribeCaseCreated(context.Context, func(context.Context, domain.CaseCreatedEvent) error) error {
	return nil
}

type sessionStoreFake struct {
	mu       sync.Mutex
	sessions map[string][]byte
	saveErr  error
}

func newSessionStoreFake() *sessionStoreFake {
	return &sessionStoreFake{sessions: make(map[string][]byte)}
}

func (f *sessionStoreFake) Load(_ context.Context, id string) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.sessions[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrSessionNotFound, "load session", errors.New(id))
	}
	return decodeSessionForTest(raw)
}

// Save rejects a session whose version is behind the stored one, like the
// real stores.
func (f *sessionStoreFake) Save(_ context.Context, session *domain.Session) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	next := *session
	next.Version++
	raw, err := encodeSessionForTest(&next)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if current, ok := f.sessions[session.ID]; ok {
		stored, err := decodeSessionForTest(current)
		if err != nil {
			return err
		}
		if stored.Version != session.Version {
			return domain.WrapError(domain.ErrTemporary, "save session", errors.New("version conflict"))
		}
	}
	f.sessions[session.ID] = raw
	session.Version = next.Version
	return nil
}

func (f *sessionStoreFake) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, id)
	return nil
}

type transcriptStoreFake struct {
	mu    sync.Mutex
	turns map[string][]domain.ConversationTurn
	err   error
}

func (f *transcriptStoreFake) AppendTurns(_ context.Context, sessionID string, turns []domain.ConversationTurn) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.turns == nil {
		f.turns = make(map[string][]domain.ConversationTurn)
	}
	f.turns[sessionID] = append(f.turns[sessionID], turns...)
	return nil
}

func (f *transcriptStoreFake) ListTurns(_ context.Context, sessionID string, _ int) ([]domain.ConversationTurn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ConversationTurn(nil), f.turns[sessionID]...), nil
}

func passage(id string, text string) domain.RetrievedPassage {
	return domain.RetrievedPassage{
		Chunk: domain.TextChunk{ID: id, SourceDocument: id + ".pdf", Text: text},
	}
}

func encodeSessionForTest(session *domain.Session) ([]byte, error) {
	return json.Marshal(session)
}

func decodeSessionForTest(raw []byte) (*domain.Session, error) {
	var session domain.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, err
	}
	if session.History == nil {
		session.History = domain.NewHistory()
	}
	return &session, nil
}
