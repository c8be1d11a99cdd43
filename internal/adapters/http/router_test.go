package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kirillkom/support-assistant/internal/config"
	"github.com/kirillkom/support-assistant/internal/core/domain"
	"github.com/kirillkom/support-assistant/internal/observability/metrics"
)

type chatFake struct {
	sendErr    error
	lastInput  string
	lastLimit  int
	ended      []string
	transcript []domain.ConversationTurn
}

func (f *chatFake) StartSession(context.Context) (*domain.ChatResult, error) {
	return &domain.ChatResult{
		SessionID: "s1",
		Reply:     domain.NewReply("Hi! How can I help you today?"),
		Flow:      domain.FlowNone,
		Stage:     string(domain.RouterStageIntro),
	}, nil
}

func (f *chatFake) Send(_ context.Context, sessionID, input string) (*domain.ChatResult, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.lastInput = input
	return &domain.ChatResult{
		SessionID: sessionID,
		Reply:     domain.NewReply("Please share your email.").With(domain.MetaFlow, string(domain.FlowExistingCustomer)),
		Flow:      domain.FlowExistingCustomer,
		Stage:     string(domain.StageWaitEmail),
	}, nil
}

func (f *chatFake) Transcript(_ context.Context, _ string, limit int) ([]domain.ConversationTurn, error) {
	f.lastLimit = limit
	return f.transcript, nil
}

func (f *chatFake) EndSession(_ context.Context, sessionID string) error {
	f.ended = append(f.ended, sessionID)
	return nil
}

type knowledgeFake struct {
	retrieveErr error
	lastK       int
}

func (f *knowledgeFake) Answer(_ context.Context, question string) domain.Reply {
	return domain.NewReply("Answer to: " + question).With(domain.MetaSources, "faq.md")
}

func (f *knowledgeFake) Retrieve(_ context.Context, _ string, k int) ([]domain.RetrievedPassage, error) {
	f.lastK = k
	if f.retrieveErr != nil {
		return nil, f.retrieveErr
	}
	return []domain.RetrievedPassage{{
		Chunk:  domain.TextChunk{ID: "c1", SourceDocument: "faq.md", Text: "Reset the lock"},
		Score:  0.016,
		Source: domain.SourceDense,
	}}, nil
}

type uploadsFake struct {
	saved map[string]string
}

func (f *uploadsFake) Save(_ context.Context, filename string, data io.Reader) (string, error) {
	raw, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	if f.saved == nil {
		f.saved = map[string]string{}
	}
	f.saved[filename] = string(raw)
	return "/data/knowledge/" + filename, nil
}

type ingestorFake struct {
	paths  []string
	report domain.IngestReport
}

func (f *ingestorFake) IngestPath(_ context.Context, path string) (domain.IngestReport, error) {
	f.paths = append(f.paths, path)
	return f.report, nil
}

func newTestHandler(cfg config.Config) http.Handler {
	return NewRouter(cfg, &chatFake{}, &knowledgeFake{}, &ingestorFake{}, &uploadsFake{}).Handler()
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func TestHealthzEndpoint(t *testing.T) {
	res := doJSON(t, newTestHandler(config.Config{}), http.MethodGet, "/healthz", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
}

func TestSessionLifecycle(t *testing.T) {
	chat := &chatFake{transcript: []domain.ConversationTurn{
		{Role: domain.RoleAssistant, Text: "Hi! How can I help you today?", Order: 1},
	}}
	handler := NewRouter(config.Config{}, chat, &knowledgeFake{}, nil, nil).Handler()

	res := doJSON(t, handler, http.MethodPost, "/v1/sessions", nil)
	if res.Code != http.StatusCreated {
		t.Fatalf("start: expected 201, got %d", res.Code)
	}
	var started domain.ChatResult
	if err := json.NewDecoder(res.Body).Decode(&started); err != nil {
		t.Fatalf("decode start: %v", err)
	}
	if started.SessionID != "s1" || started.Stage != "intro" {
		t.Fatalf("unexpected start result %+v", started)
	}

	res = doJSON(t, handler, http.MethodPost, "/v1/sessions/s1/messages", map[string]string{"message": "existing"})
	if res.Code != http.StatusOK {
		t.Fatalf("send: expected 200, got %d", res.Code)
	}
	if chat.lastInput != "existing" {
		t.Fatalf("expected input to reach chat service, got %q", chat.lastInput)
	}
	var turn domain.ChatResult
	if err := json.NewDecoder(res.Body).Decode(&turn); err != nil {
		t.Fatalf("decode send: %v", err)
	}
	if turn.Flow != domain.FlowExistingCustomer || turn.Reply.Meta(domain.MetaFlow) != "existing_customer" {
		t.Fatalf("unexpected turn %+v", turn)
	}

	res = doJSON(t, handler, http.MethodGet, "/v1/sessions/s1/transcript?limit=10", nil)
	if res.Code != http.StatusOK || chat.lastLimit != 10 {
		t.Fatalf("transcript: code=%d limit=%d", res.Code, chat.lastLimit)
	}

	res = doJSON(t, handler, http.MethodDelete, "/v1/sessions/s1", nil)
	if res.Code != http.StatusNoContent || len(chat.ended) != 1 || chat.ended[0] != "s1" {
		t.Fatalf("end: code=%d ended=%v", res.Code, chat.ended)
	}
}

func TestSendMessageValidationAndErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		body   any
		err    error
		status int
	}{
		{name: "blank", body: map[string]string{"message": "  "}, status: http.StatusBadRequest},
		{name: "bad json", body: "not-an-object", status: http.StatusBadRequest},
		{name: "unknown session", body: map[string]string{"message": "hi"}, err: domain.WrapError(domain.ErrSessionNotFound, "load", errors.New("s9")), status: http.StatusNotFound},
		{name: "temporary", body: map[string]string{"message": "hi"}, err: domain.WrapError(domain.ErrTemporary, "save session", errors.New("redis down")), status: http.StatusServiceUnavailable},
		{name: "unexpected", body: map[string]string{"message": "hi"}, err: errors.New("secret detail"), status: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := NewRouter(config.Config{}, &chatFake{sendErr: tc.err}, &knowledgeFake{}, nil, nil).Handler()
			res := doJSON(t, handler, http.MethodPost, "/v1/sessions/s9/messages", tc.body)
			if res.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, res.Code)
			}
			if strings.Contains(res.Body.String(), "secret detail") {
				t.Fatalf("internal error details leaked: %s", res.Body.String())
			}
		})
	}
}

func TestWrongMethodIsRejected(t *testing.T) {
	res := doJSON(t, newTestHandler(config.Config{}), http.MethodGet, "/v1/sessions", nil)
	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", res.Code)
	}
}

func TestKnowledgeQueryAndSearch(t *testing.T) {
	knowledge := &knowledgeFake{}
	handler := NewRouter(config.Config{RAGTopK: 4}, &chatFake{}, knowledge, nil, nil).Handler()

	res := doJSON(t, handler, http.MethodPost, "/v1/knowledge/query", map[string]string{"question": "How do I reset?"})
	if res.Code != http.StatusOK {
		t.Fatalf("query: expected 200, got %d", res.Code)
	}
	var reply domain.Reply
	if err := json.NewDecoder(res.Body).Decode(&reply); err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	if reply.Text != "Answer to: How do I reset?" || reply.Meta(domain.MetaSources) != "faq.md" {
		t.Fatalf("unexpected reply %+v", reply)
	}

	res = doJSON(t, handler, http.MethodPost, "/v1/knowledge/query", map[string]string{"question": ""})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("blank question: expected 400, got %d", res.Code)
	}

	res = doJSON(t, handler, http.MethodGet, "/v1/knowledge/search?q=reset", nil)
	if res.Code != http.StatusOK || knowledge.lastK != 4 {
		t.Fatalf("search: code=%d k=%d", res.Code, knowledge.lastK)
	}
	res = doJSON(t, handler, http.MethodGet, "/v1/knowledge/search?q=reset&k=x", nil)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("bad k: expected 400, got %d", res.Code)
	}
}

func TestKnowledgeSearchMapsRetrievalUnavailable(t *testing.T) {
	knowledge := &knowledgeFake{retrieveErr: domain.WrapError(domain.ErrRetrievalUnavailable, "retrieve", errors.New("qdrant down"))}
	handler := NewRouter(config.Config{}, &chatFake{}, knowledge, nil, nil).Handler()

	res := doJSON(t, handler, http.MethodGet, "/v1/knowledge/search?q=reset", nil)
	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", res.Code)
	}
}

func multipartUpload(t *testing.T, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile() error = %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	return &body, writer.FormDataContentType()
}

func TestUploadDocumentSavesAndIngests(t *testing.T) {
	uploads := &uploadsFake{}
	ingestor := &ingestorFake{report: domain.IngestReport{Files: 1, Chunks: 3}}
	handler := NewRouter(config.Config{}, &chatFake{}, &knowledgeFake{}, ingestor, uploads).Handler()

	body, contentType := multipartUpload(t, "faq.md", "# FAQ\nReset the lock by holding the button.")
	req := httptest.NewRequest(http.MethodPost, "/v1/knowledge/documents", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", res.Code, res.Body.String())
	}
	if uploads.saved["faq.md"] == "" {
		t.Fatalf("expected upload to be saved")
	}
	if len(ingestor.paths) != 1 || ingestor.paths[0] != "/data/knowledge/faq.md" {
		t.Fatalf("expected saved path to be ingested, got %v", ingestor.paths)
	}
	var report domain.IngestReport
	if err := json.NewDecoder(res.Body).Decode(&report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Chunks != 3 {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestUploadDocumentRejectsSkippedFile(t *testing.T) {
	ingestor := &ingestorFake{report: domain.IngestReport{Skipped: []string{"/data/knowledge/logo.png"}}}
	handler := NewRouter(config.Config{}, &chatFake{}, &knowledgeFake{}, ingestor, &uploadsFake{}).Handler()

	body, contentType := multipartUpload(t, "logo.png", "\x89PNG")
	req := httptest.NewRequest(http.MethodPost, "/v1/knowledge/documents", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", res.Code)
	}
}

func TestUploadDocumentMissingMultipartField(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/knowledge/documents", bytes.NewBufferString("plain-text"))
	req.Header.Set("Content-Type", "text/plain")
	res := httptest.NewRecorder()
	newTestHandler(config.Config{}).ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestMetricsEndpointExposesHTTPCounters(t *testing.T) {
	m := metrics.NewHTTPServerMetrics("api")
	handler := NewRouter(config.Config{}, &chatFake{}, &knowledgeFake{}, nil, nil).WithMetrics(m).Handler()

	doJSON(t, handler, http.MethodPost, "/v1/sessions", nil)
	res := doJSON(t, handler, http.MethodGet, "/metrics", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), `support_http_requests_total{method="POST",path="/v1/sessions",service="api",status="201"} 1`) {
		t.Fatalf("expected request counter in metrics output:\n%s", res.Body.String())
	}
}
