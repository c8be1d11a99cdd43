package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/support-assistant/internal/config"
	"github.com/kirillkom/support-assistant/internal/core/ports"
	"github.com/kirillkom/support-assistant/internal/observability/metrics"
)

const (
	maxJSONBodyBytes   = 1 << 20
	maxUploadBodyBytes = 32 << 20
	queueTimeout       = 250 * time.Millisecond
)

// DocumentStore keeps uploaded knowledge files on disk for ingestion.
type DocumentStore interface {
	Save(ctx context.Context, filename string, data io.Reader) (string, error)
}

type Router struct {
	cfg       config.Config
	chat      ports.ChatService
	knowledge ports.KnowledgeService
	ingestor  ports.KnowledgeIngestor
	uploads   DocumentStore
	metrics   *metrics.HTTPServerMetrics
}

func NewRouter(
	cfg config.Config,
	chat ports.ChatService,
	knowledge ports.KnowledgeService,
	ingestor ports.KnowledgeIngestor,
	uploads DocumentStore,
) *Router {
	return &Router{
		cfg:       cfg,
		chat:      chat,
		knowledge: knowledge,
		ingestor:  ingestor,
		uploads:   uploads,
	}
}

func (rt *Router) WithMetrics(m *metrics.HTTPServerMetrics) *Router {
	rt.metrics = m
	return rt
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("POST /v1/sessions", rt.startSession)
	mux.HandleFunc("POST /v1/sessions/{id}/messages", rt.sendMessage)
	mux.HandleFunc("GET /v1/sessions/{id}/transcript", rt.transcript)
	mux.HandleFunc("DELETE /v1/sessions/{id}", rt.endSession)
	mux.HandleFunc("POST /v1/knowledge/query", rt.queryKnowledge)
	mux.HandleFunc("GET /v1/knowledge/search", rt.searchKnowledge)
	mux.HandleFunc("POST /v1/knowledge/documents", rt.uploadDocument)

	var onReject rejectFunc
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
		onReject = rt.metrics.RecordRejected
	}

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, queueTimeout, onReject)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst, onReject)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) startSession(w http.ResponseWriter, r *http.Request) {
	result, err := rt.chat.StartSession(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (rt *Router) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string `json:"message"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "message is required"})
		return
	}

	result, err := rt.chat.Send(r.Context(), r.PathValue("id"), req.Message)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) transcript(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit", 0)
	if !ok {
		return
	}
	sessionID := r.PathValue("id")
	turns, err := rt.chat.Transcript(r.Context(), sessionID, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"turns":      turns,
	})
}

func (rt *Router) endSession(w http.ResponseWriter, r *http.Request) {
	if err := rt.chat.EndSession(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) queryKnowledge(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Question string `json:"question"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "question is required"})
		return
	}

	reply := rt.knowledge.Answer(r.Context(), req.Question)
	writeJSON(w, http.StatusOK, reply)
}

func (rt *Router) searchKnowledge(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query parameter 'q' is required"})
		return
	}
	k, ok := queryInt(w, r, "k", rt.cfg.RAGTopK)
	if !ok {
		return
	}

	passages, err := rt.knowledge.Retrieve(r.Context(), query, k)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"passages": passages})
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	if rt.uploads == nil || rt.ingestor == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "document upload is disabled"})
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBodyBytes)

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	path, err := rt.uploads.Save(r.Context(), fileHeader.Filename, file)
	if err != nil {
		writeError(w, r, err)
		return
	}
	report, err := rt.ingestor.IngestPath(r.Context(), path)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if report.Files == 0 {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  "document has no extractable text or an unsupported type",
			"report": report,
		})
		return
	}
	writeJSON(w, http.StatusCreated, report)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, out any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "request body too large"})
			return false
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return false
	}
	return true
}

func queryInt(w http.ResponseWriter, r *http.Request, key string, fallback int) (int, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query parameter '" + key + "' must be a non-negative integer"})
		return 0, false
	}
	return n, true
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("http_handler_failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
	}
	writeJSON(w, status, map[string]string{"error": errorMessage(status, err)})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
