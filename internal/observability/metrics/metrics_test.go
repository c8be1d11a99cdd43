package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return rec.Body.String()
}

func TestNormalizePathCollapsesSessionIDs(t *testing.T) {
	cases := map[string]string{
		"/v1/sessions":                "/v1/sessions",
		"/v1/sessions/abc":            "/v1/sessions/{session_id}",
		"/v1/sessions/abc/messages":   "/v1/sessions/{session_id}/messages",
		"/v1/sessions/abc/transcript": "/v1/sessions/{session_id}/transcript",
		"/v1/knowledge/query":         "/v1/knowledge/query",
	}
	for in, want := range cases {
		if got := normalizePath(in); got != want {
			t.Fatalf("normalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestHTTPServerMetricsExposeChatAndRAG(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	m.ObserveTurn("existing_customer", "wait_email", "", 120*time.Millisecond)
	m.ObserveRAG(3, "")
	m.ObserveRAG(0, "no_context")
	m.ObserveBreakerState("ollama.chat", "closed", "open")
	m.RecordRejected("rate_limited")

	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/sessions/s1/messages", nil))

	body := scrape(t, m.Handler())
	for _, want := range []string{
		`support_chat_turns_total{flow="existing_customer",outcome="ok",service="api",stage="wait_email"} 1`,
		`support_rag_requests_total{fallback="no_context",service="api"} 1`,
		`support_resilience_breaker_transitions_total{from="closed",operation="ollama.chat",service="api",to="open"} 1`,
		`support_http_rejected_total{reason="rate_limited",service="api"} 1`,
		`support_http_requests_total{method="POST",path="/v1/sessions/{session_id}/messages",service="api",status="418"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected metrics to contain %q\n%s", want, body)
		}
	}
}

func TestWorkerMetricsCountByStatus(t *testing.T) {
	m := NewWorkerMetrics("worker")
	m.StartEvent()
	m.FinishEvent(10*time.Millisecond, nil)
	m.StartEvent()
	m.FinishEvent(10*time.Millisecond, errors.New("boom"))
	m.ObserveLag(-time.Second)
	m.ObserveLag(2 * time.Second)

	body := scrape(t, m.Handler())
	for _, want := range []string{
		`support_worker_case_events_total{service="worker",status="success"} 1`,
		`support_worker_case_events_total{service="worker",status="error"} 1`,
		`support_worker_case_events_in_flight{service="worker"} 0`,
		`support_worker_notification_lag_seconds_count{service="worker"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected metrics to contain %q\n%s", want, body)
		}
	}
}
