package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func TestRequestIDMiddlewareGeneratesAndPropagatesRequestID(t *testing.T) {
	var gotRequestID string
	h := requestIDMiddleware()(requestLoggingMiddleware(zerolog.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID, ok := requestIDFromContext(r.Context())
		if !ok {
			t.Fatal("expected request_id in context")
		}
		gotRequestID = requestID
		w.WriteHeader(http.StatusOK)
	})))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	respRequestID := rec.Header().Get(headerRequestID)
	if respRequestID == "" {
		t.Fatal("expected X-Request-Id response header")
	}
	if gotRequestID != respRequestID {
		t.Fatalf("expected context request_id %q got %q", respRequestID, gotRequestID)
	}
}

func TestRequestIDMiddlewarePreservesIncomingRequestID(t *testing.T) {
	h := requestIDMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(headerRequestID, "req-fixed-id")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get(headerRequestID); got != "req-fixed-id" {
		t.Fatalf("expected X-Request-Id req-fixed-id got %q", got)
	}
}

func TestRequestLoggingMiddlewareRecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	h := requestIDMiddleware()(requestLoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusTeapot)
	})))

	req := httptest.NewRequest(http.MethodPost, "/recipes/x/run", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v (%s)", err, buf.String())
	}
	if entry["status"] != float64(http.StatusTeapot) {
		t.Fatalf("unexpected status field: %v", entry["status"])
	}
	if entry["path"] != "/recipes/x/run" || entry["method"] != http.MethodPost {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if entry["request_id"] == "" {
		t.Fatal("expected request_id in log entry")
	}
}
