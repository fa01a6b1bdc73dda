package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRecoveryMiddleware(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	logger := zap.New(core)
	handler := Chain(RecoveryMiddleware(logger), LoggerMiddleware(logger))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if logs.FilterMessage("panic recovered").Len() != 1 {
		t.Fatalf("expected one panic log entry, got %v", logs.All())
	}
}

func TestLoggerMiddlewareKeepsRequestID(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	var seen string
	handler := LoggerMiddleware(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if seen != "abc-123" || w.Header().Get("X-Request-ID") != "abc-123" {
		t.Fatalf("request id not propagated: ctx=%q header=%q", seen, w.Header().Get("X-Request-ID"))
	}
	entries := logs.All()
	if len(entries) != 1 || entries[0].ContextMap()["status"] != int64(http.StatusTeapot) {
		t.Fatalf("unexpected log entries: %v", entries)
	}
}
