package main

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"jarvisrelay/internal/metrics"
)

func TestMetricsMux(t *testing.T) {
	mux := newMetricsMux()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "jarvis_relay_messages_total") {
		t.Fatalf("unexpected /metrics response %d:\n%s", rec.Code, rec.Body.String())
	}

	metrics.SessionUp.Set(0)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("healthz with no session: status %d", rec.Code)
	}

	metrics.SessionUp.Set(1)
	defer metrics.SessionUp.Set(0)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz with a session: status %d", rec.Code)
	}
}

func TestStartMetricsServer(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv, err := startMetricsServer("127.0.0.1:0", logger)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	shutdownMetricsServer(srv, logger)

	if _, err := startMetricsServer("not-an-address", logger); err == nil {
		t.Fatal("expected error for a bad address")
	}
}
