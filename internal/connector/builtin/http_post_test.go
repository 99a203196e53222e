package builtin

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/calder-io/flume/internal/flume"
)

func TestHTTPPostDeliversRecords(t *testing.T) {
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	h := NewHTTPPost()
	if err := h.Configure(map[string]any{"url": srv.URL}); err != nil {
		t.Fatalf("configure: %v", err)
	}

	in := flume.NewEnvelope([]map[string]any{{"id": 1}, {"id": 2}})
	env, err := h.Execute(context.Background(), []*flume.DataEnvelope{in})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if env.Metadata.Custom["delivered"] != 2 || env.Metadata.Custom["requests"] != 1 {
		t.Fatalf("receipt = %+v", env.Metadata.Custom)
	}

	var payload struct {
		Records []map[string]any `json:"records"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode delivered payload: %v", err)
	}
	if len(payload.Records) != 2 {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestHTTPPostBatches(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	h := NewHTTPPost()
	if err := h.Configure(map[string]any{"url": srv.URL, "batch_size": 2}); err != nil {
		t.Fatalf("configure: %v", err)
	}

	in := flume.NewEnvelope([]map[string]any{{"i": 1}, {"i": 2}, {"i": 3}, {"i": 4}, {"i": 5}})
	env, err := h.Execute(context.Background(), []*flume.DataEnvelope{in})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if requests.Load() != 3 || env.Metadata.Custom["requests"] != 3 {
		t.Fatalf("requests = %d, receipt = %+v", requests.Load(), env.Metadata.Custom)
	}
}

func TestHTTPPostEmptyRunStillNotifies(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	h := NewHTTPPost()
	if err := h.Configure(map[string]any{"url": srv.URL}); err != nil {
		t.Fatalf("configure: %v", err)
	}
	env, err := h.Execute(context.Background(), []*flume.DataEnvelope{flume.NewEnvelope(nil)})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if requests.Load() != 1 || env.Metadata.Custom["delivered"] != 0 {
		t.Fatalf("requests = %d, receipt = %+v", requests.Load(), env.Metadata.Custom)
	}
}

func TestHTTPPostErrorStatusFailsNode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "full", http.StatusInsufficientStorage)
	}))
	defer srv.Close()

	h := NewHTTPPost()
	if err := h.Configure(map[string]any{"url": srv.URL}); err != nil {
		t.Fatalf("configure: %v", err)
	}
	if _, err := h.Execute(context.Background(), []*flume.DataEnvelope{flume.NewEnvelope([]map[string]any{{"i": 1}})}); err == nil {
		t.Fatal("expected delivery failure")
	}
}
