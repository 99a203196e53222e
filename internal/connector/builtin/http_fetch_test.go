package builtin

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPFetchArrayPayload(t *testing.T) {
	var gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Token")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id": 1, "name": "a"}, {"id": 2, "name": "b"}]`))
	}))
	defer srv.Close()

	h := NewHTTPFetch()
	err := h.Configure(map[string]any{
		"url":     srv.URL,
		"headers": map[string]any{"X-Token": "secret"},
	})
	if err != nil {
		t.Fatalf("configure: %v", err)
	}

	env, err := h.Execute(context.Background(), nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(env.Records) != 2 || env.Records[0]["name"] != "a" {
		t.Fatalf("records = %+v", env.Records)
	}
	if gotHeader != "secret" {
		t.Fatalf("header = %q", gotHeader)
	}
}

func TestHTTPFetchRecordsPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"data": {"items": [{"v": 1}]}}`))
	}))
	defer srv.Close()

	h := NewHTTPFetch()
	err := h.Configure(map[string]any{"url": srv.URL, "records_path": "data.items"})
	if err != nil {
		t.Fatalf("configure: %v", err)
	}
	env, err := h.Execute(context.Background(), nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(env.Records) != 1 || env.Records[0]["v"] != float64(1) {
		t.Fatalf("records = %+v", env.Records)
	}
}

func TestHTTPFetchErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	h := NewHTTPFetch()
	if err := h.Configure(map[string]any{"url": srv.URL}); err != nil {
		t.Fatalf("configure: %v", err)
	}
	if _, err := h.Execute(context.Background(), nil); err == nil {
		t.Fatal("expected an error for a 502 response")
	}
}

func TestHTTPFetchRequiresURL(t *testing.T) {
	h := NewHTTPFetch()
	if err := h.Configure(map[string]any{}); err == nil {
		t.Fatal("expected a config error without url")
	}
}

func TestRecordsFromPayload(t *testing.T) {
	tests := []struct {
		name    string
		payload any
		path    string
		want    int
		wantErr bool
	}{
		{"array of objects", []any{map[string]any{"a": 1}}, "", 1, false},
		{"scalar array wrapped", []any{1, 2, 3}, "", 3, false},
		{"single object", map[string]any{"a": 1}, "", 1, false},
		{"nil payload", nil, "", 0, false},
		{"scalar wrapped", "hello", "", 1, false},
		{"path through non-object", "hello", "data", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := recordsFromPayload(tt.payload, tt.path)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(records) != tt.want {
				t.Fatalf("got %d records, want %d", len(records), tt.want)
			}
		})
	}
}
