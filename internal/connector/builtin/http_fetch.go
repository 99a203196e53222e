package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/calder-io/flume/internal/connector"
	"github.com/calder-io/flume/internal/flume"
	"github.com/calder-io/flume/internal/schema"
)

const httpFetchTimeout = 30 * time.Second

// HTTPFetch pulls JSON from an HTTP endpoint and turns it into records. A
// top-level array becomes one record per element; a top-level object becomes
// a single record, or records_path can point at a nested array. The output
// schema depends on the remote payload, so it is dynamic.
type HTTPFetch struct {
	connector.Base
	client *http.Client
}

func NewHTTPFetch() *HTTPFetch {
	return &HTTPFetch{
		Base: connector.Base{
			ConnID:   "http_fetch",
			ConnName: "HTTP Fetch",
			ConnKind: flume.RoleSource,
			ConnSchema: schema.Object(map[string]*schema.Property{
				"url":          {Type: "string", Description: "Endpoint to fetch"},
				"method":       {Type: "string", Enum: []string{"GET", "POST"}, Default: "GET"},
				"headers":      {Type: "object", Description: "Extra request headers"},
				"body":         {Type: "string", Description: "Request body for POST"},
				"records_path": {Type: "string", Description: "Dot path to the record array inside an object payload"},
			}, "url"),
		},
		client: &http.Client{Timeout: httpFetchTimeout},
	}
}

func (h *HTTPFetch) Execute(ctx context.Context, _ []*flume.DataEnvelope) (*flume.DataEnvelope, error) {
	url := h.String("url", "")
	method := h.String("method", http.MethodGet)

	var body io.Reader
	if b := h.String("body", ""); b != "" {
		body = strings.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if headers, ok := h.Config["headers"].(map[string]any); ok {
		for k, v := range headers {
			if s, ok := v.(string); ok {
				req.Header.Set(k, s)
			}
		}
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode)
	}

	var payload any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode response from %s: %w", url, err)
	}

	records, err := recordsFromPayload(payload, h.String("records_path", ""))
	if err != nil {
		return nil, err
	}
	return flume.NewEnvelope(records), nil
}

// recordsFromPayload normalizes a decoded JSON payload into records.
func recordsFromPayload(payload any, path string) ([]map[string]any, error) {
	if path != "" {
		for _, part := range strings.Split(path, ".") {
			obj, ok := payload.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("records_path %q: %q is not an object", path, part)
			}
			payload = obj[part]
		}
	}

	switch v := payload.(type) {
	case []any:
		records := make([]map[string]any, 0, len(v))
		for _, item := range v {
			record, ok := item.(map[string]any)
			if !ok {
				// scalar arrays are wrapped so they still flow as records
				record = map[string]any{"value": item}
			}
			records = append(records, record)
		}
		return records, nil
	case map[string]any:
		return []map[string]any{v}, nil
	case nil:
		return []map[string]any{}, nil
	default:
		return []map[string]any{{"value": v}}, nil
	}
}
