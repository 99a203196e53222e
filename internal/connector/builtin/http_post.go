package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/calder-io/flume/internal/connector"
	"github.com/calder-io/flume/internal/flume"
	"github.com/calder-io/flume/internal/schema"
)

// HTTPPost delivers the input records to an HTTP endpoint as JSON, optionally
// in batches. Any non-2xx response fails the node (and is retried per the
// workflow's policy).
type HTTPPost struct {
	connector.Base
	client *http.Client
}

func NewHTTPPost() *HTTPPost {
	return &HTTPPost{
		Base: connector.Base{
			ConnID:   "http_post",
			ConnName: "HTTP Delivery",
			ConnKind: flume.RoleDestination,
			ConnSchema: schema.Object(map[string]*schema.Property{
				"url":        {Type: "string", Description: "Endpoint to deliver records to"},
				"headers":    {Type: "object", Description: "Extra request headers"},
				"batch_size": {Type: "number", Description: "Records per request; 0 sends everything in one request", Default: 0},
			}, "url"),
		},
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (h *HTTPPost) Execute(ctx context.Context, inputs []*flume.DataEnvelope) (*flume.DataEnvelope, error) {
	records := gatherRecords(inputs)
	batchSize := h.Int("batch_size", 0)
	if batchSize <= 0 || batchSize > len(records) {
		batchSize = len(records)
	}

	requests := 0
	for start := 0; start < len(records); start += batchSize {
		end := start + batchSize
		if end > len(records) {
			end = len(records)
		}
		if err := h.deliver(ctx, records[start:end]); err != nil {
			return nil, err
		}
		requests++
	}
	if len(records) == 0 {
		// an empty run still notifies the endpoint
		if err := h.deliver(ctx, []map[string]any{}); err != nil {
			return nil, err
		}
		requests = 1
	}

	return flume.Receipt(map[string]any{
		"delivered": len(records),
		"requests":  requests,
	}), nil
}

func (h *HTTPPost) deliver(ctx context.Context, records []map[string]any) error {
	payload, err := json.Marshal(map[string]any{"records": records})
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	url := h.String("url", "")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if headers, ok := h.Config["headers"].(map[string]any); ok {
		for k, v := range headers {
			if s, ok := v.(string); ok {
				req.Header.Set(k, s)
			}
		}
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver to %s: %w", url, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("deliver to %s: unexpected status %d", url, resp.StatusCode)
	}
	return nil
}
