package builtin

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/calder-io/flume/internal/connector"
	"github.com/calder-io/flume/internal/flume"
	"github.com/calder-io/flume/internal/schema"
)

// HTMLExtract pulls fields out of HTML with CSS selectors, one output record
// per input record. The document comes from the record itself: either inline
// markup in source_field, or fetched from the URL in url_field.
type HTMLExtract struct {
	connector.Base
	client *http.Client
}

func NewHTMLExtract() *HTMLExtract {
	return &HTMLExtract{
		Base: connector.Base{
			ConnID:   "html_extract",
			ConnName: "HTML Extract",
			ConnKind: flume.RoleProcessor,
			ConnSchema: schema.Object(map[string]*schema.Property{
				"selectors":    {Type: "object", Description: "Output field name to CSS selector"},
				"source_field": {Type: "string", Description: "Record field holding inline HTML", Default: "html"},
				"url_field":    {Type: "string", Description: "Record field holding a URL to fetch when no inline HTML is present"},
				"attribute":    {Type: "string", Description: "Extract this attribute instead of text content"},
			}, "selectors"),
		},
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (h *HTMLExtract) selectors() map[string]string {
	raw, _ := h.Config["selectors"].(map[string]any)
	out := make(map[string]string, len(raw))
	for field, sel := range raw {
		if s, ok := sel.(string); ok && s != "" {
			out[field] = s
		}
	}
	return out
}

func (h *HTMLExtract) Execute(ctx context.Context, inputs []*flume.DataEnvelope) (*flume.DataEnvelope, error) {
	selectors := h.selectors()
	if len(selectors) == 0 {
		return nil, fmt.Errorf("selectors must name at least one field")
	}
	sourceField := h.String("source_field", "html")
	urlField := h.String("url_field", "")
	attribute := h.String("attribute", "")

	var records []map[string]any
	for _, in := range inputs {
		if in == nil {
			continue
		}
		for _, record := range in.Records {
			doc, err := h.document(ctx, record, sourceField, urlField)
			if err != nil {
				return nil, err
			}
			out := make(map[string]any, len(record)+len(selectors))
			for k, v := range record {
				out[k] = v
			}
			delete(out, sourceField)
			for field, sel := range selectors {
				out[field] = extract(doc, sel, attribute)
			}
			records = append(records, out)
		}
	}
	return flume.NewEnvelope(records), nil
}

func (h *HTMLExtract) document(ctx context.Context, record map[string]any, sourceField, urlField string) (*goquery.Document, error) {
	if markup, ok := record[sourceField].(string); ok && markup != "" {
		return goquery.NewDocumentFromReader(strings.NewReader(markup))
	}
	if urlField == "" {
		return nil, fmt.Errorf("record has no HTML in field %q and no url_field is configured", sourceField)
	}
	url, _ := record[urlField].(string)
	if url == "" {
		return nil, fmt.Errorf("record has no URL in field %q", urlField)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode)
	}
	return goquery.NewDocumentFromReader(resp.Body)
}

// extract returns the first match's text (or attribute), or nil when the
// selector matches nothing.
func extract(doc *goquery.Document, selector, attribute string) any {
	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		return nil
	}
	if attribute != "" {
		if v, ok := sel.Attr(attribute); ok {
			return v
		}
		return nil
	}
	return strings.TrimSpace(sel.Text())
}

// OutputSchema keeps the input fields (minus the consumed HTML) and adds one
// nullable string per selector.
func (h *HTMLExtract) OutputSchema(input *flume.DataSchema) (*flume.DataSchema, error) {
	selectors := h.selectors()
	sourceField := h.String("source_field", "html")

	out := &flume.DataSchema{Fields: []flume.FieldDefinition{}}
	if input != nil {
		for _, f := range input.Fields {
			if f.Name == sourceField {
				continue
			}
			if _, shadowed := selectors[f.Name]; shadowed {
				continue
			}
			out.Fields = append(out.Fields, f)
		}
		out.SourceNodes = input.SourceNodes
	}

	names := make([]string, 0, len(selectors))
	for field := range selectors {
		names = append(names, field)
	}
	sort.Strings(names)
	for _, name := range names {
		out.Fields = append(out.Fields, flume.FieldDefinition{
			Name:     name,
			Type:     flume.FieldString,
			Nullable: true,
		})
	}
	return out, nil
}
