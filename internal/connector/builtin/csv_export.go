package builtin

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/calder-io/flume/internal/connector"
	"github.com/calder-io/flume/internal/flume"
	"github.com/calder-io/flume/internal/schema"
	"github.com/calder-io/flume/internal/storage"
)

// CSVExport writes every input record to one CSV file in storage and returns
// a receipt carrying the file id. Column order is the configured list, or the
// sorted union of record keys.
type CSVExport struct {
	connector.Base
	store storage.Storage
}

func NewCSVExport(store storage.Storage) *CSVExport {
	return &CSVExport{
		Base: connector.Base{
			ConnID:   "csv_export",
			ConnName: "CSV Export",
			ConnKind: flume.RoleDestination,
			ConnSchema: schema.Object(map[string]*schema.Property{
				"filename":  {Type: "string", Description: "Download filename; defaults to a generated export-*.csv name"},
				"delimiter": {Type: "string", Enum: []string{",", ";", "\t"}, Default: ","},
				"columns":   {Type: "array", Description: "Column order; defaults to the sorted union of record fields"},
			}),
		},
		store: store,
	}
}

func (c *CSVExport) Execute(ctx context.Context, inputs []*flume.DataEnvelope) (*flume.DataEnvelope, error) {
	records := gatherRecords(inputs)
	columns := exportColumns(c.Config, records)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if d := c.String("delimiter", ","); d != "" {
		w.Comma = rune(d[0])
	}

	if err := w.Write(columns); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	row := make([]string, len(columns))
	for _, record := range records {
		for i, col := range columns {
			row[i] = cellString(record[col])
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}

	filename := c.String("filename", "export-"+uuid.New().String()[:8]+".csv")
	info, err := c.store.Save(ctx, filename, "text/csv", &buf)
	if err != nil {
		return nil, fmt.Errorf("store csv: %w", err)
	}

	return flume.Receipt(map[string]any{
		"file_id":  info.ID,
		"filename": info.Filename,
		"rows":     len(records),
		"size":     info.Size,
	}), nil
}

// exportColumns resolves column order for tabular exports: the configured
// list when present, otherwise the sorted union of record fields.
func exportColumns(config map[string]any, records []map[string]any) []string {
	if raw, ok := config["columns"].([]any); ok && len(raw) > 0 {
		columns := make([]string, 0, len(raw))
		for _, v := range raw {
			if s, ok := v.(string); ok {
				columns = append(columns, s)
			}
		}
		if len(columns) > 0 {
			return columns
		}
	}
	seen := make(map[string]bool)
	var columns []string
	for _, record := range records {
		for k := range record {
			if !seen[k] {
				seen[k] = true
				columns = append(columns, k)
			}
		}
	}
	sort.Strings(columns)
	return columns
}

// gatherRecords concatenates the records of all input envelopes in input
// order.
func gatherRecords(inputs []*flume.DataEnvelope) []map[string]any {
	var records []map[string]any
	for _, in := range inputs {
		if in != nil {
			records = append(records, in.Records...)
		}
	}
	return records
}

func cellString(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
