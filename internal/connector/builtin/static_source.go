package builtin

import (
	"context"
	"fmt"

	"github.com/calder-io/flume/internal/connector"
	"github.com/calder-io/flume/internal/flume"
	"github.com/calder-io/flume/internal/schema"
)

// StaticSource emits the records embedded in its own config. Useful for
// fixtures, manual lookup tables, and workflow testing.
type StaticSource struct {
	connector.Base
}

func NewStaticSource() *StaticSource {
	return &StaticSource{Base: connector.Base{
		ConnID:   "static_source",
		ConnName: "Static Records",
		ConnKind: flume.RoleSource,
		ConnSchema: schema.Object(map[string]*schema.Property{
			"records": {Type: "array", Description: "Records to emit, one object per record"},
		}, "records"),
	}}
}

func (s *StaticSource) records() ([]map[string]any, error) {
	raw, _ := s.Config["records"].([]any)
	records := make([]map[string]any, 0, len(raw))
	for i, item := range raw {
		record, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("records[%d]: expected object, got %T", i, item)
		}
		records = append(records, record)
	}
	return records, nil
}

func (s *StaticSource) Execute(_ context.Context, _ []*flume.DataEnvelope) (*flume.DataEnvelope, error) {
	records, err := s.records()
	if err != nil {
		return nil, err
	}
	return flume.NewEnvelope(records), nil
}

// OutputSchema is inferred from the configured records, so it is fully known
// at design time.
func (s *StaticSource) OutputSchema(_ *flume.DataSchema) (*flume.DataSchema, error) {
	records, err := s.records()
	if err != nil {
		return nil, err
	}
	out := schema.Infer(records)
	return &out, nil
}
