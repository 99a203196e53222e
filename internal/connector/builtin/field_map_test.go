package builtin

import (
	"context"
	"errors"
	"testing"

	"github.com/calder-io/flume/internal/flume"
)

func TestFieldMap(t *testing.T) {
	m := NewFieldMap()
	err := m.Configure(map[string]any{
		"fields": map[string]any{
			"total": "price * quantity",
		},
	})
	if err != nil {
		t.Fatalf("configure: %v", err)
	}

	in := flume.NewEnvelope([]map[string]any{
		{"price": 10, "quantity": 3},
		{"price": 5, "quantity": 2},
	})
	env, err := m.Execute(context.Background(), []*flume.DataEnvelope{in})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(env.Records) != 2 {
		t.Fatalf("records = %+v", env.Records)
	}
	if env.Records[0]["total"] != 30 {
		t.Fatalf("total = %v", env.Records[0]["total"])
	}
	// derived-only output drops the inputs
	if _, ok := env.Records[0]["price"]; ok {
		t.Fatal("input fields should be dropped without keep_fields")
	}
}

func TestFieldMapKeepFields(t *testing.T) {
	m := NewFieldMap()
	err := m.Configure(map[string]any{
		"fields":      map[string]any{"double": "n * 2"},
		"keep_fields": true,
	})
	if err != nil {
		t.Fatalf("configure: %v", err)
	}
	in := flume.NewEnvelope([]map[string]any{{"n": 4}})
	env, err := m.Execute(context.Background(), []*flume.DataEnvelope{in})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	rec := env.Records[0]
	if rec["n"] != 4 || rec["double"] != 8 {
		t.Fatalf("record = %+v", rec)
	}
}

func TestFieldMapConfigErrors(t *testing.T) {
	tests := []struct {
		name   string
		config map[string]any
	}{
		{"missing fields", map[string]any{}},
		{"empty fields", map[string]any{"fields": map[string]any{}}},
		{"non-string expression", map[string]any{"fields": map[string]any{"x": 1}}},
		{"invalid expression", map[string]any{"fields": map[string]any{"x": "1 +"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewFieldMap().Configure(tt.config)
			var cfgErr *flume.ConnectorConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("want ConnectorConfigError, got %v", err)
			}
		})
	}
}
