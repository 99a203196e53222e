package builtin

import (
	"context"
	"errors"
	"testing"

	"github.com/calder-io/flume/internal/flume"
)

func TestExprFilter(t *testing.T) {
	f := NewExprFilter()
	if err := f.Configure(map[string]any{"expression": "price > 100 && active"}); err != nil {
		t.Fatalf("configure: %v", err)
	}

	in := flume.NewEnvelope([]map[string]any{
		{"name": "keep", "price": 150, "active": true},
		{"name": "cheap", "price": 50, "active": true},
		{"name": "inactive", "price": 200, "active": false},
	})
	env, err := f.Execute(context.Background(), []*flume.DataEnvelope{in})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(env.Records) != 1 || env.Records[0]["name"] != "keep" {
		t.Fatalf("records = %+v", env.Records)
	}
}

func TestExprFilterMissingFieldIsFalsy(t *testing.T) {
	f := NewExprFilter()
	if err := f.Configure(map[string]any{"expression": "flag"}); err != nil {
		t.Fatalf("configure: %v", err)
	}
	in := flume.NewEnvelope([]map[string]any{{"other": 1}})
	env, err := f.Execute(context.Background(), []*flume.DataEnvelope{in})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(env.Records) != 0 {
		t.Fatalf("records = %+v", env.Records)
	}
}

func TestExprFilterBadExpression(t *testing.T) {
	f := NewExprFilter()
	err := f.Configure(map[string]any{"expression": "price >"})
	var cfgErr *flume.ConnectorConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("want ConnectorConfigError, got %v", err)
	}
}

func TestExprFilterSchemaPassthrough(t *testing.T) {
	f := NewExprFilter()
	if err := f.Configure(map[string]any{"expression": "true"}); err != nil {
		t.Fatalf("configure: %v", err)
	}
	in := &flume.DataSchema{Fields: []flume.FieldDefinition{{Name: "x", Type: flume.FieldNumber}}}
	out, err := f.OutputSchema(in)
	if err != nil {
		t.Fatalf("output schema: %v", err)
	}
	if out != in {
		t.Fatal("filter must pass the input schema through unchanged")
	}
}

func TestIsTruthy(t *testing.T) {
	tests := []struct {
		value any
		want  bool
	}{
		{nil, false},
		{true, true},
		{false, false},
		{"", false},
		{"x", true},
		{0, false},
		{3, true},
		{0.0, false},
		{1.5, true},
		{[]any{}, true},
	}
	for _, tt := range tests {
		if got := isTruthy(tt.value); got != tt.want {
			t.Errorf("isTruthy(%v) = %v, want %v", tt.value, got, tt.want)
		}
	}
}
