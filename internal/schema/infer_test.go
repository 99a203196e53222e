package schema

import (
	"testing"

	"github.com/calder-io/flume/internal/flume"
)

func TestInfer(t *testing.T) {
	records := []map[string]any{
		{"title": "hello", "count": 3, "active": true, "tags": []any{"a"}},
		{"title": nil, "count": 4.5, "published": "2026-01-02T15:04:05Z"},
	}
	s := Infer(records)

	tests := []struct {
		field    string
		wantType flume.FieldType
		nullable bool
	}{
		{"active", flume.FieldBoolean, false},
		{"count", flume.FieldNumber, false},
		{"published", flume.FieldDate, false},
		{"tags", flume.FieldJSON, false},
		{"title", flume.FieldString, true},
	}
	if len(s.Fields) != len(tests) {
		t.Fatalf("expected %d fields, got %d: %+v", len(tests), len(s.Fields), s.Fields)
	}
	for i, tt := range tests {
		f := s.Fields[i]
		if f.Name != tt.field {
			t.Errorf("field %d: name = %q, want %q", i, f.Name, tt.field)
		}
		if f.Type != tt.wantType {
			t.Errorf("field %q: type = %s, want %s", tt.field, f.Type, tt.wantType)
		}
		if f.Nullable != tt.nullable {
			t.Errorf("field %q: nullable = %v, want %v", tt.field, f.Nullable, tt.nullable)
		}
	}
}

func TestInferEmpty(t *testing.T) {
	s := Infer(nil)
	if len(s.Fields) != 0 {
		t.Fatalf("expected no fields, got %+v", s.Fields)
	}
}

func TestMergeSingleSchemaUnchanged(t *testing.T) {
	in := flume.DataSchema{Fields: []flume.FieldDefinition{{Name: "x", Type: flume.FieldNumber}}}
	out := Merge([]flume.DataSchema{in}, nil)
	if len(out.Fields) != 1 || out.Fields[0].Name != "x" {
		t.Fatalf("unexpected merge result: %+v", out)
	}
}

func TestMergePrefixesConflicts(t *testing.T) {
	a := flume.DataSchema{
		Fields: []flume.FieldDefinition{
			{Name: "title", Type: flume.FieldString, SourceNode: "node-a"},
			{Name: "score", Type: flume.FieldNumber, SourceNode: "node-a"},
		},
		SourceNodes: []string{"node-a"},
	}
	b := flume.DataSchema{
		Fields: []flume.FieldDefinition{
			{Name: "title", Type: flume.FieldString, SourceNode: "node-b"},
		},
		SourceNodes: []string{"node-b"},
	}
	labels := map[string]string{"node-a": "News Feed", "node-b": "Blog"}

	out := Merge([]flume.DataSchema{a, b}, labels)

	names := make(map[string]bool)
	for _, f := range out.Fields {
		names[f.Name] = true
	}
	if !names["news_feed_title"] || !names["blog_title"] {
		t.Errorf("conflicting fields should be label-prefixed, got %v", names)
	}
	if !names["score"] {
		t.Errorf("unconflicted field should keep its name, got %v", names)
	}
	if len(out.SourceNodes) != 2 || out.SourceNodes[0] != "node-a" || out.SourceNodes[1] != "node-b" {
		t.Errorf("source nodes = %v", out.SourceNodes)
	}
}

func TestNodeLabelFallsBackToID(t *testing.T) {
	if got := nodeLabel("node_abcdef123", nil); got != "node_abc" {
		t.Errorf("got %q", got)
	}
	if got := nodeLabel("ab", nil); got != "ab" {
		t.Errorf("got %q", got)
	}
	if got := nodeLabel("x", map[string]string{"x": "A Very Long Node Label"}); got != "a_very_lon" {
		t.Errorf("got %q", got)
	}
}
