package schema

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/calder-io/flume/internal/flume"
)

// Infer builds a schema by sniffing field types from records. The first
// non-nil value of a field decides its type; a nil value anywhere marks the
// field nullable.
func Infer(records []map[string]any) flume.DataSchema {
	s := flume.DataSchema{Fields: []flume.FieldDefinition{}}
	if len(records) == 0 {
		return s
	}

	fields := make(map[string]flume.FieldDefinition)
	for _, record := range records {
		for name, value := range record {
			f, seen := fields[name]
			if !seen {
				fields[name] = flume.FieldDefinition{
					Name:     name,
					Type:     fieldTypeOf(value),
					Nullable: value == nil,
				}
				continue
			}
			if value == nil {
				f.Nullable = true
				fields[name] = f
			}
		}
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		s.Fields = append(s.Fields, fields[name])
	}
	return s
}

func fieldTypeOf(value any) flume.FieldType {
	switch v := value.(type) {
	case nil:
		return flume.FieldString
	case bool:
		return flume.FieldBoolean
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return flume.FieldNumber
	case string:
		if _, err := time.Parse(time.RFC3339, v); err == nil {
			return flume.FieldDate
		}
		return flume.FieldString
	case []any, map[string]any:
		return flume.FieldJSON
	default:
		return flume.FieldString
	}
}

// Merge combines schemas from multiple upstream nodes into one. A field name
// appearing in more than one schema is a conflict and gets prefixed with the
// producing node's label (falling back to a node id prefix), so downstream
// nodes always see unambiguous names. labels maps node id to display label.
func Merge(schemas []flume.DataSchema, labels map[string]string) flume.DataSchema {
	if len(schemas) == 0 {
		return flume.DataSchema{Fields: []flume.FieldDefinition{}}
	}
	if len(schemas) == 1 {
		return schemas[0]
	}

	merged := flume.DataSchema{Fields: []flume.FieldDefinition{}}

	sourceSet := make(map[string]bool)
	for _, s := range schemas {
		for _, id := range s.SourceNodes {
			sourceSet[id] = true
		}
	}
	for id := range sourceSet {
		merged.SourceNodes = append(merged.SourceNodes, id)
	}
	sort.Strings(merged.SourceNodes)

	counts := make(map[string]int)
	for _, s := range schemas {
		for _, f := range s.Fields {
			counts[f.Name]++
		}
	}

	exists := func(name, source string) bool {
		for _, f := range merged.Fields {
			if f.Name == name && f.SourceNode == source {
				return true
			}
		}
		return false
	}

	for _, s := range schemas {
		for _, f := range s.Fields {
			out := f
			if counts[f.Name] > 1 && f.SourceNode != "" {
				out.Name = fmt.Sprintf("%s_%s", nodeLabel(f.SourceNode, labels), f.Name)
			}
			if !exists(out.Name, out.SourceNode) {
				merged.Fields = append(merged.Fields, out)
			}
		}
	}

	return merged
}

// nodeLabel returns a short prefix-safe label for a node.
func nodeLabel(nodeID string, labels map[string]string) string {
	if label, ok := labels[nodeID]; ok && label != "" {
		clean := strings.ToLower(strings.ReplaceAll(label, " ", "_"))
		if len(clean) > 10 {
			clean = clean[:10]
		}
		return clean
	}
	if len(nodeID) >= 8 {
		return nodeID[:8]
	}
	return nodeID
}
