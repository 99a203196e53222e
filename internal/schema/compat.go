// Package schema implements typed field schemas for workflow data: the
// producer/consumer compatibility check used by the validator and the engine,
// schema inference from raw records, and schema merging for multi-input nodes.
package schema

import (
	"fmt"
	"sort"

	"github.com/calder-io/flume/internal/flume"
)

// Mismatch describes a field present upstream with an unassignable type.
type Mismatch struct {
	Field    string          `json:"field"`
	Expected flume.FieldType `json:"expected"`
	Actual   flume.FieldType `json:"actual"`
}

func (m Mismatch) String() string {
	return fmt.Sprintf("field %q has type %s, expected %s", m.Field, m.Actual, m.Expected)
}

// Compatibility is the outcome of checking a producer schema against a
// consumer's requirements.
type Compatibility struct {
	OK             bool       `json:"ok"`
	MissingFields  []string   `json:"missing_fields,omitempty"`
	TypeMismatches []Mismatch `json:"type_mismatches,omitempty"`
	Warnings       []string   `json:"warnings,omitempty"`
}

// Check reports whether every field the consumer requires exists upstream with
// an assignable type. Unknown producer fields are permitted downstream and
// reported only as warnings. Check is side-effect free.
func Check(producer, consumer *flume.DataSchema) Compatibility {
	c := Compatibility{OK: true}
	if consumer == nil || len(consumer.Fields) == 0 {
		return c
	}
	if producer == nil {
		producer = &flume.DataSchema{}
	}

	required := make(map[string]flume.FieldDefinition, len(consumer.Fields))
	for _, f := range consumer.Fields {
		required[f.Name] = f
	}

	for _, want := range consumer.Fields {
		got, ok := producer.Field(want.Name)
		if !ok {
			c.OK = false
			c.MissingFields = append(c.MissingFields, want.Name)
			continue
		}
		if !assignable(got, want) {
			c.OK = false
			c.TypeMismatches = append(c.TypeMismatches, Mismatch{
				Field:    want.Name,
				Expected: want.Type,
				Actual:   got.Type,
			})
		}
	}

	var extra []string
	for _, f := range producer.Fields {
		if _, ok := required[f.Name]; !ok {
			extra = append(extra, f.Name)
		}
	}
	if len(extra) > 0 {
		sort.Strings(extra)
		c.Warnings = append(c.Warnings,
			fmt.Sprintf("producer fields not consumed downstream: %v", extra))
	}

	sort.Strings(c.MissingFields)
	return c
}

// Problems flattens the blocking findings into human-readable messages.
// Warnings are excluded.
func (c Compatibility) Problems() []string {
	var out []string
	for _, name := range c.MissingFields {
		out = append(out, fmt.Sprintf("required field %q is missing upstream", name))
	}
	for _, m := range c.TypeMismatches {
		out = append(out, m.String())
	}
	return out
}

// assignable reports whether a producer field satisfies a consumer field.
// Exact type match always passes; json on the consumer side accepts any
// upstream type; a nullable producer field only satisfies a nullable consumer
// field unless the types match exactly.
func assignable(got, want flume.FieldDefinition) bool {
	if got.Nullable && !want.Nullable && got.Type != want.Type {
		return false
	}
	if got.Type == want.Type {
		return true
	}
	switch want.Type {
	case flume.FieldJSON:
		// json consumes any structured value
		return true
	case flume.FieldNumber:
		return got.Type == flume.FieldNumber
	case flume.FieldString:
		// dates serialize as strings
		return got.Type == flume.FieldDate
	}
	return false
}
