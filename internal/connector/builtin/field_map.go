package builtin

import (
	"context"
	"fmt"
	"sort"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/calder-io/flume/internal/connector"
	"github.com/calder-io/flume/internal/flume"
	"github.com/calder-io/flume/internal/schema"
)

// FieldMap derives new fields from expressions over each record:
// `{"fields": {"total": "price * quantity", "domain": "split(email, \"@\")[1]"}}`.
// Expression result types are only known at run time, so the output schema
// is dynamic.
type FieldMap struct {
	connector.Base
	programs map[string]*vm.Program
}

func NewFieldMap() *FieldMap {
	return &FieldMap{Base: connector.Base{
		ConnID:   "field_map",
		ConnName: "Field Mapping",
		ConnKind: flume.RoleProcessor,
		ConnSchema: schema.Object(map[string]*schema.Property{
			"fields":      {Type: "object", Description: "Output field name to expression over record fields"},
			"keep_fields": {Type: "boolean", Description: "Carry the input fields through alongside the derived ones", Default: false},
		}, "fields"),
	}}
}

func (m *FieldMap) Configure(config map[string]any) error {
	if err := m.Base.Configure(config); err != nil {
		return err
	}
	raw, _ := m.Config["fields"].(map[string]any)
	if len(raw) == 0 {
		return flume.NewConnectorConfigError("", m.ConnID, "fields must name at least one output field")
	}
	m.programs = make(map[string]*vm.Program, len(raw))
	for field, v := range raw {
		expression, ok := v.(string)
		if !ok {
			return flume.NewConnectorConfigError("", m.ConnID, fmt.Sprintf("field %s: expression must be a string", field))
		}
		program, err := expr.Compile(expression, expr.AllowUndefinedVariables())
		if err != nil {
			return flume.NewConnectorConfigError("", m.ConnID, fmt.Sprintf("field %s: invalid expression: %v", field, err))
		}
		m.programs[field] = program
	}
	return nil
}

func (m *FieldMap) Execute(_ context.Context, inputs []*flume.DataEnvelope) (*flume.DataEnvelope, error) {
	keep := m.Bool("keep_fields", false)

	fields := make([]string, 0, len(m.programs))
	for field := range m.programs {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	records := []map[string]any{}
	for _, in := range inputs {
		if in == nil {
			continue
		}
		for _, record := range in.Records {
			out := make(map[string]any, len(m.programs))
			if keep {
				out = make(map[string]any, len(record)+len(m.programs))
				for k, v := range record {
					out[k] = v
				}
			}
			for _, field := range fields {
				result, err := expr.Run(m.programs[field], map[string]any(record))
				if err != nil {
					return nil, fmt.Errorf("evaluate field %s: %w", field, err)
				}
				out[field] = result
			}
			records = append(records, out)
		}
	}
	return flume.NewEnvelope(records), nil
}
