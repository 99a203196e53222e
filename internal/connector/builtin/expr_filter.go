package builtin

import (
	"context"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/calder-io/flume/internal/connector"
	"github.com/calder-io/flume/internal/flume"
	"github.com/calder-io/flume/internal/schema"
)

// ExprFilter keeps the records for which the configured expression is truthy.
// Record fields are the expression's variables: `price > 100 && active`.
type ExprFilter struct {
	connector.Base
	program *vm.Program
}

func NewExprFilter() *ExprFilter {
	return &ExprFilter{Base: connector.Base{
		ConnID:   "expr_filter",
		ConnName: "Expression Filter",
		ConnKind: flume.RoleProcessor,
		ConnSchema: schema.Object(map[string]*schema.Property{
			"expression": {Type: "string", Description: "Boolean expression over record fields"},
		}, "expression"),
	}}
}

// Configure compiles the expression once so a bad expression surfaces as a
// config error instead of failing every record.
func (f *ExprFilter) Configure(config map[string]any) error {
	if err := f.Base.Configure(config); err != nil {
		return err
	}
	program, err := expr.Compile(f.String("expression", ""), expr.AllowUndefinedVariables())
	if err != nil {
		return flume.NewConnectorConfigError("", f.ConnID, fmt.Sprintf("invalid expression: %v", err))
	}
	f.program = program
	return nil
}

func (f *ExprFilter) Execute(_ context.Context, inputs []*flume.DataEnvelope) (*flume.DataEnvelope, error) {
	kept := []map[string]any{}
	for _, in := range inputs {
		if in == nil {
			continue
		}
		for _, record := range in.Records {
			result, err := expr.Run(f.program, map[string]any(record))
			if err != nil {
				return nil, fmt.Errorf("evaluate filter: %w", err)
			}
			if isTruthy(result) {
				kept = append(kept, record)
			}
		}
	}
	return flume.NewEnvelope(kept), nil
}

// OutputSchema is the input schema unchanged: filtering drops records, never
// fields.
func (f *ExprFilter) OutputSchema(input *flume.DataSchema) (*flume.DataSchema, error) {
	return input, nil
}

// isTruthy converts an expression result to a boolean.
func isTruthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case int:
		return val != 0
	case int64:
		return val != 0
	case float64:
		return val != 0
	default:
		return true
	}
}
