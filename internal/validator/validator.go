// Package validator implements the static pre-flight check of a workflow
// graph. It accumulates every finding instead of stopping at the first error,
// so a user sees all problems at once. The check is deterministic and
// idempotent: an unchanged graph always yields an identical result.
package validator

import (
	"fmt"

	"github.com/calder-io/flume/internal/connector"
	"github.com/calder-io/flume/internal/flume"
	"github.com/calder-io/flume/internal/graph"
	"github.com/calder-io/flume/internal/schema"
)

// Validator checks workflow graphs against the connector registry.
type Validator struct {
	registry *connector.Registry
}

// New returns a Validator backed by the given registry.
func New(registry *connector.Registry) *Validator {
	return &Validator{registry: registry}
}

// Validate runs all checks over the snapshot: structure (cycles, endpoint
// integrity, role/position consistency), registry (known node_type, config
// schema), schema compatibility along every edge, and orphan detection.
// Errors block execution; warnings alone do not.
func (v *Validator) Validate(snap *flume.GraphSnapshot) *flume.ValidationResult {
	result := flume.NewValidationResult()

	if len(snap.Nodes) == 0 {
		result.AddError("workflow has no nodes")
		return result
	}

	g, err := graph.Build(snap.Nodes, snap.Connections)
	if err != nil {
		result.AddError(err.Error())
		return result
	}

	v.checkStructure(g, result)
	v.checkRegistry(g, result)
	v.checkSchemas(g, result)
	v.checkOrphans(g, result)

	return result
}

func (v *Validator) checkStructure(g *graph.Graph, result *flume.ValidationResult) {
	if cyclic := g.DetectCycles(); len(cyclic) > 0 {
		result.AddError(fmt.Sprintf("workflow contains circular dependencies involving nodes %v", cyclic))
	}

	hasSource := false
	hasDestination := false

	for _, id := range g.NodeIDs() {
		node := g.Node(id)
		inbound := len(g.Predecessors(id))
		outbound := len(g.Successors(id))

		switch node.Role {
		case flume.RoleSource:
			hasSource = true
			if inbound > 0 {
				result.AddError(fmt.Sprintf("source node %s must not have inbound connections", id))
			}
			if outbound == 0 {
				result.AddError(fmt.Sprintf("source node %s has no outbound connections", id))
			}
		case flume.RoleDestination:
			hasDestination = true
			if outbound > 0 {
				result.AddError(fmt.Sprintf("destination node %s must not have outbound connections", id))
			}
			if inbound == 0 {
				result.AddError(fmt.Sprintf("destination node %s has no inbound connections", id))
			}
		case flume.RoleProcessor:
			if inbound == 0 {
				result.AddError(fmt.Sprintf("processor node %s has no inbound connections", id))
			}
			if outbound == 0 {
				result.AddError(fmt.Sprintf("processor node %s has no outbound connections", id))
			}
		default:
			result.AddError(fmt.Sprintf("node %s has unknown role %q", id, node.Role))
		}
	}

	if !hasSource {
		result.AddError("workflow must have at least one source node")
	}
	if !hasDestination {
		result.AddError("workflow must have at least one destination node")
	}
}

func (v *Validator) checkRegistry(g *graph.Graph, result *flume.ValidationResult) {
	for _, id := range g.NodeIDs() {
		node := g.Node(id)

		if node.NodeType == "" {
			result.AddError(fmt.Sprintf("node %s has no connector type", id))
			continue
		}

		conn := v.registry.Get(node.NodeType)
		if conn == nil {
			result.AddError(fmt.Sprintf("node %s uses unknown connector type: %s", id, node.NodeType))
			continue
		}

		if node.Role.Valid() && conn.Kind() != node.Role {
			result.AddError(fmt.Sprintf("node %s role mismatch: connector %s is a %s, node declares %s",
				id, node.NodeType, conn.Kind(), node.Role))
		}

		if cfgSchema := conn.ConfigSchema(); cfgSchema != nil {
			for _, err := range cfgSchema.ValidateConfig(node.Config) {
				result.AddError(fmt.Sprintf("node %s config: %v", id, err))
			}
		}
	}
}

// checkSchemas verifies producer/consumer compatibility along every edge
// where both connectors declare static schemas. Dynamic-schema connectors are
// exempt and flagged as a warning; their edges are re-checked at run time.
func (v *Validator) checkSchemas(g *graph.Graph, result *flume.ValidationResult) {
	outputs := make(map[string]*flume.DataSchema)
	dynamic := make(map[string]bool)

	for _, id := range g.TopologicalOrder() {
		node := g.Node(id)
		conn := v.registry.Get(node.NodeType)
		if conn == nil {
			continue
		}

		aware, ok := conn.(connector.SchemaAware)
		if !ok {
			dynamic[id] = true
			result.AddWarning(fmt.Sprintf("node %s (%s): schema unknown until run", id, node.NodeType))
			continue
		}
		if err := conn.Configure(node.Config); err != nil {
			// already reported by checkRegistry
			dynamic[id] = true
			continue
		}

		input := v.inputSchemaFor(g, id, outputs, dynamic)
		out, err := aware.OutputSchema(input)
		if err != nil {
			result.AddWarning(fmt.Sprintf("node %s: cannot determine output schema: %v", id, err))
			dynamic[id] = true
			continue
		}
		outputs[id] = out
	}

	for _, id := range g.NodeIDs() {
		for _, succ := range g.Successors(id) {
			if dynamic[id] || dynamic[succ] {
				continue
			}
			target := g.Node(succ)
			conn := v.registry.Get(target.NodeType)
			if conn == nil {
				continue
			}
			aware, ok := conn.(connector.SchemaAware)
			if !ok {
				continue
			}
			if err := conn.Configure(target.Config); err != nil {
				continue
			}
			// a consumer's requirements are the fields it needs on input;
			// connectors express them through OutputSchema's input contract,
			// so check the producer output against the consumer input schema
			// when the consumer exposes one.
			required := requiredInputSchema(aware)
			if required == nil {
				continue
			}
			compat := schema.Check(outputs[id], required)
			for _, missing := range compat.MissingFields {
				result.AddError(fmt.Sprintf("edge %s -> %s: required field %q missing upstream", id, succ, missing))
			}
			for _, mm := range compat.TypeMismatches {
				result.AddError(fmt.Sprintf("edge %s -> %s: %s", id, succ, mm))
			}
			for _, w := range compat.Warnings {
				result.AddWarning(fmt.Sprintf("edge %s -> %s: %s", id, succ, w))
			}
		}
	}
}

// inputSchemaFor merges the known output schemas of a node's predecessors.
// Returns nil when any predecessor schema is dynamic.
func (v *Validator) inputSchemaFor(g *graph.Graph, id string, outputs map[string]*flume.DataSchema, dynamic map[string]bool) *flume.DataSchema {
	preds := g.Predecessors(id)
	if len(preds) == 0 {
		return nil
	}
	var schemas []flume.DataSchema
	labels := make(map[string]string)
	for _, pred := range preds {
		if dynamic[pred] || outputs[pred] == nil {
			return nil
		}
		schemas = append(schemas, *outputs[pred])
		labels[pred] = g.Node(pred).Label
	}
	merged := schema.Merge(schemas, labels)
	return &merged
}

// RequiresInput is implemented by connectors that declare the input fields
// they need; the validator checks those against upstream static schemas.
type RequiresInput interface {
	InputSchema() *flume.DataSchema
}

func requiredInputSchema(conn any) *flume.DataSchema {
	if ri, ok := conn.(RequiresInput); ok {
		return ri.InputSchema()
	}
	return nil
}

// checkOrphans flags disconnected and unreachable nodes. These are warnings,
// not errors: they do not block a run but are always reported.
func (v *Validator) checkOrphans(g *graph.Graph, result *flume.ValidationResult) {
	reachable := g.ReachableFromSources()
	for _, id := range g.NodeIDs() {
		if len(g.Predecessors(id)) == 0 && len(g.Successors(id)) == 0 {
			result.AddWarning(fmt.Sprintf("node %s is disconnected", id))
			continue
		}
		if !reachable[id] {
			result.AddWarning(fmt.Sprintf("node %s is not reachable from any source node", id))
		}
	}
}
