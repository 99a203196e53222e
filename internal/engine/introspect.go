package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/calder-io/flume/internal/connector"
	"github.com/calder-io/flume/internal/flume"
	"github.com/calder-io/flume/internal/graph"
	"github.com/calder-io/flume/internal/repository"
	"github.com/calder-io/flume/internal/schema"
)

// NodeOutputSchema computes the static output schema of one node without
// running anything: upstream schemas are resolved recursively in topological
// order and fed through each connector's OutputSchema. A nil schema with a
// nil error means the node's shape is dynamic and only known at run time.
func (e *Engine) NodeOutputSchema(ctx context.Context, workflowID, nodeID string) (*flume.DataSchema, error) {
	snap, err := e.workflows.Snapshot(ctx, workflowID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("workflow %s: %w", workflowID, flume.ErrNotFound)
		}
		return nil, err
	}
	g, err := graph.Build(snap.Nodes, snap.Connections)
	if err != nil {
		return nil, err
	}
	if g.Node(nodeID) == nil {
		return nil, fmt.Errorf("node %s: %w", nodeID, flume.ErrNotFound)
	}
	if cyclic := g.DetectCycles(); len(cyclic) > 0 {
		return nil, fmt.Errorf("workflow contains a cycle involving nodes %v", cyclic)
	}

	schemas := make(map[string]*flume.DataSchema)
	for _, id := range g.TopologicalOrder() {
		e.resolveNodeSchema(workflowID, g, id, schemas)
		if id == nodeID {
			break
		}
	}
	return schemas[nodeID], nil
}

// WorkflowSchema computes the static output schema of every node in the
// workflow. Nodes with dynamic schemas map to nil.
func (e *Engine) WorkflowSchema(ctx context.Context, workflowID string) (map[string]*flume.DataSchema, error) {
	snap, err := e.workflows.Snapshot(ctx, workflowID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("workflow %s: %w", workflowID, flume.ErrNotFound)
		}
		return nil, err
	}
	g, err := graph.Build(snap.Nodes, snap.Connections)
	if err != nil {
		return nil, err
	}
	if cyclic := g.DetectCycles(); len(cyclic) > 0 {
		return nil, fmt.Errorf("workflow contains a cycle involving nodes %v", cyclic)
	}

	schemas := make(map[string]*flume.DataSchema)
	for _, id := range g.TopologicalOrder() {
		e.resolveNodeSchema(workflowID, g, id, schemas)
	}
	return schemas, nil
}

// resolveNodeSchema fills schemas[nodeID], consulting the cache first.
// Callers must visit nodes in topological order so predecessors are already
// resolved.
func (e *Engine) resolveNodeSchema(workflowID string, g *graph.Graph, nodeID string, schemas map[string]*flume.DataSchema) {
	if cached, ok := e.schemas.get(workflowID, nodeID); ok {
		schemas[nodeID] = cached
		return
	}

	node := g.Node(nodeID)
	out := e.staticOutputSchema(node, inputSchemaFor(g, nodeID, schemas))
	schemas[nodeID] = out
	e.schemas.set(workflowID, nodeID, out)
}

// staticOutputSchema instantiates and configures the node's connector and
// asks it for its output shape. Any failure (unknown type, bad config,
// dynamic schema) yields nil: introspection is advisory and never blocks.
func (e *Engine) staticOutputSchema(node *flume.WorkflowNode, input *flume.DataSchema) *flume.DataSchema {
	conn, err := e.registry.New(node.NodeType)
	if err != nil {
		return nil
	}
	if err := conn.Configure(node.Config); err != nil {
		return nil
	}
	aware, ok := conn.(connector.SchemaAware)
	if !ok {
		return nil
	}
	out, err := aware.OutputSchema(input)
	if err != nil {
		return nil
	}
	return out
}

// inputSchemaFor merges the resolved schemas of nodeID's predecessors.
func inputSchemaFor(g *graph.Graph, nodeID string, schemas map[string]*flume.DataSchema) *flume.DataSchema {
	preds := g.Predecessors(nodeID)
	ins := make([]flume.DataSchema, 0, len(preds))
	labels := make(map[string]string, len(preds))
	for _, pred := range preds {
		s := schemas[pred]
		if s == nil {
			continue
		}
		ins = append(ins, *s)
		if n := g.Node(pred); n != nil {
			labels[pred] = n.Label
		}
	}
	if len(ins) == 0 {
		return nil
	}
	merged := schema.Merge(ins, labels)
	return &merged
}
