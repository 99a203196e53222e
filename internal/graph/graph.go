// Package graph provides pure, side-effect-free queries over a workflow
// snapshot: topological ordering, adjacency lookups, cycle detection, and
// reachability. All results are deterministic; ties are broken by ascending
// node id so repeated calls on the same graph produce identical output.
package graph

import (
	"fmt"
	"sort"

	"github.com/calder-io/flume/internal/flume"
)

// Graph is an immutable view of a workflow's nodes and connections.
type Graph struct {
	nodes      map[string]*flume.WorkflowNode
	successors map[string][]string
	preds      map[string][]string
	order      []string // node ids, ascending, for deterministic iteration
}

// Build indexes nodes and connections into a Graph. It rejects duplicate node
// ids, edges referencing unknown nodes, and self-loops. Cycles are permitted
// here; DetectCycles reports them so the validator can name the offenders.
func Build(nodes []*flume.WorkflowNode, connections []*flume.WorkflowConnection) (*Graph, error) {
	g := &Graph{
		nodes:      make(map[string]*flume.WorkflowNode, len(nodes)),
		successors: make(map[string][]string),
		preds:      make(map[string][]string),
	}

	for _, n := range nodes {
		if _, exists := g.nodes[n.ID]; exists {
			return nil, fmt.Errorf("duplicate node ID: %s", n.ID)
		}
		g.nodes[n.ID] = n
		g.order = append(g.order, n.ID)
	}
	sort.Strings(g.order)

	for _, c := range connections {
		if _, ok := g.nodes[c.SourceID]; !ok {
			return nil, fmt.Errorf("connection %s references unknown node: %s", c.ID, c.SourceID)
		}
		if _, ok := g.nodes[c.TargetID]; !ok {
			return nil, fmt.Errorf("connection %s references unknown node: %s", c.ID, c.TargetID)
		}
		if c.SourceID == c.TargetID {
			return nil, fmt.Errorf("connection %s is a self-loop on node %s", c.ID, c.SourceID)
		}
		g.successors[c.SourceID] = append(g.successors[c.SourceID], c.TargetID)
		g.preds[c.TargetID] = append(g.preds[c.TargetID], c.SourceID)
	}

	for id := range g.successors {
		sort.Strings(g.successors[id])
	}
	for id := range g.preds {
		sort.Strings(g.preds[id])
	}

	return g, nil
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// Node returns the node with the given id, or nil.
func (g *Graph) Node(id string) *flume.WorkflowNode { return g.nodes[id] }

// NodeIDs returns all node ids in ascending order.
func (g *Graph) NodeIDs() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Successors returns the ids of nodes directly downstream of id, ascending.
func (g *Graph) Successors(id string) []string { return g.successors[id] }

// Predecessors returns the ids of nodes directly upstream of id, ascending.
func (g *Graph) Predecessors(id string) []string { return g.preds[id] }

// TopologicalOrder returns the node ids in an order consistent with every
// edge, using Kahn's algorithm with ascending-id tie-breaking among
// zero-indegree nodes. When the graph contains a cycle the returned order is
// partial (cyclic nodes are absent); callers should check DetectCycles first.
func (g *Graph) TopologicalOrder() []string {
	inDegree := make(map[string]int, len(g.nodes))
	for id := range g.nodes {
		inDegree[id] = len(g.preds[id])
	}

	var queue []string
	for _, id := range g.order {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	var order []string
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		for _, succ := range g.successors[id] {
			inDegree[succ]--
			if inDegree[succ] == 0 {
				queue = append(queue, succ)
			}
		}
		sort.Strings(queue)
	}
	return order
}

// DetectCycles returns the sorted set of node ids that cannot be scheduled
// because of a cycle, or an empty slice for a DAG. The set is every node left
// with a nonzero indegree after Kahn's algorithm drains, which includes nodes
// strictly downstream of a cycle as well as the cycle members themselves:
// none of them can ever run, so all are named in the error.
func (g *Graph) DetectCycles() []string {
	ordered := g.TopologicalOrder()
	if len(ordered) == len(g.nodes) {
		return []string{}
	}
	seen := make(map[string]bool, len(ordered))
	for _, id := range ordered {
		seen[id] = true
	}
	var cyclic []string
	for _, id := range g.order {
		if !seen[id] {
			cyclic = append(cyclic, id)
		}
	}
	return cyclic
}

// Sources returns ids of nodes declared role source, ascending.
func (g *Graph) Sources() []string { return g.byRole(flume.RoleSource) }

// Destinations returns ids of nodes declared role destination, ascending.
func (g *Graph) Destinations() []string { return g.byRole(flume.RoleDestination) }

func (g *Graph) byRole(role flume.NodeRole) []string {
	var out []string
	for _, id := range g.order {
		if g.nodes[id].Role == role {
			out = append(out, id)
		}
	}
	return out
}

// ReachableFromSources returns the set of node ids reachable by following
// edges forward from any source node with no inbound edges.
func (g *Graph) ReachableFromSources() map[string]bool {
	reachable := make(map[string]bool)
	var dfs func(id string)
	dfs = func(id string) {
		if reachable[id] {
			return
		}
		reachable[id] = true
		for _, succ := range g.successors[id] {
			dfs(succ)
		}
	}
	for _, id := range g.Sources() {
		if len(g.preds[id]) == 0 {
			dfs(id)
		}
	}
	return reachable
}

// CanReachDestination reports, per node, whether some destination node is
// reachable by following edges forward.
func (g *Graph) CanReachDestination() map[string]bool {
	reaches := make(map[string]bool)
	// walk backwards from destinations
	var dfs func(id string)
	dfs = func(id string) {
		if reaches[id] {
			return
		}
		reaches[id] = true
		for _, pred := range g.preds[id] {
			dfs(pred)
		}
	}
	for _, id := range g.Destinations() {
		dfs(id)
	}
	return reaches
}
