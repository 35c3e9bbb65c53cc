// Package graph validates and lowers a compute-graph Testcase into an
// assembled program package (spec §4.2): the evaluation core's small
// compiler.
package graph

import (
	"errors"
	"fmt"

	"github.com/unicon-platform/unicon-backend/internal/model"
	"github.com/unicon-platform/unicon-backend/internal/steps"
)

var (
	ErrOutputCount   = errors.New("graph: expected exactly one OUTPUT node")
	ErrUnknownSocket = errors.New("graph: edge references an unknown socket")
	ErrUnboundSocket = errors.New("graph: input socket is neither wired nor given a literal default")
	ErrCycle         = errors.New("graph: cycle detected in reachability closure from OUTPUT")
	ErrFileCollision = errors.New("graph: two files share a name with different content")
)

// Graph is an in-memory compute graph built from a wire Testcase; Validate
// checks its structural rules and Lower assembles it.
type Graph struct {
	nodes    map[string]steps.Step
	nodeDefs map[string]model.StepDef
	order    []string // declaration order, for deterministic iteration
	edges    []model.Edge

	// producedBy maps a consumed socket ref to the edge producing it.
	producedBy map[model.SocketRef]model.Edge
}

// Build constructs a Graph from a wire Testcase using the given step
// registry, without yet validating structural invariants.
func Build(tc model.Testcase, registry *steps.Registry) (*Graph, error) {
	g := &Graph{
		nodes:      make(map[string]steps.Step, len(tc.Nodes)),
		nodeDefs:   make(map[string]model.StepDef, len(tc.Nodes)),
		edges:      tc.Edges,
		producedBy: make(map[model.SocketRef]model.Edge, len(tc.Edges)),
	}
	for _, def := range tc.Nodes {
		if _, exists := g.nodes[def.ID]; exists {
			return nil, fmt.Errorf("graph: duplicate node id %q", def.ID)
		}
		step, err := registry.Build(def)
		if err != nil {
			return nil, fmt.Errorf("graph: node %s: %w", def.ID, err)
		}
		g.nodes[def.ID] = step
		g.nodeDefs[def.ID] = def
		g.order = append(g.order, def.ID)
	}
	for _, e := range tc.Edges {
		g.producedBy[e.To] = e
	}
	return g, nil
}

// outputNodeID returns the id of the graph's OUTPUT node.
func (g *Graph) outputNodeID() (string, bool) {
	for _, id := range g.order {
		if g.nodes[id].Kind() == model.StepOutput {
			return id, true
		}
	}
	return "", false
}
