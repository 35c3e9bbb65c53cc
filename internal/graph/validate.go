package graph

import (
	"fmt"
	"sort"

	"github.com/hashicorp/go-multierror"

	"github.com/unicon-platform/unicon-backend/internal/model"
)

// ValidateResult carries non-fatal findings alongside a pass/fail outcome.
type ValidateResult struct {
	// Warnings lists dangling producers: outputs that are never consumed
	// and are not the sink (spec §4.2 rule 4 — allowed, but warned).
	Warnings []string
}

// Validate checks every structural rule in spec §4.2, in order, collecting
// every violation into a single multierror.Error instead of stopping at the
// first (spec §8 property 5: every rule needs its own failing fixture).
func (g *Graph) Validate() (ValidateResult, error) {
	var result error

	outputID, found := g.checkSingleOutput(&result)

	g.checkEdgeEndpointsExist(&result)

	reachable := map[string]bool{}
	if found {
		reachable = g.reachableFrom(outputID)
		g.checkInputsBound(reachable, &result)
		g.checkAcyclic(outputID, &result)
	}

	warnings := g.danglingProducers(reachable, outputID)

	if result != nil {
		return ValidateResult{Warnings: warnings}, fmt.Errorf("%w: %w", ErrGraphInvalidBundle, result)
	}
	return ValidateResult{Warnings: warnings}, nil
}

// ErrGraphInvalidBundle is the sentinel wrapping the aggregated validation
// failures returned by Validate; the caller's GRAPH_INVALID error kind
// wraps this in turn.
var ErrGraphInvalidBundle = fmt.Errorf("graph: validation failed")

func (g *Graph) checkSingleOutput(result *error) (string, bool) {
	var outputs []string
	for _, id := range g.order {
		if g.nodes[id].Kind() == model.StepOutput {
			outputs = append(outputs, id)
		}
	}
	if len(outputs) != 1 {
		*result = multierror.Append(*result, fmt.Errorf("%w: found %d (%v)", ErrOutputCount, len(outputs), outputs))
		if len(outputs) == 0 {
			return "", false
		}
	}
	return outputs[0], true
}

func (g *Graph) checkEdgeEndpointsExist(result *error) {
	for _, e := range g.edges {
		if !g.hasSocket(e.From, true) {
			*result = multierror.Append(*result, fmt.Errorf("%w: producer %s.%s", ErrUnknownSocket, e.From.NodeID, e.From.SocketID))
		}
		if !g.hasSocket(e.To, false) {
			*result = multierror.Append(*result, fmt.Errorf("%w: consumer %s.%s", ErrUnknownSocket, e.To.NodeID, e.To.SocketID))
		}
	}
}

func (g *Graph) hasSocket(ref model.SocketRef, output bool) bool {
	def, ok := g.nodeDefs[ref.NodeID]
	if !ok {
		return false
	}
	sockets := def.Inputs
	if output {
		sockets = def.Outputs
	}
	for _, s := range sockets {
		if s.ID == ref.SocketID {
			return true
		}
	}
	return false
}

// reachableFrom computes the set of node ids reachable from nodeID by
// walking backward along edges (consumer -> producer).
func (g *Graph) reachableFrom(nodeID string) map[string]bool {
	seen := map[string]bool{nodeID: true}
	stack := []string{nodeID}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		def, ok := g.nodeDefs[cur]
		if !ok {
			continue
		}
		for _, in := range def.Inputs {
			edge, ok := g.producedBy[model.SocketRef{NodeID: cur, SocketID: in.ID}]
			if !ok {
				continue
			}
			if !seen[edge.From.NodeID] {
				seen[edge.From.NodeID] = true
				stack = append(stack, edge.From.NodeID)
			}
		}
	}
	return seen
}

func (g *Graph) checkInputsBound(reachable map[string]bool, result *error) {
	for _, id := range g.order {
		if !reachable[id] {
			continue
		}
		def := g.nodeDefs[id]
		for _, in := range def.Inputs {
			_, wired := g.producedBy[model.SocketRef{NodeID: id, SocketID: in.ID}]
			if wired {
				continue
			}
			if in.Data != nil && !in.Data.IsZero() {
				continue
			}
			*result = multierror.Append(*result, fmt.Errorf("%w: %s.%s", ErrUnboundSocket, id, in.ID))
		}
	}
}

func (g *Graph) checkAcyclic(outputID string, result *error) {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := map[string]int{}
	var visit func(id string, path []string) bool
	visit = func(id string, path []string) bool {
		color[id] = gray
		def := g.nodeDefs[id]
		for _, in := range def.Inputs {
			edge, ok := g.producedBy[model.SocketRef{NodeID: id, SocketID: in.ID}]
			if !ok {
				continue
			}
			next := edge.From.NodeID
			switch color[next] {
			case gray:
				*result = multierror.Append(*result, fmt.Errorf("%w: %v", ErrCycle, append(append([]string{}, path...), next)))
				return true
			case white:
				if visit(next, append(path, next)) {
					return true
				}
			}
		}
		color[id] = black
		return false
	}
	visit(outputID, []string{outputID})
}

// danglingProducers finds output sockets that are never consumed by any
// edge and do not belong to the OUTPUT node (spec §4.2 rule 4).
func (g *Graph) danglingProducers(reachable map[string]bool, outputID string) []string {
	consumed := map[model.SocketRef]bool{}
	for _, e := range g.edges {
		consumed[e.From] = true
	}
	var warnings []string
	for _, id := range g.order {
		if id == outputID {
			continue
		}
		def := g.nodeDefs[id]
		for _, out := range def.Outputs {
			ref := model.SocketRef{NodeID: id, SocketID: out.ID}
			if !consumed[ref] {
				warnings = append(warnings, fmt.Sprintf("%s.%s is never consumed", id, out.ID))
			}
		}
	}
	sort.Strings(warnings)
	return warnings
}
