package graph

import (
	"fmt"
	"sort"

	"github.com/unicon-platform/unicon-backend/internal/model"
	"github.com/unicon-platform/unicon-backend/internal/steps"
)

// LowerResult is the output of lowering a validated Graph: assembled
// program text, the file set it references, and any non-fatal warnings
// carried over from Validate.
type LowerResult struct {
	Code     string
	Files    []model.File
	Warnings []string
}

const sandboxPreamble = "# -- sandboxed entrypoint, do not edit below this line --\n"
const sandboxEpilogue = "# -- end sandboxed entrypoint --\n"

// sym names the symbol a given (node, socket) pair is bound to in the
// assembled program. Deterministic in (nodeID, socketID) so lowering the
// same graph twice yields byte-identical text (spec §4.2/§8 property 1).
func sym(nodeID, socketID string) string {
	return fmt.Sprintf("v_%s_%s", nodeID, socketID)
}

// Lower validates the graph then assembles it into program text and a file
// set (spec §4.2). Call Validate separately first if warnings need to be
// inspected before lowering; Lower re-validates internally to guarantee it
// never lowers a structurally invalid graph.
func (g *Graph) Lower() (LowerResult, error) {
	validation, err := g.Validate()
	if err != nil {
		return LowerResult{}, err
	}

	outputID, _ := g.outputNodeID()
	order, err := g.topoOrder(outputID)
	if err != nil {
		return LowerResult{}, err
	}

	fileSet := map[string]model.File{}
	var code string

	for _, nodeID := range order {
		def := g.nodeDefs[nodeID]
		step := g.nodes[nodeID]

		inputs := map[string]steps.Bound{}
		for _, in := range def.Inputs {
			ref := model.SocketRef{NodeID: nodeID, SocketID: in.ID}
			if edge, wired := g.producedBy[ref]; wired {
				inputs[in.ID] = steps.Bound{Symbol: sym(edge.From.NodeID, edge.From.SocketID)}
			} else if in.Data != nil {
				inputs[in.ID] = steps.Bound{Artifact: *in.Data}
			}
		}

		outputSymbols := map[string]string{}
		for _, out := range def.Outputs {
			if isConsumed(g.edges, model.SocketRef{NodeID: nodeID, SocketID: out.ID}) {
				outputSymbols[out.ID] = sym(nodeID, out.ID)
			}
		}

		frag, err := step.Emit(inputs, outputSymbols)
		if err != nil {
			return LowerResult{}, fmt.Errorf("graph: node %s emit: %w", nodeID, err)
		}
		code += frag.Code
		for _, f := range frag.Files {
			if existing, ok := fileSet[f.FileName]; ok && existing.Content != f.Content {
				return LowerResult{}, fmt.Errorf("%w: %s", ErrFileCollision, f.FileName)
			}
			fileSet[f.FileName] = f
		}
	}

	names := make([]string, 0, len(fileSet))
	for name := range fileSet {
		names = append(names, name)
	}
	sort.Strings(names)
	files := make([]model.File, 0, len(names))
	for _, name := range names {
		files = append(files, fileSet[name])
	}

	return LowerResult{
		Code:     sandboxPreamble + code + sandboxEpilogue,
		Files:    files,
		Warnings: validation.Warnings,
	}, nil
}

// topoOrder computes a deterministic reverse-topological order (producers
// before consumers) of the nodes reachable from outputID, via Kahn's
// algorithm, tie-broken by ascending (nodeID, socketID) per spec §4.2.
func (g *Graph) topoOrder(outputID string) ([]string, error) {
	reachable := g.reachableFrom(outputID)

	inDegree := map[string]int{}
	consumers := map[string][]string{}
	for id := range reachable {
		inDegree[id] = 0
	}
	for _, id := range g.order {
		if !reachable[id] {
			continue
		}
		def := g.nodeDefs[id]
		for _, in := range def.Inputs {
			edge, ok := g.producedBy[model.SocketRef{NodeID: id, SocketID: in.ID}]
			if !ok || !reachable[edge.From.NodeID] {
				continue
			}
			inDegree[id]++
			consumers[edge.From.NodeID] = append(consumers[edge.From.NodeID], id)
		}
	}

	var ready []string
	for _, id := range g.order {
		if reachable[id] && inDegree[id] == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	var order []string
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		next := append([]string{}, consumers[id]...)
		sort.Strings(next)
		for _, c := range next {
			inDegree[c]--
			if inDegree[c] == 0 {
				ready = insertSorted(ready, c)
			}
		}
	}

	if len(order) != len(reachable) {
		return nil, fmt.Errorf("%w: topological sort could not order all reachable nodes", ErrCycle)
	}
	return order, nil
}

func insertSorted(sorted []string, v string) []string {
	i := sort.SearchStrings(sorted, v)
	sorted = append(sorted, "")
	copy(sorted[i+1:], sorted[i:])
	sorted[i] = v
	return sorted
}

func isConsumed(edges []model.Edge, ref model.SocketRef) bool {
	for _, e := range edges {
		if e.From == ref {
			return true
		}
	}
	return false
}
