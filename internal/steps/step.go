// Package steps implements the leaf behaviors for each compute-graph step
// kind (spec §4.1): INPUT, OUTPUT, and a small set of compute variants.
// Each kind is registered in a Registry keyed by model.StepKind — a small
// table of handlers, not a class hierarchy (spec §9).
package steps

import (
	"fmt"

	"github.com/unicon-platform/unicon-backend/internal/model"
)

// Fragment is one node's contribution to the assembled program text, plus
// any file artifacts it contributes to the package's file set.
type Fragment struct {
	// Code is the source text this node emits, in terms of the symbols
	// bound to its input sockets and defining the symbols for its output
	// sockets.
	Code string
	// Files are any File artifacts this node's outputs carry literally
	// (e.g. an INPUT socket whose default Data is a File).
	Files []model.File
}

// Bound is the resolved value (literal or upstream-produced) available on
// an input socket at emission time, together with the symbol name a
// downstream fragment should reference if the value is not a compile-time
// literal.
type Bound struct {
	Artifact model.Artifact
	Symbol   string
}

// Step is the executable behavior for one compute-graph node.
type Step interface {
	// ID is the node's unique identifier within its graph.
	ID() string
	// Kind is the step kind this node implements.
	Kind() model.StepKind
	// InputIDs lists this node's input socket ids in declaration order.
	InputIDs() []string
	// OutputIDs lists this node's output socket ids in declaration order.
	OutputIDs() []string
	// Emit produces this node's code fragment given the resolved bindings
	// for each of its input sockets (by socket id) and the symbol names its
	// own outputs should be defined under (by socket id).
	Emit(inputs map[string]Bound, outputSymbols map[string]string) (Fragment, error)
}

// Factory builds a Step from its wire definition.
type Factory func(def model.StepDef) (Step, error)

// Registry maps step kinds to the factory that builds their Step
// implementation, the plug-in point spec §4.1 calls for.
type Registry struct {
	factories map[model.StepKind]Factory
}

// NewRegistry builds a Registry pre-populated with the built-in step kinds.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[model.StepKind]Factory)}
	r.Register(model.StepInput, newInputStep)
	r.Register(model.StepOutput, newOutputStep)
	r.Register(model.StepStringConcat, newStringConcatStep)
	r.Register(model.StepArithmetic, newArithmeticStep)
	r.Register(model.StepStringMatch, newStringMatchStep)
	return r
}

// Register adds or overrides the factory for a step kind.
func (r *Registry) Register(kind model.StepKind, factory Factory) {
	r.factories[kind] = factory
}

// Build constructs the Step for a wire definition using the registered
// factory for its kind.
func (r *Registry) Build(def model.StepDef) (Step, error) {
	factory, ok := r.factories[def.Type]
	if !ok {
		return nil, fmt.Errorf("steps: no factory registered for kind %q", def.Type)
	}
	return factory(def)
}

func socketIDs(sockets []model.StepSocket) []string {
	ids := make([]string, len(sockets))
	for i, s := range sockets {
		ids[i] = s.ID
	}
	return ids
}
