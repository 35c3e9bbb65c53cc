package steps

import (
	"fmt"

	"github.com/unicon-platform/unicon-backend/internal/model"
)

// outputStep is the graph's single sink: it prints its bound input as the
// testcase's result (spec §4.1).
type outputStep struct {
	id     string
	inputs []model.StepSocket
}

func newOutputStep(def model.StepDef) (Step, error) {
	if len(def.Outputs) != 0 {
		return nil, fmt.Errorf("steps: OUTPUT node %s must have no outputs", def.ID)
	}
	if len(def.Inputs) != 1 {
		return nil, fmt.Errorf("steps: OUTPUT node %s must have exactly one input socket", def.ID)
	}
	return &outputStep{id: def.ID, inputs: def.Inputs}, nil
}

func (s *outputStep) ID() string           { return s.id }
func (s *outputStep) Kind() model.StepKind { return model.StepOutput }
func (s *outputStep) InputIDs() []string   { return socketIDs(s.inputs) }
func (s *outputStep) OutputIDs() []string  { return nil }

func (s *outputStep) Emit(inputs map[string]Bound, _ map[string]string) (Fragment, error) {
	bound, ok := inputs[s.inputs[0].ID]
	if !ok {
		return Fragment{}, fmt.Errorf("steps: OUTPUT node %s has no bound input", s.id)
	}
	value := bound.Symbol
	if value == "" {
		value = bound.Artifact.String()
	}
	return Fragment{Code: fmt.Sprintf("print(%s)\n", value)}, nil
}
