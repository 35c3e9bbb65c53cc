package steps

import (
	"fmt"

	"github.com/unicon-platform/unicon-backend/internal/model"
)

// inputStep produces a literal value (or file) on each of its outputs. The
// synthesised user-input node (id "0") is built this way from the caller's
// validated inputs (spec §4.1/§4.3).
type inputStep struct {
	id      string
	outputs []model.StepSocket
}

func newInputStep(def model.StepDef) (Step, error) {
	if len(def.Inputs) != 0 {
		return nil, fmt.Errorf("steps: INPUT node %s must have no inputs", def.ID)
	}
	return &inputStep{id: def.ID, outputs: def.Outputs}, nil
}

func (s *inputStep) ID() string            { return s.id }
func (s *inputStep) Kind() model.StepKind  { return model.StepInput }
func (s *inputStep) InputIDs() []string    { return nil }
func (s *inputStep) OutputIDs() []string   { return socketIDs(s.outputs) }

func (s *inputStep) Emit(_ map[string]Bound, outputSymbols map[string]string) (Fragment, error) {
	var frag Fragment
	for _, out := range s.outputs {
		sym, ok := outputSymbols[out.ID]
		if !ok {
			continue // output not consumed anywhere; nothing to emit
		}
		if out.Data == nil {
			return Fragment{}, fmt.Errorf("steps: INPUT node %s socket %s has no data", s.id, out.ID)
		}
		if out.Data.IsFile() {
			frag.Files = append(frag.Files, *out.Data.File)
			frag.Code += fmt.Sprintf("%s = open(%q).read()\n", sym, out.Data.File.FileName)
		} else {
			frag.Code += fmt.Sprintf("%s = %s\n", sym, out.Data.String())
		}
	}
	return frag, nil
}
