package steps

import (
	"fmt"

	"github.com/unicon-platform/unicon-backend/internal/model"
)

const valueOutputSocket = "value"

// stringConcatStep joins its two string inputs, "a" and "b", with an
// optional "separator" param, supplementing spec.md's "Additional compute
// variants" clause, grounded in original_source's step catalogue.
type stringConcatStep struct {
	id        string
	inputs    []model.StepSocket
	outputs   []model.StepSocket
	separator string
}

func newStringConcatStep(def model.StepDef) (Step, error) {
	if err := requireSockets(def, []string{"a", "b"}, []string{valueOutputSocket}); err != nil {
		return nil, err
	}
	sep, _ := def.Params["separator"].(string)
	return &stringConcatStep{id: def.ID, inputs: def.Inputs, outputs: def.Outputs, separator: sep}, nil
}

func (s *stringConcatStep) ID() string           { return s.id }
func (s *stringConcatStep) Kind() model.StepKind { return model.StepStringConcat }
func (s *stringConcatStep) InputIDs() []string   { return socketIDs(s.inputs) }
func (s *stringConcatStep) OutputIDs() []string  { return socketIDs(s.outputs) }

func (s *stringConcatStep) Emit(inputs map[string]Bound, outputSymbols map[string]string) (Fragment, error) {
	a, err := resolveSymbol(inputs, "a")
	if err != nil {
		return Fragment{}, err
	}
	b, err := resolveSymbol(inputs, "b")
	if err != nil {
		return Fragment{}, err
	}
	sym, ok := outputSymbols[valueOutputSocket]
	if !ok {
		return Fragment{}, nil
	}
	return Fragment{Code: fmt.Sprintf("%s = str(%s) + %q + str(%s)\n", sym, a, s.separator, b)}, nil
}

// arithmeticStep applies a binary numeric operator ("op" param, one of
// add/sub/mul/div) to its two inputs "a" and "b".
type arithmeticStep struct {
	id      string
	inputs  []model.StepSocket
	outputs []model.StepSocket
	op      string
}

var arithmeticOperators = map[string]string{
	"add": "+",
	"sub": "-",
	"mul": "*",
	"div": "/",
}

func newArithmeticStep(def model.StepDef) (Step, error) {
	if err := requireSockets(def, []string{"a", "b"}, []string{valueOutputSocket}); err != nil {
		return nil, err
	}
	op, _ := def.Params["op"].(string)
	if op == "" {
		op = "add"
	}
	if _, ok := arithmeticOperators[op]; !ok {
		return nil, fmt.Errorf("steps: ARITHMETIC node %s has unknown op %q", def.ID, op)
	}
	return &arithmeticStep{id: def.ID, inputs: def.Inputs, outputs: def.Outputs, op: op}, nil
}

func (s *arithmeticStep) ID() string           { return s.id }
func (s *arithmeticStep) Kind() model.StepKind { return model.StepArithmetic }
func (s *arithmeticStep) InputIDs() []string   { return socketIDs(s.inputs) }
func (s *arithmeticStep) OutputIDs() []string  { return socketIDs(s.outputs) }

func (s *arithmeticStep) Emit(inputs map[string]Bound, outputSymbols map[string]string) (Fragment, error) {
	a, err := resolveSymbol(inputs, "a")
	if err != nil {
		return Fragment{}, err
	}
	b, err := resolveSymbol(inputs, "b")
	if err != nil {
		return Fragment{}, err
	}
	sym, ok := outputSymbols[valueOutputSocket]
	if !ok {
		return Fragment{}, nil
	}
	return Fragment{Code: fmt.Sprintf("%s = %s %s %s\n", sym, a, arithmeticOperators[s.op], b)}, nil
}

// stringMatchStep emits a string-equality comparison of its "actual" and
// "expected" inputs into the assembled program, used to build graded
// outputs.
type stringMatchStep struct {
	id      string
	inputs  []model.StepSocket
	outputs []model.StepSocket
}

func newStringMatchStep(def model.StepDef) (Step, error) {
	if err := requireSockets(def, []string{"actual", "expected"}, []string{valueOutputSocket}); err != nil {
		return nil, err
	}
	return &stringMatchStep{id: def.ID, inputs: def.Inputs, outputs: def.Outputs}, nil
}

func (s *stringMatchStep) ID() string           { return s.id }
func (s *stringMatchStep) Kind() model.StepKind { return model.StepStringMatch }
func (s *stringMatchStep) InputIDs() []string   { return socketIDs(s.inputs) }
func (s *stringMatchStep) OutputIDs() []string  { return socketIDs(s.outputs) }

func (s *stringMatchStep) Emit(inputs map[string]Bound, outputSymbols map[string]string) (Fragment, error) {
	actual, err := resolveSymbol(inputs, "actual")
	if err != nil {
		return Fragment{}, err
	}
	expected, err := resolveSymbol(inputs, "expected")
	if err != nil {
		return Fragment{}, err
	}
	sym, ok := outputSymbols[valueOutputSocket]
	if !ok {
		return Fragment{}, nil
	}
	return Fragment{Code: fmt.Sprintf("%s = (str(%s) == str(%s))\n", sym, actual, expected)}, nil
}

func requireSockets(def model.StepDef, inputIDs, outputIDs []string) error {
	if len(def.Inputs) != len(inputIDs) {
		return fmt.Errorf("steps: node %s (%s) expects %d input sockets, got %d", def.ID, def.Type, len(inputIDs), len(def.Inputs))
	}
	for i, want := range inputIDs {
		if def.Inputs[i].ID != want {
			return fmt.Errorf("steps: node %s (%s) expects input socket %q at position %d, got %q", def.ID, def.Type, want, i, def.Inputs[i].ID)
		}
	}
	if len(def.Outputs) != len(outputIDs) {
		return fmt.Errorf("steps: node %s (%s) expects %d output sockets, got %d", def.ID, def.Type, len(outputIDs), len(def.Outputs))
	}
	for i, want := range outputIDs {
		if def.Outputs[i].ID != want {
			return fmt.Errorf("steps: node %s (%s) expects output socket %q at position %d, got %q", def.ID, def.Type, want, i, def.Outputs[i].ID)
		}
	}
	return nil
}

func resolveSymbol(inputs map[string]Bound, socket string) (string, error) {
	bound, ok := inputs[socket]
	if !ok {
		return "", fmt.Errorf("steps: missing bound input for socket %q", socket)
	}
	if bound.Symbol != "" {
		return bound.Symbol, nil
	}
	return bound.Artifact.String(), nil
}
