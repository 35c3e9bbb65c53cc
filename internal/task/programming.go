package task

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/unicon-platform/unicon-backend/internal/core"
	"github.com/unicon-platform/unicon-backend/internal/graph"
	"github.com/unicon-platform/unicon-backend/internal/model"
	"github.com/unicon-platform/unicon-backend/internal/steps"
)

const userInputNodeID = "0"

// ProgrammingEvaluator implements Evaluator for model.TaskProgramming
// (spec §4.3): it assembles one RunnerPackage per testcase and returns the
// combined RunnerRequest for the orchestrator to dispatch post-commit.
type ProgrammingEvaluator struct {
	Registry *steps.Registry
}

// NewProgrammingEvaluator builds a ProgrammingEvaluator with the default
// step registry.
func NewProgrammingEvaluator() *ProgrammingEvaluator {
	return &ProgrammingEvaluator{Registry: steps.NewRegistry()}
}

// ValidateUserInput expects raw to already be a []model.RequiredInput (spec
// §8 S1's `user_input = [{id:"x", data:5}]`); the required-input-by-id check
// itself happens in Run, so this only confirms the shape.
func (e *ProgrammingEvaluator) ValidateUserInput(raw any) (any, error) {
	inputs, ok := raw.([]model.RequiredInput)
	if !ok {
		return nil, core.New(core.ValidationFailed, "programming task user input must be a list of required inputs")
	}
	return inputs, nil
}

// ValidateExpectedAnswer accepts any shape: grading correctness without an
// expected answer is the runner's responsibility, not this core's
// (spec §9 Open Question, preserved as-is).
func (e *ProgrammingEvaluator) ValidateExpectedAnswer(raw any) (any, error) {
	return raw, nil
}

// Run implements spec §4.3 steps 1-6, stopping short of dispatch: it
// returns the assembled RunnerRequest for the orchestrator to publish once
// the submission has committed.
func (e *ProgrammingEvaluator) Run(_ context.Context, t model.Task, userInputAny any, _ any) (model.TaskEvalResult, *model.RunnerRequest, error) {
	if t.Programming == nil {
		return model.TaskEvalResult{}, nil, fmt.Errorf("task: %s has type PROGRAMMING but no programming payload", t.ID)
	}
	payload := t.Programming

	userInputs, ok := userInputAny.([]model.RequiredInput)
	if !ok {
		return model.TaskEvalResult{}, nil, core.New(core.ValidationFailed, "programming task user input must be a list of required inputs")
	}

	// Step 1: required-input check.
	for _, required := range payload.RequiredInput {
		found := false
		for _, ui := range userInputs {
			if ui.ID == required.ID {
				found = true
				break
			}
		}
		if !found {
			return model.TaskEvalResult{}, nil, core.New(core.MissingInput, fmt.Sprintf("required input %q not provided", required.ID))
		}
	}

	// Step 2: synthesise the id=0 INPUT step from user inputs.
	userInputStep := model.StepDef{
		ID:   userInputNodeID,
		Type: model.StepInput,
	}
	for _, ui := range userInputs {
		userInputStep.Outputs = append(userInputStep.Outputs, model.StepSocket{ID: ui.ID, Data: &ui.Data})
	}

	var packages []model.RunnerPackage
	for _, tc := range payload.Testcases {
		spliced := tc
		spliced.Nodes = append(append([]model.StepDef{}, tc.Nodes...), userInputStep)

		g, err := graph.Build(spliced, e.Registry)
		if err != nil {
			return model.TaskEvalResult{}, nil, core.Wrap(core.GraphInvalid, fmt.Sprintf("testcase %s", tc.ID), err)
		}
		lowered, err := g.Lower()
		if err != nil {
			return model.TaskEvalResult{}, nil, core.Wrap(core.GraphInvalid, fmt.Sprintf("testcase %s", tc.ID), err)
		}

		files := append([]model.File{}, lowered.Files...)
		files = append(files, model.File{FileName: "__entrypoint.py", Content: lowered.Code})

		packages = append(packages, model.RunnerPackage{
			ID:         tc.ID,
			Entrypoint: "__entrypoint.py",
			Files:      files,
		})
	}

	correlationID := uuid.NewString()
	req := &model.RunnerRequest{
		SubmissionID: correlationID,
		Environment:  payload.Environment,
		Packages:     packages,
	}

	return model.TaskEvalResult{TaskID: t.ID, Status: model.StatusPending, Result: correlationID}, req, nil
}
