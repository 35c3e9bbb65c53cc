// Package task implements the per-task-kind evaluators (spec §4.3): the
// polymorphic Task dispatch table keyed by model.TaskType, never deep
// inheritance (spec §9).
package task

import (
	"context"
	"fmt"

	"github.com/unicon-platform/unicon-backend/internal/model"
)

// Evaluator is the capability set every task kind implements (spec §3):
// validate its own user input and expected answer shapes, then run.
//
// Run never publishes anything itself: a PROGRAMMING evaluation returns a
// PENDING TaskEvalResult alongside the RunnerRequest the orchestrator must
// dispatch once — and only once — the owning submission is durably
// committed (spec §4.5/§9 commit-before-publish). Synchronous kinds return
// a nil request.
type Evaluator interface {
	ValidateUserInput(raw any) (any, error)
	ValidateExpectedAnswer(raw any) (any, error)
	Run(ctx context.Context, t model.Task, userInput any, expected any) (model.TaskEvalResult, *model.RunnerRequest, error)
}

// Registry dispatches a Task to its Evaluator by Type.
type Registry struct {
	evaluators map[model.TaskType]Evaluator
}

// NewRegistry builds a Registry with the given evaluators wired in by kind.
func NewRegistry(programming Evaluator, shortAnswer Evaluator) *Registry {
	return &Registry{
		evaluators: map[model.TaskType]Evaluator{
			model.TaskProgramming: programming,
			model.TaskShortAnswer: shortAnswer,
		},
	}
}

// For returns the Evaluator registered for a task's type.
func (r *Registry) For(t model.Task) (Evaluator, error) {
	ev, ok := r.evaluators[t.Type]
	if !ok {
		return nil, fmt.Errorf("task: no evaluator registered for type %q", t.Type)
	}
	return ev, nil
}
