// Package orchestrator ties the evaluation core's pieces into the
// submission lifecycle (spec §4.5/§4.9): task dispatch table, durable
// store, and broker dispatcher.
package orchestrator

import (
	"context"
	"fmt"

	"github.com/unicon-platform/unicon-backend/internal/core"
	"github.com/unicon-platform/unicon-backend/internal/corelog"
	"github.com/unicon-platform/unicon-backend/internal/model"
	"github.com/unicon-platform/unicon-backend/internal/store"
	"github.com/unicon-platform/unicon-backend/internal/task"
)

// Dispatcher is the narrow interface Orchestrator needs from
// internal/dispatcher, kept here to avoid a dependency cycle.
type Dispatcher interface {
	Dispatch(ctx context.Context, req model.RunnerRequest) error
}

// Orchestrator implements spec §4.5's submission lifecycle.
type Orchestrator struct {
	Tasks      *task.Registry
	Store      store.Store
	Dispatcher Dispatcher
	Log        corelog.Logger
}

// New builds an Orchestrator. log may be nil (falls back to corelog.Default()).
func New(tasks *task.Registry, st store.Store, dispatcher Dispatcher, log corelog.Logger) *Orchestrator {
	if log == nil {
		log = corelog.Default()
	}
	return &Orchestrator{Tasks: tasks, Store: st, Dispatcher: dispatcher, Log: log}
}

// Submit implements spec §4.5 steps 1-6: for each task in the definition,
// index its user input and expected answer, skip it (SKIPPED) if no user
// input was provided, otherwise validate and run it; aggregate every
// task's status into the submission's overall status; persist the whole
// submission in one transaction; and only then dispatch every task result
// left PENDING (commit-before-publish, spec §9).
func (o *Orchestrator) Submit(ctx context.Context, submissionID string, def model.Definition, userInputs []model.UserInput, expectedAnswers []model.ExpectedAnswer) (model.Submission, error) {
	inputByTask := make(map[string]any, len(userInputs))
	for _, ui := range userInputs {
		inputByTask[ui.TaskID] = ui.Data
	}
	expectedByTask := make(map[string]any, len(expectedAnswers))
	for _, ea := range expectedAnswers {
		expectedByTask[ea.TaskID] = ea.Data
	}

	results := make([]model.TaskResult, 0, len(def.Tasks))
	var pendingDispatches []model.RunnerRequest

	for _, t := range def.Tasks {
		raw, hasInput := inputByTask[t.ID]
		if !hasInput {
			o.Log.Warn("submission %s: task %s has no user input, marking SKIPPED", submissionID, t.ID)
			results = append(results, model.TaskResult{
				SubmissionID: submissionID,
				DefinitionID: def.ID,
				TaskID:       t.ID,
				Status:       model.StatusSkipped,
			})
			continue
		}

		evaluator, err := o.Tasks.For(t)
		if err != nil {
			results = append(results, failResult(submissionID, def.ID, t.ID, err))
			continue
		}

		userInput, err := evaluator.ValidateUserInput(raw)
		if err != nil {
			results = append(results, failResult(submissionID, def.ID, t.ID, err))
			continue
		}

		rawExpected, hasExpected := expectedByTask[t.ID]
		if !hasExpected {
			o.Log.Warn("submission %s: task %s has no expected answer, grading with expected=nil", submissionID, t.ID)
		}
		expected, err := evaluator.ValidateExpectedAnswer(rawExpected)
		if err != nil {
			results = append(results, failResult(submissionID, def.ID, t.ID, err))
			continue
		}

		evalResult, req, err := evaluator.Run(ctx, t, userInput, expected)
		if err != nil {
			results = append(results, failResult(submissionID, def.ID, t.ID, err))
			continue
		}

		tr := model.TaskResult{
			SubmissionID: submissionID,
			DefinitionID: def.ID,
			TaskID:       t.ID,
			Status:       evalResult.Status,
			Result:       evalResult.Result,
		}
		if evalResult.Status == model.StatusPending {
			if correlationID, ok := evalResult.Result.(string); ok {
				tr.TaskSubmissionID = &correlationID
			}
		}
		results = append(results, tr)

		if req != nil {
			pendingDispatches = append(pendingDispatches, *req)
		}
	}

	sub := model.Submission{
		ID:           submissionID,
		DefinitionID: def.ID,
		Status:       store.RecomputeAggregate(results),
		TaskResults:  results,
	}

	committed, err := o.Store.CreateSubmission(ctx, sub)
	if err != nil {
		return model.Submission{}, core.Wrap(core.StorageFailed, fmt.Sprintf("create submission %s", submissionID), err)
	}

	// Dispatch only after the transaction above has committed (spec §9
	// commit-before-publish): a crash here can only orphan an already
	// durable PENDING task result, never publish a request for a
	// submission that doesn't exist yet. A publish that exhausts its
	// retries transitions the owning task result straight to FAIL, since
	// there is no runner request in flight to reconcile against later.
	for _, req := range pendingDispatches {
		if err := o.Dispatcher.Dispatch(ctx, req); err != nil {
			o.Log.Error("submission %s: dispatch failed for runner request %s: %v", submissionID, req.SubmissionID, err)
			if taskResultID, ok := findByCorrelation(committed.TaskResults, req.SubmissionID); ok {
				if failErr := o.Store.CompleteTaskResult(ctx, taskResultID, model.StatusFail, err.Error()); failErr != nil {
					o.Log.Error("submission %s: could not mark task result %d FAIL after dispatch failure: %v", submissionID, taskResultID, failErr)
				}
			}
		}
	}

	return committed, nil
}

func findByCorrelation(results []model.TaskResult, correlationID string) (int64, bool) {
	for _, r := range results {
		if r.TaskSubmissionID != nil && *r.TaskSubmissionID == correlationID {
			return r.ID, true
		}
	}
	return 0, false
}

func failResult(submissionID, definitionID, taskID string, err error) model.TaskResult {
	return model.TaskResult{
		SubmissionID: submissionID,
		DefinitionID: definitionID,
		TaskID:       taskID,
		Status:       model.StatusFail,
		Result:       err.Error(),
	}
}
