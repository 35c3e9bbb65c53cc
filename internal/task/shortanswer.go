package task

import (
	"context"
	"fmt"
	"strings"

	"github.com/unicon-platform/unicon-backend/internal/core"
	"github.com/unicon-platform/unicon-backend/internal/model"
)

// ShortAnswerEvaluator implements Evaluator for model.TaskShortAnswer: a
// synchronous string comparison, no runner round-trip involved.
type ShortAnswerEvaluator struct{}

// NewShortAnswerEvaluator builds a ShortAnswerEvaluator.
func NewShortAnswerEvaluator() *ShortAnswerEvaluator {
	return &ShortAnswerEvaluator{}
}

func (e *ShortAnswerEvaluator) ValidateUserInput(raw any) (any, error) {
	artifact, ok := raw.(model.Artifact)
	if !ok || artifact.Primitive == nil || artifact.Primitive.Kind != model.KindString {
		return nil, core.New(core.ValidationFailed, "short answer user input must be a string")
	}
	return artifact.Primitive.Value.(string), nil
}

// ValidateExpectedAnswer allows a missing expected answer through as nil: a
// TaskResult with no expected answer is not an error (spec §9 Open
// Question), so only a *present* non-string value is rejected.
func (e *ShortAnswerEvaluator) ValidateExpectedAnswer(raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	answer, ok := raw.(string)
	if !ok {
		return nil, core.New(core.ValidationFailed, "short answer expected answer must be a string")
	}
	return answer, nil
}

// Run compares the user's answer against the expected answer, honoring
// Autograde/IgnoreCase, and returns a terminal status synchronously. It
// never returns a RunnerRequest: short-answer tasks have no runner leg.
func (e *ShortAnswerEvaluator) Run(_ context.Context, t model.Task, userInputAny any, expectedAny any) (model.TaskEvalResult, *model.RunnerRequest, error) {
	if t.ShortAnswer == nil {
		return model.TaskEvalResult{}, nil, fmt.Errorf("task: %s has type SHORT_ANSWER but no short answer payload", t.ID)
	}

	answer, ok := userInputAny.(string)
	if !ok {
		return model.TaskEvalResult{}, nil, core.New(core.ValidationFailed, "short answer user input must be a string")
	}

	if !t.Autograde {
		return model.TaskEvalResult{TaskID: t.ID, Status: model.StatusSkipped}, nil, nil
	}

	expected, _ := expectedAny.(string)

	a, b := answer, expected
	if t.ShortAnswer.IgnoreCase {
		a, b = strings.ToLower(a), strings.ToLower(b)
	}

	status := model.StatusFail
	if strings.TrimSpace(a) == strings.TrimSpace(b) {
		status = model.StatusSuccess
	}

	return model.TaskEvalResult{TaskID: t.ID, Status: status, Result: answer}, nil, nil
}
