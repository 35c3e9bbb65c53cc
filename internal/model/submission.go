package model

import "encoding/json"

// SubmissionStatus is the aggregate status of a Submission over all of its
// task results (spec §3/§4.5).
type SubmissionStatus string

const (
	SubmissionPending SubmissionStatus = "PENDING"
	SubmissionOK      SubmissionStatus = "OK"
	SubmissionFail    SubmissionStatus = "FAIL"
)

// TaskResult is the per-task outcome inside a submission: the unit the
// listener mutates (spec §3/§4.6). TaskSubmissionID is set iff
// Status == StatusPending, and is unique across all task results — it is
// the correlation key joining a pending result to its runner reply.
type TaskResult struct {
	ID               int64           `json:"id"`
	SubmissionID     string          `json:"submission_id"`
	DefinitionID     string          `json:"definition_id"`
	TaskID           string          `json:"task_id"`
	TaskSubmissionID *string         `json:"task_submission_id,omitempty"`
	Status           EvalStatus      `json:"status"`
	Result           any             `json:"result,omitempty"`
	OtherFields      json.RawMessage `json:"other_fields,omitempty"`
}

// Submission is one evaluation attempt against a definition (spec §3).
type Submission struct {
	ID           string           `json:"id"`
	DefinitionID string           `json:"definition_id"`
	Status       SubmissionStatus `json:"status"`
	TaskResults  []TaskResult     `json:"task_results"`
}
