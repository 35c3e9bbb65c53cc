// Package store defines the durable persistence contract for definitions,
// submissions, and task results (spec §4.7): internal/store/postgres and
// internal/store/sqlite are its two backends, mirroring the teacher's own
// checkpoint-store split (store/postgres, store/sqlite).
package store

import (
	"context"
	"errors"

	"github.com/unicon-platform/unicon-backend/internal/model"
)

// ErrNotFound is returned when a lookup by id finds no row.
var ErrNotFound = errors.New("store: not found")

// Store is the durable persistence contract the orchestrator and listener
// depend on. It never imports a broker: dispatch happens only after a
// transaction backing CreateSubmission has committed (spec §9 Open
// Question, resolved as commit-before-publish).
type Store interface {
	// GetDefinition loads a Definition by id.
	GetDefinition(ctx context.Context, id string) (*model.Definition, error)

	// CreateSubmission persists a new Submission and its TaskResults in one
	// transaction (spec §4.5 step 6). Returns the assigned TaskResult ids.
	CreateSubmission(ctx context.Context, sub model.Submission) (model.Submission, error)

	// FindPendingByCorrelation looks up the single PENDING TaskResult whose
	// TaskSubmissionID matches correlationID (spec §4.6). Returns
	// ErrNotFound if none match, including if one already transitioned
	// (spec §8 property 3 idempotency, enforced here, not by the caller).
	FindPendingByCorrelation(ctx context.Context, correlationID string) (*model.TaskResult, error)

	// CompleteTaskResult transitions a PENDING TaskResult to a terminal
	// status and result payload, then recomputes and persists its parent
	// Submission's aggregate status (spec §4.6/§4.5 step 5). A call against
	// a TaskResult that is no longer PENDING is a no-op returning nil, to
	// keep the transition idempotent under at-least-once redelivery.
	CompleteTaskResult(ctx context.Context, taskResultID int64, status model.EvalStatus, result any) error

	// GetSubmission loads a Submission and its TaskResults by id.
	GetSubmission(ctx context.Context, id string) (*model.Submission, error)

	Close() error
}

// RecomputeAggregate derives a Submission's aggregate status from its
// TaskResults (spec §4.5 step 5): PENDING if any task result is still
// pending, FAIL if any terminal result failed, OK otherwise.
func RecomputeAggregate(results []model.TaskResult) model.SubmissionStatus {
	sawFail := false
	for _, r := range results {
		switch r.Status {
		case model.StatusPending:
			return model.SubmissionPending
		case model.StatusFail:
			sawFail = true
		}
	}
	if sawFail {
		return model.SubmissionFail
	}
	return model.SubmissionOK
}
