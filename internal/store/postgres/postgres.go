// Package postgres implements internal/store.Store on PostgreSQL via pgx/v5
// and pgxpool, grounded on the teacher's own store/postgres checkpoint
// adapter: same DBPool test seam, same fmt.Errorf-wrapped error style.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/unicon-platform/unicon-backend/internal/model"
	"github.com/unicon-platform/unicon-backend/internal/store"
)

// DBPool is the subset of *pgxpool.Pool this store depends on, so tests can
// substitute github.com/pashagolub/pgxmock/v3 for a real connection.
type DBPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// Store implements store.Store on Postgres.
type Store struct {
	pool DBPool
}

// Options configures a new Postgres-backed Store.
type Options struct {
	ConnString string
}

// New opens a connection pool and returns a Store.
func New(ctx context.Context, opts Options) (*Store, error) {
	pool, err := pgxpool.New(ctx, opts.ConnString)
	if err != nil {
		return nil, fmt.Errorf("postgres: unable to create connection pool: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewWithPool builds a Store over an existing DBPool, the seam tests use
// with pgxmock.
func NewWithPool(pool DBPool) *Store {
	return &Store{pool: pool}
}

// InitSchema creates the definitions, submissions and task_results tables
// and the unique correlation index, if they don't already exist. There is
// no separate task table: a definition's tasks are stored as one JSONB
// column on its definitions row.
func (s *Store) InitSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS definitions (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL,
			tasks JSONB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS submissions (
			id TEXT PRIMARY KEY,
			definition_id TEXT NOT NULL REFERENCES definitions(id),
			status TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS task_results (
			id BIGSERIAL PRIMARY KEY,
			submission_id TEXT NOT NULL REFERENCES submissions(id),
			definition_id TEXT NOT NULL,
			task_id TEXT NOT NULL,
			task_submission_id TEXT,
			status TEXT NOT NULL,
			result JSONB,
			other_fields JSONB
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_task_results_task_submission_id
			ON task_results (task_submission_id)
			WHERE task_submission_id IS NOT NULL;
	`)
	if err != nil {
		return fmt.Errorf("postgres: failed to create schema: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) GetDefinition(ctx context.Context, id string) (*model.Definition, error) {
	var def model.Definition
	var tasksJSON []byte
	err := s.pool.QueryRow(ctx, `SELECT id, name, description, tasks FROM definitions WHERE id = $1`, id).
		Scan(&def.ID, &def.Name, &def.Description, &tasksJSON)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: get definition %s: %w", id, err)
	}
	if err := json.Unmarshal(tasksJSON, &def.Tasks); err != nil {
		return nil, fmt.Errorf("postgres: unmarshal tasks for definition %s: %w", id, err)
	}
	return &def, nil
}

// CreateSubmission inserts the submission and its task results in a single
// transaction (spec §4.5 step 6 / §9 commit-before-publish).
func (s *Store) CreateSubmission(ctx context.Context, sub model.Submission) (model.Submission, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.Submission{}, fmt.Errorf("postgres: begin create submission: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `INSERT INTO submissions (id, definition_id, status) VALUES ($1, $2, $3)`,
		sub.ID, sub.DefinitionID, sub.Status); err != nil {
		return model.Submission{}, fmt.Errorf("postgres: insert submission %s: %w", sub.ID, err)
	}

	for i, tr := range sub.TaskResults {
		resultJSON, err := json.Marshal(tr.Result)
		if err != nil {
			return model.Submission{}, fmt.Errorf("postgres: marshal task result: %w", err)
		}
		err = tx.QueryRow(ctx, `
			INSERT INTO task_results (submission_id, definition_id, task_id, task_submission_id, status, result, other_fields)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id`,
			sub.ID, tr.DefinitionID, tr.TaskID, tr.TaskSubmissionID, tr.Status, resultJSON, tr.OtherFields,
		).Scan(&sub.TaskResults[i].ID)
		if err != nil {
			return model.Submission{}, fmt.Errorf("postgres: insert task result for task %s: %w", tr.TaskID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Submission{}, fmt.Errorf("postgres: commit create submission: %w", err)
	}
	return sub, nil
}

func (s *Store) FindPendingByCorrelation(ctx context.Context, correlationID string) (*model.TaskResult, error) {
	var tr model.TaskResult
	var resultJSON, otherJSON []byte
	err := s.pool.QueryRow(ctx, `
		SELECT id, submission_id, definition_id, task_id, task_submission_id, status, result, other_fields
		FROM task_results
		WHERE task_submission_id = $1 AND status = $2`,
		correlationID, model.StatusPending,
	).Scan(&tr.ID, &tr.SubmissionID, &tr.DefinitionID, &tr.TaskID, &tr.TaskSubmissionID, &tr.Status, &resultJSON, &otherJSON)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: find pending by correlation %s: %w", correlationID, err)
	}
	if len(resultJSON) > 0 {
		_ = json.Unmarshal(resultJSON, &tr.Result)
	}
	tr.OtherFields = otherJSON
	return &tr, nil
}

// CompleteTaskResult transitions a task result to a terminal state and
// recomputes its submission's aggregate status in the same transaction
// (spec §4.6). The WHERE status = PENDING clause makes the transition
// idempotent under at-least-once redelivery (spec §8 property 3).
func (s *Store) CompleteTaskResult(ctx context.Context, taskResultID int64, status model.EvalStatus, result any) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin complete task result: %w", err)
	}
	defer tx.Rollback(ctx)

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("postgres: marshal task result payload: %w", err)
	}

	var submissionID string
	tag, err := tx.Exec(ctx, `
		UPDATE task_results SET status = $1, result = $2, task_submission_id = NULL
		WHERE id = $3 AND status = $4`,
		status, resultJSON, taskResultID, model.StatusPending)
	if err != nil {
		return fmt.Errorf("postgres: update task result %d: %w", taskResultID, err)
	}
	if tag.RowsAffected() == 0 {
		return nil
	}

	if err := tx.QueryRow(ctx, `SELECT submission_id FROM task_results WHERE id = $1`, taskResultID).Scan(&submissionID); err != nil {
		return fmt.Errorf("postgres: lookup submission for task result %d: %w", taskResultID, err)
	}

	rows, err := tx.Query(ctx, `SELECT status FROM task_results WHERE submission_id = $1`, submissionID)
	if err != nil {
		return fmt.Errorf("postgres: load task result statuses for submission %s: %w", submissionID, err)
	}
	var statuses []model.EvalStatus
	for rows.Next() {
		var st model.EvalStatus
		if err := rows.Scan(&st); err != nil {
			rows.Close()
			return fmt.Errorf("postgres: scan task result status: %w", err)
		}
		statuses = append(statuses, st)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("postgres: iterate task result statuses: %w", err)
	}

	results := make([]model.TaskResult, len(statuses))
	for i, st := range statuses {
		results[i] = model.TaskResult{Status: st}
	}
	aggregate := store.RecomputeAggregate(results)

	if _, err := tx.Exec(ctx, `UPDATE submissions SET status = $1 WHERE id = $2`, aggregate, submissionID); err != nil {
		return fmt.Errorf("postgres: update submission %s aggregate status: %w", submissionID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit complete task result: %w", err)
	}
	return nil
}

func (s *Store) GetSubmission(ctx context.Context, id string) (*model.Submission, error) {
	var sub model.Submission
	err := s.pool.QueryRow(ctx, `SELECT id, definition_id, status FROM submissions WHERE id = $1`, id).
		Scan(&sub.ID, &sub.DefinitionID, &sub.Status)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: get submission %s: %w", id, err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, submission_id, definition_id, task_id, task_submission_id, status, result, other_fields
		FROM task_results WHERE submission_id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("postgres: list task results for submission %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var tr model.TaskResult
		var resultJSON, otherJSON []byte
		if err := rows.Scan(&tr.ID, &tr.SubmissionID, &tr.DefinitionID, &tr.TaskID, &tr.TaskSubmissionID, &tr.Status, &resultJSON, &otherJSON); err != nil {
			return nil, fmt.Errorf("postgres: scan task result: %w", err)
		}
		if len(resultJSON) > 0 {
			_ = json.Unmarshal(resultJSON, &tr.Result)
		}
		tr.OtherFields = otherJSON
		sub.TaskResults = append(sub.TaskResults, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate task results: %w", err)
	}

	return &sub, nil
}
