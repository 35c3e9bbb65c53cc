// Package sqlite implements internal/store.Store on SQLite via
// mattn/go-sqlite3, the evaluation core's default local/test backend
// (spec §4.7), grounded on the teacher's own store/sqlite checkpoint
// adapter.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/unicon-platform/unicon-backend/internal/model"
	"github.com/unicon-platform/unicon-backend/internal/store"
)

// Store implements store.Store on SQLite.
type Store struct {
	db *sql.DB
}

// Options configures a new SQLite-backed Store.
type Options struct {
	Path string // e.g. "file:unicon.db?cache=shared&mode=rwc"
}

// New opens the database, initializes its schema, and returns a Store.
func New(opts Options) (*Store, error) {
	db, err := sql.Open("sqlite3", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: unable to open database: %w", err)
	}
	s := &Store{db: db}
	if err := s.InitSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// InitSchema creates the definitions, submissions and task_results tables
// and the unique correlation index, if they don't already exist. There is
// no separate task table: a definition's tasks are stored as one JSON text
// column on its definitions row.
func (s *Store) InitSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS definitions (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL,
			tasks TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS submissions (
			id TEXT PRIMARY KEY,
			definition_id TEXT NOT NULL REFERENCES definitions(id),
			status TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS task_results (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			submission_id TEXT NOT NULL REFERENCES submissions(id),
			definition_id TEXT NOT NULL,
			task_id TEXT NOT NULL,
			task_submission_id TEXT,
			status TEXT NOT NULL,
			result TEXT,
			other_fields TEXT
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_task_results_task_submission_id
			ON task_results (task_submission_id)
			WHERE task_submission_id IS NOT NULL;
	`)
	if err != nil {
		return fmt.Errorf("sqlite: failed to create schema: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) GetDefinition(ctx context.Context, id string) (*model.Definition, error) {
	var def model.Definition
	var tasksJSON string
	err := s.db.QueryRowContext(ctx, `SELECT id, name, description, tasks FROM definitions WHERE id = ?`, id).
		Scan(&def.ID, &def.Name, &def.Description, &tasksJSON)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("sqlite: get definition %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(tasksJSON), &def.Tasks); err != nil {
		return nil, fmt.Errorf("sqlite: unmarshal tasks for definition %s: %w", id, err)
	}
	return &def, nil
}

// PutDefinition upserts a Definition, used by tests and local seeding since
// spec.md places definition CRUD out of scope for this core.
func (s *Store) PutDefinition(ctx context.Context, def model.Definition) error {
	tasksJSON, err := json.Marshal(def.Tasks)
	if err != nil {
		return fmt.Errorf("sqlite: marshal tasks for definition %s: %w", def.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO definitions (id, name, description, tasks) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, description = excluded.description, tasks = excluded.tasks`,
		def.ID, def.Name, def.Description, string(tasksJSON))
	if err != nil {
		return fmt.Errorf("sqlite: put definition %s: %w", def.ID, err)
	}
	return nil
}

// CreateSubmission inserts the submission and its task results in a single
// transaction (spec §4.5 step 6 / §9 commit-before-publish).
func (s *Store) CreateSubmission(ctx context.Context, sub model.Submission) (model.Submission, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Submission{}, fmt.Errorf("sqlite: begin create submission: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT INTO submissions (id, definition_id, status) VALUES (?, ?, ?)`,
		sub.ID, sub.DefinitionID, string(sub.Status)); err != nil {
		return model.Submission{}, fmt.Errorf("sqlite: insert submission %s: %w", sub.ID, err)
	}

	for i, tr := range sub.TaskResults {
		resultJSON, err := json.Marshal(tr.Result)
		if err != nil {
			return model.Submission{}, fmt.Errorf("sqlite: marshal task result: %w", err)
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO task_results (submission_id, definition_id, task_id, task_submission_id, status, result, other_fields)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			sub.ID, tr.DefinitionID, tr.TaskID, tr.TaskSubmissionID, string(tr.Status), string(resultJSON), string(tr.OtherFields))
		if err != nil {
			return model.Submission{}, fmt.Errorf("sqlite: insert task result for task %s: %w", tr.TaskID, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return model.Submission{}, fmt.Errorf("sqlite: task result last insert id: %w", err)
		}
		sub.TaskResults[i].ID = id
	}

	if err := tx.Commit(); err != nil {
		return model.Submission{}, fmt.Errorf("sqlite: commit create submission: %w", err)
	}
	return sub, nil
}

func (s *Store) FindPendingByCorrelation(ctx context.Context, correlationID string) (*model.TaskResult, error) {
	var tr model.TaskResult
	var resultJSON, otherJSON sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, submission_id, definition_id, task_id, task_submission_id, status, result, other_fields
		FROM task_results
		WHERE task_submission_id = ? AND status = ?`,
		correlationID, string(model.StatusPending),
	).Scan(&tr.ID, &tr.SubmissionID, &tr.DefinitionID, &tr.TaskID, &tr.TaskSubmissionID, &tr.Status, &resultJSON, &otherJSON)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("sqlite: find pending by correlation %s: %w", correlationID, err)
	}
	if resultJSON.Valid && resultJSON.String != "" {
		_ = json.Unmarshal([]byte(resultJSON.String), &tr.Result)
	}
	if otherJSON.Valid {
		tr.OtherFields = []byte(otherJSON.String)
	}
	return &tr, nil
}

// CompleteTaskResult transitions a task result to a terminal state and
// recomputes its submission's aggregate status in the same transaction
// (spec §4.6). The WHERE status = PENDING clause makes the transition
// idempotent under at-least-once redelivery (spec §8 property 3).
func (s *Store) CompleteTaskResult(ctx context.Context, taskResultID int64, status model.EvalStatus, result any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin complete task result: %w", err)
	}
	defer tx.Rollback()

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("sqlite: marshal task result payload: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE task_results SET status = ?, result = ?, task_submission_id = NULL
		WHERE id = ? AND status = ?`,
		string(status), string(resultJSON), taskResultID, string(model.StatusPending))
	if err != nil {
		return fmt.Errorf("sqlite: update task result %d: %w", taskResultID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: rows affected for task result %d: %w", taskResultID, err)
	}
	if affected == 0 {
		return nil
	}

	var submissionID string
	if err := tx.QueryRowContext(ctx, `SELECT submission_id FROM task_results WHERE id = ?`, taskResultID).Scan(&submissionID); err != nil {
		return fmt.Errorf("sqlite: lookup submission for task result %d: %w", taskResultID, err)
	}

	rows, err := tx.QueryContext(ctx, `SELECT status FROM task_results WHERE submission_id = ?`, submissionID)
	if err != nil {
		return fmt.Errorf("sqlite: load task result statuses for submission %s: %w", submissionID, err)
	}
	var statuses []model.EvalStatus
	for rows.Next() {
		var st string
		if err := rows.Scan(&st); err != nil {
			rows.Close()
			return fmt.Errorf("sqlite: scan task result status: %w", err)
		}
		statuses = append(statuses, model.EvalStatus(st))
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("sqlite: iterate task result statuses: %w", err)
	}

	results := make([]model.TaskResult, len(statuses))
	for i, st := range statuses {
		results[i] = model.TaskResult{Status: st}
	}
	aggregate := store.RecomputeAggregate(results)

	if _, err := tx.ExecContext(ctx, `UPDATE submissions SET status = ? WHERE id = ?`, string(aggregate), submissionID); err != nil {
		return fmt.Errorf("sqlite: update submission %s aggregate status: %w", submissionID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit complete task result: %w", err)
	}
	return nil
}

func (s *Store) GetSubmission(ctx context.Context, id string) (*model.Submission, error) {
	var sub model.Submission
	var status string
	err := s.db.QueryRowContext(ctx, `SELECT id, definition_id, status FROM submissions WHERE id = ?`, id).
		Scan(&sub.ID, &sub.DefinitionID, &status)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("sqlite: get submission %s: %w", id, err)
	}
	sub.Status = model.SubmissionStatus(status)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, submission_id, definition_id, task_id, task_submission_id, status, result, other_fields
		FROM task_results WHERE submission_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list task results for submission %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var tr model.TaskResult
		var trStatus string
		var resultJSON, otherJSON sql.NullString
		if err := rows.Scan(&tr.ID, &tr.SubmissionID, &tr.DefinitionID, &tr.TaskID, &tr.TaskSubmissionID, &trStatus, &resultJSON, &otherJSON); err != nil {
			return nil, fmt.Errorf("sqlite: scan task result: %w", err)
		}
		tr.Status = model.EvalStatus(trStatus)
		if resultJSON.Valid && resultJSON.String != "" {
			_ = json.Unmarshal([]byte(resultJSON.String), &tr.Result)
		}
		if otherJSON.Valid {
			tr.OtherFields = []byte(otherJSON.String)
		}
		sub.TaskResults = append(sub.TaskResults, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate task results: %w", err)
	}

	return &sub, nil
}
