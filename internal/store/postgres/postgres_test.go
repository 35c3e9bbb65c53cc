package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unicon-platform/unicon-backend/internal/model"
	"github.com/unicon-platform/unicon-backend/internal/store"
)

func TestCreateSubmission_InsertsSubmissionAndTaskResults(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewWithPool(mock)

	sub := model.Submission{
		ID:           "sub-1",
		DefinitionID: "def-1",
		Status:       model.SubmissionPending,
		TaskResults: []model.TaskResult{
			{DefinitionID: "def-1", TaskID: "t1", Status: model.StatusPending},
		},
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO submissions")).
		WithArgs(sub.ID, sub.DefinitionID, sub.Status).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	resultJSON, _ := json.Marshal(nil)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO task_results")).
		WithArgs(sub.ID, "def-1", "t1", (*string)(nil), model.StatusPending, resultJSON, json.RawMessage(nil)).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectCommit()

	got, err := s.CreateSubmission(context.Background(), sub)
	require.NoError(t, err)
	require.Len(t, got.TaskResults, 1)
	assert.Equal(t, int64(1), got.TaskResults[0].ID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindPendingByCorrelation_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewWithPool(mock)

	mock.ExpectQuery(regexp.QuoteMeta("FROM task_results")).
		WithArgs("missing-correlation", model.StatusPending).
		WillReturnError(pgx.ErrNoRows)

	_, err = s.FindPendingByCorrelation(context.Background(), "missing-correlation")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestFindPendingByCorrelation_Hit(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewWithPool(mock)

	correlationID := "corr-1"
	rows := pgxmock.NewRows([]string{"id", "submission_id", "definition_id", "task_id", "task_submission_id", "status", "result", "other_fields"}).
		AddRow(int64(5), "sub-1", "def-1", "t1", &correlationID, model.StatusPending, []byte("null"), []byte(nil))

	mock.ExpectQuery(regexp.QuoteMeta("FROM task_results")).
		WithArgs(correlationID, model.StatusPending).
		WillReturnRows(rows)

	tr, err := s.FindPendingByCorrelation(context.Background(), correlationID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), tr.ID)
	assert.Equal(t, model.StatusPending, tr.Status)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteTaskResult_IdempotentWhenAlreadyTerminal(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewWithPool(mock)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE task_results")).
		WithArgs(model.StatusSuccess, []byte(`"ok"`), int64(7), model.StatusPending).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = s.CompleteTaskResult(context.Background(), 7, model.StatusSuccess, "ok")
	require.NoError(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteTaskResult_RecomputesSubmissionAggregate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewWithPool(mock)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE task_results")).
		WithArgs(model.StatusSuccess, []byte(`"ok"`), int64(7), model.StatusPending).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT submission_id FROM task_results WHERE id = $1")).
		WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows([]string{"submission_id"}).AddRow("sub-1"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM task_results WHERE submission_id = $1")).
		WithArgs("sub-1").
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow(model.StatusSuccess).AddRow(model.StatusSuccess))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE submissions SET status = $1 WHERE id = $2")).
		WithArgs(model.SubmissionOK, "sub-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err = s.CompleteTaskResult(context.Background(), 7, model.StatusSuccess, "ok")
	require.NoError(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSubmission_QueryErrorIsNotNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewWithPool(mock)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, definition_id, status FROM submissions WHERE id = $1")).
		WithArgs("missing").
		WillReturnError(errors.New("connection reset"))

	_, err = s.GetSubmission(context.Background(), "missing")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, store.ErrNotFound)
}
