package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unicon-platform/unicon-backend/internal/model"
	"github.com/unicon-platform/unicon-backend/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "unicon.db")
	s, err := New(Options{Path: path})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedDefinition(t *testing.T, s *Store) model.Definition {
	t.Helper()
	def := model.Definition{ID: "def-1", Name: "Contest", Description: "d", Tasks: []model.Task{
		{ID: "t1", Type: model.TaskShortAnswer, Autograde: true, ShortAnswer: &model.ShortAnswerPayload{}},
	}}
	require.NoError(t, s.PutDefinition(context.Background(), def))
	return def
}

func TestSqliteStore_RoundTripsDefinition(t *testing.T) {
	s := newTestStore(t)
	def := seedDefinition(t, s)

	got, err := s.GetDefinition(context.Background(), def.ID)
	require.NoError(t, err)
	assert.Equal(t, def.Name, got.Name)
	require.Len(t, got.Tasks, 1)
	assert.Equal(t, "t1", got.Tasks[0].ID)
}

func TestSqliteStore_GetDefinition_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetDefinition(context.Background(), "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSqliteStore_CreateSubmission_AssignsIDsAndPersistsStatus(t *testing.T) {
	s := newTestStore(t)
	def := seedDefinition(t, s)

	correlationID := "corr-1"
	sub := model.Submission{
		ID:           "sub-1",
		DefinitionID: def.ID,
		Status:       model.SubmissionPending,
		TaskResults: []model.TaskResult{
			{DefinitionID: def.ID, TaskID: "t1", Status: model.StatusPending, TaskSubmissionID: &correlationID},
		},
	}

	got, err := s.CreateSubmission(context.Background(), sub)
	require.NoError(t, err)
	require.Len(t, got.TaskResults, 1)
	assert.NotZero(t, got.TaskResults[0].ID)

	fetched, err := s.GetSubmission(context.Background(), "sub-1")
	require.NoError(t, err)
	assert.Equal(t, model.SubmissionPending, fetched.Status)
}

func TestSqliteStore_FindPendingByCorrelation(t *testing.T) {
	s := newTestStore(t)
	def := seedDefinition(t, s)

	correlationID := "corr-2"
	sub := model.Submission{
		ID:           "sub-2",
		DefinitionID: def.ID,
		Status:       model.SubmissionPending,
		TaskResults: []model.TaskResult{
			{DefinitionID: def.ID, TaskID: "t1", Status: model.StatusPending, TaskSubmissionID: &correlationID},
		},
	}
	_, err := s.CreateSubmission(context.Background(), sub)
	require.NoError(t, err)

	tr, err := s.FindPendingByCorrelation(context.Background(), correlationID)
	require.NoError(t, err)
	assert.Equal(t, "sub-2", tr.SubmissionID)

	_, err = s.FindPendingByCorrelation(context.Background(), "no-such-correlation")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSqliteStore_CompleteTaskResult_IsIdempotentAndRecomputesAggregate(t *testing.T) {
	s := newTestStore(t)
	def := seedDefinition(t, s)

	correlationID := "corr-3"
	sub := model.Submission{
		ID:           "sub-3",
		DefinitionID: def.ID,
		Status:       model.SubmissionPending,
		TaskResults: []model.TaskResult{
			{DefinitionID: def.ID, TaskID: "t1", Status: model.StatusPending, TaskSubmissionID: &correlationID},
		},
	}
	committed, err := s.CreateSubmission(context.Background(), sub)
	require.NoError(t, err)
	taskResultID := committed.TaskResults[0].ID

	require.NoError(t, s.CompleteTaskResult(context.Background(), taskResultID, model.StatusSuccess, "42"))

	fetched, err := s.GetSubmission(context.Background(), "sub-3")
	require.NoError(t, err)
	assert.Equal(t, model.SubmissionOK, fetched.Status)
	require.Len(t, fetched.TaskResults, 1)
	assert.Equal(t, model.StatusSuccess, fetched.TaskResults[0].Status)
	assert.Nil(t, fetched.TaskResults[0].TaskSubmissionID)

	// Redelivery of the same terminal transition is a no-op, not an error,
	// and must not flip the result back to PENDING or re-run the aggregate
	// off a stale status.
	require.NoError(t, s.CompleteTaskResult(context.Background(), taskResultID, model.StatusFail, "late duplicate"))

	fetchedAgain, err := s.GetSubmission(context.Background(), "sub-3")
	require.NoError(t, err)
	assert.Equal(t, model.StatusSuccess, fetchedAgain.TaskResults[0].Status)
}
