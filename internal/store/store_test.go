package store

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/unicon-platform/unicon-backend/internal/model"
)

func TestRecomputeAggregate(t *testing.T) {
	cases := []struct {
		name    string
		results []model.TaskResult
		want    model.SubmissionStatus
	}{
		{"empty", nil, model.SubmissionOK},
		{"success and skipped", []model.TaskResult{{Status: model.StatusSuccess}, {Status: model.StatusSkipped}}, model.SubmissionOK},
		{"any pending wins", []model.TaskResult{{Status: model.StatusSuccess}, {Status: model.StatusPending}, {Status: model.StatusFail}}, model.SubmissionPending},
		{"any fail without pending", []model.TaskResult{{Status: model.StatusSuccess}, {Status: model.StatusFail}}, model.SubmissionFail},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, RecomputeAggregate(tc.results))
		})
	}
}
