package repository

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockbridge/stockbridge-backend/internal/docflow"
	"github.com/stockbridge/stockbridge-backend/pkg/errors"
	"github.com/stockbridge/stockbridge-backend/pkg/testutil"
)

func TestSumTransferred(t *testing.T) {
	mock := testutil.NewMockDB(t)
	mock.Mock.ExpectQuery(`SELECT COALESCE\(SUM\(l.quantity\), 0\)`).
		WithArgs(7001, "ITM200").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow("30.000"))

	repo := NewRepository(mock.DB)
	total, err := repo.SumTransferred(context.Background(), 7001, "ITM200")
	require.NoError(t, err)
	assert.Equal(t, "30", total.String())
	mock.AssertExpectations(t)
}

func TestApplyTransitionWritesHistory(t *testing.T) {
	mock := testutil.NewMockDB(t)

	mock.Mock.ExpectBegin()
	mock.Mock.ExpectExec(`UPDATE transfer_documents`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.Mock.ExpectExec(`UPDATE transfer_lines SET qc_status`).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.Mock.ExpectExec(`INSERT INTO transfer_status_history`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.Mock.ExpectCommit()

	approved := docflow.LineApproved
	repo := NewRepository(mock.DB)
	err := repo.ApplyTransition(context.Background(), "doc-1", StatusUpdate{
		Previous:   docflow.StatusSubmitted,
		Status:     docflow.StatusQCApproved,
		LineStatus: &approved,
		ActorID:    "qc-1",
	})
	require.NoError(t, err)
	mock.AssertExpectations(t)
}

func TestApplyTransitionUnknownDocument(t *testing.T) {
	mock := testutil.NewMockDB(t)

	mock.Mock.ExpectBegin()
	mock.Mock.ExpectExec(`UPDATE transfer_documents`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.Mock.ExpectRollback()

	repo := NewRepository(mock.DB)
	err := repo.ApplyTransition(context.Background(), "missing", StatusUpdate{
		Previous: docflow.StatusDraft,
		Status:   docflow.StatusSubmitted,
		ActorID:  "owner-1",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestSetPostedOnlyOnce(t *testing.T) {
	mock := testutil.NewMockDB(t)

	mock.Mock.ExpectBegin()
	mock.Mock.ExpectExec(`UPDATE transfer_documents`).
		WithArgs("doc-1", "30110").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.Mock.ExpectExec(`INSERT INTO transfer_status_history`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.Mock.ExpectCommit()

	mock.Mock.ExpectBegin()
	mock.Mock.ExpectExec(`UPDATE transfer_documents`).
		WithArgs("doc-1", "30111").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.Mock.ExpectRollback()

	repo := NewRepository(mock.DB)
	require.NoError(t, repo.SetPosted(context.Background(), "doc-1", "30110", "qc-1"))

	err := repo.SetPosted(context.Background(), "doc-1", "30111", "qc-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConflict))
	mock.AssertExpectations(t)
}
