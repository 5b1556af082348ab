// Package testutil provides helpers for unit tests backed by sqlmock.
package testutil

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stockbridge/stockbridge-backend/pkg/database"
	"github.com/stockbridge/stockbridge-backend/pkg/logger"
)

// MockDB bundles a sqlmock-backed database with its expectation handle.
type MockDB struct {
	DB   *database.DB
	Mock sqlmock.Sqlmock
}

// NewMockDB creates a database handle backed by sqlmock. The returned mock
// uses regexp query matching, so expectations may quote fragments of SQL.
func NewMockDB(t *testing.T) *MockDB {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	sqlxDB := sqlx.NewDb(db, "sqlmock")
	t.Cleanup(func() { sqlxDB.Close() })

	return &MockDB{
		DB:   database.NewFromSqlx(sqlxDB, logger.Nop()),
		Mock: mock,
	}
}

// AssertExpectations fails the test if any expectation was not met.
func (m *MockDB) AssertExpectations(t *testing.T) {
	t.Helper()
	if err := m.Mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet sqlmock expectations: %v", err)
	}
}
