package db

import (
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

// sqlmockDB returns a mock database that accepts any transaction life cycle.
func sqlmockDB(t *testing.T) (*sql.DB, func()) {
	t.Helper()
	database, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(false))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	mock.MatchExpectationsInOrder(false)
	// The fake migrations never issue SQL, but the manager begins and
	// commits/rolls back a transaction per applied migration.
	for i := 0; i < 8; i++ {
		mock.ExpectBegin()
		mock.ExpectCommit()
		mock.ExpectRollback()
	}
	return database, func() { _ = database.Close() }
}
