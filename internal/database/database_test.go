package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSQLiteAppliesSchema(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, DriverSQLite, ":memory:")
	require.NoError(t, err)
	defer db.Close()

	var tables int
	err = db.GetContext(ctx, &tables, `
		SELECT COUNT(*) FROM sqlite_master
		WHERE type = 'table' AND name IN ('books', 'students', 'transactions', 'events')
	`)
	require.NoError(t, err)
	assert.Equal(t, 4, tables)

	// Applying the schema twice is a no-op.
	require.NoError(t, Migrate(ctx, db))
}

func TestIsUniqueViolation(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, DriverSQLite, ":memory:")
	require.NoError(t, err)
	defer db.Close()

	insert := db.Rebind(`INSERT INTO students (id, name, roll_no, created_at) VALUES (?, ?, ?, ?)`)
	_, err = db.ExecContext(ctx, insert, "s-1", "Ada", "R-1", time.Now().UTC())
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, insert, "s-2", "Grace", "R-1", time.Now().UTC())
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))

	assert.True(t, IsUniqueViolation(&pq.Error{Code: "23505"}))
	assert.False(t, IsUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, IsUniqueViolation(errors.New("boom")))
	assert.False(t, IsUniqueViolation(nil))
}

func TestOpenAllowsOnlyOneOpenLoanPerPair(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, DriverSQLite, ":memory:")
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC()
	_, err = db.ExecContext(ctx, db.Rebind(`INSERT INTO students (id, name, roll_no, created_at) VALUES (?, ?, ?, ?)`),
		"s-1", "Ada", "R-1", now)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, db.Rebind(`
		INSERT INTO books (id, title, total_copies, available_copies, scan_code, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`), "b-1", "Dune", 2, 2, "code", now)
	require.NoError(t, err)

	insertLoan := db.Rebind(`
		INSERT INTO transactions (id, student_id, book_id, kind, status, issue_date, due_date)
		VALUES (?, ?, ?, 'issue', ?, ?, ?)`)

	_, err = db.ExecContext(ctx, insertLoan, "t-1", "s-1", "b-1", "returned", now, now)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, insertLoan, "t-2", "s-1", "b-1", "active", now, now)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, insertLoan, "t-3", "s-1", "b-1", "active", now, now)
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))
}

func TestCopyCountCheckConstraint(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, DriverSQLite, ":memory:")
	require.NoError(t, err)
	defer db.Close()

	_, err = db.ExecContext(ctx, db.Rebind(`
		INSERT INTO books (id, title, total_copies, available_copies, scan_code, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`), "b-1", "Dune", 1, 2, "code", time.Now().UTC())
	assert.Error(t, err)
}
