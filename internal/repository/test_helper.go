package repository

import (
	"context"
	"testing"
	"time"

	"github.com/nimasrn/school-treasury/pkg/pg"
	"github.com/stretchr/testify/require"
)

// NewTestLedger returns a ledger backed by a private in-memory sqlite
// database. The pool holds a single connection, so concurrent postings
// queue on it the way they queue on the row lock in postgres.
func NewTestLedger(t testing.TB) *LedgerRepository {
	t.Helper()

	db, err := pg.CreateSQLite(":memory:", false)
	require.NoError(t, err)

	repo := NewLedgerRepository(db, defaultMaxRetries)
	require.NoError(t, repo.AutoMigrate(context.Background()))
	return repo
}

// SetClock replaces the time source used to stamp new rows.
func (r *LedgerRepository) SetClock(now func() time.Time) {
	r.now = now
}
