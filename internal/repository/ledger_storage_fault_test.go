package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/nimasrn/school-treasury/internal/model"
	"github.com/nimasrn/school-treasury/pkg/pg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newMockLedger(t *testing.T) (*LedgerRepository, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), pg.GormConfig(false))
	require.NoError(t, err)

	return NewLedgerRepository(pg.Wrap(db), defaultMaxRetries), mock
}

func TestLedgerRepository_PostStorageFault(t *testing.T) {
	repo, mock := newMockLedger(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM "treasury_balances"`).
		WillReturnError(errors.New("connection reset by peer"))
	mock.ExpectRollback()

	planned := false
	_, _, err := repo.Post(ctx, func(ctx context.Context, current model.BalanceSnapshot) ([]*model.Transaction, error) {
		planned = true
		return nil, nil
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "lock balance snapshot")
	assert.False(t, model.IsBusinessError(err))
	assert.False(t, planned, "plan must not run without the lock")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepository_GetBalancesStorageFault(t *testing.T) {
	repo, mock := newMockLedger(t)

	mock.ExpectQuery(`SELECT .* FROM "treasury_balances"`).
		WillReturnError(errors.New("too many connections"))

	_, err := repo.GetBalances(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get balances")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepository_FindTransactionStorageFault(t *testing.T) {
	repo, mock := newMockLedger(t)

	mock.ExpectQuery(`SELECT .* FROM "treasury_transactions"`).
		WillReturnError(errors.New("read timeout"))

	_, err := repo.FindTransaction(context.Background(), 42)
	require.Error(t, err)
	assert.NotErrorIs(t, err, model.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
