package services

import (
	"context"
	"testing"

	"github.com/nimasrn/school-treasury/internal/model"
	"github.com/nimasrn/school-treasury/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var bursar = model.Actor{ID: "bursar-1", Role: "treasurer"}

type MockAuthorizer struct {
	mock.Mock
}

func (m *MockAuthorizer) Authorize(ctx context.Context, actor model.Actor, action model.Action) error {
	args := m.Called(ctx, actor, action)
	return args.Error(0)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, events ...model.LedgerEvent) error {
	args := m.Called(ctx, events)
	return args.Error(0)
}

type allowAll struct{}

func (allowAll) Authorize(context.Context, model.Actor, model.Action) error { return nil }

func newTestService(t *testing.T) (*TreasuryService, *repository.LedgerRepository) {
	t.Helper()
	repo := repository.NewTestLedger(t)
	return NewTreasuryService(repo, allowAll{}, nil, DefaultOptions()), repo
}

// seed posts a plain cash movement so tests can start from a known balance.
func seed(t *testing.T, s *TreasuryService, typ model.TransactionType, amount int64) *model.Transaction {
	t.Helper()
	result, err := s.RecordTransaction(context.Background(), bursar, model.RecordRequest{Type: typ, Amount: amount})
	require.NoError(t, err)
	return result.Transaction
}

// assertLedgerConsistent checks snapshot consistency and non-negativity.
func assertLedgerConsistent(t *testing.T, repo *repository.LedgerRepository) {
	t.Helper()
	ctx := context.Background()

	rec, err := repo.Reconcile(ctx)
	require.NoError(t, err)
	assert.True(t, rec.Consistent, "replay %+v vs snapshot %+v", rec.Replayed, rec.Snapshot)

	for _, loc := range model.Locations {
		assert.GreaterOrEqual(t, rec.Snapshot.Get(loc), int64(0), "location %s", loc)
	}
}

func countTransactions(t *testing.T, repo *repository.LedgerRepository) int64 {
	t.Helper()
	_, total, err := repo.ListTransactions(context.Background(), model.TransactionFilter{})
	require.NoError(t, err)
	return total
}
