package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nimasrn/school-treasury/internal/model"
	"github.com/nimasrn/school-treasury/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReversalEngine_Preconditions(t *testing.T) {
	s, repo := newTestService(t)
	engine := NewReversalEngine(repo, 5)
	ctx := context.Background()
	original := seed(t, s, model.TypeStudentPayment, 1000)

	t.Run("reason too short", func(t *testing.T) {
		_, err := engine.Reverse(ctx, bursar, model.ReverseRequest{OriginalTransactionID: original.ID, Reason: " oops "})
		var validation *model.ValidationError
		require.True(t, errors.As(err, &validation))
		assert.Equal(t, "reason", validation.Field)
	})

	t.Run("reason missing", func(t *testing.T) {
		_, err := engine.Reverse(ctx, bursar, model.ReverseRequest{OriginalTransactionID: original.ID})
		var validation *model.ValidationError
		assert.True(t, errors.As(err, &validation))
	})

	t.Run("not found", func(t *testing.T) {
		_, err := engine.Reverse(ctx, bursar, model.ReverseRequest{OriginalTransactionID: 404, Reason: "missing row"})
		assert.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("invalid correction amount", func(t *testing.T) {
		_, err := engine.Reverse(ctx, bursar, model.ReverseRequest{
			OriginalTransactionID: original.ID,
			Reason:                "wrong amount",
			Kind:                  model.ReversalWithCorrection{Amount: 0},
		})
		var validation *model.ValidationError
		require.True(t, errors.As(err, &validation))
		assert.Equal(t, "correction_amount", validation.Field)
	})

	t.Run("invalid correction method", func(t *testing.T) {
		_, err := engine.Reverse(ctx, bursar, model.ReverseRequest{
			OriginalTransactionID: original.ID,
			Reason:                "wrong method",
			Kind:                  model.ReversalWithCorrection{Amount: 10, Method: "cheque"},
		})
		var validation *model.ValidationError
		require.True(t, errors.As(err, &validation))
		assert.Equal(t, "correction_method", validation.Field)
	})

	assert.Equal(t, int64(1), countTransactions(t, repo))
}

func TestReversalEngine_InsufficientFunds(t *testing.T) {
	s, repo := newTestService(t)
	ctx := context.Background()
	payment := seed(t, s, model.TypeStudentPayment, 1000)
	_, err := s.RecordTransaction(ctx, bursar, model.RecordRequest{Type: model.TypeExpensePayment, Amount: 800})
	require.NoError(t, err)

	_, err = s.ReverseTransaction(ctx, bursar, model.ReverseRequest{OriginalTransactionID: payment.ID, Reason: "bounced payment"})
	var funds *model.InsufficientFundsError
	require.True(t, errors.As(err, &funds))
	assert.Equal(t, model.LocationSafe, funds.Location)
	assert.Equal(t, int64(800), funds.Shortfall)

	_, err = repo.FindReversalOf(ctx, payment.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
	assertLedgerConsistent(t, repo)
}

func TestReversalEngine_WithCorrection(t *testing.T) {
	t.Run("same method different amount", func(t *testing.T) {
		s, repo := newTestService(t)
		ctx := context.Background()
		original := seed(t, s, model.TypeStudentPayment, 5000)

		result, err := s.ReverseTransaction(ctx, bursar, model.ReverseRequest{
			OriginalTransactionID: original.ID,
			Reason:                "amount typed wrong",
			Kind:                  model.ReversalWithCorrection{Amount: 4500},
		})
		require.NoError(t, err)
		require.NotNil(t, result.Correction)

		corr := result.Correction
		assert.Equal(t, model.TypeStudentPayment, corr.Type)
		assert.Equal(t, model.DirectionIn, corr.Direction)
		assert.Equal(t, int64(4500), corr.Amount)
		assert.False(t, corr.IsReversal)
		require.NotNil(t, corr.OriginalTransactionID)
		assert.Equal(t, original.ID, *corr.OriginalTransactionID)
		assert.Greater(t, corr.ID, result.Reversal.ID)
		assert.Equal(t, int64(0), result.Reversal.SafeBalanceAfter)
		assert.Equal(t, int64(4500), result.Balances.Safe)

		chained, total, err := repo.ListTransactions(ctx, model.TransactionFilter{OriginalTransactionID: &original.ID})
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)
		assert.Len(t, chained, 2)
		assertLedgerConsistent(t, repo)
	})

	t.Run("switch income to mobile money", func(t *testing.T) {
		s, repo := newTestService(t)
		ctx := context.Background()
		original := seed(t, s, model.TypeStudentPayment, 3000)

		result, err := s.ReverseTransaction(ctx, bursar, model.ReverseRequest{
			OriginalTransactionID: original.ID,
			Reason:                "paid by phone",
			Kind:                  model.ReversalWithCorrection{Amount: 3000, Method: model.MethodMobileMoney},
		})
		require.NoError(t, err)
		assert.Equal(t, model.TypeMobileMoneyIncome, result.Correction.Type)
		assert.Equal(t, model.Balances{MobileMoney: 3000}, result.Balances.Balances)
		assertLedgerConsistent(t, repo)
	})

	t.Run("failing correction leaves no reversal", func(t *testing.T) {
		s, repo := newTestService(t)
		ctx := context.Background()
		seed(t, s, model.TypeStudentPayment, 1000)
		expense := seed(t, s, model.TypeExpensePayment, 600)

		// Reversal returns 600 to the safe; re-paying 5000 in cash cannot.
		_, err := s.ReverseTransaction(ctx, bursar, model.ReverseRequest{
			OriginalTransactionID: expense.ID,
			Reason:                "supplier overcharged",
			Kind:                  model.ReversalWithCorrection{Amount: 5000},
		})
		assert.ErrorIs(t, err, model.ErrInsufficientFunds)

		_, err = repo.FindReversalOf(ctx, expense.ID)
		assert.ErrorIs(t, err, model.ErrNotFound)
		assert.Equal(t, int64(2), countTransactions(t, repo))
	})

	t.Run("method not allowed for transfer types", func(t *testing.T) {
		s, repo := newTestService(t)
		ctx := context.Background()
		seed(t, s, model.TypeStudentPayment, 1000)
		deposit := seed(t, s, model.TypeBankDeposit, 400)

		_, err := s.ReverseTransaction(ctx, bursar, model.ReverseRequest{
			OriginalTransactionID: deposit.ID,
			Reason:                "deposited twice",
			Kind:                  &model.ReversalWithCorrection{Amount: 400, Method: model.MethodCash},
		})
		var validation *model.ValidationError
		require.True(t, errors.As(err, &validation))
		assert.Equal(t, int64(2), countTransactions(t, repo))
	})
}

func TestReversalEngine_CorrectionRowIsReversible(t *testing.T) {
	s, repo := newTestService(t)
	ctx := context.Background()
	original := seed(t, s, model.TypeStudentPayment, 2000)

	first, err := s.ReverseTransaction(ctx, bursar, model.ReverseRequest{
		OriginalTransactionID: original.ID,
		Reason:                "wrong amount",
		Kind:                  model.ReversalWithCorrection{Amount: 1500},
	})
	require.NoError(t, err)

	second, err := s.ReverseTransaction(ctx, bursar, model.ReverseRequest{
		OriginalTransactionID: first.Correction.ID,
		Reason:                "still wrong",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), second.Balances.Safe)
	assertLedgerConsistent(t, repo)
}

func TestReversalEngine_UsesReversalTypeTable(t *testing.T) {
	repo := repository.NewTestLedger(t)
	s := NewTreasuryService(repo, allowAll{}, nil, DefaultOptions())
	ctx := context.Background()
	seed(t, s, model.TypeStudentPayment, 9000)
	deposit := seed(t, s, model.TypeBankDeposit, 5000)

	bank, err := s.RecordTransaction(ctx, bursar, model.RecordRequest{Type: model.TypeBankWithdrawal, Amount: 1000})
	require.NoError(t, err)

	result, err := s.ReverseTransaction(ctx, bursar, model.ReverseRequest{OriginalTransactionID: bank.Transaction.ID, Reason: "never left bank"})
	require.NoError(t, err)
	assert.Equal(t, model.TypeReversalBankDeposit, result.Reversal.Type)
	assert.Equal(t, model.DirectionOut, result.Reversal.Direction)
	assert.Equal(t, model.Balances{Safe: 4000, Bank: 5000}, result.Balances.Balances)

	_, err = s.ReverseTransaction(ctx, bursar, model.ReverseRequest{OriginalTransactionID: deposit.ID, Reason: "cash never left"})
	require.NoError(t, err)
	assertLedgerConsistent(t, repo)
}

func TestLedgerClock_StampsEngineRows(t *testing.T) {
	s, repo := newTestService(t)
	ctx := context.Background()

	day1 := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	repo.SetClock(func() time.Time { return day1 })
	original := seed(t, s, model.TypeStudentPayment, 5000)
	assert.True(t, original.RecordedAt.Equal(day1))

	day2 := time.Date(2026, 3, 3, 14, 15, 0, 0, time.UTC)
	repo.SetClock(func() time.Time { return day2 })

	reversed, err := s.ReverseTransaction(ctx, bursar, model.ReverseRequest{
		OriginalTransactionID: original.ID,
		Reason:                "amount typed wrong",
		Kind:                  model.ReversalWithCorrection{Amount: 4000},
	})
	require.NoError(t, err)
	assert.True(t, reversed.Reversal.RecordedAt.Equal(day2), "reversal at %s", reversed.Reversal.RecordedAt)
	require.NotNil(t, reversed.Reversal.ReversedAt)
	assert.True(t, reversed.Reversal.ReversedAt.Equal(day2))
	assert.True(t, reversed.Correction.RecordedAt.Equal(day2))

	stored, err := repo.FindTransaction(ctx, reversed.Reversal.ID)
	require.NoError(t, err)
	assert.True(t, stored.RecordedAt.Equal(day2))
	require.NotNil(t, stored.ReversedAt)
	assert.True(t, stored.ReversedAt.Equal(day2))

	day3 := time.Date(2026, 3, 4, 7, 30, 0, 0, time.UTC)
	repo.SetClock(func() time.Time { return day3 })
	opened, err := s.ConfirmOpening(ctx, bursar, model.OpeningRequest{CountedSafeBalance: 4000, FloatAmount: 1000})
	require.NoError(t, err)
	assert.True(t, opened.Transfer.RecordedAt.Equal(day3))
	assert.Equal(t, "2026-03-04", opened.Transfer.ReferenceID)
}
