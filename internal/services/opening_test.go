package services

import (
	"context"
	"errors"
	"testing"

	"github.com/nimasrn/school-treasury/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpeningWorkflow_Preview(t *testing.T) {
	s, repo := newTestService(t)
	ctx := context.Background()
	seed(t, s, model.TypeStudentPayment, 40000)

	t.Run("negative count rejected", func(t *testing.T) {
		_, err := s.PreviewOpening(ctx, bursar, -1)
		var validation *model.ValidationError
		assert.True(t, errors.As(err, &validation))
	})

	t.Run("surplus is positive", func(t *testing.T) {
		preview, err := s.PreviewOpening(ctx, bursar, 40500)
		require.NoError(t, err)
		assert.Equal(t, int64(500), preview.Discrepancy)
		assert.Equal(t, model.SeverityNormal, preview.Severity)
	})

	t.Run("large gap is critical", func(t *testing.T) {
		preview, err := s.PreviewOpening(ctx, bursar, 20000)
		require.NoError(t, err)
		assert.Equal(t, model.SeverityCritical, preview.Severity)
	})

	assert.Equal(t, int64(1), countTransactions(t, repo))
}

func TestOpeningWorkflow_Confirm(t *testing.T) {
	t.Run("surplus adjustment goes in", func(t *testing.T) {
		s, repo := newTestService(t)
		ctx := context.Background()
		seed(t, s, model.TypeStudentPayment, 10000)

		result, err := s.ConfirmOpening(ctx, bursar, model.OpeningRequest{CountedSafeBalance: 10300, FloatAmount: 3000})
		require.NoError(t, err)
		require.NotNil(t, result.Adjustment)
		assert.Equal(t, model.DirectionIn, result.Adjustment.Direction)
		assert.Equal(t, int64(300), result.Adjustment.Amount)
		assert.Equal(t, "daily_opening", result.Transfer.ReferenceType)
		assert.Equal(t, int64(7300), result.Balances.Safe)
		assert.Equal(t, int64(3000), result.Balances.Registry)
		assertLedgerConsistent(t, repo)
	})

	t.Run("already opened", func(t *testing.T) {
		s, repo := newTestService(t)
		ctx := context.Background()
		seed(t, s, model.TypeStudentPayment, 10000)

		_, err := s.ConfirmOpening(ctx, bursar, model.OpeningRequest{CountedSafeBalance: 10000, FloatAmount: 2000})
		require.NoError(t, err)

		_, err = s.PreviewOpening(ctx, bursar, 8000)
		assert.ErrorIs(t, err, model.ErrAlreadyOpened)
		_, err = s.ConfirmOpening(ctx, bursar, model.OpeningRequest{CountedSafeBalance: 8000, FloatAmount: 2000})
		assert.ErrorIs(t, err, model.ErrAlreadyOpened)
		assert.Equal(t, int64(2), countTransactions(t, repo))
	})

	t.Run("count below float", func(t *testing.T) {
		s, repo := newTestService(t)
		ctx := context.Background()
		seed(t, s, model.TypeStudentPayment, 10000)

		_, err := s.ConfirmOpening(ctx, bursar, model.OpeningRequest{CountedSafeBalance: 9000, FloatAmount: 15000})
		require.ErrorIs(t, err, model.ErrInsufficientFundsForFloat)

		var funds *model.InsufficientFundsError
		require.True(t, errors.As(err, &funds))
		assert.Equal(t, model.LocationSafe, funds.Location)
		assert.Equal(t, int64(6000), funds.Shortfall)
		assert.Equal(t, int64(1), countTransactions(t, repo))
	})

	t.Run("float defaults to target", func(t *testing.T) {
		s, repo := newTestService(t)
		ctx := context.Background()
		seed(t, s, model.TypeStudentPayment, 10000)

		_, err := s.ConfirmOpening(ctx, bursar, model.OpeningRequest{CountedSafeBalance: 10000})
		var validation *model.ValidationError
		require.True(t, errors.As(err, &validation))
		assert.Equal(t, "float_amount", validation.Field)

		_, err = s.UpdateFloatTarget(ctx, bursar, 2500)
		require.NoError(t, err)

		result, err := s.ConfirmOpening(ctx, bursar, model.OpeningRequest{CountedSafeBalance: 10000})
		require.NoError(t, err)
		assert.Equal(t, int64(2500), result.FloatAmount)
		assert.Equal(t, int64(2500), result.Balances.Registry)
		assert.Equal(t, int64(2500), result.Balances.RegistryFloatAmount)
		assertLedgerConsistent(t, repo)
	})

	t.Run("empty safe count of zero", func(t *testing.T) {
		s, repo := newTestService(t)
		ctx := context.Background()
		seed(t, s, model.TypeStudentPayment, 500)

		_, err := s.ConfirmOpening(ctx, bursar, model.OpeningRequest{CountedSafeBalance: 0, FloatAmount: 100})
		assert.ErrorIs(t, err, model.ErrInsufficientFundsForFloat)
		assert.Equal(t, int64(1), countTransactions(t, repo))
	})

	t.Run("discrepancy recomputed at confirm", func(t *testing.T) {
		s, repo := newTestService(t)
		ctx := context.Background()
		seed(t, s, model.TypeStudentPayment, 10000)

		preview, err := s.PreviewOpening(ctx, bursar, 10000)
		require.NoError(t, err)
		assert.Equal(t, int64(0), preview.Discrepancy)

		// a payment lands between preview and confirm
		seed(t, s, model.TypeStudentPayment, 700)

		result, err := s.ConfirmOpening(ctx, bursar, model.OpeningRequest{CountedSafeBalance: 10000, FloatAmount: 1000})
		require.NoError(t, err)
		assert.Equal(t, int64(10700), result.ExpectedSafeBalance)
		assert.Equal(t, int64(-700), result.Discrepancy)
		require.NotNil(t, result.Adjustment)
		assert.Equal(t, int64(9000), result.Balances.Safe)
		assertLedgerConsistent(t, repo)
	})
}

func TestSeverityClassifier(t *testing.T) {
	c := SeverityClassifier{Warning: 1000, Critical: 10000}
	assert.Equal(t, model.SeverityNone, c.Classify(0))
	assert.Equal(t, model.SeverityNormal, c.Classify(-999))
	assert.Equal(t, model.SeverityWarning, c.Classify(1000))
	assert.Equal(t, model.SeverityWarning, c.Classify(-9999))
	assert.Equal(t, model.SeverityCritical, c.Classify(10000))
	assert.Equal(t, model.SeverityCritical, c.Classify(-25000))
}
