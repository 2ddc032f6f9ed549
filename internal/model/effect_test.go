package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactionType_Table(t *testing.T) {
	cases := []struct {
		typ       TransactionType
		effect    TransactionEffect
		direction Direction
		reversal  TransactionType
	}{
		{TypeStudentPayment, CashMovement{LocationSafe}, DirectionIn, TypeReversalStudentPayment},
		{TypeExpensePayment, CashMovement{LocationSafe}, DirectionOut, TypeReversalExpensePayment},
		{TypeAdjustment, CashMovement{LocationSafe}, "", TypeAdjustment},
		{TypeRegistryAdjustment, CashMovement{LocationRegistry}, "", TypeAdjustment},
		{TypeMobileMoneyIncome, CashMovement{LocationMobileMoney}, DirectionIn, TypeReversalMobileMoney},
		{TypeMobileMoneyPayment, CashMovement{LocationMobileMoney}, DirectionOut, TypeReversalMobileMoney},
		{TypeMobileMoneyFee, CashMovement{LocationMobileMoney}, DirectionOut, TypeReversalMobileMoney},
		{TypeBankDeposit, InterLocationTransfer{LocationSafe, LocationBank}, DirectionOut, TypeReversalBankDeposit},
		{TypeBankWithdrawal, InterLocationTransfer{LocationSafe, LocationBank}, DirectionIn, TypeReversalBankDeposit},
		{TypeSafeToRegistry, InterLocationTransfer{LocationSafe, LocationRegistry}, DirectionOut, TypeAdjustment},
		{TypeRegistryToSafe, InterLocationTransfer{LocationSafe, LocationRegistry}, DirectionIn, TypeAdjustment},
	}

	for _, tc := range cases {
		t.Run(string(tc.typ), func(t *testing.T) {
			effect, ok := tc.typ.Effect()
			require.True(t, ok)
			assert.Equal(t, tc.effect, effect)
			assert.Equal(t, tc.direction, tc.typ.DefaultDirection())
			assert.Equal(t, tc.reversal, tc.typ.ReversalType())
			assert.False(t, tc.typ.IsReversalType())
		})
	}
}

func TestTransactionType_ReversalTypesAreNotRecordable(t *testing.T) {
	for _, typ := range []TransactionType{
		TypeReversalStudentPayment, TypeReversalExpensePayment,
		TypeReversalBankDeposit, TypeReversalMobileMoney,
	} {
		assert.True(t, typ.Valid())
		assert.True(t, typ.IsReversalType())
		_, ok := typ.Effect()
		assert.False(t, ok)
	}
	assert.False(t, TransactionType("tuition").Valid())
	assert.Len(t, AllTransactionTypes, 15)
}

func TestTransactionType_CorrectionType(t *testing.T) {
	cases := []struct {
		original TransactionType
		method   PaymentMethod
		want     TransactionType
	}{
		{TypeStudentPayment, "", TypeStudentPayment},
		{TypeStudentPayment, MethodCash, TypeStudentPayment},
		{TypeStudentPayment, MethodMobileMoney, TypeMobileMoneyIncome},
		{TypeMobileMoneyIncome, MethodCash, TypeStudentPayment},
		{TypeExpensePayment, MethodMobileMoney, TypeMobileMoneyPayment},
		{TypeMobileMoneyPayment, MethodCash, TypeExpensePayment},
		{TypeBankDeposit, "", TypeBankDeposit},
	}
	for _, tc := range cases {
		got, err := tc.original.CorrectionType(tc.method)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "%s via %q", tc.original, tc.method)
	}

	var validation *ValidationError
	_, err := TypeBankDeposit.CorrectionType(MethodCash)
	require.True(t, errors.As(err, &validation))
	assert.Equal(t, "method", validation.Field)

	_, err = TypeMobileMoneyFee.CorrectionType(MethodMobileMoney)
	assert.True(t, errors.As(err, &validation))

	_, err = TypeStudentPayment.CorrectionType(PaymentMethod("card"))
	assert.True(t, errors.As(err, &validation))
}

func TestEffectOf_ReversalUsesOriginal(t *testing.T) {
	originalID := int64(7)
	original := &Transaction{ID: 7, Type: TypeSafeToRegistry}
	reversal := &Transaction{ID: 8, Type: TypeAdjustment, IsReversal: true, OriginalTransactionID: &originalID}

	effect, err := EffectOf(reversal, original)
	require.NoError(t, err)
	assert.Equal(t, InterLocationTransfer{LocationSafe, LocationRegistry}, effect)

	_, err = EffectOf(reversal, nil)
	assert.Error(t, err)

	_, err = EffectOf(reversal, &Transaction{ID: 7, IsReversal: true})
	assert.Error(t, err)
}

func TestErrors_Classification(t *testing.T) {
	float := NewInsufficientFundsForFloat(10000, 20000)
	assert.True(t, errors.Is(float, ErrInsufficientFundsForFloat))

	var funds *InsufficientFundsError
	require.True(t, errors.As(float, &funds))
	assert.Equal(t, int64(10000), funds.Shortfall)
	assert.Equal(t, "insufficient_funds_for_float", Reason(float))

	assert.True(t, IsBusinessError(NewValidationError("reason", "too short")))
	assert.True(t, IsBusinessError(ErrAlreadyOpened))
	assert.False(t, IsBusinessError(ErrMaxRetriesExceeded))
	assert.False(t, IsBusinessError(errors.New("connection reset")))
	assert.Equal(t, "internal", Reason(errors.New("boom")))
}
