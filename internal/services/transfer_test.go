package services

import (
	"context"
	"errors"
	"testing"

	"github.com/nimasrn/school-treasury/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransferEngine_SafeRegistry(t *testing.T) {
	s, repo := newTestService(t)
	ctx := context.Background()
	seed(t, s, model.TypeStudentPayment, 8000)

	out, err := s.TransferSafeRegistry(ctx, bursar, model.SafeRegistryTransferRequest{
		Direction: model.TransferSafeToRegistry,
		Amount:    3000,
		Notes:     "extra change for fees day",
	})
	require.NoError(t, err)
	assert.Equal(t, model.TypeSafeToRegistry, out.Transaction.Type)
	assert.Equal(t, model.Balances{Safe: 5000, Registry: 3000}, out.Transaction.BalancesAfter())

	back, err := s.TransferSafeRegistry(ctx, bursar, model.SafeRegistryTransferRequest{
		Direction: model.TransferRegistryToSafe,
		Amount:    2000,
		Notes:     "end of day deposit",
	})
	require.NoError(t, err)
	assert.Equal(t, model.TypeRegistryToSafe, back.Transaction.Type)
	assert.Equal(t, model.DirectionIn, back.Transaction.Direction)
	assert.Equal(t, model.Balances{Safe: 7000, Registry: 1000}, back.Balances.Balances)

	_, err = s.TransferSafeRegistry(ctx, bursar, model.SafeRegistryTransferRequest{
		Direction: model.TransferRegistryToSafe,
		Amount:    1500,
		Notes:     "too much back",
	})
	var funds *model.InsufficientFundsError
	require.True(t, errors.As(err, &funds))
	assert.Equal(t, model.LocationRegistry, funds.Location)

	assertLedgerConsistent(t, repo)
}

func TestTransferEngine_SafeRegistryValidation(t *testing.T) {
	s, repo := newTestService(t)
	ctx := context.Background()
	seed(t, s, model.TypeStudentPayment, 8000)

	cases := []struct {
		name  string
		req   model.SafeRegistryTransferRequest
		field string
	}{
		{"bad direction", model.SafeRegistryTransferRequest{Direction: "bank_to_moon", Amount: 10, Notes: "valid notes"}, "direction"},
		{"zero amount", model.SafeRegistryTransferRequest{Direction: model.TransferSafeToRegistry, Notes: "valid notes"}, "amount"},
		{"missing notes", model.SafeRegistryTransferRequest{Direction: model.TransferSafeToRegistry, Amount: 10}, "notes"},
		{"short notes", model.SafeRegistryTransferRequest{Direction: model.TransferSafeToRegistry, Amount: 10, Notes: "ok "}, "notes"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.TransferSafeRegistry(ctx, bursar, tc.req)
			var validation *model.ValidationError
			require.True(t, errors.As(err, &validation))
			assert.Equal(t, tc.field, validation.Field)
		})
	}
	assert.Equal(t, int64(1), countTransactions(t, repo))
}

func TestTransferEngine_Bank(t *testing.T) {
	s, repo := newTestService(t)
	ctx := context.Background()
	seed(t, s, model.TypeStudentPayment, 8000)

	deposit, err := s.TransferBank(ctx, bursar, model.BankTransferRequest{
		Kind:          model.BankDeposit,
		Amount:        6000,
		BankName:      "Equity",
		BankReference: "DEP-0091",
		CarriedBy:     "J. Mwangi",
	})
	require.NoError(t, err)
	assert.Equal(t, model.TypeBankDeposit, deposit.Transaction.Type)
	assert.Equal(t, "DEP-0091", deposit.Transaction.BankReference)
	assert.Equal(t, "J. Mwangi", deposit.Transaction.CarriedBy)
	assert.Equal(t, model.Balances{Safe: 2000, Bank: 6000}, deposit.Balances.Balances)

	withdrawal, err := s.TransferBank(ctx, bursar, model.BankTransferRequest{Kind: model.BankWithdrawal, Amount: 1000})
	require.NoError(t, err)
	assert.Equal(t, model.TypeBankWithdrawal, withdrawal.Transaction.Type)
	assert.Equal(t, model.Balances{Safe: 3000, Bank: 5000}, withdrawal.Balances.Balances)

	_, err = s.TransferBank(ctx, bursar, model.BankTransferRequest{Kind: model.BankWithdrawal, Amount: 9000})
	var funds *model.InsufficientFundsError
	require.True(t, errors.As(err, &funds))
	assert.Equal(t, model.LocationBank, funds.Location)

	_, err = s.TransferBank(ctx, bursar, model.BankTransferRequest{Kind: "wire", Amount: 10})
	var validation *model.ValidationError
	assert.True(t, errors.As(err, &validation))

	assertLedgerConsistent(t, repo)
}
