package services

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/nimasrn/school-treasury/internal/model"
	"github.com/nimasrn/school-treasury/internal/repository"
)

// Ledger is the slice of the ledger store the posting components use.
type Ledger interface {
	GetBalances(ctx context.Context) (model.BalanceSnapshot, error)
	Post(ctx context.Context, plan repository.PlanFunc) ([]*model.Transaction, model.BalanceSnapshot, error)
	FindTransaction(ctx context.Context, id int64) (*model.Transaction, error)
	FindReversalOf(ctx context.Context, originalID int64) (*model.Transaction, error)
}

// TreasuryLedger adds the read and maintenance operations exposed by the
// facade.
type TreasuryLedger interface {
	Ledger
	ListTransactions(ctx context.Context, filter model.TransactionFilter) ([]*model.Transaction, int64, error)
	Reconcile(ctx context.Context) (*model.Reconciliation, error)
	UpdateFloatTarget(ctx context.Context, amount int64) (model.BalanceSnapshot, error)
}

type Options struct {
	MinReasonLength     int
	MinNotesLength      int
	DiscrepancyWarning  int64
	DiscrepancyCritical int64
}

func DefaultOptions() Options {
	return Options{
		MinReasonLength:     5,
		MinNotesLength:      5,
		DiscrepancyWarning:  1000,
		DiscrepancyCritical: 10000,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MinReasonLength <= 0 {
		o.MinReasonLength = d.MinReasonLength
	}
	if o.MinNotesLength <= 0 {
		o.MinNotesLength = d.MinNotesLength
	}
	if o.DiscrepancyWarning <= 0 {
		o.DiscrepancyWarning = d.DiscrepancyWarning
	}
	if o.DiscrepancyCritical <= 0 {
		o.DiscrepancyCritical = d.DiscrepancyCritical
	}
	return o
}

// requireText trims s and checks it holds at least min characters.
func requireText(field, s string, min int) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", model.NewValidationError(field, "is required")
	}
	if utf8.RuneCountInString(s) < min {
		return "", model.NewValidationError(field, fmt.Sprintf("must be at least %d characters", min))
	}
	return s, nil
}

func requirePositive(field string, amount int64) error {
	if amount <= 0 {
		return model.NewValidationError(field, "must be a positive integer")
	}
	return nil
}
