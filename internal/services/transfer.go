package services

import (
	"context"

	"github.com/nimasrn/school-treasury/internal/model"
)

// TransferEngine moves money between the safe and the registry or the bank
// outside the daily opening.
type TransferEngine struct {
	ledger         Ledger
	minNotesLength int
}

func NewTransferEngine(ledger Ledger, minNotesLength int) *TransferEngine {
	if minNotesLength <= 0 {
		minNotesLength = DefaultOptions().MinNotesLength
	}
	return &TransferEngine{ledger: ledger, minNotesLength: minNotesLength}
}

func (e *TransferEngine) SafeRegistry(ctx context.Context, actor model.Actor, req model.SafeRegistryTransferRequest) (*model.PostingResult, error) {
	var typ model.TransactionType
	switch req.Direction {
	case model.TransferSafeToRegistry:
		typ = model.TypeSafeToRegistry
	case model.TransferRegistryToSafe:
		typ = model.TypeRegistryToSafe
	default:
		return nil, model.NewValidationError("direction", "must be safe_to_registry or registry_to_safe")
	}
	if err := requirePositive("amount", req.Amount); err != nil {
		return nil, err
	}
	notes, err := requireText("notes", req.Notes, e.minNotesLength)
	if err != nil {
		return nil, err
	}

	draft := &model.Transaction{
		Type:        typ,
		Direction:   typ.DefaultDirection(),
		Amount:      req.Amount,
		Description: "Manual " + string(req.Direction) + " transfer",
		Notes:       notes,
		RecordedBy:  actor.ID,
	}
	return postSingle(ctx, e.ledger, draft)
}

func (e *TransferEngine) Bank(ctx context.Context, actor model.Actor, req model.BankTransferRequest) (*model.PostingResult, error) {
	var typ model.TransactionType
	switch req.Kind {
	case model.BankDeposit:
		typ = model.TypeBankDeposit
	case model.BankWithdrawal:
		typ = model.TypeBankWithdrawal
	default:
		return nil, model.NewValidationError("type", "must be deposit or withdrawal")
	}
	if err := requirePositive("amount", req.Amount); err != nil {
		return nil, err
	}

	draft := &model.Transaction{
		Type:          typ,
		Direction:     typ.DefaultDirection(),
		Amount:        req.Amount,
		Description:   "Bank " + string(req.Kind),
		Notes:         req.Notes,
		BankName:      req.BankName,
		BankReference: req.BankReference,
		CarriedBy:     req.CarriedBy,
		RecordedBy:    actor.ID,
	}
	return postSingle(ctx, e.ledger, draft)
}
