package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/nimasrn/school-treasury/internal/model"
)

// ReversalEngine undoes a transaction with a mirror entry, optionally
// followed by a correction, without touching the original row.
type ReversalEngine struct {
	ledger          Ledger
	minReasonLength int
}

func NewReversalEngine(ledger Ledger, minReasonLength int) *ReversalEngine {
	if minReasonLength <= 0 {
		minReasonLength = DefaultOptions().MinReasonLength
	}
	return &ReversalEngine{ledger: ledger, minReasonLength: minReasonLength}
}

func (e *ReversalEngine) Reverse(ctx context.Context, actor model.Actor, req model.ReverseRequest) (*model.ReversalResult, error) {
	if req.OriginalTransactionID <= 0 {
		return nil, model.NewValidationError("original_transaction_id", "must be a positive id")
	}
	reason, err := requireText("reason", req.Reason, e.minReasonLength)
	if err != nil {
		return nil, err
	}

	var correction *model.ReversalWithCorrection
	switch kind := req.Kind.(type) {
	case nil, model.PlainReversal, *model.PlainReversal:
	case model.ReversalWithCorrection:
		correction = &kind
	case *model.ReversalWithCorrection:
		correction = kind
	default:
		return nil, fmt.Errorf("reverse: unsupported request kind %T", req.Kind)
	}
	if correction != nil {
		if err := requirePositive("correction_amount", correction.Amount); err != nil {
			return nil, err
		}
		switch correction.Method {
		case "", model.MethodCash, model.MethodMobileMoney:
		default:
			return nil, model.NewValidationError("correction_method", "must be cash or mobile_money")
		}
	}

	posted, snapshot, err := e.ledger.Post(ctx, func(ctx context.Context, current model.BalanceSnapshot) ([]*model.Transaction, error) {
		original, err := e.ledger.FindTransaction(ctx, req.OriginalTransactionID)
		if err != nil {
			return nil, err
		}
		if original.IsReversal {
			return nil, model.ErrCannotReverseReversal
		}
		_, err = e.ledger.FindReversalOf(ctx, original.ID)
		if err == nil {
			return nil, model.ErrAlreadyReversed
		}
		if !errors.Is(err, model.ErrNotFound) {
			return nil, err
		}

		effect, err := model.EffectOf(original, nil)
		if err != nil {
			return nil, err
		}
		direction := original.Direction.Opposite()
		afterReversal, err := current.Balances.Apply(effect, direction, original.Amount)
		if err != nil {
			return nil, err
		}

		originalID := original.ID
		reversal := &model.Transaction{
			Type:                  original.Type.ReversalType(),
			Direction:             direction,
			Amount:                original.Amount,
			IsReversal:            true,
			ReversalReason:        reason,
			ReversedBy:            actor.ID,
			OriginalTransactionID: &originalID,
			RecordedBy:            actor.ID,
		}
		reversal.SetMetadata(original.Metadata())
		reversal.Description = fmt.Sprintf("Reversal of transaction #%d: %s", originalID, reason)
		reversal.SetBalancesAfter(afterReversal)

		drafts := []*model.Transaction{reversal}
		if correction == nil {
			return drafts, nil
		}

		correctionType, err := original.Type.CorrectionType(correction.Method)
		if err != nil {
			return nil, err
		}
		correctionEffect, ok := correctionType.Effect()
		if !ok {
			return nil, fmt.Errorf("reverse: correction type %s has no effect", correctionType)
		}
		afterCorrection, err := afterReversal.Apply(correctionEffect, original.Direction, correction.Amount)
		if err != nil {
			return nil, err
		}

		corrected := &model.Transaction{
			Type:                  correctionType,
			Direction:             original.Direction,
			Amount:                correction.Amount,
			OriginalTransactionID: &originalID,
			RecordedBy:            actor.ID,
		}
		corrected.SetMetadata(original.Metadata())
		corrected.Description = fmt.Sprintf("Correction of transaction #%d", originalID)
		corrected.SetBalancesAfter(afterCorrection)
		return append(drafts, corrected), nil
	})
	if err != nil {
		return nil, err
	}

	result := &model.ReversalResult{Reversal: posted[0], Balances: snapshot}
	if len(posted) > 1 {
		result.Correction = posted[1]
	}
	return result, nil
}
