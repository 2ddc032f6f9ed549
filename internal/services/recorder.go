package services

import (
	"context"

	"github.com/nimasrn/school-treasury/internal/model"
)

// Recorder is the single entry point for new money movements.
type Recorder struct {
	ledger Ledger
}

func NewRecorder(ledger Ledger) *Recorder {
	return &Recorder{ledger: ledger}
}

func (r *Recorder) Record(ctx context.Context, actor model.Actor, req model.RecordRequest) (*model.PostingResult, error) {
	if req.Type.IsReversalType() {
		return nil, model.NewValidationError("type", "reversal entries are created by reversing a transaction")
	}
	if !req.Type.Valid() {
		return nil, model.NewValidationError("type", "unknown transaction type")
	}

	direction := req.Direction
	if direction == "" {
		direction = req.Type.DefaultDirection()
	}
	if direction == "" {
		return nil, model.NewValidationError("direction", "is required for "+string(req.Type))
	}
	if !direction.Valid() {
		return nil, model.NewValidationError("direction", "must be in or out")
	}
	if err := requirePositive("amount", req.Amount); err != nil {
		return nil, err
	}

	draft := &model.Transaction{
		Type:       req.Type,
		Direction:  direction,
		Amount:     req.Amount,
		RecordedBy: actor.ID,
	}
	draft.SetMetadata(req.Metadata)
	return postSingle(ctx, r.ledger, draft)
}

// postSingle posts one draft whose after-balances are computed from the
// locked snapshot by the draft's type effect.
func postSingle(ctx context.Context, ledger Ledger, draft *model.Transaction) (*model.PostingResult, error) {
	effect, ok := draft.Type.Effect()
	if !ok {
		return nil, model.NewValidationError("type", "unknown transaction type")
	}

	posted, snapshot, err := ledger.Post(ctx, func(ctx context.Context, current model.BalanceSnapshot) ([]*model.Transaction, error) {
		next, err := current.Balances.Apply(effect, draft.Direction, draft.Amount)
		if err != nil {
			return nil, err
		}
		entry := *draft
		entry.SetBalancesAfter(next)
		return []*model.Transaction{&entry}, nil
	})
	if err != nil {
		return nil, err
	}
	return &model.PostingResult{Transaction: posted[0], Balances: snapshot}, nil
}
