package services

import (
	"context"

	"github.com/nimasrn/school-treasury/internal/model"
	"github.com/nimasrn/school-treasury/internal/repository"
)

const openingReferenceType = "daily_opening"

// OpeningWorkflow reconciles the counted safe against the ledger and seeds
// the registry with the day's float. Preview never writes; Confirm is the
// only step that posts.
type OpeningWorkflow struct {
	ledger     Ledger
	classifier SeverityClassifier
}

func NewOpeningWorkflow(ledger Ledger, classifier SeverityClassifier) *OpeningWorkflow {
	return &OpeningWorkflow{ledger: ledger, classifier: classifier}
}

func (w *OpeningWorkflow) Preview(ctx context.Context, counted int64) (*model.OpeningPreview, error) {
	if counted < 0 {
		return nil, model.NewValidationError("counted_safe_balance", "must not be negative")
	}

	snapshot, err := w.ledger.GetBalances(ctx)
	if err != nil {
		return nil, err
	}
	if snapshot.Registry > 0 {
		return nil, model.ErrAlreadyOpened
	}

	discrepancy := counted - snapshot.Safe
	return &model.OpeningPreview{
		CountedSafeBalance:  counted,
		ExpectedSafeBalance: snapshot.Safe,
		Discrepancy:         discrepancy,
		Severity:            w.classifier.Classify(discrepancy),
		FloatTarget:         snapshot.RegistryFloatAmount,
	}, nil
}

// Confirm recomputes the discrepancy under the ledger lock, books it as an
// adjustment when non-zero and moves the float from safe to registry. Both
// rows commit together.
func (w *OpeningWorkflow) Confirm(ctx context.Context, actor model.Actor, req model.OpeningRequest) (*model.OpeningResult, error) {
	if req.CountedSafeBalance < 0 {
		return nil, model.NewValidationError("counted_safe_balance", "must not be negative")
	}
	if req.FloatAmount < 0 {
		return nil, model.NewValidationError("float_amount", "must be a positive integer")
	}

	var (
		expected    int64
		discrepancy int64
		float       int64
	)
	posted, snapshot, err := w.ledger.Post(ctx, func(ctx context.Context, current model.BalanceSnapshot) ([]*model.Transaction, error) {
		if current.Registry > 0 {
			return nil, model.ErrAlreadyOpened
		}

		float = req.FloatAmount
		if float == 0 {
			float = current.RegistryFloatAmount
		}
		if float <= 0 {
			return nil, model.NewValidationError("float_amount", "must be a positive integer")
		}
		if req.CountedSafeBalance < float {
			return nil, model.NewInsufficientFundsForFloat(req.CountedSafeBalance, float)
		}

		expected = current.Safe
		discrepancy = req.CountedSafeBalance - expected

		day := repository.PostingTime(ctx).Format("2006-01-02")
		balances := current.Balances
		var drafts []*model.Transaction

		if discrepancy != 0 {
			direction, amount := model.DirectionIn, discrepancy
			if discrepancy < 0 {
				direction, amount = model.DirectionOut, -discrepancy
			}
			effect, _ := model.TypeAdjustment.Effect()
			next, err := balances.Apply(effect, direction, amount)
			if err != nil {
				return nil, err
			}
			adjustment := &model.Transaction{
				Type:          model.TypeAdjustment,
				Direction:     direction,
				Amount:        amount,
				Description:   "Daily opening count adjustment",
				Notes:         req.Notes,
				ReferenceType: openingReferenceType,
				ReferenceID:   day,
				RecordedBy:    actor.ID,
			}
			adjustment.SetBalancesAfter(next)
			drafts = append(drafts, adjustment)
			balances = next
		}

		effect, _ := model.TypeSafeToRegistry.Effect()
		next, err := balances.Apply(effect, model.DirectionOut, float)
		if err != nil {
			return nil, err
		}
		transfer := &model.Transaction{
			Type:          model.TypeSafeToRegistry,
			Direction:     model.DirectionOut,
			Amount:        float,
			Description:   "Daily opening float",
			Notes:         req.Notes,
			ReferenceType: openingReferenceType,
			ReferenceID:   day,
			RecordedBy:    actor.ID,
		}
		transfer.SetBalancesAfter(next)
		return append(drafts, transfer), nil
	})
	if err != nil {
		return nil, err
	}

	result := &model.OpeningResult{
		Balances:            snapshot,
		ExpectedSafeBalance: expected,
		Discrepancy:         discrepancy,
		Severity:            w.classifier.Classify(discrepancy),
		FloatAmount:         float,
		Transfer:            posted[len(posted)-1],
	}
	if len(posted) == 2 {
		result.Adjustment = posted[0]
	}
	return result, nil
}
