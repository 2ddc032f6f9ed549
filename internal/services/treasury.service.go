package services

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/nimasrn/school-treasury/internal/model"
	"github.com/nimasrn/school-treasury/pkg/logger"
	"github.com/nimasrn/school-treasury/pkg/prom"
)

const publishTimeout = 2 * time.Second

// Authorizer answers whether actor may perform action. A denial must match
// model.ErrForbidden.
type Authorizer interface {
	Authorize(ctx context.Context, actor model.Actor, action model.Action) error
}

// EventPublisher receives ledger events after the posting committed.
type EventPublisher interface {
	Publish(ctx context.Context, events ...model.LedgerEvent) error
}

// TreasuryService is the entry point used by transports. It gates every call
// on the Authorizer, runs the posting component and reports the outcome.
type TreasuryService struct {
	ledger     TreasuryLedger
	recorder   *Recorder
	reversals  *ReversalEngine
	opening    *OpeningWorkflow
	transfers  *TransferEngine
	authorizer Authorizer
	publisher  EventPublisher
}

// NewTreasuryService wires the posting components on one ledger. publisher
// may be nil.
func NewTreasuryService(ledger TreasuryLedger, authorizer Authorizer, publisher EventPublisher, opts Options) *TreasuryService {
	opts = opts.withDefaults()
	classifier := SeverityClassifier{Warning: opts.DiscrepancyWarning, Critical: opts.DiscrepancyCritical}
	return &TreasuryService{
		ledger:     ledger,
		recorder:   NewRecorder(ledger),
		reversals:  NewReversalEngine(ledger, opts.MinReasonLength),
		opening:    NewOpeningWorkflow(ledger, classifier),
		transfers:  NewTransferEngine(ledger, opts.MinNotesLength),
		authorizer: authorizer,
		publisher:  publisher,
	}
}

func (s *TreasuryService) RecordTransaction(ctx context.Context, actor model.Actor, req model.RecordRequest) (*model.PostingResult, error) {
	const op = "record"
	if err := s.authorize(ctx, op, actor, model.ActionRecord); err != nil {
		return nil, err
	}
	start := time.Now()
	result, err := s.recorder.Record(ctx, actor, req)
	if err != nil {
		return nil, s.fail(op, actor, err, "type", req.Type, "amount", req.Amount)
	}
	s.posted(ctx, op, actor, start, result.Balances, result.Transaction)
	return result, nil
}

func (s *TreasuryService) ReverseTransaction(ctx context.Context, actor model.Actor, req model.ReverseRequest) (*model.ReversalResult, error) {
	const op = "reverse"
	if err := s.authorize(ctx, op, actor, model.ActionReverse); err != nil {
		return nil, err
	}
	start := time.Now()
	result, err := s.reversals.Reverse(ctx, actor, req)
	if err != nil {
		return nil, s.fail(op, actor, err, "original_id", req.OriginalTransactionID)
	}
	rows := []*model.Transaction{result.Reversal}
	if result.Correction != nil {
		rows = append(rows, result.Correction)
	}
	s.posted(ctx, op, actor, start, result.Balances, rows...)
	return result, nil
}

func (s *TreasuryService) PreviewOpening(ctx context.Context, actor model.Actor, counted int64) (*model.OpeningPreview, error) {
	const op = "opening_preview"
	if err := s.authorize(ctx, op, actor, model.ActionOpen); err != nil {
		return nil, err
	}
	preview, err := s.opening.Preview(ctx, counted)
	if err != nil {
		return nil, s.fail(op, actor, err, "counted", counted)
	}
	return preview, nil
}

func (s *TreasuryService) ConfirmOpening(ctx context.Context, actor model.Actor, req model.OpeningRequest) (*model.OpeningResult, error) {
	const op = "opening_confirm"
	if err := s.authorize(ctx, op, actor, model.ActionOpen); err != nil {
		return nil, err
	}
	start := time.Now()
	result, err := s.opening.Confirm(ctx, actor, req)
	if err != nil {
		return nil, s.fail(op, actor, err, "counted", req.CountedSafeBalance, "float", req.FloatAmount)
	}

	rows := []*model.Transaction{result.Transfer}
	if result.Adjustment != nil {
		rows = []*model.Transaction{result.Adjustment, result.Transfer}
	}
	s.posted(ctx, op, actor, start, result.Balances, rows...)
	logger.Info("[treasury] day opened",
		"expected", result.ExpectedSafeBalance,
		"discrepancy", result.Discrepancy,
		"severity", result.Severity,
		"float", result.FloatAmount,
		"actor", actor.ID)
	s.publish(ctx, model.LedgerEvent{
		ID:         uuid.NewString(),
		Kind:       model.EventOpeningConfirmed,
		OccurredAt: result.Transfer.RecordedAt,
		Actor:      actor,
		Opening:    result,
		Balances:   result.Balances.Balances,
	})
	return result, nil
}

func (s *TreasuryService) TransferSafeRegistry(ctx context.Context, actor model.Actor, req model.SafeRegistryTransferRequest) (*model.PostingResult, error) {
	const op = "transfer_registry"
	if err := s.authorize(ctx, op, actor, model.ActionTransfer); err != nil {
		return nil, err
	}
	start := time.Now()
	result, err := s.transfers.SafeRegistry(ctx, actor, req)
	if err != nil {
		return nil, s.fail(op, actor, err, "direction", req.Direction, "amount", req.Amount)
	}
	s.posted(ctx, op, actor, start, result.Balances, result.Transaction)
	return result, nil
}

func (s *TreasuryService) TransferBank(ctx context.Context, actor model.Actor, req model.BankTransferRequest) (*model.PostingResult, error) {
	const op = "transfer_bank"
	if err := s.authorize(ctx, op, actor, model.ActionTransfer); err != nil {
		return nil, err
	}
	start := time.Now()
	result, err := s.transfers.Bank(ctx, actor, req)
	if err != nil {
		return nil, s.fail(op, actor, err, "kind", req.Kind, "amount", req.Amount)
	}
	s.posted(ctx, op, actor, start, result.Balances, result.Transaction)
	return result, nil
}

func (s *TreasuryService) GetBalances(ctx context.Context, actor model.Actor) (model.BalanceSnapshot, error) {
	const op = "balances"
	if err := s.authorize(ctx, op, actor, model.ActionView); err != nil {
		return model.BalanceSnapshot{}, err
	}
	snapshot, err := s.ledger.GetBalances(ctx)
	if err != nil {
		return model.BalanceSnapshot{}, s.fail(op, actor, err)
	}
	return snapshot, nil
}

func (s *TreasuryService) GetTransaction(ctx context.Context, actor model.Actor, id int64) (*model.Transaction, error) {
	const op = "get_transaction"
	if err := s.authorize(ctx, op, actor, model.ActionView); err != nil {
		return nil, err
	}
	tx, err := s.ledger.FindTransaction(ctx, id)
	if err != nil {
		return nil, s.fail(op, actor, err, "id", id)
	}
	return tx, nil
}

func (s *TreasuryService) ListTransactions(ctx context.Context, actor model.Actor, filter model.TransactionFilter) ([]*model.Transaction, int64, error) {
	const op = "list_transactions"
	if err := s.authorize(ctx, op, actor, model.ActionView); err != nil {
		return nil, 0, err
	}
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, 0, s.fail(op, actor, model.NewValidationError("type", "unknown transaction type"))
	}
	if filter.Limit < 0 || filter.Offset < 0 {
		return nil, 0, s.fail(op, actor, model.NewValidationError("limit", "limit and offset must not be negative"))
	}
	txs, total, err := s.ledger.ListTransactions(ctx, filter)
	if err != nil {
		return nil, 0, s.fail(op, actor, err)
	}
	return txs, total, nil
}

func (s *TreasuryService) Reconcile(ctx context.Context, actor model.Actor) (*model.Reconciliation, error) {
	const op = "reconcile"
	if err := s.authorize(ctx, op, actor, model.ActionReconcile); err != nil {
		return nil, err
	}
	result, err := s.ledger.Reconcile(ctx)
	if err != nil {
		return nil, s.fail(op, actor, err)
	}
	if !result.Consistent {
		logger.Error("[treasury] ledger replay disagrees with balance snapshot",
			"snapshot", result.Snapshot,
			"replayed", result.Replayed,
			"difference", result.Difference,
			"latest_matches", result.LatestMatches)
	}
	return result, nil
}

func (s *TreasuryService) UpdateFloatTarget(ctx context.Context, actor model.Actor, amount int64) (model.BalanceSnapshot, error) {
	const op = "float_target"
	if err := s.authorize(ctx, op, actor, model.ActionConfigure); err != nil {
		return model.BalanceSnapshot{}, err
	}
	if amount < 0 {
		return model.BalanceSnapshot{}, s.fail(op, actor, model.NewValidationError("amount", "must not be negative"))
	}
	snapshot, err := s.ledger.UpdateFloatTarget(ctx, amount)
	if err != nil {
		return model.BalanceSnapshot{}, s.fail(op, actor, err, "amount", amount)
	}
	logger.Info("[treasury] float target updated", "amount", amount, "actor", actor.ID)
	return snapshot, nil
}

func (s *TreasuryService) authorize(ctx context.Context, op string, actor model.Actor, action model.Action) error {
	if utf8.RuneCountInString(actor.ID) > model.MaxActorIDLength {
		return s.fail(op, actor, model.NewValidationError("actor_id", fmt.Sprintf("must be at most %d characters", model.MaxActorIDLength)))
	}
	if s.authorizer == nil {
		return nil
	}
	err := s.authorizer.Authorize(ctx, actor, action)
	if err == nil {
		return nil
	}
	if !errors.Is(err, model.ErrForbidden) {
		err = fmt.Errorf("authorize %s: %w", action, err)
	}
	return s.fail(op, actor, err, "action", action)
}

// fail logs err at the level its kind deserves and counts the rejection.
func (s *TreasuryService) fail(op string, actor model.Actor, err error, kv ...any) error {
	reason := model.Reason(err)
	prom.OperationRejected(op, reason)

	fields := append([]any{"operation", op, "actor", actor.ID, "reason", reason, "error", err}, kv...)
	if model.IsBusinessError(err) {
		logger.Warn("[treasury] operation rejected", fields...)
	} else {
		logger.Error("[treasury] operation failed", fields...)
	}
	return err
}

func (s *TreasuryService) posted(ctx context.Context, op string, actor model.Actor, start time.Time, snapshot model.BalanceSnapshot, rows ...*model.Transaction) {
	prom.PostingDuration(op, time.Since(start).Seconds())
	for _, loc := range model.Locations {
		prom.LocationBalance(string(loc), snapshot.Get(loc))
	}

	events := make([]model.LedgerEvent, 0, len(rows))
	for _, tx := range rows {
		logger.Info("[treasury] transaction posted",
			"operation", op,
			"id", tx.ID,
			"type", tx.Type,
			"direction", tx.Direction,
			"amount", tx.Amount,
			"is_reversal", tx.IsReversal,
			"actor", actor.ID)
		events = append(events, model.LedgerEvent{
			ID:          uuid.NewString(),
			Kind:        model.EventTransactionPosted,
			OccurredAt:  tx.RecordedAt,
			Actor:       actor,
			Transaction: tx,
			Balances:    tx.BalancesAfter(),
		})
	}
	s.publish(ctx, events...)
}

// publish never fails the committed operation; a lost event is logged and
// counted.
func (s *TreasuryService) publish(ctx context.Context, events ...model.LedgerEvent) {
	if s.publisher == nil || len(events) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.publisher.Publish(ctx, events...); err != nil {
		prom.EventPublishFailed()
		logger.Error("[treasury] failed to publish ledger events", "count", len(events), "error", err)
	}
}
