package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nimasrn/school-treasury/internal/events"
	"github.com/nimasrn/school-treasury/internal/model"
	"github.com/nimasrn/school-treasury/internal/services"
	"github.com/nimasrn/school-treasury/pkg/logger"
	"github.com/nimasrn/school-treasury/pkg/prom"
	"github.com/nimasrn/school-treasury/pkg/redis"
)

const (
	EscalationsKey = "escalations"

	seenKeyPrefix  = "events:seen:"
	defaultSeenTTL = 24 * time.Hour
)

// Escalation is stored in the escalations set for every critical opening.
type Escalation struct {
	EventID     string    `json:"event_id"`
	Day         string    `json:"day"`
	Expected    int64     `json:"expected_safe_balance"`
	Counted     int64     `json:"counted_safe_balance"`
	Discrepancy int64     `json:"discrepancy"`
	ActorID     string    `json:"actor_id"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// LedgerEventProcessor turns committed ledger events into metrics and applies
// the discrepancy escalation policy. Handling is idempotent per event id.
type LedgerEventProcessor struct {
	redis      redis.RedisAdapter
	classifier services.SeverityClassifier
	metrics    *ServiceMetrics
	seenTTL    time.Duration
}

func NewLedgerEventProcessor(adapter redis.RedisAdapter, classifier services.SeverityClassifier, metrics *ServiceMetrics) *LedgerEventProcessor {
	if metrics == nil {
		metrics = NewServiceMetrics()
	}
	return &LedgerEventProcessor{
		redis:      adapter,
		classifier: classifier,
		metrics:    metrics,
		seenTTL:    defaultSeenTTL,
	}
}

func (p *LedgerEventProcessor) GetType() string {
	return "ledger"
}

func (p *LedgerEventProcessor) Process(ctx context.Context, msg *events.Message) error {
	ev := msg.Event
	kind := string(ev.Kind)

	if ev.ID != "" {
		exists, err := p.redis.Exist(ctx, seenKeyPrefix+ev.ID)
		if err != nil {
			logger.Warn("failed to check processed marker", "event_id", ev.ID, "error", err)
		} else if exists > 0 {
			logger.Info("ledger event already handled, skipping", "event_id", ev.ID, "kind", kind)
			p.metrics.RecordDuplicate()
			prom.EventHandled(kind, "duplicate")
			return nil
		}
	}

	var err error
	switch ev.Kind {
	case model.EventTransactionPosted:
		err = p.transactionPosted(ev)
	case model.EventOpeningConfirmed:
		err = p.openingConfirmed(ctx, ev)
	default:
		logger.Warn("unknown ledger event kind, dropping", "message_id", msg.ID, "kind", kind)
		prom.EventHandled(kind, "ignored")
		return nil
	}
	if err != nil {
		prom.EventHandled(kind, "failed")
		return err
	}

	if ev.ID != "" {
		if err := p.redis.Set(ctx, seenKeyPrefix+ev.ID, []byte("1"), p.seenTTL); err != nil {
			logger.Warn("failed to set processed marker", "event_id", ev.ID, "error", err)
		}
	}
	prom.EventHandled(kind, "ok")
	return nil
}

func (p *LedgerEventProcessor) transactionPosted(ev model.LedgerEvent) error {
	tx := ev.Transaction
	if tx == nil {
		// redelivery will not fix a malformed event
		logger.Error("transaction.posted event without transaction", "event_id", ev.ID)
		return nil
	}
	prom.TransactionPosted(string(tx.Type), string(tx.Direction), tx.Amount)
	logger.Debug("transaction event handled", "event_id", ev.ID, "transaction_id", tx.ID, "type", tx.Type)
	return nil
}

func (p *LedgerEventProcessor) openingConfirmed(ctx context.Context, ev model.LedgerEvent) error {
	opening := ev.Opening
	if opening == nil {
		logger.Error("opening.confirmed event without opening", "event_id", ev.ID)
		return nil
	}

	abs := opening.Discrepancy
	if abs < 0 {
		abs = -abs
	}
	prom.OpeningDiscrepancy(abs)

	day := ""
	if opening.Transfer != nil {
		day = opening.Transfer.ReferenceID
	}

	switch p.classifier.Classify(opening.Discrepancy) {
	case model.SeverityCritical:
		return p.escalate(ctx, ev, day)
	case model.SeverityWarning:
		logger.Warn("opening discrepancy above warning threshold",
			"day", day,
			"discrepancy", opening.Discrepancy,
			"expected", opening.ExpectedSafeBalance,
			"actor", ev.Actor.ID)
	}
	return nil
}

func (p *LedgerEventProcessor) escalate(ctx context.Context, ev model.LedgerEvent, day string) error {
	opening := ev.Opening
	entry := Escalation{
		EventID:     ev.ID,
		Day:         day,
		Expected:    opening.ExpectedSafeBalance,
		Counted:     opening.ExpectedSafeBalance + opening.Discrepancy,
		Discrepancy: opening.Discrepancy,
		ActorID:     ev.Actor.ID,
		OccurredAt:  ev.OccurredAt,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode escalation: %w", err)
	}
	if err := p.redis.SAdd(ctx, EscalationsKey, string(data)); err != nil {
		return fmt.Errorf("failed to record escalation: %w", err)
	}

	p.metrics.RecordEscalation()
	prom.OpeningEscalated(string(model.SeverityCritical))
	logger.Error("critical opening discrepancy escalated",
		"day", day,
		"discrepancy", opening.Discrepancy,
		"expected", opening.ExpectedSafeBalance,
		"actor", ev.Actor.ID,
		"event_id", ev.ID)
	return nil
}

// Escalations lists recorded critical openings.
func Escalations(ctx context.Context, adapter redis.RedisAdapter) ([]Escalation, error) {
	members, err := adapter.SMembers(ctx, EscalationsKey)
	if err != nil {
		return nil, err
	}
	out := make([]Escalation, 0, len(members))
	for _, m := range members {
		var e Escalation
		if err := json.Unmarshal([]byte(m), &e); err != nil {
			return nil, fmt.Errorf("corrupt escalation entry: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}
