package model

import "time"

type EventKind string

const (
	EventTransactionPosted EventKind = "transaction.posted"
	EventOpeningConfirmed  EventKind = "opening.confirmed"
)

// LedgerEvent is published after a posting commits. Exactly one of
// Transaction or Opening is set, matching Kind.
type LedgerEvent struct {
	ID          string         `json:"id"`
	Kind        EventKind      `json:"kind"`
	OccurredAt  time.Time      `json:"occurred_at"`
	Actor       Actor          `json:"actor"`
	Transaction *Transaction   `json:"transaction,omitempty"`
	Opening     *OpeningResult `json:"opening,omitempty"`
	Balances    Balances       `json:"balances"`
}
