package model

import "time"

// MaxActorIDLength matches the recorded_by and reversed_by columns.
const MaxActorIDLength = 64

// Actor is the identity attached to every write.
type Actor struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

type RecordRequest struct {
	Type TransactionType
	// Direction defaults to the type's default direction when empty.
	Direction Direction
	Amount    int64
	Metadata
}

// ReversalRequest is either PlainReversal or ReversalWithCorrection.
type ReversalRequest interface {
	isReversalRequest()
}

type PlainReversal struct{}

// ReversalWithCorrection re-enters Amount through Method right after the
// reversal. An empty Method keeps the original's method.
type ReversalWithCorrection struct {
	Amount int64
	Method PaymentMethod
}

func (PlainReversal) isReversalRequest()          {}
func (ReversalWithCorrection) isReversalRequest() {}

type ReverseRequest struct {
	OriginalTransactionID int64
	Reason                string
	// Kind is treated as PlainReversal when nil.
	Kind ReversalRequest
}

type PostingResult struct {
	Transaction *Transaction    `json:"transaction"`
	Balances    BalanceSnapshot `json:"balances"`
}

type ReversalResult struct {
	Reversal   *Transaction    `json:"reversal"`
	Correction *Transaction    `json:"correction,omitempty"`
	Balances   BalanceSnapshot `json:"balances"`
}

// DiscrepancySeverity classifies the absolute gap between a count and the
// ledger.
type DiscrepancySeverity string

const (
	SeverityNone     DiscrepancySeverity = "none"
	SeverityNormal   DiscrepancySeverity = "normal"
	SeverityWarning  DiscrepancySeverity = "warning"
	SeverityCritical DiscrepancySeverity = "critical"
)

type OpeningPreview struct {
	CountedSafeBalance  int64               `json:"counted_safe_balance"`
	ExpectedSafeBalance int64               `json:"expected_safe_balance"`
	Discrepancy         int64               `json:"discrepancy"`
	Severity            DiscrepancySeverity `json:"severity"`
	FloatTarget         int64               `json:"float_target"`
}

type OpeningRequest struct {
	CountedSafeBalance int64
	// FloatAmount zero means the snapshot's float target.
	FloatAmount int64
	Notes       string
}

type OpeningResult struct {
	Balances            BalanceSnapshot     `json:"balances"`
	ExpectedSafeBalance int64               `json:"expected_safe_balance"`
	Discrepancy         int64               `json:"discrepancy"`
	Severity            DiscrepancySeverity `json:"severity"`
	FloatAmount         int64               `json:"float_amount"`
	Adjustment          *Transaction        `json:"adjustment,omitempty"`
	Transfer            *Transaction        `json:"transfer"`
}

type TransferDirection string

const (
	TransferSafeToRegistry TransferDirection = "safe_to_registry"
	TransferRegistryToSafe TransferDirection = "registry_to_safe"
)

type SafeRegistryTransferRequest struct {
	Direction TransferDirection
	Amount    int64
	Notes     string
}

type BankTransferKind string

const (
	BankDeposit    BankTransferKind = "deposit"
	BankWithdrawal BankTransferKind = "withdrawal"
)

type BankTransferRequest struct {
	Kind          BankTransferKind
	Amount        int64
	BankName      string
	BankReference string
	CarriedBy     string
	Notes         string
}

type TransactionFilter struct {
	Type                  TransactionType
	ReferenceID           string
	OriginalTransactionID *int64
	From                  *time.Time
	To                    *time.Time
	Limit                 int
	Offset                int
	// Ascending lists oldest first; the default is newest first.
	Ascending bool
}

// Reconciliation compares the stored snapshot with balances replayed from
// the full transaction history.
type Reconciliation struct {
	Snapshot         Balances `json:"snapshot"`
	Replayed         Balances `json:"replayed"`
	Difference       Balances `json:"difference"`
	Consistent       bool     `json:"consistent"`
	TransactionCount int64    `json:"transaction_count"`

	// LatestMatches is false when the newest row's balance-after fields
	// disagree with the snapshot.
	LatestMatches bool      `json:"latest_matches"`
	CheckedAt     time.Time `json:"checked_at"`
}
