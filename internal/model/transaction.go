package model

import "time"

type TransactionType string

const (
	TypeStudentPayment         TransactionType = "student_payment"
	TypeExpensePayment         TransactionType = "expense_payment"
	TypeBankDeposit            TransactionType = "bank_deposit"
	TypeBankWithdrawal         TransactionType = "bank_withdrawal"
	TypeMobileMoneyIncome      TransactionType = "mobile_money_income"
	TypeMobileMoneyPayment     TransactionType = "mobile_money_payment"
	TypeMobileMoneyFee         TransactionType = "mobile_money_fee"
	TypeSafeToRegistry         TransactionType = "safe_to_registry"
	TypeRegistryToSafe         TransactionType = "registry_to_safe"
	TypeRegistryAdjustment     TransactionType = "registry_adjustment"
	TypeReversalStudentPayment TransactionType = "reversal_student_payment"
	TypeReversalExpensePayment TransactionType = "reversal_expense_payment"
	TypeReversalBankDeposit    TransactionType = "reversal_bank_deposit"
	TypeReversalMobileMoney    TransactionType = "reversal_mobile_money"
	TypeAdjustment             TransactionType = "adjustment"
)

type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

func (d Direction) Valid() bool {
	return d == DirectionIn || d == DirectionOut
}

func (d Direction) Opposite() Direction {
	if d == DirectionIn {
		return DirectionOut
	}
	return DirectionIn
}

// PaymentMethod selects the cash channel of a correction entry.
type PaymentMethod string

const (
	MethodCash        PaymentMethod = "cash"
	MethodMobileMoney PaymentMethod = "mobile_money"
)

// Transaction is an immutable ledger entry. All four balance-after fields are
// populated on every row, carried forward when a location is untouched.
type Transaction struct {
	ID                      int64           `json:"id"`
	Type                    TransactionType `json:"type"`
	Direction               Direction       `json:"direction"`
	Amount                  int64           `json:"amount"`
	RegistryBalanceAfter    int64           `json:"registry_balance_after"`
	SafeBalanceAfter        int64           `json:"safe_balance_after"`
	BankBalanceAfter        int64           `json:"bank_balance_after"`
	MobileMoneyBalanceAfter int64           `json:"mobile_money_balance_after"`

	Description     string `json:"description,omitempty"`
	Notes           string `json:"notes,omitempty"`
	ReferenceType   string `json:"reference_type,omitempty"`
	ReferenceID     string `json:"reference_id,omitempty"`
	StudentID       string `json:"student_id,omitempty"`
	PayerName       string `json:"payer_name,omitempty"`
	BeneficiaryName string `json:"beneficiary_name,omitempty"`
	Category        string `json:"category,omitempty"`
	BankName        string `json:"bank_name,omitempty"`
	BankReference   string `json:"bank_reference,omitempty"`
	CarriedBy       string `json:"carried_by,omitempty"`

	IsReversal            bool       `json:"is_reversal"`
	ReversalReason        string     `json:"reversal_reason,omitempty"`
	ReversedBy            string     `json:"reversed_by,omitempty"`
	ReversedAt            *time.Time `json:"reversed_at,omitempty"`
	OriginalTransactionID *int64     `json:"original_transaction_id,omitempty"`

	RecordedBy string    `json:"recorded_by"`
	RecordedAt time.Time `json:"recorded_at"`
}

// BalancesAfter returns the four post-transaction balances.
func (t *Transaction) BalancesAfter() Balances {
	return Balances{
		Registry:    t.RegistryBalanceAfter,
		Safe:        t.SafeBalanceAfter,
		Bank:        t.BankBalanceAfter,
		MobileMoney: t.MobileMoneyBalanceAfter,
	}
}

func (t *Transaction) SetBalancesAfter(b Balances) {
	t.RegistryBalanceAfter = b.Registry
	t.SafeBalanceAfter = b.Safe
	t.BankBalanceAfter = b.Bank
	t.MobileMoneyBalanceAfter = b.MobileMoney
}

// Metadata carries the descriptive, non-financial fields of a new entry.
type Metadata struct {
	Description     string `json:"description,omitempty" validate:"max=1000"`
	Notes           string `json:"notes,omitempty" validate:"max=1000"`
	ReferenceType   string `json:"reference_type,omitempty" validate:"max=40"`
	ReferenceID     string `json:"reference_id,omitempty" validate:"max=64"`
	StudentID       string `json:"student_id,omitempty" validate:"max=64"`
	PayerName       string `json:"payer_name,omitempty" validate:"max=255"`
	BeneficiaryName string `json:"beneficiary_name,omitempty" validate:"max=255"`
	Category        string `json:"category,omitempty" validate:"max=80"`
	BankName        string `json:"bank_name,omitempty" validate:"max=120"`
	BankReference   string `json:"bank_reference,omitempty" validate:"max=120"`
	CarriedBy       string `json:"carried_by,omitempty" validate:"max=120"`
}

func (t *Transaction) SetMetadata(m Metadata) {
	t.Description = m.Description
	t.Notes = m.Notes
	t.ReferenceType = m.ReferenceType
	t.ReferenceID = m.ReferenceID
	t.StudentID = m.StudentID
	t.PayerName = m.PayerName
	t.BeneficiaryName = m.BeneficiaryName
	t.Category = m.Category
	t.BankName = m.BankName
	t.BankReference = m.BankReference
	t.CarriedBy = m.CarriedBy
}

func (t *Transaction) Metadata() Metadata {
	return Metadata{
		Description:     t.Description,
		Notes:           t.Notes,
		ReferenceType:   t.ReferenceType,
		ReferenceID:     t.ReferenceID,
		StudentID:       t.StudentID,
		PayerName:       t.PayerName,
		BeneficiaryName: t.BeneficiaryName,
		Category:        t.Category,
		BankName:        t.BankName,
		BankReference:   t.BankReference,
		CarriedBy:       t.CarriedBy,
	}
}
