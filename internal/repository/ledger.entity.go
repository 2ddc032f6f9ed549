package repository

import (
	"time"

	"github.com/nimasrn/school-treasury/internal/model"
)

// snapshotID is the primary key of the single balance snapshot row.
const snapshotID = 1

type BalanceEntity struct {
	ID                  int64     `db:"id"                    gorm:"primaryKey;column:id"`
	RegistryBalance     int64     `db:"registry_balance"      gorm:"column:registry_balance;not null;default:0"`
	RegistryFloatAmount int64     `db:"registry_float_amount" gorm:"column:registry_float_amount;not null;default:0"`
	SafeBalance         int64     `db:"safe_balance"          gorm:"column:safe_balance;not null;default:0"`
	BankBalance         int64     `db:"bank_balance"          gorm:"column:bank_balance;not null;default:0"`
	MobileMoneyBalance  int64     `db:"mobile_money_balance"  gorm:"column:mobile_money_balance;not null;default:0"`
	Version             int64     `db:"version"               gorm:"column:version;not null;default:0"`
	UpdatedAt           time.Time `db:"updated_at"            gorm:"column:updated_at;not null"`
}

func (BalanceEntity) TableName() string {
	return "treasury_balances"
}

type TransactionEntity struct {
	ID                      int64  `db:"id"                         gorm:"primaryKey;autoIncrement;column:id"`
	Type                    string `db:"type"                       gorm:"column:type;not null;size:40"`
	Direction               string `db:"direction"                  gorm:"column:direction;not null;size:3"`
	Amount                  int64  `db:"amount"                     gorm:"column:amount;not null"`
	RegistryBalanceAfter    int64  `db:"registry_balance_after"     gorm:"column:registry_balance_after;not null"`
	SafeBalanceAfter        int64  `db:"safe_balance_after"         gorm:"column:safe_balance_after;not null"`
	BankBalanceAfter        int64  `db:"bank_balance_after"         gorm:"column:bank_balance_after;not null"`
	MobileMoneyBalanceAfter int64  `db:"mobile_money_balance_after" gorm:"column:mobile_money_balance_after;not null"`

	Description     string `db:"description"      gorm:"column:description;not null;default:''"`
	Notes           string `db:"notes"            gorm:"column:notes;not null;default:''"`
	ReferenceType   string `db:"reference_type"   gorm:"column:reference_type;not null;default:''"`
	ReferenceID     string `db:"reference_id"     gorm:"column:reference_id;not null;default:'';index:idx_treasury_transactions_reference_id"`
	StudentID       string `db:"student_id"       gorm:"column:student_id;not null;default:''"`
	PayerName       string `db:"payer_name"       gorm:"column:payer_name;not null;default:''"`
	BeneficiaryName string `db:"beneficiary_name" gorm:"column:beneficiary_name;not null;default:''"`
	Category        string `db:"category"         gorm:"column:category;not null;default:''"`
	BankName        string `db:"bank_name"        gorm:"column:bank_name;not null;default:''"`
	BankReference   string `db:"bank_reference"   gorm:"column:bank_reference;not null;default:''"`
	CarriedBy       string `db:"carried_by"       gorm:"column:carried_by;not null;default:''"`

	IsReversal            bool       `db:"is_reversal"             gorm:"column:is_reversal;not null;default:false"`
	ReversalReason        string     `db:"reversal_reason"         gorm:"column:reversal_reason;not null;default:''"`
	ReversedBy            string     `db:"reversed_by"             gorm:"column:reversed_by;not null;default:''"`
	ReversedAt            *time.Time `db:"reversed_at"             gorm:"column:reversed_at"`
	OriginalTransactionID *int64     `db:"original_transaction_id" gorm:"column:original_transaction_id;index:idx_treasury_transactions_original_id;uniqueIndex:idx_treasury_transactions_reversal_of,where:is_reversal = true"`

	RecordedBy string    `db:"recorded_by" gorm:"column:recorded_by;not null;default:''"`
	RecordedAt time.Time `db:"recorded_at" gorm:"column:recorded_at;not null;index:idx_treasury_transactions_recorded_at"`
}

func (TransactionEntity) TableName() string {
	return "treasury_transactions"
}

func toSnapshotModel(e *BalanceEntity) model.BalanceSnapshot {
	return model.BalanceSnapshot{
		Balances: model.Balances{
			Registry:    e.RegistryBalance,
			Safe:        e.SafeBalance,
			Bank:        e.BankBalance,
			MobileMoney: e.MobileMoneyBalance,
		},
		RegistryFloatAmount: e.RegistryFloatAmount,
		Version:             e.Version,
		UpdatedAt:           e.UpdatedAt,
	}
}

func toTransactionEntity(m *model.Transaction) *TransactionEntity {
	if m == nil {
		return nil
	}
	return &TransactionEntity{
		ID:                      m.ID,
		Type:                    string(m.Type),
		Direction:               string(m.Direction),
		Amount:                  m.Amount,
		RegistryBalanceAfter:    m.RegistryBalanceAfter,
		SafeBalanceAfter:        m.SafeBalanceAfter,
		BankBalanceAfter:        m.BankBalanceAfter,
		MobileMoneyBalanceAfter: m.MobileMoneyBalanceAfter,
		Description:             m.Description,
		Notes:                   m.Notes,
		ReferenceType:           m.ReferenceType,
		ReferenceID:             m.ReferenceID,
		StudentID:               m.StudentID,
		PayerName:               m.PayerName,
		BeneficiaryName:         m.BeneficiaryName,
		Category:                m.Category,
		BankName:                m.BankName,
		BankReference:           m.BankReference,
		CarriedBy:               m.CarriedBy,
		IsReversal:              m.IsReversal,
		ReversalReason:          m.ReversalReason,
		ReversedBy:              m.ReversedBy,
		ReversedAt:              m.ReversedAt,
		OriginalTransactionID:   m.OriginalTransactionID,
		RecordedBy:              m.RecordedBy,
		RecordedAt:              m.RecordedAt,
	}
}

func toTransactionModel(e *TransactionEntity) *model.Transaction {
	if e == nil {
		return nil
	}
	return &model.Transaction{
		ID:                      e.ID,
		Type:                    model.TransactionType(e.Type),
		Direction:               model.Direction(e.Direction),
		Amount:                  e.Amount,
		RegistryBalanceAfter:    e.RegistryBalanceAfter,
		SafeBalanceAfter:        e.SafeBalanceAfter,
		BankBalanceAfter:        e.BankBalanceAfter,
		MobileMoneyBalanceAfter: e.MobileMoneyBalanceAfter,
		Description:             e.Description,
		Notes:                   e.Notes,
		ReferenceType:           e.ReferenceType,
		ReferenceID:             e.ReferenceID,
		StudentID:               e.StudentID,
		PayerName:               e.PayerName,
		BeneficiaryName:         e.BeneficiaryName,
		Category:                e.Category,
		BankName:                e.BankName,
		BankReference:           e.BankReference,
		CarriedBy:               e.CarriedBy,
		IsReversal:              e.IsReversal,
		ReversalReason:          e.ReversalReason,
		ReversedBy:              e.ReversedBy,
		ReversedAt:              e.ReversedAt,
		OriginalTransactionID:   e.OriginalTransactionID,
		RecordedBy:              e.RecordedBy,
		RecordedAt:              e.RecordedAt,
	}
}

func toTransactionModels(entities []*TransactionEntity) []*model.Transaction {
	if entities == nil {
		return nil
	}
	models := make([]*model.Transaction, len(entities))
	for i, e := range entities {
		models[i] = toTransactionModel(e)
	}
	return models
}
