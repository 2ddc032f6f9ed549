package fixtures

import "github.com/nimasrn/school-treasury/internal/model"

// Actors matching the roles of the built-in policy.
var (
	Admin     = model.Actor{ID: "head-1", Role: "admin"}
	Treasurer = model.Actor{ID: "bursar-1", Role: "treasurer"}
	Cashier   = model.Actor{ID: "cashier-1", Role: "cashier"}
	Auditor   = model.Actor{ID: "audit-1", Role: "auditor"}
	Stranger  = model.Actor{ID: "visitor-1", Role: "parent"}
)

func StudentPayment(amount int64, studentID string) map[string]any {
	return map[string]any{
		"type":       string(model.TypeStudentPayment),
		"amount":     amount,
		"student_id": studentID,
		"payer_name": "Parent of " + studentID,
	}
}

func ExpensePayment(amount int64, beneficiary, category string) map[string]any {
	return map[string]any{
		"type":             string(model.TypeExpensePayment),
		"amount":           amount,
		"beneficiary_name": beneficiary,
		"category":         category,
	}
}

func BankDeposit(amount int64, carriedBy string) map[string]any {
	return map[string]any{
		"kind":       string(model.BankDeposit),
		"amount":     amount,
		"bank_name":  "Central Bank",
		"carried_by": carriedBy,
	}
}

func OpeningCount(counted, float int64, notes string) map[string]any {
	return map[string]any{
		"counted_safe_balance": counted,
		"float_amount":         float,
		"notes":                notes,
	}
}

func Reversal(reason string) map[string]any {
	return map[string]any{"reason": reason}
}

func FloatTarget(amount int64) map[string]any {
	return map[string]any{"amount": amount}
}
