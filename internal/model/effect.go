package model

import "fmt"

// TransactionEffect describes which locations a transaction type moves money
// between. It is either a CashMovement or an InterLocationTransfer.
type TransactionEffect interface {
	// Locations lists every location the effect can change.
	Locations() []CashLocation
	isEffect()
}

// CashMovement adds (in) or removes (out) money at a single location.
type CashMovement struct {
	Location CashLocation
}

// InterLocationTransfer moves money between two locations. Direction out moves
// From to To; direction in moves To back to From.
type InterLocationTransfer struct {
	From CashLocation
	To   CashLocation
}

func (c CashMovement) Locations() []CashLocation { return []CashLocation{c.Location} }
func (CashMovement) isEffect()                   {}

func (t InterLocationTransfer) Locations() []CashLocation { return []CashLocation{t.From, t.To} }
func (InterLocationTransfer) isEffect()                   {}

type typeRule struct {
	effect TransactionEffect
	// direction is empty when callers must choose one.
	direction Direction
	reversal  TransactionType
	method    PaymentMethod
	family    correctionFamily
}

type correctionFamily int

const (
	familyNone correctionFamily = iota
	familyIncome
	familyExpense
)

var (
	safeCash     = CashMovement{Location: LocationSafe}
	registryCash = CashMovement{Location: LocationRegistry}
	mobileCash   = CashMovement{Location: LocationMobileMoney}
	safeBank     = InterLocationTransfer{From: LocationSafe, To: LocationBank}
	safeRegistry = InterLocationTransfer{From: LocationSafe, To: LocationRegistry}
)

// typeRules is the single table mapping each recordable type to its effect,
// default direction and reversal type. Reversal types are absent: a reversal
// row takes its effect from the original it reverses.
var typeRules = map[TransactionType]typeRule{
	TypeStudentPayment:     {effect: safeCash, direction: DirectionIn, reversal: TypeReversalStudentPayment, method: MethodCash, family: familyIncome},
	TypeExpensePayment:     {effect: safeCash, direction: DirectionOut, reversal: TypeReversalExpensePayment, method: MethodCash, family: familyExpense},
	TypeAdjustment:         {effect: safeCash, reversal: TypeAdjustment},
	TypeRegistryAdjustment: {effect: registryCash, reversal: TypeAdjustment},
	TypeMobileMoneyIncome:  {effect: mobileCash, direction: DirectionIn, reversal: TypeReversalMobileMoney, method: MethodMobileMoney, family: familyIncome},
	TypeMobileMoneyPayment: {effect: mobileCash, direction: DirectionOut, reversal: TypeReversalMobileMoney, method: MethodMobileMoney, family: familyExpense},
	TypeMobileMoneyFee:     {effect: mobileCash, direction: DirectionOut, reversal: TypeReversalMobileMoney},
	TypeBankDeposit:        {effect: safeBank, direction: DirectionOut, reversal: TypeReversalBankDeposit},
	TypeBankWithdrawal:     {effect: safeBank, direction: DirectionIn, reversal: TypeReversalBankDeposit},
	TypeSafeToRegistry:     {effect: safeRegistry, direction: DirectionOut, reversal: TypeAdjustment},
	TypeRegistryToSafe:     {effect: safeRegistry, direction: DirectionIn, reversal: TypeAdjustment},
}

var reversalTypes = map[TransactionType]struct{}{
	TypeReversalStudentPayment: {},
	TypeReversalExpensePayment: {},
	TypeReversalBankDeposit:    {},
	TypeReversalMobileMoney:    {},
}

// AllTransactionTypes lists the closed set of types in a stable order.
var AllTransactionTypes = []TransactionType{
	TypeStudentPayment,
	TypeExpensePayment,
	TypeBankDeposit,
	TypeBankWithdrawal,
	TypeMobileMoneyIncome,
	TypeMobileMoneyPayment,
	TypeMobileMoneyFee,
	TypeSafeToRegistry,
	TypeRegistryToSafe,
	TypeRegistryAdjustment,
	TypeReversalStudentPayment,
	TypeReversalExpensePayment,
	TypeReversalBankDeposit,
	TypeReversalMobileMoney,
	TypeAdjustment,
}

func (t TransactionType) Valid() bool {
	if _, ok := typeRules[t]; ok {
		return true
	}
	_, ok := reversalTypes[t]
	return ok
}

// IsReversalType reports whether t is one of the reversal_* types, which can
// only be produced by the reversal engine.
func (t TransactionType) IsReversalType() bool {
	_, ok := reversalTypes[t]
	return ok
}

// Effect returns the balance effect of a recordable type.
func (t TransactionType) Effect() (TransactionEffect, bool) {
	rule, ok := typeRules[t]
	if !ok {
		return nil, false
	}
	return rule.effect, true
}

// DefaultDirection is empty for types that need an explicit direction.
func (t TransactionType) DefaultDirection() Direction {
	return typeRules[t].direction
}

// ReversalType maps t to the type its reversal row is recorded with. Types
// without a dedicated counterpart fall back to adjustment.
func (t TransactionType) ReversalType() TransactionType {
	if rule, ok := typeRules[t]; ok && rule.reversal != "" {
		return rule.reversal
	}
	return TypeAdjustment
}

// CorrectionType picks the type of a correction entry for an original of
// type t paid through method. An empty method keeps the original type.
func (t TransactionType) CorrectionType(method PaymentMethod) (TransactionType, error) {
	rule, ok := typeRules[t]
	if !ok {
		return "", NewValidationError("type", fmt.Sprintf("%s cannot be corrected", t))
	}
	if method == "" || method == rule.method {
		return t, nil
	}
	switch {
	case rule.family == familyIncome && method == MethodCash:
		return TypeStudentPayment, nil
	case rule.family == familyIncome && method == MethodMobileMoney:
		return TypeMobileMoneyIncome, nil
	case rule.family == familyExpense && method == MethodCash:
		return TypeExpensePayment, nil
	case rule.family == familyExpense && method == MethodMobileMoney:
		return TypeMobileMoneyPayment, nil
	}
	return "", NewValidationError("method", fmt.Sprintf("method %q is not allowed when correcting %s", method, t))
}

// EffectOf resolves the balance effect of a stored row. Reversal rows use the
// effect of the original they reverse, which must be supplied.
func EffectOf(tx *Transaction, original *Transaction) (TransactionEffect, error) {
	if !tx.IsReversal {
		effect, ok := tx.Type.Effect()
		if !ok {
			return nil, fmt.Errorf("model: transaction %d has non-recordable type %s", tx.ID, tx.Type)
		}
		return effect, nil
	}
	if original == nil {
		return nil, fmt.Errorf("model: reversal %d is missing its original", tx.ID)
	}
	if original.IsReversal {
		return nil, fmt.Errorf("model: reversal %d points at reversal %d", tx.ID, original.ID)
	}
	return EffectOf(original, nil)
}
