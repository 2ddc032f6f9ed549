package model

import (
	"fmt"
	"math"
	"time"
)

// Balances holds the amount at every cash location, in minor currency units.
type Balances struct {
	Registry    int64 `json:"registry_balance"`
	Safe        int64 `json:"safe_balance"`
	Bank        int64 `json:"bank_balance"`
	MobileMoney int64 `json:"mobile_money_balance"`
}

// BalanceSnapshot is the single current-state record of the treasury.
type BalanceSnapshot struct {
	Balances
	RegistryFloatAmount int64     `json:"registry_float_amount"`
	Version             int64     `json:"version"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func (b Balances) Get(loc CashLocation) int64 {
	switch loc {
	case LocationRegistry:
		return b.Registry
	case LocationSafe:
		return b.Safe
	case LocationBank:
		return b.Bank
	case LocationMobileMoney:
		return b.MobileMoney
	}
	panic(fmt.Sprintf("model: unknown cash location %q", loc))
}

func (b *Balances) Set(loc CashLocation, amount int64) {
	switch loc {
	case LocationRegistry:
		b.Registry = amount
	case LocationSafe:
		b.Safe = amount
	case LocationBank:
		b.Bank = amount
	case LocationMobileMoney:
		b.MobileMoney = amount
	default:
		panic(fmt.Sprintf("model: unknown cash location %q", loc))
	}
}

// Apply returns the balances after moving amount according to effect and dir.
// The receiver is left untouched. If any location would end below zero an
// *InsufficientFundsError naming that location is returned; an amount that
// would overflow a location is a validation error.
func (b Balances) Apply(effect TransactionEffect, dir Direction, amount int64) (Balances, error) {
	if amount <= 0 {
		return b, NewValidationError("amount", "must be a positive integer")
	}
	if !dir.Valid() {
		return b, NewValidationError("direction", "must be in or out")
	}

	delta, err := Delta(effect, dir, amount)
	if err != nil {
		return b, err
	}
	for _, loc := range Locations {
		if d := delta.Get(loc); d > 0 && b.Get(loc) > math.MaxInt64-d {
			return b, NewValidationError("amount", fmt.Sprintf("would overflow the %s balance", loc))
		}
	}
	next := b.Add(delta)

	for _, loc := range Locations {
		if after := next.Get(loc); after < 0 {
			available := b.Get(loc)
			return b, &InsufficientFundsError{
				Location:  loc,
				Available: available,
				Required:  available - after,
				Shortfall: -after,
			}
		}
	}
	return next, nil
}

// Delta is the signed per-location change of moving amount by effect and dir.
func Delta(effect TransactionEffect, dir Direction, amount int64) (Balances, error) {
	var delta Balances
	switch e := effect.(type) {
	case CashMovement:
		if dir == DirectionIn {
			delta.Set(e.Location, amount)
		} else {
			delta.Set(e.Location, -amount)
		}
	case InterLocationTransfer:
		from, to := e.From, e.To
		if dir == DirectionIn {
			from, to = to, from
		}
		delta.Set(from, -amount)
		delta.Set(to, amount)
	default:
		return delta, fmt.Errorf("model: unsupported transaction effect %T", effect)
	}
	return delta, nil
}

func (b Balances) Add(other Balances) Balances {
	return Balances{
		Registry:    b.Registry + other.Registry,
		Safe:        b.Safe + other.Safe,
		Bank:        b.Bank + other.Bank,
		MobileMoney: b.MobileMoney + other.MobileMoney,
	}
}

// Diff returns b - other per location.
func (b Balances) Diff(other Balances) Balances {
	return Balances{
		Registry:    b.Registry - other.Registry,
		Safe:        b.Safe - other.Safe,
		Bank:        b.Bank - other.Bank,
		MobileMoney: b.MobileMoney - other.MobileMoney,
	}
}

func (b Balances) IsZero() bool {
	return b == Balances{}
}
