package model

// CashLocation is one of the four places the school keeps money.
type CashLocation string

const (
	LocationRegistry    CashLocation = "registry"
	LocationSafe        CashLocation = "safe"
	LocationBank        CashLocation = "bank"
	LocationMobileMoney CashLocation = "mobile_money"
)

// Locations lists every cash location in display order.
var Locations = []CashLocation{
	LocationRegistry,
	LocationSafe,
	LocationBank,
	LocationMobileMoney,
}

func (l CashLocation) Valid() bool {
	switch l {
	case LocationRegistry, LocationSafe, LocationBank, LocationMobileMoney:
		return true
	}
	return false
}

func (l CashLocation) String() string { return string(l) }
