package model

// Action names a treasury permission checked before every call.
type Action string

const (
	ActionView        Action = "treasury.view"
	ActionRecord      Action = "treasury.record"
	ActionReverse     Action = "treasury.reverse"
	ActionOpen        Action = "treasury.open"
	ActionTransfer    Action = "treasury.transfer"
	ActionReconcile   Action = "treasury.reconcile"
	ActionConfigure   Action = "treasury.configure"
	ActionAllWildcard Action = "*"
)

var AllActions = []Action{
	ActionView,
	ActionRecord,
	ActionReverse,
	ActionOpen,
	ActionTransfer,
	ActionReconcile,
	ActionConfigure,
}
