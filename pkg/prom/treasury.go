package prom

// Typed helpers so callers never spell subsystem/metric pairs by hand.

func TransactionPosted(txType, direction string, amount int64) {
	IncCounterVec(SystemTreasury, MetricTransactionsPosted, txType, direction)
	AddCounterVec(SystemTreasury, MetricAmountPosted, float64(amount), txType, direction)
}

func OperationRejected(operation, reason string) {
	IncCounterVec(SystemTreasury, MetricOperationsRejected, operation, reason)
}

func LocationBalance(location string, balance int64) {
	SetGaugeVec(SystemTreasury, MetricLocationBalance, float64(balance), location)
}

func OpeningDiscrepancy(abs int64) {
	AddHistogram(SystemTreasury, MetricOpeningDiscrepancy, float64(abs))
}

func OpeningEscalated(severity string) {
	IncCounterVec(SystemTreasury, MetricOpeningEscalations, severity)
}

func PostingDuration(operation string, seconds float64) {
	AddHistogramVec(SystemTreasury, MetricPostingDuration, seconds, operation)
}

func EventHandled(kind, result string) {
	IncCounterVec(SystemEvents, MetricEventsHandled, kind, result)
}

func EventPublishFailed() {
	IncCounter(SystemEvents, MetricEventsPublishFailure)
}
