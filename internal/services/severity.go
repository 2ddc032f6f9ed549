package services

import "github.com/nimasrn/school-treasury/internal/model"

// SeverityClassifier grades an opening discrepancy by its absolute size.
// It only labels; nothing in the posting path blocks on the result.
type SeverityClassifier struct {
	Warning  int64
	Critical int64
}

func (c SeverityClassifier) Classify(discrepancy int64) model.DiscrepancySeverity {
	abs := discrepancy
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs == 0:
		return model.SeverityNone
	case abs >= c.Critical:
		return model.SeverityCritical
	case abs >= c.Warning:
		return model.SeverityWarning
	}
	return model.SeverityNormal
}
