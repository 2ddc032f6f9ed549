package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/nimasrn/school-treasury/internal/model"
	"github.com/nimasrn/school-treasury/internal/repository"
)

const dayLayout = "2006-01-02"

// MaxSummaryDays bounds one daily summary request.
const MaxSummaryDays = 366

// Ledger is the read side of the ledger store the reports are built from.
type Ledger interface {
	ScanEffects(ctx context.Context, from, to *time.Time, fn func(row repository.EffectRow) error) error
	ListTransactions(ctx context.Context, filter model.TransactionFilter) ([]*model.Transaction, int64, error)
}

// Flow is the money that entered and left one location.
type Flow struct {
	In  int64 `json:"in"`
	Out int64 `json:"out"`
	Net int64 `json:"net"`
}

// DaySummary aggregates one UTC calendar day of postings.
type DaySummary struct {
	Day          string                          `json:"day"`
	Transactions int                             `json:"transactions"`
	Reversals    int                             `json:"reversals"`
	Locations    map[model.CashLocation]Flow     `json:"locations"`
	ByType       map[model.TransactionType]int64 `json:"amount_by_type"`
}

type Summary struct {
	From time.Time    `json:"from"`
	To   time.Time    `json:"to"`
	Days []DaySummary `json:"days"`
}

type Service struct {
	ledger Ledger
}

func NewService(ledger Ledger) *Service {
	return &Service{ledger: ledger}
}

// DailySummary reports every day in [from, to) that has postings, oldest
// first. Internal transfers show up as out of one location and into another.
func (s *Service) DailySummary(ctx context.Context, from, to time.Time) (*Summary, error) {
	from, to = from.UTC(), to.UTC()
	if !to.After(from) {
		return nil, model.NewValidationError("to", "must be after from")
	}
	if to.Sub(from) > MaxSummaryDays*24*time.Hour {
		return nil, model.NewValidationError("to", fmt.Sprintf("range must not exceed %d days", MaxSummaryDays))
	}

	var days []DaySummary
	index := map[string]int{}

	err := s.ledger.ScanEffects(ctx, &from, &to, func(row repository.EffectRow) error {
		key := row.RecordedAt.UTC().Format(dayLayout)
		i, ok := index[key]
		if !ok {
			days = append(days, newDay(key))
			i = len(days) - 1
			index[key] = i
		}
		day := &days[i]

		day.Transactions++
		if row.IsReversal {
			day.Reversals++
		}
		day.ByType[row.Type] += row.Amount

		for _, loc := range model.Locations {
			d := row.Delta.Get(loc)
			if d == 0 {
				continue
			}
			f := day.Locations[loc]
			if d > 0 {
				f.In += d
			} else {
				f.Out -= d
			}
			f.Net += d
			day.Locations[loc] = f
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("daily summary: %w", err)
	}

	if days == nil {
		days = []DaySummary{}
	}
	return &Summary{From: from, To: to, Days: days}, nil
}

func newDay(key string) DaySummary {
	locations := make(map[model.CashLocation]Flow, len(model.Locations))
	for _, loc := range model.Locations {
		locations[loc] = Flow{}
	}
	return DaySummary{
		Day:       key,
		Locations: locations,
		ByType:    map[model.TransactionType]int64{},
	}
}

// Transactions is the export feed: filtered history, oldest first.
func (s *Service) Transactions(ctx context.Context, filter model.TransactionFilter) ([]*model.Transaction, int64, error) {
	filter.Ascending = true
	items, total, err := s.ledger.ListTransactions(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("export transactions: %w", err)
	}
	return items, total, nil
}
