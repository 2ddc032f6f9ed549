package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nimasrn/school-treasury/internal/model"
	"github.com/nimasrn/school-treasury/pkg/pg"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultMaxRetries = 3
	baseRetryDelay    = 2 * time.Millisecond
	defaultListLimit  = 50
	maxListLimit      = 500
)

// PlanFunc computes the rows of one posting from the locked current snapshot.
// Every returned draft must carry all four balance-after values; the last one
// becomes the new snapshot. ctx carries the open transaction, so reads made
// through the repository inside a plan see the locked state.
type PlanFunc func(ctx context.Context, current model.BalanceSnapshot) ([]*model.Transaction, error)

// LedgerRepository owns the balance snapshot and the append-only transaction
// log. It is the only code that writes balances.
type LedgerRepository struct {
	*pg.DB
	maxRetries int
	now        func() time.Time
}

func NewLedgerRepository(db *pg.DB, maxRetries int) *LedgerRepository {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	return &LedgerRepository{
		DB:         db,
		maxRetries: maxRetries,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// AutoMigrate creates the ledger tables from the entities. Postgres
// deployments use the goose migrations instead.
func (r *LedgerRepository) AutoMigrate(ctx context.Context) error {
	if err := r.Write(ctx).AutoMigrate(&BalanceEntity{}, &TransactionEntity{}); err != nil {
		return fmt.Errorf("auto migrate ledger: %w", err)
	}
	return nil
}

// GetBalances returns the current snapshot, creating a zeroed one on first use.
func (r *LedgerRepository) GetBalances(ctx context.Context) (model.BalanceSnapshot, error) {
	var entity BalanceEntity
	err := r.Read(ctx).
		Where("id = ?", snapshotID).
		First(&entity).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if err = r.ensureSnapshot(ctx); err != nil {
			return model.BalanceSnapshot{}, err
		}
		err = r.Write(ctx).Where("id = ?", snapshotID).First(&entity).Error
	}
	if err != nil {
		return model.BalanceSnapshot{}, fmt.Errorf("get balances: %w", err)
	}
	return toSnapshotModel(&entity), nil
}

func (r *LedgerRepository) ensureSnapshot(ctx context.Context) error {
	err := r.Write(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&BalanceEntity{ID: snapshotID, UpdatedAt: r.now()}).
		Error
	if err != nil {
		return fmt.Errorf("create balance snapshot: %w", err)
	}
	return nil
}

// lockSnapshot reads the snapshot with SELECT ... FOR UPDATE, creating it if
// it does not exist yet. Must run inside WithinTransaction.
func (r *LedgerRepository) lockSnapshot(ctx context.Context) (*BalanceEntity, error) {
	var entity BalanceEntity
	lock := func() error {
		return r.Write(ctx).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", snapshotID).
			First(&entity).
			Error
	}

	err := lock()
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if err = r.ensureSnapshot(ctx); err != nil {
			return nil, err
		}
		err = lock()
	}
	if err != nil {
		return nil, fmt.Errorf("lock balance snapshot: %w", err)
	}
	return &entity, nil
}

// Post runs plan against the locked snapshot and commits the drafts it
// returns together with the snapshot update, all or nothing. A lost version
// race is retried with exponential backoff; business errors returned by plan
// are passed through untouched.
func (r *LedgerRepository) Post(ctx context.Context, plan PlanFunc) ([]*model.Transaction, model.BalanceSnapshot, error) {
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		posted, snapshot, err := r.postAttempt(ctx, plan)
		if err == nil {
			return posted, snapshot, nil
		}

		if !errors.Is(err, model.ErrConcurrencyConflict) {
			return nil, model.BalanceSnapshot{}, err
		}

		if attempt < r.maxRetries {
			delay := baseRetryDelay * time.Duration(1<<attempt) // 2ms, 4ms, 8ms
			select {
			case <-ctx.Done():
				return nil, model.BalanceSnapshot{}, ctx.Err()
			case <-time.After(delay):
				continue
			}
		}
	}

	return nil, model.BalanceSnapshot{}, fmt.Errorf("%w: failed after %d attempts", model.ErrMaxRetriesExceeded, r.maxRetries+1)
}

type postingTimeKey struct{}

func withPostingTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, postingTimeKey{}, t)
}

// PostingTime is the instant Post stamps on every row of the current plan.
// Outside a plan it falls back to the wall clock.
func PostingTime(ctx context.Context) time.Time {
	if t, ok := ctx.Value(postingTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now().UTC()
}

func (r *LedgerRepository) postAttempt(ctx context.Context, plan PlanFunc) ([]*model.Transaction, model.BalanceSnapshot, error) {
	var (
		drafts   []*model.Transaction
		snapshot model.BalanceSnapshot
	)

	err := r.WithinTransaction(ctx, func(ctx context.Context) error {
		locked, err := r.lockSnapshot(ctx)
		if err != nil {
			return err
		}

		now := r.now()
		drafts, err = plan(withPostingTime(ctx, now), toSnapshotModel(locked))
		if err != nil {
			return err
		}
		if len(drafts) == 0 {
			return errors.New("post: plan produced no transactions")
		}

		for _, draft := range drafts {
			if err := checkDraft(draft); err != nil {
				return err
			}
			if draft.RecordedAt.IsZero() {
				draft.RecordedAt = now
			}
			if draft.IsReversal && draft.ReversedAt == nil {
				reversedAt := draft.RecordedAt
				draft.ReversedAt = &reversedAt
			}
			entity := toTransactionEntity(draft)
			if err := r.Write(ctx).Create(entity).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) && draft.IsReversal {
					return model.ErrAlreadyReversed
				}
				return fmt.Errorf("insert %s transaction: %w", draft.Type, err)
			}
			draft.ID = entity.ID
		}

		last := drafts[len(drafts)-1].BalancesAfter()
		result := r.Write(ctx).
			Model(&BalanceEntity{}).
			Where("id = ? AND version = ?", snapshotID, locked.Version).
			Updates(map[string]any{
				"registry_balance":     last.Registry,
				"safe_balance":         last.Safe,
				"bank_balance":         last.Bank,
				"mobile_money_balance": last.MobileMoney,
				"version":              locked.Version + 1,
				"updated_at":           now,
			})
		if result.Error != nil {
			return fmt.Errorf("update balance snapshot: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return model.ErrConcurrencyConflict
		}

		snapshot = model.BalanceSnapshot{
			Balances:            last,
			RegistryFloatAmount: locked.RegistryFloatAmount,
			Version:             locked.Version + 1,
			UpdatedAt:           now,
		}
		return nil
	})
	if err != nil {
		return nil, model.BalanceSnapshot{}, err
	}
	return drafts, snapshot, nil
}

func checkDraft(draft *model.Transaction) error {
	if draft.Amount <= 0 {
		return fmt.Errorf("post: draft %s has non-positive amount %d", draft.Type, draft.Amount)
	}
	after := draft.BalancesAfter()
	for _, loc := range model.Locations {
		if after.Get(loc) < 0 {
			return fmt.Errorf("post: draft %s leaves %s negative", draft.Type, loc)
		}
	}
	return nil
}

// UpdateFloatTarget stores the standard daily float on the snapshot.
func (r *LedgerRepository) UpdateFloatTarget(ctx context.Context, amount int64) (model.BalanceSnapshot, error) {
	var snapshot model.BalanceSnapshot
	err := r.WithinTransaction(ctx, func(ctx context.Context) error {
		locked, err := r.lockSnapshot(ctx)
		if err != nil {
			return err
		}
		now := r.now()
		result := r.Write(ctx).
			Model(&BalanceEntity{}).
			Where("id = ? AND version = ?", snapshotID, locked.Version).
			Updates(map[string]any{
				"registry_float_amount": amount,
				"version":               locked.Version + 1,
				"updated_at":            now,
			})
		if result.Error != nil {
			return fmt.Errorf("update float target: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return model.ErrConcurrencyConflict
		}
		locked.RegistryFloatAmount = amount
		locked.Version++
		locked.UpdatedAt = now
		snapshot = toSnapshotModel(locked)
		return nil
	})
	return snapshot, err
}

func (r *LedgerRepository) FindTransaction(ctx context.Context, id int64) (*model.Transaction, error) {
	var entity TransactionEntity
	err := r.Read(ctx).
		Where("id = ?", id).
		First(&entity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("find transaction %d: %w", id, err)
	}
	return toTransactionModel(&entity), nil
}

// FindReversalOf returns the reversal row of the given original, or
// model.ErrNotFound if it has not been reversed.
func (r *LedgerRepository) FindReversalOf(ctx context.Context, originalID int64) (*model.Transaction, error) {
	var entity TransactionEntity
	err := r.Read(ctx).
		Where("original_transaction_id = ? AND is_reversal = ?", originalID, true).
		First(&entity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("find reversal of %d: %w", originalID, err)
	}
	return toTransactionModel(&entity), nil
}

// LatestTransaction returns the most recently posted row, or model.ErrNotFound
// for an empty ledger.
func (r *LedgerRepository) LatestTransaction(ctx context.Context) (*model.Transaction, error) {
	var entity TransactionEntity
	err := r.Read(ctx).
		Order("id DESC").
		First(&entity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("latest transaction: %w", err)
	}
	return toTransactionModel(&entity), nil
}

// ListTransactions returns one page of history matching filter and the total
// number of matching rows.
func (r *LedgerRepository) ListTransactions(ctx context.Context, filter model.TransactionFilter) ([]*model.Transaction, int64, error) {
	query := r.Read(ctx).Model(&TransactionEntity{})
	if filter.Type != "" {
		query = query.Where("type = ?", string(filter.Type))
	}
	if filter.ReferenceID != "" {
		query = query.Where("reference_id = ?", filter.ReferenceID)
	}
	if filter.OriginalTransactionID != nil {
		query = query.Where("original_transaction_id = ?", *filter.OriginalTransactionID)
	}
	if filter.From != nil {
		query = query.Where("recorded_at >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("recorded_at < ?", *filter.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	order := "id DESC"
	if filter.Ascending {
		order = "id ASC"
	}

	var entities []*TransactionEntity
	err := query.
		Order(order).
		Limit(limit).
		Offset(filter.Offset).
		Find(&entities).
		Error
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	return toTransactionModels(entities), total, nil
}

// EffectRow is one transaction reduced to its signed balance change.
type EffectRow struct {
	ID         int64
	Type       model.TransactionType
	Direction  model.Direction
	Amount     int64
	IsReversal bool
	RecordedAt time.Time
	Delta      model.Balances
}

type effectScan struct {
	ID           int64
	Type         string
	Direction    string
	Amount       int64
	IsReversal   bool
	RecordedAt   time.Time
	OriginalType *string
}

// ScanEffects walks the history in id order, optionally bounded by
// recorded_at, and calls fn with the signed delta of each row. Reversal rows
// are resolved against the original they reverse.
func (r *LedgerRepository) ScanEffects(ctx context.Context, from, to *time.Time, fn func(row EffectRow) error) error {
	db := r.Read(ctx)
	query := db.
		Table("treasury_transactions AS t").
		Select("t.id, t.type, t.direction, t.amount, t.is_reversal, t.recorded_at, o.type AS original_type").
		Joins("LEFT JOIN treasury_transactions AS o ON o.id = t.original_transaction_id").
		Order("t.id ASC")
	if from != nil {
		query = query.Where("t.recorded_at >= ?", *from)
	}
	if to != nil {
		query = query.Where("t.recorded_at < ?", *to)
	}

	rows, err := query.Rows()
	if err != nil {
		return fmt.Errorf("scan ledger: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var scan effectScan
		if err := db.ScanRows(rows, &scan); err != nil {
			return fmt.Errorf("scan ledger row: %w", err)
		}

		tx := &model.Transaction{
			ID:         scan.ID,
			Type:       model.TransactionType(scan.Type),
			Direction:  model.Direction(scan.Direction),
			Amount:     scan.Amount,
			IsReversal: scan.IsReversal,
		}
		var original *model.Transaction
		if scan.OriginalType != nil {
			original = &model.Transaction{Type: model.TransactionType(*scan.OriginalType)}
		}
		effect, err := model.EffectOf(tx, original)
		if err != nil {
			return err
		}
		delta, err := model.Delta(effect, tx.Direction, tx.Amount)
		if err != nil {
			return err
		}

		err = fn(EffectRow{
			ID:         scan.ID,
			Type:       tx.Type,
			Direction:  tx.Direction,
			Amount:     scan.Amount,
			IsReversal: scan.IsReversal,
			RecordedAt: scan.RecordedAt,
			Delta:      delta,
		})
		if err != nil {
			return err
		}
	}
	return rows.Err()
}

// Replay recomputes the balances by summing the signed effect of every row.
func (r *LedgerRepository) Replay(ctx context.Context) (model.Balances, int64, error) {
	var (
		balances model.Balances
		count    int64
	)
	err := r.ScanEffects(ctx, nil, nil, func(row EffectRow) error {
		balances = balances.Add(row.Delta)
		count++
		return nil
	})
	return balances, count, err
}

// Reconcile compares the snapshot with a full replay of the history. The
// snapshot row is share-locked so no posting lands between the two reads.
func (r *LedgerRepository) Reconcile(ctx context.Context) (*model.Reconciliation, error) {
	var result *model.Reconciliation
	err := r.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := r.ensureSnapshot(ctx); err != nil {
			return err
		}
		var entity BalanceEntity
		err := r.Write(ctx).
			Clauses(clause.Locking{Strength: "SHARE"}).
			Where("id = ?", snapshotID).
			First(&entity).
			Error
		if err != nil {
			return fmt.Errorf("read balance snapshot: %w", err)
		}
		snapshot := toSnapshotModel(&entity).Balances

		replayed, count, err := r.Replay(ctx)
		if err != nil {
			return err
		}

		latestMatches := snapshot.IsZero()
		latest, err := r.LatestTransaction(ctx)
		switch {
		case err == nil:
			latestMatches = latest.BalancesAfter() == snapshot
		case !errors.Is(err, model.ErrNotFound):
			return err
		}

		diff := snapshot.Diff(replayed)
		result = &model.Reconciliation{
			Snapshot:         snapshot,
			Replayed:         replayed,
			Difference:       diff,
			Consistent:       diff.IsZero() && latestMatches,
			TransactionCount: count,
			LatestMatches:    latestMatches,
			CheckedAt:        r.now(),
		}
		return nil
	})
	return result, err
}
