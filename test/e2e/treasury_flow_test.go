package e2e

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/nimasrn/school-treasury/internal/authz"
	"github.com/nimasrn/school-treasury/internal/events"
	"github.com/nimasrn/school-treasury/internal/handlers"
	"github.com/nimasrn/school-treasury/internal/idempotency"
	"github.com/nimasrn/school-treasury/internal/model"
	"github.com/nimasrn/school-treasury/internal/processor"
	"github.com/nimasrn/school-treasury/internal/reports"
	"github.com/nimasrn/school-treasury/internal/repository"
	"github.com/nimasrn/school-treasury/internal/services"
	xhttp "github.com/nimasrn/school-treasury/pkg/http"
	"github.com/nimasrn/school-treasury/pkg/redis"
	"github.com/nimasrn/school-treasury/test/fixtures"
	"github.com/nimasrn/school-treasury/test/helpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

type TestEnvironment struct {
	Ledger       *repository.LedgerRepository
	Redis        *miniredis.Miniredis
	RedisAdapter redis.RedisAdapter
	Stream       *events.Stream
	Service      *services.TreasuryService
	Handler      fasthttp.RequestHandler
	Processor    *processor.ProcessorService
}

func setupE2EEnvironment(t *testing.T) *TestEnvironment {
	ledger := helpers.SetupTestLedger(t)
	mr, adapter := helpers.SetupTestRedis(t)

	streamConfig := events.StreamConfig{
		Name:              "ledger:events",
		ConsumerGroup:     "treasury-processor",
		ConsumerName:      "e2e",
		MaxRetries:        3,
		VisibilityTimeout: 5 * time.Second,
		PollInterval:      20 * time.Millisecond,
		MaxLen:            1000,
		EnableDLQ:         true,
	}
	stream, err := events.NewStream(adapter, streamConfig)
	require.NoError(t, err)

	policy, err := authz.ParsePolicy([]byte(authz.DefaultPolicy))
	require.NoError(t, err)

	svc := services.NewTreasuryService(ledger, policy, stream, services.DefaultOptions())
	idem := idempotency.NewService(adapter, idempotency.DefaultConfig())

	router := xhttp.CreateDefaultRouter()
	handlers.RegisterTreasuryRoutes(router.Group("/api/v1"), handlers.NewTreasuryHandler(svc, idem))

	metrics := processor.NewServiceMetrics()
	proc := processor.NewProcessorService(adapter, processor.Options{Stream: streamConfig, Workers: 2}, metrics)
	proc.RegisterProcessor(processor.NewLedgerEventProcessor(adapter, services.SeverityClassifier{Warning: 1000, Critical: 10000}, metrics))
	require.NoError(t, proc.Start())
	t.Cleanup(proc.Stop)

	return &TestEnvironment{
		Ledger:       ledger,
		Redis:        mr,
		RedisAdapter: adapter,
		Stream:       stream,
		Service:      svc,
		Handler:      xhttp.RequestIDMiddleware(router.Handler),
		Processor:    proc,
	}
}

func (env *TestEnvironment) do(t *testing.T, req helpers.Request) *fasthttp.RequestCtx {
	t.Helper()
	return helpers.Do(t, env.Handler, req)
}

func (env *TestEnvironment) balances(t *testing.T) model.BalanceSnapshot {
	t.Helper()
	ctx := env.do(t, helpers.Request{Method: "GET", Path: "/api/v1/treasury/balances", Actor: fixtures.Auditor})
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	return helpers.Decode[model.BalanceSnapshot](t, ctx)
}

func TestE2E_SchoolDay(t *testing.T) {
	env := setupE2EEnvironment(t)

	// the head sets the standard float once
	res := env.do(t, helpers.Request{
		Method: "PUT", Path: "/api/v1/treasury/float-target",
		Actor: fixtures.Admin, IdempotencyKey: "float-1",
		Body: fixtures.FloatTarget(20000),
	})
	require.Equal(t, fasthttp.StatusOK, res.Response.StatusCode(), string(res.Response.Body()))

	// fees come in at the safe
	res = env.do(t, helpers.Request{
		Method: "POST", Path: "/api/v1/treasury/transactions",
		Actor: fixtures.Cashier, IdempotencyKey: "fee-S001",
		Body: fixtures.StudentPayment(500000, "S001"),
	})
	require.Equal(t, fasthttp.StatusCreated, res.Response.StatusCode(), string(res.Response.Body()))
	posted := helpers.Decode[model.PostingResult](t, res)
	assert.Equal(t, int64(500000), posted.Balances.Safe)
	assert.Equal(t, "S001", posted.Transaction.StudentID)

	// a retried submission is replayed, not posted twice
	res = env.do(t, helpers.Request{
		Method: "POST", Path: "/api/v1/treasury/transactions",
		Actor: fixtures.Cashier, IdempotencyKey: "fee-S001",
		Body: fixtures.StudentPayment(500000, "S001"),
	})
	require.Equal(t, fasthttp.StatusCreated, res.Response.StatusCode())
	assert.Equal(t, "true", string(res.Response.Header.Peek(handlers.ReplayedHeader)))
	assert.Equal(t, int64(500000), env.balances(t).Safe)

	// the bursar banks most of it
	res = env.do(t, helpers.Request{
		Method: "POST", Path: "/api/v1/treasury/transfers/bank",
		Actor: fixtures.Treasurer, IdempotencyKey: "bank-1",
		Body: fixtures.BankDeposit(300000, "bursar-1"),
	})
	require.Equal(t, fasthttp.StatusCreated, res.Response.StatusCode(), string(res.Response.Body()))
	deposit := helpers.Decode[model.PostingResult](t, res).Transaction

	// the count comes up 30000 short
	res = env.do(t, helpers.Request{
		Method: "POST", Path: "/api/v1/treasury/opening/preview",
		Actor: fixtures.Cashier,
		Body:  map[string]any{"counted_safe_balance": 170000},
	})
	require.Equal(t, fasthttp.StatusOK, res.Response.StatusCode())
	preview := helpers.Decode[model.OpeningPreview](t, res)
	assert.Equal(t, int64(200000), preview.ExpectedSafeBalance)
	assert.Equal(t, int64(-30000), preview.Discrepancy)
	assert.Equal(t, model.SeverityCritical, preview.Severity)
	assert.Equal(t, int64(20000), preview.FloatTarget)

	res = env.do(t, helpers.Request{
		Method: "POST", Path: "/api/v1/treasury/opening/confirm",
		Actor: fixtures.Cashier, IdempotencyKey: "open-1",
		Body: fixtures.OpeningCount(170000, 0, "recounted twice"),
	})
	require.Equal(t, fasthttp.StatusCreated, res.Response.StatusCode(), string(res.Response.Body()))
	opening := helpers.Decode[model.OpeningResult](t, res)
	require.NotNil(t, opening.Adjustment)
	assert.Equal(t, int64(30000), opening.Adjustment.Amount)
	assert.Equal(t, int64(20000), opening.FloatAmount)
	assert.Equal(t, int64(150000), opening.Balances.Safe)
	assert.Equal(t, int64(20000), opening.Balances.Registry)

	// a second opening on the same day is refused
	res = env.do(t, helpers.Request{
		Method: "POST", Path: "/api/v1/treasury/opening/confirm",
		Actor: fixtures.Cashier, IdempotencyKey: "open-2",
		Body: fixtures.OpeningCount(150000, 0, "again"),
	})
	assert.Equal(t, fasthttp.StatusConflict, res.Response.StatusCode())

	// cashiers cannot reverse, the bursar can, exactly once
	reversalPath := fmt.Sprintf("/api/v1/treasury/transactions/%d/reversal", deposit.ID)
	res = env.do(t, helpers.Request{
		Method: "POST", Path: reversalPath,
		Actor: fixtures.Cashier, IdempotencyKey: "rev-1",
		Body: fixtures.Reversal("deposit slip rejected"),
	})
	assert.Equal(t, fasthttp.StatusForbidden, res.Response.StatusCode())

	res = env.do(t, helpers.Request{
		Method: "POST", Path: reversalPath,
		Actor: fixtures.Treasurer, IdempotencyKey: "rev-2",
		Body: fixtures.Reversal("deposit slip rejected"),
	})
	require.Equal(t, fasthttp.StatusCreated, res.Response.StatusCode(), string(res.Response.Body()))
	reversal := helpers.Decode[model.ReversalResult](t, res)
	assert.Equal(t, model.TypeReversalBankDeposit, reversal.Reversal.Type)
	assert.Equal(t, int64(450000), reversal.Balances.Safe)
	assert.Equal(t, int64(0), reversal.Balances.Bank)

	res = env.do(t, helpers.Request{
		Method: "POST", Path: reversalPath,
		Actor: fixtures.Treasurer, IdempotencyKey: "rev-3",
		Body: fixtures.Reversal("deposit slip rejected"),
	})
	assert.Equal(t, fasthttp.StatusConflict, res.Response.StatusCode())

	// overspending is rejected with the shortfall
	res = env.do(t, helpers.Request{
		Method: "POST", Path: "/api/v1/treasury/transactions",
		Actor: fixtures.Cashier, IdempotencyKey: "exp-1",
		Body: fixtures.ExpensePayment(1000000, "Builder", "maintenance"),
	})
	require.Equal(t, fasthttp.StatusConflict, res.Response.StatusCode())
	rejection := helpers.Decode[map[string]any](t, res)
	assert.Equal(t, "safe", rejection["location"])
	assert.EqualValues(t, 550000, rejection["shortfall"])

	// the history replays to the snapshot
	res = env.do(t, helpers.Request{Method: "GET", Path: "/api/v1/treasury/reconciliation", Actor: fixtures.Auditor})
	require.Equal(t, fasthttp.StatusOK, res.Response.StatusCode())
	rec := helpers.Decode[model.Reconciliation](t, res)
	assert.True(t, rec.Consistent)
	assert.True(t, rec.LatestMatches)
	assert.Equal(t, int64(5), rec.TransactionCount)

	// the processor escalates the short count
	ctx := context.Background()
	helpers.AssertEventually(t, 3*time.Second, func() bool {
		list, err := processor.Escalations(ctx, env.RedisAdapter)
		return err == nil && len(list) == 1
	}, "critical opening was not escalated")
	list, err := processor.Escalations(ctx, env.RedisAdapter)
	require.NoError(t, err)
	assert.Equal(t, int64(-30000), list[0].Discrepancy)
	assert.Equal(t, fixtures.Cashier.ID, list[0].ActorID)

	helpers.AssertEventually(t, 3*time.Second, func() bool {
		return env.Processor.Metrics().Snapshot().Handled >= 6
	}, "not every ledger event was handled")

	// and the report feed sees the same day
	today := time.Now().UTC().Truncate(24 * time.Hour)
	summary, err := reports.NewService(env.Ledger).DailySummary(ctx, today, today.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, summary.Days, 1)
	assert.Equal(t, 5, summary.Days[0].Transactions)
	assert.Equal(t, int64(20000), summary.Days[0].Locations[model.LocationRegistry].Net)
	assert.Equal(t, int64(0), summary.Days[0].Locations[model.LocationBank].Net)
}

func TestE2E_UnknownActorIsRejected(t *testing.T) {
	env := setupE2EEnvironment(t)

	res := env.do(t, helpers.Request{
		Method: "POST", Path: "/api/v1/treasury/transactions",
		Actor: fixtures.Stranger, IdempotencyKey: "fee-x",
		Body: fixtures.StudentPayment(1000, "S002"),
	})
	assert.Equal(t, fasthttp.StatusForbidden, res.Response.StatusCode())

	res = env.do(t, helpers.Request{Method: "GET", Path: "/api/v1/treasury/balances"})
	assert.Equal(t, fasthttp.StatusForbidden, res.Response.StatusCode())

	snapshot, err := env.Ledger.GetBalances(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.Balances{}, snapshot.Balances)
}
