package helpers

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/nimasrn/school-treasury/internal/model"
	"github.com/nimasrn/school-treasury/internal/repository"
	"github.com/nimasrn/school-treasury/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

const RedisPrefix = "treasury:"

// SetupTestLedger returns an empty ledger on in-memory sqlite.
func SetupTestLedger(t *testing.T) *repository.LedgerRepository {
	return repository.NewTestLedger(t)
}

// SetupTestRedis starts a miniredis that is closed with the test. The adapter
// is registered under a name unique to the test so cached adapters from other
// tests are never reused.
func SetupTestRedis(t *testing.T) (*miniredis.Miniredis, redis.RedisAdapter) {
	mr := miniredis.RunT(t)

	adapter, err := redis.NewRedisAdapter(t.Name()+"-"+mr.Addr(), RedisPrefix, &goredis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	require.NoError(t, err)

	return mr, adapter
}

// Request describes one call against an in-process fasthttp handler.
type Request struct {
	Method         string
	Path           string
	Body           any
	Actor          model.Actor
	IdempotencyKey string
}

// Do serves req through handler and returns the finished request context.
func Do(t *testing.T, handler fasthttp.RequestHandler, req Request) *fasthttp.RequestCtx {
	t.Helper()

	r := &fasthttp.Request{}
	r.Header.SetMethod(req.Method)
	r.SetRequestURI(req.Path)
	if req.Actor.ID != "" {
		r.Header.Set("X-Actor-Id", req.Actor.ID)
		r.Header.Set("X-Actor-Role", req.Actor.Role)
	}
	if req.IdempotencyKey != "" {
		r.Header.Set("Idempotency-Key", req.IdempotencyKey)
	}
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		require.NoError(t, err)
		r.Header.SetContentType("application/json")
		r.SetBody(data)
	}

	ctx := &fasthttp.RequestCtx{}
	ctx.Init(r, nil, nil)
	handler(ctx)
	return ctx
}

// Decode unmarshals the response body of ctx into a value of type T.
func Decode[T any](t *testing.T, ctx *fasthttp.RequestCtx) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &out), string(ctx.Response.Body()))
	return out
}

func WaitForCondition(t *testing.T, timeout time.Duration, condition func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func AssertEventually(t *testing.T, timeout time.Duration, condition func() bool, msg string) {
	if !WaitForCondition(t, timeout, condition) {
		t.Fatal(msg)
	}
}

func ContextWithTimeout(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

func Ptr[T any](v T) *T {
	return &v
}
