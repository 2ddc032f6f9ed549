package handlers

import (
	"context"
	"errors"

	"github.com/nimasrn/school-treasury/internal/idempotency"
	xhttp "github.com/nimasrn/school-treasury/pkg/http"
)

const (
	IdempotencyKeyHeader = "Idempotency-Key"
	ReplayedHeader       = "Idempotent-Replayed"

	maxIdempotencyKeyLen = 255
)

type IdempotencyStore interface {
	Begin(ctx context.Context, key, fingerprint string) (*idempotency.Request, *idempotency.Response, error)
	Complete(ctx context.Context, req *idempotency.Request, status int, body []byte) error
	Release(ctx context.Context, req *idempotency.Request) error
}

// idempotent replays the stored response when a mutating request is retried
// with the same Idempotency-Key. Keys are scoped per actor. Server errors are
// not stored so the client may retry them.
func (h *TreasuryHandler) idempotent(next xhttp.RequestHandler) xhttp.RequestHandler {
	return func(ctx *xhttp.RequestCtx) {
		key := string(ctx.Request.Header.Peek(IdempotencyKeyHeader))
		if key == "" || h.idem == nil {
			next(ctx)
			return
		}
		if len(key) > maxIdempotencyKeyLen {
			writeJSON(ctx, xhttp.StatusUnprocessableEntity, errorResponse{
				Error: "idempotency key is too long", Code: "validation", Field: IdempotencyKeyHeader,
			})
			return
		}

		scoped := actorFrom(ctx).ID + ":" + key
		fingerprint := idempotency.Fingerprint(ctx.Method(), ctx.Path(), ctx.PostBody())

		req, cached, err := h.idem.Begin(ctx, scoped, fingerprint)
		switch {
		case errors.Is(err, idempotency.ErrInProgress):
			writeJSON(ctx, xhttp.StatusConflict, errorResponse{Error: err.Error(), Code: "idempotency_in_progress"})
			return
		case errors.Is(err, idempotency.ErrKeyReused):
			writeJSON(ctx, xhttp.StatusUnprocessableEntity, errorResponse{
				Error: err.Error(), Code: "idempotency_key_reused", Field: IdempotencyKeyHeader,
			})
			return
		case err != nil:
			writeJSON(ctx, xhttp.StatusServiceUnavailable, errorResponse{
				Error: "idempotency store unavailable", Code: "idempotency_unavailable",
			})
			return
		}

		if cached != nil {
			ctx.Response.Header.Set(ReplayedHeader, "true")
			ctx.Response.Header.Set("Content-Type", "application/json; charset=utf-8")
			ctx.Response.SetStatusCode(cached.Status)
			ctx.Response.SetBody(cached.Body)
			return
		}

		next(ctx)

		// the posting already committed; store with a fresh context
		storeCtx := context.WithoutCancel(ctx)
		if status := ctx.Response.StatusCode(); status >= xhttp.StatusInternalServerError {
			_ = h.idem.Release(storeCtx, req)
			return
		}
		_ = h.idem.Complete(storeCtx, req, ctx.Response.StatusCode(), append([]byte(nil), ctx.Response.Body()...))
	}
}
