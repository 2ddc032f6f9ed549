package xhttp

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nimasrn/school-treasury/pkg/logger"
	"github.com/valyala/fasthttp"
)

const slowThreshold = 500 * time.Millisecond

const RequestIDHeader = "X-Request-Id"

const requestIDKey = "request_id"

var skipPaths = []string{"/health", "/metrics", "/api/v1/health"}

type MiddlewareFunc func(next RequestHandler) RequestHandler
type RequestCtx = fasthttp.RequestCtx
type RequestHandler = fasthttp.RequestHandler

func TimeoutMiddleware(timeout time.Duration) MiddlewareFunc {
	return func(next RequestHandler) RequestHandler {
		return fasthttp.TimeoutWithCodeHandler(next, timeout, StatusText(StatusRequestTimeout), StatusRequestTimeout)
	}
}

func CompressMiddleware(level int) MiddlewareFunc {
	return func(next RequestHandler) RequestHandler {
		return fasthttp.CompressHandlerBrotliLevel(next, level, level)
	}
}

func RecoverMiddleware(next RequestHandler) RequestHandler {
	return func(ctx *RequestCtx) {
		defer func() {
			if err := recover(); err != nil {
				ctx.Error(StatusText(StatusInternalServerError), StatusInternalServerError)
				logger.Error("[xhttp] panic recovered", "error", err, "request_id", RequestID(ctx))
			}
		}()
		next(ctx)
	}
}

// RequestIDMiddleware makes sure every request carries an id, echoing it on
// the response so clients can quote it when reporting a failed posting.
func RequestIDMiddleware(next RequestHandler) RequestHandler {
	return func(ctx *RequestCtx) {
		rid := string(ctx.Request.Header.Peek(RequestIDHeader))
		if rid == "" {
			rid = uuid.NewString()
		}
		ctx.SetUserValue(requestIDKey, rid)
		ctx.Response.Header.Set(RequestIDHeader, rid)
		next(ctx)
	}
}

func RequestLoggerMiddleware(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		path := string(ctx.Path())
		if shouldSkip(path) {
			next(ctx)
			return
		}

		start := time.Now()
		next(ctx)

		latency := time.Since(start)
		status := ctx.Response.StatusCode()
		fields := []any{
			"status", status,
			"method", string(ctx.Method()),
			"path", path,
			"latency", latency.String(),
			"bytes_in", len(ctx.PostBody()),
			"bytes_out", len(ctx.Response.Body()),
			"ip", ctx.RemoteIP().String(),
			"actor", string(ctx.Request.Header.Peek("X-Actor-Id")),
			"request_id", RequestID(ctx),
		}

		lg := logger.GetLogger()

		// choose level
		switch {
		case status >= 500:
			lg.Error("http_request", fields...)
		case status >= 400 || latency > slowThreshold:
			lg.Warn("http_request", fields...)
		default:
			lg.Info("http_request", fields...)
		}
	}
}

func shouldSkip(p string) bool {
	for _, sp := range skipPaths {
		if strings.HasPrefix(p, sp) {
			return true
		}
	}
	return false
}

// RequestID returns the id assigned by RequestIDMiddleware, falling back to
// the raw header for handlers invoked without the middleware.
func RequestID(ctx *fasthttp.RequestCtx) string {
	if v, ok := ctx.UserValue(requestIDKey).(string); ok {
		return v
	}
	return string(ctx.Request.Header.Peek(RequestIDHeader))
}
