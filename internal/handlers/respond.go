package handlers

import (
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/nimasrn/school-treasury/internal/model"
	xhttp "github.com/nimasrn/school-treasury/pkg/http"
	"github.com/nimasrn/school-treasury/pkg/logger"
)

const (
	ActorIDHeader   = "X-Actor-Id"
	ActorRoleHeader = "X-Actor-Role"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
	Field string `json:"field,omitempty"`

	Location  model.CashLocation `json:"location,omitempty"`
	Available *int64             `json:"available,omitempty"`
	Required  *int64             `json:"required,omitempty"`
	Shortfall *int64             `json:"shortfall,omitempty"`
}

func readJSON(ctx *xhttp.RequestCtx, dst any) error {
	body := ctx.PostBody()
	if len(body) == 0 {
		return errors.New("empty body")
	}
	return json.Unmarshal(body, dst)
}

func writeJSON(ctx *xhttp.RequestCtx, status int, v any) {
	b, _ := json.Marshal(v)
	ctx.Response.Header.Set("Content-Type", "application/json; charset=utf-8")
	ctx.Response.SetStatusCode(status)
	ctx.Response.SetBodyRaw(b)
}

func writeError(ctx *xhttp.RequestCtx, status int, msg string) {
	writeJSON(ctx, status, errorResponse{Error: msg})
}

// writeServiceError maps a treasury error to its HTTP status. Anything that
// is not a known business error is logged and hidden behind a generic 500.
func writeServiceError(ctx *xhttp.RequestCtx, err error) {
	resp := errorResponse{Error: err.Error(), Code: model.Reason(err)}

	var validation *model.ValidationError
	var funds *model.InsufficientFundsError
	switch {
	case errors.As(err, &validation):
		resp.Field = validation.Field
		writeJSON(ctx, xhttp.StatusUnprocessableEntity, resp)
	case errors.As(err, &funds):
		resp.Location = funds.Location
		resp.Available = &funds.Available
		resp.Required = &funds.Required
		resp.Shortfall = &funds.Shortfall
		writeJSON(ctx, xhttp.StatusConflict, resp)
	case errors.Is(err, model.ErrNotFound):
		writeJSON(ctx, xhttp.StatusNotFound, resp)
	case errors.Is(err, model.ErrAlreadyReversed),
		errors.Is(err, model.ErrCannotReverseReversal),
		errors.Is(err, model.ErrAlreadyOpened),
		errors.Is(err, model.ErrInsufficientFundsForFloat):
		writeJSON(ctx, xhttp.StatusConflict, resp)
	case errors.Is(err, model.ErrForbidden):
		writeJSON(ctx, xhttp.StatusForbidden, resp)
	default:
		logger.Error("[handlers] request failed",
			"method", string(ctx.Method()),
			"path", string(ctx.Path()),
			"request_id", xhttp.RequestID(ctx),
			"error", err)
		writeJSON(ctx, xhttp.StatusInternalServerError, errorResponse{
			Error: "internal error, quote request id " + xhttp.RequestID(ctx),
			Code:  "internal",
		})
	}
}

func actorFrom(ctx *xhttp.RequestCtx) model.Actor {
	return model.Actor{
		ID:   string(ctx.Request.Header.Peek(ActorIDHeader)),
		Role: string(ctx.Request.Header.Peek(ActorRoleHeader)),
	}
}

func query(ctx *xhttp.RequestCtx, key string) string {
	return string(ctx.QueryArgs().Peek(key))
}

func pathInt64(ctx *xhttp.RequestCtx, name string) (int64, error) {
	raw, _ := ctx.UserValue(name).(string)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, model.NewValidationError(name, "must be a positive integer")
	}
	return id, nil
}

// parseTime accepts RFC3339 or YYYY-MM-DD. dateOnly reports the second form.
func parseTime(s string) (t time.Time, dateOnly bool, err error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, false, nil
	}
	t, err = time.Parse("2006-01-02", s)
	return t, true, err
}
