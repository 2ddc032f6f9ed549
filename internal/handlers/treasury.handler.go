package handlers

import (
	"context"
	"strconv"
	"strings"

	"github.com/fasthttp/router"
	"github.com/nimasrn/school-treasury/internal/model"
	xhttp "github.com/nimasrn/school-treasury/pkg/http"
)

type TreasuryService interface {
	RecordTransaction(ctx context.Context, actor model.Actor, req model.RecordRequest) (*model.PostingResult, error)
	ReverseTransaction(ctx context.Context, actor model.Actor, req model.ReverseRequest) (*model.ReversalResult, error)
	PreviewOpening(ctx context.Context, actor model.Actor, counted int64) (*model.OpeningPreview, error)
	ConfirmOpening(ctx context.Context, actor model.Actor, req model.OpeningRequest) (*model.OpeningResult, error)
	TransferSafeRegistry(ctx context.Context, actor model.Actor, req model.SafeRegistryTransferRequest) (*model.PostingResult, error)
	TransferBank(ctx context.Context, actor model.Actor, req model.BankTransferRequest) (*model.PostingResult, error)
	GetBalances(ctx context.Context, actor model.Actor) (model.BalanceSnapshot, error)
	GetTransaction(ctx context.Context, actor model.Actor, id int64) (*model.Transaction, error)
	ListTransactions(ctx context.Context, actor model.Actor, filter model.TransactionFilter) ([]*model.Transaction, int64, error)
	Reconcile(ctx context.Context, actor model.Actor) (*model.Reconciliation, error)
	UpdateFloatTarget(ctx context.Context, actor model.Actor, amount int64) (model.BalanceSnapshot, error)
}

type TreasuryHandler struct {
	svc      TreasuryService
	idem     IdempotencyStore
	validate *requestValidator
}

// NewTreasuryHandler builds the treasury routes. idem may be nil, in which
// case Idempotency-Key headers are ignored.
func NewTreasuryHandler(svc TreasuryService, idem IdempotencyStore) *TreasuryHandler {
	return &TreasuryHandler{
		svc:      svc,
		idem:     idem,
		validate: newRequestValidator(),
	}
}

func RegisterTreasuryRoutes(e *router.Group, h *TreasuryHandler) {
	e.GET("/treasury/balances", h.GetBalances)
	e.PUT("/treasury/float-target", h.idempotent(h.UpdateFloatTarget))
	e.GET("/treasury/transactions", h.ListTransactions)
	e.GET("/treasury/transactions/{id}", h.GetTransaction)
	e.POST("/treasury/transactions", h.idempotent(h.RecordTransaction))
	e.POST("/treasury/transactions/{id}/reversal", h.idempotent(h.ReverseTransaction))
	e.POST("/treasury/opening/preview", h.PreviewOpening)
	e.POST("/treasury/opening/confirm", h.idempotent(h.ConfirmOpening))
	e.POST("/treasury/transfers/registry", h.idempotent(h.TransferSafeRegistry))
	e.POST("/treasury/transfers/bank", h.idempotent(h.TransferBank))
	e.GET("/treasury/reconciliation", h.Reconcile)
}

type recordTransactionRequest struct {
	Type      string `json:"type" validate:"required"`
	Direction string `json:"direction" validate:"omitempty,oneof=in out"`
	Amount    int64  `json:"amount" validate:"required,gt=0"`
	model.Metadata
}

type correctionRequest struct {
	Amount int64  `json:"amount" validate:"required,gt=0"`
	Method string `json:"method" validate:"omitempty,oneof=cash mobile_money"`
}

type reverseTransactionRequest struct {
	Reason     string             `json:"reason" validate:"required,max=1000"`
	Correction *correctionRequest `json:"correction"`
}

type openingPreviewRequest struct {
	CountedSafeBalance *int64 `json:"counted_safe_balance" validate:"required,gte=0"`
}

type openingConfirmRequest struct {
	CountedSafeBalance *int64 `json:"counted_safe_balance" validate:"required,gte=0"`
	FloatAmount        int64  `json:"float_amount" validate:"gte=0"`
	Notes              string `json:"notes" validate:"max=1000"`
}

type registryTransferRequest struct {
	Direction string `json:"direction" validate:"required,oneof=safe_to_registry registry_to_safe"`
	Amount    int64  `json:"amount" validate:"required,gt=0"`
	Notes     string `json:"notes" validate:"max=1000"`
}

type bankTransferRequest struct {
	Kind          string `json:"kind" validate:"required,oneof=deposit withdrawal"`
	Amount        int64  `json:"amount" validate:"required,gt=0"`
	BankName      string `json:"bank_name" validate:"max=120"`
	BankReference string `json:"bank_reference" validate:"max=120"`
	CarriedBy     string `json:"carried_by" validate:"max=120"`
	Notes         string `json:"notes" validate:"max=1000"`
}

type floatTargetRequest struct {
	Amount *int64 `json:"amount" validate:"required,gte=0"`
}

type listResponse struct {
	Items  []*model.Transaction `json:"items"`
	Total  int64                `json:"total"`
	Limit  int                  `json:"limit"`
	Offset int                  `json:"offset"`
}

// decode reads and shape-checks the body; it writes the error response itself.
func (h *TreasuryHandler) decode(ctx *xhttp.RequestCtx, dst any) bool {
	if err := readJSON(ctx, dst); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeServiceError(ctx, err)
		return false
	}
	return true
}

/* --------------------------------- Routes ----------------------------------- */

func (h *TreasuryHandler) GetBalances(ctx *xhttp.RequestCtx) {
	snapshot, err := h.svc.GetBalances(ctx, actorFrom(ctx))
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, snapshot)
}

func (h *TreasuryHandler) UpdateFloatTarget(ctx *xhttp.RequestCtx) {
	var req floatTargetRequest
	if !h.decode(ctx, &req) {
		return
	}
	snapshot, err := h.svc.UpdateFloatTarget(ctx, actorFrom(ctx), *req.Amount)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, snapshot)
}

func (h *TreasuryHandler) ListTransactions(ctx *xhttp.RequestCtx) {
	f, err := parseFilter(ctx)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	items, total, err := h.svc.ListTransactions(ctx, actorFrom(ctx), f)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	if items == nil {
		items = []*model.Transaction{}
	}
	writeJSON(ctx, xhttp.StatusOK, listResponse{Items: items, Total: total, Limit: f.Limit, Offset: f.Offset})
}

func (h *TreasuryHandler) GetTransaction(ctx *xhttp.RequestCtx) {
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	tx, err := h.svc.GetTransaction(ctx, actorFrom(ctx), id)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, tx)
}

func (h *TreasuryHandler) RecordTransaction(ctx *xhttp.RequestCtx) {
	var req recordTransactionRequest
	if !h.decode(ctx, &req) {
		return
	}
	result, err := h.svc.RecordTransaction(ctx, actorFrom(ctx), model.RecordRequest{
		Type:      model.TransactionType(req.Type),
		Direction: model.Direction(req.Direction),
		Amount:    req.Amount,
		Metadata:  req.Metadata,
	})
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusCreated, result)
}

func (h *TreasuryHandler) ReverseTransaction(ctx *xhttp.RequestCtx) {
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	var req reverseTransactionRequest
	if !h.decode(ctx, &req) {
		return
	}

	var kind model.ReversalRequest = model.PlainReversal{}
	if req.Correction != nil {
		kind = model.ReversalWithCorrection{
			Amount: req.Correction.Amount,
			Method: model.PaymentMethod(req.Correction.Method),
		}
	}
	result, err := h.svc.ReverseTransaction(ctx, actorFrom(ctx), model.ReverseRequest{
		OriginalTransactionID: id,
		Reason:                req.Reason,
		Kind:                  kind,
	})
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusCreated, result)
}

func (h *TreasuryHandler) PreviewOpening(ctx *xhttp.RequestCtx) {
	var req openingPreviewRequest
	if !h.decode(ctx, &req) {
		return
	}
	preview, err := h.svc.PreviewOpening(ctx, actorFrom(ctx), *req.CountedSafeBalance)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, preview)
}

func (h *TreasuryHandler) ConfirmOpening(ctx *xhttp.RequestCtx) {
	var req openingConfirmRequest
	if !h.decode(ctx, &req) {
		return
	}
	result, err := h.svc.ConfirmOpening(ctx, actorFrom(ctx), model.OpeningRequest{
		CountedSafeBalance: *req.CountedSafeBalance,
		FloatAmount:        req.FloatAmount,
		Notes:              req.Notes,
	})
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusCreated, result)
}

func (h *TreasuryHandler) TransferSafeRegistry(ctx *xhttp.RequestCtx) {
	var req registryTransferRequest
	if !h.decode(ctx, &req) {
		return
	}
	result, err := h.svc.TransferSafeRegistry(ctx, actorFrom(ctx), model.SafeRegistryTransferRequest{
		Direction: model.TransferDirection(req.Direction),
		Amount:    req.Amount,
		Notes:     req.Notes,
	})
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusCreated, result)
}

func (h *TreasuryHandler) TransferBank(ctx *xhttp.RequestCtx) {
	var req bankTransferRequest
	if !h.decode(ctx, &req) {
		return
	}
	result, err := h.svc.TransferBank(ctx, actorFrom(ctx), model.BankTransferRequest{
		Kind:          model.BankTransferKind(req.Kind),
		Amount:        req.Amount,
		BankName:      req.BankName,
		BankReference: req.BankReference,
		CarriedBy:     req.CarriedBy,
		Notes:         req.Notes,
	})
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusCreated, result)
}

func (h *TreasuryHandler) Reconcile(ctx *xhttp.RequestCtx) {
	result, err := h.svc.Reconcile(ctx, actorFrom(ctx))
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, result)
}

func parseFilter(ctx *xhttp.RequestCtx) (model.TransactionFilter, error) {
	var f model.TransactionFilter

	f.Type = model.TransactionType(query(ctx, "type"))
	f.ReferenceID = query(ctx, "reference_id")
	if v := query(ctx, "original_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return f, model.NewValidationError("original_id", "must be an integer")
		}
		f.OriginalTransactionID = &id
	}
	if v := query(ctx, "from"); v != "" {
		t, _, err := parseTime(v)
		if err != nil {
			return f, model.NewValidationError("from", "must be RFC3339 or YYYY-MM-DD")
		}
		f.From = &t
	}
	if v := query(ctx, "to"); v != "" {
		t, dateOnly, err := parseTime(v)
		if err != nil {
			return f, model.NewValidationError("to", "must be RFC3339 or YYYY-MM-DD")
		}
		// a bare date includes that whole day
		if dateOnly {
			t = t.AddDate(0, 0, 1)
		}
		f.To = &t
	}
	if v := query(ctx, "limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return f, model.NewValidationError("limit", "must be an integer")
		}
		f.Limit = n
	}
	if v := query(ctx, "offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return f, model.NewValidationError("offset", "must be an integer")
		}
		f.Offset = n
	}
	switch order := strings.ToLower(query(ctx, "order")); order {
	case "", "desc":
	case "asc":
		f.Ascending = true
	default:
		return f, model.NewValidationError("order", "must be asc or desc")
	}
	return f, nil
}
