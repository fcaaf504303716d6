package threewayhttp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/threeway/internal/platform/httpx"
	"github.com/odyssey-erp/threeway/internal/procurement"
	"github.com/odyssey-erp/threeway/internal/shared"
	"github.com/odyssey-erp/threeway/internal/threeway"
)

const (
	headerTotalCount = "X-Total-Count"
	headerTruncated  = "X-Truncated"
)

// Service is the match engine surface used by the handlers.
type Service interface {
	Match(ctx context.Context, input threeway.MatchInput) (threeway.MatchOutcome, error)
	GetException(ctx context.Context, id int64) (threeway.MatchException, error)
	ListExceptions(ctx context.Context, q threeway.ListQuery) (shared.Page[threeway.ExceptionView], error)
	ExportExceptions(ctx context.Context, filter threeway.ExceptionFilter, override *threeway.Tolerance) (threeway.Export, error)
	Resolve(ctx context.Context, id int64, actor shared.Actor) (threeway.MatchException, error)
	BulkResolve(ctx context.Context, ids []int64, actor shared.Actor) map[int64]threeway.BulkOutcome
	SubmitForApproval(ctx context.Context, id int64, actor shared.Actor) (threeway.MatchException, error)
	Approve(ctx context.Context, id int64, actor shared.Actor, reason string) (threeway.MatchException, error)
	Reject(ctx context.Context, id int64, actor shared.Actor, reason string) (threeway.MatchException, error)
	ApprovalSettings(ctx context.Context, companyID int64) (threeway.ApprovalSettings, error)
	SaveApprovalSettings(ctx context.Context, companyID int64, cfg threeway.ApprovalSettings, actor shared.Actor) error
	Tolerance(ctx context.Context, companyID int64, purchaseType procurement.PurchaseType) (threeway.Tolerance, error)
	SetTolerance(ctx context.Context, companyID int64, purchaseType procurement.PurchaseType, tol threeway.Tolerance, actor shared.Actor) error
}

// BulkEnqueuer schedules a bulk resolve on the background worker.
type BulkEnqueuer interface {
	EnqueueBulkResolve(ctx context.Context, ids []int64, actor shared.Actor) (string, error)
}

// Handler serves match, exception and approval endpoints.
type Handler struct {
	logger    *slog.Logger
	service   Service
	jobs      BulkEnqueuer
	validator *validator.Validate
}

// NewHandler builds Handler instance. jobs may be nil, in which case bulk
// resolves always run inline.
func NewHandler(logger *slog.Logger, service Service, jobs BulkEnqueuer) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, jobs: jobs, validator: validator.New()}
}

type bulkResolveRequest struct {
	IDs   []int64 `json:"ids" validate:"required,min=1,max=500,dive,gt=0"`
	Async bool    `json:"async"`
}

type bulkResolveResponse struct {
	Results map[int64]threeway.BulkOutcome `json:"results"`
}

type decisionRequest struct {
	Reason string `json:"reason" validate:"required,max=255"`
}

type tierRequest struct {
	AmountThreshold decimal.Decimal `json:"amount_threshold"`
	RequiredRoles   []string        `json:"required_roles" validate:"required,min=1,dive,required"`
}

type approvalSettingsRequest struct {
	Reasons []string      `json:"reasons" validate:"dive,required,max=255"`
	Tiers   []tierRequest `json:"tiers" validate:"dive"`
}

type toleranceRequest struct {
	PurchaseType string          `json:"purchase_type" validate:"required,oneof=local import"`
	Pct          decimal.Decimal `json:"pct"`
	Abs          decimal.Decimal `json:"abs"`
}

type toleranceResponse struct {
	CompanyID    int64           `json:"company_id"`
	PurchaseType string          `json:"purchase_type"`
	Pct          decimal.Decimal `json:"pct"`
	Abs          decimal.Decimal `json:"abs"`
}

func (h *Handler) handleMatch(w http.ResponseWriter, r *http.Request) {
	poID, err := parseID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	billID, err := parseID(r, "billId")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	outcome, err := h.service.Match(r.Context(), threeway.MatchInput{POID: poID, BillID: billID, ActorID: actor.ID})
	if err != nil {
		h.respondError(w, "match", err)
		return
	}
	httpx.JSON(w, http.StatusOK, outcome)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q, err := parseListQuery(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	page, err := h.service.ListExceptions(r.Context(), q)
	if err != nil {
		h.respondError(w, "list exceptions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	q, err := parseListQuery(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	export, err := h.service.ExportExceptions(r.Context(), q.Filter, q.Override)
	if err != nil {
		h.respondError(w, "export exceptions", err)
		return
	}
	filename := fmt.Sprintf("match-exceptions-%s.xlsx", time.Now().UTC().Format("20060102"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Header().Set(headerTotalCount, strconv.Itoa(export.Total))
	if export.Truncated() {
		w.Header().Set(headerTruncated, "true")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(export.Data)
}

func (h *Handler) handleGetException(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	exc, err := h.service.GetException(r.Context(), id)
	if err != nil {
		h.respondError(w, "get exception", err)
		return
	}
	httpx.JSON(w, http.StatusOK, exc)
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	exc, err := h.service.Resolve(r.Context(), id, actor)
	if err != nil {
		h.respondError(w, "resolve exception", err)
		return
	}
	httpx.JSON(w, http.StatusOK, exc)
}

func (h *Handler) handleBulkResolve(w http.ResponseWriter, r *http.Request) {
	var req bulkResolveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, httpx.ValidationError(err))
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	if req.Async && h.jobs != nil {
		taskID, err := h.jobs.EnqueueBulkResolve(r.Context(), req.IDs, actor)
		if err != nil {
			h.respondError(w, "enqueue bulk resolve", err)
			return
		}
		httpx.JSON(w, http.StatusAccepted, map[string]any{"task_id": taskID, "count": len(req.IDs)})
		return
	}
	if req.Async {
		h.logger.Warn("async bulk resolve requested without a job queue, running inline")
	}
	results := h.service.BulkResolve(r.Context(), req.IDs, actor)
	httpx.JSON(w, http.StatusOK, bulkResolveResponse{Results: results})
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	exc, err := h.service.SubmitForApproval(r.Context(), id, actor)
	if err != nil {
		h.respondError(w, "submit exception", err)
		return
	}
	httpx.JSON(w, http.StatusOK, exc)
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	h.handleDecision(w, r, "approve exception", h.service.Approve)
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	h.handleDecision(w, r, "reject exception", h.service.Reject)
}

type decideFunc func(ctx context.Context, id int64, actor shared.Actor, reason string) (threeway.MatchException, error)

func (h *Handler) handleDecision(w http.ResponseWriter, r *http.Request, op string, decide decideFunc) {
	id, err := parseID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req decisionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, httpx.ValidationError(err))
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	exc, err := decide(r.Context(), id, actor, req.Reason)
	if err != nil {
		h.respondError(w, op, err)
		return
	}
	httpx.JSON(w, http.StatusOK, exc)
}

func (h *Handler) handleGetApprovals(w http.ResponseWriter, r *http.Request) {
	companyID, err := parseID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	cfg, err := h.service.ApprovalSettings(r.Context(), companyID)
	if err != nil {
		h.respondError(w, "get approval settings", err)
		return
	}
	httpx.JSON(w, http.StatusOK, cfg)
}

func (h *Handler) handleSaveApprovals(w http.ResponseWriter, r *http.Request) {
	companyID, err := parseID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req approvalSettingsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, httpx.ValidationError(err))
		return
	}
	cfg := threeway.ApprovalSettings{Reasons: req.Reasons, Tiers: make([]threeway.Tier, 0, len(req.Tiers))}
	for _, tier := range req.Tiers {
		cfg.Tiers = append(cfg.Tiers, threeway.Tier{AmountThreshold: tier.AmountThreshold, RequiredRoles: tier.RequiredRoles})
	}
	actor, _ := shared.ActorFromContext(r.Context())
	if err := h.service.SaveApprovalSettings(r.Context(), companyID, cfg, actor); err != nil {
		h.respondError(w, "save approval settings", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleGetTolerance(w http.ResponseWriter, r *http.Request) {
	companyID, err := parseID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	purchaseType := procurement.PurchaseType(strings.TrimSpace(r.URL.Query().Get("purchase_type")))
	if purchaseType == "" {
		purchaseType = procurement.PurchaseTypeLocal
	}
	if !purchaseType.Valid() {
		httpx.RespondError(w, fmt.Errorf("unknown purchase_type %q: %w", purchaseType, shared.ErrValidation))
		return
	}
	tol, err := h.service.Tolerance(r.Context(), companyID, purchaseType)
	if err != nil {
		h.respondError(w, "get tolerance", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toleranceResponse{CompanyID: companyID, PurchaseType: string(purchaseType), Pct: tol.Pct, Abs: tol.Abs})
}

func (h *Handler) handlePutTolerance(w http.ResponseWriter, r *http.Request) {
	companyID, err := parseID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req toleranceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, httpx.ValidationError(err))
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	purchaseType := procurement.PurchaseType(req.PurchaseType)
	tol := threeway.Tolerance{Pct: req.Pct, Abs: req.Abs}
	if err := h.service.SetTolerance(r.Context(), companyID, purchaseType, tol, actor); err != nil {
		h.respondError(w, "set tolerance", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toleranceResponse{CompanyID: companyID, PurchaseType: req.PurchaseType, Pct: tol.Pct, Abs: tol.Abs})
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	if httpx.ErrorCode(err) == "Internal" {
		h.logger.Error(op, slog.Any("error", err))
	} else {
		h.logger.Debug(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func parseID(r *http.Request, param string) (int64, error) {
	raw := chi.URLParam(r, param)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q: %w", param, raw, shared.ErrValidation)
	}
	return id, nil
}
