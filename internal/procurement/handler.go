package procurement

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/threeway/internal/platform/httpx"
	"github.com/odyssey-erp/threeway/internal/shared"
)

// Handler manages receiving ledger endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers purchase order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/{id}", h.handleGet)
	r.Get("/{id}/receipts", h.handleListReceipts)
	r.Group(func(r chi.Router) {
		r.Use(httpx.RequireActor)
		r.Post("/{id}/receive", h.handleReceive)
		r.Post("/{id}/status", h.handleStatus)
	})
}

type receiveRequest struct {
	Lines []receiveLineRequest `json:"lines" validate:"required,min=1,dive"`
	Notes string               `json:"notes" validate:"max=2000"`
}

type receiveLineRequest struct {
	LineID           int64           `json:"line_id" validate:"required,gt=0"`
	QuantityReceived decimal.Decimal `json:"quantity_received"`
	QuantityRejected decimal.Decimal `json:"quantity_rejected"`
	RejectionReason  string          `json:"rejection_reason" validate:"max=255"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=draft sent approved received closed cancelled"`
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	po, err := h.service.GetPurchaseOrder(r.Context(), id)
	if err != nil {
		h.respondError(w, "get purchase order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

func (h *Handler) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	receipts, err := h.service.ListReceipts(r.Context(), id)
	if err != nil {
		h.respondError(w, "list receipts", err)
		return
	}
	httpx.JSON(w, http.StatusOK, receipts)
}

func (h *Handler) handleReceive(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req receiveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, httpx.ValidationError(err))
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	input := ReceiveInput{
		POID:           id,
		Notes:          req.Notes,
		ActorID:        actor.ID,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	}
	for _, line := range req.Lines {
		input.Lines = append(input.Lines, ReceiveLineInput{
			LineID:           line.LineID,
			QuantityReceived: line.QuantityReceived,
			QuantityRejected: line.QuantityRejected,
			RejectionReason:  line.RejectionReason,
		})
	}
	receipt, err := h.service.ReceiveGoods(r.Context(), input)
	if err != nil {
		h.respondError(w, "receive goods", err)
		return
	}
	if receipt.ID == 0 {
		httpx.JSON(w, http.StatusOK, receipt)
		return
	}
	httpx.JSON(w, http.StatusCreated, receipt)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req statusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, httpx.ValidationError(err))
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	po, err := h.service.TransitionStatus(r.Context(), id, POStatus(req.Status), actor.ID)
	if err != nil {
		h.respondError(w, "transition purchase order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
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
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q: %w", param, chi.URLParam(r, param), shared.ErrValidation)
	}
	return id, nil
}
