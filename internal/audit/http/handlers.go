package audithttp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/threeway/internal/audit"
	"github.com/odyssey-erp/threeway/internal/platform/httpx"
	"github.com/odyssey-erp/threeway/internal/shared"
)

// Lister membaca log audit per PO.
type Lister interface {
	List(ctx context.Context, poID int64) ([]audit.Entry, error)
}

// Handler melayani endpoint log audit.
type Handler struct {
	logger  *slog.Logger
	service Lister
}

// NewHandler membuat handler audit.
func NewHandler(logger *slog.Logger, service Lister) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	poID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || poID <= 0 {
		httpx.RespondError(w, fmt.Errorf("invalid purchase order id: %w", shared.ErrValidation))
		return
	}
	entries, err := h.service.List(r.Context(), poID)
	if err != nil {
		h.logger.Error("list audit", slog.Int64("po_id", poID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}
