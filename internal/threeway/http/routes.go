// Package threewayhttp exposes the match engine over HTTP.
package threewayhttp

import (
	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/threeway/internal/platform/httpx"
)

// MountPurchaseOrderRoutes registers match and exception routes under
// /purchase-orders.
func (h *Handler) MountPurchaseOrderRoutes(r chi.Router) {
	if h == nil {
		return
	}
	r.Get("/match-exceptions", h.handleList)
	r.Get("/match-exceptions/export.xlsx", h.handleExport)
	r.Get("/match-exceptions/{id}", h.handleGetException)
	r.Group(func(r chi.Router) {
		r.Use(httpx.RequireActor)
		r.Post("/match-exceptions/bulk-resolve", h.handleBulkResolve)
		r.Post("/{id}/match/{billId}", h.handleMatch)
		r.Post("/{id}/resolve-exception", h.handleResolve)
	})
}

// MountRoutes registers approval workflow and settings routes under
// /three-way-match.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	r.Get("/{id}/approvals", h.handleGetApprovals)
	r.Get("/{id}/tolerance", h.handleGetTolerance)
	r.Group(func(r chi.Router) {
		r.Use(httpx.RequireActor)
		r.Post("/{id}/submit", h.handleSubmit)
		r.Post("/{id}/approve", h.handleApprove)
		r.Post("/{id}/reject", h.handleReject)
		r.Post("/{id}/approvals", h.handleSaveApprovals)
		r.Put("/{id}/tolerance", h.handlePutTolerance)
	})
}
