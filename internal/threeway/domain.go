// Package threeway reconciles purchase orders, goods receipts and vendor
// bills. It evaluates PO/bill pairs against a company tolerance policy,
// records variances as match exceptions and gates their resolution through
// tiered approvals.
package threeway

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/threeway/internal/shared"
)

// ExceptionStatus is the lifecycle state of a match exception.
type ExceptionStatus string

const (
	StatusOpen            ExceptionStatus = "open"
	StatusPendingApproval ExceptionStatus = "pending_approval"
	StatusApproved        ExceptionStatus = "approved"
	StatusRejected        ExceptionStatus = "rejected"
	StatusResolved        ExceptionStatus = "resolved"
)

// Valid reports whether the status is known.
func (s ExceptionStatus) Valid() bool {
	switch s {
	case StatusOpen, StatusPendingApproval, StatusApproved, StatusRejected, StatusResolved:
		return true
	}
	return false
}

// Terminal reports whether no further transition leaves the status.
func (s ExceptionStatus) Terminal() bool {
	return s == StatusResolved || s == StatusRejected
}

// MatchException records a PO/bill pair whose variance exceeded tolerance.
type MatchException struct {
	ID         int64           `json:"id"`
	CompanyID  int64           `json:"company_id"`
	POID       int64           `json:"po_id"`
	PONumber   string          `json:"po_number"`
	BillID     int64           `json:"bill_id"`
	BillNumber string          `json:"bill_number"`
	VendorID   int64           `json:"vendor_id"`
	VendorName string          `json:"vendor_name"`
	POTotal    decimal.Decimal `json:"po_total"`
	BillTotal  decimal.Decimal `json:"bill_total"`
	Diff       decimal.Decimal `json:"diff"`
	PctDiff    decimal.Decimal `json:"pct_diff"`
	Status     ExceptionStatus `json:"status"`
	ReasonCode string          `json:"reason_code,omitempty"`
	DecidedBy  int64           `json:"decided_by,omitempty"`
	ResolvedBy int64           `json:"resolved_by,omitempty"`
	ResolvedAt *time.Time      `json:"resolved_at,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// ExceptionFilter narrows exception listings. Zero values mean no constraint.
type ExceptionFilter struct {
	CompanyID          int64
	VendorNameContains string
	UpdatedFrom        *time.Time
	UpdatedTo          *time.Time
	Status             ExceptionStatus
}

// Validate rejects inverted ranges and unknown statuses.
func (f ExceptionFilter) Validate() error {
	if f.UpdatedFrom != nil && f.UpdatedTo != nil && f.UpdatedFrom.After(*f.UpdatedTo) {
		return fmt.Errorf("threeway: updated_from after updated_to: %w", shared.ErrValidation)
	}
	if f.Status != "" && !f.Status.Valid() {
		return fmt.Errorf("threeway: unknown status %q: %w", f.Status, shared.ErrValidation)
	}
	return nil
}

// ListQuery is one page request over the exception store. Override, when
// set, is an ad hoc tolerance used only to annotate results.
type ListQuery struct {
	Filter   ExceptionFilter
	Page     int
	PageSize int
	Override *Tolerance
}

// ExceptionView is a listed exception with an optional what-if evaluation.
type ExceptionView struct {
	MatchException
	WhatIf *MatchResult `json:"what_if,omitempty"`
}

// MatchOutcome is the result of pairing a PO with a bill.
type MatchOutcome struct {
	Result    MatchResult     `json:"result"`
	Exception *MatchException `json:"exception,omitempty"`
}

// BulkOutcome reports what happened to one id of a bulk resolve.
type BulkOutcome struct {
	Status ExceptionStatus `json:"status,omitempty"`
	Code   string          `json:"code,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// OK reports whether the item resolved.
func (o BulkOutcome) OK() bool {
	return o.Error == ""
}

// StaleCount summarises unresolved exceptions older than a cutoff.
type StaleCount struct {
	CompanyID int64
	Count     int
	Oldest    time.Time
}

var (
	// ErrCurrencyMismatch occurs when bill and PO currencies differ.
	ErrCurrencyMismatch = fmt.Errorf("threeway: bill currency differs from purchase order: %w", shared.ErrValidation)
	// ErrApprovalRequired occurs when resolving an open exception an approval tier covers.
	ErrApprovalRequired = fmt.Errorf("threeway: approval required before resolve: %w", shared.ErrInvalidTransition)
)
