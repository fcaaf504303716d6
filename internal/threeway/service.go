package threeway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/threeway/internal/audit"
	"github.com/odyssey-erp/threeway/internal/billing"
	"github.com/odyssey-erp/threeway/internal/procurement"
	"github.com/odyssey-erp/threeway/internal/settings"
	"github.com/odyssey-erp/threeway/internal/shared"
)

const defaultBulkConcurrency = 4

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetException(ctx context.Context, id int64) (MatchException, error)
	ListExceptions(ctx context.Context, filter ExceptionFilter, limit, offset int) ([]MatchException, int, error)
	CountStale(ctx context.Context, before time.Time) ([]StaleCount, error)
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	LockPurchaseOrder(ctx context.Context, id int64) (procurement.PurchaseOrder, error)
	GetBill(ctx context.Context, id int64) (billing.VendorBill, error)
	// LockActiveException returns the non-terminal exception of a pair, if any.
	LockActiveException(ctx context.Context, poID, billID int64) (MatchException, bool, error)
	LockException(ctx context.Context, id int64) (MatchException, error)
	InsertException(ctx context.Context, e MatchException) (int64, error)
	UpdateException(ctx context.Context, e MatchException) error
	AppendAudit(ctx context.Context, entry audit.Entry) error
}

// Locker serialises work on a key across processes.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(context.Context) error) error
}

// ServiceConfig tunes the service.
type ServiceConfig struct {
	BulkConcurrency int
	// SettingsRoles may change tolerance and approval settings.
	SettingsRoles []string
	Metrics       *Metrics
	// ExportMaxRows caps the XLSX export. Defaults to 10000.
	ExportMaxRows int
}

// Service runs matching, the exception store and the approval workflow.
type Service struct {
	repo     RepositoryPort
	policy   *Policy
	settings settings.Store
	locker   Locker
	logger   *slog.Logger
	cfg      ServiceConfig
	now      func() time.Time
}

// NewService constructs the match engine. locker may be nil.
func NewService(repo RepositoryPort, policy *Policy, store settings.Store, locker Locker, logger *slog.Logger, cfg ServiceConfig) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BulkConcurrency <= 0 {
		cfg.BulkConcurrency = defaultBulkConcurrency
	}
	if cfg.ExportMaxRows <= 0 {
		cfg.ExportMaxRows = exportMaxRows
	}
	return &Service{
		repo:     repo,
		policy:   policy,
		settings: store,
		locker:   locker,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
}

// MatchInput pairs a purchase order with a vendor bill.
type MatchInput struct {
	POID    int64
	BillID  int64
	ActorID int64
}

// Match evaluates the bill against the order and maintains the pair's
// exception record accordingly.
func (s *Service) Match(ctx context.Context, input MatchInput) (MatchOutcome, error) {
	if input.POID <= 0 || input.BillID <= 0 {
		return MatchOutcome{}, fmt.Errorf("threeway: po and bill ids required: %w", shared.ErrValidation)
	}
	var outcome MatchOutcome
	var action Action
	err := s.withLock(ctx, shared.POLockKey(input.POID), func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			var txErr error
			outcome, action, txErr = s.matchTx(ctx, tx, input)
			return txErr
		})
	})
	if err != nil {
		return MatchOutcome{}, err
	}

	label := "matched"
	if !outcome.Result.Matched {
		label = "exception"
	}
	s.cfg.Metrics.observeMatch(label)
	if action != "" {
		s.cfg.Metrics.observeTransition(action)
	}
	attrs := []any{
		slog.Int64("po_id", input.POID),
		slog.Int64("bill_id", input.BillID),
		slog.Bool("matched", outcome.Result.Matched),
		slog.String("diff", outcome.Result.Diff.String()),
	}
	if outcome.Exception != nil {
		attrs = append(attrs, slog.Int64("exception_id", outcome.Exception.ID), slog.String("status", string(outcome.Exception.Status)))
	}
	s.logger.Info("three-way match evaluated", attrs...)
	return outcome, nil
}

func (s *Service) matchTx(ctx context.Context, tx TxRepository, input MatchInput) (MatchOutcome, Action, error) {
	po, err := tx.LockPurchaseOrder(ctx, input.POID)
	if err != nil {
		return MatchOutcome{}, "", err
	}
	if !po.Status.CanMatch() {
		return MatchOutcome{}, "", fmt.Errorf("threeway: cannot match %s purchase order %d: %w", po.Status, po.ID, shared.ErrInvalidTransition)
	}
	bill, err := tx.GetBill(ctx, input.BillID)
	if err != nil {
		return MatchOutcome{}, "", err
	}
	if bill.CompanyID != po.CompanyID {
		return MatchOutcome{}, "", fmt.Errorf("threeway: bill %d belongs to another company: %w", bill.ID, shared.ErrValidation)
	}
	if !strings.EqualFold(strings.TrimSpace(bill.Currency), strings.TrimSpace(po.Currency)) {
		return MatchOutcome{}, "", fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, bill.Currency, po.Currency)
	}

	tol, err := s.policy.Effective(ctx, po.CompanyID, po.PurchaseType)
	if err != nil {
		return MatchOutcome{}, "", err
	}
	result := EvaluateMatch(po, bill, tol)

	active, found, err := tx.LockActiveException(ctx, po.ID, bill.ID)
	if err != nil {
		return MatchOutcome{}, "", err
	}

	now := s.now().UTC()
	var action Action
	var exception *MatchException
	switch {
	case result.Matched && found:
		next, err := NextStatus(active.Status, ActionAutoResolve)
		if err != nil {
			return MatchOutcome{}, "", err
		}
		applyResult(&active, result)
		active.Status = next
		active.ResolvedBy = input.ActorID
		active.ResolvedAt = &now
		active.UpdatedAt = now
		if err := tx.UpdateException(ctx, active); err != nil {
			return MatchOutcome{}, "", err
		}
		action = ActionAutoResolve
		exception = &active
	case !result.Matched && found:
		changed := !active.POTotal.Equal(result.POTotal) || !active.BillTotal.Equal(result.BillTotal)
		if changed && active.Status != StatusOpen {
			next, err := NextStatus(active.Status, ActionRematch)
			if err != nil {
				return MatchOutcome{}, "", err
			}
			active.Status = next
			active.ReasonCode = ""
			active.DecidedBy = 0
			action = ActionRematch
		}
		applyResult(&active, result)
		active.UpdatedAt = now
		if err := tx.UpdateException(ctx, active); err != nil {
			return MatchOutcome{}, "", err
		}
		exception = &active
	case !result.Matched:
		created := MatchException{
			CompanyID:  po.CompanyID,
			POID:       po.ID,
			PONumber:   po.Number,
			BillID:     bill.ID,
			BillNumber: bill.Number,
			VendorID:   po.VendorID,
			VendorName: po.VendorName,
			Status:     StatusOpen,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		applyResult(&created, result)
		id, err := tx.InsertException(ctx, created)
		if err != nil {
			return MatchOutcome{}, "", err
		}
		created.ID = id
		exception = &created
	}

	payload := map[string]any{
		"bill_id":       bill.ID,
		"matched":       result.Matched,
		"po_total":      result.POTotal.String(),
		"bill_total":    result.BillTotal.String(),
		"diff":          result.Diff.String(),
		"pct_diff":      result.PctDiff.String(),
		"tolerance_pct": tol.Pct.String(),
		"tolerance_abs": tol.Abs.String(),
	}
	if exception != nil {
		payload["exception_id"] = exception.ID
		payload["exception_status"] = string(exception.Status)
	}
	if err := tx.AppendAudit(ctx, audit.NewEntry(po.ID, audit.ActionMatch, input.ActorID, payload, now)); err != nil {
		return MatchOutcome{}, "", err
	}
	return MatchOutcome{Result: result, Exception: exception}, action, nil
}

func applyResult(e *MatchException, r MatchResult) {
	e.POTotal = r.POTotal
	e.BillTotal = r.BillTotal
	e.Diff = r.Diff
	e.PctDiff = r.PctDiff
}

// GetException returns one exception.
func (s *Service) GetException(ctx context.Context, id int64) (MatchException, error) {
	return s.repo.GetException(ctx, id)
}

// ListExceptions returns one page of exceptions, newest first.
func (s *Service) ListExceptions(ctx context.Context, q ListQuery) (shared.Page[ExceptionView], error) {
	if err := q.Filter.Validate(); err != nil {
		return shared.Page[ExceptionView]{}, err
	}
	if q.Override != nil {
		if err := q.Override.Validate(); err != nil {
			return shared.Page[ExceptionView]{}, err
		}
	}
	page, size := shared.NormalizePage(q.Page, q.PageSize)
	rows, total, err := s.repo.ListExceptions(ctx, q.Filter, size, shared.Offset(page, size))
	if err != nil {
		return shared.Page[ExceptionView]{}, err
	}
	return shared.Page[ExceptionView]{
		Items:      annotate(rows, q.Override),
		Pagination: shared.NewPagination(page, size, total),
	}, nil
}

func annotate(rows []MatchException, override *Tolerance) []ExceptionView {
	views := make([]ExceptionView, 0, len(rows))
	for _, row := range rows {
		view := ExceptionView{MatchException: row}
		if override != nil {
			whatIf := Evaluate(row.POTotal, row.BillTotal, *override)
			view.WhatIf = &whatIf
		}
		views = append(views, view)
	}
	return views
}

// Resolve closes an exception. Resolving a resolved exception succeeds
// without side effects.
func (s *Service) Resolve(ctx context.Context, id int64, actor shared.Actor) (MatchException, error) {
	var (
		resolved MatchException
		changed  bool
	)
	err := s.withLock(ctx, shared.ExceptionLockKey(id), func(ctx context.Context) error {
		var err error
		resolved, changed, err = s.resolveTx(ctx, id, actor)
		if errors.Is(err, shared.ErrConflict) {
			// a concurrent resolve that committed first is seen as resolved on retry
			resolved, changed, err = s.resolveTx(ctx, id, actor)
		}
		return err
	})
	if err != nil {
		return MatchException{}, err
	}
	if changed {
		s.cfg.Metrics.observeTransition(ActionResolve)
		s.logger.Info("match exception resolved", slog.Int64("exception_id", id), slog.Int64("actor_id", actor.ID))
	}
	return resolved, nil
}

func (s *Service) resolveTx(ctx context.Context, id int64, actor shared.Actor) (MatchException, bool, error) {
	var (
		resolved MatchException
		changed  bool
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		e, err := tx.LockException(ctx, id)
		if err != nil {
			return err
		}
		if e.Status == StatusResolved {
			resolved = e
			return nil
		}
		if e.Status == StatusOpen {
			cfg, err := s.ApprovalSettings(ctx, e.CompanyID)
			if err != nil {
				return err
			}
			if tier, ok := SelectTier(cfg.Tiers, e.Diff); ok {
				return fmt.Errorf("%w: exception %d exceeds the %s tier", ErrApprovalRequired, e.ID, tier.AmountThreshold)
			}
		}
		from := e.Status
		next, err := NextStatus(from, ActionResolve)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		e.Status = next
		e.ResolvedBy = actor.ID
		e.ResolvedAt = &now
		e.UpdatedAt = now
		if err := tx.UpdateException(ctx, e); err != nil {
			return err
		}
		payload := map[string]any{
			"exception_id": e.ID,
			"bill_id":      e.BillID,
			"from":         string(from),
			"diff":         e.Diff.String(),
		}
		if err := tx.AppendAudit(ctx, audit.NewEntry(e.POID, audit.ActionResolve, actor.ID, payload, now)); err != nil {
			return err
		}
		resolved, changed = e, true
		return nil
	})
	return resolved, changed, err
}

// BulkResolve resolves every id independently. Failures are reported per
// id and never stop the remaining items.
func (s *Service) BulkResolve(ctx context.Context, ids []int64, actor shared.Actor) map[int64]BulkOutcome {
	unique := dedupeIDs(ids)
	results := make(map[int64]BulkOutcome, len(unique))
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(s.cfg.BulkConcurrency)
	for _, id := range unique {
		g.Go(func() error {
			var outcome BulkOutcome
			if id <= 0 {
				outcome = BulkOutcome{Code: shared.Kind(shared.ErrValidation), Error: "invalid exception id"}
			} else if e, err := s.Resolve(ctx, id, actor); err != nil {
				outcome = BulkOutcome{Code: shared.Kind(err), Error: err.Error()}
			} else {
				outcome = BulkOutcome{Status: e.Status}
			}
			s.cfg.Metrics.observeBulkItem(outcome.OK())
			mu.Lock()
			results[id] = outcome
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, o := range results {
		if !o.OK() {
			failed++
		}
	}
	s.logger.Info("bulk resolve finished",
		slog.Int("requested", len(unique)),
		slog.Int("failed", failed),
		slog.Int64("actor_id", actor.ID),
	)
	return results
}

func dedupeIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// ScanStale counts unresolved exceptions untouched for longer than olderThan
// and publishes the counts per company.
func (s *Service) ScanStale(ctx context.Context, olderThan time.Duration) ([]StaleCount, error) {
	if olderThan <= 0 {
		return nil, fmt.Errorf("threeway: stale threshold must be positive: %w", shared.ErrValidation)
	}
	counts, err := s.repo.CountStale(ctx, s.now().UTC().Add(-olderThan))
	if err != nil {
		return nil, err
	}
	sort.Slice(counts, func(i, j int) bool { return counts[i].CompanyID < counts[j].CompanyID })
	published := make(map[string]int, len(counts))
	for _, c := range counts {
		published[strconv.FormatInt(c.CompanyID, 10)] = c.Count
	}
	s.cfg.Metrics.PublishStale(published)
	return counts, nil
}

// Tolerance returns the effective tolerance of a company.
func (s *Service) Tolerance(ctx context.Context, companyID int64, purchaseType procurement.PurchaseType) (Tolerance, error) {
	if companyID <= 0 {
		return Tolerance{}, fmt.Errorf("threeway: company id required: %w", shared.ErrValidation)
	}
	return s.policy.Effective(ctx, companyID, purchaseType)
}

// SetTolerance stores a company tolerance. The actor needs a settings role.
func (s *Service) SetTolerance(ctx context.Context, companyID int64, purchaseType procurement.PurchaseType, tol Tolerance, actor shared.Actor) error {
	if companyID <= 0 {
		return fmt.Errorf("threeway: company id required: %w", shared.ErrValidation)
	}
	if err := s.requireSettingsRole(actor); err != nil {
		return err
	}
	if err := s.policy.Set(ctx, companyID, purchaseType, tol); err != nil {
		return err
	}
	s.logger.Info("tolerance updated",
		slog.Int64("company_id", companyID),
		slog.String("purchase_type", string(purchaseType)),
		slog.String("pct", tol.Pct.String()),
		slog.String("abs", tol.Abs.String()),
		slog.Int64("actor_id", actor.ID),
	)
	return nil
}

func (s *Service) requireSettingsRole(actor shared.Actor) error {
	if len(s.cfg.SettingsRoles) == 0 || actor.HasAnyRole(s.cfg.SettingsRoles) {
		return nil
	}
	return fmt.Errorf("threeway: settings require one of %v: %w", s.cfg.SettingsRoles, shared.ErrInsufficientRole)
}

func (s *Service) withLock(ctx context.Context, key string, fn func(context.Context) error) error {
	if s.locker == nil {
		return fn(ctx)
	}
	return s.locker.WithLock(ctx, key, fn)
}
