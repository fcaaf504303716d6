package threeway

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/odyssey-erp/threeway/internal/audit"
	"github.com/odyssey-erp/threeway/internal/shared"
)

// ApprovalSettings loads the reason codes and tiers of a company.
func (s *Service) ApprovalSettings(ctx context.Context, companyID int64) (ApprovalSettings, error) {
	values, err := s.settings.Get(ctx, companyID, settingReasonCodes, settingApprovalTiers)
	if err != nil {
		return ApprovalSettings{}, fmt.Errorf("threeway: load approval settings for company %d: %w", companyID, err)
	}
	return decodeApprovalSettings(values)
}

// SaveApprovalSettings replaces the reason codes and tiers of a company.
func (s *Service) SaveApprovalSettings(ctx context.Context, companyID int64, cfg ApprovalSettings, actor shared.Actor) error {
	if companyID <= 0 {
		return fmt.Errorf("threeway: company id required: %w", shared.ErrValidation)
	}
	if err := s.requireSettingsRole(actor); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	values, err := encodeApprovalSettings(cfg)
	if err != nil {
		return err
	}
	if err := s.settings.Put(ctx, companyID, values); err != nil {
		return err
	}
	s.logger.Info("approval settings updated",
		slog.Int64("company_id", companyID),
		slog.Int("tiers", len(cfg.Tiers)),
		slog.Int("reasons", len(cfg.Reasons)),
		slog.Int64("actor_id", actor.ID),
	)
	return nil
}

// RequiredApproval returns the tier the exception's variance falls into.
func (s *Service) RequiredApproval(ctx context.Context, e MatchException) (Tier, bool, error) {
	cfg, err := s.ApprovalSettings(ctx, e.CompanyID)
	if err != nil {
		return Tier{}, false, err
	}
	tier, ok := SelectTier(cfg.Tiers, e.Diff)
	return tier, ok, nil
}

// SubmitForApproval parks an open exception until an approver decides.
func (s *Service) SubmitForApproval(ctx context.Context, id int64, actor shared.Actor) (MatchException, error) {
	return s.transition(ctx, id, actor, ActionSubmit, func(ctx context.Context, e MatchException) (string, error) {
		_, ok, err := s.RequiredApproval(ctx, e)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", fmt.Errorf("threeway: exception %d needs no approval: %w", e.ID, shared.ErrInvalidTransition)
		}
		return "", nil
	})
}

// Approve accepts the variance with a configured reason code.
func (s *Service) Approve(ctx context.Context, id int64, actor shared.Actor, reason string) (MatchException, error) {
	return s.transition(ctx, id, actor, ActionApprove, s.decisionCheck(actor, reason))
}

// Reject refuses the variance with a configured reason code.
func (s *Service) Reject(ctx context.Context, id int64, actor shared.Actor, reason string) (MatchException, error) {
	return s.transition(ctx, id, actor, ActionReject, s.decisionCheck(actor, reason))
}

// decisionCheck enforces the tier role, then the reason code. It returns
// the canonical reason.
func (s *Service) decisionCheck(actor shared.Actor, reason string) func(context.Context, MatchException) (string, error) {
	return func(ctx context.Context, e MatchException) (string, error) {
		cfg, err := s.ApprovalSettings(ctx, e.CompanyID)
		if err != nil {
			return "", err
		}
		if tier, ok := SelectTier(cfg.Tiers, e.Diff); ok && !actor.HasAnyRole(tier.RequiredRoles) {
			return "", fmt.Errorf("threeway: exception %d requires one of %v: %w", e.ID, tier.RequiredRoles, shared.ErrInsufficientRole)
		}
		canonical, ok := cfg.CanonicalReason(reason)
		if !ok {
			return "", fmt.Errorf("threeway: reason %q is not configured: %w", reason, shared.ErrInvalidReasonCode)
		}
		return canonical, nil
	}
}

var auditActions = map[Action]audit.Action{
	ActionSubmit:  audit.ActionSubmit,
	ActionApprove: audit.ActionApprove,
	ActionReject:  audit.ActionReject,
}

func (s *Service) transition(ctx context.Context, id int64, actor shared.Actor, action Action, check func(context.Context, MatchException) (string, error)) (MatchException, error) {
	var updated MatchException
	err := s.withLock(ctx, shared.ExceptionLockKey(id), func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			e, err := tx.LockException(ctx, id)
			if err != nil {
				return err
			}
			from := e.Status
			next, err := NextStatus(from, action)
			if err != nil {
				return err
			}
			reason, err := check(ctx, e)
			if err != nil {
				return err
			}
			now := s.now().UTC()
			e.Status = next
			e.UpdatedAt = now
			if action != ActionSubmit {
				e.ReasonCode = reason
				e.DecidedBy = actor.ID
			}
			if err := tx.UpdateException(ctx, e); err != nil {
				return err
			}
			payload := map[string]any{
				"exception_id": e.ID,
				"bill_id":      e.BillID,
				"from":         string(from),
				"to":           string(next),
				"diff":         e.Diff.String(),
			}
			if reason != "" {
				payload["reason"] = reason
			}
			if err := tx.AppendAudit(ctx, audit.NewEntry(e.POID, auditActions[action], actor.ID, payload, now)); err != nil {
				return err
			}
			updated = e
			return nil
		})
	})
	if err != nil {
		return MatchException{}, err
	}
	s.cfg.Metrics.observeTransition(action)
	s.logger.Info("match exception transitioned",
		slog.Int64("exception_id", id),
		slog.String("action", string(action)),
		slog.String("status", string(updated.Status)),
		slog.Int64("actor_id", actor.ID),
	)
	return updated, nil
}
