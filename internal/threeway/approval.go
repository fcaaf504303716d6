package threeway

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/threeway/internal/shared"
)

const (
	settingReasonCodes   = "three_way_reason_codes"
	settingApprovalTiers = "three_way_approval_tiers"
)

// Tier requires one of RequiredRoles once |diff| reaches AmountThreshold.
type Tier struct {
	AmountThreshold decimal.Decimal `json:"amount_threshold"`
	RequiredRoles   []string        `json:"required_roles"`
}

// ApprovalSettings is the per-company approval configuration.
type ApprovalSettings struct {
	Reasons []string `json:"reasons"`
	Tiers   []Tier   `json:"tiers"`
}

// Validate checks thresholds, roles and reason codes.
func (a ApprovalSettings) Validate() error {
	seenThreshold := make(map[string]struct{}, len(a.Tiers))
	for i, tier := range a.Tiers {
		if tier.AmountThreshold.IsNegative() {
			return fmt.Errorf("threeway: tier %d threshold must not be negative: %w", i, shared.ErrValidation)
		}
		key := tier.AmountThreshold.String()
		if _, dup := seenThreshold[key]; dup {
			return fmt.Errorf("threeway: duplicate tier threshold %s: %w", key, shared.ErrValidation)
		}
		seenThreshold[key] = struct{}{}
		if len(tier.RequiredRoles) == 0 {
			return fmt.Errorf("threeway: tier %s needs at least one role: %w", key, shared.ErrValidation)
		}
		for _, role := range tier.RequiredRoles {
			if strings.TrimSpace(role) == "" {
				return fmt.Errorf("threeway: tier %s has an empty role: %w", key, shared.ErrValidation)
			}
		}
	}
	seenReason := make(map[string]struct{}, len(a.Reasons))
	for _, reason := range a.Reasons {
		folded := shared.FoldKey(reason)
		if folded == "" {
			return fmt.Errorf("threeway: empty reason code: %w", shared.ErrValidation)
		}
		if _, dup := seenReason[folded]; dup {
			return fmt.Errorf("threeway: duplicate reason code %q: %w", reason, shared.ErrValidation)
		}
		seenReason[folded] = struct{}{}
	}
	return nil
}

// CanonicalReason returns the configured spelling of code, matched after
// trimming and case folding.
func (a ApprovalSettings) CanonicalReason(code string) (string, bool) {
	folded := shared.FoldKey(code)
	if folded == "" {
		return "", false
	}
	for _, reason := range a.Reasons {
		if shared.FoldKey(reason) == folded {
			return strings.TrimSpace(reason), true
		}
	}
	return "", false
}

// SelectTier returns the tier with the highest threshold not above |diff|.
func SelectTier(tiers []Tier, diff decimal.Decimal) (Tier, bool) {
	abs := diff.Abs()
	var (
		best  Tier
		found bool
	)
	for _, tier := range tiers {
		if tier.AmountThreshold.GreaterThan(abs) {
			continue
		}
		if !found || tier.AmountThreshold.GreaterThan(best.AmountThreshold) {
			best, found = tier, true
		}
	}
	return best, found
}

func decodeApprovalSettings(values map[string]string) (ApprovalSettings, error) {
	var out ApprovalSettings
	if raw := values[settingReasonCodes]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &out.Reasons); err != nil {
			return ApprovalSettings{}, fmt.Errorf("threeway: decode reason codes: %w", err)
		}
	}
	if raw := values[settingApprovalTiers]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &out.Tiers); err != nil {
			return ApprovalSettings{}, fmt.Errorf("threeway: decode approval tiers: %w", err)
		}
	}
	sort.SliceStable(out.Tiers, func(i, j int) bool {
		return out.Tiers[i].AmountThreshold.LessThan(out.Tiers[j].AmountThreshold)
	})
	if out.Reasons == nil {
		out.Reasons = []string{}
	}
	if out.Tiers == nil {
		out.Tiers = []Tier{}
	}
	return out, nil
}

func encodeApprovalSettings(a ApprovalSettings) (map[string]string, error) {
	reasons := make([]string, 0, len(a.Reasons))
	for _, r := range a.Reasons {
		reasons = append(reasons, strings.TrimSpace(r))
	}
	tiers := a.Tiers
	if tiers == nil {
		tiers = []Tier{}
	}
	rawReasons, err := json.Marshal(reasons)
	if err != nil {
		return nil, err
	}
	rawTiers, err := json.Marshal(tiers)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		settingReasonCodes:   string(rawReasons),
		settingApprovalTiers: string(rawTiers),
	}, nil
}
