package approval

import (
	"fmt"
	"time"

	"github.com/frahmantamala/expense-approval/internal"
	approvalDatamodel "github.com/frahmantamala/expense-approval/internal/core/datamodel/approval"
)

type RuleType string

const (
	RuleTypePercentage RuleType = "PERCENTAGE"
	RuleTypeSpecific   RuleType = "SPECIFIC"
	RuleTypeHybrid     RuleType = "HYBRID"
)

// RuleSpec is one of PercentageRule, SpecificRule or HybridRule.
type RuleSpec interface {
	Type() RuleType
	isRuleSpec()
}

// PercentageRule approves once MinimumPercentage of all flow steps approved.
type PercentageRule struct {
	MinimumPercentage int
}

// SpecificRule lets one approver decide the expense on their own.
type SpecificRule struct {
	ApproverID int64
}

// HybridRule approves when either the percentage or the specific approver
// condition holds.
type HybridRule struct {
	MinimumPercentage int
	ApproverID        int64
}

func (PercentageRule) Type() RuleType { return RuleTypePercentage }
func (SpecificRule) Type() RuleType   { return RuleTypeSpecific }
func (HybridRule) Type() RuleType     { return RuleTypeHybrid }

func (PercentageRule) isRuleSpec() {}
func (SpecificRule) isRuleSpec()   {}
func (HybridRule) isRuleSpec()     {}

type Rule struct {
	ID        int64     `json:"id"`
	CompanyID int64     `json:"company_id"`
	Name      string    `json:"name"`
	Spec      RuleSpec  `json:"-"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// NewRuleSpec builds a spec from the flat column representation, rejecting
// fields that do not belong to the rule type.
func NewRuleSpec(ruleType RuleType, minimumPercentage *int, approverID *int64) (RuleSpec, error) {
	switch ruleType {
	case RuleTypePercentage:
		if approverID != nil {
			return nil, invalidRule("specific_approver_id", "percentage rule must not name a specific approver")
		}
		pct, err := requirePercentage(minimumPercentage)
		if err != nil {
			return nil, err
		}
		return PercentageRule{MinimumPercentage: pct}, nil
	case RuleTypeSpecific:
		if minimumPercentage != nil {
			return nil, invalidRule("minimum_percentage", "specific rule must not set a minimum percentage")
		}
		id, err := requireApprover(approverID)
		if err != nil {
			return nil, err
		}
		return SpecificRule{ApproverID: id}, nil
	case RuleTypeHybrid:
		pct, err := requirePercentage(minimumPercentage)
		if err != nil {
			return nil, err
		}
		id, err := requireApprover(approverID)
		if err != nil {
			return nil, err
		}
		return HybridRule{MinimumPercentage: pct, ApproverID: id}, nil
	default:
		return nil, invalidRule("rule_type", fmt.Sprintf("unknown rule type %q", ruleType))
	}
}

func requirePercentage(p *int) (int, error) {
	if p == nil {
		return 0, invalidRule("minimum_percentage", "minimum_percentage is required")
	}
	if *p < 1 || *p > 100 {
		return 0, invalidRule("minimum_percentage", "minimum_percentage must be between 1 and 100")
	}
	return *p, nil
}

func requireApprover(id *int64) (int64, error) {
	if id == nil || *id <= 0 {
		return 0, invalidRule("specific_approver_id", "specific_approver_id is required")
	}
	return *id, nil
}

func invalidRule(field, msg string) error {
	return internal.NewValidationFieldError(field, msg, internal.ErrCodeInvalidRule)
}

// specColumns flattens a spec back into its column form.
func specColumns(spec RuleSpec) (RuleType, *int, *int64) {
	switch s := spec.(type) {
	case PercentageRule:
		pct := s.MinimumPercentage
		return RuleTypePercentage, &pct, nil
	case SpecificRule:
		id := s.ApproverID
		return RuleTypeSpecific, nil, &id
	case HybridRule:
		pct, id := s.MinimumPercentage, s.ApproverID
		return RuleTypeHybrid, &pct, &id
	}
	return "", nil, nil
}

func RuleToDataModel(r *Rule) *approvalDatamodel.ApprovalRule {
	ruleType, pct, approverID := specColumns(r.Spec)
	return &approvalDatamodel.ApprovalRule{
		ID:                 r.ID,
		CompanyID:          r.CompanyID,
		Name:               r.Name,
		RuleType:           string(ruleType),
		MinimumPercentage:  pct,
		SpecificApproverID: approverID,
		IsActive:           r.IsActive,
		CreatedAt:          r.CreatedAt,
	}
}

func RuleFromDataModel(r *approvalDatamodel.ApprovalRule) (*Rule, error) {
	spec, err := NewRuleSpec(RuleType(r.RuleType), r.MinimumPercentage, r.SpecificApproverID)
	if err != nil {
		return nil, fmt.Errorf("rule %d: %w", r.ID, err)
	}
	return &Rule{
		ID:        r.ID,
		CompanyID: r.CompanyID,
		Name:      r.Name,
		Spec:      spec,
		IsActive:  r.IsActive,
		CreatedAt: r.CreatedAt,
	}, nil
}
