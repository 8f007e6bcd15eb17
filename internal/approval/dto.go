package approval

import (
	"fmt"
	"sort"
	"time"

	"github.com/frahmantamala/expense-approval/internal"
	"github.com/frahmantamala/expense-approval/internal/core/common/validation"

	"github.com/shopspring/decimal"
)

type CreateRuleDTO struct {
	Name               string   `json:"name"`
	RuleType           RuleType `json:"rule_type"`
	MinimumPercentage  *int     `json:"minimum_percentage,omitempty"`
	SpecificApproverID *int64   `json:"specific_approver_id,omitempty"`
	IsActive           *bool    `json:"is_active,omitempty"`
}

// Validate checks the payload and returns the typed spec it describes.
func (dto CreateRuleDTO) Validate() (RuleSpec, error) {
	v := validation.NewValidator()
	v.Field("name", dto.Name).Required().MaxLength(100)
	if err := v.Validate(); err != nil {
		return nil, err
	}
	return NewRuleSpec(dto.RuleType, dto.MinimumPercentage, dto.SpecificApproverID)
}

type CreateStepDTO struct {
	Order          int    `json:"order"`
	ApproverID     *int64 `json:"approver_id,omitempty"`
	IsManagerStep  bool   `json:"is_manager_step"`
	IsHighPriority bool   `json:"is_high_priority"`
}

type CreateFlowDTO struct {
	Name         string           `json:"name"`
	Description  string           `json:"description"`
	DepartmentID *int64           `json:"department_id,omitempty"`
	MinAmount    *decimal.Decimal `json:"min_amount,omitempty"`
	MaxAmount    *decimal.Decimal `json:"max_amount,omitempty"`
	RuleID       *int64           `json:"rule_id,omitempty"`
	Steps        []CreateStepDTO  `json:"steps"`
}

func (dto CreateFlowDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("name", dto.Name).Required().MaxLength(100)
	if err := v.Validate(); err != nil {
		return err
	}

	if dto.MinAmount != nil && dto.MinAmount.IsNegative() {
		return invalidFlow("min_amount", "min_amount must not be negative")
	}
	if dto.MaxAmount != nil && dto.MaxAmount.IsNegative() {
		return invalidFlow("max_amount", "max_amount must not be negative")
	}
	if dto.MinAmount != nil && dto.MaxAmount != nil && dto.MinAmount.GreaterThan(*dto.MaxAmount) {
		return invalidFlow("max_amount", "max_amount must not be less than min_amount")
	}

	if len(dto.Steps) == 0 {
		return invalidFlow("steps", "flow needs at least one step")
	}
	orders := make([]int, len(dto.Steps))
	for i, st := range dto.Steps {
		if st.IsManagerStep == (st.ApproverID != nil) {
			return invalidFlow(fmt.Sprintf("steps[%d]", i), "step needs exactly one of approver_id or is_manager_step")
		}
		orders[i] = st.Order
	}
	sort.Ints(orders)
	for i, o := range orders {
		if o != i+1 {
			return invalidFlow("steps", "step orders must be contiguous starting at 1")
		}
	}
	return nil
}

func invalidFlow(field, msg string) error {
	return internal.NewValidationFieldError(field, msg, internal.ErrCodeInvalidFlow)
}

type RuleResponse struct {
	ID                 int64     `json:"id"`
	CompanyID          int64     `json:"company_id"`
	Name               string    `json:"name"`
	RuleType           RuleType  `json:"rule_type"`
	MinimumPercentage  *int      `json:"minimum_percentage,omitempty"`
	SpecificApproverID *int64    `json:"specific_approver_id,omitempty"`
	IsActive           bool      `json:"is_active"`
	CreatedAt          time.Time `json:"created_at"`
}

func NewRuleResponse(r *Rule) *RuleResponse {
	ruleType, pct, approverID := specColumns(r.Spec)
	return &RuleResponse{
		ID:                 r.ID,
		CompanyID:          r.CompanyID,
		Name:               r.Name,
		RuleType:           ruleType,
		MinimumPercentage:  pct,
		SpecificApproverID: approverID,
		IsActive:           r.IsActive,
		CreatedAt:          r.CreatedAt,
	}
}

type StepResponse struct {
	ID             int64  `json:"id"`
	Order          int    `json:"order"`
	ApproverID     *int64 `json:"approver_id,omitempty"`
	IsManagerStep  bool   `json:"is_manager_step"`
	IsHighPriority bool   `json:"is_high_priority"`
}

type FlowResponse struct {
	ID           int64            `json:"id"`
	CompanyID    int64            `json:"company_id"`
	Name         string           `json:"name"`
	Description  string           `json:"description"`
	DepartmentID *int64           `json:"department_id,omitempty"`
	MinAmount    *decimal.Decimal `json:"min_amount,omitempty"`
	MaxAmount    *decimal.Decimal `json:"max_amount,omitempty"`
	Rule         *RuleResponse    `json:"rule,omitempty"`
	Steps        []StepResponse   `json:"steps"`
	CreatedAt    time.Time        `json:"created_at"`
}

func NewFlowResponse(f *Flow) *FlowResponse {
	resp := &FlowResponse{
		ID:           f.ID,
		CompanyID:    f.CompanyID,
		Name:         f.Name,
		Description:  f.Description,
		DepartmentID: f.DepartmentID,
		MinAmount:    f.MinAmount,
		MaxAmount:    f.MaxAmount,
		CreatedAt:    f.CreatedAt,
	}
	if f.Rule != nil {
		resp.Rule = NewRuleResponse(f.Rule)
	}
	resp.Steps = make([]StepResponse, 0, len(f.Steps))
	for _, st := range f.OrderedSteps() {
		dm := StepToDataModel(st)
		resp.Steps = append(resp.Steps, StepResponse{
			ID:             st.ID,
			Order:          st.Order,
			ApproverID:     dm.ApproverID,
			IsManagerStep:  dm.IsManagerStep,
			IsHighPriority: st.IsHighPriority,
		})
	}
	return resp
}
