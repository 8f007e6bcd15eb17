package approval

import (
	"fmt"
	"sort"
	"time"

	approvalDatamodel "github.com/frahmantamala/expense-approval/internal/core/datamodel/approval"

	"github.com/shopspring/decimal"
)

// ApproverRef is either FixedApprover or ManagerOfSubmitter.
type ApproverRef interface {
	isApproverRef()
}

type FixedApprover struct {
	UserID int64
}

// ManagerOfSubmitter resolves to the submitter's manager at activation time.
type ManagerOfSubmitter struct{}

func (FixedApprover) isApproverRef()      {}
func (ManagerOfSubmitter) isApproverRef() {}

type Step struct {
	ID             int64
	FlowID         int64
	Order          int
	Approver       ApproverRef
	IsHighPriority bool
}

type Flow struct {
	ID           int64
	CompanyID    int64
	Name         string
	Description  string
	DepartmentID *int64
	MinAmount    *decimal.Decimal
	MaxAmount    *decimal.Decimal
	Rule         *Rule
	Steps        []Step
	CreatedAt    time.Time
}

// Contains reports whether amount lies in the inclusive [min, max] window.
// A nil bound is unbounded on that side.
func (f *Flow) Contains(amount decimal.Decimal) bool {
	if f.MinAmount != nil && amount.LessThan(*f.MinAmount) {
		return false
	}
	if f.MaxAmount != nil && amount.GreaterThan(*f.MaxAmount) {
		return false
	}
	return true
}

// ActiveRule returns the rule the flow pins on submitted expenses. Inactive
// rules are ignored and the unanimous fallback applies.
func (f *Flow) ActiveRule() *Rule {
	if f.Rule == nil || !f.Rule.IsActive {
		return nil
	}
	return f.Rule
}

// OrderedSteps returns a copy of the steps sorted by Order.
func (f *Flow) OrderedSteps() []Step {
	steps := make([]Step, len(f.Steps))
	copy(steps, f.Steps)
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].Order < steps[j].Order })
	return steps
}

// NextStepAfter returns the step with the smallest order greater than order.
func (f *Flow) NextStepAfter(order int) (Step, bool) {
	for _, st := range f.OrderedSteps() {
		if st.Order > order {
			return st, true
		}
	}
	return Step{}, false
}

func StepToDataModel(s Step) approvalDatamodel.FlowStep {
	dm := approvalDatamodel.FlowStep{
		ID:             s.ID,
		FlowID:         s.FlowID,
		StepOrder:      s.Order,
		IsHighPriority: s.IsHighPriority,
	}
	switch a := s.Approver.(type) {
	case FixedApprover:
		id := a.UserID
		dm.ApproverID = &id
	case ManagerOfSubmitter:
		dm.IsManagerStep = true
	}
	return dm
}

func StepFromDataModel(s approvalDatamodel.FlowStep) (Step, error) {
	var ref ApproverRef
	switch {
	case s.IsManagerStep:
		ref = ManagerOfSubmitter{}
	case s.ApproverID != nil:
		ref = FixedApprover{UserID: *s.ApproverID}
	default:
		return Step{}, fmt.Errorf("flow step %d has neither approver nor manager flag", s.ID)
	}
	return Step{
		ID:             s.ID,
		FlowID:         s.FlowID,
		Order:          s.StepOrder,
		Approver:       ref,
		IsHighPriority: s.IsHighPriority,
	}, nil
}

func FlowToDataModel(f *Flow) *approvalDatamodel.ApprovalFlow {
	dm := &approvalDatamodel.ApprovalFlow{
		ID:           f.ID,
		CompanyID:    f.CompanyID,
		Name:         f.Name,
		Description:  f.Description,
		DepartmentID: f.DepartmentID,
		CreatedAt:    f.CreatedAt,
	}
	if f.MinAmount != nil {
		dm.MinAmount = decimal.NewNullDecimal(*f.MinAmount)
	}
	if f.MaxAmount != nil {
		dm.MaxAmount = decimal.NewNullDecimal(*f.MaxAmount)
	}
	if f.Rule != nil {
		id := f.Rule.ID
		dm.RuleID = &id
	}
	dm.Steps = make([]approvalDatamodel.FlowStep, len(f.Steps))
	for i, s := range f.Steps {
		dm.Steps[i] = StepToDataModel(s)
	}
	return dm
}

func FlowFromDataModel(f *approvalDatamodel.ApprovalFlow) (*Flow, error) {
	flow := &Flow{
		ID:           f.ID,
		CompanyID:    f.CompanyID,
		Name:         f.Name,
		Description:  f.Description,
		DepartmentID: f.DepartmentID,
		CreatedAt:    f.CreatedAt,
	}
	if f.MinAmount.Valid {
		v := f.MinAmount.Decimal
		flow.MinAmount = &v
	}
	if f.MaxAmount.Valid {
		v := f.MaxAmount.Decimal
		flow.MaxAmount = &v
	}
	if f.Rule != nil {
		rule, err := RuleFromDataModel(f.Rule)
		if err != nil {
			return nil, fmt.Errorf("flow %d: %w", f.ID, err)
		}
		flow.Rule = rule
	}
	flow.Steps = make([]Step, 0, len(f.Steps))
	for _, s := range f.Steps {
		step, err := StepFromDataModel(s)
		if err != nil {
			return nil, fmt.Errorf("flow %d: %w", f.ID, err)
		}
		flow.Steps = append(flow.Steps, step)
	}
	return flow, nil
}
