package approval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/frahmantamala/expense-approval/internal"
	approvalDatamodel "github.com/frahmantamala/expense-approval/internal/core/datamodel/approval"

	"github.com/shopspring/decimal"
)

// Submitter is the slice of the employee record the engine needs.
type Submitter struct {
	UserID       int64
	CompanyID    int64
	DepartmentID *int64
	ManagerID    *int64
}

// PlannedStep is a flow step with its approver resolved to a concrete user.
type PlannedStep struct {
	StepID         int64
	Order          int
	ApproverID     int64
	IsHighPriority bool
}

// Resolver selects flows from the catalog. It never writes.
type Resolver struct {
	repo   RepositoryAPI
	logger *slog.Logger
}

func NewResolver(repo RepositoryAPI, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{repo: repo, logger: logger}
}

// Resolve returns the single flow that governs an expense of amount
// (converted to company currency) raised by submitter.
func (r *Resolver) Resolve(ctx context.Context, submitter Submitter, amount decimal.Decimal) (*Flow, error) {
	rows, err := r.repo.ListFlowsByCompany(ctx, submitter.CompanyID)
	if err != nil {
		return nil, fmt.Errorf("list flows for company %d: %w", submitter.CompanyID, err)
	}

	// A row that cannot be loaded only blocks submissions it would govern.
	flows := make([]*Flow, 0, len(rows))
	for _, row := range rows {
		f, err := FlowFromDataModel(row)
		if err == nil {
			flows = append(flows, f)
			continue
		}
		if !rowCovers(row, submitter, amount) {
			r.logger.WarnContext(ctx, "skipping unloadable approval flow",
				"flow_id", row.ID, "company_id", row.CompanyID, "error", err)
			continue
		}
		return nil, internal.ErrNoMatchingFlow.
			WithMessagef("approval flow %d matches amount %s but cannot be loaded", row.ID, amount.String()).
			WithCause(err)
	}

	flow, err := SelectFlow(flows, submitter, amount)
	if err != nil {
		return nil, err
	}
	if err := ValidateStepOrders(flow); err != nil {
		return nil, err
	}
	return flow, nil
}

// Flow loads a flow by id, typically the one pinned on an expense.
func (r *Resolver) Flow(ctx context.Context, id int64) (*Flow, error) {
	row, err := r.repo.GetFlow(ctx, id)
	if err != nil {
		return nil, err
	}
	return FlowFromDataModel(row)
}

// Rule loads a rule by id regardless of IsActive. Expenses keep evaluating
// under the rule pinned at submission.
func (r *Resolver) Rule(ctx context.Context, id int64) (*Rule, error) {
	row, err := r.repo.GetRule(ctx, id)
	if err != nil {
		return nil, err
	}
	return RuleFromDataModel(row)
}

// SelectFlow filters flows by department and inclusive amount window, then
// prefers department-scoped flows and, among those, the narrowest window.
func SelectFlow(flows []*Flow, submitter Submitter, amount decimal.Decimal) (*Flow, error) {
	candidates := make([]*Flow, 0, len(flows))
	for _, f := range flows {
		if f.CompanyID != submitter.CompanyID {
			continue
		}
		if !departmentMatches(f, submitter) || !f.Contains(amount) {
			continue
		}
		candidates = append(candidates, f)
	}

	if len(candidates) == 0 {
		return nil, internal.ErrNoMatchingFlow.WithMessagef(
			"no approval flow matches amount %s for company %d", amount.String(), submitter.CompanyID)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return compareSpecificity(candidates[i], candidates[j]) < 0
	})
	if len(candidates) > 1 && compareSpecificity(candidates[0], candidates[1]) == 0 {
		return nil, internal.ErrAmbiguousFlow.WithMessagef(
			"approval flows %d and %d both match amount %s", candidates[0].ID, candidates[1].ID, amount.String())
	}
	return candidates[0], nil
}

// rowCovers applies the department and window filters to an unconverted row.
func rowCovers(row *approvalDatamodel.ApprovalFlow, s Submitter, amount decimal.Decimal) bool {
	if row.DepartmentID != nil && (s.DepartmentID == nil || *row.DepartmentID != *s.DepartmentID) {
		return false
	}
	if row.MinAmount.Valid && amount.LessThan(row.MinAmount.Decimal) {
		return false
	}
	if row.MaxAmount.Valid && amount.GreaterThan(row.MaxAmount.Decimal) {
		return false
	}
	return true
}

func departmentMatches(f *Flow, s Submitter) bool {
	if f.DepartmentID == nil {
		return true
	}
	return s.DepartmentID != nil && *f.DepartmentID == *s.DepartmentID
}

// compareSpecificity orders a before b (-1) when a is the more specific flow.
func compareSpecificity(a, b *Flow) int {
	aScoped, bScoped := a.DepartmentID != nil, b.DepartmentID != nil
	if aScoped != bScoped {
		if aScoped {
			return -1
		}
		return 1
	}

	aWidth, aBounded := windowWidth(a)
	bWidth, bBounded := windowWidth(b)
	switch {
	case aBounded && !bBounded:
		return -1
	case !aBounded && bBounded:
		return 1
	case !aBounded && !bBounded:
		return 0
	}
	return aWidth.Cmp(bWidth)
}

// windowWidth returns max-min; bounded is false when either side is open.
func windowWidth(f *Flow) (decimal.Decimal, bool) {
	if f.MinAmount == nil || f.MaxAmount == nil {
		return decimal.Zero, false
	}
	return f.MaxAmount.Sub(*f.MinAmount), true
}

// ValidateStepOrders checks that step orders are exactly 1..n.
func ValidateStepOrders(f *Flow) error {
	for i, st := range f.OrderedSteps() {
		if st.Order != i+1 {
			return internal.ErrInvalidFlowSteps.WithMessagef(
				"approval flow %d: expected step order %d, found %d", f.ID, i+1, st.Order)
		}
	}
	return nil
}

// MaterializeSteps resolves every step of flow to a concrete approver, in
// order. Manager steps use the submitter's current manager.
func MaterializeSteps(flow *Flow, submitter Submitter) ([]PlannedStep, error) {
	steps := flow.OrderedSteps()
	if len(steps) == 0 {
		return nil, internal.ErrEmptyFlow.WithMessagef("approval flow %d has no steps", flow.ID)
	}

	planned := make([]PlannedStep, 0, len(steps))
	for _, st := range steps {
		p, err := PlanStep(st, submitter)
		if err != nil {
			return nil, err
		}
		planned = append(planned, p)
	}
	return planned, nil
}

func PlanStep(st Step, submitter Submitter) (PlannedStep, error) {
	var approverID int64
	switch a := st.Approver.(type) {
	case FixedApprover:
		approverID = a.UserID
	case ManagerOfSubmitter:
		if submitter.ManagerID == nil {
			return PlannedStep{}, internal.ErrNoManagerAssigned.WithMessagef(
				"user %d has no manager for step %d", submitter.UserID, st.Order)
		}
		approverID = *submitter.ManagerID
	default:
		return PlannedStep{}, fmt.Errorf("step %d: unsupported approver reference %T", st.ID, st.Approver)
	}
	return PlannedStep{
		StepID:         st.ID,
		Order:          st.Order,
		ApproverID:     approverID,
		IsHighPriority: st.IsHighPriority,
	}, nil
}
