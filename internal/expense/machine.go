package expense

import (
	"context"
	"time"

	"github.com/frahmantamala/expense-approval/internal"
	"github.com/frahmantamala/expense-approval/internal/approval"

	"github.com/shopspring/decimal"
)

// FlowSource is the read side of the approval catalog.
type FlowSource interface {
	Resolve(ctx context.Context, submitter approval.Submitter, amount decimal.Decimal) (*approval.Flow, error)
	Flow(ctx context.Context, id int64) (*approval.Flow, error)
	Rule(ctx context.Context, id int64) (*approval.Rule, error)
}

// Transition describes what a state machine step changed. Created approvals
// have no ID until persisted.
type Transition struct {
	Expense   *Expense
	Decided   *Approval
	Created   []*Approval
	Verdict   approval.Verdict
	Activated *Approval
}

// Machine drives an expense from DRAFT to a terminal status. It works on a
// copy of the workflow and returns the copy, so a failed step leaves the
// caller's value untouched.
type Machine struct {
	flows FlowSource
	now   func() time.Time
}

func NewMachine(flows FlowSource) *Machine {
	return &Machine{flows: flows, now: time.Now}
}

// Submit resolves the governing flow, pins it and its active rule on the
// expense, and opens the first step.
func (m *Machine) Submit(ctx context.Context, wf *Workflow, submitter approval.Submitter) (*Workflow, *Transition, error) {
	if wf.Expense.Status != StatusDraft {
		return nil, nil, internal.ErrInvalidState.WithMessagef(
			"expense %d is %s, only DRAFT expenses can be submitted", wf.Expense.ID, wf.Expense.Status)
	}

	flow, err := m.flows.Resolve(ctx, submitter, wf.Expense.ConvertedAmount)
	if err != nil {
		return nil, nil, err
	}
	// every approver must be resolvable before anything is opened
	planned, err := approval.MaterializeSteps(flow, submitter)
	if err != nil {
		return nil, nil, err
	}

	now := m.now()
	next := wf.Clone()
	exp := next.Expense
	exp.Status = StatusPending
	flowID := flow.ID
	exp.FlowID = &flowID
	exp.RuleID = nil
	if rule := flow.ActiveRule(); rule != nil {
		ruleID := rule.ID
		exp.RuleID = &ruleID
	}
	exp.SubmittedAt = &now
	exp.UpdatedAt = now

	first := m.open(exp.ID, planned[0], now)
	next.Approvals = append(next.Approvals, first)

	return next, &Transition{
		Expense:   exp,
		Created:   []*Approval{first},
		Verdict:   approval.VerdictPending,
		Activated: first,
	}, nil
}

// RecordDecision applies one approver's outcome, re-evaluates the pinned
// rule and either finalizes the expense or opens the next step.
func (m *Machine) RecordDecision(ctx context.Context, wf *Workflow, submitter approval.Submitter, approvalID int64, outcome approval.Outcome, comments string) (*Workflow, *Transition, error) {
	if !outcome.Valid() {
		return nil, nil, internal.NewValidationFieldError("outcome", "outcome must be APPROVED or REJECTED", internal.ErrCodeValidationFailed)
	}
	exp := wf.Expense
	if exp.Status != StatusPending {
		return nil, nil, internal.ErrInvalidState.WithMessagef(
			"expense %d is %s, decisions need a PENDING expense", exp.ID, exp.Status)
	}
	current := wf.FindApproval(approvalID)
	if current == nil {
		return nil, nil, internal.ErrUnknownApproval.WithMessagef(
			"approval %d does not belong to expense %d", approvalID, exp.ID)
	}
	if !current.IsPending() {
		return nil, nil, internal.ErrInvalidState.WithMessagef(
			"approval %d was already %s", approvalID, current.Status)
	}
	if exp.FlowID == nil {
		return nil, nil, internal.NewInternalError("pending expense has no pinned flow", nil)
	}

	flow, err := m.flows.Flow(ctx, *exp.FlowID)
	if err != nil {
		return nil, nil, err
	}
	var spec approval.RuleSpec
	if exp.RuleID != nil {
		rule, err := m.flows.Rule(ctx, *exp.RuleID)
		if err != nil {
			return nil, nil, err
		}
		spec = rule.Spec
	}

	now := m.now()
	next := wf.Clone()
	decided := next.FindApproval(approvalID)
	decided.Status = ApprovalStatus(outcome)
	decided.Comments = comments
	decided.ActedAt = &now
	next.Expense.UpdatedAt = now

	verdict := approval.Evaluate(spec, next.Decisions(), len(flow.Steps))
	tr := &Transition{Expense: next.Expense, Decided: decided, Verdict: verdict}

	if verdict.IsTerminal() {
		next.Expense.Status = Status(verdict)
		next.Expense.DecidedAt = &now
		return next, tr, nil
	}

	step, ok := flow.NextStepAfter(next.LastActivatedOrder())
	if !ok {
		return nil, nil, internal.ErrFlowExhausted.WithMessagef(
			"expense %d: flow %d has no step after %d and the rule is undecided",
			exp.ID, flow.ID, next.LastActivatedOrder())
	}
	planned, err := approval.PlanStep(step, submitter)
	if err != nil {
		return nil, nil, err
	}

	opened := m.open(exp.ID, planned, now)
	next.Approvals = append(next.Approvals, opened)
	tr.Created = []*Approval{opened}
	tr.Activated = opened
	return next, tr, nil
}

func (m *Machine) open(expenseID int64, p approval.PlannedStep, now time.Time) *Approval {
	a := &Approval{
		ExpenseID:      expenseID,
		ApproverID:     p.ApproverID,
		StepOrder:      p.Order,
		IsHighPriority: p.IsHighPriority,
		Status:         ApprovalPending,
		CreatedAt:      now,
	}
	if p.StepID != 0 {
		stepID := p.StepID
		a.FlowStepID = &stepID
	}
	return a
}
