package expense

import (
	"sort"
	"time"

	"github.com/frahmantamala/expense-approval/internal/approval"
	expenseDatamodel "github.com/frahmantamala/expense-approval/internal/core/datamodel/expense"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusDraft    Status = "DRAFT"
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "PENDING"
	ApprovalApproved ApprovalStatus = ApprovalStatus(approval.OutcomeApproved)
	ApprovalRejected ApprovalStatus = ApprovalStatus(approval.OutcomeRejected)
)

type Expense struct {
	ID                      int64           `json:"id"`
	EmployeeID              int64           `json:"employee_id"`
	CompanyID               int64           `json:"company_id"`
	Description             string          `json:"description"`
	Category                string          `json:"category"`
	Amount                  decimal.Decimal `json:"amount"`
	CurrencyCode            string          `json:"currency_code"`
	CurrencySymbol          string          `json:"currency_symbol"`
	ConvertedAmount         decimal.Decimal `json:"converted_amount"`
	ConvertedCurrencyCode   string          `json:"converted_currency_code"`
	ConvertedCurrencySymbol string          `json:"converted_currency_symbol"`
	ExpenseDate             time.Time       `json:"expense_date"`
	ReceiptURL              *string         `json:"receipt_url,omitempty"`
	Status                  Status          `json:"status"`
	FlowID                  *int64          `json:"flow_id,omitempty"`
	RuleID                  *int64          `json:"rule_id,omitempty"`
	SubmittedAt             *time.Time      `json:"submitted_at,omitempty"`
	DecidedAt               *time.Time      `json:"decided_at,omitempty"`
	CreatedAt               time.Time       `json:"created_at"`
	UpdatedAt               time.Time       `json:"updated_at"`
}

// Approval is one approver's slot on an expense. StepOrder and
// IsHighPriority are copied from the flow step so history survives step
// deletion.
type Approval struct {
	ID             int64          `json:"id"`
	ExpenseID      int64          `json:"expense_id"`
	ApproverID     int64          `json:"approver_id"`
	FlowStepID     *int64         `json:"flow_step_id,omitempty"`
	StepOrder      int            `json:"step_order"`
	IsHighPriority bool           `json:"is_high_priority"`
	Status         ApprovalStatus `json:"status"`
	Comments       string         `json:"comments,omitempty"`
	ActedAt        *time.Time     `json:"acted_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

func (a *Approval) IsPending() bool {
	return a.Status == ApprovalPending
}

// Workflow is the aggregate the state machine operates on.
type Workflow struct {
	Expense   *Expense
	Approvals []*Approval
}

func (w *Workflow) Clone() *Workflow {
	exp := *w.Expense
	approvals := make([]*Approval, len(w.Approvals))
	for i, a := range w.Approvals {
		cp := *a
		approvals[i] = &cp
	}
	return &Workflow{Expense: &exp, Approvals: approvals}
}

func (w *Workflow) FindApproval(id int64) *Approval {
	for _, a := range w.Approvals {
		if a.ID == id {
			return a
		}
	}
	return nil
}

// activationOrder returns approvals sorted by step order, then creation.
func (w *Workflow) activationOrder() []*Approval {
	out := make([]*Approval, len(w.Approvals))
	copy(out, w.Approvals)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].StepOrder != out[j].StepOrder {
			return out[i].StepOrder < out[j].StepOrder
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Decisions returns the acted-on approvals in activation order.
func (w *Workflow) Decisions() []approval.Decision {
	var decisions []approval.Decision
	for _, a := range w.activationOrder() {
		if a.IsPending() {
			continue
		}
		decisions = append(decisions, approval.Decision{
			StepOrder:    a.StepOrder,
			ApproverID:   a.ApproverID,
			Outcome:      approval.Outcome(a.Status),
			HighPriority: a.IsHighPriority,
		})
	}
	return decisions
}

func (w *Workflow) PendingApprovals() []*Approval {
	var out []*Approval
	for _, a := range w.Approvals {
		if a.IsPending() {
			out = append(out, a)
		}
	}
	return out
}

// LastActivatedOrder is the highest step order that has an approval row.
func (w *Workflow) LastActivatedOrder() int {
	last := 0
	for _, a := range w.Approvals {
		if a.StepOrder > last {
			last = a.StepOrder
		}
	}
	return last
}

func ToDataModel(e *Expense) *expenseDatamodel.Expense {
	return &expenseDatamodel.Expense{
		ID:                      e.ID,
		EmployeeID:              e.EmployeeID,
		CompanyID:               e.CompanyID,
		Description:             e.Description,
		Category:                e.Category,
		Amount:                  e.Amount,
		CurrencyCode:            e.CurrencyCode,
		CurrencySymbol:          e.CurrencySymbol,
		ConvertedAmount:         e.ConvertedAmount,
		ConvertedCurrencyCode:   e.ConvertedCurrencyCode,
		ConvertedCurrencySymbol: e.ConvertedCurrencySymbol,
		ExpenseDate:             e.ExpenseDate,
		ReceiptURL:              e.ReceiptURL,
		Status:                  string(e.Status),
		FlowID:                  e.FlowID,
		RuleID:                  e.RuleID,
		SubmittedAt:             e.SubmittedAt,
		DecidedAt:               e.DecidedAt,
		CreatedAt:               e.CreatedAt,
		UpdatedAt:               e.UpdatedAt,
	}
}

func FromDataModel(e *expenseDatamodel.Expense) *Expense {
	return &Expense{
		ID:                      e.ID,
		EmployeeID:              e.EmployeeID,
		CompanyID:               e.CompanyID,
		Description:             e.Description,
		Category:                e.Category,
		Amount:                  e.Amount,
		CurrencyCode:            e.CurrencyCode,
		CurrencySymbol:          e.CurrencySymbol,
		ConvertedAmount:         e.ConvertedAmount,
		ConvertedCurrencyCode:   e.ConvertedCurrencyCode,
		ConvertedCurrencySymbol: e.ConvertedCurrencySymbol,
		ExpenseDate:             e.ExpenseDate,
		ReceiptURL:              e.ReceiptURL,
		Status:                  Status(e.Status),
		FlowID:                  e.FlowID,
		RuleID:                  e.RuleID,
		SubmittedAt:             e.SubmittedAt,
		DecidedAt:               e.DecidedAt,
		CreatedAt:               e.CreatedAt,
		UpdatedAt:               e.UpdatedAt,
	}
}

func ApprovalToDataModel(a *Approval) *expenseDatamodel.ExpenseApproval {
	return &expenseDatamodel.ExpenseApproval{
		ID:             a.ID,
		ExpenseID:      a.ExpenseID,
		ApproverID:     a.ApproverID,
		FlowStepID:     a.FlowStepID,
		StepOrder:      a.StepOrder,
		IsHighPriority: a.IsHighPriority,
		Status:         string(a.Status),
		Comments:       a.Comments,
		ActedAt:        a.ActedAt,
		CreatedAt:      a.CreatedAt,
	}
}

func ApprovalFromDataModel(a *expenseDatamodel.ExpenseApproval) *Approval {
	return &Approval{
		ID:             a.ID,
		ExpenseID:      a.ExpenseID,
		ApproverID:     a.ApproverID,
		FlowStepID:     a.FlowStepID,
		StepOrder:      a.StepOrder,
		IsHighPriority: a.IsHighPriority,
		Status:         ApprovalStatus(a.Status),
		Comments:       a.Comments,
		ActedAt:        a.ActedAt,
		CreatedAt:      a.CreatedAt,
	}
}

func WorkflowFromDataModel(e *expenseDatamodel.Expense, approvals []*expenseDatamodel.ExpenseApproval) *Workflow {
	wf := &Workflow{Expense: FromDataModel(e), Approvals: make([]*Approval, len(approvals))}
	for i, a := range approvals {
		wf.Approvals[i] = ApprovalFromDataModel(a)
	}
	return wf
}
