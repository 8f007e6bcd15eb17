package expense

import (
	"time"

	"github.com/frahmantamala/expense-approval/internal"
	"github.com/frahmantamala/expense-approval/internal/approval"
	"github.com/frahmantamala/expense-approval/internal/core/common/validation"

	"github.com/shopspring/decimal"
)

// CreateExpenseDTO is the draft payload. ConvertedAmount is the amount in
// the company currency and may be omitted when CurrencyCode already is the
// company currency.
type CreateExpenseDTO struct {
	Description             string           `json:"description"`
	Category                string           `json:"category"`
	Amount                  decimal.Decimal  `json:"amount"`
	CurrencyCode            string           `json:"currency_code"`
	CurrencySymbol          string           `json:"currency_symbol"`
	ConvertedAmount         *decimal.Decimal `json:"converted_amount,omitempty"`
	ConvertedCurrencyCode   string           `json:"converted_currency_code,omitempty"`
	ConvertedCurrencySymbol string           `json:"converted_currency_symbol,omitempty"`
	ExpenseDate             time.Time        `json:"expense_date"`
	ReceiptURL              *string          `json:"receipt_url,omitempty"`
}

func (dto CreateExpenseDTO) Validate() error {
	if err := validation.ValidateExpenseDescription(dto.Description); err != nil {
		return err
	}
	if err := validation.ValidateExpenseAmount("amount", dto.Amount); err != nil {
		return err
	}
	if dto.ConvertedAmount != nil {
		if err := validation.ValidateExpenseAmount("converted_amount", *dto.ConvertedAmount); err != nil {
			return err
		}
	}
	if err := validation.ValidateExpenseDate(dto.ExpenseDate); err != nil {
		return err
	}

	v := validation.NewValidator()
	v.Field("category", dto.Category).Required().MaxLength(100)
	v.Field("currency_code", dto.CurrencyCode).Required().CurrencyCode()
	v.Field("currency_symbol", dto.CurrencySymbol).MaxLength(5)
	if dto.ConvertedCurrencyCode != "" {
		v.Field("converted_currency_code", dto.ConvertedCurrencyCode).CurrencyCode()
	}
	v.Field("receipt_url", dto.ReceiptURL).URL()
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

type DecisionDTO struct {
	Outcome  approval.Outcome `json:"outcome"`
	Comments string           `json:"comments"`
}

func (dto DecisionDTO) Validate() error {
	if !dto.Outcome.Valid() {
		return internal.NewValidationFieldError("outcome", "outcome must be APPROVED or REJECTED", internal.ErrCodeValidationFailed)
	}
	v := validation.NewValidator()
	v.Field("comments", dto.Comments).MaxLength(1000)
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

// ExpenseResponse is an expense together with its approval trail.
type ExpenseResponse struct {
	*Expense
	Approvals []*Approval `json:"approvals"`
}

func NewExpenseResponse(wf *Workflow) *ExpenseResponse {
	approvals := wf.activationOrder()
	if approvals == nil {
		approvals = []*Approval{}
	}
	return &ExpenseResponse{Expense: wf.Expense, Approvals: approvals}
}

// InboxItem is a pending approval as shown to its approver.
type InboxItem struct {
	ApprovalID            int64           `json:"approval_id" db:"approval_id"`
	ExpenseID             int64           `json:"expense_id" db:"expense_id"`
	StepOrder             int             `json:"step_order" db:"step_order"`
	IsHighPriority        bool            `json:"is_high_priority" db:"is_high_priority"`
	ActivatedAt           time.Time       `json:"activated_at" db:"activated_at"`
	EmployeeID            int64           `json:"employee_id" db:"employee_id"`
	Description           string          `json:"description" db:"description"`
	Category              string          `json:"category" db:"category"`
	ConvertedAmount       decimal.Decimal `json:"converted_amount" db:"converted_amount"`
	ConvertedCurrencyCode string          `json:"converted_currency_code" db:"converted_currency_code"`
	SubmittedAt           *time.Time      `json:"submitted_at,omitempty" db:"submitted_at"`
}
