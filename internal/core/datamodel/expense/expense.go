package expense

import (
	"time"

	"github.com/shopspring/decimal"
)

type Expense struct {
	ID                      int64           `gorm:"primaryKey"`
	EmployeeID              int64           `gorm:"column:employee_id;not null;index"`
	CompanyID               int64           `gorm:"column:company_id;not null;index"`
	Description             string          `gorm:"column:description;not null"`
	Category                string          `gorm:"column:category"`
	Amount                  decimal.Decimal `gorm:"column:amount;type:numeric(12,2);not null"`
	CurrencyCode            string          `gorm:"column:currency_code;not null"`
	CurrencySymbol          string          `gorm:"column:currency_symbol"`
	ConvertedAmount         decimal.Decimal `gorm:"column:converted_amount;type:numeric(12,2);not null"`
	ConvertedCurrencyCode   string          `gorm:"column:converted_currency_code;not null"`
	ConvertedCurrencySymbol string          `gorm:"column:converted_currency_symbol"`
	ExpenseDate             time.Time       `gorm:"column:expense_date;type:date"`
	ReceiptURL              *string         `gorm:"column:receipt_url"`
	Status                  string          `gorm:"column:status;not null;index"`
	FlowID                  *int64          `gorm:"column:flow_id"`
	RuleID                  *int64          `gorm:"column:rule_id"`
	SubmittedAt             *time.Time      `gorm:"column:submitted_at"`
	DecidedAt               *time.Time      `gorm:"column:decided_at"`
	CreatedAt               time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt               time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

type ExpenseApproval struct {
	ID             int64      `gorm:"primaryKey"`
	ExpenseID      int64      `gorm:"column:expense_id;not null;index"`
	ApproverID     int64      `gorm:"column:approver_id;not null;index"`
	FlowStepID     *int64     `gorm:"column:flow_step_id"`
	StepOrder      int        `gorm:"column:step_order;not null"`
	IsHighPriority bool       `gorm:"column:is_high_priority;not null"`
	Status         string     `gorm:"column:status;not null"`
	Comments       string     `gorm:"column:comments"`
	ActedAt        *time.Time `gorm:"column:acted_at"`
	CreatedAt      time.Time  `gorm:"column:created_at;autoCreateTime"`
}
