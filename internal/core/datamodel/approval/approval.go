package approval

import (
	"time"

	"github.com/shopspring/decimal"
)

type ApprovalRule struct {
	ID                 int64     `gorm:"primaryKey"`
	CompanyID          int64     `gorm:"column:company_id;not null;index"`
	Name               string    `gorm:"column:name;not null"`
	RuleType           string    `gorm:"column:rule_type;not null"`
	MinimumPercentage  *int      `gorm:"column:minimum_percentage"`
	SpecificApproverID *int64    `gorm:"column:specific_approver_id"`
	IsActive           bool      `gorm:"column:is_active;not null"`
	CreatedAt          time.Time `gorm:"column:created_at;autoCreateTime"`
}

type ApprovalFlow struct {
	ID           int64               `gorm:"primaryKey"`
	CompanyID    int64               `gorm:"column:company_id;not null;index"`
	Name         string              `gorm:"column:name;not null"`
	Description  string              `gorm:"column:description"`
	DepartmentID *int64              `gorm:"column:department_id"`
	MinAmount    decimal.NullDecimal `gorm:"column:min_amount;type:numeric(12,2)"`
	MaxAmount    decimal.NullDecimal `gorm:"column:max_amount;type:numeric(12,2)"`
	RuleID       *int64              `gorm:"column:rule_id"`
	Rule         *ApprovalRule       `gorm:"foreignKey:RuleID"`
	Steps        []FlowStep          `gorm:"foreignKey:FlowID"`
	CreatedAt    time.Time           `gorm:"column:created_at;autoCreateTime"`
}

// FlowStep.ApproverID is null for manager steps; the approver is resolved
// from the submitter when the step is activated.
type FlowStep struct {
	ID             int64  `gorm:"primaryKey"`
	FlowID         int64  `gorm:"column:flow_id;not null;index"`
	StepOrder      int    `gorm:"column:step_order;not null"`
	ApproverID     *int64 `gorm:"column:approver_id"`
	IsManagerStep  bool   `gorm:"column:is_manager_step;not null"`
	IsHighPriority bool   `gorm:"column:is_high_priority;not null"`
}
